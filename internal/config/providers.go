package config

// ProvidersConfig holds one entry per supported upstream vendor. A vendor
// without an API key contributes no models.
type ProvidersConfig struct {
	Zhipu  ProviderConfig `yaml:"zhipu"`
	Kimi   ProviderConfig `yaml:"kimi"`
	Google ProviderConfig `yaml:"google"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Enabled *bool  `yaml:"enabled"`
}

// Available reports whether the provider has a credential and is not
// explicitly disabled.
func (p ProviderConfig) Available() bool {
	if p.APIKey == "" {
		return false
	}
	return p.Enabled == nil || *p.Enabled
}
