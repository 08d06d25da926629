package provider

import "github.com/af-corp/model-proxy/internal/config"

// Kind identifies an upstream vendor. The set is closed: adding a vendor
// means adding a Kind and a Vendor implementation to vendors().
type Kind string

const (
	KindZhipu  Kind = "zhipu"
	KindKimi   Kind = "kimi"
	KindGoogle Kind = "google"
)

// ModelSpec maps a caller-facing model id to the vendor's own model name.
type ModelSpec struct {
	ID            string
	DisplayName   string
	UpstreamModel string
}

// TransportOptions are per-vendor hints for building the outbound client.
type TransportOptions struct {
	// KeepAlive requests a dedicated, certificate-validating connection pool.
	KeepAlive bool
}

// Vendor describes one upstream API. All vendors speak OpenAI
// chat-completions JSON and authenticate with a Bearer token.
type Vendor interface {
	Kind() Kind
	DefaultBaseURL() string
	Models() []ModelSpec
	Transport() TransportOptions
}

type zhipu struct{}

func (zhipu) Kind() Kind                  { return KindZhipu }
func (zhipu) DefaultBaseURL() string      { return "https://open.bigmodel.cn/api/paas/v4" }
func (zhipu) Transport() TransportOptions { return TransportOptions{} }
func (zhipu) Models() []ModelSpec {
	return []ModelSpec{{ID: "glm-4.5", DisplayName: "GLM-4.5", UpstreamModel: "glm-4-0520"}}
}

type kimi struct{}

func (kimi) Kind() Kind                  { return KindKimi }
func (kimi) DefaultBaseURL() string      { return "https://api.moonshot.cn/v1" }
func (kimi) Transport() TransportOptions { return TransportOptions{KeepAlive: true} }
func (kimi) Models() []ModelSpec {
	return []ModelSpec{{ID: "kimi-k2-0905-preview", DisplayName: "Kimi K2", UpstreamModel: "moonshot-v1-8k"}}
}

// google serves Gemini through its OpenAI-compatible endpoint.
type google struct{}

func (google) Kind() Kind                  { return KindGoogle }
func (google) DefaultBaseURL() string      { return "https://generativelanguage.googleapis.com/v1beta/openai" }
func (google) Transport() TransportOptions { return TransportOptions{} }
func (google) Models() []ModelSpec {
	return []ModelSpec{{ID: "gemini-2.5-pro", DisplayName: "Gemini 2.5 Pro", UpstreamModel: "gemini-2.5-pro"}}
}

type configuredVendor struct {
	vendor Vendor
	cfg    config.ProviderConfig
}

// vendors returns every supported vendor paired with its configuration, in
// registration order.
func vendors(cfg config.ProvidersConfig) []configuredVendor {
	return []configuredVendor{
		{zhipu{}, cfg.Zhipu},
		{kimi{}, cfg.Kimi},
		{google{}, cfg.Google},
	}
}
