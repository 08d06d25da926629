package provider

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/af-corp/model-proxy/internal/config"
)

// ErrNoProviders is returned when no vendor has a usable credential.
var ErrNoProviders = errors.New("no provider configured: set at least one of ZHIPU_API_KEY, KIMI_API_KEY, GEMINI_API_KEY")

// ErrUnknownModel is returned by Lookup for ids outside the registry.
var ErrUnknownModel = errors.New("unsupported model")

// Descriptor is everything needed to forward a request for one model id.
type Descriptor struct {
	ModelID       string
	Provider      Kind
	DisplayName   string
	BaseURL       string
	APIKey        string
	UpstreamModel string
	Transport     TransportOptions
}

// ChatURL is the upstream chat-completions endpoint.
func (d Descriptor) ChatURL() string {
	return strings.TrimRight(d.BaseURL, "/") + "/chat/completions"
}

// LogValue keeps the credential out of logs.
func (d Descriptor) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("model_id", d.ModelID),
		slog.String("provider", string(d.Provider)),
		slog.String("base_url", d.BaseURL),
		slog.String("upstream_model", d.UpstreamModel),
	)
}

// Registry maps model ids to descriptors. It is immutable after Build and
// safe for concurrent reads.
type Registry struct {
	byID  map[string]Descriptor
	order []string
}

// Build creates a registry from the providers config. Vendors without a
// credential, or explicitly disabled, are skipped.
func Build(cfg config.ProvidersConfig) (*Registry, error) {
	r := &Registry{byID: make(map[string]Descriptor)}
	for _, cv := range vendors(cfg) {
		if !cv.cfg.Available() {
			continue
		}
		baseURL := cv.cfg.BaseURL
		if baseURL == "" {
			baseURL = cv.vendor.DefaultBaseURL()
		}
		for _, m := range cv.vendor.Models() {
			if _, dup := r.byID[m.ID]; dup {
				continue
			}
			r.byID[m.ID] = Descriptor{
				ModelID:       m.ID,
				Provider:      cv.vendor.Kind(),
				DisplayName:   m.DisplayName,
				BaseURL:       baseURL,
				APIKey:        cv.cfg.APIKey,
				UpstreamModel: m.UpstreamModel,
				Transport:     cv.vendor.Transport(),
			}
			r.order = append(r.order, m.ID)
		}
	}
	if len(r.order) == 0 {
		return nil, ErrNoProviders
	}
	return r, nil
}

// Resolve returns the descriptor for a model id.
func (r *Registry) Resolve(modelID string) (Descriptor, bool) {
	d, ok := r.byID[modelID]
	return d, ok
}

// Lookup is Resolve with an error naming every supported model id.
func (r *Registry) Lookup(modelID string) (Descriptor, error) {
	if d, ok := r.Resolve(modelID); ok {
		return d, nil
	}
	return Descriptor{}, fmt.Errorf("%w: %s. supported models: %s", ErrUnknownModel, modelID, strings.Join(r.order, ", "))
}

// SupportedModels returns the model ids in registration order.
func (r *Registry) SupportedModels() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Descriptors returns all descriptors in registration order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	return len(r.order)
}
