package gateway

import (
	"fmt"
	"log/slog"

	"github.com/af-corp/model-proxy/internal/config"
	"github.com/af-corp/model-proxy/internal/provider"
	"github.com/af-corp/model-proxy/internal/retry"
	"github.com/af-corp/model-proxy/internal/upstream"
)

// Snapshot is the immutable per-configuration state the handlers read. A
// config reload builds a new Snapshot and swaps it in whole, so a request
// sees one consistent registry and routing policy from start to finish.
type Snapshot struct {
	Registry     *provider.Registry
	Dispatcher   *upstream.Dispatcher
	Retry        *retry.Executor
	Routing      config.RoutingConfig
	MaxBodyBytes int64
}

// NewSnapshot builds the registry, dispatcher and retry policy for cfg. It
// fails with provider.ErrNoProviders when no vendor has a credential.
func NewSnapshot(cfg *config.Config, logger *slog.Logger) (*Snapshot, error) {
	reg, err := provider.Build(cfg.Providers)
	if err != nil {
		return nil, fmt.Errorf("build provider registry: %w", err)
	}
	return &Snapshot{
		Registry:   reg,
		Dispatcher: upstream.NewDispatcher(cfg.Routing.RequestTimeout(), logger),
		Retry: retry.New(retry.Policy{
			MaxAttempts: cfg.Routing.MaxRetries,
			BaseDelay:   cfg.Routing.RetryDelay(),
		}, logger),
		Routing:      cfg.Routing,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}, nil
}
