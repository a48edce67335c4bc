package ai

import (
	"fmt"
	"log/slog"

	"studyroom/internal/config"
)

// AdapterBuilder constructs one provider adapter from config. The
// builders map keeps provider wiring in one place; registering a new
// provider means adding an entry here, nothing else changes.
type AdapterBuilder func(cfg *config.Config) (Adapter, error)

// BuildAdapters constructs the failover chain from the configured
// priority order. Providers without credentials are skipped with a
// warning rather than failing startup: the template fallback keeps the
// response path alive even with an empty chain, which is the expected
// state in local development.
func BuildAdapters(cfg *config.Config, builders map[string]AdapterBuilder, logger *slog.Logger) ([]Adapter, error) {
	var adapters []Adapter

	for _, name := range cfg.AI.ProviderPriority {
		builder, ok := builders[name]
		if !ok {
			return nil, fmt.Errorf("unknown provider %q in PROVIDER_PRIORITY_ORDER", name)
		}

		adapter, err := builder(cfg)
		if err != nil {
			logger.Warn("provider not available, skipping in failover chain",
				"provider", name,
				"reason", err,
			)
			continue
		}

		logger.Info("provider available", "name", name, "position", len(adapters))
		adapters = append(adapters, adapter)
	}

	if len(adapters) == 0 {
		logger.Warn("no providers configured - every response will come from the template fallback")
	}

	return adapters, nil
}
