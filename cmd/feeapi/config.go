package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/chainfees/fee-indexer/internal/storage"
	"github.com/chainfees/fee-indexer/pkg/api"
	"github.com/chainfees/fee-indexer/pkg/metrics"
)

// Config holds all configuration for the feeapi application
type Config struct {
	Verbose bool
	API     api.Config
	Store   storage.Config
	Labels  metrics.Labels
}

// buildConfig creates a Config from CLI context flags
func buildConfig(c *cli.Context) (*Config, error) {
	storeCfg, err := storage.ConfigFromCLI(c, "")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Verbose: c.Bool("verbose"),
		API: api.Config{
			Port:     c.Int("port"),
			PageSize: c.Uint64("page-size"),
		},
		Store: storeCfg,
		Labels: metrics.Labels{
			EVMChainID:    c.Uint64("evm-chain-id"),
			Environment:   c.String("environment"),
			Region:        c.String("region"),
			CloudProvider: c.String("cloud-provider"),
		},
	}

	if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
		return nil, fmt.Errorf("port must be between 1 and 65535, got %d", cfg.API.Port)
	}
	if cfg.API.PageSize == 0 {
		return nil, api.ErrInvalidPageSize
	}
	return cfg, nil
}
