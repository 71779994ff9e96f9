package main

import (
	"github.com/urfave/cli/v2"

	"github.com/chainfees/fee-indexer/internal/storage"
	"github.com/chainfees/fee-indexer/pkg/api"
)

// serveFlags returns all CLI flags for the feeapi serve command
func serveFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{"VERBOSE"},
		},
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port the API listens on",
			EnvVars: []string{"PORT"},
			Value:   api.DefaultPort,
		},
		&cli.Uint64Flag{
			Name:    "page-size",
			Usage:   "Number of fee events returned per page",
			EnvVars: []string{"PAGE_SIZE"},
			Value:   api.DefaultPageSize,
		},
		&cli.Uint64Flag{
			Name:    "evm-chain-id",
			Aliases: []string{"C"},
			Usage:   "EVM chain ID of the served data, used as a metrics label",
			EnvVars: []string{"EVM_CHAIN_ID"},
		},
		&cli.StringFlag{
			Name:    "environment",
			Usage:   "Deployment environment for metrics labels (e.g., 'production', 'staging')",
			EnvVars: []string{"ENVIRONMENT"},
		},
		&cli.StringFlag{
			Name:    "region",
			Usage:   "Cloud region for metrics labels (e.g., 'us-east-1')",
			EnvVars: []string{"REGION"},
		},
		&cli.StringFlag{
			Name:    "cloud-provider",
			Usage:   "Cloud provider for metrics labels (e.g., 'aws', 'gcp')",
			EnvVars: []string{"CLOUD_PROVIDER"},
		},
	}
	return append(flags, storage.Flags()...)
}
