package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/chainfees/fee-indexer/internal/storage"
	"github.com/chainfees/fee-indexer/pkg/utils"
)

func remove(c *cli.Context) error {
	ctx := context.Background()
	sugar, err := utils.NewServiceLogger("feescraper", true)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	evmChainID := c.Uint64("evm-chain-id")
	if evmChainID == 0 {
		return errNoChainID
	}

	storeCfg, err := storage.ConfigFromCLI(c, c.String("checkpoint-table-name"))
	if err != nil {
		return fmt.Errorf("failed to build store config: %w", err)
	}

	backend, err := storage.Open(ctx, storeCfg, sugar)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer backend.Close()

	if err := backend.Checkpoints.Delete(ctx, evmChainID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	sugar.Infof("checkpoint successfully removed for chain ID %d", evmChainID)

	if c.Bool("purge-events") {
		if err := backend.Fees.Purge(ctx); err != nil {
			return fmt.Errorf("failed to purge fee events: %w", err)
		}
		sugar.Infow("fee events purged", "table", storeCfg.FeesTableName)
	}
	return nil
}
