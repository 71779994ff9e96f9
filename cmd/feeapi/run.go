package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/chainfees/fee-indexer/internal/storage"
	"github.com/chainfees/fee-indexer/pkg/api"
	"github.com/chainfees/fee-indexer/pkg/metrics"
	"github.com/chainfees/fee-indexer/pkg/utils"
)

const shutdownTimeout = 5 * time.Second

func serve(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := utils.NewServiceLogger("feeapi", cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	sugar.Infow("config",
		"verbose", cfg.Verbose,
		"port", cfg.API.Port,
		"pageSize", cfg.API.PageSize,
		"store", cfg.Store.Kind,
		"feesTableName", cfg.Store.FeesTableName,
		"evmChainID", cfg.Labels.EVMChainID,
		"environment", cfg.Labels.Environment,
		"region", cfg.Labels.Region,
		"cloudProvider", cfg.Labels.CloudProvider,
	)

	if !cfg.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := prometheus.NewRegistry()
	m, err := metrics.NewWithLabels(registry, cfg.Labels)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := storage.Open(ctx, cfg.Store, sugar)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer backend.Close()

	server, err := api.New(cfg.API, backend.Fees, sugar, api.WithMetrics(m, registry))
	if err != nil {
		return fmt.Errorf("failed to create api server: %w", err)
	}
	errCh := server.Start()
	sugar.Infof("api listening on :%d", cfg.API.Port)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return gctx.Err()
		case err := <-errCh:
			return err
		}
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		sugar.Infow("exiting due to context cancellation")
		err = nil
	} else if err != nil {
		sugar.Errorw("api failed", "error", err)
	}

	sugar.Info("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		sugar.Warnw("api server shutdown error", "error", shutdownErr)
	}

	sugar.Info("shutdown complete")
	return err
}
