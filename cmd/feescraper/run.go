package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	confluentKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chainfees/fee-indexer/internal/chainclient/feecollector"
	"github.com/chainfees/fee-indexer/internal/storage"
	"github.com/chainfees/fee-indexer/pkg/kafka"
	"github.com/chainfees/fee-indexer/pkg/metrics"
	"github.com/chainfees/fee-indexer/pkg/scheduler"
	"github.com/chainfees/fee-indexer/pkg/scraper"
	"github.com/chainfees/fee-indexer/pkg/utils"
)

const shutdownTimeout = 5 * time.Second

func run(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := utils.NewServiceLogger("feescraper", cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	sugar.Infow("config",
		"verbose", cfg.Verbose,
		"evmChainID", cfg.EVMChainID,
		"rpcURL", cfg.RPCURL,
		"rpcTimeout", cfg.RPCTimeout,
		"contractAddress", cfg.ContractAddress.Hex(),
		"startBlock", cfg.StartBlock,
		"batchSize", cfg.BatchSize,
		"retries", cfg.Retry.Retries,
		"retryInitialDelay", cfg.Retry.InitialDelay,
		"retryMaxDelay", cfg.Retry.MaxDelay,
		"retryBackoffFactor", cfg.Retry.BackoffFactor,
		"schedule", cfg.Schedule,
		"store", cfg.Store.Kind,
		"feesTableName", cfg.Store.FeesTableName,
		"checkpointTableName", cfg.Checkpoint.TableName,
		"kafkaEnabled", cfg.KafkaEnabled,
		"kafkaTopic", cfg.Kafka.Topic,
		"metricsHost", cfg.MetricsHost,
		"metricsPort", cfg.MetricsPort,
		"environment", cfg.Environment,
		"region", cfg.Region,
		"cloudProvider", cfg.CloudProvider,
	)

	// Initialize Prometheus metrics with labels for multi-instance filtering
	registry := prometheus.NewRegistry()
	m, err := metrics.NewWithLabels(registry, metrics.Labels{
		EVMChainID:    cfg.EVMChainID,
		Environment:   cfg.Environment,
		Region:        cfg.Region,
		CloudProvider: cfg.CloudProvider,
	})
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

	metricsServer := metrics.NewServer(cfg.MetricsAddr(), registry, metrics.WithReadiness(backend.Fees.Ping))
	metricsErrCh := metricsServer.Start()
	if cfg.MetricsHost == "" {
		sugar.Infof("metrics server listening on http://0.0.0.0:%d/metrics", cfg.MetricsPort)
	} else {
		sugar.Infof("metrics server listening on http://%s/metrics", cfg.MetricsAddr())
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			sugar.Warnw("metrics server shutdown error", "error", err)
		}
	}()

	client, err := feecollector.New(ctx, cfg.RPCURL, cfg.ContractAddress,
		feecollector.WithMetrics(m),
		feecollector.WithCallTimeout(cfg.RPCTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to dial rpc: %w", err)
	}
	defer client.Close()

	opts := []scraper.Option{
		scraper.WithLogger(sugar),
		scraper.WithMetrics(m),
		scraper.WithSalvageTimeout(cfg.Checkpoint.SalvageTimeout),
	}

	var producer *kafka.Producer
	if cfg.KafkaEnabled {
		producer, err = newProducer(ctx, cfg.Kafka, sugar)
		if err != nil {
			return err
		}
		defer producer.Close(cfg.Kafka.FlushTimeout)
		opts = append(opts, scraper.WithPublisher(kafka.NewFeePublisher(producer, cfg.Kafka.Topic, cfg.EVMChainID, m)))
	}

	s, err := scraper.New(cfg.ScraperConfig(), client, backend.Fees, backend.Checkpoints, opts...)
	if err != nil {
		return fmt.Errorf("failed to create scraper: %w", err)
	}

	// A single run cancels the group once it returns so the helper goroutines stop.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-metricsErrCh:
			if err != nil {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		}
	})
	if producer != nil {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			case err := <-producer.Errors():
				return err
			}
		})
	}
	g.Go(func() error {
		defer cancelRun()
		if cfg.Schedule == "" {
			_, err := s.Run(gctx)
			return err
		}
		sched, err := scheduler.New("scrape", cfg.Schedule, func(ctx context.Context) error {
			_, err := s.Run(ctx)
			return err
		}, sugar, scheduler.WithImmediateRun())
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		return sched.Run(gctx)
	})

	err = g.Wait()
	switch {
	case errors.Is(err, context.Canceled):
		sugar.Infow("exiting due to context cancellation")
		err = nil
	case err != nil:
		sugar.Errorw("run failed", "error", err)
	}

	sugar.Info("shutdown complete")
	return err
}

// newProducer makes sure the fee topic exists and returns a producer for it.
func newProducer(ctx context.Context, cfg kafka.ProducerConfig, sugar *zap.SugaredLogger) (*kafka.Producer, error) {
	adminClient, err := confluentKafka.NewAdminClient(cfg.AdminConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka admin client: %w", err)
	}
	defer adminClient.Close()

	if err := kafka.EnsureTopic(ctx, adminClient, cfg.TopicConfig(), sugar); err != nil {
		return nil, fmt.Errorf("failed to ensure kafka topic exists: %w", err)
	}

	producer, err := kafka.NewProducer(ctx, cfg.ConfigMap(), sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return producer, nil
}
