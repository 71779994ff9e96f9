package main

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/chainfees/fee-indexer/internal/chainclient/feecollector"
	"github.com/chainfees/fee-indexer/internal/storage"
	"github.com/chainfees/fee-indexer/pkg/checkpointer"
	"github.com/chainfees/fee-indexer/pkg/scraper"
)

// runFlags returns all CLI flags for the feescraper run command
func runFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{"VERBOSE"},
			Value:   false,
		},
		&cli.Uint64Flag{
			Name:     "evm-chain-id",
			Aliases:  []string{"C"},
			Usage:    "The EVM chain ID of the chain being scraped",
			EnvVars:  []string{"EVM_CHAIN_ID"},
			Required: true,
		},
		&cli.StringFlag{
			Name:     "rpc-url",
			Aliases:  []string{"r"},
			Usage:    "The RPC URL to read logs from",
			EnvVars:  []string{"RPC_URL"},
			Required: true,
		},
		&cli.DurationFlag{
			Name:    "rpc-timeout",
			Usage:   "Timeout applied to every RPC call",
			EnvVars: []string{"RPC_TIMEOUT"},
			Value:   feecollector.DefaultCallTimeout,
		},
		&cli.StringFlag{
			Name:     "contract-address",
			Usage:    "Address of the FeeCollector contract",
			EnvVars:  []string{"CONTRACT_ADDRESS"},
			Required: true,
		},
		&cli.Uint64Flag{
			Name:    "start-block",
			Aliases: []string{"s"},
			Usage:   "The block to start from when no checkpoint exists",
			EnvVars: []string{"START_BLOCK"},
			Value:   scraper.DefaultStartBlock,
		},
		&cli.Uint64Flag{
			Name:    "batch-size",
			Aliases: []string{"b"},
			Usage:   "The number of blocks fetched per log query",
			EnvVars: []string{"BATCH_SIZE"},
			Value:   scraper.DefaultBatchSize,
		},
		&cli.IntFlag{
			Name:    "retries",
			Usage:   "Total attempts per RPC or store operation, including the first one",
			EnvVars: []string{"RETRIES"},
			Value:   3,
		},
		&cli.DurationFlag{
			Name:    "retry-initial-delay",
			Usage:   "Delay after the first failed attempt",
			EnvVars: []string{"RETRY_INITIAL_DELAY"},
			Value:   100 * time.Millisecond,
		},
		&cli.DurationFlag{
			Name:    "retry-max-delay",
			Usage:   "Upper bound of the retry backoff",
			EnvVars: []string{"RETRY_MAX_DELAY"},
			Value:   5 * time.Second,
		},
		&cli.Float64Flag{
			Name:    "retry-backoff-factor",
			Usage:   "Multiplier applied to the retry delay after every failed attempt",
			EnvVars: []string{"RETRY_BACKOFF_FACTOR"},
			Value:   2,
		},
		&cli.DurationFlag{
			Name:    "salvage-timeout",
			Usage:   "Timeout of the checkpoint write issued after a failed run",
			EnvVars: []string{"SALVAGE_TIMEOUT"},
			Value:   scraper.DefaultSalvageTimeout,
		},
		&cli.StringFlag{
			Name:    "schedule",
			Usage:   "Cron schedule (e.g. \"@every 10m\"); the process runs once and exits when empty",
			EnvVars: []string{"SCHEDULE"},
		},
		checkpointTableFlag(),
		&cli.BoolFlag{
			Name:    "kafka-enabled",
			Usage:   "Publish stored fee events to Kafka",
			EnvVars: []string{"KAFKA_ENABLED"},
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "The Kafka brokers to use (comma-separated list)",
			EnvVars: []string{"KAFKA_BROKERS"},
			Value:   "localhost:9092",
		},
		&cli.StringFlag{
			Name:    "kafka-topic",
			Aliases: []string{"t"},
			Usage:   "The Kafka topic fee events are published to",
			EnvVars: []string{"KAFKA_TOPIC"},
			Value:   "fee-events",
		},
		&cli.BoolFlag{
			Name:    "kafka-enable-logs",
			Aliases: []string{"l"},
			Usage:   "Enable Kafka client logs",
			EnvVars: []string{"KAFKA_ENABLE_LOGS"},
		},
		&cli.StringFlag{
			Name:    "kafka-client-id",
			Usage:   "The Kafka client ID to use",
			EnvVars: []string{"KAFKA_CLIENT_ID"},
			Value:   "feescraper",
		},
		&cli.IntFlag{
			Name:    "kafka-topic-num-partitions",
			Usage:   "The number of partitions of the Kafka topic",
			EnvVars: []string{"KAFKA_TOPIC_NUM_PARTITIONS"},
			Value:   1,
		},
		&cli.IntFlag{
			Name:    "kafka-topic-replication-factor",
			Usage:   "The replication factor of the Kafka topic",
			EnvVars: []string{"KAFKA_TOPIC_REPLICATION_FACTOR"},
			Value:   1,
		},
		&cli.StringFlag{
			Name:    "kafka-sasl-username",
			Usage:   "Kafka SASL username",
			EnvVars: []string{"KAFKA_SASL_USERNAME"},
		},
		&cli.StringFlag{
			Name:    "kafka-sasl-password",
			Usage:   "Kafka SASL password",
			EnvVars: []string{"KAFKA_SASL_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "kafka-sasl-mechanism",
			Usage:   "Kafka SASL mechanism",
			EnvVars: []string{"KAFKA_SASL_MECHANISM"},
			Value:   "SCRAM-SHA-512",
		},
		&cli.StringFlag{
			Name:    "kafka-security-protocol",
			Usage:   "Kafka security protocol used with SASL",
			EnvVars: []string{"KAFKA_SECURITY_PROTOCOL"},
			Value:   "SASL_SSL",
		},
		&cli.StringFlag{
			Name:    "metrics-host",
			Usage:   "Host for the Prometheus metrics server (empty for all interfaces)",
			EnvVars: []string{"METRICS_HOST"},
			Value:   "",
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Aliases: []string{"m"},
			Usage:   "Port for the Prometheus metrics server",
			EnvVars: []string{"METRICS_PORT"},
			Value:   9090,
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

// removeFlags returns all CLI flags for the feescraper remove command
func removeFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.Uint64Flag{
			Name:     "evm-chain-id",
			Aliases:  []string{"C"},
			Usage:    "The EVM chain ID whose checkpoint is removed",
			EnvVars:  []string{"EVM_CHAIN_ID"},
			Required: true,
		},
		checkpointTableFlag(),
		&cli.BoolFlag{
			Name:    "purge-events",
			Usage:   "Also delete every stored fee event",
			EnvVars: []string{"PURGE_EVENTS"},
		},
	}
	return append(flags, storage.Flags()...)
}

func checkpointTableFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "checkpoint-table-name",
		Aliases: []string{"T"},
		Usage:   "The name of the table holding checkpoints",
		EnvVars: []string{"CHECKPOINT_TABLE_NAME"},
		Value:   checkpointer.DefaultConfig().TableName,
	}
}
