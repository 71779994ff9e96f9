package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/ava-labs/libevm/common"
	"github.com/urfave/cli/v2"

	"github.com/chainfees/fee-indexer/internal/storage"
	"github.com/chainfees/fee-indexer/pkg/checkpointer"
	"github.com/chainfees/fee-indexer/pkg/kafka"
	"github.com/chainfees/fee-indexer/pkg/retry"
	"github.com/chainfees/fee-indexer/pkg/scheduler"
	"github.com/chainfees/fee-indexer/pkg/scraper"
)

var errNoChainID = errors.New("evm-chain-id must be greater than 0")

// Config holds all configuration for the feescraper application
type Config struct {
	// Application settings
	Verbose bool

	// Chain settings
	EVMChainID      uint64
	RPCURL          string
	RPCTimeout      time.Duration
	ContractAddress common.Address

	// Scrape settings
	StartBlock uint64
	BatchSize  uint64
	Retry      retry.Policy
	Schedule   string // empty runs once

	Checkpoint checkpointer.Config
	Store      storage.Config

	// Kafka settings
	KafkaEnabled bool
	Kafka        kafka.ProducerConfig

	// Metrics settings
	MetricsHost   string
	MetricsPort   int
	Environment   string
	Region        string
	CloudProvider string
}

// MetricsAddr returns the formatted metrics address
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

// ScraperConfig returns the settings of one scrape run.
func (c *Config) ScraperConfig() scraper.Config {
	return scraper.Config{
		EVMChainID: c.EVMChainID,
		StartBlock: c.StartBlock,
		BatchSize:  c.BatchSize,
		Retry:      c.Retry,
	}
}

// buildConfig creates a Config from CLI context flags
func buildConfig(c *cli.Context) (*Config, error) {
	contract := c.String("contract-address")
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("invalid contract address %q", contract)
	}

	checkpointCfg := checkpointer.DefaultConfig()
	checkpointCfg.TableName = c.String("checkpoint-table-name")
	checkpointCfg.SalvageTimeout = c.Duration("salvage-timeout")

	storeCfg, err := storage.ConfigFromCLI(c, checkpointCfg.TableName)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Verbose:         c.Bool("verbose"),
		EVMChainID:      c.Uint64("evm-chain-id"),
		RPCURL:          c.String("rpc-url"),
		RPCTimeout:      c.Duration("rpc-timeout"),
		ContractAddress: common.HexToAddress(contract),
		StartBlock:      c.Uint64("start-block"),
		BatchSize:       c.Uint64("batch-size"),
		Retry: retry.Policy{
			Retries:       c.Int("retries"),
			InitialDelay:  c.Duration("retry-initial-delay"),
			MaxDelay:      c.Duration("retry-max-delay"),
			BackoffFactor: c.Float64("retry-backoff-factor"),
		},
		Schedule:   c.String("schedule"),
		Checkpoint: checkpointCfg,
		Store:      storeCfg,

		KafkaEnabled: c.Bool("kafka-enabled"),
		Kafka: kafka.ProducerConfig{
			Brokers:           c.String("kafka-brokers"),
			Topic:             c.String("kafka-topic"),
			ClientID:          c.String("kafka-client-id"),
			EnableLogs:        c.Bool("kafka-enable-logs"),
			NumPartitions:     c.Int("kafka-topic-num-partitions"),
			ReplicationFactor: c.Int("kafka-topic-replication-factor"),
			FlushTimeout:      kafka.DefaultFlushTimeout,
			SASL: kafka.SASLConfig{
				Username:         c.String("kafka-sasl-username"),
				Password:         c.String("kafka-sasl-password"),
				Mechanism:        c.String("kafka-sasl-mechanism"),
				SecurityProtocol: c.String("kafka-security-protocol"),
			},
		},

		MetricsHost:   c.String("metrics-host"),
		MetricsPort:   c.Int("metrics-port"),
		Environment:   c.String("environment"),
		Region:        c.String("region"),
		CloudProvider: c.String("cloud-provider"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.EVMChainID == 0 {
		return errNoChainID
	}
	if c.BatchSize == 0 {
		return scraper.ErrInvalidBatchSize
	}
	if c.RPCTimeout <= 0 {
		return errors.New("rpc-timeout must be greater than 0")
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("invalid retry settings: %w", err)
	}
	if c.Schedule != "" {
		if err := scheduler.ValidateSchedule(c.Schedule); err != nil {
			return err
		}
	}
	if c.KafkaEnabled {
		if err := c.Kafka.Validate(); err != nil {
			return fmt.Errorf("invalid kafka settings: %w", err)
		}
	}
	return nil
}
