package kafka

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

const (
	DefaultFlushTimeout = 15 * time.Second
	messageMaxBytes     = 1048576 // 1MB
)

// SASLConfig holds optional SASL authentication settings.
type SASLConfig struct {
	Username         string `env:"KAFKA_SASL_USERNAME"`
	Password         string `env:"KAFKA_SASL_PASSWORD"`
	Mechanism        string `env:"KAFKA_SASL_MECHANISM"    envDefault:"SCRAM-SHA-512"`
	SecurityProtocol string `env:"KAFKA_SECURITY_PROTOCOL" envDefault:"SASL_SSL"`
}

// Enabled reports whether credentials are configured.
func (s SASLConfig) Enabled() bool {
	return s.Username != "" && s.Password != ""
}

// ApplyToConfigMap sets the SASL properties on cm when credentials are configured.
func (s SASLConfig) ApplyToConfigMap(cm *kafka.ConfigMap) {
	if !s.Enabled() {
		return
	}
	_ = cm.SetKey("security.protocol", s.SecurityProtocol)
	_ = cm.SetKey("sasl.mechanisms", s.Mechanism)
	_ = cm.SetKey("sasl.username", s.Username)
	_ = cm.SetKey("sasl.password", s.Password)
}

// ProducerConfig holds the settings of the fee stream producer.
type ProducerConfig struct {
	Brokers           string        `env:"KAFKA_BROKERS"                  envDefault:"localhost:9092"`
	Topic             string        `env:"KAFKA_TOPIC"                    envDefault:"fee-events"`
	ClientID          string        `env:"KAFKA_CLIENT_ID"                envDefault:"fee-indexer"`
	EnableLogs        bool          `env:"KAFKA_ENABLE_LOGS"              envDefault:"false"` // Enable librdkafka client logs
	NumPartitions     int           `env:"KAFKA_TOPIC_NUM_PARTITIONS"     envDefault:"1"`
	ReplicationFactor int           `env:"KAFKA_TOPIC_REPLICATION_FACTOR" envDefault:"1"`
	FlushTimeout      time.Duration `env:"KAFKA_FLUSH_TIMEOUT"            envDefault:"15s"`
	SASL              SASLConfig
}

// LoadProducerConfig loads the producer configuration from environment variables.
func LoadProducerConfig() (ProducerConfig, error) {
	var cfg ProducerConfig
	if err := env.Parse(&cfg); err != nil {
		return ProducerConfig{}, fmt.Errorf("parse kafka producer config: %w", err)
	}
	return cfg, nil
}

func (c ProducerConfig) Validate() error {
	if strings.TrimSpace(c.Brokers) == "" {
		return errors.New("kafka brokers must not be empty")
	}
	if c.Topic == "" {
		return errors.New("kafka topic must not be empty")
	}
	if c.SASL.Enabled() && c.SASL.Mechanism == "" {
		return errors.New("kafka sasl mechanism must be set when credentials are configured")
	}
	return c.TopicConfig().Validate()
}

// TopicConfig returns the desired layout of the fee stream topic.
func (c ProducerConfig) TopicConfig() TopicConfig {
	return TopicConfig{
		Name:              c.Topic,
		NumPartitions:     c.NumPartitions,
		ReplicationFactor: c.ReplicationFactor,
	}
}

// ConfigMap builds the librdkafka producer configuration.
func (c ProducerConfig) ConfigMap() *kafka.ConfigMap {
	cm := &kafka.ConfigMap{
		"bootstrap.servers": c.Brokers,
		"client.id":         c.ClientID,

		// Wait for all in-sync replicas.
		"acks":               "all",
		"enable.idempotence": true,

		"linger.ms":        5,
		"batch.size":       16384,
		"compression.type": "lz4",

		"go.logs.channel.enable": c.EnableLogs,
		"message.max.bytes":      messageMaxBytes,
	}
	c.SASL.ApplyToConfigMap(cm)
	return cm
}

// AdminConfigMap builds the configuration for an admin client on the same cluster.
func (c ProducerConfig) AdminConfigMap() *kafka.ConfigMap {
	cm := &kafka.ConfigMap{"bootstrap.servers": c.Brokers}
	c.SASL.ApplyToConfigMap(cm)
	return cm
}
