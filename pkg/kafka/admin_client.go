package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

const metadataTimeout = 10 * time.Second

// Admin is the part of kafka.AdminClient used to manage the fee stream topic.
type Admin interface {
	GetMetadata(topic *string, allTopics bool, timeoutMs int) (*kafka.Metadata, error)
	CreateTopics(ctx context.Context, topics []kafka.TopicSpecification, options ...kafka.CreateTopicsAdminOption) ([]kafka.TopicResult, error)
	CreatePartitions(ctx context.Context, partitions []kafka.PartitionsSpecification, options ...kafka.CreatePartitionsAdminOption) ([]kafka.TopicResult, error)
}

var _ Admin = (*kafka.AdminClient)(nil)

// TopicConfig is the desired layout of a topic.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
}

func (tc TopicConfig) Validate() error {
	if tc.Name == "" {
		return errors.New("topic name cannot be empty")
	}
	if tc.NumPartitions <= 0 {
		return fmt.Errorf("number of partitions must be > 0, got %d", tc.NumPartitions)
	}
	if tc.ReplicationFactor <= 0 {
		return fmt.Errorf("replication factor must be > 0, got %d", tc.ReplicationFactor)
	}
	return nil
}

// TopicExists returns the metadata of topicName, or nil when the topic does not exist.
func TopicExists(admin Admin, topicName string) (*kafka.TopicMetadata, error) {
	metadata, err := admin.GetMetadata(&topicName, false, int(metadataTimeout.Milliseconds()))
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata for topic %q: %w", topicName, err)
	}

	topic, ok := metadata.Topics[topicName]
	switch {
	case !ok, topic.Error.Code() == kafka.ErrUnknownTopicOrPart:
		return nil, nil
	case topic.Error.Code() != kafka.ErrNoError:
		return nil, fmt.Errorf("topic %q has error: %w", topicName, topic.Error)
	default:
		return &topic, nil
	}
}

// CreateTopic creates the topic described by config. A topic created concurrently by another
// process is accepted.
func CreateTopic(ctx context.Context, admin Admin, config TopicConfig, log *zap.SugaredLogger) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid topic config: %w", err)
	}

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             config.Name,
		NumPartitions:     config.NumPartitions,
		ReplicationFactor: config.ReplicationFactor,
	}})
	if err != nil {
		return fmt.Errorf("failed to create topic %q: %w", config.Name, err)
	}

	for _, result := range results {
		switch result.Error.Code() {
		case kafka.ErrNoError:
			log.Infow("created topic",
				"topic", result.Topic,
				"partitions", config.NumPartitions,
				"replicationFactor", config.ReplicationFactor)
		case kafka.ErrTopicAlreadyExists:
			log.Infow("topic already exists", "topic", result.Topic)
		default:
			return fmt.Errorf("failed to create topic %q: %w", result.Topic, result.Error)
		}
	}
	return nil
}

// EnsureTopic makes sure the fee stream topic exists before the producer starts.
//
// A missing topic is created. An existing topic with fewer partitions than configured is grown;
// one with more keeps its count since Kafka cannot shrink a topic. A differing replication factor
// is only reported. Growing a topic moves keys to new partitions, so per-key ordering only holds for
// messages produced afterwards.
func EnsureTopic(ctx context.Context, admin Admin, config TopicConfig, log *zap.SugaredLogger) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid topic config: %w", err)
	}

	topic, err := TopicExists(admin, config.Name)
	if err != nil {
		return fmt.Errorf("failed to check topic existence: %w", err)
	}
	if topic == nil {
		return CreateTopic(ctx, admin, config, log)
	}

	partitions := len(topic.Partitions)
	replicationFactor := getReplicationFactor(topic)
	log.Infow("topic exists",
		"topic", config.Name,
		"partitions", partitions,
		"replicationFactor", replicationFactor)

	if replicationFactor != config.ReplicationFactor {
		log.Warnw("topic replication factor differs from config, change it manually",
			"topic", config.Name,
			"current", replicationFactor,
			"desired", config.ReplicationFactor)
	}

	switch {
	case partitions < config.NumPartitions:
		return increasePartitions(ctx, admin, config.Name, config.NumPartitions, log)
	case partitions > config.NumPartitions:
		log.Warnw("topic has more partitions than configured, keeping them",
			"topic", config.Name,
			"current", partitions,
			"desired", config.NumPartitions)
	}
	return nil
}

func increasePartitions(ctx context.Context, admin Admin, topicName string, count int, log *zap.SugaredLogger) error {
	results, err := admin.CreatePartitions(ctx, []kafka.PartitionsSpecification{{
		Topic:      topicName,
		IncreaseTo: count,
	}})
	if err != nil {
		return fmt.Errorf("failed to increase partitions for topic %q: %w", topicName, err)
	}

	for _, result := range results {
		if result.Error.Code() != kafka.ErrNoError {
			return fmt.Errorf("failed to increase partitions for topic %q: %w", result.Topic, result.Error)
		}
		log.Infow("increased partitions", "topic", result.Topic, "partitions", count)
	}
	return nil
}

// getReplicationFactor returns the replica count of the first partition, 0 without partitions.
func getReplicationFactor(metadata *kafka.TopicMetadata) int {
	if len(metadata.Partitions) == 0 {
		return 0
	}
	return len(metadata.Partitions[0].Replicas)
}
