//go:build integration
// +build integration

package kafka

import (
	"context"
	"testing"
	"time"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/chainfees/fee-indexer/pkg/kafka/messages"
)

const (
	kafkaImage     = "confluentinc/cp-kafka:7.5.0"
	startupTimeout = 60 * time.Second
	flushTimeout   = 10 * time.Second
)

func setupKafka(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        kafkaImage,
		ExposedPorts: []string{"9093/tcp"},
		HostConfigModifier: func(hc *container.HostConfig) {
			// The advertised listener is fixed, so the host port must be too.
			hc.PortBindings = map[nat.Port][]nat.PortBinding{
				"9093/tcp": {{HostIP: "127.0.0.1", HostPort: "9093"}},
			}
		},
		Env: map[string]string{
			"KAFKA_LISTENERS":                                "PLAINTEXT://0.0.0.0:9093,BROKER://0.0.0.0:9092,CONTROLLER://0.0.0.0:9094",
			"KAFKA_ADVERTISED_LISTENERS":                     "PLAINTEXT://localhost:9093,BROKER://localhost:9092",
			"KAFKA_LISTENER_SECURITY_PROTOCOL_MAP":           "CONTROLLER:PLAINTEXT,BROKER:PLAINTEXT,PLAINTEXT:PLAINTEXT",
			"KAFKA_INTER_BROKER_LISTENER_NAME":               "BROKER",
			"KAFKA_CONTROLLER_LISTENER_NAMES":                "CONTROLLER",
			"KAFKA_CONTROLLER_QUORUM_VOTERS":                 "1@localhost:9094",
			"KAFKA_PROCESS_ROLES":                            "broker,controller",
			"KAFKA_NODE_ID":                                  "1",
			"KAFKA_OFFSETS_TOPIC_REPLICATION_FACTOR":         "1",
			"KAFKA_TRANSACTION_STATE_LOG_REPLICATION_FACTOR": "1",
			"KAFKA_TRANSACTION_STATE_LOG_MIN_ISR":            "1",
			"KAFKA_GROUP_INITIAL_REBALANCE_DELAY_MS":         "0",
			"CLUSTER_ID":                                     "MkU3OEVBNTcwNTJENDM2Qk",
		},
		WaitingFor: wait.ForLog("Kafka Server started").WithStartupTimeout(startupTimeout),
	}

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	})

	// Give the broker time to elect itself controller.
	time.Sleep(5 * time.Second)
	return "localhost:9093"
}

func TestFeeStream_EndToEnd(t *testing.T) {
	brokers := setupKafka(t)
	log := zaptest.NewLogger(t).Sugar()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cfg := ProducerConfig{
		Brokers:           brokers,
		Topic:             "fee-events-it",
		ClientID:          "fee-indexer-it",
		NumPartitions:     2,
		ReplicationFactor: 1,
		FlushTimeout:      flushTimeout,
	}
	require.NoError(t, cfg.Validate())

	admin, err := cKafka.NewAdminClient(cfg.AdminConfigMap())
	require.NoError(t, err)
	defer admin.Close()

	require.NoError(t, EnsureTopic(ctx, admin, cfg.TopicConfig(), log))
	// A second call finds the topic and leaves it alone.
	require.NoError(t, EnsureTopic(ctx, admin, cfg.TopicConfig(), log))

	producer, err := NewProducer(ctx, cfg.ConfigMap(), log)
	require.NoError(t, err)
	defer producer.Close(cfg.FlushTimeout)

	pub := NewFeePublisher(producer, cfg.Topic, 137, nil)
	require.NoError(t, pub.Publish(ctx, feeEvents()))

	consumer, err := cKafka.NewConsumer(&cKafka.ConfigMap{
		"bootstrap.servers": brokers,
		"group.id":          "fee-indexer-it",
		"auto.offset.reset": "earliest",
	})
	require.NoError(t, err)
	defer consumer.Close()
	require.NoError(t, consumer.Subscribe(cfg.Topic, nil))

	got := map[string]messages.FeeCollected{}
	for len(got) < 2 {
		msg, err := consumer.ReadMessage(10 * time.Second)
		require.NoError(t, err)
		fc, err := messages.DecodeFeeCollected(msg.Value)
		require.NoError(t, err)
		got[string(msg.Key)] = fc
	}

	assert.Equal(t, feeEvents()[0], got["0xaa:1"].FeeEvent)
	assert.Equal(t, feeEvents()[1], got["0xbb:0"].FeeEvent)
}

func TestProducer_ProduceBatchUnknownTopic(t *testing.T) {
	brokers := setupKafka(t)
	log := zaptest.NewLogger(t).Sugar()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cm := &cKafka.ConfigMap{
		"bootstrap.servers":        brokers,
		"allow.auto.create.topics": false,
		"message.timeout.ms":       3000,
	}
	producer, err := NewProducer(ctx, cm, log)
	require.NoError(t, err)
	defer producer.Close(flushTimeout)

	err = producer.ProduceBatch(ctx, []Msg{{Topic: "does-not-exist", Key: []byte("k"), Value: []byte("v")}})
	require.Error(t, err)
}
