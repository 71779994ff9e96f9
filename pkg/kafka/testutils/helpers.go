package testutils

import (
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func NewTestLogger(t *testing.T) *zap.SugaredLogger {
	return zaptest.NewLogger(t).Sugar()
}

// NewDeliveryReport builds the message librdkafka hands back on a delivery channel. A non-nil err
// marks the delivery as failed.
func NewDeliveryReport(topic string, partition int32, offset int64, key []byte, err error) *kafka.Message {
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: partition,
			Offset:    kafka.Offset(offset),
			Error:     err,
		},
		Key: key,
	}
}
