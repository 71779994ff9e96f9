package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/chainfees/fee-indexer/pkg/kafka/messages"
	"github.com/chainfees/fee-indexer/pkg/metrics"
	"github.com/chainfees/fee-indexer/pkg/types"
)

// BatchProducer is the part of Producer the fee publisher needs.
type BatchProducer interface {
	ProduceBatch(ctx context.Context, msgs []Msg) error
}

// FeePublisher publishes stored fee events as fee.collected messages keyed by txHash:logIndex.
// Delivery is at-least-once.
type FeePublisher struct {
	producer   BatchProducer
	topic      string
	evmChainID uint64
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewFeePublisher(p BatchProducer, topic string, evmChainID uint64, m *metrics.Metrics) *FeePublisher {
	return &FeePublisher{
		producer:   p,
		topic:      topic,
		evmChainID: evmChainID,
		metrics:    m,
		now:        time.Now,
	}
}

func (p *FeePublisher) Publish(ctx context.Context, events []types.FeeEvent) error {
	if len(events) == 0 {
		return nil
	}

	now := p.now()
	headers := map[string]string{messages.ChainIDHeader: messages.ChainIDHeaderValue(p.evmChainID)}
	msgs := make([]Msg, 0, len(events))
	for _, ev := range events {
		key, value, err := messages.EncodeFeeCollected(p.evmChainID, ev, now)
		if err != nil {
			return fmt.Errorf("encode fee event %s: %w", ev.Key(), err)
		}
		msgs = append(msgs, Msg{
			Topic:   p.topic,
			Key:     key,
			Value:   value,
			Headers: headers,
		})
	}

	err := p.producer.ProduceBatch(ctx, msgs)
	p.metrics.AddPublished(len(msgs), err)
	if err != nil {
		return fmt.Errorf("publish %d fee events: %w", len(msgs), err)
	}
	return nil
}
