package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

// Msg is one record handed to the producer.
type Msg struct {
	Topic   string
	Value   []byte
	Key     []byte
	Headers map[string]string
}

// Producer publishes batches of messages and waits for their delivery receipts.
//
// Background goroutines drain the librdkafka event and log channels. Close MUST be called once the
// producer is no longer needed to stop them and flush in-flight messages.
type Producer struct {
	producer   *kafka.Producer
	log        *zap.SugaredLogger
	errCh      chan error
	eventsDone chan struct{}
	logsDone   chan struct{}
	closedCh   chan struct{}
	once       sync.Once
}

const queueFullErrorRetryDelay = time.Second

// enqueueErrors maps librdkafka codes that make a message unsendable to a readable prefix.
var enqueueErrors = map[kafka.ErrorCode]string{
	kafka.ErrBrokerNotAvailable: "broker not available",
	kafka.ErrInvalidMsgSize:     "invalid message size",
	kafka.ErrInvalidMsg:         "invalid message",
	kafka.ErrUnknownTopicOrPart: "unknown topic or partition",
	kafka.ErrAuthentication:     "authentication error",
}

// NewProducer creates a producer from conf. ctx bounds the lifetime of the background goroutines.
func NewProducer(ctx context.Context, conf *kafka.ConfigMap, log *zap.SugaredLogger) (*Producer, error) {
	kp, err := kafka.NewProducer(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	logsEnabled, err := conf.Get("go.logs.channel.enable", false)
	if err != nil {
		kp.Close()
		return nil, fmt.Errorf("failed to get go.logs.channel.enable: %w", err)
	}

	p := &Producer{
		producer:   kp,
		log:        log,
		eventsDone: make(chan struct{}),
		logsDone:   make(chan struct{}),
		errCh:      make(chan error, 1),
		closedCh:   make(chan struct{}),
	}

	if enabled, _ := logsEnabled.(bool); enabled {
		go p.pipeLogs(ctx)
	} else {
		close(p.logsDone)
	}
	go p.monitorEvents(ctx)

	return p, nil
}

// ProduceBatch enqueues every message before waiting for their delivery receipts, so a batch costs
// roughly one broker round-trip instead of one per message. It returns the first failure. Other
// messages of the batch MAY still have been delivered, so consumers must deduplicate by key.
// Ordering is only guaranteed among messages sharing a key.
//
// If ctx is done before every receipt arrived, ctx.Err() is returned.
func (p *Producer) ProduceBatch(ctx context.Context, msgs []Msg) error {
	if len(msgs) == 0 {
		return nil
	}
	deliveryCh := make(chan kafka.Event, len(msgs))

	enqueued := 0
	var enqueueErr error
	for _, msg := range msgs {
		if err := p.enqueue(ctx, toKafkaMessage(msg), deliveryCh); err != nil {
			enqueueErr = err
			break
		}
		enqueued++
	}

	var deliveryErr error
	for range enqueued {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-deliveryCh:
			m, _ := e.(*kafka.Message)
			if err := handleDeliveryEvent(p.log, m, e); err != nil && deliveryErr == nil {
				deliveryErr = err
			}
		}
	}
	if enqueueErr != nil {
		return enqueueErr
	}
	return deliveryErr
}

func toKafkaMessage(msg Msg) *kafka.Message {
	topic := msg.Topic
	kMsg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: kafka.PartitionAny,
		},
		Value: msg.Value,
		Key:   msg.Key,
	}
	for k, v := range msg.Headers {
		kMsg.Headers = append(kMsg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return kMsg
}

// Close stops the background goroutines, flushes pending messages for at most timeout and closes
// the producer. Messages still queued when the timeout is reached are lost. Calling Close more than
// once does nothing.
func (p *Producer) Close(timeout time.Duration) {
	p.once.Do(func() {
		p.log.Info("closing kafka producer")
		defer close(p.errCh)

		close(p.closedCh)
		<-p.eventsDone
		<-p.logsDone

		if pending := p.producer.Flush(int(timeout.Milliseconds())); pending > 0 {
			p.log.Warnw("flush incomplete, messages will be lost", "pending", pending)
		}

		p.producer.Close()
		p.log.Info("kafka producer closed")
	})
}

// Errors returns a channel that receives at most one fatal error and is closed by Close.
// Non-fatal Kafka errors are only logged. After a fatal error the producer is unusable.
func (p *Producer) Errors() <-chan error {
	return p.errCh
}

func (p *Producer) pipeLogs(ctx context.Context) {
	defer close(p.logsDone)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.closedCh:
			return
		case entry, ok := <-p.producer.Logs():
			if !ok {
				return
			}
			p.log.Debugw("librdkafka", "level", entry.Level, "tag", entry.Tag, "message", entry.Message)
		}
	}
}

// enqueue hands msg to librdkafka. A full local queue is waited out; any other refusal is returned.
func (p *Producer) enqueue(ctx context.Context, msg *kafka.Message, deliveryCh chan kafka.Event) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := p.producer.Produce(msg, deliveryCh)
		if err == nil {
			return nil
		}

		var kafkaErr kafka.Error
		if !errors.As(err, &kafkaErr) {
			return fmt.Errorf("failed to produce: %w", err)
		}
		if kafkaErr.Code() != kafka.ErrQueueFull {
			if prefix, ok := enqueueErrors[kafkaErr.Code()]; ok {
				return fmt.Errorf("%s: %w", prefix, err)
			}
			return fmt.Errorf("failed to produce: %w", err)
		}

		p.log.Warnw("producer queue full, retrying", "delay", queueFullErrorRetryDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(queueFullErrorRetryDelay):
		}
	}
}

func (p *Producer) monitorEvents(ctx context.Context) {
	defer close(p.eventsDone)
	for {
		select {
		case <-ctx.Done():
			p.log.Debug("stopping kafka event monitor, context done")
			return
		case <-p.closedCh:
			return
		case ev, ok := <-p.producer.Events():
			if !ok {
				p.reportFatal(errors.New("kafka producer event channel closed"))
				return
			}

			switch e := ev.(type) {
			case *kafka.Message:
				// Receipts go to the per-batch delivery channel; one landing here has no waiter.
				p.log.Warnw("unexpected delivery receipt", "topicPartition", e.TopicPartition.String())
			case kafka.Error:
				if e.IsFatal() || e.Code() == kafka.ErrAllBrokersDown {
					p.reportFatal(fmt.Errorf("fatal kafka error %#x: %w", e.Code(), e))
					return
				}
				p.log.Warnw("ignoring kafka error", "code", e.Code(), "error", e)
			case kafka.Stats:
				p.log.Debugw("kafka stats", "stats", e.String())
			default:
				p.log.Debugw("ignoring kafka event", "event", e.String())
			}
		}
	}
}

func (p *Producer) reportFatal(err error) {
	select {
	case p.errCh <- err:
	default:
		p.log.Warnw("fatal kafka error dropped, one is already pending", "error", err)
	}
}

func handleDeliveryEvent(log *zap.SugaredLogger, msg *kafka.Message, ev kafka.Event) error {
	e, ok := ev.(*kafka.Message)
	if !ok {
		return fmt.Errorf("unexpected delivery event: %T", ev)
	}

	if err := e.TopicPartition.Error; err != nil {
		return fmt.Errorf("delivery failed: %w", err)
	}

	log.Debugw("message delivered",
		"topic", *e.TopicPartition.Topic,
		"partition", e.TopicPartition.Partition,
		"offset", e.TopicPartition.Offset,
		"key", string(msg.Key),
	)
	return nil
}
