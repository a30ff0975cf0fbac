package kafka

import (
	"context"
	stderrors "errors"
	"io"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/clover/pkg/tracing"
)

// MessageHandler processes incoming Kafka messages. Returning an error leaves
// the message uncommitted so it is delivered again.
type MessageHandler func(ctx context.Context, msg *IncomingMessage) error

// Reader is the subset of *kafka.Reader the consumer uses
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig holds Kafka consumer configuration
type ConsumerConfig struct {
	Enabled       bool          `env:"KAFKA_CONSUMER_ENABLED" env-default:"false"`
	Brokers       []string      `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	Topic         string        `env:"KAFKA_INPUT_TOPIC" env-default:"source-records"`
	ConsumerGroup string        `env:"KAFKA_CONSUMER_GROUP" env-default:"clover-intake"`
	RetryBackoff  time.Duration `env:"KAFKA_CONSUMER_RETRY_BACKOFF" env-default:"1s"`
}

// Consumer handles Kafka message consumption
type Consumer struct {
	reader  Reader
	topic   string
	backoff time.Duration
	logger  ectologger.Logger
	handler MessageHandler
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// NewConsumer creates a consumer group reader for cfg.Topic
func NewConsumer(cfg ConsumerConfig, logger ectologger.Logger, handler MessageHandler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})
	return NewConsumerWithReader(reader, cfg.Topic, cfg.RetryBackoff, logger, handler)
}

// NewConsumerWithReader creates a consumer over an existing reader
func NewConsumerWithReader(reader Reader, topic string, backoff time.Duration, logger ectologger.Logger, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:  reader,
		topic:   topic,
		backoff: backoff,
		logger:  logger,
		handler: handler,
	}
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.WithContext(ctx).WithField("topic", c.topic).Info("Kafka consumer started")
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.reader.Close()
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, io.EOF) {
				c.logger.WithContext(ctx).Info("Consumer loop stopping")
				return
			}
			c.logger.WithContext(ctx).WithError(err).Error("Failed to fetch message")
			if !c.wait(ctx) {
				return
			}
			continue
		}

		// A failed message is retried in place so later offsets are never
		// committed ahead of it.
		for !c.processMessage(ctx, msg) {
			if !c.wait(ctx) {
				return
			}
		}
	}
}

func (c *Consumer) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.backoff):
		return true
	}
}

// processMessage reports whether the message was handled and committed
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) bool {
	incoming := newIncomingMessage(msg)
	ctx, span := tracing.StartSpan(incoming.TraceContext(ctx), "kafka.Consumer.processMessage")
	defer span.End()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	if err := c.handler(ctx, incoming); err != nil {
		log.WithError(err).Error("Failed to process message (not committing)")
		return false
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to commit message")
		return false
	}
	return true
}
