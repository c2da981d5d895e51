package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/balaustrada/ufcscraper/config"
	"github.com/balaustrada/ufcscraper/pkg/metrics"
	"github.com/balaustrada/ufcscraper/pkg/tracing"
)

// MessageHandler processes one raw unit envelope from the scrape topic.
type MessageHandler func(ctx context.Context, msg *IncomingMessage) error

// Consumer reads scraper output off Kafka and hands each envelope to the
// intake handler. Offsets are committed only after the handler succeeds,
// except for malformed envelopes which can never succeed and are skipped.
type Consumer struct {
	reader  *kafka.Reader
	logger  ectologger.Logger
	handler MessageHandler
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

func NewConsumer(cfg config.Config, logger ectologger.Logger, handler MessageHandler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaRawUnitsTopic,
		GroupID:        cfg.KafkaConsumerGroup,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return &Consumer{
		reader:  reader,
		logger:  logger,
		handler: handler,
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()

	c.logger.WithContext(ctx).WithField("topic", c.reader.Config().Topic).Info("Kafka consumer started")
	return nil
}

// Stop cancels the fetch loop, waits for an in-flight message to finish
// and closes the reader.
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.reader.Close()
}

func (c *Consumer) run(ctx context.Context) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				c.logger.WithContext(ctx).Info("Consumer loop stopping")
				return
			}
			c.logger.WithContext(ctx).WithError(err).Error("Failed to fetch message")
			continue
		}

		c.consume(ctx, msg)
	}
}

func (c *Consumer) consume(ctx context.Context, msg kafka.Message) {
	ctx, span := tracing.StartSpan(ctx, "kafka.Consumer.consume")
	defer span.End()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	incoming := newIncomingMessage(msg)
	if err := incoming.ParseEnvelope(); err != nil {
		log.WithError(err).Error("Failed to parse raw unit envelope")
		metrics.RecordKafkaConsume(msg.Topic, "malformed")
		// Malformed envelopes can never succeed; commit so the group moves on
		c.commit(ctx, log, msg)
		return
	}

	if err := c.handler(ctx, incoming); err != nil {
		// Do NOT commit on failure: staging is idempotent through the payload
		// fingerprint, so at-least-once delivery is safe and nothing is lost.
		log.WithError(err).Error("Failed to process message (not committing)")
		metrics.RecordKafkaConsume(msg.Topic, "error")
		return
	}

	metrics.RecordKafkaConsume(msg.Topic, "success")
	c.commit(ctx, log, msg)
}

func (c *Consumer) commit(ctx context.Context, log ectologger.Logger, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to commit message")
	}
}

func newIncomingMessage(msg kafka.Message) *IncomingMessage {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	return &IncomingMessage{
		Key:       string(msg.Key),
		Value:     msg.Value,
		Headers:   headers,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Topic:     msg.Topic,
	}
}
