package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Aidin1998/tickbook/internal/trading/config"
	"github.com/Aidin1998/tickbook/internal/trading/model"
	"github.com/Aidin1998/tickbook/pkg/errors"
	"github.com/Aidin1998/tickbook/pkg/logger"
)

// Outcomes reported per consumed message
const (
	OutcomeApplied   = "applied"
	OutcomeRejected  = "rejected"
	OutcomeMalformed = "malformed"
)

// Reader is the part of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageObserver counts consumed messages.
type MessageObserver interface {
	MessageConsumed(msgType, outcome string)
}

type nopMessages struct{}

func (nopMessages) MessageConsumed(string, string) {}

// Consumer applies ingress messages from Kafka to one book. Rejected and
// malformed messages are logged, counted and committed so that a poison
// record never blocks the partition.
type Consumer struct {
	reader   Reader
	book     Applier
	market   model.Market
	observer MessageObserver
	logger   *zap.Logger
	commit   bool
}

// NewKafkaReader builds the reader for cfg.
func NewKafkaReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
		MaxWait:  500 * time.Millisecond,
	})
}

// NewConsumer creates a consumer. Offsets are committed only when the
// reader belongs to a consumer group.
func NewConsumer(reader Reader, book Applier, market model.Market, groupID string, observer MessageObserver, log *zap.Logger) *Consumer {
	if observer == nil {
		observer = nopMessages{}
	}
	return &Consumer{
		reader:   reader,
		book:     book,
		market:   market,
		observer: observer,
		logger:   logger.OrNop(log).Named("consumer").With(zap.Stringer("market", market)),
		commit:   groupID != "",
	}
}

// Handle decodes and applies one record and reports the outcome.
func (c *Consumer) Handle(m kafka.Message) string {
	msg, err := Decode(m.Value, c.market)
	if err != nil {
		c.logger.Warn("Malformed message",
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.Error(err),
		)
		c.observer.MessageConsumed("unknown", OutcomeMalformed)
		return OutcomeMalformed
	}

	if err := Apply(c.book, msg); err != nil {
		level := c.logger.Warn
		if errors.IsBenign(err) {
			level = c.logger.Debug
		}
		level("Message rejected",
			zap.String("type", msg.Type),
			zap.Int64("offset", m.Offset),
			zap.Error(err),
		)
		c.observer.MessageConsumed(msg.Type, OutcomeRejected)
		return OutcomeRejected
	}
	c.observer.MessageConsumed(msg.Type, OutcomeApplied)
	return OutcomeApplied
}

// Run consumes until ctx is done or the reader fails.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Consumer started")
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Consumer stopped")
				return nil
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		c.Handle(m)

		if c.commit {
			if err := c.reader.CommitMessages(ctx, m); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.logger.Error("Failed to commit offset", zap.Int64("offset", m.Offset), zap.Error(err))
				return fmt.Errorf("failed to commit offset %d: %w", m.Offset, err)
			}
		}
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
