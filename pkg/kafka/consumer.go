// Package kafka wraps segmentio/kafka-go for the index-complete event stream:
// the indexer publishes one JSON event per saved generation and every
// searcher replica consumes them.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/labinochka/OIP/pkg/config"
	"github.com/labinochka/OIP/pkg/logger"
)

// Message is the decoded view of a Kafka message handed to a MessageHandler.
type Message struct {
	Type      string
	Key       []byte
	Value     []byte
	Partition int
	Offset    int64
}

// MessageHandler processes one message. A returned error leaves the offset
// uncommitted.
type MessageHandler func(ctx context.Context, msg Message) error

// Consumer reads a topic within a consumer group and dispatches every
// message to a MessageHandler.
type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	handler MessageHandler
	backoff time.Duration
}

// NewConsumer creates a Consumer for topic in consumer group groupID. Each
// searcher replica passes its own group so that every replica sees every
// event.
func NewConsumer(cfg config.KafkaConfig, topic, groupID string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    1e6,
		MaxWait:     time.Second,
		StartOffset: kafka.LastOffset,
	})
	return &Consumer{
		reader:  r,
		logger:  logger.WithComponent("kafka-consumer").With("topic", topic, "group", groupID),
		handler: handler,
		backoff: time.Second,
	}
}

// Start runs the consume loop until ctx is cancelled, then closes the
// reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			select {
			case <-time.After(c.backoff):
				continue
			case <-ctx.Done():
				return nil
			}
		}
		m := toMessage(msg)
		c.logger.Debug("message received", "type", m.Type, "partition", m.Partition, "offset", m.Offset)
		if err := c.handler(ctx, m); err != nil {
			c.logger.Error("failed to process message", "partition", m.Partition, "offset", m.Offset, "error", err)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message", "partition", m.Partition, "offset", m.Offset, "error", err)
		}
	}
}

func toMessage(msg kafka.Message) Message {
	m := Message{Key: msg.Key, Value: msg.Value, Partition: msg.Partition, Offset: msg.Offset}
	for _, h := range msg.Headers {
		if h.Key == EventTypeHeader {
			m.Type = string(h.Value)
		}
	}
	return m
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
