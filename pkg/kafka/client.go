package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"
)

// Well-known topic names.
const (
	TopicSession       = "campus.session"
	TopicNotifications = "campus.notifications"
)

const ensureAttempts = 20

// Client publishes JSON messages to Kafka.
type Client struct {
	brokers []string
	writer  *kafkago.Writer
}

// NewClient returns a Client for the given brokers. Writes are batched in
// the background; delivery errors are logged.
func NewClient(brokers []string) *Client {
	return &Client{
		brokers: brokers,
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			Balancer:     &kafkago.Hash{},
			Async:        true,
			BatchTimeout: 50 * time.Millisecond,
			Completion: func(msgs []kafkago.Message, err error) {
				if err != nil {
					log.Warn().Err(err).Int("messages", len(msgs)).Msg("[kafka] delivery failed")
				}
			},
		},
	}
}

// EnsureTopics creates topics if they don't already exist (with retry).
func (c *Client) EnsureTopics(ctx context.Context, topics ...string) error {
	if len(c.brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}
	for attempt := 1; attempt <= ensureAttempts; attempt++ {
		conn, err := kafkago.DialContext(ctx, "tcp", c.brokers[0])
		if err != nil {
			log.Info().Msgf("[kafka] not ready, retrying in 3s... (%d/%d)", attempt, ensureAttempts)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
			continue
		}

		configs := make([]kafkago.TopicConfig, len(topics))
		for i, t := range topics {
			configs[i] = kafkago.TopicConfig{
				Topic:             t,
				NumPartitions:     3,
				ReplicationFactor: 1,
			}
		}

		err = conn.CreateTopics(configs...)
		conn.Close()
		if err != nil {
			log.Debug().Err(err).Msg("[kafka] topic creation returned (may already exist)")
		}
		log.Info().Strs("topics", topics).Msg("[kafka] topics ensured")
		return nil
	}
	return fmt.Errorf("kafka: could not connect after %d attempts", ensureAttempts)
}

// Publish queues a JSON-serialised message for topic.
func (c *Client) Publish(ctx context.Context, topic, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.writer.WriteMessages(ctx, kafkago.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	})
}

// Close flushes pending messages.
func (c *Client) Close() error { return c.writer.Close() }
