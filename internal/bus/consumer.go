package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"
)

// MessageHandler processes a consumed message.
// Return error to indicate processing failure (the message will still be committed).
type MessageHandler func(ctx context.Context, msg Message) error

// Consumer reads messages from Kafka/RedPanda topics.
type Consumer interface {
	// Consume starts the poll loop. Blocks until ctx is cancelled.
	Consume(ctx context.Context, handler MessageHandler) error
	// Close shuts down the consumer and commits final offsets.
	Close()
}

// KafkaConsumer is a consumer-group member backed by franz-go. Records of
// one poll are handled by up to workers goroutines; the next poll starts when
// the whole batch is done, so auto-committed offsets only cover handled
// records.
type KafkaConsumer struct {
	client  *kgo.Client
	groupID string
	topics  []string
	workers int
	mu      sync.Mutex
	closed  bool
}

// NewConsumer creates a consumer group member subscribed to topics. New
// groups start at the earliest offset.
func NewConsumer(brokers []string, groupID string, topics []string, workers int) (*KafkaConsumer, error) {
	if len(topics) == 0 {
		return nil, fmt.Errorf("at least one topic is required")
	}
	if workers < 1 {
		workers = 1
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(groupID),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topics...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.BlockRebalanceOnPoll(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	log.Info().
		Strs("brokers", brokers).
		Str("group_id", groupID).
		Strs("topics", topics).
		Int("workers", workers).
		Msg("kafka consumer created")

	return &KafkaConsumer{client: client, groupID: groupID, topics: topics, workers: workers}, nil
}

// Consume polls until ctx is cancelled. Handler errors are logged and do not
// stop consumption.
func (c *KafkaConsumer) Consume(ctx context.Context, handler MessageHandler) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return fmt.Errorf("consumer is closed")
	}

	log.Info().Strs("topics", c.topics).Str("group", c.groupID).Msg("starting consumer loop")

	for {
		fetches := c.client.PollFetches(ctx)
		if ctx.Err() != nil {
			c.client.AllowRebalance()
			return ctx.Err()
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			log.Error().Err(err).Str("topic", topic).Int32("partition", partition).Msg("fetch error")
		})

		var g errgroup.Group
		g.SetLimit(c.workers)
		fetches.EachRecord(func(record *kgo.Record) {
			msg := recordToMessage(record)
			g.Go(func() error {
				if err := handler(ctx, msg); err != nil {
					log.Error().Err(err).
						Str("topic", record.Topic).
						Int32("partition", record.Partition).
						Int64("offset", record.Offset).
						Msg("message handler error")
				}
				return nil
			})
		})
		_ = g.Wait()

		c.client.AllowRebalance()
	}
}

// Ping checks broker connectivity.
func (c *KafkaConsumer) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}

// Close shuts down the consumer, committing final offsets.
func (c *KafkaConsumer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.client.Close()
	log.Info().Str("group", c.groupID).Msg("kafka consumer closed")
}

func recordToMessage(r *kgo.Record) Message {
	headers := make(map[string]string, len(r.Headers))
	for _, h := range r.Headers {
		headers[h.Key] = string(h.Value)
	}
	return Message{
		Topic:     r.Topic,
		Key:       string(r.Key),
		Value:     r.Value,
		Headers:   headers,
		Timestamp: r.Timestamp,
	}
}

// StubConsumer replays a fixed list of messages, then blocks until ctx is
// cancelled.
type StubConsumer struct {
	messages []Message
}

// NewStubConsumer creates a consumer that delivers messages in order.
func NewStubConsumer(messages ...Message) *StubConsumer {
	return &StubConsumer{messages: messages}
}

func (c *StubConsumer) Consume(ctx context.Context, handler MessageHandler) error {
	for _, m := range c.messages {
		if err := handler(ctx, m); err != nil {
			log.Error().Err(err).Str("topic", m.Topic).Msg("message handler error")
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func (c *StubConsumer) Close() {}

// TopicNaming provides canonical topic names.
// Pattern: <domain>.<entity>
type TopicNaming struct{}

func (TopicNaming) Mentions() string         { return "streme.mentions" }
func (TopicNaming) Outcomes() string         { return "streme.outcomes" }
func (TopicNaming) AuditDeployments() string { return "audit.deployments" }

// Topics is the global topic naming instance.
var Topics = TopicNaming{}

// TopicRetention maps topics to their retention in hours.
var TopicRetention = map[string]int{
	"streme.mentions":   168,
	"streme.outcomes":   2160,
	"audit.deployments": 8760,
}
