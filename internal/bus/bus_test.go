package bus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestStubProducer_PublishJSON(t *testing.T) {
	p := NewStubProducer()
	ev := OutcomeEvent{
		BaseEvent: NewBaseEvent("test", "trace-1"),
		CastHash:  "0xcast",
		Outcome:   "deployed",
		Status:    "processed",
		TxHash:    "0xtx",
	}
	require.NoError(t, p.PublishJSON(context.Background(), Topics.Outcomes(), "0xcast", ev))
	require.NoError(t, p.Publish(context.Background(), Message{Topic: Topics.AuditDeployments(), Key: "k"}))

	out := p.Messages(Topics.Outcomes())
	require.Len(t, out, 1)
	assert.Equal(t, "0xcast", out[0].Key)

	var got OutcomeEvent
	require.NoError(t, json.Unmarshal(out[0].Value, &got))
	assert.Equal(t, "trace-1", got.TraceID)
	assert.Equal(t, SchemaVersion, got.SchemaVersion)
	assert.True(t, got.Deployed())
	assert.NotEmpty(t, got.EventID)

	assert.Len(t, p.Messages(""), 2)
}

func TestStubProducer_Error(t *testing.T) {
	p := NewStubProducer()
	p.SetError(errors.New("broker down"))
	assert.Error(t, p.PublishJSON(context.Background(), "t", "k", map[string]int{"a": 1}))
	assert.Empty(t, p.Messages(""))
}

func TestKafkaProducer_ToRecord(t *testing.T) {
	p := &KafkaProducer{defaultHeaders: map[string]string{"producer": "bot", "schema_version": SchemaVersion}}
	r := p.toRecord(Message{Topic: "t", Key: "k", Value: []byte("v"), Headers: map[string]string{"producer": "override"}})

	headers := map[string]string{}
	for _, h := range r.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "override", headers["producer"])
	assert.Equal(t, SchemaVersion, headers["schema_version"])
	assert.NotEmpty(t, headers["event_id"])
	assert.Equal(t, []byte("k"), r.Key)
	assert.False(t, r.Timestamp.IsZero())
}

func TestRecordToMessage(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	msg := recordToMessage(&kgo.Record{
		Topic:     Topics.Mentions(),
		Key:       []byte("0xcast"),
		Value:     []byte(`{"hash":"0xcast"}`),
		Headers:   []kgo.RecordHeader{{Key: "event_id", Value: []byte("e1")}},
		Timestamp: ts,
	})
	assert.Equal(t, "streme.mentions", msg.Topic)
	assert.Equal(t, "0xcast", msg.Key)
	assert.Equal(t, "e1", msg.Headers["event_id"])
	assert.Equal(t, ts, msg.Timestamp)
}

func TestStubConsumer(t *testing.T) {
	c := NewStubConsumer(Message{Key: "a"}, Message{Key: "b"})
	ctx, cancel := context.WithCancel(context.Background())

	var keys []string
	done := make(chan error, 1)
	go func() {
		done <- c.Consume(ctx, func(_ context.Context, m Message) error {
			keys = append(keys, m.Key)
			if m.Key == "b" {
				cancel()
			}
			return errors.New("ignored")
		})
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("consume did not return")
	}
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestTopicRetention(t *testing.T) {
	for _, topic := range []string{Topics.Mentions(), Topics.Outcomes(), Topics.AuditDeployments()} {
		assert.Contains(t, TopicRetention, topic)
	}
}
