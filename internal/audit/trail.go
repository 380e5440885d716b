// Package audit keeps an append-only trail of pipeline decisions.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/streme-fun/streme-bot/internal/bus"
)

const (
	// Topic is the Kafka/RedPanda topic for audit entries.
	Topic = "audit.deployments"

	// Entry event types.
	EventOutcome = "outcome"
	EventDeploy  = "deploy"
)

// Entry is a single audit trail entry.
type Entry struct {
	TraceID      string    `json:"trace_id"`
	EventType    string    `json:"event_type"` // outcome|deploy
	Timestamp    time.Time `json:"ts"`
	CastHash     string    `json:"cast_hash"`
	FID          int64     `json:"fid"`
	Decision     string    `json:"decision"` // the outcome
	TokenAddress string    `json:"token,omitempty"`
	Payload      string    `json:"payload"` // JSON of the full event
}

// Trail records every terminal pipeline outcome. It keeps a bounded in-memory
// buffer for querying and publishes every entry to the audit topic.
type Trail struct {
	mu       sync.Mutex
	producer bus.Producer
	topic    string
	entries  []Entry
	maxBuf   int
}

// NewTrail creates a trail publishing to topic. Once maxBuf entries are held
// the oldest is discarded. A nil producer keeps entries in memory only.
func NewTrail(producer bus.Producer, topic string, maxBuf int) *Trail {
	if maxBuf < 0 {
		maxBuf = 0
	}
	if topic == "" {
		topic = Topic
	}
	return &Trail{
		producer: producer,
		topic:    topic,
		entries:  make([]Entry, 0, maxBuf),
		maxBuf:   maxBuf,
	}
}

// RecordOutcome logs the terminal outcome of one mention. A mined
// deployment additionally gets a deploy entry linking the token to its
// creator.
func (t *Trail) RecordOutcome(ctx context.Context, ev bus.OutcomeEvent) {
	entry := Entry{
		TraceID:      ev.TraceID,
		EventType:    EventOutcome,
		Timestamp:    ev.Timestamp,
		CastHash:     ev.CastHash,
		FID:          ev.FID,
		Decision:     ev.Outcome,
		TokenAddress: ev.TokenAddress,
		Payload:      mustMarshal(ev),
	}
	t.record(ctx, entry)

	if ev.Deployed() {
		deploy := entry
		deploy.EventType = EventDeploy
		deploy.Payload = mustMarshal(map[string]any{
			"token":   ev.TokenAddress,
			"creator": ev.FID,
			"tx_hash": ev.TxHash,
		})
		t.record(ctx, deploy)
	}
}

// Query returns the buffered entries for a cast hash.
func (t *Trail) Query(castHash string) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Entry
	for _, e := range t.entries {
		if e.CastHash == castHash {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of entries in the in-memory buffer.
func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Trail) record(ctx context.Context, entry Entry) {
	t.mu.Lock()
	if t.maxBuf > 0 {
		if len(t.entries) >= t.maxBuf {
			copy(t.entries, t.entries[1:])
			t.entries[len(t.entries)-1] = entry
		} else {
			t.entries = append(t.entries, entry)
		}
	}
	t.mu.Unlock()

	if t.producer == nil {
		return
	}
	if err := t.producer.PublishJSON(ctx, t.topic, entry.CastHash, entry); err != nil {
		log.Error().Err(err).
			Str("event_type", entry.EventType).
			Str("cast_hash", entry.CastHash).
			Msg("failed to publish audit entry")
	}
}

func mustMarshal(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal audit payload")
		return "{}"
	}
	return string(data)
}
