package bus

import (
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is stamped on every event the bot publishes.
const SchemaVersion = "1.0.0"

// BaseEvent contains fields common to all events.
type BaseEvent struct {
	EventID       string    `json:"event_id"`
	Timestamp     time.Time `json:"ts"`
	SchemaVersion string    `json:"schema_version"`
	Producer      string    `json:"producer"`
	TraceID       string    `json:"trace_id,omitempty"`
}

// NewBaseEvent creates a BaseEvent with a fresh event id. traceID links the
// event to one pipeline invocation.
func NewBaseEvent(producer, traceID string) BaseEvent {
	return BaseEvent{
		EventID:       uuid.New().String(),
		Timestamp:     time.Now(),
		SchemaVersion: SchemaVersion,
		Producer:      producer,
		TraceID:       traceID,
	}
}

// OutcomeEvent is published once per processed mention.
type OutcomeEvent struct {
	BaseEvent
	CastHash     string `json:"cast_hash"`
	FID          int64  `json:"fid"`
	Username     string `json:"username,omitempty"`
	Outcome      string `json:"outcome"`
	Status       string `json:"status"` // processed|error
	Reason       string `json:"reason,omitempty"`
	Name         string `json:"name,omitempty"`
	Symbol       string `json:"symbol,omitempty"`
	TokenAddress string `json:"token_address,omitempty"`
	TxHash       string `json:"tx_hash,omitempty"`
	BlockNumber  uint64 `json:"block_number,omitempty"`
	ChainID      int64  `json:"chain_id"`
	Attempts     int    `json:"attempts,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
}

// Deployed reports whether the event describes a mined deployment.
func (e OutcomeEvent) Deployed() bool {
	return e.TxHash != ""
}
