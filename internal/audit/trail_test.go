package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streme-fun/streme-bot/internal/bus"
)

func outcome(cast, result, tx string) bus.OutcomeEvent {
	return bus.OutcomeEvent{
		BaseEvent:    bus.NewBaseEvent("test", "trace-"+cast),
		CastHash:     cast,
		FID:          42,
		Outcome:      result,
		TokenAddress: "0xtoken",
		TxHash:       tx,
	}
}

func TestTrail_RecordOutcome(t *testing.T) {
	p := bus.NewStubProducer()
	trail := NewTrail(p, "", 10)

	trail.RecordOutcome(context.Background(), outcome("0xa", "banned", ""))
	trail.RecordOutcome(context.Background(), outcome("0xb", "deployed", "0xtx"))

	assert.Equal(t, 3, trail.Len())
	require.Len(t, trail.Query("0xa"), 1)

	entries := trail.Query("0xb")
	require.Len(t, entries, 2)
	assert.Equal(t, EventOutcome, entries[0].EventType)
	assert.Equal(t, EventDeploy, entries[1].EventType)
	assert.Equal(t, "deployed", entries[1].Decision)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(entries[1].Payload), &payload))
	assert.Equal(t, "0xtoken", payload["token"])
	assert.Equal(t, float64(42), payload["creator"])

	msgs := p.Messages(Topic)
	require.Len(t, msgs, 3)
	assert.Equal(t, "0xb", msgs[2].Key)
}

func TestTrail_BufferEviction(t *testing.T) {
	trail := NewTrail(nil, "custom", 2)
	for _, c := range []string{"0x1", "0x2", "0x3"} {
		trail.RecordOutcome(context.Background(), outcome(c, "ineligible", ""))
	}
	assert.Equal(t, 2, trail.Len())
	assert.Empty(t, trail.Query("0x1"))
	assert.Len(t, trail.Query("0x3"), 1)
}

func TestTrail_PublishFailureIsLogged(t *testing.T) {
	p := bus.NewStubProducer()
	p.SetError(errors.New("broker down"))
	trail := NewTrail(p, "", 5)

	assert.NotPanics(t, func() {
		trail.RecordOutcome(context.Background(), outcome("0xa", "deploy_failed", ""))
	})
	assert.Equal(t, 1, trail.Len())
}
