package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streme-fun/streme-bot/internal/bus"
	"github.com/streme-fun/streme-bot/internal/quality"
)

func TestIntakeHandler(t *testing.T) {
	h := newHarness(t, allowAll())
	lag := quality.NewMonitor(time.Minute)
	handle := NewIntakeHandler(h.proc, h.metrics, lag)
	ctx := context.Background()

	payload, err := json.Marshal(testMention("0xcast"))
	require.NoError(t, err)

	require.NoError(t, handle(ctx, bus.Message{Topic: "streme.mentions", Key: "0xcast", Value: payload, Timestamp: time.Now()}))
	require.NoError(t, handle(ctx, bus.Message{Topic: "streme.mentions", Value: []byte("{not json")}))
	require.NoError(t, handle(ctx, bus.Message{Topic: "streme.mentions", Value: []byte(`{"hash":"0xnofid"}`)}))

	assert.Equal(t, 3.0, testutil.ToFloat64(h.metrics.MentionsConsumed))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.MentionsUndecoded))
	assert.Len(t, h.chain.Deploys(), 1)
	assert.Equal(t, int64(3), lag.Snapshot()[quality.FeedMentions].EventCount)

	_, err = h.store.GetByCastHash(ctx, "0xcast")
	assert.NoError(t, err)
}
