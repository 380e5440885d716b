package quality

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streme-fun/streme-bot/internal/observability"
)

// fixedClock returns a monitor whose clock reads *now.
func fixedClock(lag time.Duration, now *time.Time) *Monitor {
	m := NewMonitor(lag)
	m.now = func() time.Time { return *now }
	return m
}

func TestRecord_UpdatesStats(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := fixedClock(5*time.Second, &now)

	m.Record(FeedMentions, now.Add(-100*time.Millisecond))
	m.Record(FeedMentions, now.Add(-300*time.Millisecond))
	m.Record(FeedMentions, time.Time{})

	snap := m.Snapshot()
	stats, ok := snap[FeedMentions]
	require.True(t, ok)
	assert.Equal(t, FeedMentions, stats.Feed)
	assert.Equal(t, int64(3), stats.EventCount)
	assert.Equal(t, 300.0, stats.MaxLagMs)
	assert.Equal(t, 300.0, stats.LastLagMs)
	assert.Equal(t, now, stats.LastEventTime)
}

func TestRecord_DetectsLag(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := fixedClock(100*time.Millisecond, &now)

	m.Record(FeedMentions, now.Add(-200*time.Millisecond))

	select {
	case alert := <-m.Alerts():
		assert.Equal(t, "warn", alert.Level)
		assert.Equal(t, FeedMentions, alert.Feed)
		assert.Contains(t, alert.Message, "feed lag exceeds threshold")
	default:
		t.Fatal("expected a lag alert")
	}
}

func TestRecord_NoAlertUnderThreshold(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := fixedClock(5*time.Second, &now)

	m.Record(FeedMentions, now.Add(-time.Second))
	m.Record(FeedStakingEvents, time.Time{})

	select {
	case alert := <-m.Alerts():
		t.Fatalf("unexpected alert: %+v", alert)
	default:
	}
}

func TestCheckStaleFeeds(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := fixedClock(0, &now)
	m.ExpectEvery(FeedMentions, time.Minute)

	// Never-seen feeds are not stale.
	m.checkStaleFeeds()
	assert.Len(t, m.Alerts(), 0)

	m.Record(FeedMentions, now)
	now = now.Add(2 * time.Minute)
	m.checkStaleFeeds()

	require.Len(t, m.Alerts(), 1)
	alert := <-m.Alerts()
	assert.Equal(t, "critical", alert.Level)
	assert.Contains(t, alert.Message, "feed stale")
}

func TestHealthCheck(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := fixedClock(time.Second, &now)
	m.ExpectEvery(FeedMentions, time.Hour)
	check := m.HealthCheck(FeedMentions)
	ctx := context.Background()

	h := check(ctx)
	assert.Equal(t, observability.StatusHealthy, h.Status)
	assert.Equal(t, "no events yet", h.Message)

	m.Record(FeedMentions, now.Add(-5*time.Second))
	h = check(ctx)
	assert.Equal(t, observability.StatusDegraded, h.Status)
	assert.Equal(t, "lag 5000ms", h.Message)

	m.Record(FeedMentions, now)
	assert.Equal(t, observability.StatusHealthy, check(ctx).Status)

	now = now.Add(2 * time.Hour)
	h = check(ctx)
	assert.Equal(t, observability.StatusDegraded, h.Status)
	assert.Equal(t, "no events for 2h0m0s", h.Message)
}

func TestStart_StopsOnCancel(t *testing.T) {
	m := NewMonitor(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	m.Record(FeedMentions, time.Now().Add(-time.Second))
	require.Eventually(t, func() bool { return len(m.Alerts()) == 0 }, time.Second, 5*time.Millisecond, "alerts are drained")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
