// Package quality tracks the delivery lag and staleness of inbound event
// feeds: mentions from the bus and staking events from the chain watcher.
package quality

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/streme-fun/streme-bot/internal/observability"
)

// Feed names.
const (
	FeedMentions      = "mentions"
	FeedStakingEvents = "staking_events"
)

// FeedStats is the delivery record of one feed.
type FeedStats struct {
	Feed          string    `json:"feed"`
	LastEventTime time.Time `json:"last_event_time"`
	EventCount    int64     `json:"event_count"`
	LastLagMs     float64   `json:"last_lag_ms"`
	MaxLagMs      float64   `json:"max_lag_ms"`
	AvgLagMs      float64   `json:"avg_lag_ms"`
	StartTime     time.Time `json:"start_time"`

	totalLagMs float64
}

// Alert is a lag or staleness warning for one feed.
type Alert struct {
	Level   string    `json:"level"` // warn|critical
	Feed    string    `json:"feed"`
	Message string    `json:"message"`
	Ts      time.Time `json:"ts"`
}

// Monitor tracks every feed that reports to it.
type Monitor struct {
	mu           sync.RWMutex
	stats        map[string]*FeedStats
	alertCh      chan Alert
	lagThreshold time.Duration
	staleAfter   map[string]time.Duration
	now          func() time.Time
}

// NewMonitor creates a monitor warning when an event arrives more than
// lagThreshold after it was produced. Zero disables the lag alert.
func NewMonitor(lagThreshold time.Duration) *Monitor {
	return &Monitor{
		stats:        make(map[string]*FeedStats),
		alertCh:      make(chan Alert, 256),
		lagThreshold: lagThreshold,
		staleAfter:   make(map[string]time.Duration),
		now:          time.Now,
	}
}

// ExpectEvery marks feed stale when no event arrives within d.
func (m *Monitor) ExpectEvery(feed string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staleAfter[feed] = d
}

// Caller must hold m.mu.
func (m *Monitor) getOrCreate(feed string) *FeedStats {
	stats, ok := m.stats[feed]
	if !ok {
		stats = &FeedStats{Feed: feed, StartTime: m.now()}
		m.stats[feed] = stats
	}
	return stats
}

// Record notes an event of feed produced at eventTime. A zero eventTime
// counts the event without a lag sample.
func (m *Monitor) Record(feed string, eventTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	stats := m.getOrCreate(feed)
	stats.LastEventTime = now
	stats.EventCount++
	if eventTime.IsZero() {
		return
	}

	lagMs := float64(now.Sub(eventTime).Milliseconds())
	if lagMs < 0 {
		lagMs = 0
	}
	stats.LastLagMs = lagMs
	stats.totalLagMs += lagMs
	stats.AvgLagMs = stats.totalLagMs / float64(stats.EventCount)
	if lagMs > stats.MaxLagMs {
		stats.MaxLagMs = lagMs
	}

	if m.lagThreshold > 0 && lagMs > float64(m.lagThreshold.Milliseconds()) {
		m.emitAlert(Alert{
			Level:   "warn",
			Feed:    feed,
			Message: fmt.Sprintf("feed lag exceeds threshold: %.0fms > %dms", lagMs, m.lagThreshold.Milliseconds()),
			Ts:      now,
		})
	}
}

// Alerts returns the alert channel.
func (m *Monitor) Alerts() <-chan Alert {
	return m.alertCh
}

// Snapshot returns a copy of every feed's stats.
func (m *Monitor) Snapshot() map[string]FeedStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := make(map[string]FeedStats, len(m.stats))
	for k, v := range m.stats {
		snap[k] = *v
	}
	return snap
}

// Start checks for stale feeds every interval and logs alerts until ctx is
// cancelled.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("lag_threshold", m.lagThreshold).Msg("quality monitor started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("quality monitor stopped")
			return
		case <-ticker.C:
			m.checkStaleFeeds()
		case a := <-m.alertCh:
			ev := log.Warn()
			if a.Level == "critical" {
				ev = log.Error()
			}
			ev.Str("feed", a.Feed).Msg(a.Message)
		}
	}
}

// stale reports whether feed has gone quiet for longer than expected.
// Caller must hold m.mu.
func (m *Monitor) stale(feed string, now time.Time) (time.Duration, bool) {
	limit := m.staleAfter[feed]
	s, ok := m.stats[feed]
	if limit <= 0 || !ok || s.LastEventTime.IsZero() {
		return 0, false
	}
	quiet := now.Sub(s.LastEventTime)
	return quiet, quiet > limit
}

func (m *Monitor) checkStaleFeeds() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	for feed := range m.staleAfter {
		if quiet, stale := m.stale(feed, now); stale {
			m.emitAlert(Alert{
				Level:   "critical",
				Feed:    feed,
				Message: fmt.Sprintf("feed stale for >%s (last event %.0fs ago)", m.staleAfter[feed], quiet.Seconds()),
				Ts:      now,
			})
		}
	}
}

// HealthCheck reports feed as degraded while its last lag sample exceeds
// the threshold or it has gone stale.
func (m *Monitor) HealthCheck(feed string) observability.HealthCheck {
	return func(context.Context) observability.ComponentHealth {
		m.mu.RLock()
		defer m.mu.RUnlock()

		h := observability.ComponentHealth{Status: observability.StatusHealthy}
		s, ok := m.stats[feed]
		if !ok {
			h.Message = "no events yet"
			return h
		}
		h.Details = map[string]any{
			"events":      s.EventCount,
			"last_lag_ms": s.LastLagMs,
			"max_lag_ms":  s.MaxLagMs,
		}
		if m.lagThreshold > 0 && s.LastLagMs > float64(m.lagThreshold.Milliseconds()) {
			h.Status = observability.StatusDegraded
			h.Message = fmt.Sprintf("lag %.0fms", s.LastLagMs)
		}
		if quiet, stale := m.stale(feed, m.now()); stale {
			h.Status = observability.StatusDegraded
			h.Message = fmt.Sprintf("no events for %s", quiet.Round(time.Second))
		}
		return h
	}
}

// emitAlert sends an alert without blocking; a full channel drops it.
func (m *Monitor) emitAlert(alert Alert) {
	select {
	case m.alertCh <- alert:
	default:
		log.Warn().
			Str("feed", alert.Feed).
			Str("level", alert.Level).
			Str("message", alert.Message).
			Msg("quality: alert channel full, dropping alert")
	}
}
