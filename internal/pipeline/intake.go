package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/streme-fun/streme-bot/internal/bus"
	"github.com/streme-fun/streme-bot/internal/mention"
	"github.com/streme-fun/streme-bot/internal/observability"
	"github.com/streme-fun/streme-bot/internal/quality"
)

// LagRecorder samples the delivery lag of consumed mentions.
type LagRecorder interface {
	Record(feed string, eventTime time.Time)
}

// NewIntakeHandler adapts p to a bus consumer. Undecodable payloads are
// logged and skipped so they are committed rather than redelivered.
// metrics and lag may be nil.
func NewIntakeHandler(p *Processor, metrics *observability.Metrics, lag LagRecorder) bus.MessageHandler {
	return func(ctx context.Context, msg bus.Message) error {
		if metrics != nil {
			metrics.MentionsConsumed.Inc()
		}
		if lag != nil {
			lag.Record(quality.FeedMentions, msg.Timestamp)
		}
		m, err := mention.Decode(msg.Value)
		if err != nil {
			if metrics != nil {
				metrics.MentionsUndecoded.Inc()
			}
			log.Warn().Err(err).Str("topic", msg.Topic).Str("key", msg.Key).Msg("pipeline: skipping undecodable mention")
			return nil
		}
		_, err = p.Process(ctx, m)
		return err
	}
}
