package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/streme-fun/streme-bot/internal/observability"
)

// Outcome is the terminal result of processing one mention.
type Outcome string

const (
	OutcomeIneligible     Outcome = "ineligible"
	OutcomeLowScore       Outcome = "low_score"
	OutcomeBanned         Outcome = "banned"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeIntentNotFound Outcome = "intent_not_found"
	OutcomeNoAddress      Outcome = "no_address"
	OutcomeDeployFailed   Outcome = "deploy_failed"
	OutcomeDeployed       Outcome = "deployed"
)

// Reply texts.
const (
	TextIneligible   = "Sorry, ur not on the list. You are too early. If you are a judge or sponsor for the Agentic Ethereum Hackathon by @ETHGlobal, please contact @markcarey to be added to the allow list."
	TextBanned       = "Seems like somehow you got banned https://y.yarn.co/d9b730de-cb98-4aad-b955-c813a2f7ee5e_text.gif"
	TextNoAddress    = "Sorry, you must verify your Ethereum address to launch Streme coins."
	TextDeployFailed = "Sorry, there was an error creating your token."
	deployedSuffix   = "\n\nHere's your Streme coin:"
)

// Notice carries what a reply may need for its outcome.
type Notice struct {
	Outcome      Outcome
	CastHash     string
	AIResponse   string
	SocialScore  float64
	TokenAddress string
}

// Emitter turns outcomes into replies.
type Emitter struct {
	poster       Poster
	signerUUID   string
	frameBaseURL string
	metrics      *observability.Metrics
}

// NewEmitter creates an emitter replying as signerUUID. A nil poster makes
// Notify a no-op.
func NewEmitter(poster Poster, signerUUID, frameBaseURL string, metrics *observability.Metrics) *Emitter {
	return &Emitter{
		poster:       poster,
		signerUUID:   signerUUID,
		frameBaseURL: strings.TrimRight(frameBaseURL, "/"),
		metrics:      metrics,
	}
}

// Compose builds the reply for n. It returns false for outcomes that are
// answered with silence.
func (e *Emitter) Compose(n Notice) (Cast, bool) {
	c := Cast{Parent: n.CastHash, SignerUUID: e.signerUUID}
	switch n.Outcome {
	case OutcomeIneligible:
		c.Text = TextIneligible
	case OutcomeLowScore:
		c.Text = fmt.Sprintf("Sorry, you do not qualify to deploy Streme coins. Your Neynar score of %s is too low.",
			strconv.FormatFloat(n.SocialScore, 'f', -1, 64))
	case OutcomeBanned:
		c.Text = TextBanned
	case OutcomeIntentNotFound:
		c.Text = n.AIResponse
	case OutcomeNoAddress:
		c.Text = TextNoAddress
	case OutcomeDeployFailed:
		c.Text = TextDeployFailed
	case OutcomeDeployed:
		c.Text = n.AIResponse + deployedSuffix
		c.Embeds = []CastEmbed{{URL: e.FrameURL(n.TokenAddress)}}
	default:
		return Cast{}, false
	}
	return c, true
}

// FrameURL is the frame embedded in the success reply for a token.
func (e *Emitter) FrameURL(tokenAddress string) string {
	return e.frameBaseURL + "/token/" + tokenAddress + "/v1frame"
}

// Notify posts the reply for n. Failures are logged and counted, never
// returned.
func (e *Emitter) Notify(ctx context.Context, n Notice) {
	c, ok := e.Compose(n)
	if !ok || e.poster == nil {
		return
	}
	if c.Text == "" {
		log.Warn().Str("cast_hash", n.CastHash).Str("outcome", string(n.Outcome)).Msg("notify: empty reply skipped")
		return
	}

	res, err := e.poster.PostCast(ctx, c)
	if err != nil {
		log.Error().Err(err).Str("cast_hash", n.CastHash).Str("outcome", string(n.Outcome)).Msg("notify: reply failed")
		if e.metrics != nil {
			e.metrics.NotificationFailures.WithLabelValues(string(n.Outcome)).Inc()
		}
		return
	}

	if e.metrics != nil {
		e.metrics.NotificationsSent.WithLabelValues(string(n.Outcome)).Inc()
	}
	log.Info().
		Str("cast_hash", n.CastHash).
		Str("outcome", string(n.Outcome)).
		Str("reply_hash", res.Cast.Hash).
		Msg("notify: replied")
}
