// Package pipeline drives one mention through the gate, intent extraction,
// creator resolution, deployment, recording and reply steps.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/streme-fun/streme-bot/internal/bus"
	"github.com/streme-fun/streme-bot/internal/config"
	"github.com/streme-fun/streme-bot/internal/deploy"
	"github.com/streme-fun/streme-bot/internal/gate"
	"github.com/streme-fun/streme-bot/internal/intent"
	"github.com/streme-fun/streme-bot/internal/mention"
	"github.com/streme-fun/streme-bot/internal/notify"
	"github.com/streme-fun/streme-bot/internal/observability"
	"github.com/streme-fun/streme-bot/internal/storage"
)

// Deployer runs a deployment to a terminal state.
type Deployer interface {
	Deploy(ctx context.Context, req deploy.Request) (*deploy.Result, error)
}

// Notifier posts the reply for an outcome. It never fails.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notice)
}

// AuditRecorder keeps the audit trail of outcomes.
type AuditRecorder interface {
	RecordOutcome(ctx context.Context, ev bus.OutcomeEvent)
}

// AnalyticsRecorder buffers outcomes for analytics.
type AnalyticsRecorder interface {
	Record(ctx context.Context, ev bus.OutcomeEvent) error
}

// Result is the structured outcome handed back to the invoking layer.
type Result struct {
	Status       string  `json:"status"`
	Reason       string  `json:"reason,omitempty"`
	Outcome      Outcome `json:"outcome"`
	TraceID      string  `json:"trace_id"`
	Name         string  `json:"name,omitempty"`
	Symbol       string  `json:"symbol,omitempty"`
	TokenAddress string  `json:"token_address,omitempty"`
	TxHash       string  `json:"tx_hash,omitempty"`
	BlockNumber  uint64  `json:"block_number,omitempty"`
	Attempts     int     `json:"attempts,omitempty"`

	// Cause is the taxonomy error behind a rejection.
	Cause error `json:"-"`
}

// Deps are the collaborators of a Processor. Gate, Extractor, Deployer and
// Store are required; the rest may be nil.
type Deps struct {
	Gate      *gate.Gate
	Extractor *intent.Extractor
	Deployer  Deployer
	Store     storage.TokenStore
	Notifier  Notifier

	Events        bus.Producer
	OutcomesTopic string
	Audit         AuditRecorder
	Analytics     AnalyticsRecorder
	Metrics       *observability.Metrics
}

// Processor runs pipeline invocations. It is safe for concurrent use;
// invocations for distinct mentions proceed independently.
type Processor struct {
	network  config.Network
	season   int
	producer string
	deps     Deps
	now      func() time.Time
}

// NewProcessor creates a processor deploying on net under reward season
// season. producer names this instance on published events.
func NewProcessor(net config.Network, season int, producer string, deps Deps) *Processor {
	if deps.OutcomesTopic == "" {
		deps.OutcomesTopic = bus.TopicNaming{}.Outcomes()
	}
	return &Processor{
		network:  net,
		season:   season,
		producer: producer,
		deps:     deps,
		now:      time.Now,
	}
}

// invocation holds the per-mention values the reply and the outcome event
// need.
type invocation struct {
	mention *mention.Mention
	traceID string
	logger  zerolog.Logger
	notice  notify.Notice
}

// Process runs m through the pipeline. Expected rejections are reported in
// the Result only. The error is non-nil for unexpected faults: storage
// failures, malformed AI replies, and failed or unconfirmed deployments. The
// Result is valid in every case.
func (p *Processor) Process(ctx context.Context, m *mention.Mention) (Result, error) {
	start := p.now()
	inv := &invocation{
		mention: m,
		traceID: uuid.NewString(),
	}
	inv.logger = log.With().Str("cast_hash", m.Hash).Str("trace_id", inv.traceID).Int64("fid", m.Author.FID).Logger()
	inv.notice = notify.Notice{CastHash: m.Hash}

	res, err := p.run(ctx, inv)
	res.TraceID = inv.traceID
	inv.notice.Outcome = res.Outcome

	if p.deps.Notifier != nil {
		p.deps.Notifier.Notify(ctx, inv.notice)
	}
	p.publish(ctx, inv, res, p.now().Sub(start))

	ev := inv.logger.Info()
	if err != nil {
		ev = inv.logger.Error().Err(err)
	}
	ev.Str("outcome", string(res.Outcome)).
		Str("status", res.Status).
		Str("reason", res.Reason).
		Dur("elapsed", p.now().Sub(start)).
		Msg("pipeline: mention processed")

	if p.deps.Metrics != nil {
		p.deps.Metrics.MentionsProcessed.WithLabelValues(string(res.Outcome)).Inc()
		p.deps.Metrics.PipelineDuration.Observe(p.now().Sub(start).Seconds())
	}
	return res, err
}

func (p *Processor) run(ctx context.Context, inv *invocation) (Result, error) {
	m := inv.mention

	if err := p.deps.Gate.Check(ctx, m); err != nil {
		if res, ok := gateResult(err); ok {
			var low *gate.LowScoreError
			if errors.As(err, &low) {
				inv.notice.SocialScore = low.Score
			}
			return res, nil
		}
		return p.fault("gate", err), err
	}

	// The claim is held from here on. Every exit before a transaction is
	// broadcast gives it back.
	claimed := true
	defer func() {
		if claimed {
			p.deps.Gate.Release(context.WithoutCancel(ctx), m.Hash)
		}
	}()

	in, err := p.extract(ctx, inv)
	if err != nil {
		return p.fault("intent", err), err
	}
	inv.notice.AIResponse = in.Response
	if !in.Deploy() {
		return rejection(notify.OutcomeIntentNotFound, ReasonIntentNotFound, ErrIntentNotFound), nil
	}

	creator, ok := mention.VerifiedAddress(m.Author)
	if !ok || !common.IsHexAddress(creator) {
		return rejection(notify.OutcomeNoAddress, ReasonNoAddress, ErrCreatorAddressMissing), nil
	}

	dres, err := p.deps.Deployer.Deploy(ctx, deploy.Request{
		Name:     in.NameOrEmpty(),
		Symbol:   in.SymbolOrEmpty(),
		Deployer: common.HexToAddress(creator),
		Mention:  m,
	})
	if dres != nil {
		// A transaction reached the chain; the cast must never deploy again.
		claimed = false
	}
	if errors.Is(err, deploy.ErrUnconfirmed) {
		p.countFault("deploy_unconfirmed")
		return Result{
			Status:       StatusError,
			Reason:       ReasonUnconfirmed,
			Outcome:      OutcomeUnconfirmed,
			Name:         in.NameOrEmpty(),
			Symbol:       in.SymbolOrEmpty(),
			TokenAddress: dres.TokenAddress,
			TxHash:       dres.TxHash,
			Attempts:     dres.Attempts,
			Cause:        err,
		}, err
	}
	if err != nil {
		res := rejection(notify.OutcomeDeployFailed, ReasonDeployFailed, ErrDeploymentFailed)
		res.Name, res.Symbol = in.NameOrEmpty(), in.SymbolOrEmpty()
		if dres != nil {
			res.TxHash, res.BlockNumber, res.Attempts = dres.TxHash, dres.BlockNumber, dres.Attempts
		}
		p.countFault("deploy")
		return res, fmt.Errorf("%w: %w", ErrDeploymentFailed, err)
	}

	res := Result{
		Status:       StatusProcessed,
		Outcome:      notify.OutcomeDeployed,
		Name:         in.NameOrEmpty(),
		Symbol:       in.SymbolOrEmpty(),
		TokenAddress: dres.TokenAddress,
		TxHash:       dres.TxHash,
		BlockNumber:  dres.BlockNumber,
		Attempts:     dres.Attempts,
	}
	inv.notice.TokenAddress = dres.TokenAddress

	record := BuildRecord(p.network, p.season, m, dres, p.now())
	if err := p.deps.Store.Insert(ctx, record); err != nil {
		// The token exists on chain regardless; the reply still goes out.
		p.countFault("record")
		return res, fmt.Errorf("pipeline: record token %s: %w", record.ContractAddress, err)
	}
	inv.logger.Info().
		Str("token", record.ContractAddress).
		Str("type", record.Type).
		Msg("pipeline: token recorded")
	return res, nil
}

func (p *Processor) extract(ctx context.Context, inv *invocation) (intent.Intent, error) {
	start := time.Now()
	in, _, err := p.deps.Extractor.Extract(ctx, inv.mention)
	if p.deps.Metrics != nil {
		p.deps.Metrics.AILatency.Observe(time.Since(start).Seconds())
		if err != nil {
			p.deps.Metrics.AIErrors.Inc()
		}
	}
	return in, err
}

func (p *Processor) fault(stage string, err error) Result {
	p.countFault(stage)
	return Result{Status: StatusError, Reason: ReasonFault, Outcome: OutcomeFault, Cause: err}
}

func (p *Processor) countFault(stage string) {
	if p.deps.Metrics != nil {
		p.deps.Metrics.PipelineFaults.WithLabelValues(stage).Inc()
	}
}

// publish fans the outcome out to the event topic, the audit trail and
// analytics. Failures are logged only.
func (p *Processor) publish(ctx context.Context, inv *invocation, res Result, elapsed time.Duration) {
	m := inv.mention
	ev := bus.OutcomeEvent{
		BaseEvent:    bus.NewBaseEvent(p.producer, inv.traceID),
		CastHash:     m.Hash,
		FID:          m.Author.FID,
		Username:     m.Author.Username,
		Outcome:      string(res.Outcome),
		Status:       res.Status,
		Reason:       res.Reason,
		Name:         res.Name,
		Symbol:       res.Symbol,
		TokenAddress: res.TokenAddress,
		TxHash:       res.TxHash,
		BlockNumber:  res.BlockNumber,
		ChainID:      p.network.ChainID,
		Attempts:     res.Attempts,
		DurationMs:   elapsed.Milliseconds(),
	}

	if p.deps.Events != nil {
		if err := p.deps.Events.PublishJSON(ctx, p.deps.OutcomesTopic, m.Hash, ev); err != nil {
			inv.logger.Warn().Err(err).Str("topic", p.deps.OutcomesTopic).Msg("pipeline: publish outcome failed")
		}
	}
	if p.deps.Audit != nil {
		p.deps.Audit.RecordOutcome(ctx, ev)
	}
	if p.deps.Analytics != nil {
		if err := p.deps.Analytics.Record(ctx, ev); err != nil {
			inv.logger.Warn().Err(err).Msg("pipeline: analytics record failed")
		}
	}
}
