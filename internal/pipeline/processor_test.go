package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streme-fun/streme-bot/internal/audit"
	"github.com/streme-fun/streme-bot/internal/bus"
	"github.com/streme-fun/streme-bot/internal/chain"
	"github.com/streme-fun/streme-bot/internal/config"
	"github.com/streme-fun/streme-bot/internal/deploy"
	"github.com/streme-fun/streme-bot/internal/gate"
	"github.com/streme-fun/streme-bot/internal/intent"
	"github.com/streme-fun/streme-bot/internal/mention"
	"github.com/streme-fun/streme-bot/internal/notify"
	"github.com/streme-fun/streme-bot/internal/observability"
	"github.com/streme-fun/streme-bot/internal/storage"
	"github.com/streme-fun/streme-bot/internal/storage/memory"
)

const (
	signerKey   = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	creator     = "0x00000000000000000000000000000000000000c1"
	deployReply = `{"name":"Yellow Flowers","symbol":"YELLOW","response":"Planting YELLOW now"}`
)

var predicted = common.HexToAddress("0xAbCdEf0000000000000000000000000000001234")

type recordingPoster struct {
	mu    sync.Mutex
	casts []notify.Cast
}

func (p *recordingPoster) PostCast(_ context.Context, c notify.Cast) (*notify.PostResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.casts = append(p.casts, c)
	return &notify.PostResult{Success: true}, nil
}

func (p *recordingPoster) Casts() []notify.Cast {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notify.Cast(nil), p.casts...)
}

type recordingAnalytics struct {
	mu     sync.Mutex
	events []bus.OutcomeEvent
}

func (a *recordingAnalytics) Record(_ context.Context, ev bus.OutcomeEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
	return nil
}

func testNetwork() config.Network {
	n := config.BaseSepolia()
	n.Addresses.Streme = "0x0000000000000000000000000000000000000A01"
	n.Addresses.StakingFactory = "0x0000000000000000000000000000000000000A05"
	n.Addresses.TokenFactory = "0x0000000000000000000000000000000000000A02"
	n.Addresses.PostDeployFactory = "0x0000000000000000000000000000000000000a03"
	n.Addresses.LPFactory = "0x0000000000000000000000000000000000000A04"
	return n
}

type harness struct {
	proc      *Processor
	store     *memory.Store
	chain     *chain.StubClient
	ai        *intent.StubProvider
	poster    *recordingPoster
	events    *bus.StubProducer
	trail     *audit.Trail
	analytics *recordingAnalytics
	metrics   *observability.Metrics
}

func newHarness(t *testing.T, gateCfg gate.Config, aiReplies ...string) *harness {
	t.Helper()
	if len(aiReplies) == 0 {
		aiReplies = []string{deployReply}
	}

	h := &harness{
		store:     memory.NewStore(),
		chain:     chain.NewStubClient(predicted),
		ai:        intent.NewStubProvider("stub", aiReplies...),
		poster:    &recordingPoster{},
		events:    bus.NewStubProducer(),
		analytics: &recordingAnalytics{},
		metrics:   observability.NewMetrics(prometheus.NewRegistry()),
	}
	h.trail = audit.NewTrail(h.events, "", 100)

	signers, err := deploy.NewSignerQueue([]string{signerKey})
	require.NoError(t, err)
	retry := deploy.DefaultRetryPolicy().WithSleep(func(context.Context, time.Duration) error { return nil })
	retry.MaxAttempts = 3

	net := testNetwork()
	orch := deploy.NewOrchestrator(h.chain, net, signers, deploy.Options{Retry: retry, Metrics: h.metrics})

	h.proc = NewProcessor(net, 2, "test", Deps{
		Gate:      gate.New(gateCfg, h.store),
		Extractor: intent.NewExtractor(h.ai, net.DisplayName),
		Deployer:  orch,
		Store:     h.store,
		Notifier:  notify.NewEmitter(h.poster, "signer-uuid", "https://api.streme.fun", h.metrics),
		Events:    h.events,
		Audit:     h.trail,
		Analytics: h.analytics,
		Metrics:   h.metrics,
	})
	return h
}

func allowAll() gate.Config { return gate.Config{AllowFIDs: []int64{4242}} }

func testMention(hash string) *mention.Mention {
	return &mention.Mention{
		Hash: hash,
		Text: "@streme launch Yellow Flowers, ticker YELLOW",
		Author: mention.Author{
			FID:         4242,
			Username:    "alice",
			DisplayName: "Alice",
			VerifiedAddresses: mention.VerifiedAddresses{
				EthAddresses: []string{"0x00000000000000000000000000000000000000b1", creator},
			},
		},
		Embeds:  []mention.Embed{{URL: "https://img/flowers.png", Metadata: &mention.EmbedMetadata{ContentType: "image/png"}}},
		Channel: &mention.Channel{ID: "streme"},
	}
}

func TestProcess_Deployed(t *testing.T) {
	h := newHarness(t, allowAll())
	ctx := context.Background()

	res, err := h.proc.Process(ctx, testMention("0xcast"))
	require.NoError(t, err)

	assert.Equal(t, StatusProcessed, res.Status)
	assert.Empty(t, res.Reason)
	assert.Equal(t, notify.OutcomeDeployed, res.Outcome)
	assert.Equal(t, chain.LowerHex(predicted), res.TokenAddress)
	assert.NotEmpty(t, res.TxHash)
	assert.NotEmpty(t, res.TraceID)
	assert.Equal(t, 1, res.Attempts)

	// The deployer is the last verified address.
	deploys := h.chain.Deploys()
	require.Len(t, deploys, 1)
	assert.Equal(t, common.HexToAddress(creator), deploys[0].Config.Deployer)

	rec, err := h.store.GetByCastHash(ctx, "0xcast")
	require.NoError(t, err)
	assert.Equal(t, res.TokenAddress, rec.ContractAddress)
	assert.Equal(t, "streme_s2", rec.Type)
	assert.Equal(t, "https://img/flowers.png", rec.ImgURL)
	assert.Equal(t, "streme", rec.Channel)

	casts := h.poster.Casts()
	require.Len(t, casts, 1)
	assert.Equal(t, "Planting YELLOW now\n\nHere's your Streme coin:", casts[0].Text)
	require.Len(t, casts[0].Embeds, 1)
	assert.Equal(t, "https://api.streme.fun/token/"+res.TokenAddress+"/v1frame", casts[0].Embeds[0].URL)

	msgs := h.events.Messages(bus.TopicNaming{}.Outcomes())
	require.Len(t, msgs, 1)
	var ev bus.OutcomeEvent
	require.NoError(t, json.Unmarshal(msgs[0].Value, &ev))
	assert.Equal(t, "deployed", ev.Outcome)
	assert.Equal(t, res.TraceID, ev.TraceID)
	assert.Equal(t, int64(84532), ev.ChainID)

	assert.Len(t, h.trail.Query("0xcast"), 2, "outcome and deploy entries")
	assert.Len(t, h.analytics.events, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.MentionsProcessed.WithLabelValues("deployed")))
}

func TestProcess_DuplicateIsSilent(t *testing.T) {
	h := newHarness(t, allowAll())
	ctx := context.Background()
	require.NoError(t, h.store.Insert(ctx, &storage.TokenRecord{
		ContractAddress: "0xexisting",
		CastHash:        "0xcast",
		TxHash:          "0xtx",
		Timestamp:       time.Now(),
	}))

	res, err := h.proc.Process(ctx, testMention("0xcast"))
	require.NoError(t, err)

	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, ReasonDuplicate, res.Reason)
	assert.ErrorIs(t, res.Cause, ErrDuplicateRequest)
	assert.Equal(t, 0, h.chain.DeployCalls())
	assert.Equal(t, 0, h.chain.SaltCalls())
	assert.Equal(t, 0, h.ai.Calls())
	assert.Empty(t, h.poster.Casts())
}

func TestProcess_SecondDeliveryIsDuplicate(t *testing.T) {
	h := newHarness(t, allowAll())
	ctx := context.Background()

	_, err := h.proc.Process(ctx, testMention("0xcast"))
	require.NoError(t, err)

	res, err := h.proc.Process(ctx, testMention("0xcast"))
	require.NoError(t, err)
	assert.Equal(t, notify.OutcomeDuplicate, res.Outcome)
	assert.Equal(t, 1, h.chain.DeployCalls())
	assert.Len(t, h.poster.Casts(), 1)
}

func TestProcess_BannedSkipsAIAndChain(t *testing.T) {
	h := newHarness(t, gate.Config{AllowFIDs: []int64{4242}, BanFIDs: []int64{4242}})

	res, err := h.proc.Process(context.Background(), testMention("0xcast"))
	require.NoError(t, err)

	assert.Equal(t, notify.OutcomeBanned, res.Outcome)
	assert.Equal(t, ReasonBanned, res.Reason)
	assert.Equal(t, 0, h.ai.Calls())
	assert.Equal(t, 0, h.chain.DeployCalls())

	casts := h.poster.Casts()
	require.Len(t, casts, 1)
	assert.Equal(t, notify.TextBanned, casts[0].Text)
}

func TestProcess_Ineligible(t *testing.T) {
	h := newHarness(t, gate.Config{})

	res, err := h.proc.Process(context.Background(), testMention("0xcast"))
	require.NoError(t, err)

	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, ReasonIneligible, res.Reason)
	assert.ErrorIs(t, res.Cause, ErrUserIneligible)
	assert.Equal(t, 0, h.ai.Calls())
	require.Len(t, h.poster.Casts(), 1)
	assert.Equal(t, notify.TextIneligible, h.poster.Casts()[0].Text)
}

func TestProcess_LowScore(t *testing.T) {
	h := newHarness(t, gate.Config{MinSocialScore: 0.5})
	m := testMention("0xcast")
	score := 0.31
	m.Author.Experimental = &mention.Experimental{NeynarUserScore: &score}

	res, err := h.proc.Process(context.Background(), m)
	require.NoError(t, err)

	assert.Equal(t, notify.OutcomeLowScore, res.Outcome)
	assert.Equal(t, ReasonLowScore, res.Reason)
	require.Len(t, h.poster.Casts(), 1)
	assert.Contains(t, h.poster.Casts()[0].Text, "Your Neynar score of 0.31 is too low.")
}

func TestProcess_IntentNotFoundEchoesAI(t *testing.T) {
	h := newHarness(t, allowAll(), "I only launch tokens, tell me a name and ticker")
	ctx := context.Background()

	res, err := h.proc.Process(ctx, testMention("0xcast"))
	require.NoError(t, err)

	assert.Equal(t, ReasonIntentNotFound, res.Reason)
	assert.ErrorIs(t, res.Cause, ErrIntentNotFound)
	assert.Equal(t, 0, h.chain.DeployCalls())
	require.Len(t, h.poster.Casts(), 1)
	assert.Equal(t, "I only launch tokens, tell me a name and ticker", h.poster.Casts()[0].Text)

	// The claim was released so a later delivery is processed again.
	assert.NoError(t, h.store.Claim(ctx, "0xcast"))
}

func TestProcess_NoVerifiedAddress(t *testing.T) {
	h := newHarness(t, allowAll())
	m := testMention("0xcast")
	m.Author.VerifiedAddresses.EthAddresses = nil

	res, err := h.proc.Process(context.Background(), m)
	require.NoError(t, err)

	assert.Equal(t, ReasonNoAddress, res.Reason)
	assert.ErrorIs(t, res.Cause, ErrCreatorAddressMissing)
	assert.Equal(t, 0, h.chain.DeployCalls())
	require.Len(t, h.poster.Casts(), 1)
	assert.Equal(t, notify.TextNoAddress, h.poster.Casts()[0].Text)
}

func TestProcess_NonceConflictsAbsorbed(t *testing.T) {
	h := newHarness(t, allowAll())
	nonce := chain.Classify(errors.New("nonce too low"))
	h.chain.QueueDeployErrors(nonce, nonce, nil)

	res, err := h.proc.Process(context.Background(), testMention("0xcast"))
	require.NoError(t, err)
	assert.Equal(t, notify.OutcomeDeployed, res.Outcome)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, h.chain.DeployCalls())
}

func TestProcess_DeployFailed(t *testing.T) {
	h := newHarness(t, allowAll())
	h.chain.QueueDeployErrors(errors.New("execution reverted"))
	ctx := context.Background()

	res, err := h.proc.Process(ctx, testMention("0xcast"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeploymentFailed)

	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, ReasonDeployFailed, res.Reason)
	assert.Empty(t, res.TokenAddress)
	require.Len(t, h.poster.Casts(), 1)
	assert.Equal(t, notify.TextDeployFailed, h.poster.Casts()[0].Text)

	_, err = h.store.GetByCastHash(ctx, "0xcast")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, h.store.Claim(ctx, "0xcast"), "claim released after a failure before any receipt")
}

func TestProcess_AddressMismatchKeepsClaim(t *testing.T) {
	h := newHarness(t, allowAll())
	h.chain.SetMintAddress(common.HexToAddress("0x00000000000000000000000000000000000000ee"))
	ctx := context.Background()

	res, err := h.proc.Process(ctx, testMention("0xcast"))
	require.Error(t, err)
	assert.ErrorIs(t, err, deploy.ErrAddressMismatch)
	assert.Equal(t, notify.OutcomeDeployFailed, res.Outcome)
	assert.NotEmpty(t, res.TxHash)

	assert.ErrorIs(t, h.store.Claim(ctx, "0xcast"), storage.ErrDuplicateKey)
}

func TestProcess_UnconfirmedDeployIsNeverRepeated(t *testing.T) {
	h := newHarness(t, allowAll())
	h.chain.QueueDeployErrors(&chain.TxPendingError{TxHash: "0xpending", Err: context.DeadlineExceeded})
	ctx := context.Background()

	res, err := h.proc.Process(ctx, testMention("0xcast"))
	require.Error(t, err)
	assert.ErrorIs(t, err, deploy.ErrUnconfirmed)
	assert.Equal(t, OutcomeUnconfirmed, res.Outcome)
	assert.Equal(t, ReasonUnconfirmed, res.Reason)
	assert.Equal(t, "0xpending", res.TxHash)
	assert.Empty(t, h.poster.Casts(), "no failure reply for a transaction that may still mine")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.PipelineFaults.WithLabelValues("deploy_unconfirmed")))

	again, err := h.proc.Process(ctx, testMention("0xcast"))
	require.NoError(t, err)
	assert.Equal(t, notify.OutcomeDuplicate, again.Outcome)
	assert.Equal(t, 1, h.chain.DeployCalls())
	assert.Empty(t, h.poster.Casts(), "duplicates are silent")

	_, err = h.store.GetByCastHash(ctx, "0xcast")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProcess_MalformedAIReplyIsFault(t *testing.T) {
	h := newHarness(t, allowAll(), `{"name": "X", oops}`)
	ctx := context.Background()

	res, err := h.proc.Process(ctx, testMention("0xcast"))
	require.Error(t, err)
	assert.ErrorIs(t, err, intent.ErrMalformedResponse)
	assert.Equal(t, OutcomeFault, res.Outcome)
	assert.Empty(t, h.poster.Casts())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.PipelineFaults.WithLabelValues("intent")))
	assert.NoError(t, h.store.Claim(ctx, "0xcast"))
}

func TestProcess_ConcurrentSameMentionDeploysOnce(t *testing.T) {
	h := newHarness(t, allowAll())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.proc.Process(context.Background(), testMention("0xsame"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.chain.DeployCalls())
	assert.Len(t, h.poster.Casts(), 1)
}
