package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streme-fun/streme-bot/internal/observability"
)

type recordingPoster struct {
	mu    sync.Mutex
	casts []Cast
	err   error
}

func (p *recordingPoster) PostCast(_ context.Context, c Cast) (*PostResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.casts = append(p.casts, c)
	if p.err != nil {
		return nil, p.err
	}
	res := &PostResult{Success: true}
	res.Cast.Hash = "0xreply"
	return res, nil
}

func TestEmitter_Compose(t *testing.T) {
	e := NewEmitter(nil, "signer-uuid", "https://api.streme.fun/", nil)

	tests := []struct {
		notice Notice
		text   string
	}{
		{Notice{Outcome: OutcomeIneligible}, TextIneligible},
		{Notice{Outcome: OutcomeBanned}, TextBanned},
		{Notice{Outcome: OutcomeNoAddress}, TextNoAddress},
		{Notice{Outcome: OutcomeDeployFailed}, TextDeployFailed},
		{Notice{Outcome: OutcomeIntentNotFound, AIResponse: "I only make tokens"}, "I only make tokens"},
		{Notice{Outcome: OutcomeLowScore, SocialScore: 0.42}, "Sorry, you do not qualify to deploy Streme coins. Your Neynar score of 0.42 is too low."},
	}
	for _, tt := range tests {
		t.Run(string(tt.notice.Outcome), func(t *testing.T) {
			tt.notice.CastHash = "0xparent"
			c, ok := e.Compose(tt.notice)
			require.True(t, ok)
			assert.Equal(t, tt.text, c.Text)
			assert.Equal(t, "0xparent", c.Parent)
			assert.Equal(t, "signer-uuid", c.SignerUUID)
			assert.Empty(t, c.Embeds)
		})
	}
}

func TestEmitter_ComposeDeployed(t *testing.T) {
	e := NewEmitter(nil, "signer-uuid", "https://api.streme.fun", nil)
	c, ok := e.Compose(Notice{
		Outcome:      OutcomeDeployed,
		CastHash:     "0xparent",
		AIResponse:   "Planting YELLOW now",
		TokenAddress: "0xabc",
	})
	require.True(t, ok)
	assert.Equal(t, "Planting YELLOW now\n\nHere's your Streme coin:", c.Text)
	assert.Equal(t, []CastEmbed{{URL: "https://api.streme.fun/token/0xabc/v1frame"}}, c.Embeds)
}

func TestEmitter_DuplicateIsSilent(t *testing.T) {
	p := &recordingPoster{}
	e := NewEmitter(p, "u", "https://api.streme.fun", nil)

	_, ok := e.Compose(Notice{Outcome: OutcomeDuplicate})
	assert.False(t, ok)

	e.Notify(context.Background(), Notice{Outcome: OutcomeDuplicate, CastHash: "0x1"})
	assert.Empty(t, p.casts)
}

func TestEmitter_SwallowsFailures(t *testing.T) {
	m := observability.NewMetrics(prometheus.NewRegistry())
	p := &recordingPoster{err: errors.New("503")}
	e := NewEmitter(p, "u", "https://api.streme.fun", m)

	assert.NotPanics(t, func() {
		e.Notify(context.Background(), Notice{Outcome: OutcomeBanned, CastHash: "0x1"})
	})
	assert.Len(t, p.casts, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationFailures.WithLabelValues("banned")))

	p.err = nil
	e.Notify(context.Background(), Notice{Outcome: OutcomeBanned, CastHash: "0x2"})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsSent.WithLabelValues("banned")))
}

func TestEmitter_EmptyAIResponseSkipped(t *testing.T) {
	p := &recordingPoster{}
	e := NewEmitter(p, "u", "", nil)
	e.Notify(context.Background(), Notice{Outcome: OutcomeIntentNotFound, CastHash: "0x1"})
	assert.Empty(t, p.casts)
}

func TestNeynarClient_PostCast(t *testing.T) {
	var got Cast
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/farcaster/cast", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("Api_key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"success":true,"cast":{"hash":"0xnew"}}`))
	}))
	defer srv.Close()

	c := NewNeynarClient(NeynarConfig{BaseURL: srv.URL + "/", APIKey: "secret", RateLimitRPS: 100, Timeout: time.Second})
	res, err := c.PostCast(context.Background(), Cast{
		Parent:     "0xparent",
		Text:       "hi",
		SignerUUID: "uuid",
		Embeds:     []CastEmbed{{URL: "https://x"}},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "0xnew", res.Cast.Hash)
	assert.Equal(t, "0xparent", got.Parent)
	assert.Equal(t, "uuid", got.SignerUUID)
	assert.Equal(t, []CastEmbed{{URL: "https://x"}}, got.Embeds)
}

func TestNeynarClient_OmitsEmptyEmbeds(t *testing.T) {
	raw, err := json.Marshal(Cast{Parent: "p", Text: "t", SignerUUID: "u"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"parent":"p","text":"t","signer_uuid":"u"}`, string(raw))
}

func TestNeynarClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"invalid signer"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewNeynarClient(NeynarConfig{BaseURL: srv.URL, APIKey: "k"})
	_, err := c.PostCast(context.Background(), Cast{Parent: "p", Text: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := NewNeynarClient(NeynarConfig{BaseURL: srv.URL, RateLimitRPS: 0.001})
	_, _ = slow.PostCast(context.Background(), Cast{})
	_, err = slow.PostCast(ctx, Cast{})
	assert.Error(t, err)
}
