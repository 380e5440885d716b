// Package gate decides whether a mention may proceed to deployment.
package gate

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/streme-fun/streme-bot/internal/mention"
	"github.com/streme-fun/streme-bot/internal/storage"
)

var (
	// ErrUserIneligible means the author is not on the allow list.
	ErrUserIneligible = errors.New("gate: user does not qualify")
	// ErrUserBanned means the author is on the ban list.
	ErrUserBanned = errors.New("gate: user is banned")
	// ErrDuplicateRequest means a token was already created, or is being
	// created, for the cast.
	ErrDuplicateRequest = errors.New("gate: token already created")
)

// LowScoreError rejects an author whose social score is under the minimum.
type LowScoreError struct {
	Score float64
	Min   float64
}

func (e *LowScoreError) Error() string {
	return fmt.Sprintf("gate: social score %v below %v", e.Score, e.Min)
}

// Config holds the gate lists and thresholds.
type Config struct {
	AllowFIDs []int64
	BanFIDs   []int64
	// MinSocialScore enables the score check for authors not on the allow
	// list when > 0.
	MinSocialScore float64
}

// Gate runs the eligibility, ban and duplicate checks in that order.
type Gate struct {
	allow    map[int64]struct{}
	ban      map[int64]struct{}
	minScore float64
	store    storage.Store
}

// New creates a gate backed by store for duplicate suppression.
func New(cfg Config, store storage.Store) *Gate {
	g := &Gate{
		allow:    make(map[int64]struct{}, len(cfg.AllowFIDs)),
		ban:      make(map[int64]struct{}, len(cfg.BanFIDs)),
		minScore: cfg.MinSocialScore,
		store:    store,
	}
	for _, fid := range cfg.AllowFIDs {
		g.allow[fid] = struct{}{}
	}
	for _, fid := range cfg.BanFIDs {
		g.ban[fid] = struct{}{}
	}
	return g
}

// Check returns nil when m may proceed; the cast hash is then claimed and the
// caller owns the claim until it records a token or calls Release.
// Rejections are ErrUserIneligible, *LowScoreError, ErrUserBanned or
// ErrDuplicateRequest. Any other error comes from the store.
func (g *Gate) Check(ctx context.Context, m *mention.Mention) error {
	if err := g.eligible(m); err != nil {
		return err
	}

	if _, banned := g.ban[m.Author.FID]; banned {
		return ErrUserBanned
	}

	if _, err := g.store.GetByCastHash(ctx, m.Hash); err == nil {
		return ErrDuplicateRequest
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("gate: lookup cast: %w", err)
	}

	if err := g.store.Claim(ctx, m.Hash); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return ErrDuplicateRequest
		}
		return fmt.Errorf("gate: claim cast: %w", err)
	}
	return nil
}

func (g *Gate) eligible(m *mention.Mention) error {
	if _, ok := g.allow[m.Author.FID]; ok || m.Allowed {
		return nil
	}
	if g.minScore <= 0 {
		return ErrUserIneligible
	}

	// Authors without a reported score pass the score check.
	score, ok := m.Author.SocialScore()
	if ok && score < g.minScore {
		return &LowScoreError{Score: score, Min: g.minScore}
	}
	return nil
}

// Release drops the claim on castHash. Failures are logged; an orphaned
// claim only blocks re-delivery of the same cast.
func (g *Gate) Release(ctx context.Context, castHash string) {
	if err := g.store.Release(ctx, castHash); err != nil {
		log.Warn().Err(err).Str("cast_hash", castHash).Msg("gate: release claim failed")
	}
}
