// Package notify posts threaded replies to mentions through the Neynar API.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Cast is the body of a reply cast.
type Cast struct {
	Parent     string      `json:"parent"`
	Text       string      `json:"text"`
	SignerUUID string      `json:"signer_uuid"`
	Embeds     []CastEmbed `json:"embeds,omitempty"`
}

// CastEmbed is a URL attached to a cast.
type CastEmbed struct {
	URL string `json:"url"`
}

// PostResult is the part of the Neynar response the bot reads.
type PostResult struct {
	Success bool `json:"success"`
	Cast    struct {
		Hash string `json:"hash"`
	} `json:"cast"`
}

// Poster publishes casts.
type Poster interface {
	PostCast(ctx context.Context, c Cast) (*PostResult, error)
}

// NeynarConfig configures the Neynar client.
type NeynarConfig struct {
	BaseURL      string
	APIKey       string
	RateLimitRPS float64
	Timeout      time.Duration
}

// NeynarClient posts casts with a client-side rate limit.
type NeynarClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

// NewNeynarClient creates a client. A non-positive rate disables limiting.
func NewNeynarClient(cfg NeynarConfig) *NeynarClient {
	limit := rate.Inf
	burst := 1
	if cfg.RateLimitRPS > 0 {
		limit = rate.Limit(cfg.RateLimitRPS)
		burst = max(1, int(cfg.RateLimitRPS))
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &NeynarClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
	}
}

// PostCast publishes c as a reply.
func (n *NeynarClient) PostCast(ctx context.Context, c Cast) (*PostResult, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("neynar: rate limit: %w", err)
	}

	body, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("neynar: marshal cast: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/v2/farcaster/cast", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("neynar: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api_key", n.apiKey)

	resp, err := n.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("neynar: post cast: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("neynar: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("neynar: post cast: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out PostResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("neynar: decode response: %w", err)
	}
	return &out, nil
}
