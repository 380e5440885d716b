package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// AutonomeConfig configures the Autonome chat client.
type AutonomeConfig struct {
	Endpoint  string
	BasicAuth string // base64 "user:password"
	Timeout   time.Duration
}

// AutonomeProvider calls an Autonome agent chat endpoint.
type AutonomeProvider struct {
	config     AutonomeConfig
	httpClient *http.Client

	mu        sync.Mutex
	lastError string

	requests atomic.Int64
	failures atomic.Int64
	maxLatMs atomic.Int64
}

// NewAutonomeProvider creates an Autonome client.
func NewAutonomeProvider(config AutonomeConfig) *AutonomeProvider {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	return &AutonomeProvider{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

func (p *AutonomeProvider) Name() string { return "autonome" }

type autonomeRequest struct {
	Message string `json:"message"`
}

type autonomeResponse struct {
	Response []string `json:"response"`
}

// Query posts the message and returns the first element of the response
// array.
func (p *AutonomeProvider) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	p.requests.Add(1)
	start := time.Now()

	text, err := p.post(ctx, req.Message)
	if err != nil {
		p.failures.Add(1)
		p.mu.Lock()
		p.lastError = err.Error()
		p.mu.Unlock()
		return nil, err
	}

	latency := time.Since(start).Milliseconds()
	if latency > p.maxLatMs.Load() {
		p.maxLatMs.Store(latency)
	}

	log.Debug().Int64("latency_ms", latency).Int("chars", len(text)).Msg("intent: autonome replied")
	return &QueryResponse{Text: text, LatencyMs: int(latency), Provider: p.Name()}, nil
}

func (p *AutonomeProvider) post(ctx context.Context, message string) (string, error) {
	body, err := json.Marshal(autonomeRequest{Message: message})
	if err != nil {
		return "", fmt.Errorf("intent: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("intent: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.config.BasicAuth != "" {
		httpReq.Header.Set("Authorization", "Basic "+p.config.BasicAuth)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("intent: autonome http error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("intent: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("intent: autonome status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var out autonomeResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("intent: decode response: %w", err)
	}
	if len(out.Response) == 0 {
		return "", fmt.Errorf("intent: autonome returned an empty response array")
	}
	return out.Response[0], nil
}

func (p *AutonomeProvider) Health() ProviderHealth {
	total := p.requests.Load()
	failed := p.failures.Load()

	h := ProviderHealth{Available: true, LatencyP95Ms: int(p.maxLatMs.Load())}
	if total > 0 {
		h.ErrorRate = float64(failed) / float64(total)
	}
	p.mu.Lock()
	h.LastError = p.lastError
	p.mu.Unlock()
	return h
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
