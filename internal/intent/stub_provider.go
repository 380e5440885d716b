package intent

import (
	"context"
	"fmt"
	"sync"
)

// StubProvider is a deterministic provider for testing.
// It returns pre-loaded replies in order, cycling back to the start
// when all replies have been consumed.
type StubProvider struct {
	mu       sync.Mutex
	name     string
	replies  []string
	idx      int
	healthy  bool
	calls    int
	messages []string
}

// NewStubProvider creates a StubProvider with the given pre-loaded replies.
func NewStubProvider(name string, replies ...string) *StubProvider {
	return &StubProvider{
		name:    name,
		replies: replies,
		healthy: true,
	}
}

func (s *StubProvider) Name() string {
	return s.name
}

// Query returns the next pre-loaded reply. If the provider is unhealthy
// it returns an error.
func (s *StubProvider) Query(_ context.Context, req QueryRequest) (*QueryResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	s.messages = append(s.messages, req.Message)

	if !s.healthy {
		return nil, fmt.Errorf("provider %s is unhealthy", s.name)
	}
	if len(s.replies) == 0 {
		return nil, fmt.Errorf("provider %s has no replies configured", s.name)
	}

	text := s.replies[s.idx]
	s.idx = (s.idx + 1) % len(s.replies)
	return &QueryResponse{Text: text, LatencyMs: 1, Provider: s.name}, nil
}

func (s *StubProvider) Health() ProviderHealth {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := ProviderHealth{Available: s.healthy, LatencyP95Ms: 1}
	if !s.healthy {
		h.ErrorRate = 1.0
		h.LastError = "provider marked unhealthy"
	}
	return h
}

// SetHealthy sets whether the stub provider is healthy.
func (s *StubProvider) SetHealthy(healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = healthy
}

// Calls returns the total number of Query calls.
func (s *StubProvider) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// LastMessage returns the most recent prompt, or "" if none was sent.
func (s *StubProvider) LastMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return ""
	}
	return s.messages[len(s.messages)-1]
}
