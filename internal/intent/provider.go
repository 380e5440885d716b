// Package intent turns a mention's free text into a deployment intent using
// an AI chat service.
package intent

import "context"

// ---------------------------------------------------------------------------
// AI Provider interface
// ---------------------------------------------------------------------------

// Provider is the interface for AI chat connectors.
// Implementations: AutonomeProvider (HTTP), StubProvider (testing).
type Provider interface {
	Name() string
	Query(ctx context.Context, req QueryRequest) (*QueryResponse, error)
	Health() ProviderHealth
}

// QueryRequest is sent to a provider.
type QueryRequest struct {
	Message string
}

// QueryResponse is returned by a provider.
type QueryResponse struct {
	Text      string
	LatencyMs int
	Provider  string
}

// ProviderHealth reports the health status of a provider.
type ProviderHealth struct {
	Available    bool
	ErrorRate    float64
	LatencyP95Ms int
	LastError    string
}
