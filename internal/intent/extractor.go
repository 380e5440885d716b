package intent

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/rs/zerolog/log"

	"github.com/streme-fun/streme-bot/internal/mention"
)

//go:embed prompt.tmpl
var promptText string

var promptTmpl = template.Must(template.New("prompt").Parse(promptText))

type promptData struct {
	Network     string
	DisplayName string
	Username    string
	Text        string
}

// Extractor builds the persona prompt for a mention and parses the reply.
type Extractor struct {
	provider Provider
	network  string
}

// NewExtractor creates an extractor that tells users tokens go to
// networkName.
func NewExtractor(provider Provider, networkName string) *Extractor {
	return &Extractor{provider: provider, network: networkName}
}

// Prompt renders the message sent to the AI for m.
func (e *Extractor) Prompt(m *mention.Mention) (string, error) {
	var buf bytes.Buffer
	err := promptTmpl.Execute(&buf, promptData{
		Network:     e.network,
		DisplayName: m.Author.DisplayName,
		Username:    m.Author.Username,
		Text:        m.Text,
	})
	if err != nil {
		return "", fmt.Errorf("intent: render prompt: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// Extract sends one prompt and parses the reply. A reply that cannot be
// recovered returns an error wrapping ErrMalformedResponse; it is not retried.
func (e *Extractor) Extract(ctx context.Context, m *mention.Mention) (Intent, *QueryResponse, error) {
	prompt, err := e.Prompt(m)
	if err != nil {
		return Intent{}, nil, err
	}

	resp, err := e.provider.Query(ctx, QueryRequest{Message: prompt})
	if err != nil {
		return Intent{}, nil, fmt.Errorf("intent: query %s: %w", e.provider.Name(), err)
	}

	in, err := ParseIntent(resp.Text)
	if err != nil {
		log.Warn().
			Str("cast_hash", m.Hash).
			Str("reply", truncate(resp.Text, 200)).
			Msg("intent: unparseable reply")
		return Intent{}, resp, err
	}

	log.Debug().
		Str("cast_hash", m.Hash).
		Bool("deploy", in.Deploy()).
		Str("name", in.NameOrEmpty()).
		Str("symbol", in.SymbolOrEmpty()).
		Msg("intent: extracted")
	return in, resp, nil
}
