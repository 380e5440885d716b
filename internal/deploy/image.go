package deploy

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/streme-fun/streme-bot/internal/mention"
)

// ImageResolver picks the token image from a cast's embeds.
type ImageResolver struct {
	client *http.Client
}

// NewImageResolver creates a resolver whose content-type probes time out
// after timeout.
func NewImageResolver(timeout time.Duration) *ImageResolver {
	return &ImageResolver{client: &http.Client{Timeout: timeout}}
}

// Resolve returns the URL of the first image embed, or "" when there is none.
// Embeds whose metadata is still PENDING are probed with a HEAD request. A
// failed probe skips the embed.
func (r *ImageResolver) Resolve(ctx context.Context, embeds []mention.Embed) string {
	for _, e := range embeds {
		if e.URL == "" || e.Metadata == nil {
			continue
		}
		if strings.Contains(e.Metadata.ContentType, "image") {
			return e.URL
		}
		if e.Metadata.Status == mention.MetadataPending && r.probe(ctx, e.URL) {
			return e.URL
		}
	}
	return ""
}

func (r *ImageResolver) probe(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		log.Debug().Err(err).Str("url", url).Msg("image: bad embed url")
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("image: probe failed")
		return false
	}
	resp.Body.Close()
	return strings.Contains(resp.Header.Get("Content-Type"), "image")
}
