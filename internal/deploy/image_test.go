package deploy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/streme-fun/streme-bot/internal/mention"
)

func embed(url, contentType, status string) mention.Embed {
	return mention.Embed{URL: url, Metadata: &mention.EmbedMetadata{ContentType: contentType, Status: status}}
}

func TestImageResolver_DeclaredContentType(t *testing.T) {
	r := NewImageResolver(time.Second)
	ctx := context.Background()

	assert.Equal(t, "b", r.Resolve(ctx, []mention.Embed{
		embed("a", "text/html", ""),
		embed("b", "image/png", ""),
	}))
	assert.Equal(t, "", r.Resolve(ctx, []mention.Embed{
		embed("a", "text/html", ""),
		embed("c", "application/json", ""),
	}))
	assert.Equal(t, "", r.Resolve(ctx, nil))
	assert.Equal(t, "", r.Resolve(ctx, []mention.Embed{{URL: "no-metadata"}}))
}

func TestImageResolver_ProbesPending(t *testing.T) {
	var heads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		heads.Add(1)
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		case "/pic":
			w.Header().Set("Content-Type", "image/jpeg")
		}
	}))
	defer srv.Close()

	r := NewImageResolver(time.Second)
	got := r.Resolve(context.Background(), []mention.Embed{
		embed(srv.URL+"/page", "", mention.MetadataPending),
		embed(srv.URL+"/pic", "", mention.MetadataPending),
		embed("never-reached", "image/png", ""),
	})
	assert.Equal(t, srv.URL+"/pic", got)
	assert.Equal(t, int32(2), heads.Load())
}

func TestImageResolver_ProbeFailureSkipsEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	dead := srv.URL
	srv.Close()

	r := NewImageResolver(time.Second)
	got := r.Resolve(context.Background(), []mention.Embed{
		embed(dead+"/pic", "", mention.MetadataPending),
		embed("fallback.png", "image/png", ""),
	})
	assert.Equal(t, "fallback.png", got)
}
