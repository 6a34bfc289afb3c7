// Package streams provides stream handler implementations.
package streams

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stream-proxy-go/pkg/interfaces"
	"stream-proxy-go/pkg/logging"
	"stream-proxy-go/pkg/manifest"
	"stream-proxy-go/pkg/types"
)

// ManifestHandler fetches playlists and rewrites them so every reference
// points back at this proxy.
type ManifestHandler struct {
	fetcher  interfaces.Fetcher
	rewriter *manifest.Rewriter
	timeout  time.Duration
	log      *logging.Logger
}

// NewManifestHandler creates a manifest handler. A zero timeout leaves the
// fetch bounded only by the caller's context.
func NewManifestHandler(fetcher interfaces.Fetcher, rewriter *manifest.Rewriter, timeout time.Duration, log *logging.Logger) *ManifestHandler {
	return &ManifestHandler{
		fetcher:  fetcher,
		rewriter: rewriter,
		timeout:  timeout,
		log:      log.WithComponent("manifest-handler"),
	}
}

// Type returns the handled resource kind.
func (h *ManifestHandler) Type() string {
	return "manifest"
}

// Fetch returns the raw playlist text at targetURL.
func (h *ManifestHandler) Fetch(ctx context.Context, targetURL string) (string, error) {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	text, err := h.fetcher.Fetch(ctx, targetURL, "")
	if err != nil {
		return "", fmt.Errorf("failed to fetch manifest: %w", err)
	}
	return text, nil
}

// Rewritten fetches targetURL and returns the rewritten playlist text.
func (h *ManifestHandler) Rewritten(ctx context.Context, targetURL string) (string, error) {
	text, err := h.Fetch(ctx, targetURL)
	if err != nil {
		return "", err
	}

	rewritten, err := h.rewriter.Rewrite(text, targetURL)
	if err != nil {
		return "", fmt.Errorf("failed to rewrite manifest: %w", err)
	}
	return rewritten, nil
}

// Qualities fetches a master playlist and returns its variants.
func (h *ManifestHandler) Qualities(ctx context.Context, targetURL string) ([]types.QualityOption, error) {
	text, err := h.Fetch(ctx, targetURL)
	if err != nil {
		return nil, err
	}
	return h.rewriter.Qualities(text, targetURL)
}

// Handle fetches and rewrites the playlist at targetURL.
func (h *ManifestHandler) Handle(ctx context.Context, targetURL string) (*types.StreamResponse, error) {
	h.log.Debug("handling manifest", "url", targetURL)

	rewritten, err := h.Rewritten(ctx, targetURL)
	if err != nil {
		h.log.Error("manifest proxy failed", "url", targetURL, "error", err)
		return nil, err
	}

	return &types.StreamResponse{
		ContentType: manifest.ContentType,
		Body:        io.NopCloser(strings.NewReader(rewritten)),
		StatusCode:  http.StatusOK,
		Headers: map[string]string{
			"Access-Control-Allow-Origin": "*",
			"Cache-Control":               "no-cache, no-store, must-revalidate",
		},
	}, nil
}

var _ interfaces.StreamHandler = (*ManifestHandler)(nil)
