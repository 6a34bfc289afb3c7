package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"stream-proxy-go/pkg/handlers/streams"
	"stream-proxy-go/pkg/interfaces"
	"stream-proxy-go/pkg/logging"
	"stream-proxy-go/pkg/subtitles"
	"stream-proxy-go/pkg/types"
	"stream-proxy-go/pkg/urlutil"
)

// ErrInvalidURL is returned for proxy targets that are not absolute http(s) URLs.
var ErrInvalidURL = errors.New("invalid upstream url")

// ProxyService ties the resolver to the stream handlers. HTTP handlers and
// the CLI go through it.
type ProxyService struct {
	log       *logging.Logger
	resolver  interfaces.Resolver
	manifests *streams.ManifestHandler
	segments  *streams.SegmentHandler
	subtitles *subtitles.Client
}

// NewProxyService creates a new proxy service. subs may be nil.
func NewProxyService(
	log *logging.Logger,
	resolver interfaces.Resolver,
	manifests *streams.ManifestHandler,
	segments *streams.SegmentHandler,
	subs *subtitles.Client,
) *ProxyService {
	return &ProxyService{
		log:       log.WithComponent("proxy-service"),
		resolver:  resolver,
		manifests: manifests,
		segments:  segments,
		subtitles: subs,
	}
}

// Resolve returns the manifest URL for req.
func (s *ProxyService) Resolve(ctx context.Context, req types.StreamRequest) (*types.Resolution, error) {
	return s.resolver.Resolve(ctx, req)
}

// Playlist resolves req and returns the rewritten first-level playlist.
func (s *ProxyService) Playlist(ctx context.Context, req types.StreamRequest) (string, *types.Resolution, error) {
	res, err := s.resolver.Resolve(ctx, req)
	if err != nil {
		return "", nil, err
	}
	text, err := s.manifests.Rewritten(ctx, res.ManifestURL)
	if err != nil {
		return "", res, err
	}
	return text, res, nil
}

// Qualities resolves req and lists the variants of its master playlist.
func (s *ProxyService) Qualities(ctx context.Context, req types.StreamRequest) ([]types.QualityOption, error) {
	res, err := s.resolver.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.manifests.Qualities(ctx, res.ManifestURL)
}

// HandleManifest proxies a playlist request.
func (s *ProxyService) HandleManifest(ctx context.Context, targetURL string) (*types.StreamResponse, error) {
	return s.handle(ctx, s.manifests, targetURL)
}

// HandleSegment proxies a segment request.
func (s *ProxyService) HandleSegment(ctx context.Context, targetURL string) (*types.StreamResponse, error) {
	return s.handle(ctx, s.segments, targetURL)
}

func (s *ProxyService) handle(ctx context.Context, h interfaces.StreamHandler, targetURL string) (*types.StreamResponse, error) {
	targetURL, err := checkTarget(targetURL)
	if err != nil {
		return nil, err
	}
	resp, err := h.Handle(ctx, targetURL)
	if err != nil {
		s.log.Debug("upstream fetch failed", "kind", h.Type(), "url", targetURL, "error", err)
		return nil, fmt.Errorf("%s: %w", h.Type(), err)
	}
	return resp, nil
}

// Subtitles returns the best subtitle for q, or nil when there is none.
func (s *ProxyService) Subtitles(ctx context.Context, q subtitles.Query) (*subtitles.Match, error) {
	if s.subtitles == nil {
		return nil, fmt.Errorf("subtitles lookup not configured")
	}
	return s.subtitles.Search(ctx, q)
}

func checkTarget(targetURL string) (string, error) {
	targetURL = strings.TrimSpace(targetURL)
	if !urlutil.IsAbsoluteHTTP(targetURL) {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, targetURL)
	}
	return targetURL, nil
}
