// Package resolver walks the embed page chain for a title and returns the
// first-level manifest URL of its stream.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"stream-proxy-go/pkg/config"
	"stream-proxy-go/pkg/decoder"
	"stream-proxy-go/pkg/interfaces"
	"stream-proxy-go/pkg/logging"
	"stream-proxy-go/pkg/metrics"
	"stream-proxy-go/pkg/types"
	"stream-proxy-go/pkg/urlutil"
)

var (
	// ErrStreamNotFound is the only error Resolve returns.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrNoCandidates means the source page yielded no usable manifest URL.
	ErrNoCandidates = errors.New("no manifest candidates")
)

// Options are the upstream and public endpoints the resolver works against.
type Options struct {
	EmbedBaseURL  string
	PlayerBaseURL string
	StreamHost    string
	BaseURL       string
	HopTimeout    time.Duration
}

// OptionsFromConfig extracts resolver options from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		EmbedBaseURL:  cfg.EmbedBaseURL,
		PlayerBaseURL: cfg.PlayerBaseURL,
		StreamHost:    cfg.StreamHost,
		BaseURL:       cfg.BaseURL,
		HopTimeout:    cfg.HopTimeout,
	}
}

// stage fetches one page and extracts the reference for the next one.
type stage func(ctx context.Context, prev types.HopResult) (types.HopResult, error)

// Resolver implements interfaces.Resolver as a fixed three-hop pipeline.
type Resolver struct {
	fetcher   interfaces.Fetcher
	extractor interfaces.PageExtractor
	decoder   interfaces.Decoder
	opts      Options
	cache     *Cache
	metrics   *metrics.Metrics
	log       *logging.Logger
}

// New creates a resolver. Use WithCache and WithMetrics for the optional parts.
func New(fetcher interfaces.Fetcher, extractor interfaces.PageExtractor, dec interfaces.Decoder, opts Options, log *logging.Logger) *Resolver {
	opts.EmbedBaseURL = strings.TrimRight(opts.EmbedBaseURL, "/")
	opts.PlayerBaseURL = strings.TrimRight(opts.PlayerBaseURL, "/")
	if opts.StreamHost == "" {
		opts.StreamHost = decoder.DefaultStreamHost
	}
	return &Resolver{
		fetcher:   fetcher,
		extractor: extractor,
		decoder:   dec,
		opts:      opts,
		log:       log.WithComponent("resolver"),
	}
}

// WithCache enables caching of successful resolutions.
func (r *Resolver) WithCache(c *Cache) *Resolver {
	r.cache = c
	return r
}

// WithMetrics records hop and resolve metrics on m.
func (r *Resolver) WithMetrics(m *metrics.Metrics) *Resolver {
	r.metrics = m
	return r
}

// Resolve returns the manifest URL for req, or ErrStreamNotFound.
func (r *Resolver) Resolve(ctx context.Context, req types.StreamRequest) (*types.Resolution, error) {
	req = req.Normalize()
	log := logging.FromContext(ctx, r.log).With("request", req.Key())

	if err := req.Validate(); err != nil {
		log.Warn("rejected stream request", "error", err)
		r.metrics.ObserveResolve("invalid")
		return nil, ErrStreamNotFound
	}

	if res, ok := r.cache.Get(req.Key()); ok {
		log.Debug("resolution cache hit", "manifest_url", res.ManifestURL)
		r.metrics.ObserveResolve("cache_hit")
		return &res, nil
	}

	start := time.Now()
	res, err := r.resolve(ctx, req)
	if err != nil {
		log.WithError(err).WithDuration(time.Since(start)).Warn("stream not found")
		r.metrics.ObserveResolve("not_found")
		return nil, ErrStreamNotFound
	}

	r.cache.Add(req.Key(), *res)
	log.Info("stream resolved", "path", res.Path, "manifest_url", res.ManifestURL, "duration", time.Since(start), "cached", r.cache.Len())
	r.metrics.ObserveResolve(string(res.Path))
	return res, nil
}

// EmbedURL builds the first-hop URL for a normalized, valid request.
func (r *Resolver) EmbedURL(req types.StreamRequest) (string, error) {
	id := url.PathEscape(req.ContentID)
	switch req.ContentType {
	case types.ContentTypeMovie:
		return r.opts.EmbedBaseURL + "/embed/movie/" + id, nil
	case types.ContentTypeSeries:
		return fmt.Sprintf("%s/embed/tv/%s/%d-%d", r.opts.EmbedBaseURL, id, req.Season, req.Episode), nil
	}
	return "", fmt.Errorf("%w: unknown content type %q", types.ErrInvalidRequest, req.ContentType)
}

func (r *Resolver) resolve(ctx context.Context, req types.StreamRequest) (*types.Resolution, error) {
	embedURL, err := r.EmbedURL(req)
	if err != nil {
		return nil, err
	}

	pipeline := []struct {
		name types.Stage
		run  stage
	}{
		{types.StageEmbed, r.embedStage},
		{types.StagePlayer, r.playerStage},
		{types.StageSource, r.sourceStage},
	}

	hop := types.HopResult{Reference: embedURL}
	for _, s := range pipeline {
		hop, err = r.runStage(ctx, s.name, s.run, hop)
		if err != nil {
			return nil, fmt.Errorf("%s stage: %w", s.name, err)
		}
	}

	manifestURL, path, err := r.pickManifest(ctx, hop)
	if err != nil {
		return nil, err
	}

	return &types.Resolution{
		ManifestURL: manifestURL,
		ProxyURL:    urlutil.ManifestProxyURL(r.opts.BaseURL, manifestURL),
		Path:        path,
	}, nil
}

func (r *Resolver) runStage(ctx context.Context, name types.Stage, run stage, prev types.HopResult) (types.HopResult, error) {
	if r.opts.HopTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.HopTimeout)
		defer cancel()
	}

	start := time.Now()
	hop, err := run(ctx, prev)
	r.metrics.ObserveHop(string(name), err == nil, time.Since(start))
	if err != nil {
		r.log.WithStage(string(name)).WithURL(prev.Reference).Debug("hop failed", "error", err)
		return types.HopResult{}, err
	}
	hop.Stage = name
	return hop, nil
}

// embedStage fetches the embed page and extracts the player iframe.
func (r *Resolver) embedStage(ctx context.Context, prev types.HopResult) (types.HopResult, error) {
	target := prev.Reference
	body, err := r.fetcher.Fetch(ctx, target, "")
	if err != nil {
		return types.HopResult{}, err
	}

	src, err := r.extractor.PlayerFrame(body)
	if err != nil {
		return types.HopResult{}, err
	}
	next, err := urlutil.EnsureScheme(src, target)
	if err != nil {
		return types.HopResult{}, fmt.Errorf("player frame %q: %w", src, err)
	}

	return types.HopResult{URL: target, Body: body, Reference: next}, nil
}

// playerStage fetches the player page with the embed page as referer and
// extracts the source script path.
func (r *Resolver) playerStage(ctx context.Context, prev types.HopResult) (types.HopResult, error) {
	target := prev.Reference
	body, err := r.fetcher.Fetch(ctx, target, prev.URL)
	if err != nil {
		return types.HopResult{}, err
	}

	path, err := r.extractor.ScriptSource(body)
	if err != nil {
		return types.HopResult{}, err
	}

	return types.HopResult{URL: target, Referer: prev.URL, Body: body, Reference: r.opts.PlayerBaseURL + path}, nil
}

// sourceStage fetches the source page, which refers to itself.
func (r *Resolver) sourceStage(ctx context.Context, prev types.HopResult) (types.HopResult, error) {
	target := prev.Reference
	body, err := r.fetcher.Fetch(ctx, target, target)
	if err != nil {
		return types.HopResult{}, err
	}
	return types.HopResult{URL: target, Referer: target, Body: body}, nil
}

// pickManifest chooses the manifest URL from the source page: a literal
// manifest URL if present, otherwise the decoded hidden payload.
func (r *Resolver) pickManifest(ctx context.Context, hop types.HopResult) (string, types.ResolvePath, error) {
	if direct := r.extractor.DirectManifests(hop.Body); len(direct) > 0 {
		joined := decoder.AddHost(strings.Join(direct, ","), r.opts.StreamHost)
		first := strings.TrimSpace(strings.Split(joined, ",")[0])
		if !urlutil.IsAbsoluteHTTP(first) {
			return "", "", fmt.Errorf("%w: direct match %q", ErrNoCandidates, first)
		}
		r.log.Debug("direct manifest match", "matches", len(direct), "host_added", decoder.HasPlaceholder(direct[0]))
		return first, types.ResolvePathDirect, nil
	}

	payload, err := r.extractor.HiddenPayload(hop.Body)
	if err != nil {
		return "", "", err
	}

	if r.opts.HopTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.HopTimeout)
		defer cancel()
	}
	decoded, err := r.decoder.Decode(ctx, payload)
	if err != nil {
		return "", "", fmt.Errorf("decode payload %s: %w", payload.ID, err)
	}

	candidates := decoder.SplitCandidates(decoded)
	if len(candidates) == 0 {
		return "", "", ErrNoCandidates
	}
	first := decoder.AddHost(candidates[0], r.opts.StreamHost)
	if !urlutil.IsAbsoluteHTTP(first) {
		return "", "", fmt.Errorf("%w: decoded %q", ErrNoCandidates, first)
	}
	r.log.Debug("decoded payload", "id", payload.ID, "candidates", len(candidates))
	return first, types.ResolvePathPayload, nil
}

var _ interfaces.Resolver = (*Resolver)(nil)
