package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"stream-proxy-go/pkg/config"
	"stream-proxy-go/pkg/logging"
)

// ErrPoolClosed is returned by Get after Close.
var ErrPoolClosed = errors.New("segment pool closed")

// Per-host limiters are evicted after limiterTTL, or oldest first once
// limiterCacheSize hosts are tracked.
const (
	limiterCacheSize = 1024
	limiterTTL       = 10 * time.Minute
)

// Pool is the shared keep-alive connection pool for media segments. Each
// upstream host gets at most MaxConnsPerHost open connections and a token
// bucket; callers beyond either limit wait until their context is done.
type Pool struct {
	client    *http.Client
	transport *http.Transport
	userAgent string

	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	closed   bool

	log *logging.Logger
}

// NewPool creates the segment pool. Segment traffic follows the first
// global proxy when one is configured.
func NewPool(cfg *config.Config, log *logging.Logger) (*Pool, error) {
	var proxyURL string
	if len(cfg.GlobalProxies) > 0 {
		proxyURL = cfg.GlobalProxies[0]
	}

	transport, err := newTransport(proxyURL, false)
	if err != nil {
		return nil, fmt.Errorf("segment pool transport: %w", err)
	}
	transport.MaxConnsPerHost = cfg.SegmentMaxConnsPerHost
	transport.MaxIdleConnsPerHost = max(cfg.SegmentMaxConnsPerHost, 2)
	transport.ResponseHeaderTimeout = cfg.SegmentHeaderTimeout
	// Keep Content-Length intact for passthrough.
	transport.DisableCompression = true

	limit := rate.Inf
	if cfg.SegmentRateLimit > 0 {
		limit = rate.Limit(cfg.SegmentRateLimit)
	}
	burst := cfg.SegmentRateBurst
	if burst <= 0 {
		burst = 1
	}

	return &Pool{
		// Body streaming is bounded by the request context only.
		client:    &http.Client{Transport: transport},
		transport: transport,
		userAgent: cfg.UserAgent,
		limit:     limit,
		burst:     burst,
		limiters:  expirable.NewLRU[string, *rate.Limiter](limiterCacheSize, nil, limiterTTL),
		log:       log.WithComponent("segment-pool"),
	}, nil
}

// Get starts a GET for targetURL. The caller owns the response body.
func (p *Pool) Get(ctx context.Context, targetURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	return p.Do(req)
}

// Do sends req once the host's rate limiter admits it.
func (p *Pool) Do(req *http.Request) (*http.Response, error) {
	limiter, err := p.limiter(req.URL.Hostname())
	if err != nil {
		return nil, err
	}
	start := time.Now()
	if err := limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("waiting for upstream slot: %w", err)
	}
	if waited := time.Since(start); waited > time.Second {
		p.log.Debug("segment request throttled", "host", req.URL.Host, "waited_ms", waited.Milliseconds())
	}
	return p.client.Do(req)
}

func (p *Pool) limiter(host string) (*rate.Limiter, error) {
	host = strings.ToLower(host)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}
	l, ok := p.limiters.Get(host)
	if !ok {
		l = rate.NewLimiter(p.limit, p.burst)
		p.limiters.Add(host, l)
	}
	return l, nil
}

// Close refuses new requests and drops idle connections. In-flight
// responses finish normally.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.limiters.Purge()
	p.mu.Unlock()

	p.transport.CloseIdleConnections()
	p.log.Debug("segment pool closed")
}
