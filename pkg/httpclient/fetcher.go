package httpclient

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"

	"stream-proxy-go/pkg/flaresolverr"
	"stream-proxy-go/pkg/interfaces"
	"stream-proxy-go/pkg/logging"
	"stream-proxy-go/pkg/metrics"
)

// maxPageSize bounds how much of an upstream page or playlist is read.
const maxPageSize = 8 << 20

// StatusError is returned when an upstream answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d", e.URL, e.StatusCode)
}

// IsChallenge reports whether the status looks like a Cloudflare challenge.
func (e *StatusError) IsChallenge() bool {
	return e.StatusCode == http.StatusForbidden || e.StatusCode == http.StatusServiceUnavailable
}

// clearance is what a solved challenge leaves behind for a host.
type clearance struct {
	cookies   []flaresolverr.Cookie
	userAgent string
}

// PageFetcher fetches upstream pages and playlists as text with browser
// headers. When a FlareSolverr client is configured, challenge responses are
// retried through it once and the clearance cookies are reused for later
// requests to the same host.
type PageFetcher struct {
	client    interfaces.HTTPClient
	flare     *flaresolverr.Client
	userAgent string
	metrics   *metrics.Metrics
	log       *logging.Logger

	mu         sync.RWMutex
	clearances map[string]clearance
}

// NewPageFetcher creates a fetcher. flare and m may be nil.
func NewPageFetcher(client interfaces.HTTPClient, userAgent string, flare *flaresolverr.Client, m *metrics.Metrics, log *logging.Logger) *PageFetcher {
	return &PageFetcher{
		client:     client,
		flare:      flare,
		userAgent:  userAgent,
		metrics:    m,
		log:        log.WithComponent("page-fetcher"),
		clearances: make(map[string]clearance),
	}
}

// Fetch implements interfaces.Fetcher.
func (f *PageFetcher) Fetch(ctx context.Context, targetURL, referer string) (string, error) {
	body, err := f.fetch(ctx, targetURL, referer)
	if err == nil {
		return body, nil
	}

	var statusErr *StatusError
	if f.flare != nil && f.flare.IsConfigured() && errors.As(err, &statusErr) && statusErr.IsChallenge() {
		f.log.Info("challenge detected, retrying via FlareSolverr", "url", targetURL, "status", statusErr.StatusCode)
		host := hostOf(targetURL)
		prev := f.clearanceFor(host)
		resp, ferr := f.flare.Get(ctx, targetURL, prev.cookies)
		if ferr != nil {
			f.metrics.ObserveUpstream("flaresolverr", 0)
			return "", fmt.Errorf("%w (flaresolverr: %v)", err, ferr)
		}
		f.metrics.ObserveUpstream("flaresolverr", resp.Solution.Status)
		f.storeClearance(host, clearance{cookies: resp.Solution.Cookies, userAgent: resp.Solution.UserAgent})
		if resp.Solution.Status < 200 || resp.Solution.Status > 299 {
			return "", &StatusError{URL: targetURL, StatusCode: resp.Solution.Status}
		}
		return unwrapPlainText(resp.Solution.Response), nil
	}

	return "", err
}

func (f *PageFetcher) fetch(ctx context.Context, targetURL, referer string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	if cl := f.clearanceFor(strings.ToLower(req.URL.Hostname())); len(cl.cookies) > 0 {
		for _, c := range flaresolverr.ToHTTPCookies(cl.cookies) {
			req.AddCookie(c)
		}
		if cl.userAgent != "" {
			req.Header.Set("User-Agent", cl.userAgent)
		}
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, br")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.metrics.ObserveUpstream("page", 0)
		return "", fmt.Errorf("failed to fetch %s: %w", targetURL, err)
	}
	defer resp.Body.Close()

	f.metrics.ObserveUpstream("page", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", &StatusError{URL: targetURL, StatusCode: resp.StatusCode}
	}

	reader, err := DecodeBody(resp)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, maxPageSize))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", targetURL, err)
	}
	return string(data), nil
}

func (f *PageFetcher) clearanceFor(host string) clearance {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.clearances[host]
}

func (f *PageFetcher) storeClearance(host string, cl clearance) {
	if host == "" || len(cl.cookies) == 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearances[host] = cl
}

// unwrapPlainText returns the text of a browser-rendered plain-text document
// (a body holding a single <pre>). Anything else is returned unchanged.
func unwrapPlainText(page string) string {
	trimmed := strings.TrimSpace(page)
	if !strings.HasPrefix(strings.ToLower(trimmed), "<html") || !strings.Contains(trimmed, "<pre") {
		return page
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(trimmed))
	if err != nil {
		return page
	}
	children := doc.Find("body").Children()
	if children.Length() != 1 || !children.Is("pre") {
		return page
	}
	return children.Text()
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// DecodeBody wraps resp.Body according to its Content-Encoding.
// The returned reader does not close resp.Body.
func DecodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "br":
		return io.NopCloser(brotli.NewReader(resp.Body)), nil
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		return zr, nil
	case "", "identity":
		return io.NopCloser(resp.Body), nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", resp.Header.Get("Content-Encoding"))
	}
}

var _ interfaces.Fetcher = (*PageFetcher)(nil)
