// Package httpclient provides the outbound HTTP clients: a routed client with
// browser TLS fingerprinting for upstream pages, and a bounded connection
// pool for media segments.
package httpclient

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"stream-proxy-go/pkg/config"
	"stream-proxy-go/pkg/logging"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"
)

// Client wraps http.Client with proxy routing and connection pooling.
type Client struct {
	defaultClient *http.Client
	utlsClient    *http.Client // Client with browser-like TLS fingerprint for Cloudflare bypass
	proxyClients  map[string]*http.Client
	routes        []config.TransportRoute
	globalProxies []string
	utlsHosts     []string
	mu            sync.RWMutex
	log           *logging.Logger
}

// ipv4Dialer creates a dialer that only uses IPv4.
func ipv4Dialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 60 * time.Second,
	}
}

// ipv4DialContext forces IPv4-only connections.
func ipv4DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if network == "tcp" {
		network = "tcp4"
	}
	return ipv4Dialer().DialContext(ctx, network, addr)
}

// New creates a new HTTP client with the given configuration. Requests to the
// embed and player hosts go out with a Chrome TLS fingerprint.
func New(cfg *config.Config, log *logging.Logger) *Client {
	c := &Client{
		proxyClients:  make(map[string]*http.Client),
		routes:        cfg.TransportRoutes,
		globalProxies: cfg.GlobalProxies,
		utlsHosts:     fingerprintHosts(cfg),
		log:           log.WithComponent("httpclient"),
	}

	c.defaultClient = &http.Client{
		Transport: &http.Transport{
			DialContext:           ipv4DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
		},
		Timeout: 30 * time.Second,
	}

	c.utlsClient = &http.Client{
		Transport: newUTLSRoundTripper(),
		Timeout:   30 * time.Second,
	}

	return c
}

// fingerprintHosts lists the upstream page hosts that sit behind Cloudflare.
func fingerprintHosts(cfg *config.Config) []string {
	var hosts []string
	for _, raw := range []string{cfg.EmbedBaseURL, cfg.PlayerBaseURL} {
		if u, err := url.Parse(raw); err == nil && u.Scheme == "https" && u.Hostname() != "" {
			hosts = append(hosts, strings.ToLower(u.Hostname()))
		}
	}
	return hosts
}

// utlsRoundTripper implements http.RoundTripper with utls and HTTP/2 support
type utlsRoundTripper struct {
	dialer      *net.Dialer
	h2Transport *http2.Transport
}

func newUTLSRoundTripper() *utlsRoundTripper {
	return &utlsRoundTripper{
		dialer: &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 60 * time.Second,
		},
		h2Transport: &http2.Transport{
			DisableCompression: true,
			AllowHTTP:          false,
		},
	}
}

func (t *utlsRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return http.DefaultTransport.RoundTrip(req)
	}

	addr := req.URL.Host
	if req.URL.Port() == "" {
		addr = net.JoinHostPort(req.URL.Hostname(), "443")
	}

	conn, err := t.dialer.DialContext(req.Context(), "tcp4", addr)
	if err != nil {
		return nil, err
	}

	tlsConfig := &utls.Config{
		ServerName: req.URL.Hostname(),
	}

	utlsConn := utls.UClient(conn, tlsConfig, utls.HelloChrome_120)
	if err := utlsConn.HandshakeContext(req.Context()); err != nil {
		conn.Close()
		return nil, err
	}

	if utlsConn.ConnectionState().NegotiatedProtocol == "h2" {
		h2Conn, err := t.h2Transport.NewClientConn(utlsConn)
		if err != nil {
			conn.Close()
			return nil, err
		}
		resp, err := h2Conn.RoundTrip(req)
		if err != nil {
			conn.Close()
			return nil, err
		}
		resp.Body = &connCloser{resp.Body, utlsConn}
		return resp, nil
	}

	return t.doHTTP1Request(utlsConn, req)
}

func (t *utlsRoundTripper) doHTTP1Request(conn net.Conn, req *http.Request) (*http.Response, error) {
	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, err
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		conn.Close()
		return nil, err
	}

	resp.Body = &connCloser{resp.Body, conn}
	return resp, nil
}

// connCloser closes the underlying connection together with the body.
type connCloser struct {
	io.ReadCloser
	conn net.Conn
}

func (c *connCloser) Close() error {
	c.ReadCloser.Close()
	return c.conn.Close()
}

// needsUTLS returns true if the URL requires browser-like TLS fingerprinting.
func (c *Client) needsUTLS(u *url.URL) bool {
	if u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range c.utlsHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// Do executes an HTTP request, routing through proxies as configured.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.clientFor(req.URL).Do(req)
}

// clientFor returns the appropriate HTTP client based on URL routing rules.
// Transport routes and global proxies take precedence over fingerprinting.
func (c *Client) clientFor(u *url.URL) *http.Client {
	target := u.String()

	for _, route := range c.routes {
		if !strings.Contains(target, route.URLPattern) {
			continue
		}
		c.log.Debug("matched transport route", "url", target, "pattern", route.URLPattern, "proxy", route.Proxy, "direct", route.Direct)

		if route.Direct {
			if route.DisableSSL {
				return c.getInsecureClient()
			}
			return c.defaultClient
		}
		if route.Proxy != "" {
			return c.getOrCreateProxyClient(route.Proxy, route.DisableSSL)
		}
		if route.DisableSSL {
			return c.getInsecureClient()
		}
	}

	if len(c.globalProxies) > 0 {
		return c.getOrCreateProxyClient(c.globalProxies[0], false)
	}

	if c.needsUTLS(u) {
		return c.utlsClient
	}

	return c.defaultClient
}

// getOrCreateProxyClient returns a cached proxy client or creates a new one.
func (c *Client) getOrCreateProxyClient(proxyURL string, disableSSL bool) *http.Client {
	cacheKey := proxyURL
	if disableSSL {
		cacheKey += ":insecure"
	}

	c.mu.RLock()
	if client, ok := c.proxyClients[cacheKey]; ok {
		c.mu.RUnlock()
		return client
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.proxyClients[cacheKey]; ok {
		return client
	}

	transport, err := newTransport(proxyURL, disableSSL)
	if err != nil {
		c.log.Error("failed to create proxy transport", "proxy", proxyURL, "error", err)
		return c.defaultClient
	}
	client := &http.Client{Transport: transport, Timeout: 30 * time.Second}
	c.proxyClients[cacheKey] = client
	c.log.Debug("created proxy client", "proxy", proxyURL, "disable_ssl", disableSSL)

	return client
}

// getInsecureClient returns a client that skips SSL verification.
func (c *Client) getInsecureClient() *http.Client {
	return c.getOrCreateProxyClient("", true)
}

// Close drops idle connections held by every client.
func (c *Client) Close() {
	c.defaultClient.CloseIdleConnections()
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, client := range c.proxyClients {
		client.CloseIdleConnections()
	}
}

// newTransport builds a pooled transport, optionally dialing through an
// http(s) or SOCKS5 proxy.
func newTransport(proxyURL string, disableSSL bool) (*http.Transport, error) {
	transport := &http.Transport{
		DialContext:           ipv4DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if disableSSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	if proxyURL == "" {
		return transport, nil
	}

	parsedURL, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}

	switch parsedURL.Scheme {
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(parsedURL, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("create SOCKS5 dialer: %w", err)
		}
		contextDialer, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("SOCKS5 dialer for %s does not support cancellation", parsedURL.Host)
		}
		transport.DialContext = contextDialer.DialContext
	case "http", "https":
		transport.Proxy = http.ProxyURL(parsedURL)
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", parsedURL.Scheme)
	}

	return transport, nil
}
