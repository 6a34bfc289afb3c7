// Package flaresolverr provides a client for the FlareSolverr API, used to
// get past Cloudflare challenges on the upstream embed pages.
package flaresolverr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"stream-proxy-go/pkg/logging"
)

// ErrUnsolved is returned when FlareSolverr answers but could not solve the page.
var ErrUnsolved = errors.New("flaresolverr could not solve challenge")

// Cookie represents a cookie from FlareSolverr response.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Expires  int64  `json:"expires"`
	HTTPOnly bool   `json:"httpOnly"`
	Secure   bool   `json:"secure"`
}

// Solution contains the result of a successful FlareSolverr request.
type Solution struct {
	URL       string   `json:"url"`
	Status    int      `json:"status"`
	Response  string   `json:"response"`
	Cookies   []Cookie `json:"cookies"`
	UserAgent string   `json:"userAgent"`
}

// Response is the full response from FlareSolverr API.
type Response struct {
	Status   string   `json:"status"`
	Message  string   `json:"message"`
	Version  string   `json:"version"`
	Solution Solution `json:"solution"`
}

// Request is the request body for FlareSolverr API.
type Request struct {
	Cmd        string   `json:"cmd"`
	URL        string   `json:"url"`
	MaxTimeout int      `json:"maxTimeout"`
	Cookies    []Cookie `json:"cookies,omitempty"`
}

// Client is a FlareSolverr API client.
type Client struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	log        *logging.Logger
}

// NewClient creates a new FlareSolverr client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration, log *logging.Logger) *Client {
	endpoint := ""
	if baseURL != "" {
		endpoint, _ = url.JoinPath(baseURL, "v1")
	}
	return &Client{
		endpoint: endpoint,
		timeout:  timeout,
		httpClient: &http.Client{
			Timeout: timeout + 10*time.Second,
		},
		log: log.WithComponent("flaresolverr"),
	}
}

// Get fetches targetURL through FlareSolverr. Cookies from a previous
// solution may be passed to skip a repeated challenge.
func (c *Client) Get(ctx context.Context, targetURL string, cookies []Cookie) (*Response, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("flaresolverr endpoint not configured")
	}
	c.log.Debug("fetching via FlareSolverr", "url", targetURL, "cookies", len(cookies))

	body, err := json.Marshal(Request{
		Cmd:        "request.get",
		URL:        targetURL,
		MaxTimeout: int(c.timeout.Milliseconds()),
		Cookies:    cookies,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("FlareSolverr returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var fsResp Response
	if err := json.Unmarshal(respBody, &fsResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if fsResp.Status != "ok" {
		return nil, fmt.Errorf("%w: %s", ErrUnsolved, fsResp.Message)
	}

	c.log.Debug("FlareSolverr request successful",
		"url", targetURL,
		"status", fsResp.Solution.Status,
		"cookies", len(fsResp.Solution.Cookies),
		"response_length", len(fsResp.Solution.Response))

	return &fsResp, nil
}

// ToHTTPCookies converts FlareSolverr cookies to http.Cookie slice.
func ToHTTPCookies(cookies []Cookie) []*http.Cookie {
	result := make([]*http.Cookie, len(cookies))
	for i, cookie := range cookies {
		result[i] = &http.Cookie{
			Name:     cookie.Name,
			Value:    cookie.Value,
			Domain:   cookie.Domain,
			Path:     cookie.Path,
			Secure:   cookie.Secure,
			HttpOnly: cookie.HTTPOnly,
		}
		if cookie.Expires > 0 {
			result[i].Expires = time.Unix(cookie.Expires, 0)
		}
	}
	return result
}

// IsConfigured returns true if the client has a service endpoint.
func (c *Client) IsConfigured() bool {
	return c != nil && c.endpoint != ""
}
