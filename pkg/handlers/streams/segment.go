package streams

import (
	"context"
	"fmt"
	"io"

	"stream-proxy-go/pkg/httpclient"
	"stream-proxy-go/pkg/interfaces"
	"stream-proxy-go/pkg/logging"
	"stream-proxy-go/pkg/metrics"
	"stream-proxy-go/pkg/types"
)

// DefaultSegmentContentType is sent when the upstream does not name one.
const DefaultSegmentContentType = "application/octet-stream"

// SegmentHandler relays media segments through the shared connection pool.
// Bodies are streamed, never buffered.
type SegmentHandler struct {
	pool    *httpclient.Pool
	metrics *metrics.Metrics
	log     *logging.Logger
}

// NewSegmentHandler creates a segment handler. m may be nil.
func NewSegmentHandler(pool *httpclient.Pool, m *metrics.Metrics, log *logging.Logger) *SegmentHandler {
	return &SegmentHandler{
		pool:    pool,
		metrics: m,
		log:     log.WithComponent("segment-handler"),
	}
}

// Type returns the handled resource kind.
func (h *SegmentHandler) Type() string {
	return "segment"
}

// Handle opens the upstream segment. The caller owns the returned body.
// 2xx statuses such as 206 are passed through; anything else is an error.
func (h *SegmentHandler) Handle(ctx context.Context, targetURL string) (*types.StreamResponse, error) {
	h.log.Debug("handling segment", "url", targetURL)

	resp, err := h.pool.Get(ctx, targetURL)
	if err != nil {
		h.metrics.ObserveUpstream("segment", 0)
		return nil, fmt.Errorf("failed to fetch segment: %w", err)
	}
	h.metrics.ObserveUpstream("segment", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &httpclient.StatusError{URL: targetURL, StatusCode: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = DefaultSegmentContentType
	}

	headers := map[string]string{
		"Access-Control-Allow-Origin": "*",
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		headers["Content-Length"] = cl
	}

	return &types.StreamResponse{
		ContentType: contentType,
		Body:        &countingBody{ReadCloser: resp.Body, metrics: h.metrics},
		StatusCode:  resp.StatusCode,
		Headers:     headers,
	}, nil
}

// countingBody reports relayed bytes as they are read.
type countingBody struct {
	io.ReadCloser
	metrics *metrics.Metrics
}

func (b *countingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.metrics.AddSegmentBytes(int64(n))
	return n, err
}

var _ interfaces.StreamHandler = (*SegmentHandler)(nil)
