// Package interfaces defines the core abstractions for the stream proxy.
// The resolver pipeline, its page parsing and payload decoding are each
// behind an interface so upstream markup or cipher changes stay local to
// one implementation.
package interfaces

import (
	"context"
	"net/http"

	"stream-proxy-go/pkg/types"
)

// Resolver turns a stream request into a first-level manifest URL.
type Resolver interface {
	Resolve(ctx context.Context, req types.StreamRequest) (*types.Resolution, error)
}

// Fetcher retrieves an upstream page as text.
// An empty referer sends no Referer header.
type Fetcher interface {
	Fetch(ctx context.Context, targetURL, referer string) (string, error)
}

// PageExtractor holds every markup-dependent selector and pattern used by
// the resolver. Each method works on a page body and never fetches.
type PageExtractor interface {
	// PlayerFrame returns the player iframe src from the embed page.
	PlayerFrame(page string) (string, error)

	// ScriptSource returns the source path referenced by the player page script.
	ScriptSource(page string) (string, error)

	// DirectManifests returns manifest URLs appearing literally in the source page.
	DirectManifests(page string) []string

	// HiddenPayload returns the encoded payload hidden in the source page.
	HiddenPayload(page string) (types.EncodedPayload, error)
}

// Decoder derives plaintext from an encoded payload. Implementations must be
// deterministic for a given payload.
type Decoder interface {
	Decode(ctx context.Context, payload types.EncodedPayload) (string, error)
}

// StreamHandler serves one kind of proxied upstream resource.
type StreamHandler interface {
	// Type names the resource kind, e.g. "manifest" or "segment".
	Type() string

	// Handle fetches targetURL and returns the response to relay.
	Handle(ctx context.Context, targetURL string) (*types.StreamResponse, error)
}

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
