// Package decoder turns the encoded payload hidden in the source page into
// stream URLs. The cipher itself is opaque here: decoding is delegated to a
// fixture table or an external decoding service, and this package only
// provides the plumbing around it.
package decoder

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"stream-proxy-go/pkg/interfaces"
	"stream-proxy-go/pkg/types"
)

// DefaultStreamHost is substituted for {vN} placeholders when no host is configured.
const DefaultStreamHost = "cloudnestra.com"

// ErrNoDecoding is returned when a decoder has no answer for a payload.
var ErrNoDecoding = errors.New("payload could not be decoded")

var (
	hostPlaceholder = regexp.MustCompile(`\{v\d+\}`)
	orSeparator     = regexp.MustCompile(`\s+or\s+`)
)

// AddHost replaces every {vN} placeholder in raw with host.
func AddHost(raw, host string) string {
	if host == "" {
		host = DefaultStreamHost
	}
	return hostPlaceholder.ReplaceAllLiteralString(raw, host)
}

// HasPlaceholder reports whether s still contains a {vN} placeholder.
func HasPlaceholder(s string) bool {
	return hostPlaceholder.MatchString(s)
}

// SplitCandidates splits decoded text on the whitespace-delimited "or"
// separator. Results are trimmed, empty and duplicate entries are dropped,
// and order is preserved.
func SplitCandidates(decoded string) []string {
	parts := orSeparator.Split(strings.TrimSpace(decoded), -1)
	parts = lo.Map(parts, func(p string, _ int) string { return strings.TrimSpace(p) })
	parts = lo.Compact(parts)
	return lo.Uniq(parts)
}

// Func adapts a plain function to the Decoder interface.
type Func func(ctx context.Context, payload types.EncodedPayload) (string, error)

// Decode calls f.
func (f Func) Decode(ctx context.Context, payload types.EncodedPayload) (string, error) {
	return f(ctx, payload)
}

// Chain tries each decoder in order and returns the first non-empty result.
type Chain []interfaces.Decoder

// Decode implements interfaces.Decoder.
func (c Chain) Decode(ctx context.Context, payload types.EncodedPayload) (string, error) {
	var errs []error
	for _, d := range c {
		out, err := d.Decode(ctx, payload)
		if err == nil && strings.TrimSpace(out) != "" {
			return out, nil
		}
		if err != nil {
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return "", ErrNoDecoding
	}
	return "", fmt.Errorf("%w: %w", ErrNoDecoding, errors.Join(errs...))
}

var (
	_ interfaces.Decoder = Func(nil)
	_ interfaces.Decoder = Chain(nil)
)
