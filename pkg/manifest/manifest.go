// Package manifest rewrites HLS playlists so every nested playlist and media
// segment is fetched through the proxy endpoints.
package manifest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/grafov/m3u8"

	"stream-proxy-go/pkg/types"
	"stream-proxy-go/pkg/urlutil"
)

// ContentType is the media type served for rewritten playlists.
const ContentType = "application/vnd.apple.mpegurl"

// Kind classifies a playlist line.
type Kind int

const (
	KindTag   Kind = iota // directive or comment, starts with '#'
	KindBlank             // empty or whitespace only
	KindURI               // reference to a playlist or segment
)

// Line is one line of a playlist.
type Line struct {
	Text string
	Kind Kind
}

// Classify returns the kind of a single line.
func Classify(line string) Kind {
	switch {
	case strings.HasPrefix(line, "#"):
		return KindTag
	case strings.TrimSpace(line) == "":
		return KindBlank
	default:
		return KindURI
	}
}

// Parse splits text on "\n" and classifies each line. Line terminators other
// than "\n" stay part of the line text.
func Parse(text string) []Line {
	raw := strings.Split(text, "\n")
	lines := make([]Line, len(raw))
	for i, l := range raw {
		lines[i] = Line{Text: l, Kind: Classify(l)}
	}
	return lines
}

// Rewriter rewrites playlists against a public base URL.
type Rewriter struct {
	baseURL string
}

// NewRewriter creates a rewriter emitting links under baseURL.
func NewRewriter(baseURL string) *Rewriter {
	return &Rewriter{baseURL: strings.TrimRight(baseURL, "/")}
}

// Rewrite returns text with every URI line replaced by its proxy link.
// sourceURL is the URL text was fetched from; relative references resolve
// against it. Tag and blank lines are copied unchanged and line order is kept.
func (r *Rewriter) Rewrite(text, sourceURL string) (string, error) {
	if !urlutil.IsAbsoluteHTTP(sourceURL) {
		return "", fmt.Errorf("manifest source %q is not an absolute URL", sourceURL)
	}

	lines := Parse(text)
	out := make([]string, len(lines))
	for i, line := range lines {
		if line.Kind != KindURI {
			out[i] = line.Text
			continue
		}
		abs, err := urlutil.Resolve(line.Text, sourceURL)
		if err != nil {
			return "", fmt.Errorf("line %d: %w", i+1, err)
		}
		out[i] = urlutil.ProxyURL(r.baseURL, abs)
	}
	return strings.Join(out, "\n"), nil
}

// Qualities parses a master playlist and returns its variants with proxied
// URLs, highest bandwidth first. Variants without a RESOLUTION attribute are
// skipped. A media playlist yields no options.
func (r *Rewriter) Qualities(text, sourceURL string) ([]types.QualityOption, error) {
	playlist, listType, err := m3u8.DecodeFrom(strings.NewReader(text), false)
	if err != nil {
		return nil, fmt.Errorf("parse playlist: %w", err)
	}
	if listType != m3u8.MASTER {
		return nil, nil
	}

	master := playlist.(*m3u8.MasterPlaylist)
	options := make([]types.QualityOption, 0, len(master.Variants))
	for _, v := range master.Variants {
		if v == nil || v.URI == "" || v.Resolution == "" {
			continue
		}
		abs, err := urlutil.Resolve(v.URI, sourceURL)
		if err != nil {
			return nil, fmt.Errorf("variant %q: %w", v.URI, err)
		}
		options = append(options, types.QualityOption{
			Resolution: v.Resolution,
			Bandwidth:  int(v.Bandwidth),
			URL:        urlutil.ProxyURL(r.baseURL, abs),
		})
	}

	SortQualities(options)
	return options, nil
}

// SortQualities orders options by descending bandwidth. Ties keep playlist order.
func SortQualities(options []types.QualityOption) {
	sort.SliceStable(options, func(i, j int) bool {
		return options[i].Bandwidth > options[j].Bandwidth
	})
}
