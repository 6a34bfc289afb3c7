// Package types defines core domain types used throughout the application.
package types

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// ContentType identifies what kind of title is being requested.
type ContentType string

const (
	ContentTypeMovie  ContentType = "movie"
	ContentTypeSeries ContentType = "series"
)

// ErrInvalidRequest is returned for stream requests that cannot be resolved
// regardless of upstream state.
var ErrInvalidRequest = errors.New("invalid stream request")

var contentIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ParseContentType accepts "movie", "series" and the "tv" alias.
func ParseContentType(s string) (ContentType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movie":
		return ContentTypeMovie, nil
	case "series", "tv":
		return ContentTypeSeries, nil
	}
	return "", fmt.Errorf("%w: unknown content type %q", ErrInvalidRequest, s)
}

// StreamRequest identifies a single playable title or episode.
type StreamRequest struct {
	ContentID   string      `json:"id"`
	ContentType ContentType `json:"type"`
	Season      int         `json:"season,omitempty"`
	Episode     int         `json:"episode,omitempty"`
}

// Normalize returns a copy with season/episode defaulted to 1 for series and
// cleared for movies.
func (r StreamRequest) Normalize() StreamRequest {
	r.ContentID = strings.TrimSpace(r.ContentID)
	switch r.ContentType {
	case ContentTypeSeries:
		if r.Season <= 0 {
			r.Season = 1
		}
		if r.Episode <= 0 {
			r.Episode = 1
		}
	default:
		r.Season, r.Episode = 0, 0
	}
	return r
}

// Validate reports whether the request can be turned into an embed URL.
func (r StreamRequest) Validate() error {
	if !contentIDPattern.MatchString(r.ContentID) {
		return fmt.Errorf("%w: bad content id %q", ErrInvalidRequest, r.ContentID)
	}
	if r.ContentType != ContentTypeMovie && r.ContentType != ContentTypeSeries {
		return fmt.Errorf("%w: unknown content type %q", ErrInvalidRequest, r.ContentType)
	}
	return nil
}

// Key is a stable identity for caching.
func (r StreamRequest) Key() string {
	if r.ContentType == ContentTypeSeries {
		return fmt.Sprintf("%s:%s:%d:%d", r.ContentType, r.ContentID, r.Season, r.Episode)
	}
	return fmt.Sprintf("%s:%s", r.ContentType, r.ContentID)
}

// Stage names a step of the resolver pipeline.
type Stage string

const (
	StageEmbed  Stage = "embed"
	StagePlayer Stage = "player"
	StageSource Stage = "source"
)

// HopResult is what one resolver stage fetched and what it pulled out of the page.
type HopResult struct {
	Stage     Stage
	URL       string
	Referer   string
	Body      string
	Reference string // URL extracted from Body for the next stage
}

// EncodedPayload is the hidden element found on the source page.
type EncodedPayload struct {
	ID         string
	CipherText string
}

// QualityOption is one variant of a master playlist.
type QualityOption struct {
	Resolution string `json:"resolution"`
	Bandwidth  int    `json:"bandwidth"`
	URL        string `json:"url"`
}

// ResolvePath records which branch of the source page produced a manifest URL.
type ResolvePath string

const (
	ResolvePathDirect  ResolvePath = "direct"
	ResolvePathPayload ResolvePath = "payload"
)

// Resolution is the outcome of a successful resolve.
type Resolution struct {
	ManifestURL string      `json:"manifest_url"`
	ProxyURL    string      `json:"proxy_url"`
	Path        ResolvePath `json:"path"`
}

// StreamResponse represents the result of stream processing.
type StreamResponse struct {
	ContentType string
	Headers     map[string]string
	Body        io.ReadCloser
	StatusCode  int
}
