// Package subtitles looks up the best-scored subtitle for a title on the
// OpenSubtitles REST search API.
package subtitles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"

	"stream-proxy-go/pkg/interfaces"
	"stream-proxy-go/pkg/logging"
)

// DefaultLanguage is the OpenSubtitles language id used when none is given.
const DefaultLanguage = "eng"

// Query validation errors.
var (
	ErrMissingParams  = errors.New("missing imdbid or type")
	ErrMissingEpisode = errors.New("missing season or episode for series")
)

// Query selects the subtitles to search for.
type Query struct {
	IMDbID   string
	Type     string
	Season   string
	Episode  string
	Language string
}

// IsSeries reports whether the query targets an episode.
func (q Query) IsSeries() bool {
	t := strings.ToLower(q.Type)
	return t == "series" || t == "tv"
}

// Validate checks the required fields.
func (q Query) Validate() error {
	if strings.TrimSpace(q.IMDbID) == "" || strings.TrimSpace(q.Type) == "" {
		return ErrMissingParams
	}
	if q.IsSeries() && (q.Season == "" || q.Episode == "") {
		return ErrMissingEpisode
	}
	return nil
}

// Result is one entry of the search response. Only the fields used here
// are decoded.
type Result struct {
	IDSubtitleFile  string  `json:"IDSubtitleFile"`
	SubFileName     string  `json:"SubFileName"`
	SubFormat       string  `json:"SubFormat"`
	SubLanguageID   string  `json:"SubLanguageID"`
	LanguageName    string  `json:"LanguageName"`
	ISO639          string  `json:"ISO639"`
	SubDownloadLink string  `json:"SubDownloadLink"`
	Score           float64 `json:"Score"`
}

// Match is the subtitle returned to clients.
type Match struct {
	SubtitleURL string `json:"subtitleUrl"`
	Format      string `json:"format"`
	Language    string `json:"language"`
	FileName    string `json:"fileName"`
}

// Client queries the search API.
type Client struct {
	baseURL string
	http    interfaces.HTTPClient
	timeout time.Duration
	log     *logging.Logger
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL string, client interfaces.HTTPClient, timeout time.Duration, log *logging.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client,
		timeout: timeout,
		log:     log.WithComponent("subtitles"),
	}
}

// SearchURL builds the search URL for q. The imdb id loses its "tt" prefix.
func (c *Client) SearchURL(q Query) string {
	id := strings.Replace(strings.TrimSpace(q.IMDbID), "tt", "", 1)
	lang := q.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	if q.IsSeries() {
		return fmt.Sprintf("%s/search/episode-%s/imdbid-%s/season-%s/sublanguageid-%s", c.baseURL, q.Episode, id, q.Season, lang)
	}
	return fmt.Sprintf("%s/search/imdbid-%s/sublanguageid-%s", c.baseURL, id, lang)
}

// Search returns the highest-scored subtitle for q, or nil when the API
// has none.
func (c *Client) Search(ctx context.Context, q Query) (*Match, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	searchURL := c.SearchURL(q)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	req.Header.Set("Origin", "https://cloudnestra.com")
	req.Header.Set("Referer", "https://cloudnestra.com/")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36")
	req.Header.Set("X-User-Agent", "trailers.to-UA")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query subtitles: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, fmt.Errorf("subtitles API returned status %d", resp.StatusCode)
	}

	var results []Result
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode subtitles response: %w", err)
	}

	c.log.Debug("subtitles search", "url", searchURL, "results", len(results))
	return Best(results), nil
}

// Best picks the highest Score; the first wins a tie. It returns nil for an
// empty slice.
func Best(results []Result) *Match {
	if len(results) == 0 {
		return nil
	}
	best := lo.MaxBy(results, func(a, b Result) bool { return a.Score > b.Score })
	return &Match{
		SubtitleURL: strings.Replace(best.SubDownloadLink, "gz", "srt", 1),
		Format:      best.SubFormat,
		Language:    best.LanguageName,
		FileName:    best.SubFileName,
	}
}
