package resolver

import (
	"errors"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"

	"stream-proxy-go/pkg/interfaces"
	"stream-proxy-go/pkg/types"
)

// Parse-miss errors returned by the page extractor.
var (
	ErrFrameNotFound   = errors.New("player iframe not found")
	ErrScriptNotFound  = errors.New("source script path not found")
	ErrPayloadNotFound = errors.New("hidden payload not found")
)

var (
	scriptSourcePattern = regexp.MustCompile(`src\s*:\s*['"](/prorcp/[A-Za-z0-9+/=-]+)['"]`)
	directManifestRegex = regexp.MustCompile(`https://tmstr\d*\.(?:\{v\d+\}|[A-Za-z0-9.-]+)/(?:pl|cdnstr)/[A-Za-z0-9._\-]+/(?:master|list)\.m3u8`)
)

// CloudnestraExtractor reads the vidsrc embed page and the cloudnestra
// player and source pages.
type CloudnestraExtractor struct{}

// NewCloudnestraExtractor returns the extractor for the current upstream markup.
func NewCloudnestraExtractor() *CloudnestraExtractor {
	return &CloudnestraExtractor{}
}

// PlayerFrame returns the raw src of iframe#player_iframe.
func (e *CloudnestraExtractor) PlayerFrame(page string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", err
	}
	src, ok := doc.Find("#player_iframe").First().Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		return "", ErrFrameNotFound
	}
	return strings.TrimSpace(src), nil
}

// ScriptSource returns the /prorcp/ path assigned to src: in the player script.
func (e *CloudnestraExtractor) ScriptSource(page string) (string, error) {
	m := scriptSourcePattern.FindStringSubmatch(page)
	if m == nil {
		return "", ErrScriptNotFound
	}
	return m[1], nil
}

// DirectManifests returns every literal tmstr manifest URL in the page,
// deduplicated, in page order. Host placeholders are left as-is.
func (e *CloudnestraExtractor) DirectManifests(page string) []string {
	return lo.Uniq(directManifestRegex.FindAllString(page, -1))
}

// HiddenPayload returns the first element hidden with display:none that
// carries both an id and text.
func (e *CloudnestraExtractor) HiddenPayload(page string) (types.EncodedPayload, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return types.EncodedPayload{}, err
	}

	var payload types.EncodedPayload
	doc.Find("[style][id]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		style, _ := s.Attr("style")
		if !isHidden(style) {
			return true
		}
		id, _ := s.Attr("id")
		text := strings.TrimSpace(s.Text())
		if id == "" || text == "" {
			return true
		}
		payload = types.EncodedPayload{ID: id, CipherText: text}
		return false
	})

	if payload.ID == "" {
		return types.EncodedPayload{}, ErrPayloadNotFound
	}
	return payload, nil
}

// isHidden reports whether an inline style declares display:none.
func isHidden(style string) bool {
	normalized := strings.ToLower(strings.Join(strings.Fields(style), ""))
	for _, decl := range strings.Split(normalized, ";") {
		if decl == "display:none" || decl == "display:none!important" {
			return true
		}
	}
	return false
}

var _ interfaces.PageExtractor = (*CloudnestraExtractor)(nil)
