package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stream-proxy-go/pkg/config"
	"stream-proxy-go/pkg/handlers/streams"
	"stream-proxy-go/pkg/httpclient"
	"stream-proxy-go/pkg/logging"
	"stream-proxy-go/pkg/manifest"
	"stream-proxy-go/pkg/resolver"
	"stream-proxy-go/pkg/subtitles"
	"stream-proxy-go/pkg/types"
)

const testBase = "http://localhost:7860"

type stubResolver struct {
	res *types.Resolution
	err error
}

func (r stubResolver) Resolve(context.Context, types.StreamRequest) (*types.Resolution, error) {
	return r.res, r.err
}

type pageFetcher map[string]string

func (p pageFetcher) Fetch(_ context.Context, targetURL, _ string) (string, error) {
	if body, ok := p[targetURL]; ok {
		return body, nil
	}
	return "", errors.New("unreachable")
}

func newTestService(t *testing.T, res stubResolver, pages pageFetcher) *ProxyService {
	t.Helper()
	log := logging.Discard()
	pool, err := httpclient.NewPool(config.Default(), log)
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	t.Cleanup(pool.Close)

	return NewProxyService(
		log,
		res,
		streams.NewManifestHandler(pages, manifest.NewRewriter(testBase), time.Second, log),
		streams.NewSegmentHandler(pool, nil, log),
		nil,
	)
}

const masterURL = "https://tmstr1.cloudnestra.com/pl/abc/master.m3u8"

const masterPlaylist = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=1200000,RESOLUTION=1280x720
720/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=4500000,RESOLUTION=1920x1080
1080/index.m3u8`

func TestProxyService_Playlist(t *testing.T) {
	res := &types.Resolution{ManifestURL: masterURL, Path: types.ResolvePathDirect}
	s := newTestService(t, stubResolver{res: res}, pageFetcher{masterURL: masterPlaylist})

	text, got, err := s.Playlist(context.Background(), types.StreamRequest{ContentID: "tt1", ContentType: types.ContentTypeMovie})
	if err != nil {
		t.Fatalf("Playlist() error = %v", err)
	}
	if got != res {
		t.Errorf("resolution = %+v", got)
	}
	want := testBase + "/api/stream?url=https%3A%2F%2Ftmstr1.cloudnestra.com%2Fpl%2Fabc%2F720%2Findex.m3u8&.m3u8"
	if lines := strings.Split(text, "\n"); lines[2] != want {
		t.Errorf("line 2 = %q, want %q", lines[2], want)
	}
}

func TestProxyService_Qualities(t *testing.T) {
	res := &types.Resolution{ManifestURL: masterURL}
	s := newTestService(t, stubResolver{res: res}, pageFetcher{masterURL: masterPlaylist})

	options, err := s.Qualities(context.Background(), types.StreamRequest{ContentID: "tt1", ContentType: types.ContentTypeMovie})
	if err != nil {
		t.Fatalf("Qualities() error = %v", err)
	}
	if len(options) != 2 || options[0].Bandwidth != 4500000 {
		t.Errorf("options = %+v", options)
	}
}

func TestProxyService_NotFound(t *testing.T) {
	s := newTestService(t, stubResolver{err: resolver.ErrStreamNotFound}, nil)
	req := types.StreamRequest{ContentID: "tt1", ContentType: types.ContentTypeMovie}

	if _, _, err := s.Playlist(context.Background(), req); !errors.Is(err, resolver.ErrStreamNotFound) {
		t.Errorf("Playlist() error = %v", err)
	}
	if _, err := s.Qualities(context.Background(), req); !errors.Is(err, resolver.ErrStreamNotFound) {
		t.Errorf("Qualities() error = %v", err)
	}
}

func TestProxyService_HandleSegment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp2t")
		w.Write([]byte("segment-bytes"))
	}))
	defer server.Close()

	s := newTestService(t, stubResolver{}, nil)
	resp, err := s.HandleSegment(context.Background(), " "+server.URL+"/a.ts ")
	if err != nil {
		t.Fatalf("HandleSegment() error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "segment-bytes" {
		t.Errorf("body = %q", body)
	}
}

func TestProxyService_RejectsRelativeTargets(t *testing.T) {
	s := newTestService(t, stubResolver{}, nil)
	for _, target := range []string{"", "/seg.ts", "ftp://host/seg.ts", "not a url"} {
		if _, err := s.HandleSegment(context.Background(), target); !errors.Is(err, ErrInvalidURL) {
			t.Errorf("HandleSegment(%q) error = %v", target, err)
		}
		if _, err := s.HandleManifest(context.Background(), target); !errors.Is(err, ErrInvalidURL) {
			t.Errorf("HandleManifest(%q) error = %v", target, err)
		}
	}
}

func TestProxyService_SubtitlesNotConfigured(t *testing.T) {
	s := newTestService(t, stubResolver{}, nil)
	if _, err := s.Subtitles(context.Background(), subtitles.Query{IMDbID: "tt1", Type: "movie"}); err == nil {
		t.Error("Subtitles() expected error without a client")
	}
}
