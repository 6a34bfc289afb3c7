package urlutil

import (
	"net/url"
	"testing"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		base string
		want string
	}{
		{
			name: "absolute URL unchanged",
			ref:  "https://example.com/video.ts",
			base: "https://other.com/manifest.m3u8",
			want: "https://example.com/video.ts",
		},
		{
			name: "relative path",
			ref:  "segment001.ts",
			base: "https://cdn.example.com/stream/manifest.m3u8",
			want: "https://cdn.example.com/stream/segment001.ts",
		},
		{
			name: "absolute path",
			ref:  "/video/segment001.ts",
			base: "https://cdn.example.com/stream/manifest.m3u8",
			want: "https://cdn.example.com/video/segment001.ts",
		},
		{
			name: "parent directory reference",
			ref:  "../audio/segment001.ts",
			base: "https://cdn.example.com/stream/video/manifest.m3u8",
			want: "https://cdn.example.com/stream/audio/segment001.ts",
		},
		{
			name: "multiple parent references",
			ref:  "../../other/segment.ts",
			base: "https://cdn.example.com/a/b/c/manifest.m3u8",
			want: "https://cdn.example.com/a/other/segment.ts",
		},
		{
			name: "base with query string",
			ref:  "segment.ts",
			base: "https://cdn.example.com/stream/manifest.m3u8?token=abc",
			want: "https://cdn.example.com/stream/segment.ts",
		},
		{
			name: "reference keeps its own query",
			ref:  "720p/index.m3u8?sig=xyz",
			base: "https://cdn.example.com/pl/token/master.m3u8",
			want: "https://cdn.example.com/pl/token/720p/index.m3u8?sig=xyz",
		},
		{
			name: "scheme relative",
			ref:  "//edge.example.com/seg.ts",
			base: "https://cdn.example.com/stream/manifest.m3u8",
			want: "https://edge.example.com/seg.ts",
		},
		{
			name: "surrounding whitespace trimmed",
			ref:  "  seg.ts\r",
			base: "https://cdn.example.com/s/index.m3u8",
			want: "https://cdn.example.com/s/seg.ts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.ref, tt.base)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolve_InvalidBase(t *testing.T) {
	if _, err := Resolve("seg.ts", "http://[::1"); err == nil {
		t.Error("Resolve() expected error for malformed base")
	}
}

func TestEnsureScheme(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		base string
		want string
	}{
		{"scheme relative", "//cloudnestra.com/rcp/abc", "https://vidsrc-embed.ru/embed/movie/tt1", "https://cloudnestra.com/rcp/abc"},
		{"absolute", "https://cloudnestra.com/rcp/abc", "https://vidsrc-embed.ru/", "https://cloudnestra.com/rcp/abc"},
		{"host relative", "/rcp/abc", "https://vidsrc-embed.ru/embed/movie/tt1", "https://vidsrc-embed.ru/rcp/abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EnsureScheme(tt.ref, tt.base)
			if err != nil {
				t.Fatalf("EnsureScheme() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("EnsureScheme() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProxyURL(t *testing.T) {
	base := "http://localhost:7860"

	tests := []struct {
		name   string
		target string
		want   string
	}{
		{
			name:   "manifest",
			target: "https://cdn.example.com/a/index.m3u8",
			want:   "http://localhost:7860/api/stream?url=" + url.QueryEscape("https://cdn.example.com/a/index.m3u8") + "&.m3u8",
		},
		{
			name:   "upper-case marker is a segment",
			target: "https://cdn.example.com/a/INDEX.M3U8?x=1",
			want:   "http://localhost:7860/api/proxy-stream?url=" + url.QueryEscape("https://cdn.example.com/a/INDEX.M3U8?x=1") + "&.ts",
		},
		{
			name:   "segment",
			target: "https://cdn.example.com/a/seg-1.ts?x=1&y=2",
			want:   "http://localhost:7860/api/proxy-stream?url=" + url.QueryEscape("https://cdn.example.com/a/seg-1.ts?x=1&y=2") + "&.ts",
		},
		{
			name:   "extensionless segment",
			target: "https://cdn.example.com/a/chunk/42",
			want:   "http://localhost:7860/api/proxy-stream?url=" + url.QueryEscape("https://cdn.example.com/a/chunk/42") + "&.ts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProxyURL(base, tt.target); got != tt.want {
				t.Errorf("ProxyURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProxyURL_RoundTripsTarget(t *testing.T) {
	target := "https://cdn.example.com/pl/a+b=/seg 1.ts?token=x&e=1"
	link := SegmentProxyURL("http://localhost:7860/", target)

	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse proxy url: %v", err)
	}
	if u.Path != SegmentEndpoint {
		t.Errorf("path = %q, want %q", u.Path, SegmentEndpoint)
	}
	if got := u.Query().Get("url"); got != target {
		t.Errorf("url param = %q, want %q", got, target)
	}
}

func TestIsAbsoluteHTTP(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"https://a.example/x.m3u8", true},
		{"http://a.example", true},
		{"ftp://a.example/x", false},
		{"/relative/path", false},
		{"https://", false},
	}

	for _, tt := range tests {
		if got := IsAbsoluteHTTP(tt.input); got != tt.want {
			t.Errorf("IsAbsoluteHTTP(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

