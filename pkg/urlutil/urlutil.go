// Package urlutil provides URL helpers shared by the resolver and the proxy.
package urlutil

import (
	"fmt"
	"net/url"
	"strings"
)

// Proxy endpoint paths and the extension markers appended to proxied links.
// Players sniff the trailing marker to pick a demuxer.
const (
	ManifestEndpoint = "/api/stream"
	SegmentEndpoint  = "/api/proxy-stream"

	ManifestMarker = ".m3u8"
	SegmentMarker  = ".ts"
)

// Resolve resolves ref against base using RFC 3986 reference resolution.
func Resolve(ref, base string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base %q: %w", base, err)
	}
	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parse reference %q: %w", ref, err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

// EnsureScheme turns a scheme-relative reference ("//host/path") into an
// https URL. Other references are resolved against base.
func EnsureScheme(ref, base string) (string, error) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "//") {
		return "https:" + ref, nil
	}
	return Resolve(ref, base)
}

// IsManifest reports whether an absolute URL points at a nested playlist.
// The marker match is case-sensitive.
func IsManifest(absoluteURL string) bool {
	return strings.Contains(absoluteURL, ManifestMarker)
}

// ProxyURL builds the same-origin link for target. Manifests are routed to
// the manifest endpoint, everything else to the segment endpoint.
func ProxyURL(baseURL, target string) string {
	if IsManifest(target) {
		return ManifestProxyURL(baseURL, target)
	}
	return SegmentProxyURL(baseURL, target)
}

// ManifestProxyURL returns <base>/api/stream?url=<target>&.m3u8
func ManifestProxyURL(baseURL, target string) string {
	return buildProxyURL(baseURL, ManifestEndpoint, target, ManifestMarker)
}

// SegmentProxyURL returns <base>/api/proxy-stream?url=<target>&.ts
func SegmentProxyURL(baseURL, target string) string {
	return buildProxyURL(baseURL, SegmentEndpoint, target, SegmentMarker)
}

func buildProxyURL(baseURL, endpoint, target, marker string) string {
	return strings.TrimRight(baseURL, "/") + endpoint + "?url=" + url.QueryEscape(target) + "&" + marker
}

// IsAbsoluteHTTP reports whether s is an absolute http(s) URL with a host.
func IsAbsoluteHTTP(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
