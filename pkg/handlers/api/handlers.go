// Package api provides HTTP handlers for the proxy API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"stream-proxy-go/pkg/appctx"
	"stream-proxy-go/pkg/logging"
	"stream-proxy-go/pkg/manifest"
	"stream-proxy-go/pkg/resolver"
	"stream-proxy-go/pkg/subtitles"
	"stream-proxy-go/pkg/types"
)

// Client-facing error messages.
const (
	msgMissingURL       = "Missing url parameter"
	msgFetchFailed      = "Failed to fetch stream link"
	msgNotAvailable     = "Stream not available"
	msgMissingStream    = "Missing required parameters: id and type"
	msgInvalidStream    = "Invalid stream request"
	msgMissingSubParams = "Missing required parameters: imdbid and type"
	msgMissingEpisode   = "Missing required parameters for series: season and episode"
	msgSubtitlesFailed  = "Failed to fetch subtitles"
)

// copyBufferSize is the chunk size used when relaying segment bodies.
const copyBufferSize = 32 << 10

// Handlers contains all API handlers.
type Handlers struct {
	ctx *appctx.Context
	log *logging.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(ctx *appctx.Context) *Handlers {
	return &Handlers{
		ctx: ctx,
		log: ctx.Log.WithComponent("api"),
	}
}

// RegisterRoutes registers all API routes.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	// Public routes
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("GET /api/info", h.handleAPIInfo)
	mux.HandleFunc("GET /favicon.ico", h.handleFavicon)

	// Proxy routes
	mux.HandleFunc("GET /api/stream", h.handleStream)
	mux.HandleFunc("GET /api/proxy-stream", h.handleProxyStream)

	// Resolver routes
	mux.HandleFunc("GET /api/resolve", h.handleResolve)
	mux.HandleFunc("GET /api/qualities", h.handleQualities)
	mux.HandleFunc("GET /api/subtitles", h.handleSubtitles)

	if h.ctx.Metrics != nil {
		mux.Handle("GET /metrics", h.ctx.Metrics.Handler())
	}
}

// handleIndex serves a short endpoint overview.
func (h *Handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>StreamProxy</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; background: #0f0f0f; color: #fff; max-width: 760px; margin: 0 auto; padding: 40px 20px; line-height: 1.6; }
        h1 { color: #3b82f6; }
        code { background: #242424; padding: 2px 6px; border-radius: 4px; }
        li { margin-bottom: 8px; }
        .muted { color: #a0a0a0; }
    </style>
</head>
<body>
    <h1>StreamProxy</h1>
    <p class="muted">Version %s</p>
    <ul>
        <li><code>GET /api/resolve?id=&amp;type=movie|series&amp;season=&amp;episode=</code> resolve a title to a playable manifest</li>
        <li><code>GET /api/qualities?id=&amp;type=</code> list the variants of a resolved master playlist</li>
        <li><code>GET /api/stream?url=</code> rewritten playlist proxy</li>
        <li><code>GET /api/proxy-stream?url=</code> media segment proxy</li>
        <li><code>GET /api/subtitles?imdbid=&amp;type=&amp;language=</code> best subtitle match</li>
        <li><code>GET /api/info</code> server status</li>
    </ul>
</body>
</html>`, appctx.Version)
}

// handleAPIInfo returns server status as JSON.
func (h *Handlers) handleAPIInfo(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "running",
		"version":  appctx.Version,
		"base_url": h.ctx.BaseURL,
	})
}

// handleFavicon serves the favicon.
func (h *Handlers) handleFavicon(w http.ResponseWriter, r *http.Request) {
	http.NotFound(w, r)
}

// handleStream proxies and rewrites a playlist.
func (h *Handlers) handleStream(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		h.writeError(w, http.StatusBadRequest, msgMissingURL)
		return
	}

	resp, err := h.ctx.ProxyService.HandleManifest(r.Context(), target)
	if err != nil {
		h.requestLog(r).Error("proxy manifest failed", "url", target, "error", err)
		h.writeError(w, http.StatusInternalServerError, msgFetchFailed)
		return
	}

	h.writeStreamResponse(w, resp)
}

// handleProxyStream relays a media segment.
func (h *Handlers) handleProxyStream(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		h.writeError(w, http.StatusBadRequest, msgMissingURL)
		return
	}

	resp, err := h.ctx.ProxyService.HandleSegment(r.Context(), target)
	if err != nil {
		h.requestLog(r).Error("proxy stream failed", "url", target, "error", err)
		h.writeError(w, http.StatusInternalServerError, msgFetchFailed)
		return
	}

	h.writeStreamResponse(w, resp)
}

// handleResolve resolves a title. format=m3u8 returns the rewritten
// playlist instead of JSON.
func (h *Handlers) handleResolve(w http.ResponseWriter, r *http.Request) {
	req, status, msg := parseStreamRequest(r)
	if status != 0 {
		h.writeError(w, status, msg)
		return
	}

	if strings.EqualFold(r.URL.Query().Get("format"), "m3u8") {
		text, _, err := h.ctx.ProxyService.Playlist(r.Context(), req)
		if err != nil {
			h.writeResolveError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", manifest.ContentType)
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, text)
		return
	}

	res, err := h.ctx.ProxyService.Resolve(r.Context(), req)
	if err != nil {
		h.writeResolveError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// handleQualities lists the variants of the resolved master playlist.
func (h *Handlers) handleQualities(w http.ResponseWriter, r *http.Request) {
	req, status, msg := parseStreamRequest(r)
	if status != 0 {
		h.writeError(w, status, msg)
		return
	}

	options, err := h.ctx.ProxyService.Qualities(r.Context(), req)
	if err != nil {
		h.writeResolveError(w, r, err)
		return
	}
	if options == nil {
		options = []types.QualityOption{}
	}
	h.writeJSON(w, http.StatusOK, options)
}

// handleSubtitles returns the best subtitle for a title.
func (h *Handlers) handleSubtitles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := subtitles.Query{
		IMDbID:   q.Get("imdbid"),
		Type:     q.Get("type"),
		Season:   q.Get("season"),
		Episode:  q.Get("episode"),
		Language: q.Get("language"),
	}

	switch err := query.Validate(); {
	case errors.Is(err, subtitles.ErrMissingParams):
		h.writeError(w, http.StatusBadRequest, msgMissingSubParams)
		return
	case errors.Is(err, subtitles.ErrMissingEpisode):
		h.writeError(w, http.StatusBadRequest, msgMissingEpisode)
		return
	}

	match, err := h.ctx.ProxyService.Subtitles(r.Context(), query)
	if err != nil {
		h.requestLog(r).Error("subtitles lookup failed", "imdbid", query.IMDbID, "error", err)
		h.writeError(w, http.StatusInternalServerError, msgSubtitlesFailed)
		return
	}
	if match == nil {
		h.writeJSON(w, http.StatusOK, map[string]any{"subtitles": []any{}})
		return
	}
	h.writeJSON(w, http.StatusOK, match)
}

// Helper methods

// parseStreamRequest reads id, type, season and episode. A non-zero status
// means the request is malformed.
func parseStreamRequest(r *http.Request) (types.StreamRequest, int, string) {
	q := r.URL.Query()
	id, kind := strings.TrimSpace(q.Get("id")), q.Get("type")
	if id == "" || kind == "" {
		return types.StreamRequest{}, http.StatusBadRequest, msgMissingStream
	}

	contentType, err := types.ParseContentType(kind)
	if err != nil {
		return types.StreamRequest{}, http.StatusBadRequest, msgInvalidStream
	}

	req := types.StreamRequest{ContentID: id, ContentType: contentType}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"season", &req.Season}, {"episode", &req.Episode}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return types.StreamRequest{}, http.StatusBadRequest, msgInvalidStream
		}
		*p.dst = n
	}

	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return types.StreamRequest{}, http.StatusBadRequest, msgInvalidStream
	}
	return req, 0, ""
}

func (h *Handlers) writeResolveError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, resolver.ErrStreamNotFound) {
		h.writeError(w, http.StatusNotFound, msgNotAvailable)
		return
	}
	h.requestLog(r).Error("playlist fetch failed", "error", err)
	h.writeError(w, http.StatusInternalServerError, msgFetchFailed)
}

func (h *Handlers) requestLog(r *http.Request) *logging.Logger {
	return logging.FromContext(r.Context(), h.log)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeStreamResponse writes resp, flushing after every chunk so segments
// are relayed as they arrive.
func (h *Handlers) writeStreamResponse(w http.ResponseWriter, resp *types.StreamResponse) {
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}

	w.WriteHeader(resp.StatusCode)

	if resp.Body == nil {
		return
	}
	defer resp.Body.Close()

	rc := http.NewResponseController(w)
	buf := make([]byte, copyBufferSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			rc.Flush()
		}
		if err != nil {
			if err != io.EOF {
				h.log.Debug("stream relay ended early", "error", err)
			}
			return
		}
	}
}
