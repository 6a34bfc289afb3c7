package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"stream-proxy-go/pkg/config"
	"stream-proxy-go/pkg/logging"
	"stream-proxy-go/pkg/metrics"
)

func TestCheckPassword(t *testing.T) {
	tests := []struct {
		name           string
		configPassword string
		queryPassword  string
		bearerToken    string
		xAPIPassword   string
		expected       bool
	}{
		{name: "no password configured - allow access", expected: true},
		{name: "correct query parameter", configPassword: "secret123", queryPassword: "secret123", expected: true},
		{name: "wrong query parameter", configPassword: "secret123", queryPassword: "wrong", expected: false},
		{name: "correct bearer token", configPassword: "secret123", bearerToken: "secret123", expected: true},
		{name: "wrong bearer token", configPassword: "secret123", bearerToken: "wrong", expected: false},
		{name: "correct X-API-Password header", configPassword: "secret123", xAPIPassword: "secret123", expected: true},
		{name: "wrong X-API-Password header", configPassword: "secret123", xAPIPassword: "wrong", expected: false},
		{name: "no credentials provided", configPassword: "secret123", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqURL := "http://localhost/api/resolve"
			if tt.queryPassword != "" {
				reqURL += "?api_password=" + tt.queryPassword
			}

			req := httptest.NewRequest(http.MethodGet, reqURL, nil)
			if tt.bearerToken != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearerToken)
			}
			if tt.xAPIPassword != "" {
				req.Header.Set("X-API-Password", tt.xAPIPassword)
			}

			if got := CheckPassword(req, tt.configPassword); got != tt.expected {
				t.Errorf("CheckPassword() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestAuth(t *testing.T) {
	cfg := &config.Config{APIPassword: "secret123"}
	handlerCalled := false
	h := Auth(cfg, logging.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		url        string
		wantCalled bool
		wantStatus int
	}{
		{"unauthorized request", "http://localhost/api/resolve?id=tt1&type=movie", false, http.StatusUnauthorized},
		{"authorized request", "http://localhost/api/resolve?api_password=secret123", true, http.StatusOK},
		{"public info", "http://localhost/api/info", true, http.StatusOK},
		{"public manifest proxy", "http://localhost/api/stream?url=x", true, http.StatusOK},
		{"public segment proxy", "http://localhost/api/proxy-stream?url=x", true, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlerCalled = false
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.url, nil))

			if handlerCalled != tt.wantCalled {
				t.Errorf("handler called = %v, want %v", handlerCalled, tt.wantCalled)
			}
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-ID")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(seen) != 16 || w.Header().Get("X-Request-ID") != seen {
		t.Errorf("generated id = %q, header = %q", seen, w.Header().Get("X-Request-ID"))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "abc" {
		t.Errorf("kept id = %q, want abc", seen)
	}
}

func TestLogging_AttachesLogger(t *testing.T) {
	var buf strings.Builder
	log := logging.New("debug", true, &buf)
	fallback := logging.Discard()

	h := Logging(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if logging.FromContext(r.Context(), fallback) == fallback {
			t.Error("request logger not attached to context")
		}
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/info", nil))
	if !strings.Contains(buf.String(), `"status":418`) {
		t.Errorf("log output missing status: %s", buf.String())
	}
}

func TestMetrics_ObservesRoutePattern(t *testing.T) {
	m := metrics.New()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/info", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := Chain(mux, Metrics(m))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/info", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	if got, err := testutil.GatherAndCount(m.Registry(), "stream_proxy_http_requests_total"); err != nil || got != 2 {
		t.Errorf("series = %d, err = %v; want 2", got, err)
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	h := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/stream", nil))
	if called {
		t.Error("preflight should not reach the handler")
	}
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("status = %d, ACAO = %q", w.Code, w.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(logging.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
}

func TestResponseWriter_Flush(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrap(rec)
	rw.Write([]byte("x"))
	rw.Flush()
	if !rec.Flushed {
		t.Error("Flush not forwarded")
	}
}
