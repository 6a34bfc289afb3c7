// Package config handles application configuration from environment variables
// and an optional TOML overlay file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultUserAgent is the browser User-Agent sent on every upstream page fetch.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/142.0.0.0 Safari/537.36"

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port         int           `toml:"port"`
	BaseURL      string        `toml:"base_url"`
	ReadTimeout  time.Duration `toml:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout"`
	IdleTimeout  time.Duration `toml:"idle_timeout"`

	// Authentication
	APIPassword string `toml:"api_password"`

	// Proxy settings
	GlobalProxies   []string         `toml:"global_proxies"`
	TransportRoutes []TransportRoute `toml:"transport_routes"`

	// Upstream embed chain
	EmbedBaseURL  string `toml:"embed_base_url"`
	PlayerBaseURL string `toml:"player_base_url"`
	StreamHost    string `toml:"stream_host"`
	UserAgent     string `toml:"user_agent"`

	// Timeouts for outbound fetches
	HopTimeout           time.Duration `toml:"hop_timeout"`
	FetchTimeout         time.Duration `toml:"fetch_timeout"`
	SegmentHeaderTimeout time.Duration `toml:"segment_header_timeout"`

	// Segment pool
	SegmentMaxConnsPerHost int     `toml:"segment_max_conns_per_host"`
	SegmentRateLimit       float64 `toml:"segment_rate_limit"`
	SegmentRateBurst       int     `toml:"segment_rate_burst"`

	// Resolution cache, disabled when TTL is zero
	ResolveCacheTTL  time.Duration `toml:"resolve_cache_ttl"`
	ResolveCacheSize int           `toml:"resolve_cache_size"`

	// Payload decoding
	DecoderURL   string `toml:"decoder_url"`
	DecoderTable string `toml:"decoder_table"`

	// Subtitles
	SubtitlesBaseURL string `toml:"subtitles_base_url"`

	// Logging
	LogLevel string `toml:"log_level"`
	LogJSON  bool   `toml:"log_json"`

	// Metrics
	MetricsEnabled bool `toml:"metrics_enabled"`

	// FlareSolverr settings (for Cloudflare bypass)
	FlareSolverrURL     string        `toml:"flaresolverr_url"`
	FlareSolverrTimeout time.Duration `toml:"flaresolverr_timeout"`
}

// TransportRoute defines URL-specific proxy routing.
type TransportRoute struct {
	URLPattern string `toml:"url"`
	Proxy      string `toml:"proxy"`
	DisableSSL bool   `toml:"disable_ssl"`
	Direct     bool   `toml:"direct"` // If true, bypass global proxy and connect directly
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Port:                   7860,
		ReadTimeout:            30 * time.Second,
		WriteTimeout:           0,
		IdleTimeout:            60 * time.Second,
		EmbedBaseURL:           "https://vidsrc-embed.ru",
		PlayerBaseURL:          "https://cloudnestra.com",
		StreamHost:             "cloudnestra.com",
		UserAgent:              DefaultUserAgent,
		HopTimeout:             15 * time.Second,
		FetchTimeout:           15 * time.Second,
		SegmentHeaderTimeout:   15 * time.Second,
		SegmentMaxConnsPerHost: 32,
		SegmentRateLimit:       50,
		SegmentRateBurst:       100,
		ResolveCacheSize:       256,
		SubtitlesBaseURL:       "https://rest.opensubtitles.org",
		LogLevel:               "info",
		MetricsEnabled:         true,
		FlareSolverrTimeout:    60 * time.Second,
	}
}

// Load builds the configuration: defaults < CONFIG_FILE (TOML) < environment.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays values from a TOML file onto c. Keys absent from the
// file keep their current value. Durations are written as strings ("15s").
func (c *Config) LoadFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown keys in config file %s: %v", path, undecoded)
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	for name, raw := range map[string]string{
		"BASE_URL":        c.BaseURL,
		"EMBED_BASE_URL":  c.EmbedBaseURL,
		"PLAYER_BASE_URL": c.PlayerBaseURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid %s: %q", name, raw)
		}
	}
	if c.StreamHost == "" {
		return fmt.Errorf("STREAM_HOST must not be empty")
	}
	if c.HopTimeout <= 0 {
		return fmt.Errorf("HOP_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnvInt("PORT", c.Port)
	c.BaseURL = getEnvString("BASE_URL", c.BaseURL)
	c.ReadTimeout = getEnvDuration("READ_TIMEOUT", c.ReadTimeout)
	c.WriteTimeout = getEnvDuration("WRITE_TIMEOUT", c.WriteTimeout)
	c.IdleTimeout = getEnvDuration("IDLE_TIMEOUT", c.IdleTimeout)
	c.APIPassword = getEnvString("API_PASSWORD", c.APIPassword)
	c.GlobalProxies = getEnvStringSlice("GLOBAL_PROXIES", c.GlobalProxies)
	c.EmbedBaseURL = strings.TrimRight(getEnvString("EMBED_BASE_URL", c.EmbedBaseURL), "/")
	c.PlayerBaseURL = strings.TrimRight(getEnvString("PLAYER_BASE_URL", c.PlayerBaseURL), "/")
	c.StreamHost = getEnvString("STREAM_HOST", c.StreamHost)
	c.UserAgent = getEnvString("USER_AGENT", c.UserAgent)
	c.HopTimeout = getEnvDuration("HOP_TIMEOUT", c.HopTimeout)
	c.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", c.FetchTimeout)
	c.SegmentHeaderTimeout = getEnvDuration("SEGMENT_HEADER_TIMEOUT", c.SegmentHeaderTimeout)
	c.SegmentMaxConnsPerHost = getEnvInt("SEGMENT_MAX_CONNS_PER_HOST", c.SegmentMaxConnsPerHost)
	c.SegmentRateLimit = getEnvFloat("SEGMENT_RATE_LIMIT", c.SegmentRateLimit)
	c.SegmentRateBurst = getEnvInt("SEGMENT_RATE_BURST", c.SegmentRateBurst)
	c.ResolveCacheTTL = getEnvDuration("RESOLVE_CACHE_TTL", c.ResolveCacheTTL)
	c.ResolveCacheSize = getEnvInt("RESOLVE_CACHE_SIZE", c.ResolveCacheSize)
	c.DecoderURL = getEnvString("DECODER_URL", c.DecoderURL)
	c.DecoderTable = getEnvString("DECODER_TABLE", c.DecoderTable)
	c.SubtitlesBaseURL = strings.TrimRight(getEnvString("SUBTITLES_BASE_URL", c.SubtitlesBaseURL), "/")
	c.LogLevel = getEnvString("LOG_LEVEL", c.LogLevel)
	c.LogJSON = getEnvBool("LOG_JSON", c.LogJSON)
	c.MetricsEnabled = getEnvBool("METRICS_ENABLED", c.MetricsEnabled)
	c.FlareSolverrURL = getEnvString("FLARESOLVERR_URL", c.FlareSolverrURL)
	c.FlareSolverrTimeout = getEnvDuration("FLARESOLVERR_TIMEOUT", c.FlareSolverrTimeout)

	if routes := parseTransportRoutes(os.Getenv("TRANSPORT_ROUTES")); routes != nil {
		c.TransportRoutes = routes
	}

	// Legacy single proxy support
	if globalProxy := os.Getenv("GLOBAL_PROXY"); globalProxy != "" && len(c.GlobalProxies) == 0 {
		c.GlobalProxies = []string{globalProxy}
	}
}

// parseTransportRoutes parses the TRANSPORT_ROUTES env var.
// Format: {URL=pattern, PROXY=url, DISABLE_SSL=true}, {URL=pattern2}
func parseTransportRoutes(s string) []TransportRoute {
	if s == "" {
		return nil
	}

	var routes []TransportRoute
	s = strings.TrimSpace(s)

	parts := strings.Split(s, "}, {")
	for _, part := range parts {
		part = strings.Trim(part, "{} ")
		if part == "" {
			continue
		}

		route := TransportRoute{}
		for _, field := range strings.Split(part, ", ") {
			kv := strings.SplitN(field, "=", 2)
			if len(kv) != 2 {
				continue
			}
			key := strings.TrimSpace(kv[0])
			value := strings.TrimSpace(kv[1])

			switch strings.ToUpper(key) {
			case "URL":
				route.URLPattern = value
			case "PROXY":
				route.Proxy = value
			case "DISABLE_SSL":
				route.DisableSSL = strings.ToLower(value) == "true"
			case "DIRECT":
				route.Direct = strings.ToLower(value) == "true"
			}
		}
		if route.URLPattern != "" {
			routes = append(routes, route)
		}
	}

	return routes
}

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return strings.ToLower(val) == "true" || val == "1"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, ok := parseDuration(val); ok {
			return d
		}
	}
	return defaultVal
}

// parseDuration accepts integer seconds or a Go duration string.
func parseDuration(val string) (time.Duration, bool) {
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d, true
	}
	return 0, false
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return defaultVal
}
