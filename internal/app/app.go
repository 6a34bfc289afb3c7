// Package app provides the main application setup and dependency injection.
package app

import (
	"context"
	"fmt"
	"os"

	"stream-proxy-go/pkg/appctx"
	"stream-proxy-go/pkg/config"
	"stream-proxy-go/pkg/decoder"
	"stream-proxy-go/pkg/flaresolverr"
	"stream-proxy-go/pkg/handlers/api"
	"stream-proxy-go/pkg/handlers/streams"
	"stream-proxy-go/pkg/httpclient"
	"stream-proxy-go/pkg/interfaces"
	"stream-proxy-go/pkg/logging"
	"stream-proxy-go/pkg/manifest"
	"stream-proxy-go/pkg/metrics"
	"stream-proxy-go/pkg/resolver"
	"stream-proxy-go/pkg/server"
	"stream-proxy-go/pkg/services"
	"stream-proxy-go/pkg/subtitles"
)

// App is the main application container.
type App struct {
	Ctx        *appctx.Context
	Server     *server.Server
	HTTPClient *httpclient.Client
	Pool       *httpclient.Pool
	Resolver   *resolver.Resolver
}

// New creates and initializes the application from cfg.
func New(cfg *config.Config) (*App, error) {
	// Initialize logger
	log := logging.New(cfg.LogLevel, cfg.LogJSON, os.Stderr)
	log.Info("initializing StreamProxy", "port", cfg.Port, "log_level", cfg.LogLevel, "version", appctx.Version)

	// Create application context
	ctx := appctx.New(cfg, log)

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
		ctx.WithMetrics(m)
	}

	// Create HTTP client
	httpClient := httpclient.New(cfg, log)

	// Create FlareSolverr client if configured
	var flareClient *flaresolverr.Client
	if cfg.FlareSolverrURL != "" {
		flareClient = flaresolverr.NewClient(cfg.FlareSolverrURL, cfg.FlareSolverrTimeout, log)
		log.Info("FlareSolverr client enabled", "url", cfg.FlareSolverrURL)
	}

	fetcher := httpclient.NewPageFetcher(httpClient, cfg.UserAgent, flareClient, m, log)

	dec, err := buildDecoder(cfg, httpClient, log)
	if err != nil {
		httpClient.Close()
		return nil, err
	}

	res := resolver.New(fetcher, resolver.NewCloudnestraExtractor(), dec, resolver.OptionsFromConfig(cfg), log).
		WithCache(resolver.NewCache(cfg.ResolveCacheSize, cfg.ResolveCacheTTL)).
		WithMetrics(m)

	// Segment connections get their own bounded pool
	pool, err := httpclient.NewPool(cfg, log)
	if err != nil {
		httpClient.Close()
		return nil, fmt.Errorf("segment pool: %w", err)
	}

	manifests := streams.NewManifestHandler(fetcher, manifest.NewRewriter(cfg.BaseURL), cfg.FetchTimeout, log)
	segments := streams.NewSegmentHandler(pool, m, log)

	var subs *subtitles.Client
	if cfg.SubtitlesBaseURL != "" {
		subs = subtitles.NewClient(cfg.SubtitlesBaseURL, httpClient, cfg.FetchTimeout, log)
	}

	// Create proxy service
	proxyService := services.NewProxyService(log, res, manifests, segments, subs)
	ctx.WithProxyService(proxyService)

	// Create HTTP server
	srv := server.New(cfg, log, m)

	// Create API handlers
	handlers := api.NewHandlers(ctx)
	handlers.RegisterRoutes(srv.Router())

	return &App{
		Ctx:        ctx,
		Server:     srv,
		HTTPClient: httpClient,
		Pool:       pool,
		Resolver:   res,
	}, nil
}

// buildDecoder chains the configured decoders: the fixture table first,
// then the remote service. With neither configured every payload fails to
// decode and only direct manifest links resolve.
func buildDecoder(cfg *config.Config, client interfaces.HTTPClient, log *logging.Logger) (interfaces.Decoder, error) {
	var chain decoder.Chain

	if cfg.DecoderTable != "" {
		table, err := decoder.LoadTable(cfg.DecoderTable)
		if err != nil {
			return nil, fmt.Errorf("decoder table: %w", err)
		}
		log.Info("decoder table loaded", "path", cfg.DecoderTable, "entries", table.Len())
		chain = append(chain, table)
	}

	if cfg.DecoderURL != "" {
		chain = append(chain, decoder.NewRemote(cfg.DecoderURL, client, cfg.HopTimeout, log))
		log.Info("remote decoder enabled", "url", cfg.DecoderURL)
	}

	if len(chain) == 0 {
		log.Warn("no payload decoder configured; only direct manifest links will resolve")
	}
	return chain, nil
}

// Run serves HTTP until ctx is done.
func (a *App) Run(ctx context.Context) error {
	a.Ctx.Log.Info("starting StreamProxy server", "port", a.Ctx.Config.Port)
	return a.Server.Start(ctx)
}

// Shutdown releases outbound connections.
func (a *App) Shutdown() {
	a.Ctx.Log.Info("shutting down application")
	a.Pool.Close()
	a.HTTPClient.Close()
}
