// Package appctx provides the application context that holds all runtime dependencies.
package appctx

import (
	"stream-proxy-go/pkg/config"
	"stream-proxy-go/pkg/logging"
	"stream-proxy-go/pkg/metrics"
	"stream-proxy-go/pkg/services"
)

// Version is reported by /api/info and the CLI. Overridden at build time
// with -ldflags "-X stream-proxy-go/pkg/appctx.Version=...".
var Version = "dev"

// Context holds all application runtime dependencies.
// Pass this single struct to components instead of individual parameters.
type Context struct {
	Config       *config.Config
	Log          *logging.Logger
	ProxyService *services.ProxyService
	Metrics      *metrics.Metrics
	BaseURL      string
}

// New creates a new application context.
func New(cfg *config.Config, log *logging.Logger) *Context {
	return &Context{
		Config:  cfg,
		Log:     log,
		BaseURL: cfg.BaseURL,
	}
}

// WithProxyService sets the proxy service.
func (c *Context) WithProxyService(ps *services.ProxyService) *Context {
	c.ProxyService = ps
	return c
}

// WithMetrics sets the metrics registry.
func (c *Context) WithMetrics(m *metrics.Metrics) *Context {
	c.Metrics = m
	return c
}
