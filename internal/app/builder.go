package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"poscalc/internal/config"
	"poscalc/internal/logger"
	"poscalc/internal/store/endpoint"
	"poscalc/internal/store/journal"
	assisthttp "poscalc/internal/transport/http/assist"
)

type AppBuilder struct {
	cfg *config.Config

	endpointStoreFn func(path string) (*endpoint.Store, error)
	journalFn       func(path string) (*journal.Store, error)
	httpFn          func(cfg config.AppConfig, gate *Gate, j *journal.Store) (*assisthttp.Server, error)
	dial            CallerFactory
}

type AppBuilderOption func(*AppBuilder)

// WithCallerFactory replaces the websocket client, typically with a fake
// quoting server in tests.
func WithCallerFactory(fn CallerFactory) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.dial = fn
		}
	}
}

// WithoutHTTP skips the foreground HTTP server.
func WithoutHTTP() AppBuilderOption {
	return func(b *AppBuilder) {
		b.httpFn = func(config.AppConfig, *Gate, *journal.Store) (*assisthttp.Server, error) {
			return nil, nil
		}
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:             cfg,
		endpointStoreFn: openEndpointStore,
		journalFn:       journal.Open,
		httpFn:          buildAssistHTTPServer,
		dial:            newRPCCaller,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	endpoints, err := b.endpointStoreFn(cfg.Store.ConfigDB)
	if err != nil {
		return nil, fmt.Errorf("open endpoint store: %w", err)
	}
	if ep, err := endpoints.Load(ctx); err == nil {
		logger.Infof("✓ server endpoint %s", ep.URL())
	}

	j, err := b.journalFn(cfg.Store.JournalDB)
	if err != nil {
		endpoints.Close()
		return nil, fmt.Errorf("open journal: %w", err)
	}

	gate := NewGate(endpoints)
	server, err := b.httpFn(cfg.App, gate, j)
	if err != nil {
		j.Close()
		endpoints.Close()
		return nil, err
	}

	return &App{
		cfg:       cfg,
		endpoints: endpoints,
		journal:   j,
		gate:      gate,
		store:     newSessionStore(cfg),
		http:      server,
		dial:      b.dial,
	}, nil
}

func openEndpointStore(path string) (*endpoint.Store, error) {
	path = strings.TrimSpace(path)
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return endpoint.Open(path)
}

func buildAssistHTTPServer(cfg config.AppConfig, gate *Gate, j *journal.Store) (*assisthttp.Server, error) {
	server, err := assisthttp.NewServer(assisthttp.ServerConfig{
		Addr:      cfg.HTTPAddr,
		Assistant: gate.Assistant,
		Endpoints: gate,
		Journal:   j,
	})
	if err != nil {
		return nil, fmt.Errorf("init assist http: %w", err)
	}
	logger.Infof("✓ assist HTTP listening on %s", server.Addr())
	return server, nil
}
