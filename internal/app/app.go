package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/vk/burstci/internal/command"
	"github.com/vk/burstci/internal/ctxlog"
	"github.com/vk/burstci/internal/deploy"
	"github.com/vk/burstci/internal/inmemorystore"
	"github.com/vk/burstci/internal/nodestore"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	// outW receives step output and the run summary; logs go to the logger.
	outW   io.Writer
	logger *slog.Logger
	config *Config
	ctx    context.Context

	store     nodestore.Store
	runner    command.Runner
	publisher deploy.Publisher

	httpServer *http.Server
}

// Option customizes an App.
type Option func(*App)

// WithRunner replaces the shell command runner.
func WithRunner(r command.Runner) Option {
	return func(a *App) { a.runner = r }
}

// WithPublisher replaces the command-based deploy publisher.
func WithPublisher(p deploy.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// New is the constructor for the main application. Each App owns an isolated
// logger writing to logW.
func New(outW, logW io.Writer, cfg *Config, opts ...Option) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	a := &App{
		outW:   outW,
		logger: logger,
		config: cfg,
		ctx:    ctxlog.WithLogger(context.Background(), logger),
		store:  inmemorystore.New(),
	}
	for _, opt := range opts {
		opt(a)
	}
	logger.Debug("Application configured.", "paths", cfg.Paths)
	return a
}

// Store returns the live instance state store. This is primarily for testing.
func (a *App) Store() nodestore.Store {
	return a.store
}
