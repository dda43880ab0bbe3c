package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/vk/burstci/internal/blobstore"
	"github.com/vk/burstci/internal/cache"
	"github.com/vk/burstci/internal/ctxlog"
	"github.com/vk/burstci/internal/engine"
	"github.com/vk/burstci/internal/env"
	"github.com/vk/burstci/internal/model"
	"github.com/vk/burstci/internal/plan"
	"github.com/vk/burstci/internal/report"
	"github.com/vk/burstci/internal/secrets"
	"github.com/vk/burstci/internal/trigger"
)

// ErrLoad marks every error that stems from reading or validating the
// definition, as opposed to failures of the run itself.
var ErrLoad = errors.New("definition rejected")

// Validate loads and validates the definition.
func (a *App) Validate(ctx context.Context) (*model.Workflow, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	wf, err := engine.Load(ctx, a.config.Paths...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	return wf, nil
}

// Plan loads the definition and expands its instance plan.
func (a *App) Plan(ctx context.Context) (*plan.Plan, error) {
	wf, err := a.Validate(ctx)
	if err != nil {
		return nil, err
	}
	p, err := plan.Build(wf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	return p, nil
}

// Run executes one pipeline run. The returned error means the run could not
// start; the run status carries job and deploy failures.
func (a *App) Run(ctx context.Context) (*report.Run, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.ctx = ctx
	cfg := a.config
	a.logger.Debug("App.Run method started.")

	wf, err := a.Validate(ctx)
	if err != nil {
		return nil, err
	}
	rc, err := trigger.Resolve(trigger.Source{
		Event:       cfg.Event,
		Ref:         cfg.Ref,
		BaseRef:     cfg.BaseRef,
		PayloadPath: cfg.EventPayload,
	}, nil)
	if err != nil {
		return nil, err
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}
	}

	var store blobstore.Backend
	if !cfg.NoCache {
		store, err = blobstore.Open(ctx, cfg.CacheLocation)
		if err != nil {
			return nil, fmt.Errorf("opening cache store: %w", err)
		}
		defer store.Close()
	}
	compression, err := cache.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	a.healthCheckServer()
	defer a.closeHealthCheckServer()

	eng := engine.New(engine.Config{
		Workers:        cfg.Workers,
		DefaultPolicy:  model.NeedsPolicy(cfg.NeedsPolicy),
		DefaultTimeout: cfg.DefaultTimeout,
		WorkDir:        workDir,
		Runner:         a.runner,
		Compression:    compression,
		Secrets:        a.secretsProvider(),
		Publisher:      a.publisher,
		Store:          a.store,
		Output:         a.outW,
		CacheStore:     store,
	})
	run, err := eng.Run(ctx, wf, rc)
	if err != nil {
		return nil, err
	}

	if err := report.NewPrinter(a.outW, cfg.Color).Print(run); err != nil {
		a.logger.Warn("Failed to print run summary.", "error", err)
	}
	if cfg.ReportPath != "" {
		if err := report.Export(run, cfg.ReportPath); err != nil {
			return run, err
		}
		a.logger.Info("Report written.", "path", cfg.ReportPath)
	}

	a.logger.Debug("App.Run method finished.")
	return run, nil
}

func (a *App) secretsProvider() secrets.Provider {
	if a.config.SecretsFile != "" {
		return secrets.NewAgeFile(a.config.SecretsFile, a.config.SecretsIdentity)
	}
	return secrets.NewEnv(env.Process())
}
