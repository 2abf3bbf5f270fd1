// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/jllopis/skillbind/pkg/config"
	"github.com/jllopis/skillbind/pkg/connectors"
	"github.com/jllopis/skillbind/pkg/invocation"
	"github.com/jllopis/skillbind/pkg/registry"
	"github.com/jllopis/skillbind/pkg/resilience"
	"github.com/jllopis/skillbind/pkg/skills"
	"github.com/jllopis/skillbind/pkg/telemetry"
)

// app wires the configured skill source, registry and assembler.
type app struct {
	cfg       *config.Config
	out       io.Writer
	logger    *slog.Logger
	catalog   *skills.Catalog
	directory skills.Directory
	registry  *registry.Registry
	assembler *invocation.Assembler
	closers   []func(context.Context) error
}

func newApp(cfg *config.Config, stdout, stderr io.Writer) (_ *app, err error) {
	a := &app{cfg: cfg, out: stdout}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	a.logger = telemetry.NewLogger(stderr, cfg.Log.Level, cfg.Log.Format)

	tc := cfg.Telemetry.ExporterConfig()
	tc.Source = sourceName(cfg)
	shutdown, err := telemetry.InitWithConfig("skillbind", version, tc)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a.closers = append(a.closers, shutdown)

	metrics, err := telemetry.NewBindMetrics(nil)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	source, err := a.newSource()
	if err != nil {
		return nil, err
	}

	if cfg.Catalog.Resources != "" {
		a.directory, err = skills.LoadResources(cfg.Catalog.Resources)
		if err != nil {
			return nil, err
		}
	}

	opts := []registry.Option{
		registry.WithCacheSize(cfg.Registry.CacheSize),
		registry.WithRetry(resilience.DefaultRetryConfig().WithMaxAttempts(cfg.Registry.RetryAttempts)),
		registry.WithFetchTimeout(cfg.Registry.FetchTimeout()),
		registry.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name: sourceName(cfg),
		})),
		registry.WithResourceSuffix(cfg.Binding.ResourceSuffix),
		registry.WithMetrics(metrics),
		registry.WithLogger(telemetry.Component(a.logger, "registry")),
	}
	if cfg.Registry.CacheDB != "" {
		db, err := sql.Open("sqlite", cfg.Registry.CacheDB)
		if err != nil {
			return nil, fmt.Errorf("open cache db: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
		store, err := registry.NewSQLiteStore(db)
		if err != nil {
			return nil, err
		}
		opts = append(opts, registry.WithStore(store))
	}

	a.registry, err = registry.New(source, opts...)
	if err != nil {
		return nil, err
	}

	assemblerOpts := []invocation.Option{
		invocation.WithLogger(telemetry.Component(a.logger, "invocation")),
		invocation.WithMetrics(metrics),
		invocation.WithResourceSuffix(cfg.Binding.ResourceSuffix),
		invocation.WithResourceDirectory(a.directory),
	}
	if cfg.Binding.UniqueResultKeys {
		assemblerOpts = append(assemblerOpts, invocation.WithResultKeyFunc(invocation.UniqueResultKey))
	}
	a.assembler = invocation.New(assemblerOpts...)
	return a, nil
}

func (a *app) newSource() (registry.Source, error) {
	if target := a.cfg.Registry.GRPCTarget; target != "" {
		src, err := connectors.NewReflectionSource(target,
			connectors.WithInsecure(),
			connectors.WithReflectionLogger(telemetry.Component(a.logger, "reflection")),
		)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return src.Close() })
		return src, nil
	}

	a.catalog = skills.NewCatalog(a.cfg.Catalog.Dirs,
		skills.WithCatalogLogger(telemetry.Component(a.logger, "catalog")),
	)
	if err := a.catalog.Load(); err != nil {
		return nil, err
	}
	return a.catalog, nil
}

func sourceName(cfg *config.Config) string {
	if cfg.Registry.GRPCTarget != "" {
		return cfg.Registry.GRPCTarget
	}
	return "catalog"
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil && a.logger != nil {
			a.logger.Warn("shutdown failed", "error", err)
		}
	}
	a.closers = nil
}
