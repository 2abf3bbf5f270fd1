// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry caches skills fetched from a source so that schemas and
// defaults are fetched once and reused across calls until invalidated.
package registry

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/skillbind/pkg/errors"
	"github.com/jllopis/skillbind/pkg/resilience"
	"github.com/jllopis/skillbind/pkg/skills"
	"github.com/jllopis/skillbind/pkg/telemetry"
)

// DefaultCacheSize is the number of skills kept in memory.
const DefaultCacheSize = 256

// Source supplies skills. Implementations may block on I/O.
type Source interface {
	FetchSkill(ctx context.Context, id string) (*skills.Skill, error)
	ListSkills(ctx context.Context) ([]string, error)
}

// Store is a persistent cache tier consulted before the source.
type Store interface {
	Get(ctx context.Context, id string) (*skills.Skill, bool, error)
	Put(ctx context.Context, s *skills.Skill) error
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// Registry fetches skills from a Source through an in-memory LRU cache and
// an optional Store. Cached skills are shared and must not be modified.
type Registry struct {
	source    Source
	cache     *lru.Cache[string, *skills.Skill]
	cacheSize int
	store     Store
	retry     resilience.RetryConfig
	timeout   time.Duration
	breaker   *resilience.CircuitBreaker
	suffix    string
	metrics   *telemetry.BindMetrics
	logger    *slog.Logger
	tracer    trace.Tracer

	mu    sync.RWMutex
	hooks []func(id string)
}

// Option configures a Registry.
type Option func(*Registry)

// WithCacheSize sets the number of skills kept in memory.
func WithCacheSize(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.cacheSize = n
		}
	}
}

// WithStore adds a persistent cache tier.
func WithStore(s Store) Option {
	return func(r *Registry) {
		r.store = s
	}
}

// WithRetry sets the retry policy for source calls.
func WithRetry(rc resilience.RetryConfig) Option {
	return func(r *Registry) {
		r.retry = rc
	}
}

// WithFetchTimeout bounds each source call.
func WithFetchTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.timeout = d
	}
}

// WithCircuitBreaker guards source calls with cb.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(r *Registry) {
		r.breaker = cb
	}
}

// WithResourceSuffix sets the slot deconfliction suffix checked at
// registration.
func WithResourceSuffix(suffix string) Option {
	return func(r *Registry) {
		if suffix != "" {
			r.suffix = suffix
		}
	}
}

// WithMetrics records retried fetches and failures.
func WithMetrics(m *telemetry.BindMetrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithLogger sets the logger for the registry.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTracerProvider sets the provider of the registry tracer.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Registry) {
		if tp != nil {
			r.tracer = tp.Tracer("skillbind/registry")
		}
	}
}

// New creates a registry over source.
func New(source Source, opts ...Option) (*Registry, error) {
	if source == nil {
		return nil, errors.Newf(errors.CodeInvalidInput, "registry source is nil")
	}
	r := &Registry{
		source:    source,
		cacheSize: DefaultCacheSize,
		retry:     resilience.DefaultRetryConfig(),
		suffix:    skills.DefaultSlotSuffix,
		logger:    slog.Default(),
		tracer:    otel.Tracer("skillbind/registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	cache, err := lru.New[string, *skills.Skill](r.cacheSize)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "create registry cache", err)
	}
	r.cache = cache
	return r, nil
}

// Fetch returns the skill with the given id, from the cache when possible.
// Skills are validated before they are cached, so a skill whose resource
// slots cannot be named is rejected here rather than on every call.
func (r *Registry) Fetch(ctx context.Context, id string) (_ *skills.Skill, err error) {
	ctx, span := r.tracer.Start(telemetry.ContextWithSkill(ctx, id), "Registry.Fetch")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.metrics.RecordError(ctx, err, "registry")
		}
		span.End()
	}()

	if ctx.Err() != nil {
		return nil, errors.New(errors.CodeContextLost, "fetch skill", ctx.Err()).WithContext("skill", id)
	}
	if s, ok := r.cache.Get(id); ok {
		span.SetAttributes(telemetry.RegistryAttributes(id, telemetry.CacheHit)...)
		return s, nil
	}

	if r.store != nil {
		s, found, err := r.store.Get(ctx, id)
		if err != nil {
			r.logger.WarnContext(ctx, "registry store read failed", "error", err)
		} else if found {
			if err := s.Validate(r.suffix); err != nil {
				return nil, err
			}
			r.cache.Add(id, s)
			span.SetAttributes(telemetry.RegistryAttributes(id, telemetry.CacheStored)...)
			return s, nil
		}
	}

	span.SetAttributes(telemetry.RegistryAttributes(id, telemetry.CacheMiss)...)
	s, err := call(ctx, r, func(ctx context.Context) (*skills.Skill, error) {
		return r.source.FetchSkill(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if err := r.put(ctx, s); err != nil {
		return nil, err
	}
	if s.ID != id {
		// Sources may resolve aliases; keep the requested key too.
		r.cache.Add(id, s)
	}
	r.logger.DebugContext(ctx, "skill fetched", "resolved", s.ID)
	return s, nil
}

// Register validates s and caches it without consulting the source.
func (r *Registry) Register(ctx context.Context, s *skills.Skill) error {
	if s == nil {
		return errors.Newf(errors.CodeInvalidInput, "skill is nil")
	}
	return r.put(ctx, s)
}

func (r *Registry) put(ctx context.Context, s *skills.Skill) error {
	if err := s.Validate(r.suffix); err != nil {
		return err
	}
	if r.store != nil {
		if err := r.store.Put(ctx, s); err != nil {
			r.logger.WarnContext(ctx, "registry store write failed", "skill", s.ID, "error", err)
		}
	}
	r.cache.Add(s.ID, s)
	return nil
}

// List returns the ids the source offers.
func (r *Registry) List(ctx context.Context) ([]string, error) {
	ctx, span := r.tracer.Start(ctx, "Registry.List")
	defer span.End()
	ids, err := call(ctx, r, r.source.ListSkills)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return ids, nil
}

// Cached reports whether id is in the in-memory cache.
func (r *Registry) Cached(id string) bool {
	return r.cache.Contains(id)
}

// Invalidate drops id from every cache tier and notifies the hooks.
func (r *Registry) Invalidate(ctx context.Context, id string) {
	r.cache.Remove(id)
	if r.store != nil {
		if err := r.store.Delete(ctx, id); err != nil {
			r.logger.Warn("registry store delete failed", "skill", id, "error", err)
		}
	}
	r.notify(id)
}

// InvalidateAll empties every cache tier and notifies the hooks with an
// empty id.
func (r *Registry) InvalidateAll(ctx context.Context) {
	r.cache.Purge()
	if r.store != nil {
		if err := r.store.Clear(ctx); err != nil {
			r.logger.Warn("registry store clear failed", "error", err)
		}
	}
	r.notify("")
}

// OnInvalidate registers fn to run after each invalidation. fn receives the
// invalidated id, or "" when everything was dropped.
func (r *Registry) OnInvalidate(fn func(id string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, fn)
}

func (r *Registry) notify(id string) {
	r.mu.RLock()
	hooks := append([]func(string){}, r.hooks...)
	r.mu.RUnlock()
	for _, fn := range hooks {
		fn(id)
	}
}

// call runs fn against the source with the registry's timeout, breaker and
// retry policy.
func call[T any](ctx context.Context, r *Registry, fn func(context.Context) (T, error)) (T, error) {
	var retried errors.ErrorCode
	onRetry := r.retry.OnRetry
	rc := r.retry.WithOnRetry(func(attempt int, err error) {
		retried = codeOf(err)
		r.logger.DebugContext(ctx, "retrying skill source", "attempt", attempt, "error", err)
		if onRetry != nil {
			onRetry(attempt, err)
		}
	})
	v, err := resilience.Retry(ctx, rc, func() (T, error) {
		var out T
		attempt := func() error {
			var err error
			out, err = resilience.WithTimeout(ctx, r.timeout, fn)
			return err
		}
		var err error
		if r.breaker != nil {
			err = r.breaker.Call(attempt, resilience.IsRecoverable)
		} else {
			err = attempt()
		}
		return out, err
	})
	if err != nil {
		var be *errors.BindError
		if !stderrors.As(err, &be) {
			err = errors.New(errors.CodeUnavailable, "skill source failed", err).WithRecoverable(true)
		}
		var zero T
		return zero, err
	}
	if retried != "" {
		r.metrics.RecordRecovery(ctx, retried)
	}
	return v, nil
}

func codeOf(err error) errors.ErrorCode {
	var be *errors.BindError
	if stderrors.As(err, &be) {
		return be.Code
	}
	return errors.CodeUnavailable
}
