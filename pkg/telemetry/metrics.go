// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/skillbind/pkg/errors"
)

// Meter name for binding metrics.
const meterName = "skillbind/bind"

// BindMetrics counts assembled invocations, emitted assignments and errors.
// A nil *BindMetrics records nothing.
type BindMetrics struct {
	// invocationCounter tracks successful assemblies by skill
	invocationCounter metric.Int64Counter

	// assignmentCounter tracks deferred assignments emitted by skill
	assignmentCounter metric.Int64Counter

	// errorCounter tracks failures by code, class and component
	errorCounter metric.Int64Counter

	// recoveryCounter tracks registry fetches that succeeded after a retry
	recoveryCounter metric.Int64Counter
}

// NewBindMetrics creates the instruments on provider, or on the global
// meter provider when provider is nil.
func NewBindMetrics(provider metric.MeterProvider) (*BindMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	invocationCounter, err := meter.Int64Counter(
		"skillbind.invocations.assembled",
		metric.WithDescription("Invocations assembled by skill"),
	)
	if err != nil {
		return nil, err
	}

	assignmentCounter, err := meter.Int64Counter(
		"skillbind.assignments.emitted",
		metric.WithDescription("Deferred assignments emitted by skill"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"skillbind.errors.total",
		metric.WithDescription("Errors by code, class and component"),
	)
	if err != nil {
		return nil, err
	}

	recoveryCounter, err := meter.Int64Counter(
		"skillbind.registry.recovered",
		metric.WithDescription("Registry fetches recovered by retry, by error code"),
	)
	if err != nil {
		return nil, err
	}

	return &BindMetrics{
		invocationCounter: invocationCounter,
		assignmentCounter: assignmentCounter,
		errorCounter:      errorCounter,
		recoveryCounter:   recoveryCounter,
	}, nil
}

// RecordInvocation counts one assembled invocation and its assignments.
func (m *BindMetrics) RecordInvocation(ctx context.Context, skillID string, assignments int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrSkillID, skillID))
	m.invocationCounter.Add(ctx, 1, attrs)
	if assignments > 0 {
		m.assignmentCounter.Add(ctx, int64(assignments), attrs)
	}
}

// RecordError counts a failure raised by component.
func (m *BindMetrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	m.errorCounter.Add(ctx, 1, metric.WithAttributes(ErrorAttributes(err, component)...))
}

// RecordRecovery counts a registry fetch that succeeded after failing with
// code.
func (m *BindMetrics) RecordRecovery(ctx context.Context, code errors.ErrorCode) {
	if m == nil {
		return
	}
	m.recoveryCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String(AttrErrorCode, string(code))),
	)
}
