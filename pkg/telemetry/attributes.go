// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides slog setup, OpenTelemetry initialization and
// the metrics and span attributes used while binding skill parameters.
package telemetry

import (
	stderrors "errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jllopis/skillbind/pkg/errors"
)

// Attribute keys for skillbind telemetry.
// These follow OpenTelemetry naming conventions where applicable.
const (
	// Skill attributes
	AttrSkillID       = "skillbind.skill.id"
	AttrMessageType   = "skillbind.message.type"
	AttrAssignments   = "skillbind.assignments.count"
	AttrResources     = "skillbind.resources.count"
	AttrRegistryCache = "skillbind.registry.cache"
	AttrSkillSource   = "skillbind.source"

	// Error attributes
	AttrErrorCode   = "error.code"
	AttrErrorClass  = "error.class"
	AttrComponent   = "component"
	AttrRecoverable = "recoverable"
)

// Cache outcomes reported under AttrRegistryCache.
const (
	CacheHit    = "hit"
	CacheStored = "stored"
	CacheMiss   = "miss"
)

// InvocationAttributes returns attributes for an assembled invocation.
func InvocationAttributes(skillID, messageType string, assignments, resources int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrSkillID, skillID),
		attribute.Int(AttrAssignments, assignments),
	}
	if messageType != "" {
		attrs = append(attrs, attribute.String(AttrMessageType, messageType))
	}
	if resources > 0 {
		attrs = append(attrs, attribute.Int(AttrResources, resources))
	}
	return attrs
}

// RegistryAttributes returns attributes for a registry fetch span.
func RegistryAttributes(skillID, cache string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrSkillID, skillID),
	}
	if cache != "" {
		attrs = append(attrs, attribute.String(AttrRegistryCache, cache))
	}
	return attrs
}

// ErrorAttributes describes err by code, never by field path. Errors
// outside the taxonomy report code UNKNOWN.
func ErrorAttributes(err error, component string) []attribute.KeyValue {
	var be *errors.BindError
	if !stderrors.As(err, &be) {
		return []attribute.KeyValue{
			attribute.String(AttrErrorCode, "UNKNOWN"),
			attribute.String(AttrComponent, component),
			attribute.String(AttrRecoverable, "unknown"),
		}
	}
	return []attribute.KeyValue{
		attribute.String(AttrErrorCode, string(be.Code)),
		attribute.String(AttrErrorClass, string(be.Code.Class())),
		attribute.String(AttrComponent, component),
		attribute.String(AttrRecoverable, be.RecoverableString()),
	}
}
