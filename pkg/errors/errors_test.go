// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("connection refused")
	be := New(CodeUnavailable, "schema source unreachable", cause)

	if be.Code != CodeUnavailable {
		t.Errorf("expected CodeUnavailable, got %v", be.Code)
	}
	if be.Err != cause {
		t.Errorf("expected cause to be preserved")
	}
	if !errors.Is(be, cause) {
		t.Errorf("expected errors.Is to work with wrapped error")
	}
	if be.StatusCode != 503 {
		t.Errorf("expected status 503, got %d", be.StatusCode)
	}
}

func TestWithContext(t *testing.T) {
	be := New(CodeTypeMismatch, "bad value", nil)
	be.WithContext("field", "speed").
		WithAttribute("skill", "move_robot")

	if be.Context["field"] != "speed" {
		t.Errorf("expected context field to be 'speed'")
	}
	if be.Attributes["skill"] != "move_robot" {
		t.Errorf("expected attribute skill")
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name     string
		be       *BindError
		expected string
	}{
		{
			name:     "path and type",
			be:       TypeMismatch("pkg.Params", "m.list[1]", "string", 5),
			expected: `[TYPE_MISMATCH] field "m.list[1]" of pkg.Params: expected string, got int`,
		},
		{
			name:     "type only",
			be:       UnconsumedArguments("pkg.Params", []string{"zeta", "alpha"}),
			expected: `[UNCONSUMED_ARGUMENT] pkg.Params: unconsumed arguments: alpha, zeta`,
		},
		{
			name:     "with cause",
			be:       New(CodeNotFound, "skill not found", errors.New("no such file")),
			expected: `[NOT_FOUND] skill not found: no such file`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.be.Error(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestWithPathPrefix(t *testing.T) {
	tests := []struct {
		path, prefix, expected string
	}{
		{"c", "m", "m.c"},
		{"[2]", "list", "list[2]"},
		{"", "m", "m"},
		{"x", "", "x"},
		{"a.b", "outer[0]", "outer[0].a.b"},
	}
	for _, tt := range tests {
		be := Newf(CodeTypeMismatch, "x").At("T", tt.path).WithPathPrefix(tt.prefix)
		if be.Path != tt.expected {
			t.Errorf("prefix %q + %q: expected %q, got %q", tt.prefix, tt.path, tt.expected, be.Path)
		}
	}
}

func TestCodeClass(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected Class
	}{
		{CodeUnknownField, ClassSchema},
		{CodeOneofConflict, ClassSchema},
		{CodeTypeMismatch, ClassValue},
		{CodeSetAmbiguousCollectionType, ClassValue},
		{CodeUnsupportedDeferredInMap, ClassValue},
		{CodeIncompatibleSchema, ClassValue},
		{CodeMissingRequiredField, ClassCompletion},
		{CodeUnconsumedArgument, ClassCompletion},
		{CodeResourceSlotNameConflict, ClassNaming},
		{CodeAmbiguousResourceMatch, ClassNaming},
		{CodeUnavailable, ClassRegistry},
		{CodeInternal, ClassInternal},
	}
	for _, tt := range tests {
		if got := tt.code.Class(); got != tt.expected {
			t.Errorf("%s: expected %s, got %s", tt.code, tt.expected, got)
		}
	}
}

func TestAsBindError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorCode
	}{
		{name: "nil error", err: nil, expected: ""},
		{name: "already BindError", err: New(CodeOneofConflict, "x", nil), expected: CodeOneofConflict},
		{name: "wrapped BindError", err: fmt.Errorf("assemble: %w", New(CodeUnknownField, "x", nil)), expected: CodeUnknownField},
		{name: "generic error", err: errors.New("generic error"), expected: CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be := AsBindError(tt.err)
			if tt.expected == "" {
				if be != nil {
					t.Errorf("expected nil for nil error")
				}
				return
			}
			if be == nil {
				t.Fatalf("expected non-nil BindError")
			}
			if be.Code != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, be.Code)
			}
		})
	}
}

func TestHasCode(t *testing.T) {
	inner := New(CodeUnavailable, "down", nil)
	outer := New(CodeNotFound, "fetch failed", inner)
	if !HasCode(outer, CodeNotFound) || !HasCode(outer, CodeUnavailable) {
		t.Errorf("expected both codes to be found in chain")
	}
	if HasCode(outer, CodeTypeMismatch) {
		t.Errorf("unexpected code match")
	}
	if HasCode(errors.New("plain"), CodeInternal) {
		t.Errorf("plain errors carry no code")
	}
}

func TestMarshalJSON(t *testing.T) {
	be := OneofConflict("pkg.Params", "target", "x", "y").WithRecoverable(false)

	data, err := json.Marshal(be)
	if err != nil {
		t.Fatalf("unexpected error marshaling: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unexpected error unmarshaling: %v", err)
	}

	if result["code"] != "ONEOF_CONFLICT" {
		t.Errorf("expected code 'ONEOF_CONFLICT', got %v", result["code"])
	}
	if result["class"] != "SchemaError" {
		t.Errorf("expected class SchemaError, got %v", result["class"])
	}
	if result["path"] != "y" {
		t.Errorf("expected path y, got %v", result["path"])
	}
}
