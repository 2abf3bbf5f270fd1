// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package errors provides the typed error taxonomy used while binding skill
// parameters and fetching the schemas they are bound against.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorCode identifies a single failure mode.
type ErrorCode string

const (
	// CodeUnknownField indicates a keyword that names no field of the message.
	CodeUnknownField ErrorCode = "UNKNOWN_FIELD"

	// CodeOneofConflict indicates two fields of the same oneof group were bound.
	CodeOneofConflict ErrorCode = "ONEOF_CONFLICT"

	// CodeTypeMismatch indicates a literal that does not fit the field kind.
	CodeTypeMismatch ErrorCode = "TYPE_MISMATCH"

	// CodeSetAmbiguousCollectionType indicates a set literal, or a single
	// deferred value, where an ordered collection was required.
	CodeSetAmbiguousCollectionType ErrorCode = "SET_AMBIGUOUS_COLLECTION_TYPE"

	// CodeUnsupportedDeferredInMap indicates a deferred value inside a map field.
	CodeUnsupportedDeferredInMap ErrorCode = "UNSUPPORTED_DEFERRED_IN_MAP"

	// CodeIncompatibleSchema indicates a structural copy between two message
	// schemas that are not wire compatible.
	CodeIncompatibleSchema ErrorCode = "INCOMPATIBLE_SCHEMA"

	// CodeMissingRequiredField indicates a required field that was neither
	// supplied nor populated by defaults.
	CodeMissingRequiredField ErrorCode = "MISSING_REQUIRED_FIELD"

	// CodeUnconsumedArgument indicates keywords left over after binding.
	CodeUnconsumedArgument ErrorCode = "UNCONSUMED_ARGUMENT"

	// CodeResourceSlotNameConflict indicates a resource slot whose name collides
	// with a parameter field even after deconfliction.
	CodeResourceSlotNameConflict ErrorCode = "RESOURCE_SLOT_NAME_CONFLICT"

	// CodeAmbiguousResourceMatch indicates several resource handles satisfy a slot.
	CodeAmbiguousResourceMatch ErrorCode = "AMBIGUOUS_RESOURCE_MATCH"

	// CodeNotFound indicates a skill or schema was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeUnavailable indicates a schema source could not be reached.
	CodeUnavailable ErrorCode = "UNAVAILABLE"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeContextLost indicates the caller's context ended mid operation.
	CodeContextLost ErrorCode = "CONTEXT_LOST"

	// CodeInvalidInput indicates malformed input outside of value binding
	// (catalog files, schema definitions, CLI arguments).
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeInternal indicates an internal error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Class groups error codes the way callers usually react to them.
type Class string

const (
	ClassSchema     Class = "SchemaError"
	ClassValue      Class = "ValueError"
	ClassCompletion Class = "CompletionError"
	ClassNaming     Class = "NamingError"
	ClassRegistry   Class = "RegistryError"
	ClassInternal   Class = "InternalError"
)

// Class returns the class the code belongs to.
func (c ErrorCode) Class() Class {
	switch c {
	case CodeUnknownField, CodeOneofConflict:
		return ClassSchema
	case CodeTypeMismatch, CodeSetAmbiguousCollectionType, CodeUnsupportedDeferredInMap, CodeIncompatibleSchema:
		return ClassValue
	case CodeMissingRequiredField, CodeUnconsumedArgument:
		return ClassCompletion
	case CodeResourceSlotNameConflict, CodeAmbiguousResourceMatch:
		return ClassNaming
	case CodeNotFound, CodeUnavailable, CodeTimeout, CodeContextLost, CodeInvalidInput:
		return ClassRegistry
	default:
		return ClassInternal
	}
}

// BindError is a typed error carrying the offending field path and the
// message type that encloses it.
// It implements the error interface and can be unwrapped with errors.As().
type BindError struct {
	Code        ErrorCode
	Message     string
	MessageType string
	Path        string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
	StatusCode  int
}

// Error implements the error interface.
func (e *BindError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ", e.Code)
	switch {
	case e.Path != "" && e.MessageType != "":
		fmt.Fprintf(&b, "field %q of %s: ", e.Path, e.MessageType)
	case e.Path != "":
		fmt.Fprintf(&b, "field %q: ", e.Path)
	case e.MessageType != "":
		fmt.Fprintf(&b, "%s: ", e.MessageType)
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *BindError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *BindError) MarshalJSON() ([]byte, error) {
	var cause string
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return json.Marshal(&struct {
		Message     string                 `json:"message"`
		Code        string                 `json:"code"`
		Class       string                 `json:"class"`
		MessageType string                 `json:"message_type,omitempty"`
		Path        string                 `json:"path,omitempty"`
		Err         string                 `json:"error,omitempty"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Recoverable bool                   `json:"recoverable"`
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Class:       string(e.Code.Class()),
		MessageType: e.MessageType,
		Path:        e.Path,
		Err:         cause,
		Context:     e.Context,
		Recoverable: e.Recoverable,
	})
}

// New creates a new BindError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *BindError {
	return &BindError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
		StatusCode: codeToStatusCode(code),
	}
}

// Newf is New with a formatted message and no cause.
func Newf(code ErrorCode, format string, args ...interface{}) *BindError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// At records the message type and field path the error refers to.
func (e *BindError) At(messageType, path string) *BindError {
	e.MessageType = messageType
	e.Path = path
	return e
}

// WithPathPrefix prepends an enclosing path, so an error raised deep inside a
// nested message names the full path from the top-level payload.
func (e *BindError) WithPathPrefix(prefix string) *BindError {
	switch {
	case prefix == "":
	case e.Path == "":
		e.Path = prefix
	case strings.HasPrefix(e.Path, "["):
		e.Path = prefix + e.Path
	default:
		e.Path = prefix + "." + e.Path
	}
	return e
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *BindError) WithContext(key string, value interface{}) *BindError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *BindError) WithAttribute(key, value string) *BindError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *BindError) WithRecoverable(recoverable bool) *BindError {
	e.Recoverable = recoverable
	return e
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *BindError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// AsBindError attempts to convert an error to a BindError.
// Returns the error as BindError if it is one, or wraps it otherwise.
func AsBindError(err error) *BindError {
	if err == nil {
		return nil
	}
	var be *BindError
	if stderrors.As(err, &be) {
		return be
	}
	return New(CodeInternal, "wrapped error", err)
}

// HasCode reports whether err, or any error it wraps, is a BindError with code.
func HasCode(err error, code ErrorCode) bool {
	var be *BindError
	for err != nil {
		if !stderrors.As(err, &be) {
			return false
		}
		if be.Code == code {
			return true
		}
		err = be.Err
	}
	return false
}

// UnknownField reports a keyword that names no field of messageType.
func UnknownField(messageType, name string) *BindError {
	return Newf(CodeUnknownField, "no such field").At(messageType, name)
}

// OneofConflict reports that field and previous, both members of group, were
// bound in the same call.
func OneofConflict(messageType, group, previous, field string) *BindError {
	return Newf(CodeOneofConflict, "oneof %q already bound by field %q", group, previous).
		At(messageType, field).
		WithContext("oneof", group).
		WithContext("conflicts_with", previous)
}

// TypeMismatch reports a value whose Go type does not fit the field.
func TypeMismatch(messageType, path, want string, got interface{}) *BindError {
	return Newf(CodeTypeMismatch, "expected %s, got %T", want, got).At(messageType, path)
}

// MissingRequiredFields reports required fields that were not bound.
func MissingRequiredFields(messageType string, names []string) *BindError {
	return Newf(CodeMissingRequiredField, "missing required fields: %s", strings.Join(names, ", ")).
		At(messageType, "").
		WithContext("fields", names)
}

// UnconsumedArguments reports keywords that no field consumed.
func UnconsumedArguments(messageType string, keys []string) *BindError {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	return Newf(CodeUnconsumedArgument, "unconsumed arguments: %s", strings.Join(sorted, ", ")).
		At(messageType, "").
		WithContext("arguments", sorted)
}

// codeToStatusCode maps error codes to gRPC/HTTP status codes.
func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeNotFound:
		return 404 // NOT_FOUND
	case CodeTimeout:
		return 408 // DEADLINE_EXCEEDED
	case CodeUnavailable:
		return 503 // UNAVAILABLE
	case CodeInternal:
		return 500 // INTERNAL
	default:
		return 400 // INVALID_ARGUMENT
	}
}
