// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jllopis/skillbind/pkg/errors"
)

// CLIError wraps BindError with CLI-specific formatting and hints.
type CLIError struct {
	*errors.BindError
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(be *errors.BindError, hint string) *CLIError {
	return &CLIError{
		BindError: be,
		Hint:      hint,
	}
}

// Error returns the formatted error message with hints.
func (e *CLIError) Error() string {
	if e.BindError == nil {
		return "unknown error"
	}

	msg := e.BindError.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// Unwrap exposes the underlying BindError.
func (e *CLIError) Unwrap() error {
	if e.BindError == nil {
		return nil
	}
	return e.BindError
}

// NewInvalidArgumentError creates an invalid argument error with CLI hints.
func NewInvalidArgumentError(arg, reason string) *CLIError {
	be := errors.New(errors.CodeInvalidInput, fmt.Sprintf("invalid argument: %s", reason), nil).
		WithContext("argument", arg).
		WithRecoverable(false)
	return NewCLIError(be, "run 'skillbind help' for usage information")
}

// NewConfigError creates a configuration error with CLI hints.
func NewConfigError(err error, configPath string) *CLIError {
	be := errors.New(errors.CodeInvalidInput, "configuration error", err).
		WithContext("config_path", configPath).
		WithRecoverable(false)

	hint := "check your configuration file syntax"
	if configPath != "" {
		hint = fmt.Sprintf("check %s for syntax errors", configPath)
	}
	return NewCLIError(be, hint)
}

// withHint attaches a hint matching the code of err.
func withHint(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*CLIError); ok {
		return err
	}
	be := errors.AsBindError(err)
	return NewCLIError(be, hintFor(be))
}

func hintFor(be *errors.BindError) string {
	switch be.Code {
	case errors.CodeNotFound:
		return "run 'skillbind skills' to list the available skills"
	case errors.CodeUnknownField, errors.CodeUnconsumedArgument, errors.CodeMissingRequiredField:
		return "run 'skillbind describe <skill>' to see its parameters"
	case errors.CodeAmbiguousResourceMatch:
		return "pick a handle with --resource slot=handle"
	case errors.CodeUnavailable, errors.CodeTimeout:
		return "the skill source may be down; try again or raise --timeout"
	}
	return ""
}

// printError writes err to w, as a JSON object when asJSON is set.
func printError(w io.Writer, err error, asJSON bool) {
	var cli *CLIError
	switch e := err.(type) {
	case *CLIError:
		cli = e
	default:
		cli = NewCLIError(errors.AsBindError(err), "")
	}

	if asJSON {
		payload, merr := json.Marshal(map[string]any{"error": cli.BindError, "hint": cli.Hint})
		if merr != nil {
			fmt.Fprintf(w, "Error: %s\n", err)
			return
		}
		fmt.Fprintln(w, string(payload))
		return
	}

	fmt.Fprintf(w, "Error [%s]: %s\n", cli.Code, strings.TrimPrefix(cli.BindError.Error(), "["+string(cli.Code)+"] "))
	if cli.Hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", cli.Hint)
	}
}
