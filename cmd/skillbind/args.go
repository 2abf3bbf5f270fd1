// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jllopis/skillbind/pkg/bind"
	"github.com/jllopis/skillbind/pkg/skills"
)

// Markers for deferred values inside --arg JSON, e.g.
// {"target": {"$bb": "world.cup.pose"}}.
const (
	blackboardMarker = "$bb"
	expressionMarker = "$expr"
)

// parseCallArgs merges --arg, --bb and --expr flags into binding arguments.
// A name given twice is an error.
func parseCallArgs(values, refs, exprs []string) (bind.Args, error) {
	args := bind.Args{}
	add := func(flag, kv string, decode func(string) (any, error)) error {
		name, raw, ok := strings.Cut(kv, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return NewInvalidArgumentError(kv, fmt.Sprintf("--%s expects name=value", flag))
		}
		if _, dup := args[name]; dup {
			return NewInvalidArgumentError(kv, fmt.Sprintf("argument %q given twice", name))
		}
		v, err := decode(raw)
		if err != nil {
			return NewInvalidArgumentError(kv, err.Error())
		}
		args[name] = v
		return nil
	}

	for _, kv := range values {
		if err := add("arg", kv, decodeArgValue); err != nil {
			return nil, err
		}
	}
	for _, kv := range refs {
		if err := add("bb", kv, func(s string) (any, error) { return bind.BlackboardPath(s), nil }); err != nil {
			return nil, err
		}
	}
	for _, kv := range exprs {
		if err := add("expr", kv, func(s string) (any, error) { return bind.Expression(s), nil }); err != nil {
			return nil, err
		}
	}
	return args, nil
}

// decodeArgValue parses raw as JSON, keeping numbers exact. Text that is not
// JSON is taken as a string.
func decodeArgValue(raw string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		if looksLikeJSON(raw) {
			return nil, fmt.Errorf("invalid JSON value: %w", err)
		}
		return raw, nil
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing data after JSON value %q", raw)
	}
	return deferredMarkers(v)
}

func looksLikeJSON(raw string) bool {
	raw = strings.TrimSpace(raw)
	return strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") || strings.HasPrefix(raw, `"`)
}

// deferredMarkers replaces single-key marker objects with deferred values.
func deferredMarkers(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 1 {
			for k, inner := range t {
				if k != blackboardMarker && k != expressionMarker {
					break
				}
				text, ok := inner.(string)
				if !ok {
					return nil, fmt.Errorf("%s marker needs a string, got %T", k, inner)
				}
				if k == blackboardMarker {
					return bind.BlackboardPath(text), nil
				}
				return bind.Expression(text), nil
			}
		}
		out := make(map[string]any, len(t))
		for k, inner := range t {
			dv, err := deferredMarkers(inner)
			if err != nil {
				return nil, err
			}
			out[k] = dv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			dv, err := deferredMarkers(inner)
			if err != nil {
				return nil, err
			}
			out[i] = dv
		}
		return out, nil
	}
	return v, nil
}

// parseResources resolves slot=handle flags against dir. Handles missing from
// dir are passed with no capabilities.
func parseResources(flags []string, dir skills.Directory) (map[string]skills.ResourceHandle, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	out := make(map[string]skills.ResourceHandle, len(flags))
	for _, kv := range flags {
		slot, handle, ok := strings.Cut(kv, "=")
		slot, handle = strings.TrimSpace(slot), strings.TrimSpace(handle)
		if !ok || slot == "" || handle == "" {
			return nil, NewInvalidArgumentError(kv, "--resource expects slot=handle")
		}
		if _, dup := out[slot]; dup {
			return nil, NewInvalidArgumentError(kv, fmt.Sprintf("resource slot %q given twice", slot))
		}
		h, found := dir.Lookup(handle)
		if !found {
			h = skills.ResourceHandle{Name: handle}
		}
		out[slot] = h
	}
	return out, nil
}
