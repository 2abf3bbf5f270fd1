// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package bind

import (
	"fmt"
	"strconv"
	"strings"
)

// Assignment patches the payload position at Path with the value of
// Expression once it is known.
type Assignment struct {
	Path       string `json:"path"`
	Expression string `json:"expression"`
}

// Collector accumulates assignments across a binding tree.
type Collector struct {
	assignments []Assignment
}

// Add records an assignment for a deferred value.
func (c *Collector) Add(path string, d Deferred) {
	c.assignments = append(c.assignments, Assignment{Path: path, Expression: d.Text})
}

// Bubble records the assignments of a nested message under prefix.
func (c *Collector) Bubble(prefix string, sub []Assignment) {
	for _, a := range sub {
		c.assignments = append(c.assignments, Assignment{
			Path:       JoinPath(prefix, a.Path),
			Expression: a.Expression,
		})
	}
}

// Len returns the number of collected assignments.
func (c *Collector) Len() int { return len(c.assignments) }

// Assignments returns a copy of the collected assignments, in the order
// they were recorded.
func (c *Collector) Assignments() []Assignment {
	if len(c.assignments) == 0 {
		return nil
	}
	out := make([]Assignment, len(c.assignments))
	copy(out, c.assignments)
	return out
}

// FieldPath is the path of a singular field.
func FieldPath(name string) string { return name }

// IndexPath is the path of element i of a repeated field.
func IndexPath(name string, i int) string {
	return name + "[" + strconv.Itoa(i) + "]"
}

// JoinPath appends sub to an enclosing path.
func JoinPath(prefix, sub string) string {
	switch {
	case prefix == "":
		return sub
	case sub == "":
		return prefix
	default:
		return prefix + "." + sub
	}
}

// PathStep is one component of an assignment path: a field name, optionally
// followed by an index into that field.
type PathStep struct {
	Field string
	Index int // -1 when the step addresses the field itself
}

// ParsePath splits a path such as a.b[3].c[0] into its steps.
func ParsePath(path string) ([]PathStep, error) {
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}
	var steps []PathStep
	for _, part := range strings.Split(path, ".") {
		name, rest, indexed := strings.Cut(part, "[")
		if name == "" {
			return nil, fmt.Errorf("path %q: empty field name", path)
		}
		step := PathStep{Field: name, Index: -1}
		if indexed {
			idx, ok := strings.CutSuffix(rest, "]")
			if !ok {
				return nil, fmt.Errorf("path %q: unterminated index in %q", path, part)
			}
			n, err := strconv.Atoi(idx)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("path %q: invalid index %q", path, idx)
			}
			step.Index = n
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// String renders the step back to path syntax.
func (s PathStep) String() string {
	if s.Index < 0 {
		return s.Field
	}
	return IndexPath(s.Field, s.Index)
}
