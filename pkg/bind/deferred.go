// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package bind binds keyword values to skill parameter messages.
//
// Values are either concrete (literals, messages, nested builders) or
// deferred: a blackboard access path or a short expression, resolved later
// by whatever executes the call. Binding writes concrete values into the
// payload, leaves well-formed placeholders where values are deferred, and
// reports one Assignment per placeholder:
//
//	params := schema.NewMessage(desc)
//	b := bind.NewBuilder(params, bind.Args{
//		"speed":  0.5,
//		"target": bind.BlackboardPath("perception.pose"),
//		"path":   []any{"a", bind.Expression("next_waypoint()")},
//	})
//	msg, assignments, err := b.Build()
//
// Assignment paths use the syntax field, field.sub and field[N], freely
// composed (a.b[3].c[0]).
package bind

import "fmt"

// BlackboardReference is implemented by values read from the blackboard at
// execution time.
type BlackboardReference interface {
	AccessPath() string
}

// ExpressionSource is implemented by values computed from an expression at
// execution time. The text is forwarded verbatim and never interpreted.
type ExpressionSource interface {
	ExpressionText() string
}

// BlackboardPath is a deferred value read from the blackboard.
type BlackboardPath string

// AccessPath implements BlackboardReference.
func (p BlackboardPath) AccessPath() string { return string(p) }

// Expression is a deferred value computed from its source text.
type Expression string

// ExpressionText implements ExpressionSource.
func (e Expression) ExpressionText() string { return string(e) }

// DeferredKind tells the two deferred variants apart.
type DeferredKind int

const (
	DeferredBlackboard DeferredKind = iota + 1
	DeferredExpression
)

func (k DeferredKind) String() string {
	switch k {
	case DeferredBlackboard:
		return "blackboard"
	case DeferredExpression:
		return "expression"
	default:
		return fmt.Sprintf("DeferredKind(%d)", int(k))
	}
}

// Deferred is a classified deferred value.
type Deferred struct {
	Kind DeferredKind
	Text string
}

func (d Deferred) String() string {
	return fmt.Sprintf("%s(%q)", d.Kind, d.Text)
}

// asDeferred applies the first two classification rules only: it recognises
// deferred markers without looking at the target field.
func asDeferred(v any) (Deferred, bool) {
	switch d := v.(type) {
	case BlackboardReference:
		return Deferred{Kind: DeferredBlackboard, Text: d.AccessPath()}, true
	case ExpressionSource:
		return Deferred{Kind: DeferredExpression, Text: d.ExpressionText()}, true
	}
	return Deferred{}, false
}
