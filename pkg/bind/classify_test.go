// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package bind

import (
	"testing"

	"github.com/jllopis/skillbind/pkg/errors"
)

type worldRef struct{ key string }

func (r worldRef) AccessPath() string { return "world." + r.key }

func TestClassify(t *testing.T) {
	fx := newFixture(t)
	a, _ := fx.params.Field("a")
	m, _ := fx.params.Field("m")
	points, _ := fx.params.Field("points")

	tests := []struct {
		name  string
		input any
		field string
		class Class
	}{
		{"blackboard path", BlackboardPath("robot.pose"), "a", ClassDeferred},
		{"custom blackboard reference", worldRef{key: "door"}, "a", ClassDeferred},
		{"expression", Expression("1 + 1"), "a", ClassDeferred},
		{"int literal", 3, "a", ClassConcrete},
		{"builder", NewBuilder(fx.inner, nil), "m", ClassBuilder},
		{"args", Args{"label": "l"}, "m", ClassBuilder},
		{"plain map", map[string]any{"label": "l"}, "m", ClassBuilder},
		{"element builder", Args{"x": 1.0}, "points", ClassBuilder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := a
			switch tt.field {
			case "m":
				f = m
			case "points":
				f = points
			}
			c, err := Classify(tt.input, f)
			if err != nil {
				t.Fatalf("classify: %v", err)
			}
			if c.Class != tt.class {
				t.Fatalf("expected %v, got %v", tt.class, c.Class)
			}
		})
	}
}

func TestClassifyDeferredText(t *testing.T) {
	fx := newFixture(t)
	a, _ := fx.params.Field("a")

	c, err := Classify(worldRef{key: "door"}, a)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if c.Deferred.Kind != DeferredBlackboard || c.Deferred.Text != "world.door" {
		t.Fatalf("unexpected deferred value %v", c.Deferred)
	}

	c, err = Classify(Expression("len(items)"), a)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if c.Deferred.Kind != DeferredExpression || c.Deferred.Text != "len(items)" {
		t.Fatalf("unexpected deferred value %v", c.Deferred)
	}
}

func TestClassifyMessageLiteral(t *testing.T) {
	fx := newFixture(t)
	m, _ := fx.params.Field("m")

	inner, _, err := NewBuilder(fx.inner, Args{"label": "l"}).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	c, err := Classify(inner, m)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if c.Class != ClassConcrete || !c.Value.Message().IsValid() {
		t.Fatalf("expected a concrete message, got %v", c.Class)
	}

	point, _, err := NewBuilder(fx.point, nil).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := Classify(point, m); !errors.HasCode(err, errors.CodeTypeMismatch) {
		t.Fatalf("expected TYPE_MISMATCH for a message of another type, got %v", err)
	}
}

func TestClassString(t *testing.T) {
	if ClassBuilder.String() != "builder" || Class(9).String() != "Class(9)" {
		t.Fatalf("unexpected class names")
	}
	if DeferredExpression.String() != "expression" {
		t.Fatalf("unexpected deferred kind name")
	}
}
