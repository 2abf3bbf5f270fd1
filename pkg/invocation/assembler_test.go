// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package invocation

import (
	"bytes"
	"reflect"
	"regexp"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/testing/protocmp"

	"github.com/jllopis/skillbind/pkg/bind"
	"github.com/jllopis/skillbind/pkg/errors"
	"github.com/jllopis/skillbind/pkg/schema"
	"github.com/jllopis/skillbind/pkg/skills"
	"github.com/jllopis/skillbind/pkg/telemetry"
)

func TestAssembleEndToEnd(t *testing.T) {
	params := endToEndSchema(t)

	inv, err := Assemble(params, nil, bind.Args{
		"a": 1,
		"x": "hi",
		"c": []any{"p", bind.BlackboardPath("q")},
	}, nil)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	if got := get(t, inv.Parameters, "a").Int(); got != 1 {
		t.Errorf("expected a=1, got %d", got)
	}
	if got := get(t, inv.Parameters, "x").String(); got != "hi" {
		t.Errorf("expected x=hi, got %q", got)
	}
	if got := stringValues(get(t, inv.Parameters, "c").List()); !reflect.DeepEqual(got, []string{"p", ""}) {
		t.Errorf("expected c=[p, \"\"], got %q", got)
	}
	expected := []bind.Assignment{{Path: "c[1]", Expression: "q"}}
	if !reflect.DeepEqual(inv.Assignments, expected) {
		t.Errorf("expected %v, got %v", expected, inv.Assignments)
	}
	if inv.SkillID != "test.inv.Params" {
		t.Errorf("unexpected skill id %s", inv.SkillID)
	}
	if inv.ResultKey != "params_result" {
		t.Errorf("unexpected result key %q", inv.ResultKey)
	}
}

func TestAssemblePathCorrectness(t *testing.T) {
	outer, inner := nestedSchema(t)

	inv, err := Assemble(outer, nil, bind.Args{
		"m": bind.NewBuilder(inner, bind.Args{
			"list": []any{bind.BlackboardPath("x"), "concrete"},
		}),
	}, nil)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	expected := []bind.Assignment{{Path: "m.list[0]", Expression: "x"}}
	if !reflect.DeepEqual(inv.Assignments, expected) {
		t.Fatalf("expected %v, got %v", expected, inv.Assignments)
	}
	m := get(t, inv.Parameters, "m").Message()
	list := m.Get(m.Descriptor().Fields().ByName("list")).List()
	if got := stringValues(list); !reflect.DeepEqual(got, []string{"", "concrete"}) {
		t.Fatalf("expected [\"\", concrete], got %q", got)
	}
}

func TestAssembleUnconsumedKeyword(t *testing.T) {
	outer, _ := nestedSchema(t)

	_, err := Assemble(outer, nil, bind.Args{"not_a_field": 1}, nil)
	if !errors.HasCode(err, errors.CodeUnconsumedArgument) {
		t.Fatalf("expected UNCONSUMED_ARGUMENT, got %v", err)
	}
	be := errors.AsBindError(err)
	if !reflect.DeepEqual(be.Context["arguments"], []string{"not_a_field"}) {
		t.Fatalf("expected not_a_field to be named, got %v", be.Context)
	}
}

func TestAssembleRequiredFields(t *testing.T) {
	params := compile(t, "Req", schema.MessageDef{Name: "Req", Fields: []schema.FieldDef{
		{Name: "r", Type: "int32"},
		{Name: "opt", Type: "int32", Optional: true},
		{Name: "list", Type: "int32", Repeated: true},
		{Name: "u", Type: "string", Oneof: "g"},
	}})

	_, err := Assemble(params, nil, bind.Args{}, nil)
	if !errors.HasCode(err, errors.CodeMissingRequiredField) {
		t.Fatalf("expected MISSING_REQUIRED_FIELD, got %v", err)
	}
	be := errors.AsBindError(err)
	if !reflect.DeepEqual(be.Context["fields"], []string{"r"}) {
		t.Fatalf("expected only r to be missing, got %v", be.Context["fields"])
	}
	if be.MessageType != "test.inv.Req" {
		t.Fatalf("expected message type test.inv.Req, got %s", be.MessageType)
	}

	if _, err := Assemble(params, nil, bind.Args{"r": 5}, nil); err != nil {
		t.Fatalf("assemble with r: %v", err)
	}
	// A deferred value counts as bound.
	inv, err := Assemble(params, nil, bind.Args{"r": bind.Expression("1 + 1")}, nil)
	if err != nil {
		t.Fatalf("assemble with deferred r: %v", err)
	}
	if len(inv.Assignments) != 1 || inv.Assignments[0].Path != "r" {
		t.Fatalf("unexpected assignments %v", inv.Assignments)
	}
}

func TestAssembleMissingListsAll(t *testing.T) {
	params := compile(t, "Req", schema.MessageDef{Name: "Req", Fields: []schema.FieldDef{
		{Name: "b", Type: "int32"},
		{Name: "a", Type: "string"},
	}})
	_, err := Assemble(params, nil, nil, nil)
	be := errors.AsBindError(err)
	if be == nil || !reflect.DeepEqual(be.Context["fields"], []string{"b", "a"}) {
		t.Fatalf("expected b and a in schema order, got %v", err)
	}
}

func TestAssembleDefaults(t *testing.T) {
	params := compile(t, "Req", schema.MessageDef{Name: "Req", Fields: []schema.FieldDef{
		{Name: "r", Type: "int32"},
		{Name: "s", Type: "string"},
	}})
	defaults := params.New()
	defaults.Set(params.Descriptor().Fields().ByName("r"), protoreflect.ValueOfInt32(7))
	defaults.Set(params.Descriptor().Fields().ByName("s"), protoreflect.ValueOfString("base"))

	inv, err := Assemble(params, defaults.Interface(), bind.Args{"s": "override"}, nil)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if got := get(t, inv.Parameters, "r").Int(); got != 7 {
		t.Errorf("expected default r=7, got %d", got)
	}
	if got := get(t, inv.Parameters, "s").String(); got != "override" {
		t.Errorf("expected s=override, got %q", got)
	}
	if got := get(t, defaults.Interface(), "s").String(); got != "base" {
		t.Errorf("defaults were modified: s=%q", got)
	}
}

func TestAssembleForeignDefaults(t *testing.T) {
	def := schema.MessageDef{Name: "Req", Fields: []schema.FieldDef{{Name: "r", Type: "int32"}}}
	params := compile(t, "Req", def)
	foreign := compile(t, "Req", def)

	defaults := foreign.New()
	defaults.Set(foreign.Descriptor().Fields().ByName("r"), protoreflect.ValueOfInt32(3))

	inv, err := Assemble(params, defaults.Interface(), nil, nil)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if inv.Parameters.ProtoReflect().Descriptor() != params.Descriptor() {
		t.Fatalf("expected parameters of the target descriptor")
	}
	if got := get(t, inv.Parameters, "r").Int(); got != 3 {
		t.Fatalf("expected r=3, got %d", got)
	}

	other := compile(t, "Other", schema.MessageDef{Name: "Other"})
	if _, err := Assemble(params, other.New().Interface(), nil, nil); !errors.HasCode(err, errors.CodeTypeMismatch) {
		t.Fatalf("expected TYPE_MISMATCH, got %v", err)
	}
}

func TestAssembleDeterminism(t *testing.T) {
	params := endToEndSchema(t)
	args := func() bind.Args {
		return bind.Args{
			"a": bind.BlackboardPath("world.a"),
			"y": 4,
			"c": []any{bind.Expression("n + 1"), "p", bind.BlackboardPath("world.c")},
		}
	}

	first, err := Assemble(params, nil, args(), nil)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	second, err := Assemble(params, nil, args(), nil)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if diff := cmp.Diff(first, second, protocmp.Transform()); diff != "" {
		t.Fatalf("invocations differ (-first +second):\n%s", diff)
	}
	if first.Parameters == second.Parameters {
		t.Fatal("invocations share their payload")
	}
}

func TestResultKeyPrecedence(t *testing.T) {
	params := endToEndSchema(t)
	a := New(WithResultKeyFunc(func(s *skills.Skill) string { return "gen_" + s.ShortName() }))
	args := bind.Args{"a": 1}

	tests := []struct {
		name     string
		skillKey string
		reqKey   string
		expected string
	}{
		{"request wins", "skill_key", "req_key", "req_key"},
		{"skill key", "skill_key", "", "skill_key"},
		{"generated", "", "", "gen_Call"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &skills.Skill{ID: "test.inv.Call", Parameters: params, ResultKey: tt.skillKey}
			inv, err := a.AssembleSkill(s, Request{Args: args, ResultKey: tt.reqKey})
			if err != nil {
				t.Fatalf("assemble: %v", err)
			}
			if inv.ResultKey != tt.expected {
				t.Fatalf("expected %q, got %q", tt.expected, inv.ResultKey)
			}
		})
	}
}

func TestAssembleBindingErrorAborts(t *testing.T) {
	params := endToEndSchema(t)
	inv, err := Assemble(params, nil, bind.Args{"a": 1, "x": "hi", "y": 2}, nil)
	if !errors.HasCode(err, errors.CodeOneofConflict) {
		t.Fatalf("expected ONEOF_CONFLICT, got %v", err)
	}
	if inv != nil {
		t.Fatal("expected no invocation on error")
	}
}

func TestAssembleSkillWithoutSchema(t *testing.T) {
	if _, err := New().AssembleSkill(&skills.Skill{ID: "x"}, Request{}); !errors.HasCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestAssemblerLogsAndRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := telemetry.NewLogger(&buf, "debug", "text")
	metrics, err := telemetry.NewBindMetrics(nil)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	a := New(WithLogger(logger), WithMetrics(metrics))
	s := &skills.Skill{ID: "test.inv.Call", Parameters: endToEndSchema(t), ResultKey: "out"}

	if _, err := a.AssembleSkill(s, Request{Args: bind.Args{"a": 1}}); err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if _, err := a.AssembleSkill(s, Request{Args: bind.Args{"b": 1}}); err == nil {
		t.Fatal("expected error")
	}
	out := buf.String()
	for _, want := range []string{"invocation assembled", "invocation rejected", "skill=test.inv.Call"} {
		if !bytes.Contains([]byte(out), []byte(want)) {
			t.Errorf("expected log to contain %q:\n%s", want, out)
		}
	}
}

func TestSnakeCase(t *testing.T) {
	tests := map[string]string{
		"MoveTo":     "move_to",
		"move-to":    "move_to",
		"HTTPServer": "http_server",
		"Params":     "params",
		"already_ok": "already_ok",
	}
	for in, expected := range tests {
		if got := SnakeCase(in); got != expected {
			t.Errorf("SnakeCase(%q): expected %q, got %q", in, expected, got)
		}
	}
}

func TestDefaultResultKey(t *testing.T) {
	s := &skills.Skill{ID: "skills.move.MoveTo"}
	if first, second := DefaultResultKey(s), DefaultResultKey(s); first != "move_to_result" || second != first {
		t.Fatalf("expected move_to_result twice, got %q, %q", first, second)
	}
}

func TestUniqueResultKey(t *testing.T) {
	s := &skills.Skill{ID: "skills.move.MoveTo"}
	a := New(WithResultKeyFunc(UniqueResultKey))
	first, err := a.AssembleSkill(&skills.Skill{ID: s.ID, Parameters: endToEndSchema(t)}, Request{Args: bind.Args{"a": 1}})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	second := UniqueResultKey(s)
	pattern := regexp.MustCompile(`^move_to_[0-9a-f]{8}$`)
	if !pattern.MatchString(first.ResultKey) || !pattern.MatchString(second) {
		t.Fatalf("unexpected keys %q, %q", first.ResultKey, second)
	}
	if first.ResultKey == second {
		t.Fatalf("expected distinct keys, got %q twice", second)
	}
}
