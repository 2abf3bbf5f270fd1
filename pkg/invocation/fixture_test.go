// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package invocation

import (
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/jllopis/skillbind/pkg/schema"
)

func compile(t *testing.T, name string, messages ...schema.MessageDef) *schema.Message {
	t.Helper()
	m, err := schema.CompileMessage(schema.FileDef{Package: "test.inv", Messages: messages}, name)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return m
}

// endToEndSchema is {a: int32, oneof choice {x: string, y: int32}, c: repeated string}.
func endToEndSchema(t *testing.T) *schema.Message {
	return compile(t, "Params", schema.MessageDef{Name: "Params", Fields: []schema.FieldDef{
		{Name: "a", Type: "int32"},
		{Name: "x", Type: "string", Oneof: "choice"},
		{Name: "y", Type: "int32", Oneof: "choice"},
		{Name: "c", Type: "string", Repeated: true},
	}})
}

// nestedSchema is {m: Inner{list: repeated string}}.
func nestedSchema(t *testing.T) (*schema.Message, *schema.Message) {
	t.Helper()
	fd, err := schema.Compile(schema.FileDef{Package: "test.inv", Messages: []schema.MessageDef{
		{Name: "Inner", Fields: []schema.FieldDef{{Name: "list", Type: "string", Repeated: true}}},
		{Name: "Outer", Fields: []schema.FieldDef{{Name: "m", Type: "Inner"}}},
	}})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	outer, err := schema.Lookup(fd, "Outer")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	inner, err := schema.Lookup(fd, "Inner")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	return outer, inner
}

// armSchema has a field named like the arm resource slot.
func armSchema(t *testing.T) *schema.Message {
	return compile(t, "ArmParams", schema.MessageDef{Name: "ArmParams", Fields: []schema.FieldDef{
		{Name: "arm", Type: "string", Optional: true},
		{Name: "speed", Type: "double", Optional: true},
	}})
}

func get(t *testing.T, m proto.Message, name string) protoreflect.Value {
	t.Helper()
	r := m.ProtoReflect()
	fd := r.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil {
		t.Fatalf("no field %s in %s", name, r.Descriptor().FullName())
	}
	return r.Get(fd)
}

func stringValues(l protoreflect.List) []string {
	out := make([]string, l.Len())
	for i := range out {
		out[i] = l.Get(i).String()
	}
	return out
}
