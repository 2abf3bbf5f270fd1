// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package bind

import (
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/jllopis/skillbind/pkg/schema"
)

func testDef() schema.FileDef {
	return schema.FileDef{
		Package: "test.bind",
		Enums: []schema.EnumDef{
			{Name: "Color", Values: []string{"COLOR_UNSPECIFIED", "RED", "GREEN"}},
		},
		Messages: []schema.MessageDef{
			{
				Name: "Inner",
				Fields: []schema.FieldDef{
					{Name: "list", Type: "string", Repeated: true},
					{Name: "label", Type: "string"},
				},
			},
			{
				Name: "Point",
				Fields: []schema.FieldDef{
					{Name: "x", Type: "double"},
					{Name: "y", Type: "double"},
				},
			},
			{
				Name: "Params",
				Fields: []schema.FieldDef{
					{Name: "a", Type: "int32"},
					{Name: "x", Type: "string", Oneof: "choice"},
					{Name: "y", Type: "int32", Oneof: "choice"},
					{Name: "c", Type: "string", Repeated: true},
					{Name: "m", Type: "Inner"},
					{Name: "points", Type: "Point", Repeated: true},
					{Name: "tags", Type: "map<string, int32>"},
					{Name: "named", Type: "map<string, Point>"},
					{Name: "color", Type: "Color"},
					{Name: "data", Type: "bytes"},
					{Name: "ratio", Type: "float"},
					{Name: "count", Type: "uint32"},
					{Name: "big", Type: "int64"},
					{Name: "max_speed", Type: "double"},
					{Name: "colors", Type: "Color", Repeated: true},
					{Name: "note", Type: "string", Optional: true},
					{Name: "ids", Type: "map<int32, string>"},
				},
			},
		},
	}
}

type fixture struct {
	params *schema.Message
	inner  *schema.Message
	point  *schema.Message
}

// newFixture compiles the test schema into a fresh descriptor pool.
func newFixture(t *testing.T) fixture {
	t.Helper()
	fd, err := schema.Compile(testDef())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	lookup := func(name string) *schema.Message {
		m, err := schema.Lookup(fd, name)
		if err != nil {
			t.Fatalf("lookup %s: %v", name, err)
		}
		return m
	}
	return fixture{
		params: lookup("Params"),
		inner:  lookup("Inner"),
		point:  lookup("Point"),
	}
}

// field reads a field of m by name.
func field(t *testing.T, m proto.Message, name string) protoreflect.Value {
	t.Helper()
	r := m.ProtoReflect()
	fd := r.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil {
		t.Fatalf("%s has no field %q", r.Descriptor().FullName(), name)
	}
	return r.Get(fd)
}

func has(t *testing.T, m proto.Message, name string) bool {
	t.Helper()
	r := m.ProtoReflect()
	fd := r.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil {
		t.Fatalf("%s has no field %q", r.Descriptor().FullName(), name)
	}
	return r.Has(fd)
}

func stringList(l protoreflect.List) []string {
	out := make([]string, l.Len())
	for i := range out {
		out[i] = l.Get(i).String()
	}
	return out
}

func fieldKey(s string) protoreflect.MapKey {
	return protoreflect.ValueOfString(s).MapKey()
}
