// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package bind

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/jllopis/skillbind/pkg/errors"
	"github.com/jllopis/skillbind/pkg/schema"
)

// Args are keyword values keyed by field name. Keys may use either the
// proto name or the JSON name of a field.
type Args map[string]any

// Builder binds keyword values to one message type. A Builder placed at a
// message-typed position of an enclosing Builder produces that sub-message.
//
// A Builder only holds its inputs; every BindInto or Build call is an
// independent binding call.
type Builder struct {
	schema *schema.Message
	args   Args
}

// NewBuilder returns a builder for s, seeded with a copy of args.
func NewBuilder(s *schema.Message, args Args) *Builder {
	b := &Builder{schema: s, args: make(Args, len(args))}
	for k, v := range args {
		b.args[k] = v
	}
	return b
}

// Set records a keyword value and returns the builder for chaining.
func (b *Builder) Set(name string, v any) *Builder {
	b.args[name] = v
	return b
}

// Schema returns the message type the builder binds to.
func (b *Builder) Schema() *schema.Message { return b.schema }

// Args returns a copy of the recorded keyword values.
func (b *Builder) Args() Args {
	out := make(Args, len(b.args))
	for k, v := range b.args {
		out[k] = v
	}
	return out
}

// Result is the outcome of a successful binding call.
type Result struct {
	// Consumed lists the bound fields by proto name, in schema order.
	Consumed []string
	// Assignments are relative to the bound message.
	Assignments []Assignment
}

// BindInto binds the recorded values into dst, which must be a message of
// the builder's type. Fields are bound in schema declaration order, so the
// assignment order does not depend on map iteration. Keywords that name no
// field fail the call with UnconsumedArgument. On error dst may be partially
// written.
func (b *Builder) BindInto(dst protoreflect.Message) (Result, error) {
	return b.bindInto(dst)
}

// Build binds the recorded values into a fresh message.
func (b *Builder) Build() (proto.Message, []Assignment, error) {
	dst := b.schema.New()
	res, err := b.bindInto(dst)
	if err != nil {
		return nil, nil, err
	}
	return dst.Interface(), res.Assignments, nil
}

func (b *Builder) bindInto(dst protoreflect.Message) (Result, error) {
	md := b.schema.Descriptor()
	if dst.Descriptor() != md {
		if dst.Descriptor().FullName() != md.FullName() {
			return Result{}, errors.Newf(errors.CodeTypeMismatch, "builder for %s cannot bind %s",
				md.FullName(), dst.Descriptor().FullName()).At(b.schema.Name(), "")
		}
		tmp := b.schema.New()
		res, err := b.bindInto(tmp)
		if err != nil {
			return Result{}, err
		}
		if err := canonicalizeInto(dst, tmp, ""); err != nil {
			return Result{}, err
		}
		return res, nil
	}

	st := newBinding(b.schema)
	used := make(map[string]bool, len(b.args))
	var consumed []string
	for _, f := range b.schema.Fields() {
		key, v, ok := b.lookup(f)
		if !ok {
			continue
		}
		used[key] = true
		if err := st.bindField(dst, f, v); err != nil {
			return Result{}, err
		}
		consumed = append(consumed, f.Name)
	}

	var leftover []string
	for k := range b.args {
		if !used[k] {
			leftover = append(leftover, k)
		}
	}
	if len(leftover) > 0 {
		return Result{}, errors.UnconsumedArguments(b.schema.Name(), leftover)
	}
	return Result{Consumed: consumed, Assignments: st.out.Assignments()}, nil
}

// lookup finds the keyword for f, preferring the proto name. When both
// names are supplied the JSON alias is left unconsumed.
func (b *Builder) lookup(f schema.Field) (string, any, bool) {
	if v, ok := b.args[f.Name]; ok {
		return f.Name, v, true
	}
	if f.JSONName == "" || f.JSONName == f.Name {
		return "", nil, false
	}
	// A JSON name shadowed by another field's proto name belongs to that field.
	if g, ok := b.schema.Field(f.JSONName); ok && g.Name == f.Name {
		if v, ok := b.args[f.JSONName]; ok {
			return f.JSONName, v, true
		}
	}
	return "", nil, false
}
