// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package bind

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/jllopis/skillbind/pkg/errors"
	"github.com/jllopis/skillbind/pkg/schema"
)

// Class is the closed set of outcomes of classifying one input value.
type Class int

const (
	// ClassConcrete is a literal converted to the field's value type.
	ClassConcrete Class = iota + 1
	// ClassBuilder is a nested builder for a message-typed position. Its
	// assignments bubble up unchanged.
	ClassBuilder
	// ClassDeferred is a blackboard reference or an expression.
	ClassDeferred
)

func (c Class) String() string {
	switch c {
	case ClassConcrete:
		return "concrete"
	case ClassBuilder:
		return "builder"
	case ClassDeferred:
		return "deferred"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// Classified is the tagged result of Classify. Exactly one of Value, Builder
// and Deferred is meaningful, as told by Class.
type Classified struct {
	Class Class
	// Value holds a converted scalar or enum, or the source message of a
	// message literal.
	Value    protoreflect.Value
	Builder  *Builder
	Deferred Deferred
}

// Classify inspects one input value against the element type of f. For
// repeated fields the input is one element; for maps it is one mapped value
// and f must be the map's value field.
//
// Rules apply in order: blackboard reference, expression, nested builder,
// literal. A value that fits none of them is a TypeMismatch.
func Classify(input any, f schema.Field) (Classified, error) {
	return classify(input, f)
}

func classify(input any, f schema.Field) (Classified, error) {
	if d, ok := asDeferred(input); ok {
		return Classified{Class: ClassDeferred, Deferred: d}, nil
	}
	if input == nil {
		return Classified{}, errors.TypeMismatch("", "", f.TypeName(), input)
	}
	if f.Kind == schema.KindMessage || (f.Kind == schema.KindMap && f.MapValue().Kind == schema.KindMessage) {
		return classifyMessage(input, f)
	}
	if f.Kind == schema.KindMap {
		f = f.MapValue()
	}
	v, ok := scalarValue(f, input)
	if !ok {
		return Classified{}, errors.TypeMismatch("", "", f.TypeName(), input)
	}
	return Classified{Class: ClassConcrete, Value: v}, nil
}

func classifyMessage(input any, f schema.Field) (Classified, error) {
	target := f.Message()
	want := target.Name()
	switch v := input.(type) {
	case *Builder:
		if v == nil {
			return Classified{}, errors.TypeMismatch("", "", want, input)
		}
		if !v.Schema().SameType(target) {
			return Classified{}, errors.Newf(errors.CodeTypeMismatch,
				"expected %s, got builder for %s", want, v.Schema().Name())
		}
		return Classified{Class: ClassBuilder, Builder: v}, nil
	case Args:
		return Classified{Class: ClassBuilder, Builder: NewBuilder(target, v)}, nil
	case map[string]any:
		return Classified{Class: ClassBuilder, Builder: NewBuilder(target, v)}, nil
	case proto.Message:
		return classifyLiteral(v.ProtoReflect(), want, input)
	case protoreflect.Message:
		return classifyLiteral(v, want, input)
	}
	return Classified{}, errors.TypeMismatch("", "", want, input)
}

func classifyLiteral(m protoreflect.Message, want string, input any) (Classified, error) {
	if !m.IsValid() {
		return Classified{}, errors.Newf(errors.CodeTypeMismatch, "expected %s, got nil %T", want, input)
	}
	if got := string(m.Descriptor().FullName()); got != want {
		return Classified{}, errors.Newf(errors.CodeTypeMismatch, "expected %s, got message %s", want, got)
	}
	return Classified{Class: ClassConcrete, Value: protoreflect.ValueOfMessage(m)}, nil
}
