// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package bind

import (
	"fmt"
	"reflect"
	"sort"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/jllopis/skillbind/pkg/errors"
	"github.com/jllopis/skillbind/pkg/schema"
)

// binding is the state of one binding call over one message: the oneof
// groups bound so far and the assignments collected.
type binding struct {
	msg    *schema.Message
	oneofs map[string]string
	out    Collector
}

func newBinding(msg *schema.Message) *binding {
	return &binding{msg: msg, oneofs: make(map[string]string)}
}

// BindField applies one keyword to dst, whose type must be s, and returns
// the assignments it produced. Binding state (oneof bookkeeping) does not
// outlive the call; use a Builder to bind several fields together.
func BindField(dst protoreflect.Message, s *schema.Message, name string, v any) ([]Assignment, error) {
	if dst.Descriptor() != s.Descriptor() {
		return nil, errors.Newf(errors.CodeTypeMismatch, "destination is %s", dst.Descriptor().FullName()).At(s.Name(), name)
	}
	f, ok := s.Field(name)
	if !ok {
		return nil, errors.UnknownField(s.Name(), name)
	}
	b := newBinding(s)
	if err := b.bindField(dst, f, v); err != nil {
		return nil, err
	}
	return b.out.Assignments(), nil
}

func (b *binding) bindField(dst protoreflect.Message, f schema.Field, v any) error {
	if f.OneofGroup != "" {
		if prev, ok := b.oneofs[f.OneofGroup]; ok && prev != f.Name {
			return errors.OneofConflict(b.msg.Name(), f.OneofGroup, prev, f.Name)
		}
		b.oneofs[f.OneofGroup] = f.Name
	}

	switch {
	case f.Kind == schema.KindMap:
		return b.bindMap(dst, f, v)
	case f.IsRepeated():
		return b.bindList(dst, f, v)
	case f.Kind == schema.KindMessage:
		return b.bindMessage(dst, f, v)
	default:
		return b.bindScalar(dst, f, v)
	}
}

func (b *binding) bindScalar(dst protoreflect.Message, f schema.Field, v any) error {
	fd := f.Descriptor()
	c, err := classify(v, f)
	if err != nil {
		return b.fail(err, f.Name)
	}
	switch c.Class {
	case ClassDeferred:
		dst.Set(fd, fd.Default())
		b.out.Add(FieldPath(f.Name), c.Deferred)
	case ClassConcrete:
		dst.Set(fd, c.Value)
	default:
		return errors.Newf(errors.CodeInternal, "unexpected %s value", c.Class).At(b.msg.Name(), f.Name)
	}
	return nil
}

func (b *binding) bindMessage(dst protoreflect.Message, f schema.Field, v any) error {
	fd := f.Descriptor()
	c, err := classify(v, f)
	if err != nil {
		return b.fail(err, f.Name)
	}
	dst.Clear(fd)
	sub := dst.Mutable(fd).Message()
	switch c.Class {
	case ClassDeferred:
		b.out.Add(FieldPath(f.Name), c.Deferred)
	case ClassBuilder:
		res, err := c.Builder.bindInto(sub)
		if err != nil {
			return nest(err, f.Name)
		}
		b.out.Bubble(FieldPath(f.Name), res.Assignments)
	case ClassConcrete:
		if err := copyMessage(sub, c.Value.Message()); err != nil {
			return nest(err, f.Name)
		}
	}
	return nil
}

func (b *binding) bindList(dst protoreflect.Message, f schema.Field, v any) error {
	fd := f.Descriptor()
	if _, ok := asDeferred(v); ok {
		return errors.Newf(errors.CodeSetAmbiguousCollectionType,
			"a repeated field cannot be replaced by one deferred value; defer its elements instead").At(b.msg.Name(), f.Name)
	}
	if v == nil {
		return errors.TypeMismatch(b.msg.Name(), f.Name, "list of "+f.TypeName(), v)
	}
	rv := reflect.ValueOf(v)
	if isSet(rv) {
		return errors.Newf(errors.CodeSetAmbiguousCollectionType,
			"set %T where an ordered list of %s is required", v, f.TypeName()).At(b.msg.Name(), f.Name)
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return errors.TypeMismatch(b.msg.Name(), f.Name, "list of "+f.TypeName(), v)
	}

	dst.Clear(fd)
	list := dst.Mutable(fd).List()
	for i := 0; i < rv.Len(); i++ {
		path := IndexPath(f.Name, i)
		c, err := classify(rv.Index(i).Interface(), f)
		if err != nil {
			return b.fail(err, path)
		}
		switch c.Class {
		case ClassDeferred:
			if f.Kind == schema.KindMessage {
				list.Append(list.NewElement())
			} else {
				list.Append(zeroValue(f))
			}
			b.out.Add(path, c.Deferred)
		case ClassBuilder:
			el := list.NewElement()
			res, err := c.Builder.bindInto(el.Message())
			if err != nil {
				return nest(err, path)
			}
			list.Append(el)
			b.out.Bubble(path, res.Assignments)
		case ClassConcrete:
			if f.Kind != schema.KindMessage {
				list.Append(c.Value)
				continue
			}
			el := list.NewElement()
			if err := copyMessage(el.Message(), c.Value.Message()); err != nil {
				return nest(err, path)
			}
			list.Append(el)
		}
	}
	return nil
}

func (b *binding) bindMap(dst protoreflect.Message, f schema.Field, v any) error {
	fd := f.Descriptor()
	if _, ok := asDeferred(v); ok {
		return errors.Newf(errors.CodeUnsupportedDeferredInMap,
			"map fields cannot be deferred").At(b.msg.Name(), f.Name)
	}
	if v == nil {
		return errors.TypeMismatch(b.msg.Name(), f.Name, f.TypeName(), v)
	}
	rv := reflect.ValueOf(v)
	if isSet(rv) {
		return errors.Newf(errors.CodeSetAmbiguousCollectionType,
			"set %T where a key to value mapping is required", v).At(b.msg.Name(), f.Name)
	}
	if rv.Kind() != reflect.Map {
		return errors.TypeMismatch(b.msg.Name(), f.Name, f.TypeName(), v)
	}

	keyField, valField := f.MapKey(), f.MapValue()
	keys := rv.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		return keyLess(keys[i].Interface(), keys[j].Interface())
	})

	// Deferred values are rejected before anything is written.
	for _, k := range keys {
		if _, ok := asDeferred(rv.MapIndex(k).Interface()); ok {
			return errors.Newf(errors.CodeUnsupportedDeferredInMap,
				"map values cannot be deferred").At(b.msg.Name(), mapPath(f.Name, k.Interface()))
		}
	}

	dst.Clear(fd)
	m := dst.Mutable(fd).Map()
	for _, k := range keys {
		path := mapPath(f.Name, k.Interface())
		kv, ok := scalarValue(keyField, k.Interface())
		if !ok {
			return errors.TypeMismatch(b.msg.Name(), path, "map key "+keyField.TypeName(), k.Interface())
		}
		c, err := classify(rv.MapIndex(k).Interface(), valField)
		if err != nil {
			return b.fail(err, path)
		}
		switch c.Class {
		case ClassBuilder:
			nv := m.NewValue()
			res, err := c.Builder.bindInto(nv.Message())
			if err != nil {
				return nest(err, path)
			}
			if len(res.Assignments) > 0 {
				return errors.Newf(errors.CodeUnsupportedDeferredInMap,
					"map values cannot hold deferred values").At(b.msg.Name(), JoinPath(path, res.Assignments[0].Path))
			}
			m.Set(kv.MapKey(), nv)
		case ClassConcrete:
			if valField.Kind != schema.KindMessage {
				m.Set(kv.MapKey(), c.Value)
				continue
			}
			nv := m.NewValue()
			if err := copyMessage(nv.Message(), c.Value.Message()); err != nil {
				return nest(err, path)
			}
			m.Set(kv.MapKey(), nv)
		default:
			return errors.Newf(errors.CodeUnsupportedDeferredInMap,
				"map values cannot be deferred").At(b.msg.Name(), path)
		}
	}
	return nil
}

// fail locates a classification error at path within the bound message.
func (b *binding) fail(err error, path string) error {
	return errors.AsBindError(err).At(b.msg.Name(), path)
}

// nest prefixes the path of an error raised inside a nested message. The
// message type stays that of the innermost message.
func nest(err error, prefix string) error {
	return errors.AsBindError(err).WithPathPrefix(prefix)
}

// copyMessage copies src into dst. Messages from another descriptor pool
// are canonicalized field by field.
func copyMessage(dst, src protoreflect.Message) error {
	if dst.Descriptor() == src.Descriptor() {
		proto.Merge(dst.Interface(), src.Interface())
		return nil
	}
	if dst.Descriptor().FullName() != src.Descriptor().FullName() {
		return errors.Newf(errors.CodeTypeMismatch, "expected %s, got message %s",
			dst.Descriptor().FullName(), src.Descriptor().FullName()).At(string(dst.Descriptor().FullName()), "")
	}
	return canonicalizeInto(dst, src, "")
}

// isSet reports whether rv is a set literal: a map whose values carry no
// data.
func isSet(rv reflect.Value) bool {
	if rv.Kind() != reflect.Map {
		return false
	}
	elem := rv.Type().Elem()
	return elem.Kind() == reflect.Struct && elem.NumField() == 0
}

// keyLess orders numeric keys by value ahead of other keys, which order by
// their printed form.
func keyLess(a, b any) bool {
	av, aok := numericKey(a)
	bv, bok := numericKey(b)
	switch {
	case aok && bok && av != bv:
		return av < bv
	case aok != bok:
		return aok
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func numericKey(k any) (float64, bool) {
	rv := reflect.ValueOf(k)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func mapPath(name string, key any) string {
	if s, ok := key.(string); ok {
		return fmt.Sprintf("%s[%q]", name, s)
	}
	return fmt.Sprintf("%s[%v]", name, key)
}
