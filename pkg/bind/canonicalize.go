// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package bind

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/jllopis/skillbind/pkg/errors"
	"github.com/jllopis/skillbind/pkg/schema"
)

// Canonicalize copies src into a new message of target's type, matching
// fields by number. It is how messages built against one descriptor pool are
// moved into payloads of another.
//
// Every populated field of src must exist in target with the same number,
// the same kind and the same list or map shape. Enums are copied by number.
// Unknown fields are carried over. Anything else is an IncompatibleSchema
// error naming the first offending path.
func Canonicalize(src proto.Message, target *schema.Message) (proto.Message, error) {
	if src == nil {
		return nil, errors.Newf(errors.CodeTypeMismatch, "nil message").At(target.Name(), "")
	}
	dst := target.New()
	if err := canonicalizeInto(dst, src.ProtoReflect(), ""); err != nil {
		return nil, err
	}
	return dst.Interface(), nil
}

func canonicalizeInto(dst, src protoreflect.Message, path string) error {
	dd := dst.Descriptor()
	var failure error
	src.Range(func(sfd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		fieldPath := JoinPath(path, string(sfd.Name()))
		dfd := dd.Fields().ByNumber(sfd.Number())
		if dfd == nil {
			failure = incompatible(dd, fieldPath, "no field numbered %d", sfd.Number())
			return false
		}
		if reason := shapeMismatch(sfd, dfd); reason != "" {
			failure = incompatible(dd, fieldPath, "%s", reason)
			return false
		}

		switch {
		case sfd.IsList():
			sl, dl := v.List(), dst.Mutable(dfd).List()
			for i := 0; i < sl.Len(); i++ {
				nv, err := copyValue(dfd, sl.Get(i), dl.NewElement, IndexPath(fieldPath, i))
				if err != nil {
					failure = err
					return false
				}
				dl.Append(nv)
			}
		case sfd.IsMap():
			dm := dst.Mutable(dfd).Map()
			v.Map().Range(func(k protoreflect.MapKey, mv protoreflect.Value) bool {
				nv, err := copyValue(dfd.MapValue(), mv, dm.NewValue, mapPath(fieldPath, k.Interface()))
				if err != nil {
					failure = err
					return false
				}
				dm.Set(k, nv)
				return true
			})
		default:
			nv, err := copyValue(dfd, v, func() protoreflect.Value { return dst.NewField(dfd) }, fieldPath)
			if err != nil {
				failure = err
				return false
			}
			dst.Set(dfd, nv)
		}
		return failure == nil
	})
	if failure != nil {
		return failure
	}
	if unknown := src.GetUnknown(); len(unknown) > 0 {
		dst.SetUnknown(append(dst.GetUnknown(), unknown...))
	}
	return nil
}

// copyValue copies one singular value described by dfd. newMessage
// allocates the destination when the value is a message.
func copyValue(dfd protoreflect.FieldDescriptor, v protoreflect.Value, newMessage func() protoreflect.Value, path string) (protoreflect.Value, error) {
	switch dfd.Kind() {
	case protoreflect.MessageKind, protoreflect.GroupKind:
		nv := newMessage()
		if err := canonicalizeInto(nv.Message(), v.Message(), path); err != nil {
			return protoreflect.Value{}, err
		}
		return nv, nil
	case protoreflect.BytesKind:
		return protoreflect.ValueOfBytes(append([]byte{}, v.Bytes()...)), nil
	default:
		return v, nil
	}
}

// shapeMismatch describes why two fields with the same number cannot carry
// the same values, or returns "".
func shapeMismatch(sfd, dfd protoreflect.FieldDescriptor) string {
	switch {
	case sfd.IsMap() != dfd.IsMap():
		return "map shape differs"
	case sfd.IsList() != dfd.IsList():
		return "list shape differs"
	case sfd.IsMap():
		if sfd.MapKey().Kind() != dfd.MapKey().Kind() {
			return "map key kind " + sfd.MapKey().Kind().String() + " cannot be copied to " + dfd.MapKey().Kind().String()
		}
		return kindMismatch(sfd.MapValue(), dfd.MapValue())
	default:
		return kindMismatch(sfd, dfd)
	}
}

func kindMismatch(sfd, dfd protoreflect.FieldDescriptor) string {
	sk, dk := sfd.Kind(), dfd.Kind()
	if isMessageKind(sk) && isMessageKind(dk) {
		return ""
	}
	if sk != dk {
		return "kind " + sk.String() + " cannot be copied to " + dk.String()
	}
	return ""
}

func isMessageKind(k protoreflect.Kind) bool {
	return k == protoreflect.MessageKind || k == protoreflect.GroupKind
}

func incompatible(dd protoreflect.MessageDescriptor, path, format string, args ...any) error {
	return errors.Newf(errors.CodeIncompatibleSchema, format, args...).At(string(dd.FullName()), path)
}
