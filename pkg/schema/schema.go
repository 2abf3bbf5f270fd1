// Package schema provides a read-only view of a skill parameter message:
// its fields, their kinds and cardinalities, oneof groups and optionality.
//
// Schemas wrap protobuf message descriptors. A Message is immutable once
// built and may be shared between goroutines.
package schema

import (
	"fmt"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Kind is the shape of the values a field holds.
type Kind int

const (
	KindScalar Kind = iota + 1
	KindEnum
	KindMessage
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindEnum:
		return "enum"
	case KindMessage:
		return "message"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Cardinality tells singular fields from repeated ones. Maps are repeated.
type Cardinality int

const (
	Singular Cardinality = iota + 1
	Repeated
)

func (c Cardinality) String() string {
	if c == Repeated {
		return "repeated"
	}
	return "singular"
}

// Field describes one field of a message.
type Field struct {
	Name     string
	JSONName string
	Kind     Kind
	// Scalar is the protobuf kind of the field values (of the map value for
	// maps).
	Scalar      protoreflect.Kind
	Cardinality Cardinality
	// OneofGroup is the name of the real oneof containing the field, or "".
	OneofGroup       string
	ExplicitOptional bool

	desc protoreflect.FieldDescriptor
}

// NewField builds the Field view of a descriptor.
func NewField(fd protoreflect.FieldDescriptor) Field {
	f := Field{
		Name:        string(fd.Name()),
		JSONName:    fd.JSONName(),
		Scalar:      fd.Kind(),
		Cardinality: Singular,
		desc:        fd,
	}
	switch {
	case fd.IsMap():
		f.Kind = KindMap
		f.Scalar = fd.MapValue().Kind()
	case fd.Kind() == protoreflect.MessageKind || fd.Kind() == protoreflect.GroupKind:
		f.Kind = KindMessage
	case fd.Kind() == protoreflect.EnumKind:
		f.Kind = KindEnum
	default:
		f.Kind = KindScalar
	}
	if fd.IsList() || fd.IsMap() {
		f.Cardinality = Repeated
	}
	if od := fd.ContainingOneof(); od != nil && !od.IsSynthetic() {
		f.OneofGroup = string(od.Name())
	}
	f.ExplicitOptional = fd.HasOptionalKeyword() ||
		(fd.ParentFile() != nil && fd.ParentFile().Syntax() == protoreflect.Proto2 && fd.Cardinality() == protoreflect.Optional)
	return f
}

// Descriptor returns the underlying protobuf field descriptor.
func (f Field) Descriptor() protoreflect.FieldDescriptor { return f.desc }

// IsRepeated reports whether the field holds a list or a map.
func (f Field) IsRepeated() bool { return f.Cardinality == Repeated }

// Required reports whether the field must be bound or defaulted before a
// call is complete: outside any oneof, not repeated, not explicitly optional.
func (f Field) Required() bool {
	return f.OneofGroup == "" && !f.IsRepeated() && !f.ExplicitOptional
}

// Message returns the schema of a message field, or of the values of a map
// whose values are messages. It returns nil otherwise.
func (f Field) Message() *Message {
	fd := f.desc
	if fd.IsMap() {
		fd = fd.MapValue()
	}
	if md := fd.Message(); md != nil {
		return NewMessage(md)
	}
	return nil
}

// Enum returns the enum descriptor of an enum field (or map value), or nil.
func (f Field) Enum() protoreflect.EnumDescriptor {
	fd := f.desc
	if fd.IsMap() {
		fd = fd.MapValue()
	}
	return fd.Enum()
}

// MapKey returns the key field of a map.
func (f Field) MapKey() Field {
	return NewField(f.desc.MapKey())
}

// MapValue returns the value field of a map. It is singular.
func (f Field) MapValue() Field {
	return NewField(f.desc.MapValue())
}

// TypeName describes the value type for error messages.
func (f Field) TypeName() string {
	switch f.Kind {
	case KindMessage:
		return string(f.desc.Message().FullName())
	case KindEnum:
		return string(f.desc.Enum().FullName())
	case KindMap:
		v := f.MapValue()
		return fmt.Sprintf("map<%s, %s>", f.desc.MapKey().Kind(), v.TypeName())
	default:
		return f.Scalar.String()
	}
}

// Message is the schema of one message type.
type Message struct {
	desc   protoreflect.MessageDescriptor
	fields []Field
	byName map[string]int
	oneofs map[string][]string
}

// NewMessage builds the schema view of a message descriptor.
func NewMessage(md protoreflect.MessageDescriptor) *Message {
	fds := md.Fields()
	m := &Message{
		desc:   md,
		fields: make([]Field, 0, fds.Len()),
		byName: make(map[string]int, fds.Len()*2),
		oneofs: make(map[string][]string),
	}
	for i := 0; i < fds.Len(); i++ {
		f := NewField(fds.Get(i))
		m.fields = append(m.fields, f)
		m.byName[f.Name] = i
		if f.OneofGroup != "" {
			m.oneofs[f.OneofGroup] = append(m.oneofs[f.OneofGroup], f.Name)
		}
	}
	// JSON names only resolve when they do not shadow a proto name.
	for i, f := range m.fields {
		if _, taken := m.byName[f.JSONName]; !taken && f.JSONName != "" {
			m.byName[f.JSONName] = i
		}
	}
	return m
}

// Name returns the fully qualified message name.
func (m *Message) Name() string { return string(m.desc.FullName()) }

// Descriptor returns the underlying protobuf message descriptor.
func (m *Message) Descriptor() protoreflect.MessageDescriptor { return m.desc }

// Field looks a field up by proto name, then by JSON name.
func (m *Message) Field(name string) (Field, bool) {
	i, ok := m.byName[name]
	if !ok {
		return Field{}, false
	}
	return m.fields[i], true
}

// Fields returns the fields in declaration order.
func (m *Message) Fields() []Field {
	out := make([]Field, len(m.fields))
	copy(out, m.fields)
	return out
}

// OneofSiblings returns the names of the fields of a oneof group, in
// declaration order. Unknown groups yield nil.
func (m *Message) OneofSiblings(group string) []string {
	names := m.oneofs[group]
	if names == nil {
		return nil
	}
	return append([]string(nil), names...)
}

// New allocates an empty dynamic message of this type.
func (m *Message) New() protoreflect.Message {
	return dynamicpb.NewMessage(m.desc)
}

// SameType reports whether both schemas describe the same message type,
// possibly from different descriptor pools.
func (m *Message) SameType(other *Message) bool {
	return other != nil && m.desc.FullName() == other.desc.FullName()
}
