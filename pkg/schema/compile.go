package schema

import (
	"fmt"
	"strings"
	"unicode"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jllopis/skillbind/pkg/errors"
)

// FileDef declares the messages and enums of one proto3 file. It is the
// shape catalogs use to describe skill parameters without a .proto file.
type FileDef struct {
	File     string       `yaml:"file,omitempty"`
	Package  string       `yaml:"package"`
	Messages []MessageDef `yaml:"messages"`
	Enums    []EnumDef    `yaml:"enums,omitempty"`
}

// MessageDef declares one top-level message.
type MessageDef struct {
	Name   string     `yaml:"name"`
	Fields []FieldDef `yaml:"fields"`
}

// FieldDef declares one field. Type is a proto scalar type name, the name of
// a message or enum of the same file, or "map<K, V>".
type FieldDef struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Number   int32  `yaml:"number,omitempty"`
	Repeated bool   `yaml:"repeated,omitempty"`
	Optional bool   `yaml:"optional,omitempty"`
	Oneof    string `yaml:"oneof,omitempty"`
}

// EnumDef declares an enum. Values are numbered from zero in order.
type EnumDef struct {
	Name   string   `yaml:"name"`
	Values []string `yaml:"values"`
}

var scalarTypes = map[string]descriptorpb.FieldDescriptorProto_Type{
	"double":   descriptorpb.FieldDescriptorProto_TYPE_DOUBLE,
	"float":    descriptorpb.FieldDescriptorProto_TYPE_FLOAT,
	"int64":    descriptorpb.FieldDescriptorProto_TYPE_INT64,
	"uint64":   descriptorpb.FieldDescriptorProto_TYPE_UINT64,
	"int32":    descriptorpb.FieldDescriptorProto_TYPE_INT32,
	"fixed64":  descriptorpb.FieldDescriptorProto_TYPE_FIXED64,
	"fixed32":  descriptorpb.FieldDescriptorProto_TYPE_FIXED32,
	"bool":     descriptorpb.FieldDescriptorProto_TYPE_BOOL,
	"string":   descriptorpb.FieldDescriptorProto_TYPE_STRING,
	"bytes":    descriptorpb.FieldDescriptorProto_TYPE_BYTES,
	"uint32":   descriptorpb.FieldDescriptorProto_TYPE_UINT32,
	"sfixed32": descriptorpb.FieldDescriptorProto_TYPE_SFIXED32,
	"sfixed64": descriptorpb.FieldDescriptorProto_TYPE_SFIXED64,
	"sint32":   descriptorpb.FieldDescriptorProto_TYPE_SINT32,
	"sint64":   descriptorpb.FieldDescriptorProto_TYPE_SINT64,
}

var mapKeyTypes = map[string]bool{
	"int32": true, "int64": true, "uint32": true, "uint64": true,
	"sint32": true, "sint64": true, "fixed32": true, "fixed64": true,
	"sfixed32": true, "sfixed64": true, "bool": true, "string": true,
}

// Compile links the definitions into a file descriptor. Each call produces a
// fresh descriptor pool, so compiling the same definitions twice yields two
// distinct but wire compatible descriptors.
func Compile(def FileDef) (protoreflect.FileDescriptor, error) {
	fdp, err := def.Proto()
	if err != nil {
		return nil, err
	}
	fd, err := protodesc.NewFile(fdp, new(protoregistry.Files))
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, fmt.Sprintf("link %s", fdp.GetName()), err)
	}
	return fd, nil
}

// CompileMessage compiles def and returns the schema of the named message.
func CompileMessage(def FileDef, name string) (*Message, error) {
	fd, err := Compile(def)
	if err != nil {
		return nil, err
	}
	return Lookup(fd, name)
}

// Lookup finds a message of fd by simple or fully qualified name.
func Lookup(fd protoreflect.FileDescriptor, name string) (*Message, error) {
	simple := strings.TrimPrefix(strings.TrimPrefix(name, "."), string(fd.Package())+".")
	if md := fd.Messages().ByName(protoreflect.Name(simple)); md != nil {
		return NewMessage(md), nil
	}
	return nil, errors.Newf(errors.CodeNotFound, "message %q not found in %s", name, fd.Path())
}

// Proto renders the definitions as a proto3 FileDescriptorProto.
func (def FileDef) Proto() (*descriptorpb.FileDescriptorProto, error) {
	if len(def.Messages) == 0 {
		return nil, errors.Newf(errors.CodeInvalidInput, "no messages declared")
	}
	file := def.File
	if file == "" {
		file = strings.ReplaceAll(def.Package, ".", "/") + "/params.proto"
	}
	fdp := &descriptorpb.FileDescriptorProto{
		Name:   proto.String(file),
		Syntax: proto.String("proto3"),
	}
	if def.Package != "" {
		fdp.Package = proto.String(def.Package)
	}

	kinds := make(map[string]descriptorpb.FieldDescriptorProto_Type)
	for _, e := range def.Enums {
		kinds[e.Name] = descriptorpb.FieldDescriptorProto_TYPE_ENUM
	}
	for _, m := range def.Messages {
		if _, dup := kinds[m.Name]; dup {
			return nil, errors.Newf(errors.CodeInvalidInput, "type %q declared twice", m.Name)
		}
		kinds[m.Name] = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
	}

	for _, e := range def.Enums {
		if len(e.Values) == 0 {
			return nil, errors.Newf(errors.CodeInvalidInput, "enum %q has no values", e.Name)
		}
		ep := &descriptorpb.EnumDescriptorProto{Name: proto.String(e.Name)}
		for i, v := range e.Values {
			ep.Value = append(ep.Value, &descriptorpb.EnumValueDescriptorProto{
				Name:   proto.String(v),
				Number: proto.Int32(int32(i)),
			})
		}
		fdp.EnumType = append(fdp.EnumType, ep)
	}

	r := typeResolver{pkg: def.Package, kinds: kinds}
	for _, m := range def.Messages {
		dp, err := r.message(m)
		if err != nil {
			return nil, err
		}
		fdp.MessageType = append(fdp.MessageType, dp)
	}
	return fdp, nil
}

type typeResolver struct {
	pkg   string
	kinds map[string]descriptorpb.FieldDescriptorProto_Type
}

func (r typeResolver) qualify(name string) string {
	if r.pkg == "" {
		return "." + name
	}
	return "." + r.pkg + "." + name
}

// resolve returns the type of a non-map type name and, for enums and
// messages, its fully qualified name.
func (r typeResolver) resolve(name string) (descriptorpb.FieldDescriptorProto_Type, string, bool) {
	name = strings.TrimSpace(name)
	if t, ok := scalarTypes[name]; ok {
		return t, "", true
	}
	local := strings.TrimPrefix(strings.TrimPrefix(name, "."), r.pkg+".")
	if t, ok := r.kinds[local]; ok {
		return t, r.qualify(local), true
	}
	return 0, "", false
}

func (r typeResolver) message(m MessageDef) (*descriptorpb.DescriptorProto, error) {
	dp := &descriptorpb.DescriptorProto{Name: proto.String(m.Name)}
	fail := func(f FieldDef, format string, args ...interface{}) error {
		return errors.Newf(errors.CodeInvalidInput, format, args...).At(r.qualify(m.Name)[1:], f.Name)
	}

	oneofIndex := make(map[string]int32)
	for _, f := range m.Fields {
		if f.Oneof != "" {
			if _, ok := oneofIndex[f.Oneof]; !ok {
				oneofIndex[f.Oneof] = int32(len(dp.OneofDecl))
				dp.OneofDecl = append(dp.OneofDecl, &descriptorpb.OneofDescriptorProto{Name: proto.String(f.Oneof)})
			}
		}
	}

	numbers := make(map[int32]string)
	var synthetic []*descriptorpb.OneofDescriptorProto
	for i, f := range m.Fields {
		number := f.Number
		if number == 0 {
			number = int32(i + 1)
		}
		if prev, dup := numbers[number]; dup {
			return nil, fail(f, "field number %d already used by %q", number, prev)
		}
		numbers[number] = f.Name

		fp := &descriptorpb.FieldDescriptorProto{
			Name:   proto.String(f.Name),
			Number: proto.Int32(number),
			Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		}

		if key, value, ok := parseMapType(f.Type); ok {
			if f.Repeated || f.Optional || f.Oneof != "" {
				return nil, fail(f, "map fields cannot be repeated, optional or part of a oneof")
			}
			if !mapKeyTypes[key] {
				return nil, fail(f, "invalid map key type %q", key)
			}
			vt, vname, ok := r.resolve(value)
			if !ok {
				return nil, fail(f, "unknown map value type %q", value)
			}
			entryName := mapEntryName(f.Name)
			entry := &descriptorpb.DescriptorProto{
				Name:    proto.String(entryName),
				Options: &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)},
				Field: []*descriptorpb.FieldDescriptorProto{
					{
						Name:     proto.String("key"),
						Number:   proto.Int32(1),
						Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
						Type:     scalarTypes[key].Enum(),
						JsonName: proto.String("key"),
					},
					{
						Name:     proto.String("value"),
						Number:   proto.Int32(2),
						Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
						Type:     vt.Enum(),
						JsonName: proto.String("value"),
					},
				},
			}
			if vname != "" {
				entry.Field[1].TypeName = proto.String(vname)
			}
			dp.NestedType = append(dp.NestedType, entry)
			fp.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
			fp.Type = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum()
			fp.TypeName = proto.String(r.qualify(m.Name) + "." + entryName)
			dp.Field = append(dp.Field, fp)
			continue
		}

		t, tname, ok := r.resolve(f.Type)
		if !ok {
			return nil, fail(f, "unknown type %q", f.Type)
		}
		fp.Type = t.Enum()
		if tname != "" {
			fp.TypeName = proto.String(tname)
		}
		switch {
		case f.Repeated && (f.Optional || f.Oneof != ""):
			return nil, fail(f, "repeated fields cannot be optional or part of a oneof")
		case f.Optional && f.Oneof != "":
			return nil, fail(f, "oneof members cannot be optional")
		case f.Repeated:
			fp.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
		case f.Oneof != "":
			fp.OneofIndex = proto.Int32(oneofIndex[f.Oneof])
		case f.Optional:
			fp.Proto3Optional = proto.Bool(true)
			fp.OneofIndex = proto.Int32(int32(len(dp.OneofDecl) + len(synthetic)))
			synthetic = append(synthetic, &descriptorpb.OneofDescriptorProto{Name: proto.String("_" + f.Name)})
		}
		dp.Field = append(dp.Field, fp)
	}
	dp.OneofDecl = append(dp.OneofDecl, synthetic...)
	return dp, nil
}

// parseMapType splits "map<K, V>".
func parseMapType(t string) (string, string, bool) {
	t = strings.TrimSpace(t)
	if !strings.HasPrefix(t, "map<") || !strings.HasSuffix(t, ">") {
		return "", "", false
	}
	inner := t[len("map<") : len(t)-1]
	key, value, ok := strings.Cut(inner, ",")
	if !ok {
		return "", "", false
	}
	return strings.TrimSpace(key), strings.TrimSpace(value), true
}

// mapEntryName follows protoc: foo_bar becomes FooBarEntry.
func mapEntryName(field string) string {
	var b strings.Builder
	upperNext := true
	for _, c := range field {
		switch {
		case c == '_':
			upperNext = true
		case upperNext:
			b.WriteRune(unicode.ToUpper(c))
			upperNext = false
		default:
			b.WriteRune(c)
		}
	}
	b.WriteString("Entry")
	return b.String()
}
