package bind

import (
	"encoding/json"
	"math"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/jllopis/skillbind/pkg/schema"
)

// scalarValue converts a Go literal to the protobuf value of a scalar or
// enum field. Integers widen to any integer field they fit in and to
// floating point fields; floating point values never narrow to integers.
func scalarValue(f schema.Field, v any) (protoreflect.Value, bool) {
	switch f.Scalar {
	case protoreflect.BoolKind:
		if b, ok := v.(bool); ok {
			return protoreflect.ValueOfBool(b), true
		}

	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		if n, ok := toInt64(v); ok && n >= math.MinInt32 && n <= math.MaxInt32 {
			return protoreflect.ValueOfInt32(int32(n)), true
		}

	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		if n, ok := toInt64(v); ok {
			return protoreflect.ValueOfInt64(n), true
		}

	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		if n, ok := toUint64(v); ok && n <= math.MaxUint32 {
			return protoreflect.ValueOfUint32(uint32(n)), true
		}

	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		if n, ok := toUint64(v); ok {
			return protoreflect.ValueOfUint64(n), true
		}

	case protoreflect.FloatKind:
		if f, ok := toFloat64(v); ok && (math.IsInf(f, 0) || math.IsNaN(f) || math.Abs(f) <= math.MaxFloat32) {
			return protoreflect.ValueOfFloat32(float32(f)), true
		}

	case protoreflect.DoubleKind:
		if f, ok := toFloat64(v); ok {
			return protoreflect.ValueOfFloat64(f), true
		}

	case protoreflect.StringKind:
		if s, ok := v.(string); ok {
			return protoreflect.ValueOfString(s), true
		}

	case protoreflect.BytesKind:
		if b, ok := v.([]byte); ok {
			return protoreflect.ValueOfBytes(append([]byte{}, b...)), true
		}

	case protoreflect.EnumKind:
		if n, ok := enumNumber(f.Enum(), v); ok {
			return protoreflect.ValueOfEnum(n), true
		}
	}
	return protoreflect.Value{}, false
}

// enumNumber accepts enum values of the same type, declared numbers and
// declared value names.
func enumNumber(ed protoreflect.EnumDescriptor, v any) (protoreflect.EnumNumber, bool) {
	var n protoreflect.EnumNumber
	switch e := v.(type) {
	case protoreflect.Enum:
		if e.Descriptor().FullName() != ed.FullName() {
			return 0, false
		}
		n = e.Number()
	case protoreflect.EnumNumber:
		n = e
	case string:
		ev := ed.Values().ByName(protoreflect.Name(e))
		if ev == nil {
			return 0, false
		}
		return ev.Number(), true
	default:
		i, ok := toInt64(v)
		if !ok || i < math.MinInt32 || i > math.MaxInt32 {
			return 0, false
		}
		n = protoreflect.EnumNumber(i)
	}
	if ed.Values().ByNumber(n) == nil {
		return 0, false
	}
	return n, true
}

// zeroValue is the placeholder appended for a deferred list element.
func zeroValue(f schema.Field) protoreflect.Value {
	switch f.Scalar {
	case protoreflect.BoolKind:
		return protoreflect.ValueOfBool(false)
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		return protoreflect.ValueOfInt32(0)
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return protoreflect.ValueOfInt64(0)
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		return protoreflect.ValueOfUint32(0)
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return protoreflect.ValueOfUint64(0)
	case protoreflect.FloatKind:
		return protoreflect.ValueOfFloat32(0)
	case protoreflect.DoubleKind:
		return protoreflect.ValueOfFloat64(0)
	case protoreflect.StringKind:
		return protoreflect.ValueOfString("")
	case protoreflect.BytesKind:
		return protoreflect.ValueOfBytes([]byte{})
	case protoreflect.EnumKind:
		return protoreflect.ValueOfEnum(f.Enum().Values().Get(0).Number())
	}
	return protoreflect.Value{}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	}
	if i, ok := toInt64(v); ok && i >= 0 {
		return uint64(i), true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	if u, ok := toUint64(v); ok {
		return float64(u), true
	}
	return 0, false
}
