package ir

import "fmt"

// Kind is the semantic type of a parameter, return value or struct field.
type Kind int

const (
	// KindUnknown is any host type that has no semantic mapping. It is
	// never mapped; a declaration using it fails in the mapping stage.
	KindUnknown Kind = iota
	KindVoid
	KindBoolean
	KindByte
	KindChar
	KindShort
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindString
	KindBooleanArray
	KindByteArray
	KindCharArray
	KindShortArray
	KindIntArray
	KindLongArray
	KindFloatArray
	KindDoubleArray
	// KindStruct is a struct mirror passed by pointer.
	KindStruct
	// KindHandle is an int or long carrying a native pointer.
	KindHandle
	// KindCallback is a native function pointer.
	KindCallback
)

var kindNames = [...]string{
	KindUnknown:      "unknown",
	KindVoid:         "void",
	KindBoolean:      "boolean",
	KindByte:         "byte",
	KindChar:         "char",
	KindShort:        "short",
	KindInt:          "int",
	KindLong:         "long",
	KindFloat:        "float",
	KindDouble:       "double",
	KindString:       "string",
	KindBooleanArray: "boolean[]",
	KindByteArray:    "byte[]",
	KindCharArray:    "char[]",
	KindShortArray:   "short[]",
	KindIntArray:     "int[]",
	KindLongArray:    "long[]",
	KindFloatArray:   "float[]",
	KindDoubleArray:  "double[]",
	KindStruct:       "struct",
	KindHandle:       "handle",
	KindCallback:     "callback",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Kinds returns every kind the model builder can produce, except
// [KindUnknown].
func Kinds() []Kind {
	res := make([]Kind, 0, len(kindNames)-1)
	for k := KindVoid; int(k) < len(kindNames); k++ {
		res = append(res, k)
	}
	return res
}

// ParseKind is the inverse of [Kind.String].
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), true
		}
	}
	return KindUnknown, false
}

// IsPrimitive reports whether k is one of the eight primitive kinds.
func (k Kind) IsPrimitive() bool {
	return k >= KindBoolean && k <= KindDouble
}

func (k Kind) IsArray() bool {
	return k >= KindBooleanArray && k <= KindDoubleArray
}

// Elem returns the element kind of an array kind.
func (k Kind) Elem() Kind {
	if !k.IsArray() {
		return KindUnknown
	}
	return k - KindBooleanArray + KindBoolean
}

// ArrayOf returns the array kind for a primitive element kind.
func ArrayOf(elem Kind) Kind {
	if !elem.IsPrimitive() {
		return KindUnknown
	}
	return elem - KindBoolean + KindBooleanArray
}

var primitiveDescriptors = map[string]struct {
	kind Kind
	desc string
}{
	"void":    {KindVoid, "V"},
	"boolean": {KindBoolean, "Z"},
	"byte":    {KindByte, "B"},
	"char":    {KindChar, "C"},
	"short":   {KindShort, "S"},
	"int":     {KindInt, "I"},
	"long":    {KindLong, "J"},
	"float":   {KindFloat, "F"},
	"double":  {KindDouble, "D"},
}

// PrimitiveDescriptor returns the JNI descriptor of a primitive kind.
func PrimitiveDescriptor(k Kind) string {
	for _, p := range primitiveDescriptors {
		if p.kind == k {
			return p.desc
		}
	}
	return ""
}

// Ownership says who owns the memory a parameter refers to during the
// native call.
type Ownership int

const (
	// Borrowed values are passed through unchanged.
	Borrowed Ownership = iota
	// Pinned memory belongs to the managed runtime and is only valid until
	// released.
	Pinned
	// CallerOwned memory is a copy made by the glue.
	CallerOwned
)

func (o Ownership) String() string {
	switch o {
	case Borrowed:
		return "borrowed"
	case Pinned:
		return "pinned"
	case CallerOwned:
		return "caller-owned"
	default:
		return fmt.Sprintf("Ownership(%d)", int(o))
	}
}
