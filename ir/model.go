// Package ir is the immutable declaration model produced from the host
// source.
//
// [Build] walks the parsed files once, resolves every directive against
// the metadata store and hands out a [Model]. Nothing after it looks at
// the parse tree or at directive strings again.
package ir

import (
	"fmt"
	"slices"
	"strings"

	"github.com/refaktor/jnigen/directive"
	"github.com/refaktor/jnigen/parser"
)

// MethodIdentity returns "<fqcn>.<name>(<descriptors>)".
func MethodIdentity(fqcn, name, signature string) string {
	return fqcn + "." + name + "(" + signature + ")"
}

// FieldIdentity returns "<fqcn>#<field>".
func FieldIdentity(fqcn, field string) string {
	return fqcn + "#" + field
}

// Param is a fully resolved parameter or return value.
type Param struct {
	Pos parser.Pos
	// Index is the zero-based position, -1 for the return value.
	Index int
	Name  string
	// HostType is the type as written in the source.
	HostType string
	// Declared is the kind the host type has without directives. It
	// differs from Kind for handles and callbacks.
	Declared   Kind
	Kind       Kind
	Descriptor string
	// Struct is the fully qualified struct mirror name for KindStruct.
	Struct     string
	Directives directive.Set
	Ownership  Ownership
	// LengthParam is the index of the parameter holding this array's
	// length, or -1.
	LengthParam int
}

// Has reports whether flag f is decided on.
func (p *Param) Has(f directive.Flag) bool {
	return p.Directives.Flags.Has(f)
}

// Method is a native method declaration.
type Method struct {
	Identity string
	Pos      parser.Pos
	Class    string
	Name     string
	// Static methods receive the class, others the instance.
	Static bool
	// Symbol is the native function the glue calls.
	Symbol     string
	Params     []Param
	Return     Param
	Directives directive.Set
	// Code fragments from metadata.
	PreCall  string
	PostCall string
	Body     string
	// Overloaded is set if another native method in the class has the
	// same name.
	Overloaded bool
}

// Signature returns the concatenated parameter descriptors.
func (m *Method) Signature() string {
	var sb strings.Builder
	for _, p := range m.Params {
		sb.WriteString(p.Descriptor)
	}
	return sb.String()
}

// JNISignature returns the full method descriptor, e.g. "([I)I".
func (m *Method) JNISignature() string {
	return "(" + m.Signature() + ")" + m.Return.Descriptor
}

// Has reports whether flag f is decided on for the method.
func (m *Method) Has(f directive.Flag) bool {
	return m.Directives.Flags.Has(f)
}

// Skipped reports whether the method is tombstoned by no_gen.
func (m *Method) Skipped() bool {
	return m.Has(directive.NoGen)
}

// Unit is a class declaring native methods. Each unit becomes one pair
// of glue files.
type Unit struct {
	File    string
	Package string
	Class   string
	FQCN    string
	Methods []*Method
}

// JNIClass returns the class name in slash form, e.g. "org/example/OS".
func (u *Unit) JNIClass() string {
	return strings.ReplaceAll(u.FQCN, ".", "/")
}

// Generated returns the methods that are not skipped, in declaration
// order.
func (u *Unit) Generated() []*Method {
	var res []*Method
	for _, m := range u.Methods {
		if !m.Skipped() {
			res = append(res, m)
		}
	}
	return res
}

// StructMirror is a class whose public instance fields mirror a native
// struct.
type StructMirror struct {
	Identity string
	Pos      parser.Pos
	File     string
	Package  string
	Name     string
	FQCN     string
	Fields   []*Field
	// DeclaredSize is the value of a "sizeof" constant, or -1.
	DeclaredSize int
	Directives   directive.Set
}

// JNIClass returns the class name in slash form.
func (s *StructMirror) JNIClass() string {
	return strings.ReplaceAll(s.FQCN, ".", "/")
}

func (s *StructMirror) Skipped() bool {
	return s.Directives.Flags.Has(directive.NoGen)
}

// Generated returns the fields that are not skipped.
func (s *StructMirror) Generated() []*Field {
	var res []*Field
	for _, f := range s.Fields {
		if !f.Skipped() {
			res = append(res, f)
		}
	}
	return res
}

// Field is a struct mirror field.
type Field struct {
	Identity string
	Pos      parser.Pos
	Name     string
	HostType string
	Declared Kind
	// Kind is a primitive, primitive array (with Directives.Count
	// elements), handle, or struct (embedded by value).
	Kind       Kind
	Descriptor string
	Struct     string
	Directives directive.Set
}

func (f *Field) Skipped() bool {
	return f.Directives.Flags.Has(directive.NoGen)
}

// Warning is a non-fatal problem found while building or emitting.
type Warning struct {
	Pos      parser.Pos
	Identity string
	Msg      string
}

func (w Warning) String() string {
	var sb strings.Builder
	if w.Pos.File != "" {
		sb.WriteString(w.Pos.String())
		sb.WriteString(": ")
	}
	if w.Identity != "" {
		sb.WriteString(w.Identity)
		sb.WriteString(": ")
	}
	sb.WriteString(w.Msg)
	return sb.String()
}

// Warningf creates a warning.
func Warningf(pos parser.Pos, identity string, format string, args ...any) Warning {
	return Warning{Pos: pos, Identity: identity, Msg: fmt.Sprintf(format, args...)}
}

// Model is the declaration model of one source tree.
type Model struct {
	Units   []*Unit
	Structs []*StructMirror
	// Warnings found while building the model, including stale metadata.
	Warnings []Warning
}

// Methods returns every method of every unit, skipped ones included, in
// stable order.
func (m *Model) Methods() []*Method {
	var res []*Method
	for _, u := range m.Units {
		res = append(res, u.Methods...)
	}
	return res
}

// Struct returns the struct mirror called fqcn.
func (m *Model) Struct(fqcn string) *StructMirror {
	for _, s := range m.Structs {
		if s.FQCN == fqcn {
			return s
		}
	}
	return nil
}

// Embedded returns the struct mirrors embedded by value in the
// generated fields of struct fqcn.
func (m *Model) Embedded(fqcn string) []string {
	s := m.Struct(fqcn)
	if s == nil {
		return nil
	}
	var res []string
	for _, f := range s.Generated() {
		if f.Kind == KindStruct && !slices.Contains(res, f.Struct) {
			res = append(res, f.Struct)
		}
	}
	return res
}

// UsedStructs returns the struct mirrors passed to the generated
// methods of u, in order of first use.
func (u *Unit) UsedStructs() []string {
	var res []string
	for _, meth := range u.Generated() {
		for _, p := range meth.Params {
			if p.Kind == KindStruct && p.Struct != "" && !slices.Contains(res, p.Struct) {
				res = append(res, p.Struct)
			}
		}
	}
	return res
}
