// Package structs emits the accessors of struct mirrors: layout macros,
// pointer-plus-offset getters and setters, and the functions that copy
// a whole mirror between the managed object and native memory.
package structs

import (
	"errors"
	"fmt"
	"slices"

	"github.com/refaktor/jnigen/config"
	"github.com/refaktor/jnigen/ir"
	"github.com/refaktor/jnigen/typemap"
)

var ErrLayout = errors.New("cannot lay out struct")

type primitive struct {
	ctype string
	// jni is the infix of the JNI Get<X>Field family.
	jni  string
	size int
}

var primitives = map[ir.Kind]primitive{
	ir.KindBoolean: {"jboolean", "Boolean", 1},
	ir.KindByte:    {"jbyte", "Byte", 1},
	ir.KindChar:    {"jchar", "Char", 2},
	ir.KindShort:   {"jshort", "Short", 2},
	ir.KindInt:     {"jint", "Int", 4},
	ir.KindLong:    {"jlong", "Long", 8},
	ir.KindFloat:   {"jfloat", "Float", 4},
	ir.KindDouble:  {"jdouble", "Double", 8},
}

// FieldLayout is the placement of one field.
type FieldLayout struct {
	Field  *ir.Field
	Offset int
	Size   int
	Align  int
	// Nested is the layout of an embedded struct.
	Nested *Layout
}

// Layout is the native layout of a struct mirror on one target.
type Layout struct {
	Struct *ir.StructMirror
	Fields []FieldLayout
	Size   int
	Align  int
}

// Present reports whether field f is emitted for target t.
func Present(f *ir.Field, t config.Target) bool {
	if f.Skipped() || f.Kind == ir.KindUnknown {
		return false
	}
	return len(f.Directives.Platforms) == 0 || slices.Contains(f.Directives.Platforms, t.ID)
}

type layouter struct {
	model  *ir.Model
	target config.Target
	done   map[string]*Layout
	active map[string]bool
}

func newLayouter(m *ir.Model, t config.Target) *layouter {
	return &layouter{
		model:  m,
		target: t,
		done:   map[string]*Layout{},
		active: map[string]bool{},
	}
}

// ComputeLayout lays out s for target t. Fields are placed in
// declaration order at their natural alignment, unless an align
// directive overrides it; the size is padded to the struct alignment.
func ComputeLayout(m *ir.Model, s *ir.StructMirror, t config.Target) (*Layout, error) {
	return newLayouter(m, t).layout(s)
}

func (l *layouter) layout(s *ir.StructMirror) (*Layout, error) {
	if res, ok := l.done[s.FQCN]; ok {
		return res, nil
	}
	if l.active[s.FQCN] {
		return nil, fmt.Errorf("%w %v: embeds itself", ErrLayout, s.FQCN)
	}
	l.active[s.FQCN] = true
	defer delete(l.active, s.FQCN)

	res := &Layout{Struct: s, Align: 1}
	off := 0
	for _, f := range s.Fields {
		if !Present(f, l.target) {
			continue
		}
		fl := FieldLayout{Field: f}
		switch {
		case f.Kind.IsPrimitive():
			p := primitives[f.Kind]
			fl.Size, fl.Align = p.size, p.size
		case f.Kind == ir.KindHandle:
			if f.Declared == ir.KindInt && l.target.WordSize == 64 {
				return nil, fmt.Errorf("%v: field %v: %w", s.FQCN, f.Name, typemap.ErrHandleWidth)
			}
			fl.Size, fl.Align = l.target.PointerSize(), l.target.PointerSize()
		case f.Kind.IsArray():
			p := primitives[f.Kind.Elem()]
			fl.Size, fl.Align = p.size*f.Directives.Count, p.size
		case f.Kind == ir.KindStruct:
			inner := l.model.Struct(f.Struct)
			if inner == nil {
				return nil, fmt.Errorf("%w %v: field %v: unknown struct %v", ErrLayout, s.FQCN, f.Name, f.Struct)
			}
			nested, err := l.layout(inner)
			if err != nil {
				return nil, err
			}
			fl.Size, fl.Align, fl.Nested = nested.Size, nested.Align, nested
		default:
			return nil, fmt.Errorf("%w %v: field %v has kind %v", ErrLayout, s.FQCN, f.Name, f.Kind)
		}
		if f.Directives.Align != 0 {
			fl.Align = f.Directives.Align
		}
		off = alignUp(off, fl.Align)
		fl.Offset = off
		off += fl.Size
		res.Align = max(res.Align, fl.Align)
		res.Fields = append(res.Fields, fl)
	}
	if s.Directives.Align != 0 {
		res.Align = max(res.Align, s.Directives.Align)
	}
	res.Size = alignUp(off, res.Align)
	l.done[s.FQCN] = res
	return res, nil
}

func alignUp(n, align int) int {
	return (n + align - 1) / align * align
}
