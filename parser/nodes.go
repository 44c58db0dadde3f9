package parser

import (
	"fmt"
	"strings"
)

// Pos is a position in a source file. Line and Col start at 1.
type Pos struct {
	File string
	Line int
	Col  int
}

func (p Pos) String() string {
	if p.Col == 0 {
		return fmt.Sprintf("%v:%v", p.File, p.Line)
	}
	return fmt.Sprintf("%v:%v:%v", p.File, p.Line, p.Col)
}

// File is one parsed source file.
type File struct {
	Name    string
	Package string
	Classes []*Class
}

// Class is a top-level class declaration.
type Class struct {
	Pos       Pos
	Doc       *Doc
	Modifiers []string
	Name      string
	Fields    []*Field
	Methods   []*Method
}

// FQCN returns the fully qualified class name in dotted form.
func (c *Class) FQCN(pkg string) string {
	if pkg == "" {
		return c.Name
	}
	return pkg + "." + c.Name
}

// Field is a field declaration. A declaration with several declarators
// (int a, b;) yields one Field per declarator.
type Field struct {
	Pos       Pos
	Doc       *Doc
	Modifiers []string
	Type      TypeRef
	Name      string
	// Init is the initializer expression as written (tokens joined by
	// spaces), or empty.
	Init string
}

// Method is a method declaration. Constructors are skipped.
type Method struct {
	Pos       Pos
	Doc       *Doc
	Modifiers []string
	Return    TypeRef
	Name      string
	Params    []*Param
	HasBody   bool
}

type Param struct {
	Pos  Pos
	Type TypeRef
	Name string
}

// TypeRef is a type as written. Generic arguments are dropped.
type TypeRef struct {
	// Name is the (possibly qualified) element type name.
	Name string
	Dims int
}

func (t TypeRef) String() string {
	return t.Name + strings.Repeat("[]", t.Dims)
}

// HasModifier reports whether mods contains mod.
func HasModifier(mods []string, mod string) bool {
	for _, m := range mods {
		if m == mod {
			return true
		}
	}
	return false
}
