// Package parser reads the annotated host source: a Java subset made of
// top-level classes with native method declarations and plain field
// declarations. Everything else (method bodies, nested types,
// initializers, annotations) is parsed only far enough to be skipped.
package parser

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Error is a parse error at a position.
type Error struct {
	Pos
	// Context is the offending source text, e.g. `at "foo"`.
	Context string
	Msg     string
}

func newError(p Pos, context string, format string, args ...any) *Error {
	return &Error{Pos: p, Context: context, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%v: %v: %v", e.Pos, e.Context, e.Msg)
	}
	return fmt.Sprintf("%v: %v", e.Pos, e.Msg)
}

var modifierWords = map[string]bool{
	"public": true, "protected": true, "private": true, "static": true,
	"final": true, "native": true, "abstract": true, "synchronized": true,
	"transient": true, "volatile": true, "strictfp": true, "default": true,
	"sealed": true,
}

var typeDeclWords = map[string]bool{
	"class": true, "interface": true, "enum": true, "record": true,
}

type parser struct {
	toks []token
	i    int
}

// ParseDir parses every .java file below root in lexical path order.
func ParseDir(root string) ([]*File, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".java") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	var res []*File
	for _, path := range paths {
		f, err := ParseFile(path)
		if err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, nil
}

// ParseFile reads and parses a single file.
func ParseFile(path string) (*File, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, src)
}

// Parse parses src. filename is used in positions.
func Parse(filename string, src []byte) (*File, error) {
	toks, err := newLexer(filename, src).tokens()
	if err != nil {
		return nil, err
	}
	// Attach each doc comment to the token that follows it.
	var merged []token
	var doc *Doc
	for _, t := range toks {
		if t.kind == tokDoc {
			doc = parseDoc(t.text, t.pos)
			continue
		}
		t.doc = doc
		doc = nil
		merged = append(merged, t)
	}
	p := &parser{toks: merged}
	return p.parseFile(filename)
}

func (p *parser) peek() token {
	return p.peekN(0)
}

func (p *parser) peekN(n int) token {
	if p.i+n < len(p.toks) {
		return p.toks[p.i+n]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) next() token {
	t := p.peek()
	if p.i < len(p.toks)-1 {
		p.i++
	}
	return t
}

func (p *parser) isPunct(s string) bool {
	t := p.peek()
	return t.kind == tokPunct && t.text == s
}

func (p *parser) isIdent(s string) bool {
	t := p.peek()
	return t.kind == tokIdent && t.text == s
}

func (p *parser) errorHere(format string, args ...any) error {
	t := p.peek()
	ctx := "at end of file"
	if t.kind != tokEOF {
		ctx = "at " + strconv.Quote(t.text)
	}
	return newError(t.pos, ctx, format, args...)
}

func (p *parser) expectPunct(s string) error {
	if !p.isPunct(s) {
		return p.errorHere("expected %q", s)
	}
	p.next()
	return nil
}

func (p *parser) expectIdent() (token, error) {
	t := p.peek()
	if t.kind != tokIdent {
		return token{}, p.errorHere("expected identifier")
	}
	return p.next(), nil
}

func (p *parser) parseFile(filename string) (*File, error) {
	f := &File{Name: filename}
	for p.peek().kind != tokEOF {
		switch {
		case p.isIdent("package"):
			p.next()
			name, err := p.qualifiedName()
			if err != nil {
				return nil, err
			}
			f.Package = name
			if err := p.expectPunct(";"); err != nil {
				return nil, err
			}
		case p.isIdent("import"):
			if err := p.skipPast(";"); err != nil {
				return nil, err
			}
		case p.isPunct(";"):
			p.next()
		default:
			c, err := p.parseTypeDecl()
			if err != nil {
				return nil, err
			}
			if c != nil {
				f.Classes = append(f.Classes, c)
			}
		}
	}
	return f, nil
}

// parseTypeDecl parses a top-level type declaration. Only classes are
// returned; other kinds of types are skipped and yield nil.
func (p *parser) parseTypeDecl() (*Class, error) {
	start := p.peek()
	mods, err := p.modifiers()
	if err != nil {
		return nil, err
	}
	kw := p.peek()
	if kw.kind == tokPunct && kw.text == "@" {
		// @interface
		return nil, p.skipTypeDecl()
	}
	if kw.kind != tokIdent || !typeDeclWords[kw.text] {
		return nil, p.errorHere("expected class, interface, enum or record declaration")
	}
	if kw.text != "class" {
		return nil, p.skipTypeDecl()
	}
	p.next()
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	c := &Class{
		Pos:       name.pos,
		Doc:       start.doc,
		Modifiers: mods,
		Name:      name.text,
	}
	for !p.isPunct("{") {
		if p.peek().kind == tokEOF {
			return nil, p.errorHere("expected class body")
		}
		p.next()
	}
	if err := p.parseClassBody(c); err != nil {
		return nil, err
	}
	return c, nil
}

// modifiers consumes modifier keywords and annotations.
func (p *parser) modifiers() ([]string, error) {
	var mods []string
	for {
		t := p.peek()
		switch {
		case t.kind == tokIdent && modifierWords[t.text]:
			mods = append(mods, p.next().text)
		case t.kind == tokPunct && t.text == "@":
			if next := p.peekN(1); next.kind == tokIdent && next.text == "interface" {
				return mods, nil
			}
			p.next()
			if _, err := p.qualifiedName(); err != nil {
				return nil, err
			}
			if p.isPunct("(") {
				if err := p.skipBalanced("(", ")"); err != nil {
					return nil, err
				}
			}
		default:
			return mods, nil
		}
	}
}

func (p *parser) qualifiedName() (string, error) {
	t, err := p.expectIdent()
	if err != nil {
		return "", err
	}
	name := t.text
	for p.isPunct(".") && p.peekN(1).kind == tokIdent {
		p.next()
		name += "." + p.next().text
	}
	return name, nil
}

// skipTypeDecl skips a non-class type declaration up to and including its
// closing brace.
func (p *parser) skipTypeDecl() error {
	for !p.isPunct("{") {
		if p.peek().kind == tokEOF {
			return p.errorHere("expected type body")
		}
		p.next()
	}
	return p.skipBalanced("{", "}")
}

// skipBalanced skips from the current open token to its matching close
// token.
func (p *parser) skipBalanced(open, close string) error {
	start := p.peek()
	if err := p.expectPunct(open); err != nil {
		return err
	}
	depth := 1
	for depth > 0 {
		t := p.next()
		switch {
		case t.kind == tokEOF:
			return newError(start.pos, "at "+strconv.Quote(open), "unbalanced %q", open)
		case t.kind == tokPunct && t.text == open:
			depth++
		case t.kind == tokPunct && t.text == close:
			depth--
		}
	}
	return nil
}

// skipPast skips up to and including the next s.
func (p *parser) skipPast(s string) error {
	for !p.isPunct(s) {
		if p.peek().kind == tokEOF {
			return p.errorHere("expected %q", s)
		}
		p.next()
	}
	p.next()
	return nil
}

func (p *parser) parseClassBody(c *Class) error {
	if err := p.expectPunct("{"); err != nil {
		return err
	}
	for {
		switch {
		case p.isPunct("}"):
			p.next()
			return nil
		case p.peek().kind == tokEOF:
			return p.errorHere("expected \"}\" to close class %v", c.Name)
		case p.isPunct(";"):
			p.next()
			continue
		}
		if err := p.parseMember(c); err != nil {
			return err
		}
	}
}

func (p *parser) parseMember(c *Class) error {
	start := p.peek()
	mods, err := p.modifiers()
	if err != nil {
		return err
	}
	t := p.peek()
	switch {
	case t.kind == tokPunct && t.text == "{":
		// initializer block
		return p.skipBalanced("{", "}")
	case t.kind == tokPunct && t.text == "@",
		t.kind == tokIdent && typeDeclWords[t.text]:
		return p.skipTypeDecl()
	case t.kind == tokPunct && t.text == "<":
		if err := p.skipBalanced("<", ">"); err != nil {
			return err
		}
	}
	if p.peek().kind == tokIdent && p.peekN(1).kind == tokPunct && p.peekN(1).text == "(" {
		// constructor
		p.next()
		if err := p.skipBalanced("(", ")"); err != nil {
			return err
		}
		_, err := p.methodTail()
		return err
	}
	typ, err := p.parseType()
	if err != nil {
		return err
	}
	name, err := p.expectIdent()
	if err != nil {
		return err
	}
	if p.isPunct("(") {
		m := &Method{
			Pos:       name.pos,
			Doc:       start.doc,
			Modifiers: mods,
			Return:    typ,
			Name:      name.text,
		}
		if m.Params, err = p.parseParams(); err != nil {
			return err
		}
		if m.HasBody, err = p.methodTail(); err != nil {
			return err
		}
		c.Methods = append(c.Methods, m)
		return nil
	}
	for {
		f := &Field{
			Pos:       name.pos,
			Doc:       start.doc,
			Modifiers: mods,
			Type:      typ,
			Name:      name.text,
		}
		for p.isPunct("[") {
			p.next()
			if err := p.expectPunct("]"); err != nil {
				return err
			}
			f.Type.Dims++
		}
		if p.isPunct("=") {
			p.next()
			if f.Init, err = p.initializer(); err != nil {
				return err
			}
		}
		c.Fields = append(c.Fields, f)
		if p.isPunct(";") {
			p.next()
			return nil
		}
		if err := p.expectPunct(","); err != nil {
			return err
		}
		if name, err = p.expectIdent(); err != nil {
			return err
		}
	}
}

// methodTail parses an optional throws clause followed by ";" or a body.
func (p *parser) methodTail() (hasBody bool, err error) {
	if p.isIdent("throws") {
		for !p.isPunct(";") && !p.isPunct("{") {
			if p.peek().kind == tokEOF {
				return false, p.errorHere("expected method body or \";\"")
			}
			p.next()
		}
	}
	switch {
	case p.isPunct(";"):
		p.next()
		return false, nil
	case p.isPunct("{"):
		return true, p.skipBalanced("{", "}")
	default:
		return false, p.errorHere("expected method body or \";\"")
	}
}

func (p *parser) parseParams() ([]*Param, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var params []*Param
	if p.isPunct(")") {
		p.next()
		return params, nil
	}
	for {
		if _, err := p.modifiers(); err != nil {
			return nil, err
		}
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		for p.isPunct("[") {
			p.next()
			if err := p.expectPunct("]"); err != nil {
				return nil, err
			}
			typ.Dims++
		}
		params = append(params, &Param{Pos: name.pos, Type: typ, Name: name.text})
		if p.isPunct(")") {
			p.next()
			return params, nil
		}
		if err := p.expectPunct(","); err != nil {
			return nil, err
		}
	}
}

func (p *parser) parseType() (TypeRef, error) {
	var t TypeRef
	for {
		seg, err := p.expectIdent()
		if err != nil {
			return TypeRef{}, err
		}
		if t.Name != "" {
			t.Name += "."
		}
		t.Name += seg.text
		if p.isPunct("<") {
			if err := p.skipBalanced("<", ">"); err != nil {
				return TypeRef{}, err
			}
		}
		if !p.isPunct(".") || p.peekN(1).kind != tokIdent {
			break
		}
		p.next()
	}
	for {
		switch {
		case p.isPunct("[") && p.peekN(1).kind == tokPunct && p.peekN(1).text == "]":
			p.next()
			p.next()
			t.Dims++
		case p.isPunct("..."):
			p.next()
			t.Dims++
		default:
			return t, nil
		}
	}
}

// initializer collects a field initializer up to the next top-level ","
// or ";".
func (p *parser) initializer() (string, error) {
	var parts []string
	depth := 0
	for {
		t := p.peek()
		if t.kind == tokEOF {
			return "", p.errorHere("expected \";\" after field initializer")
		}
		if t.kind == tokPunct {
			switch t.text {
			case "(", "{", "[":
				depth++
			case ")", "}", "]":
				depth--
			case ",", ";":
				if depth == 0 {
					return strings.Join(parts, " "), nil
				}
			}
		}
		parts = append(parts, p.next().text)
	}
}
