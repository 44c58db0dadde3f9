package ir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/refaktor/jnigen/directive"
	"github.com/refaktor/jnigen/metadata"
	"github.com/refaktor/jnigen/parser"
)

type builder struct {
	store *metadata.Store
	// structs maps fully qualified and simple names of struct mirrors to
	// their fully qualified name. Ambiguous simple names map to "".
	structs map[string]string
	model   *Model
	decls   []metadata.Decl
}

// Build creates the declaration model of files, resolving directives
// against store. Files are processed in the given order.
func Build(files []*parser.File, store *metadata.Store) (*Model, error) {
	if store == nil {
		store = metadata.Empty()
	}
	b := &builder{
		store:   store,
		structs: map[string]string{},
		model:   &Model{},
	}
	for _, f := range files {
		for _, c := range f.Classes {
			if isStructMirror(c) {
				fqcn := c.FQCN(f.Package)
				b.structs[fqcn] = fqcn
				if prev, ok := b.structs[c.Name]; ok && prev != fqcn {
					b.structs[c.Name] = ""
				} else {
					b.structs[c.Name] = fqcn
				}
			}
		}
	}
	for _, f := range files {
		for _, c := range f.Classes {
			var err error
			switch {
			case hasNatives(c):
				err = b.buildUnit(f, c)
			case isStructMirror(c):
				err = b.buildStruct(f, c)
			}
			if err != nil {
				return nil, err
			}
		}
	}
	for _, st := range store.Stale(b.decls) {
		b.model.Warnings = append(b.model.Warnings, Warning{Msg: st.String()})
	}
	return b.model, nil
}

func hasNatives(c *parser.Class) bool {
	for _, m := range c.Methods {
		if parser.HasModifier(m.Modifiers, "native") {
			return true
		}
	}
	return false
}

func isStructMirror(c *parser.Class) bool {
	if hasNatives(c) {
		return false
	}
	for _, f := range c.Fields {
		if isMirroredField(f) {
			return true
		}
	}
	return false
}

func isMirroredField(f *parser.Field) bool {
	return parser.HasModifier(f.Modifiers, "public") && !parser.HasModifier(f.Modifiers, "static")
}

// resolveClass returns the fully qualified name of a class type as seen
// from package pkg.
func (b *builder) resolveClass(pkg, name string) (fqcn string, isStruct bool) {
	if strings.Contains(name, ".") {
		_, ok := b.structs[name]
		return name, ok
	}
	if pkg != "" {
		if s, ok := b.structs[pkg+"."+name]; ok {
			return s, true
		}
	}
	if s, ok := b.structs[name]; ok && s != "" {
		return s, true
	}
	switch name {
	case "String", "Object":
		return "java.lang." + name, false
	}
	if pkg == "" {
		return name, false
	}
	return pkg + "." + name, false
}

// classify returns the kind and JNI descriptor of a host type, before
// any directive is applied.
func (b *builder) classify(pkg string, t parser.TypeRef) (kind Kind, desc string, structName string) {
	if p, ok := primitiveDescriptors[t.Name]; ok {
		desc = strings.Repeat("[", t.Dims) + p.desc
		switch {
		case t.Dims == 0:
			return p.kind, desc, ""
		case t.Dims == 1 && p.kind != KindVoid:
			return ArrayOf(p.kind), desc, ""
		default:
			return KindUnknown, desc, ""
		}
	}
	fqcn, isStruct := b.resolveClass(pkg, t.Name)
	desc = strings.Repeat("[", t.Dims) + "L" + strings.ReplaceAll(fqcn, ".", "/") + ";"
	switch {
	case t.Dims > 0:
		return KindUnknown, desc, ""
	case fqcn == "java.lang.String":
		return KindString, desc, ""
	case isStruct:
		return KindStruct, desc, fqcn
	case t.Name == "Callback" || strings.HasSuffix(t.Name, ".Callback"):
		return KindCallback, desc, ""
	default:
		return KindUnknown, desc, fqcn
	}
}

// parseTags parses every tag called name in doc.
func parseTags(doc *parser.Doc, name string, scope directive.Scope) (directive.Set, error) {
	var res directive.Set
	for _, tag := range doc.Find(name) {
		s, err := directive.Parse(scope, tag.Value)
		if err != nil {
			return directive.Set{}, &parser.Error{Pos: tag.Pos, Context: "@" + name, Msg: err.Error()}
		}
		res = s.Over(res)
	}
	return res, nil
}

// parseParamTags returns the directives of @param tags by parameter name.
// Tags without a "=" are ordinary parameter documentation.
func parseParamTags(doc *parser.Doc, params []*parser.Param) (map[string]directive.Set, error) {
	res := map[string]directive.Set{}
	for _, tag := range doc.Find("param") {
		if !strings.Contains(tag.Value, "=") {
			continue
		}
		known := false
		for _, p := range params {
			known = known || p.Name == tag.Arg
		}
		if !known {
			return nil, &parser.Error{Pos: tag.Pos, Context: "@param", Msg: fmt.Sprintf("no parameter called %q", tag.Arg)}
		}
		s, err := directive.Parse(directive.ScopeParam, tag.Value)
		if err != nil {
			return nil, &parser.Error{Pos: tag.Pos, Context: "@param " + tag.Arg, Msg: err.Error()}
		}
		res[tag.Arg] = s.Over(res[tag.Arg])
	}
	return res, nil
}

func isPointerCast(cast string) bool {
	return strings.Contains(cast, "*")
}

// refine applies directives that change the kind of an int or long.
func refine(declared Kind, d directive.Set) Kind {
	if declared != KindInt && declared != KindLong {
		return declared
	}
	switch {
	case d.Flags.Has(directive.Callback):
		return KindCallback
	case d.Flags.Has(directive.Handle), isPointerCast(d.Cast):
		return KindHandle
	default:
		return declared
	}
}

// paramDefaults are the type defaults, the weakest directive layer.
func paramDefaults(k Kind) directive.Set {
	var s directive.Set
	switch {
	case k == KindHandle, k == KindCallback:
		s.Cast = "(void *)"
	case k.IsArray():
		s.Flags = s.Flags.With(directive.Critical, false)
	}
	return s
}

func ownership(p *Param) Ownership {
	switch {
	case p.Kind == KindString:
		return Pinned
	case p.Kind.IsArray() && p.Has(directive.Critical):
		return Pinned
	case p.Kind.IsArray(), p.Kind == KindStruct:
		return CallerOwned
	default:
		return Borrowed
	}
}

func (b *builder) buildUnit(f *parser.File, c *parser.Class) error {
	u := &Unit{
		File:    f.Name,
		Package: f.Package,
		Class:   c.Name,
		FQCN:    c.FQCN(f.Package),
	}
	nameCount := map[string]int{}
	for _, m := range c.Methods {
		if parser.HasModifier(m.Modifiers, "native") {
			nameCount[m.Name]++
		}
	}
	seen := map[string]bool{}
	for _, pm := range c.Methods {
		if !parser.HasModifier(pm.Modifiers, "native") {
			continue
		}
		m, err := b.buildMethod(f, u, pm)
		if err != nil {
			return err
		}
		if seen[m.Identity] {
			return fmt.Errorf("%v: %v: duplicate declaration", m.Pos, m.Identity)
		}
		seen[m.Identity] = true
		m.Overloaded = nameCount[pm.Name] > 1
		u.Methods = append(u.Methods, m)
		b.decls = append(b.decls, metadata.Decl{
			Kind:     metadata.KindMethod,
			Class:    u.FQCN,
			Name:     m.Name,
			Identity: m.Identity,
		})
	}
	b.model.Units = append(b.model.Units, u)
	return nil
}

func (b *builder) buildMethod(f *parser.File, u *Unit, pm *parser.Method) (*Method, error) {
	m := &Method{
		Pos:    pm.Pos,
		Class:  u.FQCN,
		Name:   pm.Name,
		Static: parser.HasModifier(pm.Modifiers, "static"),
	}
	params := make([]Param, len(pm.Params))
	var sig strings.Builder
	for i, pp := range pm.Params {
		kind, desc, structName := b.classify(f.Package, pp.Type)
		params[i] = Param{
			Pos:         pp.Pos,
			Index:       i,
			Name:        pp.Name,
			HostType:    pp.Type.String(),
			Declared:    kind,
			Kind:        kind,
			Descriptor:  desc,
			Struct:      structName,
			LengthParam: -1,
		}
		sig.WriteString(desc)
	}
	m.Identity = MethodIdentity(u.FQCN, pm.Name, sig.String())

	inline, err := parseTags(pm.Doc, "method", directive.ScopeMethod)
	if err != nil {
		return nil, err
	}
	inlineParams, err := parseParamTags(pm.Doc, pm.Params)
	if err != nil {
		return nil, err
	}
	meta, _, err := b.store.Lookup(metadata.KindMethod, u.FQCN, pm.Name, m.Identity)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", m.Pos, err)
	}
	m.Directives = inline.Over(meta.Directives)
	m.PreCall = meta.PreCall
	m.PostCall = meta.PostCall
	m.Body = meta.Body

	for i := range params {
		p := &params[i]
		d := inlineParams[p.Name].Over(meta.Param(i, p.Name))
		p.Kind = refine(p.Declared, d)
		if p.Kind == KindUnknown && p.Struct != "" && d.Flags.Has(directive.Struct) {
			p.Kind = KindStruct
		}
		defaults := paramDefaults(p.Kind)
		if p.Kind.IsArray() && m.Directives.Flags.Has(directive.Critical) {
			defaults.Flags = defaults.Flags.With(directive.Critical, true)
		}
		p.Directives = d.Over(defaults)
		p.Ownership = ownership(p)
	}
	for i := range params {
		p := &params[i]
		if p.Directives.Length == "" {
			continue
		}
		if !p.Kind.IsArray() && p.Kind != KindString {
			return nil, fmt.Errorf("%v: %v: parameter %v: length linkage on a %v", p.Pos, m.Identity, p.Name, p.Kind)
		}
		idx := -1
		for j := range params {
			if params[j].Name == p.Directives.Length {
				idx = j
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%v: %v: parameter %v: length refers to unknown parameter %q", p.Pos, m.Identity, p.Name, p.Directives.Length)
		}
		if k := params[idx].Kind; k != KindInt && k != KindLong {
			return nil, fmt.Errorf("%v: %v: parameter %v: length parameter %v is a %v", p.Pos, m.Identity, p.Name, params[idx].Name, k)
		}
		p.LengthParam = idx
	}
	m.Params = params

	retKind, retDesc, retStruct := b.classify(f.Package, pm.Return)
	m.Return = Param{
		Pos:         pm.Pos,
		Index:       -1,
		Name:        "rc",
		HostType:    pm.Return.String(),
		Declared:    retKind,
		Kind:        retKind,
		Descriptor:  retDesc,
		Struct:      retStruct,
		Directives:  directive.Set{Cast: m.Directives.Cast},
		LengthParam: -1,
	}
	if (retKind == KindLong || retKind == KindInt) && isPointerCast(m.Directives.Cast) {
		m.Return.Kind = KindHandle
	}

	m.Symbol = m.Directives.Accessor
	if m.Symbol == "" {
		m.Symbol = strings.TrimPrefix(pm.Name, "_")
		if m.Symbol, err = metadata.ApplyCase(meta.AccessorCase, m.Symbol); err != nil {
			return nil, fmt.Errorf("%v: %v: %w", m.Pos, m.Identity, err)
		}
	}
	return m, nil
}

func (b *builder) buildStruct(f *parser.File, c *parser.Class) error {
	fqcn := c.FQCN(f.Package)
	s := &StructMirror{
		Identity:     fqcn,
		Pos:          c.Pos,
		File:         f.Name,
		Package:      f.Package,
		Name:         c.Name,
		FQCN:         fqcn,
		DeclaredSize: -1,
	}
	inline, err := parseTags(c.Doc, "struct", directive.ScopeStruct)
	if err != nil {
		return err
	}
	meta, _, err := b.store.Lookup(metadata.KindStruct, fqcn, c.Name, fqcn)
	if err != nil {
		return fmt.Errorf("%v: %w", c.Pos, err)
	}
	s.Directives = inline.Over(meta.Directives)
	b.decls = append(b.decls, metadata.Decl{Kind: metadata.KindStruct, Class: fqcn, Name: c.Name, Identity: fqcn})

	for _, pf := range c.Fields {
		if pf.Name == "sizeof" && parser.HasModifier(pf.Modifiers, "static") {
			if n, err := strconv.Atoi(pf.Init); err == nil {
				s.DeclaredSize = n
			}
			continue
		}
		if !isMirroredField(pf) {
			continue
		}
		fld, err := b.buildField(f, s, pf)
		if err != nil {
			return err
		}
		s.Fields = append(s.Fields, fld)
		b.decls = append(b.decls, metadata.Decl{Kind: metadata.KindField, Class: fqcn, Name: fld.Name, Identity: fld.Identity})
	}
	b.model.Structs = append(b.model.Structs, s)
	return nil
}

func (b *builder) buildField(f *parser.File, s *StructMirror, pf *parser.Field) (*Field, error) {
	kind, desc, structName := b.classify(f.Package, pf.Type)
	fld := &Field{
		Identity:   FieldIdentity(s.FQCN, pf.Name),
		Pos:        pf.Pos,
		Name:       pf.Name,
		HostType:   pf.Type.String(),
		Declared:   kind,
		Kind:       kind,
		Descriptor: desc,
		Struct:     structName,
	}
	inline, err := parseTags(pf.Doc, "field", directive.ScopeField)
	if err != nil {
		return nil, err
	}
	meta, _, err := b.store.Lookup(metadata.KindField, s.FQCN, pf.Name, fld.Identity)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", pf.Pos, err)
	}
	fld.Directives = inline.Over(meta.Directives)
	switch {
	case kind == KindString, kind == KindCallback:
		fld.Kind = KindUnknown
	case kind == KindInt || kind == KindLong:
		if refine(kind, fld.Directives) == KindHandle {
			fld.Kind = KindHandle
		}
	}
	if fld.Kind.IsArray() && fld.Directives.Count == 0 && !fld.Skipped() {
		return nil, fmt.Errorf("%v: %v: array field needs an element count (count=N)", pf.Pos, fld.Identity)
	}
	return fld, nil
}
