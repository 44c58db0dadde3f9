// Package typemap maps semantic parameter kinds to their native ABI type,
// interface descriptor and marshaling code.
//
// The rule table is total: [New] refuses a table that misses a kind the
// model builder can produce, or whose templates do not execute, so that
// no malformed glue is ever emitted.
package typemap

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"text/template"

	"github.com/iancoleman/strcase"
	"github.com/pelletier/go-toml/v2"
	"github.com/refaktor/jnigen/config"
	"github.com/refaktor/jnigen/directive"
	"github.com/refaktor/jnigen/ir"
	"github.com/refaktor/jnigen/parser"
)

var (
	ErrUnmapped         = errors.New("no mapping for semantic type")
	ErrCriticalCallback = errors.New("critical mode with a callback parameter")
	ErrCriticalKind     = errors.New("critical mode is only valid on primitive arrays")
	ErrHandleWidth      = errors.New("int handle cannot hold a pointer on a 64-bit target")
	ErrConfig           = errors.New("invalid type mapping")
)

//go:embed rules.toml
var defaultRulesSrc []byte

// Discipline is the set of marshaling templates shared by several kinds.
type Discipline struct {
	Local   string `toml:"local"`
	Acquire string `toml:"acquire"`
	Release string `toml:"release"`
	Arg     string `toml:"arg"`
	Bounds  string `toml:"bounds"`
	Return  string `toml:"return"`
	CType   string `toml:"ctype"`
}

// KindRule is the mapping of one semantic kind.
type KindRule struct {
	Native     string `toml:"native"`
	Discipline string `toml:"discipline"`
	Elem       string `toml:"elem"`
	ElemType   string `toml:"elem-type"`
}

// Rules is a mapping table, keyed by discipline name and kind name.
type Rules struct {
	Disciplines map[string]Discipline `toml:"discipline"`
	Kinds       map[string]KindRule   `toml:"kind"`
}

// DefaultRules returns the built-in JNI mapping table.
func DefaultRules() *Rules {
	r := &Rules{}
	if err := toml.NewDecoder(bytes.NewReader(defaultRulesSrc)).DisallowUnknownFields().Decode(r); err != nil {
		panic("typemap: embedded rules: " + err.Error())
	}
	return r
}

// Data is what marshaling templates are executed with.
type Data struct {
	// Arg is the JNI parameter name.
	Arg string
	// Local is the name of the acquired native pointer.
	Local    string
	Cast     string
	Native   string
	Elem     string
	ElemType string
	// Struct and Sizeof name the struct mirror and its size macro.
	Struct string
	Sizeof string
	// Mode is the array release mode.
	Mode     string
	Critical bool
	NoIn     bool
	NoOut    bool
	// Length is the linked length argument, for bounds.
	Length string
	// Call is the native call expression, for return.
	Call string
}

type compiled struct {
	local, acquire, release, arg, bounds, ret, ctype *template.Template
}

type kindEntry struct {
	rule KindRule
	disc *compiled
}

// Engine maps parameters. It is immutable and safe for concurrent use.
type Engine struct {
	kinds map[ir.Kind]kindEntry
}

// New validates rules and returns an engine. overrides replaces the
// native type name of kinds, keyed by kind name (e.g. "handle").
func New(rules *Rules, overrides map[string]string) (*Engine, error) {
	e := &Engine{kinds: map[ir.Kind]kindEntry{}}
	discs := map[string]*compiled{}
	for _, name := range slices.Sorted(maps.Keys(rules.Disciplines)) {
		c, err := compileDiscipline(name, rules.Disciplines[name])
		if err != nil {
			return nil, err
		}
		discs[name] = c
	}
	for _, name := range slices.Sorted(maps.Keys(rules.Kinds)) {
		kind, ok := ir.ParseKind(name)
		if !ok || kind == ir.KindUnknown {
			return nil, fmt.Errorf("%w: unknown kind %q", ErrConfig, name)
		}
		r := rules.Kinds[name]
		disc, ok := discs[r.Discipline]
		if !ok {
			return nil, fmt.Errorf("%w: kind %v: unknown discipline %q", ErrConfig, name, r.Discipline)
		}
		e.kinds[kind] = kindEntry{rule: r, disc: disc}
	}
	for _, name := range slices.Sorted(maps.Keys(overrides)) {
		kind, ok := ir.ParseKind(name)
		if !ok {
			return nil, fmt.Errorf("%w: override for unknown kind %q", ErrConfig, name)
		}
		ent, ok := e.kinds[kind]
		if !ok {
			return nil, fmt.Errorf("%w: override for unmapped kind %q", ErrConfig, name)
		}
		ent.rule.Native = overrides[name]
		e.kinds[kind] = ent
	}
	for _, kind := range ir.Kinds() {
		ent, ok := e.kinds[kind]
		if !ok {
			return nil, fmt.Errorf("%w: kind %v has no mapping", ErrConfig, kind)
		}
		if ent.rule.Native == "" && kind != ir.KindHandle && kind != ir.KindCallback {
			return nil, fmt.Errorf("%w: kind %v has no native type", ErrConfig, kind)
		}
		if err := ent.disc.check(kind, ent.rule); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func compileDiscipline(name string, d Discipline) (*compiled, error) {
	c := &compiled{}
	for _, x := range []struct {
		field string
		src   string
		dst   **template.Template
	}{
		{"local", d.Local, &c.local},
		{"acquire", d.Acquire, &c.acquire},
		{"release", d.Release, &c.release},
		{"arg", d.Arg, &c.arg},
		{"bounds", d.Bounds, &c.bounds},
		{"return", d.Return, &c.ret},
		{"ctype", d.CType, &c.ctype},
	} {
		if x.src == "" {
			continue
		}
		t, err := template.New(name + "." + x.field).Option("missingkey=error").Parse(x.src)
		if err != nil {
			return nil, fmt.Errorf("%w: discipline %v: %w", ErrConfig, name, err)
		}
		*x.dst = t
	}
	return c, nil
}

// check executes every template of the discipline with sample data.
func (c *compiled) check(kind ir.Kind, r KindRule) error {
	for _, flags := range []Data{{}, {Critical: true, NoOut: true}, {NoIn: true}} {
		d := flags
		d.Arg, d.Local, d.Cast, d.Call, d.Length = "arg0", "lparg0", "(void *)", "f()", "arg1"
		d.Native, d.Elem, d.ElemType = r.Native, r.Elem, r.ElemType
		d.Struct, d.Sizeof, d.Mode = "S", "S_SIZEOF", "0"
		for _, t := range []*template.Template{c.local, c.acquire, c.release, c.arg, c.bounds, c.ret, c.ctype} {
			if _, err := execute(t, d); err != nil {
				return fmt.Errorf("%w: kind %v: %w", ErrConfig, kind, err)
			}
		}
	}
	if kind != ir.KindVoid && c.arg == nil && c.ret == nil {
		return fmt.Errorf("%w: kind %v: discipline has neither arg nor return template", ErrConfig, kind)
	}
	return nil
}

func execute(t *template.Template, d Data) (string, error) {
	if t == nil {
		return "", nil
	}
	var b strings.Builder
	if err := t.Execute(&b, d); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Mapping is the marshaling code of one parameter or return value.
type Mapping struct {
	Kind ir.Kind
	// Native is the JNI type in the entry point signature.
	Native     string
	Descriptor string
	Discipline string
	Ownership  ir.Ownership
	// Locals are declarations, one per line.
	Locals  []string
	Acquire string
	Release string
	// Critical acquisitions are ordered after all other ones.
	Critical bool
	Arg      string
	Bounds   string
	// Return assigns the native call result to rc; only set for return
	// values.
	Return string
	// CType is the C type the native function takes or returns.
	CType string
}

// Error is a mapping failure of one declaration.
type Error struct {
	Identity string
	Pos      parser.Pos
	// Param is the parameter name, "return", or empty for the whole
	// declaration.
	Param string
	Err   error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Pos.File != "" {
		b.WriteString(e.Pos.String())
		b.WriteString(": ")
	}
	b.WriteString(e.Identity)
	if e.Param != "" {
		b.WriteString(": ")
		if e.Param != "return" {
			b.WriteString("parameter ")
		}
		b.WriteString(e.Param)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Engine) data(p ir.Param, ent kindEntry, native string) Data {
	d := Data{
		Arg:      "arg" + fmt.Sprint(p.Index),
		Local:    "lparg" + fmt.Sprint(p.Index),
		Cast:     p.Directives.Cast,
		Native:   native,
		Elem:     ent.rule.Elem,
		ElemType: ent.rule.ElemType,
		Mode:     "0",
		Critical: p.Has(directive.Critical),
		NoIn:     p.Has(directive.NoIn),
		NoOut:    p.Has(directive.NoOut),
	}
	if d.NoOut {
		d.Mode = "JNI_ABORT"
	}
	if p.Kind == ir.KindStruct {
		d.Struct = structName(p.Struct)
		d.Sizeof = SizeofMacro(p.Struct)
	}
	if p.LengthParam >= 0 {
		d.Length = "arg" + fmt.Sprint(p.LengthParam)
	}
	return d
}

// entry returns the rule of p's kind and the native type to use.
func (e *Engine) entry(p ir.Param, t config.Target) (kindEntry, string, error) {
	if p.Kind == ir.KindUnknown {
		return kindEntry{}, "", fmt.Errorf("%w %v", ErrUnmapped, p.HostType)
	}
	ent, ok := e.kinds[p.Kind]
	if !ok {
		return kindEntry{}, "", fmt.Errorf("%w %v", ErrUnmapped, p.Kind)
	}
	native := ent.rule.Native
	if p.Kind == ir.KindHandle || p.Kind == ir.KindCallback {
		if p.Declared == ir.KindInt && t.WordSize == 64 {
			return kindEntry{}, "", ErrHandleWidth
		}
		if native == "" {
			native = e.kinds[p.Declared].rule.Native
		}
	}
	return ent, native, nil
}

// Map maps a parameter for target t.
func (e *Engine) Map(p ir.Param, t config.Target) (Mapping, error) {
	if p.Kind == ir.KindVoid {
		return Mapping{}, fmt.Errorf("%w void parameter", ErrUnmapped)
	}
	ent, native, err := e.entry(p, t)
	if err != nil {
		return Mapping{}, err
	}
	if p.Has(directive.Critical) && !p.Kind.IsArray() {
		return Mapping{}, ErrCriticalKind
	}
	d := e.data(p, ent, native)
	m := Mapping{
		Kind:       p.Kind,
		Native:     native,
		Descriptor: p.Descriptor,
		Discipline: ent.rule.Discipline,
		Ownership:  p.Ownership,
		Critical:   d.Critical,
	}
	if ent.disc.arg == nil {
		return Mapping{}, fmt.Errorf("%w %v as a parameter", ErrUnmapped, p.Kind)
	}
	local, err := execute(ent.disc.local, d)
	if err != nil {
		return Mapping{}, err
	}
	if local != "" {
		m.Locals = strings.Split(local, "\n")
	}
	if m.Acquire, err = execute(ent.disc.acquire, d); err != nil {
		return Mapping{}, err
	}
	if m.Release, err = execute(ent.disc.release, d); err != nil {
		return Mapping{}, err
	}
	if m.Arg, err = execute(ent.disc.arg, d); err != nil {
		return Mapping{}, err
	}
	if m.CType, err = ctype(ent.disc, d); err != nil {
		return Mapping{}, err
	}
	if d.Length != "" {
		if ent.disc.bounds == nil {
			return Mapping{}, fmt.Errorf("%w: length linkage on a %v", ErrUnmapped, p.Kind)
		}
		if m.Bounds, err = execute(ent.disc.bounds, d); err != nil {
			return Mapping{}, err
		}
	}
	return m, nil
}

// MapReturn maps a return value. call is the native call expression.
func (e *Engine) MapReturn(p ir.Param, t config.Target, call string) (Mapping, error) {
	ent, native, err := e.entry(p, t)
	if err != nil {
		return Mapping{}, err
	}
	if ent.disc.ret == nil {
		return Mapping{}, fmt.Errorf("%w %v as a return value", ErrUnmapped, p.Kind)
	}
	d := e.data(p, ent, native)
	d.Call = call
	m := Mapping{
		Kind:       p.Kind,
		Native:     native,
		Descriptor: p.Descriptor,
		Discipline: ent.rule.Discipline,
	}
	if m.Return, err = execute(ent.disc.ret, d); err != nil {
		return Mapping{}, err
	}
	if m.CType, err = ctype(ent.disc, d); err != nil {
		return Mapping{}, err
	}
	if p.Kind != ir.KindVoid {
		zero := "0"
		if native == "jstring" || native == "jobject" {
			zero = "NULL"
		}
		m.Locals = []string{native + " rc = " + zero + ";"}
	}
	return m, nil
}

// ctype returns the C type named by the cast, else the discipline's.
func ctype(c *compiled, d Data) (string, error) {
	if cast := strings.TrimSpace(d.Cast); strings.HasPrefix(cast, "(") && strings.HasSuffix(cast, ")") {
		return strings.TrimSpace(cast[1 : len(cast)-1]), nil
	}
	res, err := execute(c.ctype, d)
	if err != nil || res != "" {
		return res, err
	}
	return d.Native, nil
}

// MethodMapping is the mapping of a whole native method.
type MethodMapping struct {
	Method *ir.Method
	Params []Mapping
	Return Mapping
}

// CallExpr is the placeholder for the call expression in Return.
const CallExpr = "\x00call\x00"

// MapMethod maps every parameter and the return value of m. All problems
// of the method are reported together.
func (e *Engine) MapMethod(m *ir.Method, t config.Target) (*MethodMapping, []*Error) {
	var errs []*Error
	fail := func(param string, err error) {
		errs = append(errs, &Error{Identity: m.Identity, Pos: m.Pos, Param: param, Err: err})
	}
	res := &MethodMapping{Method: m}
	critical := m.Has(directive.Critical)
	hasCallback := false
	for _, p := range m.Params {
		mp, err := e.Map(p, t)
		if err != nil {
			fail(p.Name, err)
			continue
		}
		critical = critical || mp.Critical
		hasCallback = hasCallback || p.Kind == ir.KindCallback
		res.Params = append(res.Params, mp)
	}
	if critical && hasCallback {
		fail("", ErrCriticalCallback)
	}
	ret, err := e.MapReturn(m.Return, t, CallExpr)
	if err != nil {
		fail("return", err)
	}
	res.Return = ret
	if len(errs) > 0 {
		return nil, errs
	}
	return res, nil
}

// SizeofMacro returns the size macro of a struct mirror, e.g.
// GDK_RECTANGLE_SIZEOF for org.example.GdkRectangle.
func SizeofMacro(fqcn string) string {
	return macroPrefix(fqcn) + "_SIZEOF"
}

func structName(fqcn string) string {
	if i := strings.LastIndexByte(fqcn, '.'); i >= 0 {
		return fqcn[i+1:]
	}
	return fqcn
}

// StructName returns the simple name of a struct mirror.
func StructName(fqcn string) string {
	return structName(fqcn)
}

func macroPrefix(fqcn string) string {
	return strcase.ToScreamingSnake(structName(fqcn))
}

// MacroPrefix returns the prefix of the macros generated for a struct
// mirror.
func MacroPrefix(fqcn string) string {
	return macroPrefix(fqcn)
}
