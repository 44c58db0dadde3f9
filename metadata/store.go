package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/refaktor/jnigen/directive"
	"gopkg.in/yaml.v3"
)

// DeclKind is the kind of declaration a record applies to.
type DeclKind int

const (
	KindMethod DeclKind = iota
	KindField
	KindStruct
)

func (k DeclKind) scope() directive.Scope {
	switch k {
	case KindField:
		return directive.ScopeField
	case KindStruct:
		return directive.ScopeStruct
	default:
		return directive.ScopeMethod
	}
}

func (k DeclKind) String() string {
	switch k {
	case KindMethod:
		return "method"
	case KindField:
		return "field"
	case KindStruct:
		return "struct"
	default:
		return fmt.Sprintf("DeclKind(%d)", int(k))
	}
}

type classRecord struct {
	Struct  *Record           `yaml:"struct" toml:"struct"`
	Methods map[string]Record `yaml:"methods" toml:"methods"`
	Fields  map[string]Record `yaml:"fields" toml:"fields"`
}

type fileContents struct {
	Imports []string               `yaml:"imports" toml:"imports"`
	Classes map[string]classRecord `yaml:"classes" toml:"classes"`
	Rules   []*Rule                `yaml:"rules" toml:"rules"`
}

type stored struct {
	kind   DeclKind
	record Record
	file   string
}

// Store holds every record and rule of a metadata file and its imports.
// A Store is immutable once loaded and safe for concurrent use.
type Store struct {
	records map[string]*stored
	rules   []*Rule
	files   []string
	loaded  map[string]bool
}

// Empty returns a store without records.
func Empty() *Store {
	return &Store{records: map[string]*stored{}, loaded: map[string]bool{}}
}

// Files returns every file the store was loaded from, imports first.
func (s *Store) Files() []string {
	return slices.Clone(s.files)
}

// Len returns the number of identity records.
func (s *Store) Len() int {
	return len(s.records)
}

// Load loads a metadata file (.yaml, .yml or .toml) and its imports.
// Import paths are relative to the importing file. Imported records are
// merged under the importing file's records. A file imported more than
// once is only loaded the first time.
func Load(path string) (*Store, error) {
	s := Empty()
	if err := s.load(path, nil); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load(path string, stack []string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if slices.Contains(stack, abs) {
		return fmt.Errorf("%v: import cycle: %v", path, strings.Join(append(stack, abs), " -> "))
	}
	if s.loaded[abs] {
		return nil
	}
	stack = append(stack, abs)

	fc, err := decodeFile(path)
	if err != nil {
		return err
	}
	for _, imp := range fc.Imports {
		if !filepath.IsAbs(imp) {
			imp = filepath.Join(filepath.Dir(path), imp)
		}
		if err := s.load(imp, stack); err != nil {
			return err
		}
	}

	add := func(identity string, kind DeclKind, rec Record) error {
		if _, err := compile(kind.scope(), rec); err != nil {
			return fmt.Errorf("%v: %v: %w", path, identity, err)
		}
		if prev, ok := s.records[identity]; ok {
			rec = Merge(prev.record, rec)
		}
		s.records[identity] = &stored{kind: kind, record: rec, file: path}
		return nil
	}
	for _, class := range sortedKeys(fc.Classes) {
		cr := fc.Classes[class]
		if cr.Struct != nil {
			if err := add(class, KindStruct, *cr.Struct); err != nil {
				return err
			}
		}
		for _, key := range sortedKeys(cr.Methods) {
			if !validMethodKey(key) {
				return fmt.Errorf("%v: classes.%v.methods: key %q: expected name(descriptors)", path, class, key)
			}
			if err := add(class+"."+key, KindMethod, cr.Methods[key]); err != nil {
				return err
			}
		}
		for _, key := range sortedKeys(cr.Fields) {
			if err := add(class+"#"+key, KindField, cr.Fields[key]); err != nil {
				return err
			}
		}
	}
	for i, r := range fc.Rules {
		r.file = path
		r.index = i
		if err := r.validate(); err != nil {
			return fmt.Errorf("%v: %w", r, err)
		}
		s.rules = append(s.rules, r)
	}
	s.files = append(s.files, path)
	s.loaded[abs] = true
	return nil
}

func decodeFile(path string) (*fileContents, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc := &fileContents{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(fc); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%v: %w", path, err)
		}
	case ".toml":
		err := toml.NewDecoder(bytes.NewReader(data)).
			DisallowUnknownFields().
			Decode(fc)
		if err != nil {
			if tErr := (&toml.DecodeError{}); errors.As(err, &tErr) {
				row, col := tErr.Position()
				return nil, fmt.Errorf("%v:%v:%v: %w", path, row, col, err)
			}
			return nil, fmt.Errorf("%v: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%v: unsupported metadata format %q", path, filepath.Ext(path))
	}
	return fc, nil
}

func validMethodKey(key string) bool {
	open := strings.IndexByte(key, '(')
	return open > 0 && strings.HasSuffix(key, ")") && !strings.ContainsAny(key[:open], "(). ")
}

// Entry is the typed, fully merged metadata for one declaration.
type Entry struct {
	Directives directive.Set
	// Params is keyed by parameter name or index, as written.
	Params       map[string]directive.Set
	PreCall      string
	PostCall     string
	Body         string
	AccessorCase string
}

// Param returns the directives for the parameter at index i called name.
// A record keyed by name wins over one keyed by index.
func (e Entry) Param(i int, name string) directive.Set {
	byName := e.Params[name]
	byIndex := e.Params[strconv.Itoa(i)]
	return byName.Over(byIndex)
}

func compile(scope directive.Scope, rec Record) (Entry, error) {
	flags, err := directive.ParseFlags(scope, rec.Flags)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{
		Directives: directive.Set{
			Flags:     flags,
			Cast:      rec.Cast,
			Accessor:  rec.Accessor,
			Platforms: rec.Platform,
			Align:     rec.Align,
			Count:     rec.Count,
		},
		PreCall:  rec.PreCall,
		PostCall: rec.PostCall,
		Body:     rec.Body,
	}
	if scope != directive.ScopeMethod && (rec.PreCall != "" || rec.PostCall != "" || rec.Body != "" || len(rec.Params) > 0) {
		return Entry{}, fmt.Errorf("code fragments and params are only valid on methods")
	}
	if rec.Align != 0 && rec.Align&(rec.Align-1) != 0 {
		return Entry{}, fmt.Errorf("align: %v is not a power of two", rec.Align)
	}
	for key, pr := range rec.Params {
		flags, err := directive.ParseFlags(directive.ScopeParam, pr.Flags)
		if err != nil {
			return Entry{}, fmt.Errorf("params.%v: %w", key, err)
		}
		if e.Params == nil {
			e.Params = map[string]directive.Set{}
		}
		e.Params[key] = directive.Set{Flags: flags, Cast: pr.Cast, Length: pr.Length}
	}
	return e, nil
}

// Lookup returns the metadata for the declaration with the given identity.
// class and name are what rule selectors match against. ok is false if
// no rule or record applies.
func (s *Store) Lookup(kind DeclKind, class, name, identity string) (e Entry, ok bool, err error) {
	var rec Record
	var casing string
	for _, r := range s.rules {
		backrefs, matched := r.match(kind, class, name)
		if !matched {
			continue
		}
		ok = true
		rr := r.record()
		rr.Accessor = expand(rr.Accessor, backrefs)
		rec = Merge(rec, rr)
		if r.AccessorCase != "" {
			casing = r.AccessorCase
		}
	}
	if st, found := s.records[identity]; found && st.kind == kind {
		ok = true
		rec = Merge(rec, st.record)
	}
	if !ok {
		return Entry{}, false, nil
	}
	e, err = compile(kind.scope(), rec)
	if err != nil {
		return Entry{}, false, fmt.Errorf("metadata for %v: %w", identity, err)
	}
	e.AccessorCase = casing
	return e, true, nil
}

// Decl identifies a declaration seen in the source model, for stale
// detection.
type Decl struct {
	Kind     DeclKind
	Class    string
	Name     string
	Identity string
}

// Stale is a record or rule that applies to no declaration.
type Stale struct {
	File string
	// Identity is set for records, Rule for rules.
	Identity string
	Rule     string
}

func (st Stale) String() string {
	if st.Rule != "" {
		return st.Rule + " matches no declaration"
	}
	return fmt.Sprintf("%v: record %v matches no declaration", st.File, st.Identity)
}

// Stale returns the records and rules that match none of decls, sorted
// by file and identity.
func (s *Store) Stale(decls []Decl) []Stale {
	seen := make(map[string]DeclKind, len(decls))
	for _, d := range decls {
		seen[d.Identity] = d.Kind
	}
	var res []Stale
	for id, st := range s.records {
		if kind, ok := seen[id]; !ok || kind != st.kind {
			res = append(res, Stale{File: st.file, Identity: id})
		}
	}
	slices.SortFunc(res, func(a, b Stale) int {
		if c := strings.Compare(a.File, b.File); c != 0 {
			return c
		}
		return strings.Compare(a.Identity, b.Identity)
	})
	for _, r := range s.rules {
		if !slices.ContainsFunc(decls, func(d Decl) bool {
			_, ok := r.match(d.Kind, d.Class, d.Name)
			return ok
		}) {
			res = append(res, Stale{File: r.file, Rule: r.String()})
		}
	}
	return res
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
