package metadata

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/iancoleman/strcase"
	"gopkg.in/yaml.v3"
)

// Pattern is a regular expression that has to match a whole string.
type Pattern struct {
	*regexp.Regexp
}

func (p *Pattern) UnmarshalText(text []byte) error {
	re, err := regexp.Compile("^(?:" + string(text) + ")$")
	if err != nil {
		return err
	}
	p.Regexp = re
	return nil
}

func (p *Pattern) UnmarshalYAML(n *yaml.Node) error {
	return p.UnmarshalText([]byte(n.Value))
}

func (p *Pattern) MarshalText() ([]byte, error) {
	s := strings.TrimSuffix(strings.TrimPrefix(p.String(), "^(?:"), ")$")
	return []byte(s), nil
}

// submatches returns the capture groups if s matches. A nil pattern
// matches everything.
func (p *Pattern) submatches(s string) ([]string, bool) {
	if p == nil || p.Regexp == nil {
		return nil, true
	}
	m := p.FindStringSubmatch(s)
	if m == nil {
		return nil, false
	}
	return m[1:], true
}

// Rule applies a record to every declaration it selects. Rules are
// weaker than records written for a specific identity.
type Rule struct {
	Select struct {
		Class *Pattern `yaml:"class" toml:"class"`
		Name  *Pattern `yaml:"name" toml:"name"`
		// Kind is "method" (default) or "field".
		Kind string `yaml:"kind" toml:"kind"`
	} `yaml:"select" toml:"select"`
	Flags []string `yaml:"flags" toml:"flags"`
	Cast  string   `yaml:"cast" toml:"cast"`
	// Accessor may refer to capture groups of the class and name
	// selectors as \1 ... \9.
	Accessor string `yaml:"accessor" toml:"accessor"`
	// AccessorCase converts the native symbol: snake, screaming-snake,
	// camel, lower-camel or kebab.
	AccessorCase string `yaml:"accessor-case" toml:"accessor-case"`

	file  string
	index int
}

func (r *Rule) kind() DeclKind {
	if r.Select.Kind == "field" {
		return KindField
	}
	return KindMethod
}

func (r *Rule) String() string {
	return fmt.Sprintf("%v: rule #%v", r.file, r.index+1)
}

func (r *Rule) validate() error {
	switch r.Select.Kind {
	case "", "method", "field":
	default:
		return fmt.Errorf("select: unknown kind %q", r.Select.Kind)
	}
	if _, err := ApplyCase(r.AccessorCase, "x"); err != nil {
		return err
	}
	_, err := compile(r.kind().scope(), r.record())
	return err
}

// match reports whether the rule selects the declaration and returns the
// capture groups of the class and name selectors in that order.
func (r *Rule) match(kind DeclKind, class, name string) ([]string, bool) {
	if r.kind() != kind {
		return nil, false
	}
	classRefs, ok := r.Select.Class.submatches(class)
	if !ok {
		return nil, false
	}
	nameRefs, ok := r.Select.Name.submatches(name)
	if !ok {
		return nil, false
	}
	return append(classRefs, nameRefs...), true
}

func (r *Rule) record() Record {
	return Record{Flags: r.Flags, Cast: r.Cast, Accessor: r.Accessor}
}

// expand substitutes \1 ... \9 in s.
func expand(s string, backrefs []string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	oldnew := make([]string, 0, 18)
	for i := range 9 {
		v := ""
		if i < len(backrefs) {
			v = backrefs[i]
		}
		oldnew = append(oldnew, fmt.Sprintf(`\%d`, i+1), v)
	}
	return strings.NewReplacer(oldnew...).Replace(s)
}

// ApplyCase converts s to the named casing. An empty casing returns s.
func ApplyCase(casing, s string) (string, error) {
	switch casing {
	case "":
		return s, nil
	case "snake":
		return strcase.ToSnake(s), nil
	case "screaming-snake":
		return strcase.ToScreamingSnake(s), nil
	case "camel":
		return strcase.ToCamel(s), nil
	case "lower-camel":
		return strcase.ToLowerCamel(s), nil
	case "kebab":
		return strcase.ToKebab(s), nil
	default:
		return "", fmt.Errorf("unknown casing %q", casing)
	}
}
