// Package directive is the typed vocabulary of generation directives.
//
// Directives come from two places: doc comments in the host source and
// metadata overlay records. Both are parsed into a [Set] exactly once;
// later stages only ever look at typed values.
package directive

import (
	"fmt"
	"slices"
	"strings"
)

// Flag is a single boolean generation directive.
type Flag uint16

const (
	NoGen Flag = 1 << iota
	Critical
	Const
	Dynamic
	NoStats
	NoIn
	NoOut
	Struct
	Handle
	Callback
)

// allFlags is in the order flags are printed.
var allFlags = []Flag{NoGen, Critical, Const, Dynamic, NoStats, NoIn, NoOut, Struct, Handle, Callback}

var flagNames = map[Flag]string{
	NoGen:    "no_gen",
	Critical: "critical",
	Const:    "const",
	Dynamic:  "dynamic",
	NoStats:  "no_stats",
	NoIn:     "no_in",
	NoOut:    "no_out",
	Struct:   "struct",
	Handle:   "handle",
	Callback: "callback",
}

func (f Flag) String() string {
	if s, ok := flagNames[f]; ok {
		return s
	}
	return fmt.Sprintf("Flag(%d)", uint16(f))
}

// Scope is the kind of declaration a directive is attached to.
type Scope int

const (
	ScopeMethod Scope = iota
	ScopeParam
	ScopeField
	ScopeStruct
)

func (s Scope) String() string {
	switch s {
	case ScopeMethod:
		return "method"
	case ScopeParam:
		return "parameter"
	case ScopeField:
		return "field"
	case ScopeStruct:
		return "struct"
	default:
		return fmt.Sprintf("Scope(%d)", int(s))
	}
}

var scopeFlags = map[Scope]Flag{
	ScopeMethod: NoGen | Critical | Const | Dynamic | NoStats,
	ScopeParam:  NoIn | NoOut | Critical | Struct | Handle | Callback,
	ScopeField:  NoGen | Handle,
	ScopeStruct: NoGen,
}

// LookupFlag returns the flag called name, if it is valid in scope.
func LookupFlag(scope Scope, name string) (Flag, error) {
	for f, s := range flagNames {
		if s != name {
			continue
		}
		if scopeFlags[scope]&f == 0 {
			return 0, fmt.Errorf("flag %q is not valid on a %v", name, scope)
		}
		return f, nil
	}
	return 0, fmt.Errorf("unknown flag %q (valid on a %v: %v)", name, scope, strings.Join(sortedFlagNames(scope), ", "))
}

// FlagSet is a tri-state set of flags: each flag is either undecided,
// decided on, or decided off.
//
// The zero value has every flag undecided.
type FlagSet struct {
	decided Flag
	on      Flag
}

// Flags returns a set in which each of fs is decided on.
func Flags(fs ...Flag) FlagSet {
	var s FlagSet
	for _, f := range fs {
		s = s.With(f, true)
	}
	return s
}

// Has reports whether f is decided on.
func (s FlagSet) Has(f Flag) bool {
	return s.on&f != 0
}

// Decided reports whether f has been explicitly set, on or off.
func (s FlagSet) Decided(f Flag) bool {
	return s.decided&f != 0
}

// IsZero reports whether no flag is decided.
func (s FlagSet) IsZero() bool {
	return s.decided == 0
}

// With returns a copy of s with f decided to on.
func (s FlagSet) With(f Flag, on bool) FlagSet {
	s.decided |= f
	if on {
		s.on |= f
	} else {
		s.on &^= f
	}
	return s
}

// Over returns s layered over base: flags decided in s win, the others
// are taken from base.
func (s FlagSet) Over(base FlagSet) FlagSet {
	return FlagSet{
		decided: s.decided | base.decided,
		on:      (s.on & s.decided) | (base.on &^ s.decided),
	}
}

// ParseFlags parses flag words. A leading "!" decides the flag off.
// Later words override earlier ones.
func ParseFlags(scope Scope, words []string) (FlagSet, error) {
	var s FlagSet
	for _, w := range words {
		on := true
		name := w
		if strings.HasPrefix(name, "!") {
			on = false
			name = name[1:]
		}
		f, err := LookupFlag(scope, name)
		if err != nil {
			return FlagSet{}, err
		}
		s = s.With(f, on)
	}
	return s, nil
}

// Words returns the decided flags as flag words in a stable order.
func (s FlagSet) Words() []string {
	var res []string
	for _, f := range allFlags {
		if !s.Decided(f) {
			continue
		}
		if s.Has(f) {
			res = append(res, f.String())
		} else {
			res = append(res, "!"+f.String())
		}
	}
	return res
}

func (s FlagSet) String() string {
	return "[" + strings.Join(s.Words(), " ") + "]"
}

// Equal reports whether both sets decide the same flags the same way.
func (s FlagSet) Equal(o FlagSet) bool {
	return s.decided == o.decided && s.on&s.decided == o.on&o.decided
}

// sortedFlagNames is used in error messages.
func sortedFlagNames(scope Scope) []string {
	var res []string
	for f, s := range flagNames {
		if scopeFlags[scope]&f != 0 {
			res = append(res, s)
		}
	}
	slices.Sort(res)
	return res
}
