package directive

import (
	"fmt"
	"strconv"
	"strings"
)

// Set holds every directive that may be attached to one declaration,
// parameter or field.
//
// String values are empty and numbers are zero when not given.
type Set struct {
	Flags FlagSet
	// Cast is native type text, e.g. "(GtkWidget *)".
	Cast string
	// Accessor overrides the native symbol or field name.
	Accessor string
	// Length names the parameter carrying this array's element count.
	Length string
	// Platforms restricts a struct field to the listed platform ids.
	Platforms []string
	Align     int
	Count     int
}

// Over returns s layered over base. Decided flags and non-empty values in
// s win.
func (s Set) Over(base Set) Set {
	res := base
	res.Flags = s.Flags.Over(base.Flags)
	if s.Cast != "" {
		res.Cast = s.Cast
	}
	if s.Accessor != "" {
		res.Accessor = s.Accessor
	}
	if s.Length != "" {
		res.Length = s.Length
	}
	if len(s.Platforms) > 0 {
		res.Platforms = s.Platforms
	}
	if s.Align != 0 {
		res.Align = s.Align
	}
	if s.Count != 0 {
		res.Count = s.Count
	}
	return res
}

// IsZero reports whether nothing is set.
func (s Set) IsZero() bool {
	return s.Flags.IsZero() && s.Cast == "" && s.Accessor == "" && s.Length == "" &&
		len(s.Platforms) == 0 && s.Align == 0 && s.Count == 0
}

// Parse parses a comma separated list of key=value pairs, for example
//
//	flags=critical !no_out, cast=(const char *)
//
// Commas nested in parentheses are part of the value.
func Parse(scope Scope, text string) (Set, error) {
	var s Set
	for _, item := range splitTopLevel(text) {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key, val, ok := strings.Cut(item, "=")
		if !ok {
			return Set{}, fmt.Errorf("expected key=value, got %q", item)
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if err := s.setKey(scope, key, val); err != nil {
			return Set{}, err
		}
	}
	return s, nil
}

func (s *Set) setKey(scope Scope, key, val string) error {
	switch key {
	case "flags":
		fs, err := ParseFlags(scope, strings.Fields(val))
		if err != nil {
			return err
		}
		s.Flags = fs.Over(s.Flags)
	case "cast":
		s.Cast = val
	case "accessor":
		s.Accessor = val
	case "length":
		if scope != ScopeParam {
			return fmt.Errorf("key %q is only valid on a parameter", key)
		}
		s.Length = val
	case "platform":
		if scope != ScopeField {
			return fmt.Errorf("key %q is only valid on a field", key)
		}
		s.Platforms = strings.Fields(val)
	case "align", "count":
		n, err := strconv.Atoi(val)
		if err != nil || n <= 0 {
			return fmt.Errorf("key %q: expected positive integer, got %q", key, val)
		}
		if key == "align" {
			if n&(n-1) != 0 {
				return fmt.Errorf("key %q: %v is not a power of two", key, n)
			}
			s.Align = n
		} else {
			if scope != ScopeField {
				return fmt.Errorf("key %q is only valid on a field", key)
			}
			s.Count = n
		}
	default:
		return fmt.Errorf("unknown directive key %q", key)
	}
	return nil
}

// splitTopLevel splits at commas that are not inside parentheses or
// brackets.
func splitTopLevel(text string) []string {
	var res []string
	depth := 0
	start := 0
	for i, r := range text {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				res = append(res, text[start:i])
				start = i + 1
			}
		}
	}
	return append(res, text[start:])
}
