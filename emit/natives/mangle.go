// Package natives emits the JNI glue of classes declaring native
// methods: entry point prototypes, marshaling bodies and the
// registration table.
package natives

import (
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/refaktor/jnigen/ir"
)

// Mangle escapes s for use in a JNI entry point name.
//
//	'.' '/'  -> '_'
//	'_'      -> "_1"
//	';'      -> "_2"
//	'['      -> "_3"
//	other    -> "_0xxxx" (UTF-16 code units, lower case hex)
//
// ASCII letters and digits are kept.
func Mangle(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '/':
			b.WriteByte('_')
		case r == '_':
			b.WriteString("_1")
		case r == ';':
			b.WriteString("_2")
		case r == '[':
			b.WriteString("_3")
		default:
			for _, u := range utf16.Encode([]rune{r}) {
				fmt.Fprintf(&b, "_0%04x", u)
			}
		}
	}
	return b.String()
}

// EntryPoint returns the JNI entry point name of m. The long form with
// the argument descriptors is used for overloaded names.
func EntryPoint(m *ir.Method) string {
	name := "Java_" + Mangle(m.Class) + "_" + Mangle(m.Name)
	if m.Overloaded {
		name += "__" + Mangle(m.Signature())
	}
	return name
}
