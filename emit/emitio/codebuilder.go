// Package emitio holds the building blocks shared by the emitters.
package emitio

import (
	"bufio"
	"fmt"
	"strings"
)

// Banner is the first line of every generated file.
const Banner = "/* Code generated by jnigen. DO NOT EDIT. */"

// CommonHeader is the per-target header every generated file includes.
const CommonHeader = "jnigen.h"

// File is a generated file. Name is relative to the output directory.
type File struct {
	Name string
	Data []byte
}

// CodeBuilder is a wrapper around [strings.Builder] that simplifies
// building C code.
//
// The zero value is safely ready to use.
type CodeBuilder struct {
	// Indent is the indentation level (indentation is tabs).
	Indent int

	b strings.Builder
}

// Write appends a raw string to the internal [strings.Builder].
func (w *CodeBuilder) Write(s string) {
	w.b.WriteString(s)
}

// Append writes the given string line by line with correct indentation.
func (w *CodeBuilder) Append(s string) {
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		w.Linef("%v", sc.Text())
	}
}

// Linef writes a single line, prepended by the current indentation.
// Empty lines are not indented.
//
// Takes format and args like [fmt.Printf].
func (w *CodeBuilder) Linef(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if line != "" {
		for i := 0; i < w.Indent; i++ {
			w.b.WriteString("\t")
		}
		w.b.WriteString(line)
	}
	w.b.WriteString("\n")
}

// Banner writes the generated-file banner followed by an empty line.
func (w *CodeBuilder) Banner() {
	w.Linef("%v", Banner)
	w.Linef("")
}

// IncludeGuard opens an include guard for header name and returns a
// function that closes it.
func (w *CodeBuilder) IncludeGuard(name string) (end func()) {
	macro := GuardMacro(name)
	w.Linef("#ifndef %v", macro)
	w.Linef("#define %v", macro)
	w.Linef("")
	return func() {
		w.Linef("#endif /* %v */", macro)
	}
}

// GuardMacro returns the include guard macro for a header file name,
// e.g. JNIGEN_OS_H for "os.h".
func GuardMacro(name string) string {
	var b strings.Builder
	b.WriteString("JNIGEN_")
	for _, r := range strings.ToUpper(name) {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// String returns the current code.
func (w *CodeBuilder) String() string {
	return w.b.String()
}

// File returns the current code as a file called name.
func (w *CodeBuilder) File(name string) File {
	return File{Name: name, Data: []byte(w.b.String())}
}

func (w *CodeBuilder) Reset() {
	w.Indent = 0
	w.b.Reset()
}
