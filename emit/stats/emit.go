package stats

import (
	"strings"

	"github.com/refaktor/jnigen/directive"
	"github.com/refaktor/jnigen/emit/emitio"
	"github.com/refaktor/jnigen/ir"
)

const (
	HeaderFile = "jnigen_stats.h"
	SourceFile = "jnigen_stats.c"
)

// Identities returns the identities of every method that is counted:
// generated methods without no_stats, in source order.
func Identities(m *ir.Model) []string {
	var res []string
	for _, u := range m.Units {
		for _, meth := range u.Generated() {
			if meth.Has(directive.NoStats) {
				continue
			}
			res = append(res, meth.Identity)
		}
	}
	return res
}

// Emit returns the counter header and source for t.
func Emit(t *Table) []emitio.File {
	size := t.Size()
	slots := max(size, 1)

	var cb emitio.CodeBuilder
	cb.Banner()
	end := cb.IncludeGuard(HeaderFile)
	cb.Linef(`#include <jni.h>`)
	cb.Linef(``)
	cb.Linef(`#define JNIGEN_NATIVE_FUNCTION_COUNT %v`, size)
	cb.Linef(``)
	cb.Linef(`#ifdef JNIGEN_NATIVE_STATS`)
	cb.Linef(`extern int jnigen_native_function_call_count[%v];`, slots)
	cb.Linef(`extern const char *jnigen_native_function_names[%v];`, slots)
	cb.Linef(`#define JNIGEN_NATIVE_ENTER(env, that, func) jnigen_native_function_call_count[func]++`)
	cb.Linef(`#define JNIGEN_NATIVE_EXIT(env, that, func)`)
	cb.Linef(`#else`)
	cb.Linef(`#define JNIGEN_NATIVE_ENTER(env, that, func)`)
	cb.Linef(`#define JNIGEN_NATIVE_EXIT(env, that, func)`)
	cb.Linef(`#endif`)
	cb.Linef(``)
	end()
	header := cb.File(HeaderFile)

	cb.Reset()
	cb.Banner()
	cb.Linef(`#include "%v"`, HeaderFile)
	cb.Linef(``)
	cb.Linef(`#ifdef JNIGEN_NATIVE_STATS`)
	cb.Linef(``)
	cb.Linef(`int jnigen_native_function_call_count[%v];`, slots)
	cb.Linef(``)
	cb.Linef(`const char *jnigen_native_function_names[%v] = {`, slots)
	cb.Indent++
	names := make([]string, slots)
	for _, e := range t.Entries() {
		names[e.Index] = e.Identity
	}
	for i, name := range names {
		if name == "" {
			cb.Linef(`NULL, /* %v */`, i)
			continue
		}
		cb.Linef(`"%v", /* %v */`, cEscape(name), i)
	}
	cb.Indent--
	cb.Linef(`};`)
	cb.Linef(``)
	cb.Linef(`#endif`)

	return []emitio.File{header, cb.File(SourceFile)}
}

func cEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`, "*/", `*\/`).Replace(s)
}
