package natives

import (
	"fmt"
	"strings"

	"github.com/refaktor/jnigen/directive"
	"github.com/refaktor/jnigen/emit/emitio"
	"github.com/refaktor/jnigen/ir"
	"github.com/refaktor/jnigen/typemap"
)

// acquisitionOrder returns the parameter mappings that acquire something,
// non-critical ones first. Releases happen in the reverse order.
func acquisitionOrder(params []typemap.Mapping) []typemap.Mapping {
	var res, critical []typemap.Mapping
	for _, p := range params {
		switch {
		case p.Acquire == "":
		case p.Critical:
			critical = append(critical, p)
		default:
			res = append(res, p)
		}
	}
	return append(res, critical...)
}

// callExpr returns the expression invoking the native function.
func callExpr(mm *typemap.MethodMapping) string {
	m := mm.Method
	if m.Has(directive.Const) {
		return m.Symbol
	}
	args := make([]string, len(mm.Params))
	types := make([]string, len(mm.Params))
	for i, p := range mm.Params {
		args[i] = p.Arg
		types[i] = p.CType
	}
	if !m.Has(directive.Dynamic) {
		return fmt.Sprintf("%v(%v)", m.Symbol, strings.Join(args, ", "))
	}
	if len(types) == 0 {
		types = []string{"void"}
	}
	return fmt.Sprintf("((%v (*)(%v))fp)(%v)", mm.Return.CType, strings.Join(types, ", "), strings.Join(args, ", "))
}

// writeBody writes the glue between the braces of an entry point.
func writeBody(cb *emitio.CodeBuilder, mm *typemap.MethodMapping, index int, counted bool) {
	m := mm.Method
	void := m.Return.Kind == ir.KindVoid

	if m.Body == "" {
		for _, p := range mm.Params {
			for _, l := range p.Locals {
				cb.Linef("%v", l)
			}
		}
	}
	for _, l := range mm.Return.Locals {
		cb.Linef("%v", l)
	}
	if counted {
		cb.Linef("JNIGEN_NATIVE_ENTER(env, that, %v);", index)
	}

	if m.Body != "" {
		cb.Append(m.Body)
	} else {
		gotos := false
		for _, p := range mm.Params {
			if p.Bounds != "" {
				cb.Append(p.Bounds)
				gotos = gotos || strings.Contains(p.Bounds, "goto fail")
			}
		}
		acquired := acquisitionOrder(mm.Params)
		for _, p := range acquired {
			cb.Append(p.Acquire)
			gotos = gotos || strings.Contains(p.Acquire, "goto fail")
		}
		if m.PreCall != "" {
			cb.Append(m.PreCall)
		}
		stmt := strings.ReplaceAll(mm.Return.Return, typemap.CallExpr, callExpr(mm))
		if m.Has(directive.Dynamic) && !m.Has(directive.Const) {
			cb.Linef("{")
			cb.Indent++
			cb.Linef("JNIGEN_LOAD_FUNCTION(fp, %v)", m.Symbol)
			cb.Linef("if (fp) {")
			cb.Indent++
			cb.Linef("%v", stmt)
			cb.Indent--
			cb.Linef("}")
			cb.Indent--
			cb.Linef("}")
		} else {
			cb.Linef("%v", stmt)
		}
		if m.PostCall != "" {
			cb.Append(m.PostCall)
		}
		var releases []string
		for i := len(acquired) - 1; i >= 0; i-- {
			if acquired[i].Release != "" {
				releases = append(releases, acquired[i].Release)
			}
		}
		if gotos {
			if len(releases) == 0 && !counted && void {
				// A label must be followed by a statement.
				cb.Write("fail: ;\n")
			} else {
				cb.Write("fail:\n")
			}
		}
		for _, r := range releases {
			cb.Append(r)
		}
	}

	if counted {
		cb.Linef("JNIGEN_NATIVE_EXIT(env, that, %v);", index)
	}
	if !void {
		cb.Linef("return rc;")
	}
}
