package natives

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/refaktor/jnigen/config"
	"github.com/refaktor/jnigen/digraphutils"
	"github.com/refaktor/jnigen/emit/emitio"
	"github.com/refaktor/jnigen/emit/structs"
	"github.com/refaktor/jnigen/ir"
	"github.com/refaktor/jnigen/typemap"
)

var (
	ErrNotMapped          = errors.New("method has no type mapping")
	ErrStructNotGenerated = errors.New("struct mirror is not generated")
)

// Options configure an emission.
type Options struct {
	Target config.Target
	// Index returns the stats index of a method identity. Methods
	// without one are not counted.
	Index func(identity string) (int, bool)
}

// UnitName returns the file name stem of a unit's glue files.
func UnitName(u *ir.Unit) string {
	return strcase.ToSnake(u.Class)
}

// Emit returns the header and implementation file of every unit of m.
// mappings must hold every generated method.
func Emit(m *ir.Model, mappings map[*ir.Method]*typemap.MethodMapping, opts Options) ([]emitio.File, error) {
	var files []emitio.File
	for _, u := range m.Units {
		e := &unitEmitter{model: m, unit: u, opts: opts}
		for _, meth := range u.Generated() {
			mm, ok := mappings[meth]
			if !ok {
				return nil, fmt.Errorf("%v: %v: %w", meth.Pos, meth.Identity, ErrNotMapped)
			}
			e.methods = append(e.methods, mm)
		}
		if err := e.collectStructs(); err != nil {
			return nil, err
		}
		files = append(files, e.header(), e.source())
	}
	return files, nil
}

type unitEmitter struct {
	model   *ir.Model
	unit    *ir.Unit
	opts    Options
	methods []*typemap.MethodMapping
	// structs are the struct mirrors used by parameters, in order of
	// first use.
	structs []string
	cb      emitio.CodeBuilder
}

func (e *unitEmitter) collectStructs() error {
	for _, mm := range e.methods {
		for _, p := range mm.Method.Params {
			if p.Kind != ir.KindStruct {
				continue
			}
			if s := e.model.Struct(p.Struct); s == nil || s.Skipped() {
				return fmt.Errorf("%v: %v: parameter %v: %w: %v", mm.Method.Pos, mm.Method.Identity, p.Name, ErrStructNotGenerated, p.Struct)
			}
		}
	}
	e.structs = e.unit.UsedStructs()
	// Nested mirrors are copied through the accessors of their parent,
	// so they must be generated too.
	for _, fqcn := range digraphutils.Sorted(e.structs, e.model.Embedded) {
		if s := e.model.Struct(fqcn); s == nil || s.Skipped() {
			return fmt.Errorf("%v: %w: %v", e.unit.FQCN, ErrStructNotGenerated, fqcn)
		}
	}
	return nil
}

func (e *unitEmitter) registerFunc() string {
	return e.unit.Class + "_register_natives"
}

// prototype returns the entry point signature, without a trailing ';'.
func prototype(mm *typemap.MethodMapping) string {
	m := mm.Method
	that := "jobject"
	if m.Static {
		that = "jclass"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "JNIEXPORT %v JNICALL %v(JNIEnv *env, %v that", mm.Return.Native, EntryPoint(m), that)
	for i, p := range mm.Params {
		fmt.Fprintf(&b, ", %v arg%v", p.Native, i)
	}
	b.WriteString(")")
	return b.String()
}

func (e *unitEmitter) header() emitio.File {
	cb := &e.cb
	cb.Reset()
	name := UnitName(e.unit) + ".h"
	cb.Banner()
	end := cb.IncludeGuard(name)
	cb.Linef(`#include "%v"`, emitio.CommonHeader)
	cb.Linef(``)
	for _, mm := range e.methods {
		cb.Linef(`%v;`, prototype(mm))
	}
	if len(e.methods) > 0 {
		cb.Linef(``)
	}
	cb.Linef(`jint %v(JNIEnv *env);`, e.registerFunc())
	cb.Linef(``)
	end()
	return cb.File(name)
}

func (e *unitEmitter) source() emitio.File {
	cb := &e.cb
	cb.Reset()
	cb.Banner()
	cb.Linef(`#include "%v"`, UnitName(e.unit)+".h")
	for _, s := range e.structs {
		cb.Linef(`#include "%v"`, structs.HeaderFor(s))
	}
	for _, mm := range e.methods {
		cb.Linef(``)
		cb.Linef(`%v`, prototype(mm))
		cb.Linef(`{`)
		cb.Indent++
		idx, counted := -1, false
		if e.opts.Index != nil {
			idx, counted = e.opts.Index(mm.Method.Identity)
		}
		writeBody(cb, mm, idx, counted)
		cb.Indent--
		cb.Linef(`}`)
	}
	cb.Linef(``)
	e.registration()
	return cb.File(UnitName(e.unit) + ".c")
}

func (e *unitEmitter) registration() {
	cb := &e.cb
	table := e.unit.Class + "_natives"
	if len(e.methods) > 0 {
		cb.Linef(`static const JNINativeMethod %v[] = {`, table)
		cb.Indent++
		for _, mm := range e.methods {
			cb.Linef(`{"%v", "%v", (void *)%v},`, mm.Method.Name, mm.Method.JNISignature(), EntryPoint(mm.Method))
		}
		cb.Indent--
		cb.Linef(`};`)
		cb.Linef(``)
	}
	cb.Linef(`jint %v(JNIEnv *env)`, e.registerFunc())
	cb.Linef(`{`)
	cb.Indent++
	if len(e.methods) == 0 {
		cb.Linef(`return JNI_OK;`)
	} else {
		cb.Linef(`jint rc;`)
		cb.Linef(`jclass clazz = (*env)->FindClass(env, "%v");`, e.unit.JNIClass())
		cb.Linef(`if (clazz == NULL) return JNI_ERR;`)
		cb.Linef(`rc = (*env)->RegisterNatives(env, clazz, %v, (jint)(sizeof(%v) / sizeof(%v[0])));`, table, table, table)
		cb.Linef(`(*env)->DeleteLocalRef(env, clazz);`)
		cb.Linef(`return rc;`)
	}
	cb.Indent--
	cb.Linef(`}`)
}
