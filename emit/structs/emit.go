package structs

import (
	"fmt"
	"slices"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/refaktor/jnigen/config"
	"github.com/refaktor/jnigen/emit/emitio"
	"github.com/refaktor/jnigen/ir"
	"github.com/refaktor/jnigen/typemap"
)

// UnitName returns the file name stem of a struct mirror's files.
func UnitName(fqcn string) string {
	return strcase.ToSnake(typemap.StructName(fqcn)) + "_structs"
}

// HeaderFor returns the header declaring the accessors of struct fqcn.
func HeaderFor(fqcn string) string {
	return UnitName(fqcn) + ".h"
}

func offsetMacro(s *ir.StructMirror, f *ir.Field) string {
	return typemap.MacroPrefix(s.FQCN) + "_" + strcase.ToScreamingSnake(f.Name) + "_OFFSET"
}

func getter(s *ir.StructMirror, f *ir.Field) string {
	return s.Name + "_get_" + f.Name
}

func setter(s *ir.StructMirror, f *ir.Field) string {
	return s.Name + "_set_" + f.Name
}

// platformGuard returns the #if line for a platform-restricted field, or
// "" if the field is on every platform.
func platformGuard(f *ir.Field) string {
	if len(f.Directives.Platforms) == 0 {
		return ""
	}
	conds := make([]string, len(f.Directives.Platforms))
	for i, id := range f.Directives.Platforms {
		conds[i] = "defined(" + config.PlatformMacro(id) + ")"
	}
	return "#if " + strings.Join(conds, " || ")
}

type emitter struct {
	cb       emitio.CodeBuilder
	layouter *layouter
	warnings []ir.Warning
}

// guarded runs fn with the field's platform guard around it. Guards
// are never indented.
func (e *emitter) guarded(f *ir.Field, fn func()) {
	guard := platformGuard(f)
	if guard != "" {
		e.cb.Write(guard + "\n")
	}
	fn()
	if guard != "" {
		e.cb.Write("#endif\n")
	}
}

// Emit emits the files of every generated struct mirror of m for target
// t. targets are the ids of all targets configured in the run; a field
// restricted to platforms none of them has is reported as a warning.
func Emit(m *ir.Model, t config.Target, targets []string) ([]emitio.File, []ir.Warning, error) {
	e := &emitter{layouter: newLayouter(m, t)}
	var files []emitio.File
	for _, s := range m.Structs {
		if s.Skipped() {
			continue
		}
		for _, f := range s.Fields {
			e.checkField(f, targets)
		}
		l, err := e.layouter.layout(s)
		if err != nil {
			return nil, nil, fmt.Errorf("%v: %w", s.Pos, err)
		}
		if s.DeclaredSize >= 0 && s.DeclaredSize != l.Size {
			e.warnings = append(e.warnings, ir.Warningf(s.Pos, s.Identity,
				"declared sizeof %v differs from computed size %v on target %v", s.DeclaredSize, l.Size, t.ID))
		}
		for _, fl := range l.Fields {
			if fl.Nested != nil && fl.Nested.Struct.Skipped() {
				return nil, nil, fmt.Errorf("%v: %v: embedded struct %v is not generated", fl.Field.Pos, fl.Field.Identity, fl.Nested.Struct.FQCN)
			}
		}
		files = append(files, e.header(l), e.source(l))
	}
	return files, e.warnings, nil
}

func (e *emitter) checkField(f *ir.Field, targets []string) {
	if f.Skipped() {
		return
	}
	if f.Kind == ir.KindUnknown {
		e.warnings = append(e.warnings, ir.Warningf(f.Pos, f.Identity,
			"field type %v has no native layout; field skipped", f.HostType))
		return
	}
	if ps := f.Directives.Platforms; len(ps) > 0 && !slices.ContainsFunc(ps, func(id string) bool {
		return slices.Contains(targets, id)
	}) {
		e.warnings = append(e.warnings, ir.Warningf(f.Pos, f.Identity,
			"field is restricted to platforms %v, none of which is configured", strings.Join(ps, " ")))
	}
}

func (e *emitter) header(l *Layout) emitio.File {
	s := l.Struct
	cb := &e.cb
	cb.Reset()
	cb.Banner()
	end := cb.IncludeGuard(HeaderFor(s.FQCN))
	cb.Linef(`#include "%v"`, emitio.CommonHeader)
	var nested []string
	for _, fl := range l.Fields {
		if fl.Nested != nil && !slices.Contains(nested, fl.Nested.Struct.FQCN) {
			nested = append(nested, fl.Nested.Struct.FQCN)
			cb.Linef(`#include "%v"`, HeaderFor(fl.Nested.Struct.FQCN))
		}
	}
	cb.Linef(``)
	cb.Linef(`#define %v %v`, typemap.SizeofMacro(s.FQCN), l.Size)
	for _, fl := range l.Fields {
		e.guarded(fl.Field, func() {
			cb.Linef(`#define %v %v`, offsetMacro(s, fl.Field), fl.Offset)
		})
	}
	for _, fl := range l.Fields {
		cb.Linef(``)
		e.guarded(fl.Field, func() { e.accessors(s, fl) })
	}
	cb.Linef(``)
	cb.Linef(`void cache%vFields(JNIEnv *env, jobject lpObject);`, s.Name)
	cb.Linef(`void *get%vFields(JNIEnv *env, jobject lpObject, void *lpStruct);`, s.Name)
	cb.Linef(`void set%vFields(JNIEnv *env, jobject lpObject, void *lpStruct);`, s.Name)
	cb.Linef(``)
	end()
	return cb.File(UnitName(s.FQCN) + ".h")
}

func (e *emitter) accessors(s *ir.StructMirror, fl FieldLayout) {
	cb := &e.cb
	f := fl.Field
	off := offsetMacro(s, f)
	at := fmt.Sprintf("(char *)lpStruct + %v", off)
	constAt := fmt.Sprintf("(const char *)lpStruct + %v", off)
	fn := func(head string, body string) {
		cb.Linef(`static inline %v`, head)
		cb.Linef(`{`)
		cb.Indent++
		cb.Linef(`%v`, body)
		cb.Indent--
		cb.Linef(`}`)
	}
	switch {
	case f.Kind.IsPrimitive():
		ct := primitives[f.Kind].ctype
		fn(fmt.Sprintf(`%v %v(const void *lpStruct)`, ct, getter(s, f)),
			fmt.Sprintf(`return *(const %v *)(%v);`, ct, constAt))
		fn(fmt.Sprintf(`void %v(void *lpStruct, %v value)`, setter(s, f), ct),
			fmt.Sprintf(`*(%v *)(%v) = value;`, ct, at))
	case f.Kind == ir.KindHandle:
		ct := primitives[f.Declared].ctype
		fn(fmt.Sprintf(`%v %v(const void *lpStruct)`, ct, getter(s, f)),
			fmt.Sprintf(`return (%v)(intptr_t)*(void * const *)(%v);`, ct, constAt))
		fn(fmt.Sprintf(`void %v(void *lpStruct, %v value)`, setter(s, f), ct),
			fmt.Sprintf(`*(void **)(%v) = (void *)(intptr_t)value;`, at))
	case f.Kind.IsArray():
		ct := primitives[f.Kind.Elem()].ctype
		fn(fmt.Sprintf(`%v *%v(void *lpStruct)`, ct, getter(s, f)),
			fmt.Sprintf(`return (%v *)(%v);`, ct, at))
		fn(fmt.Sprintf(`void %v(void *lpStruct, const %v *value)`, setter(s, f), ct),
			fmt.Sprintf(`memcpy(%v, value, sizeof(%v) * %v);`, at, ct, f.Directives.Count))
	case f.Kind == ir.KindStruct:
		fn(fmt.Sprintf(`void *%v(void *lpStruct)`, getter(s, f)),
			fmt.Sprintf(`return %v;`, at))
		fn(fmt.Sprintf(`void %v(void *lpStruct, const void *value)`, setter(s, f)),
			fmt.Sprintf(`memcpy(%v, value, %v);`, at, typemap.SizeofMacro(f.Struct)))
	}
}

func (e *emitter) source(l *Layout) emitio.File {
	s := l.Struct
	cb := &e.cb
	fc := s.Name + "Fc"
	cb.Reset()
	cb.Banner()
	cb.Linef(`#include "%v"`, HeaderFor(s.FQCN))
	cb.Linef(``)
	cb.Linef(`typedef struct %v_FID_CACHE {`, s.Name)
	cb.Indent++
	cb.Linef(`int cached;`)
	cb.Linef(`jclass clazz;`)
	for _, fl := range l.Fields {
		e.guarded(fl.Field, func() {
			cb.Linef(`jfieldID %v;`, fl.Field.Name)
		})
	}
	cb.Indent--
	cb.Linef(`} %v_FID_CACHE;`, s.Name)
	cb.Linef(``)
	cb.Linef(`static %v_FID_CACHE %v;`, s.Name, fc)
	cb.Linef(``)

	cb.Linef(`void cache%vFields(JNIEnv *env, jobject lpObject)`, s.Name)
	cb.Linef(`{`)
	cb.Indent++
	cb.Linef(`if (%v.cached) return;`, fc)
	cb.Linef(`%v.clazz = (*env)->NewGlobalRef(env, (*env)->GetObjectClass(env, lpObject));`, fc)
	for _, fl := range l.Fields {
		e.guarded(fl.Field, func() {
			cb.Linef(`%v.%v = (*env)->GetFieldID(env, %v.clazz, "%v", "%v");`, fc, fl.Field.Name, fc, fl.Field.Name, fl.Field.Descriptor)
		})
	}
	cb.Linef(`%v.cached = 1;`, fc)
	cb.Indent--
	cb.Linef(`}`)
	cb.Linef(``)

	cb.Linef(`void *get%vFields(JNIEnv *env, jobject lpObject, void *lpStruct)`, s.Name)
	cb.Linef(`{`)
	cb.Indent++
	cb.Linef(`if (!%v.cached) cache%vFields(env, lpObject);`, fc, s.Name)
	for _, fl := range l.Fields {
		e.guarded(fl.Field, func() { e.copyField(s, fl, true) })
	}
	cb.Linef(`return lpStruct;`)
	cb.Indent--
	cb.Linef(`}`)
	cb.Linef(``)

	cb.Linef(`void set%vFields(JNIEnv *env, jobject lpObject, void *lpStruct)`, s.Name)
	cb.Linef(`{`)
	cb.Indent++
	cb.Linef(`if (!%v.cached) cache%vFields(env, lpObject);`, fc, s.Name)
	for _, fl := range l.Fields {
		e.guarded(fl.Field, func() { e.copyField(s, fl, false) })
	}
	cb.Indent--
	cb.Linef(`}`)
	return cb.File(UnitName(s.FQCN) + ".c")
}

// copyField copies one field from the object into native memory (in)
// or back.
func (e *emitter) copyField(s *ir.StructMirror, fl FieldLayout, in bool) {
	cb := &e.cb
	f := fl.Field
	fid := s.Name + "Fc." + f.Name
	switch {
	case f.Kind.IsPrimitive(), f.Kind == ir.KindHandle:
		jni := primitives[f.Declared].jni
		if in {
			cb.Linef(`%v(lpStruct, (*env)->Get%vField(env, lpObject, %v));`, setter(s, f), jni, fid)
		} else {
			cb.Linef(`(*env)->Set%vField(env, lpObject, %v, %v(lpStruct));`, jni, fid, getter(s, f))
		}
	case f.Kind.IsArray():
		p := primitives[f.Kind.Elem()]
		dir := "Set"
		if in {
			dir = "Get"
		}
		cb.Linef(`{`)
		cb.Indent++
		cb.Linef(`%vArray lpObject1 = (%vArray)(*env)->GetObjectField(env, lpObject, %v);`, p.ctype, p.ctype, fid)
		cb.Linef(`if (lpObject1 != NULL) (*env)->%v%vArrayRegion(env, lpObject1, 0, %v, %v(lpStruct));`, dir, p.jni, f.Directives.Count, getter(s, f))
		cb.Indent--
		cb.Linef(`}`)
	case f.Kind == ir.KindStruct:
		dir := "set"
		if in {
			dir = "get"
		}
		cb.Linef(`{`)
		cb.Indent++
		cb.Linef(`jobject lpObject1 = (*env)->GetObjectField(env, lpObject, %v);`, fid)
		cb.Linef(`if (lpObject1 != NULL) %v%vFields(env, lpObject1, %v(lpStruct));`, dir, fl.Nested.Struct.Name, getter(s, f))
		cb.Indent--
		cb.Linef(`}`)
	}
}
