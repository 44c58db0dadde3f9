package structs_test

import (
	"testing"

	"github.com/refaktor/jnigen/config"
	"github.com/refaktor/jnigen/emit/emitio"
	"github.com/refaktor/jnigen/emit/structs"
	"github.com/refaktor/jnigen/ir"
	"github.com/refaktor/jnigen/parser"
	"github.com/refaktor/jnigen/typemap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const innerSource = `package org.example;

public class Inner {
	public short a;
	public int b;
}
`

const outerSource = `package org.example;

public class Outer {
	public static final int sizeof = 32;
	public byte flag;
	/** @field flags=handle */
	public long window;
	public Inner inner;
	/** @field count=3 */
	public char[] name;
	/** @field platform=gtk */
	public int gtkOnly;
	/** @field platform=carbon */
	public int carbonOnly;
	public String label;
}
`

var (
	gtk64 = config.Target{ID: "gtk", WordSize: 64}
	win32 = config.Target{ID: "win32", WordSize: 32}
)

func build(t *testing.T, srcs ...string) *ir.Model {
	t.Helper()
	var files []*parser.File
	for i, src := range srcs {
		f, err := parser.Parse(string(rune('A'+i))+".java", []byte(src))
		require.NoError(t, err)
		files = append(files, f)
	}
	m, err := ir.Build(files, nil)
	require.NoError(t, err)
	return m
}

func offsets(l *structs.Layout) map[string]int {
	res := map[string]int{}
	for _, fl := range l.Fields {
		res[fl.Field.Name] = fl.Offset
	}
	return res
}

func TestLayout(t *testing.T) {
	m := build(t, innerSource, outerSource)
	outer := m.Struct("org.example.Outer")
	require.NotNil(t, outer)

	l, err := structs.ComputeLayout(m, outer, gtk64)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"flag": 0, "window": 8, "inner": 16, "name": 24, "gtkOnly": 32}, offsets(l))
	assert.Equal(t, 40, l.Size)
	assert.Equal(t, 8, l.Align)

	l, err = structs.ComputeLayout(m, outer, win32)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"flag": 0, "window": 4, "inner": 8, "name": 16}, offsets(l))
	assert.Equal(t, 24, l.Size)
}

func TestAlignOverride(t *testing.T) {
	m := build(t, `package p;
/** @struct align=16 */
public class S {
	public byte a;
	/** @field align=8 */
	public int b;
}
`)
	l, err := structs.ComputeLayout(m, m.Struct("p.S"), gtk64)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 0, "b": 8}, offsets(l))
	assert.Equal(t, 16, l.Size)
}

func TestSelfEmbedding(t *testing.T) {
	m := build(t, `package p;
public class Node {
	public int v;
	public Node next;
}
`)
	_, _, err := structs.Emit(m, gtk64, []string{"gtk"})
	require.ErrorIs(t, err, structs.ErrLayout)
}

func TestIntHandleField(t *testing.T) {
	m := build(t, `package p;
public class W {
	/** @field flags=handle */
	public int h;
}
`)
	_, _, err := structs.Emit(m, gtk64, []string{"gtk", "win32"})
	require.ErrorIs(t, err, typemap.ErrHandleWidth)
	require.ErrorContains(t, err, "p.W: field h")

	l, err := structs.ComputeLayout(m, m.Struct("p.W"), win32)
	require.NoError(t, err)
	assert.Equal(t, 4, l.Size)
}

func fileMap(files []emitio.File) map[string]string {
	res := map[string]string{}
	for _, f := range files {
		res[f.Name] = string(f.Data)
	}
	return res
}

func TestEmit(t *testing.T) {
	m := build(t, innerSource, outerSource)
	files, warnings, err := structs.Emit(m, gtk64, []string{"gtk", "win32"})
	require.NoError(t, err)

	fm := fileMap(files)
	require.Len(t, fm, 4)
	for _, name := range []string{"inner_structs.h", "inner_structs.c", "outer_structs.h", "outer_structs.c"} {
		require.Contains(t, fm, name)
	}

	h := fm["outer_structs.h"]
	assert.Contains(t, h, "#ifndef JNIGEN_OUTER_STRUCTS_H\n")
	assert.Contains(t, h, "#include \"jnigen.h\"\n#include \"inner_structs.h\"\n")
	assert.Contains(t, h, "#define OUTER_SIZEOF 40\n")
	assert.Contains(t, h, "#define OUTER_WINDOW_OFFSET 8\n")
	assert.Contains(t, h, "#if defined(JNIGEN_PLATFORM_GTK)\n#define OUTER_GTK_ONLY_OFFSET 32\n#endif\n")
	assert.Contains(t, h, "static inline jlong Outer_get_window(const void *lpStruct)\n{\n\treturn (jlong)(intptr_t)*(void * const *)((const char *)lpStruct + OUTER_WINDOW_OFFSET);\n}\n")
	assert.Contains(t, h, "static inline void Outer_set_inner(void *lpStruct, const void *value)\n{\n\tmemcpy((char *)lpStruct + OUTER_INNER_OFFSET, value, INNER_SIZEOF);\n}\n")
	assert.Contains(t, h, "void *getOuterFields(JNIEnv *env, jobject lpObject, void *lpStruct);\n")
	assert.NotContains(t, h, "carbonOnly")
	assert.NotContains(t, h, "label")

	c := fm["outer_structs.c"]
	assert.Contains(t, c, "\tOuterFc.name = (*env)->GetFieldID(env, OuterFc.clazz, \"name\", \"[C\");\n")
	assert.Contains(t, c, "\tOuter_set_window(lpStruct, (*env)->GetLongField(env, lpObject, OuterFc.window));\n")
	assert.Contains(t, c, "\t\tif (lpObject1 != NULL) getInnerFields(env, lpObject1, Outer_get_inner(lpStruct));\n")
	assert.Contains(t, c, "\t\tif (lpObject1 != NULL) (*env)->GetCharArrayRegion(env, lpObject1, 0, 3, Outer_get_name(lpStruct));\n")
	assert.Contains(t, c, "\t\tif (lpObject1 != NULL) (*env)->SetCharArrayRegion(env, lpObject1, 0, 3, Outer_get_name(lpStruct));\n")
	assert.Contains(t, c, "\t(*env)->SetByteField(env, lpObject, OuterFc.flag, Outer_get_flag(lpStruct));\n")
	assert.Contains(t, c, "#if defined(JNIGEN_PLATFORM_GTK)\n\tjfieldID gtkOnly;\n#endif\n")

	require.Len(t, warnings, 3)
	assert.Equal(t, "org.example.Outer#carbonOnly", warnings[0].Identity)
	assert.Contains(t, warnings[0].Msg, "none of which is configured")
	assert.Equal(t, "org.example.Outer#label", warnings[1].Identity)
	assert.Contains(t, warnings[1].Msg, "no native layout")
	assert.Equal(t, "org.example.Outer", warnings[2].Identity)
	assert.Equal(t, "declared sizeof 32 differs from computed size 40 on target gtk", warnings[2].Msg)
}

func TestEmitDeterministic(t *testing.T) {
	m := build(t, innerSource, outerSource)
	a, _, err := structs.Emit(m, win32, []string{"win32"})
	require.NoError(t, err)
	b, _, err := structs.Emit(m, win32, []string{"win32"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotContains(t, fileMap(a)["outer_structs.h"], "GTK_ONLY")
}
