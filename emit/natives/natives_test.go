package natives_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/refaktor/jnigen/config"
	"github.com/refaktor/jnigen/emit/emitio"
	"github.com/refaktor/jnigen/emit/natives"
	"github.com/refaktor/jnigen/emit/stats"
	"github.com/refaktor/jnigen/ir"
	"github.com/refaktor/jnigen/metadata"
	"github.com/refaktor/jnigen/parser"
	"github.com/refaktor/jnigen/typemap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var gtk64 = config.Target{ID: "gtk", WordSize: 64}

type result struct {
	files map[string]string
	table *stats.Table
}

func generate(t *testing.T, meta string, srcs ...string) result {
	t.Helper()
	var files []*parser.File
	for i, src := range srcs {
		f, err := parser.Parse(string(rune('A'+i))+".java", []byte(src))
		require.NoError(t, err)
		files = append(files, f)
	}
	store := metadata.Empty()
	if meta != "" {
		path := filepath.Join(t.TempDir(), "meta.yaml")
		require.NoError(t, os.WriteFile(path, []byte(meta), 0o644))
		var err error
		store, err = metadata.Load(path)
		require.NoError(t, err)
	}
	m, err := ir.Build(files, store)
	require.NoError(t, err)
	engine, err := typemap.New(typemap.DefaultRules(), nil)
	require.NoError(t, err)
	mappings, err := engine.MapModel(m, gtk64)
	require.NoError(t, err)

	table := stats.NewTable()
	table.Assign(stats.Identities(m))
	out, err := natives.Emit(m, mappings, natives.Options{Target: gtk64, Index: table.Index})
	require.NoError(t, err)
	res := result{files: map[string]string{}, table: table}
	for _, f := range out {
		res.files[f.Name] = string(f.Data)
	}
	return res
}

const sumSource = `package org.example;

public class OS {
	public static native int sum(int[] values);
}
`

func TestSum(t *testing.T) {
	res := generate(t, "", sumSource)
	require.Len(t, res.files, 2)

	assert.Equal(t, `/* Code generated by jnigen. DO NOT EDIT. */

#ifndef JNIGEN_OS_H
#define JNIGEN_OS_H

#include "jnigen.h"

JNIEXPORT jint JNICALL Java_org_example_OS_sum(JNIEnv *env, jclass that, jintArray arg0);

jint OS_register_natives(JNIEnv *env);

#endif /* JNIGEN_OS_H */
`, res.files["os.h"])

	assert.Equal(t, `/* Code generated by jnigen. DO NOT EDIT. */

#include "os.h"

JNIEXPORT jint JNICALL Java_org_example_OS_sum(JNIEnv *env, jclass that, jintArray arg0)
{
	jint *lparg0=NULL;
	jint rc = 0;
	JNIGEN_NATIVE_ENTER(env, that, 0);
	if (arg0) if ((lparg0 = (*env)->GetIntArrayElements(env, arg0, NULL)) == NULL) goto fail;
	rc = (jint)sum(lparg0);
fail:
	if (arg0 && lparg0) (*env)->ReleaseIntArrayElements(env, arg0, lparg0, 0);
	JNIGEN_NATIVE_EXIT(env, that, 0);
	return rc;
}

static const JNINativeMethod OS_natives[] = {
	{"sum", "([I)I", (void *)Java_org_example_OS_sum},
};

jint OS_register_natives(JNIEnv *env)
{
	jint rc;
	jclass clazz = (*env)->FindClass(env, "org/example/OS");
	if (clazz == NULL) return JNI_ERR;
	rc = (*env)->RegisterNatives(env, clazz, OS_natives, (jint)(sizeof(OS_natives) / sizeof(OS_natives[0])));
	(*env)->DeleteLocalRef(env, clazz);
	return rc;
}
`, res.files["os.c"])
}

// lines returns the trimmed lines of the body of entry point fn.
func lines(t *testing.T, src, fn string) []string {
	t.Helper()
	start := strings.Index(src, fn+"(JNIEnv")
	require.GreaterOrEqual(t, start, 0, fn)
	body := src[start:]
	body = body[strings.Index(body, "\n{\n")+3:]
	body = body[:strings.Index(body, "\n}\n")]
	var res []string
	for _, l := range strings.Split(body, "\n") {
		res = append(res, strings.TrimSpace(l))
	}
	return res
}

func indexOf(t *testing.T, ls []string, substr string) int {
	t.Helper()
	for i, l := range ls {
		if strings.Contains(l, substr) {
			return i
		}
	}
	t.Fatalf("no line containing %q in:\n%v", substr, strings.Join(ls, "\n"))
	return -1
}

func TestReleaseOrder(t *testing.T) {
	res := generate(t, "", `package org.example;

public class OS {
	/** @param c flags=critical */
	public static native void copy(int[] a, byte[] b, long[] c, int n);
}
`)
	body := lines(t, res.files["os.c"], "Java_org_example_OS_copy")

	acqA := indexOf(t, body, "GetIntArrayElements(env, arg0")
	acqB := indexOf(t, body, "GetByteArrayElements(env, arg1")
	acqC := indexOf(t, body, "GetPrimitiveArrayCritical(env, arg2")
	call := indexOf(t, body, "copy(lparg0, lparg1, lparg2, arg3);")
	fail := indexOf(t, body, "fail:")
	relC := indexOf(t, body, "ReleasePrimitiveArrayCritical(env, arg2, lparg2, 0)")
	relB := indexOf(t, body, "ReleaseByteArrayElements(env, arg1, lparg1, 0)")
	relA := indexOf(t, body, "ReleaseIntArrayElements(env, arg0, lparg0, 0)")
	exit := indexOf(t, body, "JNIGEN_NATIVE_EXIT")

	// Acquisitions in order, critical last; the error path jumps to the
	// label, so normal and early exits share the reversed releases.
	assert.True(t, acqA < acqB && acqB < acqC && acqC < call && call < fail)
	assert.True(t, fail < relC && relC < relB && relB < relA && relA < exit)
	for _, i := range []int{acqA, acqB, acqC} {
		assert.True(t, strings.HasSuffix(body[i], "goto fail;"), body[i])
	}
	for _, i := range []int{relA, relB, relC} {
		assert.True(t, strings.HasPrefix(body[i], "if (arg"), body[i])
	}
}

func TestBoundsBeforeAcquire(t *testing.T) {
	res := generate(t, "", `package org.example;

public class OS {
	/**
	 * @method flags=critical
	 * @param buf length=len
	 */
	public static native int fill(byte[] buf, int len, String name);
}
`)
	body := lines(t, res.files["os.c"], "Java_org_example_OS_fill")
	bounds := indexOf(t, body, "GetArrayLength(env, arg0) < arg1) goto fail;")
	str := indexOf(t, body, "GetStringUTFChars(env, arg2")
	crit := indexOf(t, body, "GetPrimitiveArrayCritical(env, arg0")
	assert.True(t, bounds < str && str < crit)
}

func TestDynamicConstAndOverloads(t *testing.T) {
	res := generate(t, "", `package org.example;

public class OS {
	/**
	 * @method flags=dynamic
	 * @param widget cast=(GtkWidget *)
	 */
	public static final native void _gtk_widget_show(long widget);
	/** @method flags=const */
	public static final native int GTK_TYPE_WIDGET();
	/** @method flags=dynamic,cast=(GtkWidget *) */
	public static final native long _gtk_label_new(String text);
	public static native int overload(int a);
	public static native int overload(String s);
	public native void paint(long gc);
}
`)
	c := res.files["os.c"]
	assert.Contains(t, c, "JNIEXPORT void JNICALL Java_org_example_OS__1gtk_1widget_1show(JNIEnv *env, jclass that, jlong arg0)\n{\n"+
		"\tJNIGEN_NATIVE_ENTER(env, that, 0);\n"+
		"\t{\n"+
		"\t\tJNIGEN_LOAD_FUNCTION(fp, gtk_widget_show)\n"+
		"\t\tif (fp) {\n"+
		"\t\t\t((void (*)(GtkWidget *))fp)((GtkWidget *)(intptr_t)arg0);\n"+
		"\t\t}\n"+
		"\t}\n"+
		"\tJNIGEN_NATIVE_EXIT(env, that, 0);\n"+
		"}\n")
	assert.Contains(t, c, "\trc = (jint)GTK_TYPE_WIDGET;\n")
	assert.Contains(t, c, "\t\t\trc = (jlong)(intptr_t)((GtkWidget * (*)(const char *))fp)(lparg0);\n")
	assert.Contains(t, c, "Java_org_example_OS_overload__I(JNIEnv *env, jclass that, jint arg0)")
	assert.Contains(t, c, "Java_org_example_OS_overload__Ljava_lang_String_2(JNIEnv *env, jclass that, jstring arg0)")
	assert.Contains(t, c, "Java_org_example_OS_paint(JNIEnv *env, jobject that, jlong arg0)")
	assert.Contains(t, c, "\t{\"overload\", \"(Ljava/lang/String;)I\", (void *)Java_org_example_OS_overload__Ljava_lang_String_2},\n")
}

func TestMetadataFragments(t *testing.T) {
	res := generate(t, `
classes:
  org.example.OS:
    methods:
      "twice(I)":
        body: "rc = arg0 * 2;"
      "sum([I)":
        flags: [no_stats]
        pre-call: "lock();"
        post-call: "unlock();"
`, `package org.example;

public class OS {
	public static native int twice(int v);
	public static native int sum(int[] values);
	/** @method flags=no_gen */
	public static native void gone();
}
`)
	c := res.files["os.c"]
	assert.Contains(t, c, "JNIEXPORT jint JNICALL Java_org_example_OS_twice(JNIEnv *env, jclass that, jint arg0)\n{\n"+
		"\tjint rc = 0;\n"+
		"\tJNIGEN_NATIVE_ENTER(env, that, 0);\n"+
		"\trc = arg0 * 2;\n"+
		"\tJNIGEN_NATIVE_EXIT(env, that, 0);\n"+
		"\treturn rc;\n"+
		"}\n")

	body := lines(t, c, "Java_org_example_OS_sum")
	assert.NotContains(t, strings.Join(body, "\n"), "JNIGEN_NATIVE_ENTER")
	pre := indexOf(t, body, "lock();")
	call := indexOf(t, body, "rc = (jint)sum(lparg0);")
	post := indexOf(t, body, "unlock();")
	assert.True(t, pre < call && call < post)

	assert.NotContains(t, c, "gone")
	_, counted := res.table.Index("org.example.OS.sum([I)")
	assert.False(t, counted)
}

func TestStructParameters(t *testing.T) {
	res := generate(t, "", `package org.example;

public class OS {
	public static native void get(GdkRectangle rect);
	/** @param rect flags=no_in */
	public static native void fetch(GdkRectangle rect);
	/** @param rect flags=no_in no_out */
	public static native void scratch(GdkRectangle rect);
}
`, `package org.example;

public class GdkRectangle {
	public int x, y, width, height;
}
`)
	c := res.files["os.c"]
	assert.Contains(t, c, "#include \"os.h\"\n#include \"gdk_rectangle_structs.h\"\n")
	assert.Contains(t, c, "\tjlong _arg0[(GDK_RECTANGLE_SIZEOF + 7) / 8];\n\tvoid *lparg0=NULL;\n")
	assert.Contains(t, c, "\tif (arg0) if ((lparg0 = getGdkRectangleFields(env, arg0, _arg0)) == NULL) goto fail;\n")
	assert.Contains(t, c, "\tif (arg0 && lparg0) setGdkRectangleFields(env, arg0, lparg0);\n")

	fetch := lines(t, c, "Java_org_example_OS_fetch")
	indexOf(t, fetch, "if (arg0) lparg0 = _arg0;")
	indexOf(t, fetch, "setGdkRectangleFields")

	scratch := strings.Join(lines(t, c, "Java_org_example_OS_scratch"), "\n")
	assert.NotContains(t, scratch, "Fields")
	assert.NotContains(t, scratch, "fail:")
}

func TestSkippedStruct(t *testing.T) {
	src := `package org.example;

public class OS {
	public static native void get(Rect r);
}
`
	var files []*parser.File
	for i, s := range []string{src, "package org.example;\n/** @struct flags=no_gen */\npublic class Rect { public int x; }\n"} {
		f, err := parser.Parse(string(rune('A'+i))+".java", []byte(s))
		require.NoError(t, err)
		files = append(files, f)
	}
	m, err := ir.Build(files, nil)
	require.NoError(t, err)
	engine, err := typemap.New(typemap.DefaultRules(), nil)
	require.NoError(t, err)
	mappings, err := engine.MapModel(m, gtk64)
	require.NoError(t, err)
	_, err = natives.Emit(m, mappings, natives.Options{Target: gtk64})
	require.ErrorIs(t, err, natives.ErrStructNotGenerated)
}

func TestEmptyUnit(t *testing.T) {
	res := generate(t, "", `package org.example;

public class OS {
	/** @method flags=no_gen */
	public static native void gone();
}
`)
	c := res.files["os.c"]
	assert.NotContains(t, c, "JNINativeMethod")
	assert.Contains(t, c, "jint OS_register_natives(JNIEnv *env)\n{\n\treturn JNI_OK;\n}\n")
}

func TestIdempotent(t *testing.T) {
	a := generate(t, "", sumSource)
	b := generate(t, "", sumSource)
	assert.Equal(t, a.files, b.files)
}

func TestCommonHeader(t *testing.T) {
	f := natives.EmitCommon(config.Target{ID: "win32", WordSize: 32})
	assert.Equal(t, emitio.CommonHeader, f.Name)
	h := string(f.Data)
	assert.Contains(t, h, "#define JNIGEN_PLATFORM_WIN32 1\n#define JNIGEN_WORD_SIZE 32\n")
	assert.Contains(t, h, "#define JNIGEN_LOAD_FUNCTION(var, name) \\\n")
	assert.Contains(t, h, "#include \"jnigen_stats.h\"\n")
}
