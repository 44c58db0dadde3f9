package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const osSource = `package org.example.internal;

import java.util.List;

/** @struct align=4 */
@SuppressWarnings("unused")
public class OS extends Platform implements Runnable {
	static { System.loadLibrary("native"); }

	public static final int VERSION = (0x10 + 2) * 1, OTHER = 3;
	private List<String> names;

	/**
	 * Shows a widget.
	 * @method flags=dynamic
	 * @param widget cast=(GtkWidget *)
	 * @param count the number of things
	 */
	@Deprecated
	public static final native void _gtk_widget_show(long widget, int count);

	public static native int sum(int[] values);

	public static native String name(byte[][] raw, Callback cb, String... rest) throws Exception;

	public OS() { super(); }

	public <T> T generic(Class<T> c) { return null; }

	interface Inner { void x(); }

	enum Color { RED, GREEN; int x() { return 1; } }
}

interface Ignored {}
`

func TestParse(t *testing.T) {
	require := require.New(t)

	f, err := Parse("OS.java", []byte(osSource))
	require.NoError(err)
	require.Equal("org.example.internal", f.Package)
	require.Len(f.Classes, 1)

	c := f.Classes[0]
	require.Equal("OS", c.Name)
	require.Equal("org.example.internal.OS", c.FQCN(f.Package))
	require.NotNil(c.Doc)
	require.Equal("align=4", c.Doc.Find("struct")[0].Value)

	require.Len(c.Fields, 3)
	require.Equal("VERSION", c.Fields[0].Name)
	require.Equal("( 0x10 + 2 ) * 1", c.Fields[0].Init)
	require.Equal("OTHER", c.Fields[1].Name)
	require.Equal("3", c.Fields[1].Init)
	require.Equal("List", c.Fields[2].Type.Name)

	require.Len(c.Methods, 4)
	show := c.Methods[0]
	require.Equal("_gtk_widget_show", show.Name)
	require.True(HasModifier(show.Modifiers, "native"))
	require.False(show.HasBody)
	require.Equal("void", show.Return.Name)
	require.Len(show.Params, 2)
	require.Equal(TypeRef{Name: "long"}, show.Params[0].Type)
	require.Equal("flags=dynamic", show.Doc.Find("method")[0].Value)
	params := show.Doc.Find("param")
	require.Len(params, 2)
	require.Equal("widget", params[0].Arg)
	require.Equal("cast=(GtkWidget *)", params[0].Value)
	require.Equal(16, params[0].Pos.Line)

	sum := c.Methods[1]
	require.Equal(TypeRef{Name: "int", Dims: 1}, sum.Params[0].Type)
	require.Nil(sum.Doc)

	name := c.Methods[2]
	require.Equal(TypeRef{Name: "byte", Dims: 2}, name.Params[0].Type)
	require.Equal(TypeRef{Name: "Callback"}, name.Params[1].Type)
	require.Equal(TypeRef{Name: "String", Dims: 1}, name.Params[2].Type)

	require.Equal("generic", c.Methods[3].Name)
	require.True(c.Methods[3].HasBody)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		err  string
	}{
		{"comment", "class A { /* never closed", "A.java:1:11: unterminated comment"},
		{"string", "class A { String s = \"x\n; }", "A.java:1:22: unterminated literal"},
		{"brace", "class A {\n void f() {\n", "A.java:2:11: at \"{\": unbalanced \"{\""},
		{"member", "class A {\n int 5; }", "A.java:2:6: at \"5\": expected identifier"},
		{"top", "package a;\nint x;", "A.java:2:1: at \"int\": expected class, interface, enum or record declaration"},
		{"close", "class A {\n native void f();\n", "A.java:3:1: at end of file: expected \"}\" to close class A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("A.java", []byte(tt.src))
			require.EqualError(t, err, tt.err)
			var pErr *Error
			require.ErrorAs(t, err, &pErr)
		})
	}
}

func TestParseDirOrder(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	for _, name := range []string{"b/B.java", "a/Z.java", "a/A.java", "a/notes.txt"} {
		path := filepath.Join(dir, name)
		require.NoError(os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(os.WriteFile(path, []byte("class X {}"), 0o644))
	}
	files, err := ParseDir(dir)
	require.NoError(err)
	var names []string
	for _, f := range files {
		rel, err := filepath.Rel(dir, f.Name)
		require.NoError(err)
		names = append(names, filepath.ToSlash(rel))
	}
	require.Equal([]string{"a/A.java", "a/Z.java", "b/B.java"}, names)
}
