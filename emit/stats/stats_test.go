package stats_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/refaktor/jnigen/emit/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignStability(t *testing.T) {
	tbl := stats.NewTable()
	added := tbl.Assign([]string{"a.B.sum([I)", "a.B.neg(I)"})
	require.Equal(t, []string{"a.B.sum([I)", "a.B.neg(I)"}, added)

	reloaded, err := stats.Parse("stats.tbl", tbl.Bytes())
	require.NoError(t, err)

	// Superset in a different order: old indices stay put.
	added = reloaded.Assign([]string{"a.B.clear()", "a.B.neg(I)", "a.B.sum([I)", "a.B.abs(J)"})
	require.Equal(t, []string{"a.B.clear()", "a.B.abs(J)"}, added)
	for id, want := range map[string]int{
		"a.B.sum([I)": 0,
		"a.B.neg(I)":  1,
		"a.B.clear()": 2,
		"a.B.abs(J)":  3,
	} {
		idx, ok := reloaded.Index(id)
		require.True(t, ok, id)
		assert.Equal(t, want, idx, id)
	}
}

func TestRemovedIdentityKeepsIndex(t *testing.T) {
	tbl := stats.NewTable()
	tbl.Assign([]string{"x", "y"})
	tbl.Assign([]string{"y", "z"})
	idx, ok := tbl.Index("x")
	require.True(t, ok)
	assert.Equal(t, 0, idx)
	idx, _ = tbl.Index("z")
	assert.Equal(t, 2, idx)
	assert.Equal(t, 3, tbl.Size())
}

func TestParseErrors(t *testing.T) {
	hdr := "# jnigen stats table v1.0.0\n"
	for name, tc := range map[string]struct {
		src       string
		collision bool
	}{
		"no header":        {src: "0\ta.B.f()\n"},
		"bad version":      {src: "# jnigen stats table 1.0\n"},
		"newer major":      {src: "# jnigen stats table v2.0.0\n"},
		"bad index":        {src: hdr + "x\ta.B.f()\n"},
		"no identity":      {src: hdr + "0\n"},
		"index twice":      {src: hdr + "0\ta.B.f()\n0\ta.B.g()\n", collision: true},
		"identity twice":   {src: hdr + "0\ta.B.f()\n1\ta.B.f()\n", collision: true},
		"negative index":   {src: hdr + "-1\ta.B.f()\n"},
		"huge index":       {src: hdr + "9000000000000000000\ta.B.f()\n"},
		"index too large":  {src: hdr + "1048576\ta.B.f()\n"},
		"duplicate header": {src: hdr + hdr},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := stats.Parse("stats.tbl", []byte(tc.src))
			require.Error(t, err)
			if tc.collision {
				require.ErrorIs(t, err, stats.ErrIndexCollision)
			} else {
				require.ErrorIs(t, err, stats.ErrFormat)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jnigen_stats.tbl")

	tbl, err := stats.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Len())

	tbl.Assign([]string{"a.B.sum([I)"})
	require.NoError(t, os.WriteFile(path, tbl.Bytes(), 0o666))
	tbl, err = stats.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []stats.Entry{{Index: 0, Identity: "a.B.sum([I)"}}, tbl.Entries())
}

func TestEmit(t *testing.T) {
	tbl := stats.NewTable()
	tbl.Assign([]string{"a.B.sum([I)", "a.B.clear()"})
	files := stats.Emit(tbl)
	require.Len(t, files, 2)
	assert.Equal(t, stats.HeaderFile, files[0].Name)
	assert.Equal(t, stats.SourceFile, files[1].Name)

	h := string(files[0].Data)
	assert.True(t, strings.HasPrefix(h, "/* Code generated by jnigen. DO NOT EDIT. */\n"))
	assert.Contains(t, h, "#define JNIGEN_NATIVE_FUNCTION_COUNT 2\n")
	assert.Contains(t, h, "#define JNIGEN_NATIVE_ENTER(env, that, func) jnigen_native_function_call_count[func]++\n")

	c := string(files[1].Data)
	assert.Contains(t, c, "int jnigen_native_function_call_count[2];\n")
	assert.Contains(t, c, "\t\"a.B.sum([I)\", /* 0 */\n\t\"a.B.clear()\", /* 1 */\n")

	empty := stats.Emit(stats.NewTable())
	assert.Contains(t, string(empty[1].Data), "int jnigen_native_function_call_count[1];\n")
	assert.Contains(t, string(empty[1].Data), "\tNULL, /* 0 */\n")
}
