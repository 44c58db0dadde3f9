package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/refaktor/jnigen/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const osSource = `package org.example;

public class OS {
	public static native int sum(int[] values);
}
`

// project writes a source tree and a config with a gtk and a win32
// target and returns the config path.
func project(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src", "org", "example", "OS.java")
	require.NoError(t, os.MkdirAll(filepath.Dir(srcPath), 0o755))
	require.NoError(t, os.WriteFile(srcPath, []byte(src), 0o644))
	cfg := `version = "v1.0.0"
default = "gtk"
log-level = "error"

[[target]]
id = "gtk"
word-size = 64
source = "src"
output = "out/gtk"

[[target]]
id = "win32"
word-size = 32
source = "src"
output = "out/win32"
`
	path := filepath.Join(dir, "jnigen.toml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func runCLI(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestDefaultTarget(t *testing.T) {
	cfg := project(t, osSource)
	code, stdout, stderr := runCLI(t, "--config", cfg)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "gtk")
	assert.NotContains(t, stdout, "win32")
	assert.FileExists(t, filepath.Join(filepath.Dir(cfg), "out", "gtk", "os.c"))
	assert.NoDirExists(t, filepath.Join(filepath.Dir(cfg), "out", "win32"))
}

func TestAllTargets(t *testing.T) {
	cfg := project(t, osSource)
	code, stdout, stderr := runCLI(t, "--config="+cfg, "all")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "win32")
	for _, id := range []string{"gtk", "win32"} {
		assert.FileExists(t, filepath.Join(filepath.Dir(cfg), "out", id, "jnigen_stats.tbl"))
	}
}

func TestAllAlias(t *testing.T) {
	cfg := project(t, osSource)
	code, stdout, stderr := runCLI(t, "-c", cfg, "*")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "win32")
	assert.FileExists(t, filepath.Join(filepath.Dir(cfg), "out", "win32", "os.c"))
}

func TestFlagDefaults(t *testing.T) {
	cfg := project(t, osSource)
	parse := func(args ...string) CLI {
		t.Helper()
		var cli CLI
		k, err := newParser(&cli, &config.Config{LogLevel: "warn", Jobs: 3}, cfg, io.Discard, io.Discard)
		require.NoError(t, err)
		_, err = k.Parse(args)
		require.NoError(t, err)
		return cli
	}

	cli := parse()
	assert.Equal(t, "warn", cli.LogLevel)
	assert.Equal(t, 3, cli.Jobs)

	cli = parse("--log-level", "debug", "-j", "1")
	assert.Equal(t, "debug", cli.LogLevel)
	assert.Equal(t, 1, cli.Jobs)

	flags := filepath.Join(filepath.Dir(cfg), "jnigen.flags.toml")
	require.NoError(t, os.WriteFile(flags, []byte("jobs = 5\ngraph = true\n"), 0o644))
	cli = parse()
	assert.Equal(t, "warn", cli.LogLevel)
	assert.Equal(t, 5, cli.Jobs)
	assert.True(t, cli.Graph)

	require.NoError(t, os.WriteFile(flags, []byte("target = 1\n"), 0o644))
	var bad CLI
	_, err := newParser(&bad, &config.Config{}, cfg, io.Discard, io.Discard)
	assert.ErrorContains(t, err, "unknown configuration keys")
}

func TestOverrides(t *testing.T) {
	cfg := project(t, osSource)
	out := t.TempDir()
	code, _, stderr := runCLI(t, "-c", cfg, "--log-level", "error", "win32", out)
	require.Equal(t, exitOK, code, stderr)
	h, err := os.ReadFile(filepath.Join(out, "jnigen.h"))
	require.NoError(t, err)
	assert.Contains(t, string(h), "#define JNIGEN_WORD_SIZE 32")

	other := t.TempDir()
	src := filepath.Join(other, "java")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "org", "other"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "org", "other", "Gfx.java"),
		[]byte("package org.other;\n\npublic class Gfx {\n\tpublic static native void flush();\n}\n"), 0o644))
	code, _, stderr = runCLI(t, "-c", cfg, "gtk", filepath.Join(other, "out"), src)
	require.Equal(t, exitOK, code, stderr)
	assert.FileExists(t, filepath.Join(other, "out", "gfx.c"))
}

func TestDryRunWritesNothing(t *testing.T) {
	cfg := project(t, osSource)
	code, stdout, stderr := runCLI(t, "-c", cfg, "--dry-run", "all")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "written")
	assert.NoDirExists(t, filepath.Join(filepath.Dir(cfg), "out"))
}

func TestUsageErrors(t *testing.T) {
	cfg := project(t, osSource)
	empty := filepath.Join(t.TempDir(), "jnigen.toml")
	require.NoError(t, os.WriteFile(empty, []byte("log-level = \"error\"\n"), 0o644))

	tests := []struct {
		name string
		args []string
		err  string
	}{
		{name: "unknown target", args: []string{"-c", cfg, "cocoa"}, err: `unknown target "cocoa"`},
		{name: "override with all", args: []string{"-c", cfg, "all", t.TempDir()}, err: "need a single target"},
		{name: "missing paths", args: []string{"-c", empty}, err: "missing output directory"},
		{name: "unknown flag", args: []string{"-c", cfg, "--fast"}, err: "unknown flag --fast"},
		{name: "too many arguments", args: []string{"-c", cfg, "gtk", "a", "b", "c"}, err: "unexpected argument c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := runCLI(t, tt.args...)
			assert.Equal(t, exitUsage, code)
			assert.Empty(t, stdout)
			assert.Contains(t, stderr, "Usage: jnigen")
			assert.Contains(t, stderr, tt.err)
		})
	}
}

func TestConfigErrors(t *testing.T) {
	code, _, stderr := runCLI(t, "-c", filepath.Join(t.TempDir(), "missing.toml"))
	assert.Equal(t, exitConfig, code)
	assert.Contains(t, stderr, "missing.toml")

	bad := filepath.Join(t.TempDir(), "jnigen.toml")
	require.NoError(t, os.WriteFile(bad, []byte("targets = 1\n"), 0o644))
	code, _, stderr = runCLI(t, "-c", bad)
	assert.Equal(t, exitConfig, code)
	assert.Contains(t, stderr, "targets")
}

func TestGenerationFailure(t *testing.T) {
	cfg := project(t, "package org.example;\n\npublic class OS {\n\tpublic static native void f(Object o);\n}\n")
	code, stdout, _ := runCLI(t, "-c", cfg, "all")
	assert.Equal(t, exitFailed, code)
	assert.Contains(t, stdout, "Failed targets: gtk, win32")
	assert.Contains(t, stdout, "no mapping for semantic type")
}

func TestFindConfig(t *testing.T) {
	assert.Equal(t, "a.toml", findConfig([]string{"gtk", "--config", "a.toml"}))
	assert.Equal(t, "b.toml", findConfig([]string{"--config=b.toml"}))
	assert.Equal(t, "c.toml", findConfig([]string{"-c", "c.toml", "all"}))
	assert.Equal(t, "", findConfig([]string{"--", "--config", "x"}))
	assert.Equal(t, "", findConfig([]string{"--config"}))
}

func TestExampleProject(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.CopyFS(dir, os.DirFS(filepath.Join("examples", "gtk"))))
	cfg := filepath.Join(dir, "jnigen.toml")

	code, stdout, stderr := runCLI(t, "-c", cfg, "--log-level", "error", "all")
	require.Equal(t, exitOK, code, stderr)
	assert.NotContains(t, stdout, "Failed targets")
	for _, id := range []string{"gtk", "win32"} {
		out := filepath.Join(dir, "out", id)
		for _, name := range []string{"jnigen.h", "os.h", "os.c", "gdk_rectangle_structs.h", "gdk_rectangle_structs.c", "jnigen_stats.tbl"} {
			assert.FileExists(t, filepath.Join(out, name))
		}
	}

	code, _, stderr = runCLI(t, "-c", cfg, "--log-level", "error", "all")
	require.Equal(t, exitOK, code, stderr)
}

func TestExampleProjectDryRun(t *testing.T) {
	code, stdout, stderr := runCLI(t, "-c", filepath.Join("examples", "gtk", "jnigen.toml"), "--dry-run", "--log-level", "error", "all")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "gtk")
	assert.Contains(t, stdout, "win32")
	assert.NoDirExists(t, filepath.Join("examples", "gtk", "out"))
}
