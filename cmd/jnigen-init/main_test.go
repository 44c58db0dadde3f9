package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/refaktor/jnigen/config"
	"github.com/refaktor/jnigen/metadata"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	src := filepath.Join(dir, "src", "org", "example", "OS.java")
	require.NoError(os.MkdirAll(filepath.Dir(src), 0o755))
	require.NoError(os.WriteFile(src, []byte(`package org.example;

public class OS {
	public static native int sum(int[] values);
	public static native void show(long widget, String title);
}
`), 0o644))

	var stdout, stderr bytes.Buffer
	code := run([]string{"-C", dir, "--target", "gtk", "--word-size", "64"}, &stdout, &stderr)
	require.Equal(0, code, stderr.String())
	require.Contains(stdout.String(), "listing 2 native methods")

	cfg, err := config.Load(filepath.Join(dir, "jnigen.toml"))
	require.NoError(err)
	require.Equal("gtk", cfg.Default)
	tgt, err := cfg.Lookup("gtk")
	require.NoError(err)
	require.Equal(64, tgt.WordSize)
	require.Equal(filepath.Join(dir, "src"), tgt.Source)
	require.Equal(filepath.Join(dir, "out", "gtk"), tgt.Output)
	require.Equal(filepath.Join(dir, "jnigen.yaml"), tgt.Metadata)

	data, err := os.ReadFile(tgt.Metadata)
	require.NoError(err)
	require.Contains(string(data), `"sum([I)": {}`)
	require.Contains(string(data), `"show(JLjava/lang/String;)": {}`)

	s, err := metadata.Load(tgt.Metadata)
	require.NoError(err)
	_, ok, err := s.Lookup(metadata.KindMethod, "org.example.OS", "sum", "org.example.OS.sum([I)")
	require.NoError(err)
	require.True(ok)

	code = run([]string{"-C", dir}, &stdout, &stderr)
	require.Equal(1, code)
	require.Contains(stderr.String(), "use --force to overwrite")

	stderr.Reset()
	code = run([]string{"-C", dir, "--force", "missing"}, &stdout, &stderr)
	require.Equal(0, code, stderr.String())
	data, err = os.ReadFile(tgt.Metadata)
	require.NoError(err)
	require.Contains(string(data), "classes: {}")
}

func TestInitInvalidWordSize(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"-C", t.TempDir(), "--word-size", "16"}, &stdout, &stderr)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "word-size must be 32 or 64")
}
