// Package config loads jnigen.toml: the generation targets and the
// defaults shared by every run.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/mod/semver"
)

// FormatVersion is the newest config format this version understands.
const FormatVersion = "v1.0.0"

// AllTargets selects every configured target. "*" is accepted as well.
const AllTargets = "all"

var (
	ErrUnknownTarget = errors.New("unknown target")
	ErrNoTargets     = errors.New("no targets configured")
)

// Target is one generation target: a platform, where to read sources and
// metadata from and where to write output.
type Target struct {
	ID string `toml:"id"`
	// WordSize is the native pointer width in bits (32 or 64).
	WordSize int    `toml:"word-size"`
	Output   string `toml:"output"`
	Source   string `toml:"source"`
	// Metadata is an optional metadata overlay file.
	Metadata string `toml:"metadata,omitempty"`
	// StatsTable defaults to jnigen_stats.tbl in Output.
	StatsTable string `toml:"stats-table,omitempty"`
}

// PlatformMacro is the preprocessor symbol defined for this target's
// platform, e.g. JNIGEN_PLATFORM_GTK.
func (t Target) PlatformMacro() string {
	return PlatformMacro(t.ID)
}

// PlatformMacro returns the preprocessor symbol for a platform id. The
// id is upper-cased as a whole, so "win32" becomes WIN32.
func PlatformMacro(id string) string {
	return "JNIGEN_PLATFORM_" + strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, id)
}

// PointerSize returns the pointer size in bytes.
func (t Target) PointerSize() int {
	return t.WordSize / 8
}

// StatsTablePath returns where the stats table is persisted.
func (t Target) StatsTablePath() string {
	if t.StatsTable != "" {
		return t.StatsTable
	}
	return filepath.Join(t.Output, "jnigen_stats.tbl")
}

// Validate checks that t can be generated for.
func (t Target) Validate() error {
	if t.ID == "" {
		return errors.New("target: missing id")
	}
	if t.WordSize != 32 && t.WordSize != 64 {
		return fmt.Errorf("target %v: word-size must be 32 or 64, got %v", t.ID, t.WordSize)
	}
	if t.Output == "" {
		return fmt.Errorf("target %v: missing output directory", t.ID)
	}
	if t.Source == "" {
		return fmt.Errorf("target %v: missing source root", t.ID)
	}
	return nil
}

// HostTarget returns a target for the platform this program runs on.
func HostTarget() Target {
	id := runtime.GOOS
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd", "netbsd":
		id = "gtk"
	case "darwin":
		id = "cocoa"
	case "windows":
		id = "win32"
	}
	return Target{ID: id, WordSize: strconv.IntSize}
}

type Config struct {
	Version string   `toml:"version"`
	Imports []string `toml:"imports,omitempty"`
	// Default is the target generated when none is named.
	Default string   `toml:"default,omitempty"`
	Targets []Target `toml:"target"`
	// Mapping overrides the native type name of a semantic kind, e.g.
	// handle = "jlong".
	Mapping map[string]string `toml:"mapping,omitempty"`
	// CLI flag defaults, read by the command line parser.
	LogLevel string `toml:"log-level,omitempty"`
	Jobs     int    `toml:"jobs,omitempty"`
}

type Error struct {
	filePath string
	err      error  // short, single-line error
	str      string // full, multi-line error string, or err string, if none
}

// Error returns a short error message.
func (e *Error) Error() string {
	return e.filePath + ": " + e.err.Error()
}

// String returns the full multi-line error string.
func (e *Error) String() string {
	if e.str != "" {
		return "Error in file " + strconv.Quote(e.filePath) + ":\n" + e.str
	} else {
		return e.Error()
	}
}

func (e *Error) Unwrap() error {
	return e.err
}

// Load reads a config file. Relative paths in the file, including
// imports, are relative to the file's directory.
func Load(path string) (_ *Config, err error) {
	defer func() {
		if err != nil && !errors.As(err, new(*Error)) {
			if tErr := (&toml.DecodeError{}); errors.As(err, &tErr) {
				err = &Error{filePath: path, err: err, str: tErr.String()}
			} else if tErr := (&toml.StrictMissingError{}); errors.As(err, &tErr) {
				err = &Error{filePath: path, err: err, str: tErr.String()}
			} else {
				err = &Error{filePath: path, err: err}
			}
		}
	}()

	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	c := &Config{}
	err = toml.NewDecoder(bytes.NewReader(file)).
		DisallowUnknownFields().
		Decode(&c)
	if err != nil {
		return nil, err
	}
	if c.Version != "" {
		if !semver.IsValid(c.Version) {
			return nil, fmt.Errorf("version: invalid semantic version %q", c.Version)
		}
		if semver.Compare(semver.Major(c.Version), semver.Major(FormatVersion)) > 0 {
			return nil, fmt.Errorf("version: format %v is newer than supported %v", c.Version, FormatVersion)
		}
	}
	dir := filepath.Dir(path)
	for i := range c.Targets {
		t := &c.Targets[i]
		t.Output = resolvePath(dir, t.Output)
		t.Source = resolvePath(dir, t.Source)
		t.Metadata = resolvePath(dir, t.Metadata)
		t.StatsTable = resolvePath(dir, t.StatsTable)
	}

	var importedCs []*Config // collect imported files first so their imports don't leak into our file's imports
	for _, imp := range c.Imports {
		newC, err := Load(resolvePath(dir, imp))
		if err != nil {
			return nil, err
		}
		importedCs = append(importedCs, newC)
	}
	for _, newC := range importedCs {
		if err := mergo.Merge(c, newC, mergo.WithAppendSlice); err != nil {
			return nil, err
		}
	}

	seen := map[string]bool{}
	for _, t := range c.Targets {
		if seen[t.ID] {
			return nil, fmt.Errorf("duplicate target %q", t.ID)
		}
		seen[t.ID] = true
	}
	return c, nil
}

func resolvePath(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Lookup returns the target called id.
func (c *Config) Lookup(id string) (Target, error) {
	for _, t := range c.Targets {
		if t.ID == id {
			return t, nil
		}
	}
	return Target{}, fmt.Errorf("%w %q", ErrUnknownTarget, id)
}

// Select resolves a target argument: "" is the default target and "all"
// or "*" is every configured target.
func (c *Config) Select(arg string) ([]Target, error) {
	switch arg {
	case AllTargets, "*":
		if len(c.Targets) == 0 {
			return nil, ErrNoTargets
		}
		return c.Targets, nil
	case "":
		if c.Default != "" {
			t, err := c.Lookup(c.Default)
			if err != nil {
				return nil, fmt.Errorf("default: %w", err)
			}
			return []Target{t}, nil
		}
		if len(c.Targets) == 1 {
			return c.Targets, nil
		}
		host := HostTarget()
		if t, err := c.Lookup(host.ID); err == nil {
			return []Target{t}, nil
		}
		return []Target{host}, nil
	default:
		t, err := c.Lookup(arg)
		if err != nil {
			return nil, err
		}
		return []Target{t}, nil
	}
}
