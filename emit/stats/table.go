// Package stats keeps the persisted table of stable instrumentation
// indices and emits the counters that use them.
package stats

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// FormatVersion is the newest table format this version understands.
const FormatVersion = "v1.0.0"

const headerPrefix = "# jnigen stats table "

// MaxIndex is the largest index a table may hold. Counter arrays are
// sized by the largest index, so a corrupted entry must not reach them.
const MaxIndex = 1<<20 - 1

var (
	// ErrIndexCollision means the persisted table is corrupted: an index
	// is assigned to two identities, or an identity to two indices.
	ErrIndexCollision = errors.New("stats index collision")
	ErrFormat         = errors.New("invalid stats table")
)

// Entry is one assigned index.
type Entry struct {
	Index    int
	Identity string
}

// Table maps declaration identities to stable indices. Indices are never
// reused: an identity that disappears from the source keeps its index.
type Table struct {
	byIdentity map[string]int
	byIndex    map[int]string
}

func NewTable() *Table {
	return &Table{
		byIdentity: make(map[string]int),
		byIndex:    make(map[int]string),
	}
}

// LoadFile reads a table. A missing file is an empty table.
func LoadFile(filename string) (*Table, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewTable(), nil
		}
		return nil, err
	}
	return Parse(filename, data)
}

// Parse reads a table from data. filename is only used in errors.
func Parse(filename string, data []byte) (*Table, error) {
	res := NewTable()
	sc := bufio.NewScanner(bytes.NewReader(data))
	sawHeader := false
	for lineNum := 1; sc.Scan(); lineNum++ {
		makeErr := func(target error, format string, a ...any) error {
			return fmt.Errorf("%v: line %v: %w: %v", filename, lineNum, target, fmt.Sprintf(format, a...))
		}

		line := sc.Text()
		if strings.HasPrefix(line, headerPrefix) {
			if sawHeader {
				return nil, makeErr(ErrFormat, "duplicate header")
			}
			sawHeader = true
			version := strings.TrimSpace(strings.TrimPrefix(line, headerPrefix))
			if !semver.IsValid(version) {
				return nil, makeErr(ErrFormat, "invalid version %q", version)
			}
			if semver.Major(version) != semver.Major(FormatVersion) {
				return nil, makeErr(ErrFormat, "unsupported version %v (want %v)", version, semver.Major(FormatVersion))
			}
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !sawHeader {
			return nil, makeErr(ErrFormat, "missing header")
		}
		idxStr, identity, ok := strings.Cut(line, "\t")
		identity = strings.TrimSpace(identity)
		if !ok || identity == "" {
			return nil, makeErr(ErrFormat, "expected \"<index>\\t<identity>\"")
		}
		idx, err := strconv.Atoi(idxStr)
		if err != nil || idx < 0 {
			return nil, makeErr(ErrFormat, "invalid index %q", idxStr)
		}
		if idx > MaxIndex {
			return nil, makeErr(ErrFormat, "index %v exceeds %v", idx, MaxIndex)
		}
		if prev, ok := res.byIndex[idx]; ok {
			return nil, makeErr(ErrIndexCollision, "index %v assigned to both %v and %v", idx, prev, identity)
		}
		if prev, ok := res.byIdentity[identity]; ok {
			return nil, makeErr(ErrIndexCollision, "%v assigned to both %v and %v", identity, prev, idx)
		}
		res.byIndex[idx] = identity
		res.byIdentity[identity] = idx
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%v: %w", filename, err)
	}
	return res, nil
}

// Index returns the index of identity.
func (t *Table) Index(identity string) (int, bool) {
	idx, ok := t.byIdentity[identity]
	return idx, ok
}

func (t *Table) Len() int {
	return len(t.byIndex)
}

// Size is one more than the largest assigned index; counter arrays have
// this many slots.
func (t *Table) Size() int {
	size := 0
	for idx := range t.byIndex {
		size = max(size, idx+1)
	}
	return size
}

// Assign gives every identity without an index the next free one, in
// the order given. Existing indices are unchanged. It returns the
// identities that were added.
func (t *Table) Assign(identities []string) []string {
	var added []string
	next := t.Size()
	for _, id := range identities {
		if _, ok := t.byIdentity[id]; ok {
			continue
		}
		t.byIdentity[id] = next
		t.byIndex[next] = id
		added = append(added, id)
		next++
	}
	return added
}

// Entries returns all entries sorted by index.
func (t *Table) Entries() []Entry {
	res := make([]Entry, 0, len(t.byIndex))
	for _, idx := range slices.Sorted(maps.Keys(t.byIndex)) {
		res = append(res, Entry{Index: idx, Identity: t.byIndex[idx]})
	}
	return res
}

// Bytes returns the persisted form of the table.
func (t *Table) Bytes() []byte {
	var res bytes.Buffer
	fmt.Fprintf(&res, "%v%v\n", headerPrefix, FormatVersion)
	fmt.Fprintln(&res, "# Stable instrumentation indices, one \"<index>\\t<identity>\" per line.")
	fmt.Fprintln(&res, "# Indices are never reused. Do not edit unless you also rebuild every consumer.")
	for _, e := range t.Entries() {
		fmt.Fprintf(&res, "%v\t%v\n", e.Index, e.Identity)
	}
	return res.Bytes()
}
