package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Change is what happens to an output file.
type Change int

const (
	Unchanged Change = iota
	Created
	Updated
)

func (c Change) String() string {
	switch c {
	case Unchanged:
		return "unchanged"
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return fmt.Sprintf("Change(%d)", int(c))
	}
}

// FileResult is the fate of one output file.
type FileResult struct {
	Path   string
	Change Change
}

// diff compares every output with the file on disk.
func diff(outputs []output) ([]FileResult, error) {
	res := make([]FileResult, len(outputs))
	for i, o := range outputs {
		res[i].Path = o.path
		old, err := os.ReadFile(o.path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			res[i].Change = Created
		case err != nil:
			return nil, err
		case bytes.Equal(old, o.data):
			res[i].Change = Unchanged
		default:
			res[i].Change = Updated
		}
	}
	return res, nil
}

// write writes the changed outputs. Unchanged files are not touched, so
// their modification times stay as they are.
func write(outputs []output, changes []FileResult) error {
	for i, o := range outputs {
		if changes[i].Change == Unchanged {
			continue
		}
		if err := writeFileAtomic(o.path, o.data); err != nil {
			return err
		}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(f.Name())
		}
	}()
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}
