package checkpoint

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/johndauphine/rowmigrate/internal/errclass"
)

// Load reads the JSON array at path into a Set. A missing file is created
// holding an empty array. A file that is not a JSON array is a FILE error.
func Load(fs afero.Fs, path string) (*Set, error) {
	ids, err := readIDs(fs, path)
	if errors.Is(err, os.ErrNotExist) {
		if err := writeIDs(fs, path, []any{}); err != nil {
			return nil, errclass.New(errclass.File, fmt.Sprintf("File create error: %v", err), err,
				map[string]any{"filePath": path, "operation": "create"})
		}
		return NewSet(), nil
	}
	if err != nil {
		return nil, errclass.New(errclass.File, fmt.Sprintf("File read error: %v", err), err,
			map[string]any{"filePath": path, "operation": "read"})
	}
	return NewSet(ids...), nil
}

// Peek is Load without creating a missing file.
func Peek(fs afero.Fs, path string) (*Set, error) {
	ids, err := readIDs(fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return NewSet(), nil
	}
	if err != nil {
		return nil, errclass.New(errclass.File, fmt.Sprintf("File read error: %v", err), err,
			map[string]any{"filePath": path, "operation": "read"})
	}
	return NewSet(ids...), nil
}

// Append re-reads the array at path, appends id and rewrites the file.
// A missing file is treated as empty. The rewrite goes through a temp file and
// a rename so a crash leaves either the old or the new array on disk.
// Callers must serialize appends to the same path.
func Append(fs afero.Fs, path string, id any) error {
	ids, err := readIDs(fs, path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reading checkpoint %s: %w", path, err)
	}
	ids = append(ids, id)
	if err := writeIDs(fs, path, ids); err != nil {
		return fmt.Errorf("writing checkpoint %s: %w", path, err)
	}
	return nil
}

func readIDs(fs afero.Fs, path string) ([]any, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var ids []any
	if err := dec.Decode(&ids); err != nil {
		return nil, fmt.Errorf("checkpoint %s is not a JSON array: %w", path, err)
	}
	if ids == nil {
		// literal null
		return nil, fmt.Errorf("checkpoint %s is not a JSON array", path)
	}
	return ids, nil
}

func writeIDs(fs afero.Fs, path string, ids []any) error {
	data, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, data, 0644); err != nil {
		return err
	}
	if err := fs.Rename(tmp, path); err != nil {
		fs.Remove(tmp)
		return err
	}
	return nil
}
