package checkpoint

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// FileStore implements Store with JSON array files on an afero filesystem.
type FileStore struct {
	fs    afero.Fs
	base  string
	scope Scope
	mu    sync.Mutex
}

// NewFileStore creates a file-backed store rooted at base (for example
// "checkpoint.json"). An empty scope defaults to ScopeMigration.
func NewFileStore(fs afero.Fs, base string, scope Scope) *FileStore {
	if scope == "" {
		scope = ScopeMigration
	}
	if base == "" {
		base = "checkpoint.json"
	}
	return &FileStore{fs: fs, base: base, scope: scope}
}

// Path returns the checkpoint file used for migration.
// With ScopeMigration, "checkpoint.json" becomes "checkpoint.<migration>.json".
func (s *FileStore) Path(migration string) string {
	if s.scope == ScopeShared {
		return s.base
	}
	ext := filepath.Ext(s.base)
	return strings.TrimSuffix(s.base, ext) + "." + safeName(migration) + ext
}

// Load reads (or creates) the checkpoint file for migration.
func (s *FileStore) Load(ctx context.Context, migration string) (*Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Load(s.fs, s.Path(migration))
}

// Peek reads migration's checkpoint file, treating a missing one as empty.
func (s *FileStore) Peek(ctx context.Context, migration string) (*Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Peek(s.fs, s.Path(migration))
}

// Append records id in migration's checkpoint file.
func (s *FileStore) Append(ctx context.Context, migration string, id any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Append(s.fs, s.Path(migration), id)
}

// Close is a no-op; every append is flushed immediately.
func (s *FileStore) Close() error {
	return nil
}

// safeName makes a migration name usable as a file name component. Runes
// outside [A-Za-z0-9._-] are percent-encoded byte by byte, so distinct names
// always map to distinct files.
func safeName(name string) string {
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}
