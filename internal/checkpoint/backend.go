package checkpoint

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/afero"
)

// Store persists the primary-key values already inserted per migration.
// Implementations include a JSON-array file store (human-inspectable, the
// default) and SQLite (keyed by migration and primary key).
type Store interface {
	// Load returns the ids recorded for migration.
	Load(ctx context.Context, migration string) (*Set, error)

	// Append records one id for migration. Called only after a confirmed insert.
	Append(ctx context.Context, migration string, id any) error

	// Close releases resources.
	Close() error
}

// Peeker is implemented by stores whose Load has side effects, to read
// without them.
type Peeker interface {
	Peek(ctx context.Context, migration string) (*Set, error)
}

// Scope controls how a file store namespaces checkpoints.
type Scope string

const (
	// ScopeMigration writes one file per migration, so equal primary keys in
	// different migrations never collide.
	ScopeMigration Scope = "migration"

	// ScopeShared writes every migration's ids into one file.
	ScopeShared Scope = "shared"
)

// Backend names.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Options selects and configures a Store.
type Options struct {
	Backend string
	Path    string
	Scope   Scope
}

// Open creates the Store described by opts.
func Open(opts Options) (Store, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendFile:
		return NewFileStore(afero.NewOsFs(), opts.Path, opts.Scope), nil
	case BackendSQLite:
		return NewSQLiteStore(opts.Path)
	default:
		return nil, fmt.Errorf("unknown checkpoint backend: %s (valid: file, sqlite)", opts.Backend)
	}
}

// Ensure both stores implement Store
var (
	_ Store = (*FileStore)(nil)
	_ Store = (*SQLiteStore)(nil)

	_ Peeker = (*FileStore)(nil)
)
