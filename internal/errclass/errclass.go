// Package errclass tags migration failures with a kind, keeps per-kind counts
// and remembers the occurrences that are severe enough to affect the exit status.
package errclass

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/johndauphine/rowmigrate/internal/logging"
)

// Kind identifies the category of a failure.
type Kind string

const (
	Configuration Kind = "CONFIGURATION_ERROR"
	Database      Kind = "DATABASE_ERROR"
	Migration     Kind = "MIGRATION_ERROR"
	Validation    Kind = "VALIDATION_ERROR"
	File          Kind = "FILE_ERROR"
	Network       Kind = "NETWORK_ERROR"
	Unknown       Kind = "UNKNOWN_ERROR"
)

// Kinds lists every kind in reporting order.
var Kinds = []Kind{Configuration, Database, Migration, Validation, File, Network, Unknown}

// IsCritical reports whether occurrences of k are tracked as critical.
func (k Kind) IsCritical() bool {
	return k == Configuration || k == Database
}

// Error is a tagged failure.
type Error struct {
	Kind      Kind
	Message   string
	Context   map[string]any
	Timestamp time.Time
	Err       error
}

// New creates a tagged error. err may be nil.
func New(kind Kind, message string, err error, ctx map[string]any) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Context:   ctx,
		Timestamp: time.Now().UTC(),
		Err:       err,
	}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind carried by err, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Classifier is a thread-safe sink for migration failures.
// It never panics and never returns an error to the caller.
type Classifier struct {
	mu       sync.Mutex
	counts   map[Kind]int
	critical []*Error
}

// NewClassifier returns an empty classifier.
func NewClassifier() *Classifier {
	c := &Classifier{}
	c.Reset()
	return c
}

// Handle records err. Errors that are not already tagged are recorded as Unknown.
func (c *Classifier) Handle(err error, ctx map[string]any) *Error {
	if err == nil {
		return nil
	}

	var tagged *Error
	if !errors.As(err, &tagged) {
		tagged = New(Unknown, err.Error(), err, ctx)
	}

	c.mu.Lock()
	c.counts[tagged.Kind]++
	if tagged.Kind.IsCritical() {
		c.critical = append(c.critical, tagged)
	}
	c.mu.Unlock()

	logging.Error("Migration Error [%s]: %s%s", tagged.Kind, tagged.Message, formatContext(tagged.Context))
	return tagged
}

// HandleDatabase records a failed statement against a source or target database.
func (c *Classifier) HandleDatabase(err error, query string, ctx map[string]any) *Error {
	fields := merge(ctx, map[string]any{"originalError": errString(err), "query": query})
	return c.Handle(New(Database, "Database error: "+errString(err), err, fields), nil)
}

// HandleMigration records a row-level failure within the named migration.
func (c *Classifier) HandleMigration(err error, name string, ctx map[string]any) *Error {
	fields := merge(ctx, map[string]any{"migrationName": name, "originalError": errString(err)})
	msg := fmt.Sprintf("Migration error in %s: %s", name, errString(err))
	return c.Handle(New(Migration, msg, err, fields), nil)
}

// HandleValidation records a validation failure on field.
func (c *Classifier) HandleValidation(message, field string, ctx map[string]any) *Error {
	fields := merge(ctx, map[string]any{"field": field})
	return c.Handle(New(Validation, "Validation error: "+message, nil, fields), nil)
}

// HandleFile records a failed file operation (read, write, create).
func (c *Classifier) HandleFile(err error, path, op string) *Error {
	fields := map[string]any{"filePath": path, "operation": op, "originalError": errString(err)}
	msg := fmt.Sprintf("File %s error: %s", op, errString(err))
	return c.Handle(New(File, msg, err, fields), nil)
}

// HandleConfiguration records a configuration problem.
func (c *Classifier) HandleConfiguration(err error, ctx map[string]any) *Error {
	return c.Handle(New(Configuration, "Configuration error: "+errString(err), err, ctx), nil)
}

// HandleNetwork records a connectivity failure.
func (c *Classifier) HandleNetwork(err error, ctx map[string]any) *Error {
	return c.Handle(New(Network, "Network error: "+errString(err), err, ctx), nil)
}

// Count returns the number of occurrences recorded for kind.
func (c *Classifier) Count(kind Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[kind]
}

// Total returns the number of occurrences across all kinds.
func (c *Classifier) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.counts {
		total += n
	}
	return total
}

// Summary returns a copy of the per-kind counts. Every kind is present.
func (c *Classifier) Summary() map[Kind]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[Kind]int, len(c.counts))
	for k, n := range c.counts {
		out[k] = n
	}
	return out
}

// CriticalErrors returns a copy of the recorded critical occurrences.
func (c *Classifier) CriticalErrors() []*Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Error, len(c.critical))
	copy(out, c.critical)
	return out
}

// HasCriticalErrors reports whether any critical occurrence was recorded.
func (c *Classifier) HasCriticalErrors() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.critical) > 0
}

// Err combines the critical occurrences into one error, or returns nil.
func (c *Classifier) Err() error {
	var result *multierror.Error
	for _, e := range c.CriticalErrors() {
		result = multierror.Append(result, e)
	}
	return result.ErrorOrNil()
}

// Reset clears counts and critical occurrences.
func (c *Classifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = make(map[Kind]int, len(Kinds))
	for _, k := range Kinds {
		c.counts[k] = 0
	}
	c.critical = nil
}

// FormatSummary renders non-zero counts as "KIND=n" pairs in reporting order.
func FormatSummary(summary map[Kind]int) string {
	var parts []string
	for _, k := range Kinds {
		if n := summary[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", k, n))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func merge(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range extra {
		out[k] = v
	}
	for k, v := range base {
		out[k] = v
	}
	return out
}

func formatContext(ctx map[string]any) string {
	if len(ctx) == 0 {
		return ""
	}
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(" (")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", k, ctx[k])
	}
	b.WriteString(")")
	return b.String()
}
