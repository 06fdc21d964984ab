// Package exitcodes defines the process exit codes of the migrate CLI so that
// schedulers (cron, Airflow, Kubernetes jobs) can tell retryable failures apart.
package exitcodes

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/johndauphine/rowmigrate/internal/errclass"
)

const (
	// Success - every migration reached completion (row errors may have been logged)
	Success = 0

	// ConfigError - configuration could not be read, parsed or validated (don't retry)
	ConfigError = 1

	// ConnectionError - source/target connection test failed at startup (recoverable)
	ConnectionError = 2

	// CriticalError - critical errors were recorded and --fail-on-critical was set
	CriticalError = 3

	// Cancelled - user cancelled via SIGINT/SIGTERM (recoverable)
	Cancelled = 5

	// CheckpointError - checkpoint store unreadable or corrupt (non-recoverable)
	CheckpointError = 6

	// IOError - file I/O errors (recoverable)
	IOError = 7
)

var descriptions = map[int]string{
	Success:         "success",
	ConfigError:     "configuration error",
	ConnectionError: "connection error (recoverable)",
	CriticalError:   "critical errors recorded",
	Cancelled:       "cancelled (recoverable)",
	CheckpointError: "checkpoint error",
	IOError:         "I/O error (recoverable)",
}

// ExitError wraps an error with an exit code.
type ExitError struct {
	Err  error
	Code int
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code.
func NewExitError(err error, code int) *ExitError {
	return &ExitError{Err: err, Code: code}
}

// FromKind maps an error classifier kind to an exit code.
func FromKind(kind errclass.Kind) int {
	switch kind {
	case errclass.Configuration, errclass.Validation:
		return ConfigError
	case errclass.Network:
		return ConnectionError
	case errclass.File:
		return IOError
	default:
		return CriticalError
	}
}

// messageRule maps error text to a code. unless vetoes the match.
type messageRule struct {
	code   int
	match  []string
	unless []string
}

// messageRules are tried in order against the lowercased error text.
var messageRules = []messageRule{
	{code: IOError, match: []string{"no such file", "file not found", "permission denied", "is a directory", "not a directory"}},
	{code: CheckpointError, match: []string{"checkpoint"}},
	{
		code:   ConfigError,
		match:  []string{"yaml:", "toml:", "json:", "unmarshal", "invalid configuration", "is required", "parsing config", "schema"},
		unless: []string{"connection", "connect", "dial"},
	},
	{code: ConnectionError, match: []string{"connection", "connect", "dial", "refused", "timeout", "unreachable", "no such host", "network", "ping", "login failed", "authentication"}},
	{code: Cancelled, match: []string{"cancel", "interrupt", "context deadline"}},
}

// FromError determines the appropriate exit code for an error.
// Typed errors win; otherwise the message is matched against messageRules.
func FromError(err error) int {
	if err == nil {
		return Success
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, context.Canceled) {
		return Cancelled
	}

	var tagged *errclass.Error
	if errors.As(err, &tagged) && tagged.Kind != errclass.Unknown {
		return FromKind(tagged.Kind)
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return IOError
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range messageRules {
		if containsAny(msg, rule.match) && !containsAny(msg, rule.unless) {
			return rule.code
		}
	}
	return CriticalError
}

// IsRecoverable returns true if the error is recoverable (safe to retry).
func IsRecoverable(code int) bool {
	return code == ConnectionError || code == Cancelled || code == IOError
}

// Description returns a human-readable description of the exit code.
func Description(code int) string {
	if d, ok := descriptions[code]; ok {
		return d
	}
	return "unknown error"
}

func containsAny(s string, substrs []string) bool {
	for _, substr := range substrs {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
