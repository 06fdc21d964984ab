// Package logging is the process-wide leveled logger. Text lines go to the
// console as "2006-01-02 15:04:05 [LEVEL] msg"; json lines are written by
// zerolog with ts, level and msg fields. Both are mirrored to an optional file.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level is a verbosity threshold. Higher levels log more.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo // default
	LevelDebug
)

var levelNames = [...]string{
	LevelError: "ERROR",
	LevelWarn:  "WARN",
	LevelInfo:  "INFO",
	LevelDebug: "DEBUG",
}

var zerologLevels = [...]zerolog.Level{
	LevelError: zerolog.ErrorLevel,
	LevelWarn:  zerolog.WarnLevel,
	LevelInfo:  zerolog.InfoLevel,
	LevelDebug: zerolog.DebugLevel,
}

func init() {
	zerolog.TimestampFieldName = "ts"
	zerolog.MessageFieldName = "msg"
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

func (l Level) String() string {
	if l < LevelError || l > LevelDebug {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel accepts debug, info, warn (or warning) and error in any case.
func ParseLevel(s string) (Level, error) {
	name := strings.ToUpper(s)
	if name == "WARNING" {
		name = "WARN"
	}
	for l, n := range levelNames {
		if n == name {
			return Level(l), nil
		}
	}
	return LevelInfo, fmt.Errorf("unknown verbosity level: %s (valid: debug, info, warn, error)", s)
}

type logger struct {
	mu      sync.Mutex
	level   Level
	json    bool
	console io.Writer
	file    *os.File
}

var std = &logger{level: LevelInfo, console: os.Stdout}

func SetLevel(level Level) {
	std.mu.Lock()
	std.level = level
	std.mu.Unlock()
}

func GetLevel() Level {
	std.mu.Lock()
	defer std.mu.Unlock()
	return std.level
}

// SetOutput replaces the console writer. nil means stdout.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	std.mu.Lock()
	std.console = w
	std.mu.Unlock()
}

// Writer returns the console writer.
func Writer() io.Writer {
	std.mu.Lock()
	defer std.mu.Unlock()
	return std.console
}

// SetFormat selects json lines for "json" and text for anything else.
func SetFormat(format string) {
	std.mu.Lock()
	std.json = strings.EqualFold(format, "json")
	std.mu.Unlock()
}

// SetLogFile appends leveled lines to path as well as the console.
// An empty path closes the current file.
func SetLogFile(path string) error {
	std.mu.Lock()
	defer std.mu.Unlock()

	if std.file != nil {
		std.file.Close()
		std.file = nil
	}
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	std.file = f
	return nil
}

// Close closes the log file, if one is open.
func Close() error {
	return SetLogFile("")
}

func Debug(format string, args ...interface{}) { std.log(LevelDebug, format, args...) }
func Info(format string, args ...interface{})  { std.log(LevelInfo, format, args...) }
func Warn(format string, args ...interface{})  { std.log(LevelWarn, format, args...) }
func Error(format string, args ...interface{}) { std.log(LevelError, format, args...) }

// Print writes to the console at any level and never to the log file.
func Print(format string, args ...interface{}) {
	std.mu.Lock()
	defer std.mu.Unlock()
	fmt.Fprintf(std.console, format, args...)
}

// Println is Print with fmt.Println formatting.
func Println(args ...interface{}) {
	std.mu.Lock()
	defer std.mu.Unlock()
	fmt.Fprintln(std.console, args...)
}

func IsDebug() bool { return GetLevel() >= LevelDebug }
func IsInfo() bool  { return GetLevel() >= LevelInfo }

func (l *logger) log(level Level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level > l.level {
		return
	}

	w := l.console
	if l.file != nil {
		w = io.MultiWriter(l.console, l.file)
	}
	msg := fmt.Sprintf(format, args...)

	if l.json {
		zl := zerolog.New(w)
		zl.WithLevel(zerologLevels[level]).Timestamp().Msg(strings.TrimSpace(msg))
		return
	}

	// A leading newline becomes a blank line before the prefix.
	if rest, ok := strings.CutPrefix(msg, "\n"); ok {
		io.WriteString(w, "\n")
		msg = rest
	}
	fmt.Fprintf(w, "%s [%s] %s\n", time.Now().Format(time.DateTime), levelNames[level], strings.TrimSuffix(msg, "\n"))
}
