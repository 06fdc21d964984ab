package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/johndauphine/rowmigrate/internal/checkpoint"
	_ "github.com/johndauphine/rowmigrate/internal/driver/mssql"
	_ "github.com/johndauphine/rowmigrate/internal/driver/mysql"
	_ "github.com/johndauphine/rowmigrate/internal/driver/postgres"
	_ "github.com/johndauphine/rowmigrate/internal/driver/sqlite"
	"github.com/johndauphine/rowmigrate/internal/transfer"
)

const validYAML = `
database:
  source:
    adapter: mysql
    host: legacy-db
    user: reader
    password: secret
    database: legacy
  target:
    adapter: postgres
    host: pg
    user: writer
    password: secret2
    database: app
migrations:
  - name: users
    table:
      source: old_users
      target: users
    columns:
      - column: id
        primary: true
      - column: email
      - column: is_active
        target_column: active
        conversion:
          type: int
          target_type: boolean
`

func TestLoadBytesDefaults(t *testing.T) {
	cfg, err := LoadBytes([]byte(validYAML), FormatYAML)
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}

	if cfg.Database.Source.Port != 3306 {
		t.Errorf("source port = %d, want 3306", cfg.Database.Source.Port)
	}
	if cfg.Database.Target.Port != 5432 {
		t.Errorf("target port = %d, want 5432", cfg.Database.Target.Port)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.File != "migration.log" || cfg.Logging.Format != "text" {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
	if cfg.Checkpoint.File != "checkpoint.json" || !cfg.AutoSave() {
		t.Errorf("checkpoint defaults = %+v", cfg.Checkpoint)
	}
	if cfg.Checkpoint.Backend != checkpoint.BackendFile || cfg.Checkpoint.Scope != string(checkpoint.ScopeMigration) {
		t.Errorf("checkpoint backend/scope = %s/%s", cfg.Checkpoint.Backend, cfg.Checkpoint.Scope)
	}
	p := cfg.Performance
	if p.BatchSize != 1000 || p.MaxRetries != 3 || p.RetryDelay != 1000 || p.Workers != 1 {
		t.Errorf("performance defaults = %+v", p)
	}
	if cfg.RetryDelay().Milliseconds() != 1000 {
		t.Errorf("RetryDelay() = %v", cfg.RetryDelay())
	}
}

func TestAdapterAliasCanonicalized(t *testing.T) {
	yaml := strings.Replace(validYAML, "adapter: mysql", "adapter: mariadb", 1)
	cfg, err := LoadBytes([]byte(yaml), FormatYAML)
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}
	if cfg.Database.Source.Adapter != "mysql" {
		t.Errorf("adapter = %q, want mysql", cfg.Database.Source.Adapter)
	}
}

func TestSpecs(t *testing.T) {
	cfg, err := LoadBytes([]byte(validYAML), FormatYAML)
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}

	specs := cfg.Specs()
	if len(specs) != 1 {
		t.Fatalf("got %d specs, want 1", len(specs))
	}
	spec := specs[0]
	if spec.Name != "users" || spec.Table.Source != "old_users" || spec.Table.Target != "users" {
		t.Errorf("spec = %+v", spec)
	}
	if got := strings.Join(spec.TargetColumns(), ","); got != "id,email,active" {
		t.Errorf("target columns = %s", got)
	}
	conv := spec.Columns[2].Conversion
	if conv == nil || conv.Type != transfer.TypeInt || conv.TargetType != transfer.TypeBoolean {
		t.Errorf("conversion = %+v", conv)
	}
	if _, err := spec.PrimaryColumn(); err != nil {
		t.Errorf("PrimaryColumn() error = %v", err)
	}
}

func TestValidationMessages(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "missing source fields",
			yaml: `
database:
  source:
    adapter: postgres
  target:
    adapter: sqlite
    database: out.db
migrations:
  - name: m
    table: {source: a, target: b}
    columns: [{column: id, primary: true}]
`,
			want: []string{
				"Source host is required",
				"Source user is required",
				"Source password is required",
				"Source database name is required",
			},
		},
		{
			name: "missing adapter",
			yaml: `
database:
  source: {host: h}
  target: {adapter: sqlite, database: out.db}
migrations:
  - name: m
    table: {source: a, target: b}
    columns: [{column: id, primary: true}]
`,
			want: []string{"Source adapter is required"},
		},
		{
			name: "unknown adapter",
			yaml: `
database:
  source: {adapter: oracle, host: h}
  target: {adapter: sqlite, database: out.db}
migrations:
  - name: m
    table: {source: a, target: b}
    columns: [{column: id, primary: true}]
`,
			want: []string{"unknown database adapter"},
		},
		{
			name: "no migrations",
			yaml: `
database:
  source: {adapter: sqlite, database: in.db}
  target: {adapter: sqlite, database: out.db}
migrations: []
`,
			want: []string{"At least one migration is required"},
		},
		{
			name: "migration fields",
			yaml: `
database:
  source: {adapter: sqlite, database: in.db}
  target: {adapter: sqlite, database: out.db}
migrations:
  - table: {source: a}
    columns: [{column: ""}]
  - name: other
    columns: []
`,
			want: []string{
				"Migration 0: name is required",
				"Migration 0: target table is required",
				"Migration 0, Column 0: column name is required",
				"Migration 0: exactly one primary column is required, found 0",
				"Migration 1: table configuration is required",
				"Migration 1: at least one column is required",
			},
		},
		{
			name: "conversion type and duplicate names",
			yaml: `
database:
  source: {adapter: sqlite, database: in.db}
  target: {adapter: sqlite, database: out.db}
migrations:
  - name: m
    table: {source: a, target: b}
    columns:
      - {column: id, primary: true}
      - {column: flag, conversion: {type: bit}}
  - name: m
    table: {source: c, target: d}
    columns: [{column: id, primary: true}, {column: id2, primary: true}]
`,
			want: []string{
				`Migration 0, Column 1: conversion type "bit" must be one of`,
				`Migration 1: name "m" already used by migration 0`,
				"Migration 1: exactly one primary column is required, found 2",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadBytes([]byte(tt.yaml), FormatYAML)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), "invalid configuration") {
				t.Errorf("error %q not prefixed with invalid configuration", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error missing %q:\n%v", w, err)
				}
			}
		})
	}
}

func TestSchemaRejectsUnknownKeys(t *testing.T) {
	yaml := validYAML + "\nextra_setting: true\n"
	_, err := LoadBytes([]byte(yaml), FormatYAML)
	if err == nil || !strings.Contains(err.Error(), "schema") {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestSchemaRejectsWrongTypes(t *testing.T) {
	yaml := strings.Replace(validYAML, "host: pg", "host: pg\n    port: high", 1)
	_, err := LoadBytes([]byte(yaml), FormatYAML)
	if err == nil || !strings.Contains(err.Error(), "schema") {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestLoadTOML(t *testing.T) {
	data := `
[database.source]
adapter = "sqlite"
database = "legacy.db"

[database.target]
adapter = "postgres"
host = "pg"
user = "writer"
password = "pw"
database = "app"

[[migrations]]
name = "users"
table = { source = "old_users", target = "users" }
columns = [
  { column = "id", primary = true },
  { column = "active", conversion = { type = "int", target_type = "boolean" } },
]

[performance]
workers = 4
`
	cfg, err := LoadBytes([]byte(data), FormatTOML)
	if err != nil {
		t.Fatalf("LoadBytes(toml) error = %v", err)
	}
	if cfg.Performance.Workers != 4 {
		t.Errorf("workers = %d, want 4", cfg.Performance.Workers)
	}
	if cfg.Migrations[0].Columns[1].Conversion.Type != "int" {
		t.Errorf("conversion = %+v", cfg.Migrations[0].Columns[1].Conversion)
	}
}

func TestLoadTOMLUnknownKey(t *testing.T) {
	data := `
[database.source]
adapter = "sqlite"
database = "a.db"
colour = "blue"

[database.target]
adapter = "sqlite"
database = "b.db"

[[migrations]]
name = "users"
table = { source = "old_users", target = "users" }
columns = [{ column = "id", primary = true }]
`
	_, err := LoadBytes([]byte(data), FormatTOML)
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "colour") {
		t.Errorf("error should name the unknown key: %v", err)
	}
}

func TestDecodeTOMLUnknownKeyInStruct(t *testing.T) {
	data := `
[logging]
level = "debug"
colour = "blue"
`
	var raw map[string]any
	if err := decode([]byte(data), FormatTOML, &raw); err != nil {
		t.Fatalf("decode into map: %v", err)
	}

	var cfg Config
	err := decode([]byte(data), FormatTOML, &cfg)
	if err == nil || !strings.Contains(err.Error(), "logging.colour") {
		t.Fatalf("expected unknown key logging.colour, got %v", err)
	}
	if strings.Contains(err.Error(), "logging.level") {
		t.Errorf("known key reported as unknown: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	data := `{
  "database": {
    "source": {"adapter": "sqlite", "database": "in.db"},
    "target": {"adapter": "sqlite", "database": "out.db"}
  },
  "migrations": [
    {"name": "t", "table": {"source": "a", "target": "b"}, "columns": [{"column": "id", "primary": true}]}
  ],
  "checkpoint": {"backend": "sqlite", "file": "state.db", "auto_save": false}
}`
	cfg, err := LoadBytes([]byte(data), FormatJSON)
	if err != nil {
		t.Fatalf("LoadBytes(json) error = %v", err)
	}
	if cfg.AutoSave() {
		t.Error("auto_save false was not honored")
	}
	opts := cfg.CheckpointOptions()
	if opts.Backend != checkpoint.BackendSQLite || opts.Path != "state.db" {
		t.Errorf("CheckpointOptions() = %+v", opts)
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]string{
		"config.yaml":     FormatYAML,
		"config.yml":      FormatYAML,
		"config.TOML":     FormatTOML,
		"dir/config.json": FormatJSON,
		"config":          FormatYAML,
	}
	for path, want := range tests {
		if got := FormatFromPath(path); got != want {
			t.Errorf("FormatFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestLoadExpandsEnvAndDotenv(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "migrate.yaml")
	yaml := strings.Replace(validYAML, "password: secret2", "password: ${RM_TEST_TARGET_PW}", 1)
	yaml = strings.Replace(yaml, "password: secret\n", "password: ${RM_TEST_SOURCE_PW}\n", 1)
	if err := os.WriteFile(cfgPath, []byte(yaml), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("RM_TEST_SOURCE_PW=from-dotenv\nRM_TEST_TARGET_PW=dotenv-target\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RM_TEST_TARGET_PW", "from-env")

	cfg, err := LoadWithOptions(cfgPath, LoadOptions{SuppressWarnings: true})
	if err != nil {
		t.Fatalf("LoadWithOptions() error = %v", err)
	}
	if cfg.Database.Source.Password != "from-dotenv" {
		t.Errorf("source password = %q, want from-dotenv", cfg.Database.Source.Password)
	}
	if cfg.Database.Target.Password != "from-env" {
		t.Errorf("target password = %q, want from-env (process env wins)", cfg.Database.Target.Password)
	}
}

func TestLoadMissingEnvFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "migrate.yaml")
	if err := os.WriteFile(cfgPath, []byte(validYAML), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := LoadWithOptions(cfgPath, LoadOptions{EnvFile: filepath.Join(dir, "missing.env"), SuppressWarnings: true})
	if err == nil {
		t.Fatal("expected error for missing explicit env file")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "reading config file") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestSanitized(t *testing.T) {
	cfg, err := LoadBytes([]byte(validYAML), FormatYAML)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Slack.WebhookURL = "https://hooks.slack.com/services/x"

	s := cfg.Sanitized()
	if s.Database.Source.Password != "[REDACTED]" || s.Database.Target.Password != "[REDACTED]" {
		t.Error("passwords not redacted")
	}
	if s.Slack.WebhookURL != "[REDACTED]" {
		t.Error("webhook not redacted")
	}
	if cfg.Database.Source.Password != "secret" {
		t.Error("Sanitized modified the original")
	}

	out, err := s.YAML()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "secret") {
		t.Errorf("sanitized YAML leaks a password:\n%s", out)
	}
}

func TestDriverConfig(t *testing.T) {
	cfg, err := LoadBytes([]byte(validYAML), FormatYAML)
	if err != nil {
		t.Fatal(err)
	}
	src := cfg.SourceDriverConfig()
	if src.Adapter != "mysql" || src.Host != "legacy-db" || src.Port != 3306 || src.User != "reader" {
		t.Errorf("SourceDriverConfig() = %+v", src)
	}
	tgt := cfg.TargetDriverConfig()
	if tgt.SSLMode != "prefer" {
		t.Errorf("target ssl mode = %q, want prefer", tgt.SSLMode)
	}
}

func TestCheckFilePermissions(t *testing.T) {
	if os.PathSeparator != '/' {
		t.Skip("unix permissions only")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "c.yaml")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if checkFilePermissions(path) == "" {
		t.Error("expected warning for 0644")
	}
	if err := os.Chmod(path, 0600); err != nil {
		t.Fatal(err)
	}
	if w := checkFilePermissions(path); w != "" {
		t.Errorf("unexpected warning for 0600: %s", w)
	}
}
