package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/johndauphine/rowmigrate/internal/checkpoint"
	"github.com/johndauphine/rowmigrate/internal/driver"
	"github.com/johndauphine/rowmigrate/internal/transfer"
)

// Config holds all configuration for a migration run
type Config struct {
	Database    DatabaseConfig    `yaml:"database" toml:"database" json:"database"`
	Migrations  []MigrationConfig `yaml:"migrations" toml:"migrations" json:"migrations"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging" json:"logging"`
	Checkpoint  CheckpointConfig  `yaml:"checkpoint" toml:"checkpoint" json:"checkpoint"`
	Performance PerformanceConfig `yaml:"performance" toml:"performance" json:"performance"`
	Report      ReportConfig      `yaml:"report" toml:"report" json:"report"`
	Slack       SlackConfig       `yaml:"slack" toml:"slack" json:"slack"`
}

// DatabaseConfig holds the source and target connections
type DatabaseConfig struct {
	Source ConnectionConfig `yaml:"source" toml:"source" json:"source"`
	Target ConnectionConfig `yaml:"target" toml:"target" json:"target"`
}

// ConnectionConfig holds one database connection
type ConnectionConfig struct {
	Adapter  string            `yaml:"adapter" toml:"adapter" json:"adapter"` // postgres, mysql, sqlite, libsql, mssql (or an alias)
	Host     string            `yaml:"host" toml:"host" json:"host"`
	Port     int               `yaml:"port" toml:"port" json:"port"`
	User     string            `yaml:"user" toml:"user" json:"user"`
	Password string            `yaml:"password" toml:"password" json:"password"`
	Database string            `yaml:"database" toml:"database" json:"database"` // file path for sqlite
	SSLMode  string            `yaml:"ssl_mode" toml:"ssl_mode" json:"ssl_mode"`
	QueryLog bool              `yaml:"query_log" toml:"query_log" json:"query_log"`
	MaxConns int               `yaml:"max_conns" toml:"max_conns" json:"max_conns"`
	Params   map[string]string `yaml:"params" toml:"params" json:"params,omitempty"`
}

// MigrationConfig is one table-to-table column mapping
type MigrationConfig struct {
	Name    string         `yaml:"name" toml:"name" json:"name"`
	Table   TableConfig    `yaml:"table" toml:"table" json:"table"`
	Columns []ColumnConfig `yaml:"columns" toml:"columns" json:"columns"`
}

// TableConfig names the source and target tables
type TableConfig struct {
	Source string `yaml:"source" toml:"source" json:"source"`
	Target string `yaml:"target" toml:"target" json:"target"`
}

// ColumnConfig maps one column
type ColumnConfig struct {
	Column       string            `yaml:"column" toml:"column" json:"column"`
	Primary      bool              `yaml:"primary" toml:"primary" json:"primary,omitempty"`
	TargetColumn string            `yaml:"target_column" toml:"target_column" json:"target_column,omitempty"`
	Conversion   *ConversionConfig `yaml:"conversion" toml:"conversion" json:"conversion,omitempty"`
}

// ConversionConfig declares a value conversion
type ConversionConfig struct {
	Type       string `yaml:"type" toml:"type" json:"type"`
	TargetType string `yaml:"target_type" toml:"target_type" json:"target_type,omitempty"`
}

// LoggingConfig holds log settings
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" json:"level"`
	File   string `yaml:"file" toml:"file" json:"file"`
	Format string `yaml:"format" toml:"format" json:"format"` // text or json
}

// CheckpointConfig holds checkpoint store settings
type CheckpointConfig struct {
	File     string `yaml:"file" toml:"file" json:"file"`
	Backend  string `yaml:"backend" toml:"backend" json:"backend"` // file (default) or sqlite
	Scope    string `yaml:"scope" toml:"scope" json:"scope"`       // migration (default) or shared
	AutoSave *bool  `yaml:"auto_save" toml:"auto_save" json:"auto_save"`
}

// PerformanceConfig tunes the loading phase
type PerformanceConfig struct {
	BatchSize  int `yaml:"batch_size" toml:"batch_size" json:"batch_size"`    // rows buffered ahead of the workers
	MaxRetries int `yaml:"max_retries" toml:"max_retries" json:"max_retries"` // retries for transient insert failures
	RetryDelay int `yaml:"retry_delay" toml:"retry_delay" json:"retry_delay"` // milliseconds
	Workers    int `yaml:"workers" toml:"workers" json:"workers"`
}

// ReportConfig controls where the run report is written
type ReportConfig struct {
	File     string `yaml:"file" toml:"file" json:"file"`
	S3Bucket string `yaml:"s3_bucket" toml:"s3_bucket" json:"s3_bucket"`
	S3Prefix string `yaml:"s3_prefix" toml:"s3_prefix" json:"s3_prefix"`
	S3Region string `yaml:"s3_region" toml:"s3_region" json:"s3_region"`
}

// SlackConfig holds Slack notification settings
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url" toml:"webhook_url" json:"webhook_url"`
	Channel    string `yaml:"channel" toml:"channel" json:"channel"`
	Username   string `yaml:"username" toml:"username" json:"username"`
	Enabled    bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
}

// Supported file formats.
const (
	FormatYAML = "yaml"
	FormatTOML = "toml"
	FormatJSON = "json"
)

// LoadOptions controls configuration loading behavior.
type LoadOptions struct {
	// EnvFile is a dotenv file whose values are available to ${VAR}
	// expansion. Empty means ".env" next to the config file, if present.
	EnvFile string

	SuppressWarnings bool
}

// Load reads configuration from a YAML, TOML or JSON file.
func Load(path string) (*Config, error) {
	return LoadWithOptions(path, LoadOptions{})
}

// LoadWithOptions reads configuration from a file with options.
func LoadWithOptions(path string, opts LoadOptions) (*Config, error) {
	if warning := checkFilePermissions(path); warning != "" && !opts.SuppressWarnings {
		fmt.Fprint(os.Stderr, warning)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	envFile := opts.EnvFile
	explicit := envFile != ""
	if !explicit {
		envFile = filepath.Join(filepath.Dir(path), ".env")
	}
	dotenv, err := readDotenv(envFile, explicit)
	if err != nil {
		return nil, err
	}

	return parse(data, FormatFromPath(path), dotenv)
}

// LoadBytes reads configuration from bytes in the given format.
func LoadBytes(data []byte, format string) (*Config, error) {
	return parse(data, format, nil)
}

// FormatFromPath picks the file format from the extension; YAML is the default.
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

func readDotenv(path string, required bool) (map[string]string, error) {
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		if required {
			return nil, fmt.Errorf("reading env file %s: not found", path)
		}
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading env file %s: %w", path, err)
	}
	return values, nil
}

// expandEnv substitutes ${VAR} and $VAR. Process environment wins over dotenv values.
func expandEnv(data string, dotenv map[string]string) string {
	return os.Expand(data, func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return dotenv[key]
	})
}

func parse(data []byte, format string, dotenv map[string]string) (*Config, error) {
	expanded := []byte(expandEnv(string(data), dotenv))

	var raw map[string]any
	if err := decode(expanded, format, &raw); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := validateSchema(raw); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var cfg Config
	if err := decode(expanded, format, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func decode(data []byte, format string, v any) error {
	switch format {
	case FormatYAML, "":
		return yaml.Unmarshal(data, v)
	case FormatTOML:
		md, err := toml.Decode(string(data), v)
		if err != nil {
			return err
		}
		// Keys decoded into a generic map always count as undecoded.
		if _, generic := v.(*map[string]any); generic {
			return nil
		}
		if unknown := md.Undecoded(); len(unknown) > 0 {
			keys := make([]string, len(unknown))
			for i, k := range unknown {
				keys[i] = k.String()
			}
			return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
		}
		return nil
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		return dec.Decode(v)
	default:
		return fmt.Errorf("unsupported config format: %s", format)
	}
}

func (c *Config) applyDefaults() {
	applyConnectionDefaults(&c.Database.Source)
	applyConnectionDefaults(&c.Database.Target)

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.File == "" {
		c.Logging.File = "migration.log"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Checkpoint.File == "" {
		c.Checkpoint.File = "checkpoint.json"
	}
	if c.Checkpoint.Backend == "" {
		c.Checkpoint.Backend = checkpoint.BackendFile
	}
	if c.Checkpoint.Scope == "" {
		c.Checkpoint.Scope = string(checkpoint.ScopeMigration)
	}
	if c.Checkpoint.AutoSave == nil {
		autoSave := true
		c.Checkpoint.AutoSave = &autoSave
	}

	if c.Performance.BatchSize == 0 {
		c.Performance.BatchSize = 1000
	}
	if c.Performance.MaxRetries == 0 {
		c.Performance.MaxRetries = 3
	}
	if c.Performance.RetryDelay == 0 {
		c.Performance.RetryDelay = 1000
	}
	if c.Performance.Workers == 0 {
		c.Performance.Workers = 1
	}
}

func applyConnectionDefaults(conn *ConnectionConfig) {
	d, err := driver.Get(conn.Adapter)
	if err != nil {
		return
	}
	conn.Adapter = d.Name()
	defaults := d.Defaults()
	if conn.Port == 0 {
		conn.Port = defaults.Port
	}
	if conn.SSLMode == "" {
		conn.SSLMode = defaults.SSLMode
	}
}

// AutoSave reports whether successful inserts are recorded in the checkpoint.
func (c *Config) AutoSave() bool {
	return c.Checkpoint.AutoSave == nil || *c.Checkpoint.AutoSave
}

// RetryDelay returns performance.retry_delay as a duration.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Performance.RetryDelay) * time.Millisecond
}

// SourceDriverConfig returns the source connection for driver.Open.
func (c *Config) SourceDriverConfig() driver.Config {
	return c.Database.Source.driverConfig()
}

// TargetDriverConfig returns the target connection for driver.Open.
func (c *Config) TargetDriverConfig() driver.Config {
	return c.Database.Target.driverConfig()
}

func (conn ConnectionConfig) driverConfig() driver.Config {
	return driver.Config{
		Adapter:  conn.Adapter,
		Host:     conn.Host,
		Port:     conn.Port,
		User:     conn.User,
		Password: conn.Password,
		Database: conn.Database,
		SSLMode:  conn.SSLMode,
		MaxConns: conn.MaxConns,
		QueryLog: conn.QueryLog,
		Params:   conn.Params,
	}
}

// CheckpointOptions returns the options for checkpoint.Open.
func (c *Config) CheckpointOptions() checkpoint.Options {
	return checkpoint.Options{
		Backend: c.Checkpoint.Backend,
		Path:    c.Checkpoint.File,
		Scope:   checkpoint.Scope(c.Checkpoint.Scope),
	}
}

// Specs converts the validated migration list for the runner.
func (c *Config) Specs() []transfer.MigrationSpec {
	specs := make([]transfer.MigrationSpec, len(c.Migrations))
	for i, m := range c.Migrations {
		cols := make([]transfer.ColumnSpec, len(m.Columns))
		for j, col := range m.Columns {
			cols[j] = transfer.ColumnSpec{
				Column:       col.Column,
				Primary:      col.Primary,
				TargetColumn: col.TargetColumn,
			}
			if col.Conversion != nil {
				cols[j].Conversion = &transfer.Conversion{
					Type:       col.Conversion.Type,
					TargetType: col.Conversion.TargetType,
				}
			}
		}
		specs[i] = transfer.MigrationSpec{
			Name:    m.Name,
			Table:   transfer.TableSpec{Source: m.Table.Source, Target: m.Table.Target},
			Columns: cols,
		}
	}
	return specs
}

// MigrationNames returns the configured migration names in order.
func (c *Config) MigrationNames() []string {
	names := make([]string, len(c.Migrations))
	for i, m := range c.Migrations {
		names[i] = m.Name
	}
	return names
}

// Sanitized returns a copy of the config with sensitive fields redacted
func (c *Config) Sanitized() *Config {
	sanitized := *c // shallow copy

	if sanitized.Database.Source.Password != "" {
		sanitized.Database.Source.Password = "[REDACTED]"
	}
	if sanitized.Database.Target.Password != "" {
		sanitized.Database.Target.Password = "[REDACTED]"
	}
	if sanitized.Slack.WebhookURL != "" {
		sanitized.Slack.WebhookURL = "[REDACTED]"
	}

	return &sanitized
}

// YAML renders the config for display.
func (c *Config) YAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}
	return string(data), nil
}
