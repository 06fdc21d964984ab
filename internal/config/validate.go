package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/johndauphine/rowmigrate/internal/checkpoint"
	"github.com/johndauphine/rowmigrate/internal/driver"
	"github.com/johndauphine/rowmigrate/internal/logging"
	"github.com/johndauphine/rowmigrate/internal/transfer"
)

// validate checks the config after defaults were applied. Every problem is
// reported, not only the first.
func (c *Config) validate() error {
	var result *multierror.Error

	result = multierror.Append(result, validateConnection("Source", c.Database.Source)...)
	result = multierror.Append(result, validateConnection("Target", c.Database.Target)...)

	if len(c.Migrations) == 0 {
		result = multierror.Append(result, fmt.Errorf("At least one migration is required"))
	}
	seen := make(map[string]int)
	for i, m := range c.Migrations {
		result = multierror.Append(result, validateMigration(i, m)...)
		if m.Name == "" {
			continue
		}
		if prev, ok := seen[m.Name]; ok {
			result = multierror.Append(result, fmt.Errorf("Migration %d: name %q already used by migration %d", i, m.Name, prev))
		} else {
			seen[m.Name] = i
		}
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		result = multierror.Append(result, err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		result = multierror.Append(result, fmt.Errorf("logging.format must be one of: text, json"))
	}

	switch c.Checkpoint.Backend {
	case checkpoint.BackendFile, checkpoint.BackendSQLite:
	default:
		result = multierror.Append(result, fmt.Errorf("checkpoint.backend must be one of: file, sqlite"))
	}
	switch checkpoint.Scope(c.Checkpoint.Scope) {
	case checkpoint.ScopeMigration, checkpoint.ScopeShared:
	default:
		result = multierror.Append(result, fmt.Errorf("checkpoint.scope must be one of: migration, shared"))
	}

	if c.Performance.Workers < 1 {
		result = multierror.Append(result, fmt.Errorf("performance.workers must be at least 1"))
	}
	if c.Performance.MaxRetries < 0 || c.Performance.RetryDelay < 0 || c.Performance.BatchSize < 0 {
		result = multierror.Append(result, fmt.Errorf("performance values must not be negative"))
	}

	if c.Slack.Enabled && c.Slack.WebhookURL == "" {
		result = multierror.Append(result, fmt.Errorf("slack.webhook_url is required when slack is enabled"))
	}

	if result == nil {
		return nil
	}
	result.ErrorFormat = listFormat
	return result.ErrorOrNil()
}

func validateConnection(side string, conn ConnectionConfig) []error {
	var errs []error
	if conn.Adapter == "" {
		return append(errs, fmt.Errorf("%s adapter is required", side))
	}
	d, err := driver.Get(conn.Adapter)
	if err != nil {
		return append(errs, fmt.Errorf("%s %w", side, err))
	}

	defaults := d.Defaults()
	switch {
	case defaults.FileBased:
		// only the file path matters
	case defaults.TokenAuth:
		if conn.Host == "" {
			errs = append(errs, fmt.Errorf("%s host is required", side))
		}
		return errs
	default:
		if conn.Host == "" {
			errs = append(errs, fmt.Errorf("%s host is required", side))
		}
		if conn.Port == 0 {
			errs = append(errs, fmt.Errorf("%s port is required", side))
		}
		if conn.User == "" {
			errs = append(errs, fmt.Errorf("%s user is required", side))
		}
		if conn.Password == "" {
			errs = append(errs, fmt.Errorf("%s password is required", side))
		}
	}
	if conn.Database == "" {
		errs = append(errs, fmt.Errorf("%s database name is required", side))
	}
	return errs
}

func validateMigration(i int, m MigrationConfig) []error {
	var errs []error
	if m.Name == "" {
		errs = append(errs, fmt.Errorf("Migration %d: name is required", i))
	}
	if m.Table.Source == "" && m.Table.Target == "" {
		errs = append(errs, fmt.Errorf("Migration %d: table configuration is required", i))
	} else {
		if m.Table.Source == "" {
			errs = append(errs, fmt.Errorf("Migration %d: source table is required", i))
		}
		if m.Table.Target == "" {
			errs = append(errs, fmt.Errorf("Migration %d: target table is required", i))
		}
	}
	if len(m.Columns) == 0 {
		return append(errs, fmt.Errorf("Migration %d: at least one column is required", i))
	}

	primaries := 0
	for j, col := range m.Columns {
		if col.Column == "" {
			errs = append(errs, fmt.Errorf("Migration %d, Column %d: column name is required", i, j))
		}
		if col.Primary {
			primaries++
		}
		if col.Conversion != nil && !transfer.IsConversionType(col.Conversion.Type) {
			errs = append(errs, fmt.Errorf("Migration %d, Column %d: conversion type %q must be one of: %s",
				i, j, col.Conversion.Type, strings.Join(transfer.ConversionTypes, ", ")))
		}
	}
	if primaries != 1 {
		errs = append(errs, fmt.Errorf("Migration %d: exactly one primary column is required, found %d", i, primaries))
	}
	return errs
}

func listFormat(errs []error) string {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, ", ")
}
