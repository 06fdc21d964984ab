// Package transfer is the migration engine: it turns a column-mapping
// declaration into an extract, transform and load loop with per-row
// idempotency, failure isolation and progress accounting.
package transfer

import (
	"fmt"
	"strings"

	"github.com/johndauphine/rowmigrate/internal/driver"
)

// Conversion types accepted in a column declaration.
const (
	TypeInt      = "int"
	TypeBoolean  = "boolean"
	TypeFloat    = "float"
	TypeText     = "text"
	TypeUUID     = "uuid"
	TypeBigint   = "bigint"
	TypeTinytext = "tinytext"
)

// ConversionTypes lists the accepted conversion types.
var ConversionTypes = []string{TypeInt, TypeBoolean, TypeFloat, TypeText, TypeUUID, TypeBigint, TypeTinytext}

// IsConversionType reports whether s is an accepted conversion type.
func IsConversionType(s string) bool {
	for _, t := range ConversionTypes {
		if s == t {
			return true
		}
	}
	return false
}

// Conversion declares how a column's value changes on the way to the target.
// Only Type "int" changes the value (1 becomes true, anything else false);
// every other type passes the value through.
type Conversion struct {
	Type       string
	TargetType string
}

// ColumnSpec maps one source column to one target column.
type ColumnSpec struct {
	Column       string
	Primary      bool
	TargetColumn string
	Conversion   *Conversion
}

// TargetName returns the target column name, defaulting to Column.
func (c ColumnSpec) TargetName() string {
	if c.TargetColumn != "" {
		return c.TargetColumn
	}
	return c.Column
}

// TableSpec names the source and target tables. Either may be schema-qualified.
type TableSpec struct {
	Source string
	Target string
}

// MigrationSpec is one table-to-table column mapping. Built once from
// validated configuration and never modified during a run.
type MigrationSpec struct {
	Name    string
	Table   TableSpec
	Columns []ColumnSpec
}

// PrimaryColumn returns the single column flagged primary.
func (m MigrationSpec) PrimaryColumn() (ColumnSpec, error) {
	var found []ColumnSpec
	for _, c := range m.Columns {
		if c.Primary {
			found = append(found, c)
		}
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return ColumnSpec{}, fmt.Errorf("migration %s: no primary column", m.Name)
	default:
		names := make([]string, len(found))
		for i, c := range found {
			names[i] = c.Column
		}
		return ColumnSpec{}, fmt.Errorf("migration %s: multiple primary columns (%s)", m.Name, strings.Join(names, ", "))
	}
}

// SourceColumns returns the source column names in declaration order.
func (m MigrationSpec) SourceColumns() []string {
	cols := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		cols[i] = c.Column
	}
	return cols
}

// TargetColumns returns the target column names in declaration order.
func (m MigrationSpec) TargetColumns() []string {
	cols := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		cols[i] = c.TargetName()
	}
	return cols
}

// Row is a source or target row.
type Row = driver.Row
