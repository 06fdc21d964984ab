package transfer

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/johndauphine/rowmigrate/internal/driver"
)

// ExtractionQuery renders the plain-text extraction statement:
// SELECT <source columns> FROM <source table>. No WHERE clause.
func ExtractionQuery(spec MigrationSpec) string {
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(spec.SourceColumns(), ", "), spec.Table.Source)
}

// InsertQuery renders a row as a plain-text INSERT for logs and dry runs.
// Numbers and booleans are literal, strings are single-quoted, structured
// values are JSON-encoded and single-quoted, and anything else (nil
// included, rendered 'null') is quoted in its string form. Values are not
// escaped; use InsertStatement to execute.
func InsertQuery(row Row, spec MigrationSpec) string {
	cols := spec.TargetColumns()
	vals := make([]string, len(cols))
	for i, c := range cols {
		vals[i] = literal(row[c])
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		spec.Table.Target, strings.Join(cols, ", "), strings.Join(vals, ", "))
}

// ExtractionStatement is ExtractionQuery with identifiers quoted for d.
func ExtractionStatement(spec MigrationSpec, d driver.Dialect) string {
	return fmt.Sprintf("SELECT %s FROM %s",
		driver.ColumnList(d, spec.SourceColumns()), driver.QuoteTable(d, spec.Table.Source))
}

// InsertStatement builds the parameterized INSERT for row. Structured values
// are bound as JSON text and nil binds SQL NULL.
func InsertStatement(row Row, spec MigrationSpec, d driver.Dialect) (string, []any) {
	cols := spec.TargetColumns()
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		placeholders[i] = d.ParameterPlaceholder(i + 1)
		args[i] = bindValue(row[c])
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		driver.QuoteTable(d, spec.Table.Target), driver.ColumnList(d, cols), strings.Join(placeholders, ", "))
	return stmt, args
}

// FormatNumber renders f in the shortest form that round-trips, without
// exponent: 12.5, 0.005, 30000, NaN.
func FormatNumber(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func literal(v any) string {
	switch val := v.(type) {
	case nil:
		return "'null'"
	case bool:
		return strconv.FormatBool(val)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(val)
	case float32:
		return FormatNumber(float64(val))
	case float64:
		return FormatNumber(val)
	case json.Number:
		return val.String()
	case string:
		return "'" + val + "'"
	}

	if isStructured(v) {
		b, err := json.Marshal(v)
		if err == nil {
			return "'" + string(b) + "'"
		}
	}
	return fmt.Sprintf("'%v'", v)
}

func bindValue(v any) any {
	switch val := v.(type) {
	case nil, bool, string, time.Time:
		return val
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	}

	if isStructured(v) {
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return v
}

// isStructured reports whether v is a JSON-like container.
func isStructured(v any) bool {
	if _, ok := v.(time.Time); ok {
		return true
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return true
	case reflect.Pointer:
		return !reflect.ValueOf(v).IsNil() && isStructured(reflect.ValueOf(v).Elem().Interface())
	default:
		return false
	}
}
