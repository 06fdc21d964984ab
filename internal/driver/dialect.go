package driver

import "strings"

// Dialect is the SQL syntax a driver speaks.
type Dialect interface {
	// DBType is the adapter name, e.g. "mysql".
	DBType() string

	// QuoteIdentifier quotes one identifier: "x" for postgres and sqlite,
	// [x] for sql server, `x` for mysql.
	QuoteIdentifier(name string) string

	// ParameterPlaceholder returns the bind marker for a 1-based index:
	// $n for postgres, @pn for sql server, ? elsewhere.
	ParameterPlaceholder(index int) string

	// BuildDSN renders cfg as this driver's connection string.
	BuildDSN(cfg Config) string
}

// QuoteTable quotes a possibly schema-qualified table name ("sales.orders")
// one segment at a time.
func QuoteTable(d Dialect, name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = d.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

// ColumnList quotes and joins column names for a statement.
func ColumnList(d Dialect, cols []string) string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		out = append(out, d.QuoteIdentifier(c))
	}
	return strings.Join(out, ", ")
}
