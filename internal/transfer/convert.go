package transfer

import "encoding/json"

// Convert builds the target row for one source row. Columns are visited in
// declaration order and keyed by target name. A column with an "int"
// conversion becomes true exactly when the source value equals 1; all other
// columns pass through unchanged. Missing source columns yield nil.
func Convert(row Row, spec MigrationSpec) Row {
	out := make(Row, len(spec.Columns))
	for _, col := range spec.Columns {
		v := row[col.Column]
		if col.Conversion != nil && col.Conversion.Type == TypeInt {
			v = isOne(v)
		}
		out[col.TargetName()] = v
	}
	return out
}

// isOne reports whether v is the number 1. Strings and booleans never are.
func isOne(v any) bool {
	switch n := v.(type) {
	case int:
		return n == 1
	case int8:
		return n == 1
	case int16:
		return n == 1
	case int32:
		return n == 1
	case int64:
		return n == 1
	case uint:
		return n == 1
	case uint8:
		return n == 1
	case uint16:
		return n == 1
	case uint32:
		return n == 1
	case uint64:
		return n == 1
	case float32:
		return n == 1
	case float64:
		return n == 1
	case json.Number:
		f, err := n.Float64()
		return err == nil && f == 1
	default:
		return false
	}
}
