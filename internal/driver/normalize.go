package driver

import (
	"database/sql/driver"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// NormalizeValue converts a scanned column value into the small set of
// types the engine works with: nil, bool, int64, float64, string, time.Time,
// or a JSON-like map/slice. Unknown types pass through unchanged.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	case [16]byte:
		return uuid.UUID(val).String()
	case uuid.UUID:
		return val.String()
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint:
		if uint64(val) <= 1<<63-1 {
			return int64(val)
		}
		return val
	case uint64:
		if val <= 1<<63-1 {
			return int64(val)
		}
		return val
	case float32:
		return float64(val)
	case *big.Int:
		if val.IsInt64() {
			return val.Int64()
		}
		return val.String()
	case time.Time:
		if val.Year() < 1 {
			return nil
		}
		return val
	case driver.Valuer:
		inner, err := val.Value()
		if err != nil {
			return val
		}
		if _, again := inner.(driver.Valuer); again {
			return inner
		}
		return NormalizeValue(inner)
	default:
		return v
	}
}
