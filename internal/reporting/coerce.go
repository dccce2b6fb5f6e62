package reporting

import (
	"database/sql/driver"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// toDecimal reads a money value. Unknown or malformed values count as zero.
func toDecimal(v any) decimal.Decimal {
	switch val := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return val
	case *decimal.Decimal:
		if val == nil {
			return decimal.Zero
		}
		return *val
	case pgtype.Numeric:
		return numericDecimal(val)
	case *pgtype.Numeric:
		if val == nil {
			return decimal.Zero
		}
		return numericDecimal(*val)
	case string:
		return parseDecimal(val)
	case []byte:
		return parseDecimal(string(val))
	case float64:
		return decimal.NewFromFloat(val)
	case float32:
		return decimal.NewFromFloat32(val)
	case int64:
		return decimal.NewFromInt(val)
	case int32:
		return decimal.NewFromInt32(val)
	case int:
		return decimal.NewFromInt(int64(val))
	case uint32:
		return decimal.NewFromInt(int64(val))
	case driver.Valuer:
		raw, err := val.Value()
		if err != nil {
			return decimal.Zero
		}
		return toDecimal(raw)
	default:
		return parseDecimal(fmt.Sprint(val))
	}
}

func numericDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.NaN || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(new(big.Int).Set(n.Int), n.Exp)
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// toInt64 reads a count or quantity. Fractions are truncated.
func toInt64(v any) int64 {
	switch val := v.(type) {
	case nil:
		return 0
	case int64:
		return val
	case int32:
		return int64(val)
	case int16:
		return int64(val)
	case int:
		return int64(val)
	case uint32:
		return int64(val)
	case float64:
		return int64(val)
	case float32:
		return int64(val)
	case string:
		s := strings.TrimSpace(val)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		return parseDecimal(s).IntPart()
	default:
		return toDecimal(val).IntPart()
	}
}

func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

func toBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(val))
		return b
	case int64:
		return val != 0
	default:
		return false
	}
}

// toTime reads a DATE or TIMESTAMPTZ column. Strings in RFC 3339 or
// YYYY-MM-DD form are accepted.
func toTime(v any) time.Time {
	switch val := v.(type) {
	case time.Time:
		return val
	case *time.Time:
		if val == nil {
			return time.Time{}
		}
		return *val
	case pgtype.Date:
		if !val.Valid {
			return time.Time{}
		}
		return val.Time
	case string:
		s := strings.TrimSpace(val)
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
		if t, err := time.Parse(time.DateOnly, s); err == nil {
			return t
		}
		return time.Time{}
	default:
		return time.Time{}
	}
}
