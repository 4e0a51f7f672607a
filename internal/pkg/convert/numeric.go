// Package convert provides numeric coercion for loosely typed server payloads.
package convert

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseFloat converts the numeric shapes a decoded payload can carry,
// including numeric text, to float64.
func ParseFloat(v any) (float64, error) {
	switch t := v.(type) {
	case nil:
		return 0, fmt.Errorf("value is null")
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(t), 64)
	case decimal.Decimal:
		f, _ := t.Float64()
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}

// ToDecimal parses v without going through float64 when it is already text.
func ToDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case string:
		return decimal.NewFromString(strings.TrimSpace(t))
	case json.Number:
		return decimal.NewFromString(t.String())
	case decimal.Decimal:
		return t, nil
	}
	f, err := ParseFloat(v)
	if err != nil {
		return decimal.Zero, err
	}
	return FromFloat(f), nil
}

// FromFloat maps NaN and ±Inf to zero.
func FromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

// Display renders a payload value the way the server sent it, or fallback
// when absent.
func Display(v any, fallback string) string {
	switch t := v.(type) {
	case nil:
		return fallback
	case string:
		if t == "" {
			return fallback
		}
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
