package common

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// FloatFrom converts loosely typed values decoded from JSON or SQL into a finite
// float64. It reports false for nil, booleans, non-numeric strings, NaN and Inf.
func FloatFrom(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// IntFrom behaves like FloatFrom and truncates the result toward zero.
func IntFrom(v any) (int, bool) {
	f, ok := FloatFrom(v)
	if !ok {
		return 0, false
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

// IntOrDefault returns the coerced integer or def when v cannot be coerced.
func IntOrDefault(v any, def int) int {
	if n, ok := IntFrom(v); ok {
		return n
	}
	return def
}

// BoolFrom converts booleans, 0/1 numbers and common textual flags.
func BoolFrom(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "1", "t", "true", "yes", "on":
			return true, true
		case "0", "f", "false", "no", "off":
			return false, true
		}
		return false, false
	}
	if f, ok := FloatFrom(v); ok {
		switch f {
		case 1:
			return true, true
		case 0:
			return false, true
		}
	}
	return false, false
}

// BoolOrDefault returns the coerced flag or def.
func BoolOrDefault(v any, def bool) bool {
	if b, ok := BoolFrom(v); ok {
		return b
	}
	return def
}
