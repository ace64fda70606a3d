package repository

import (
	"encoding/json"
	"time"
)

// Row value coercions. Statement results come back as generic column maps,
// with integer widths and json encodings varying by column type, so the
// repositories normalize here instead of at every call site.

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int16:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func asInt64Ptr(v any) *int64 {
	if v == nil {
		return nil
	}
	n := asInt64(v)
	return &n
}

func asInt(v any) int {
	return int(asInt64(v))
}

func asFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	}
	return 0
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return ""
}

func asBool(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

// asStringSlice normalizes text[] columns, which decode as []string or
// []any depending on the driver path.
func asStringSlice(v any) []string {
	switch s := v.(type) {
	case nil:
		return nil
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			out = append(out, asString(e))
		}
		return out
	}
	return nil
}

func asTime(v any) time.Time {
	if t, ok := v.(time.Time); ok {
		return t
	}
	return time.Time{}
}

func asRawJSON(v any) json.RawMessage {
	switch j := v.(type) {
	case nil:
		return nil
	case []byte:
		return json.RawMessage(j)
	case string:
		return json.RawMessage(j)
	default:
		b, err := json.Marshal(j)
		if err != nil {
			return nil
		}
		return b
	}
}
