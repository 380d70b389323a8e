// Package validate normalizes loose key-value payloads into canonical entities.
//
// Every function here is total: malformed input is folded into a documented default
// instead of producing an error, so later stages never branch on bad data.
package validate

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// lookup returns the first present, non-nil value among keys. Callers pass camelCase
// and snake_case spellings of the same field.
func lookup(p map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := p[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Float parses numbers, json.Number and numeric strings ("1,250.50"). Anything else,
// including NaN and infinities, becomes 0.
func Float(v any) float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		f = parseNumeric(n.String())
	case string:
		f = parseNumeric(n)
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func parseNumeric(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// NonNegative folds negative values to their absolute value.
func NonNegative(v any) float64 {
	return math.Abs(Float(v))
}

// Int rounds a parsed number half away from zero, saturating at the int range.
func Int(v any) int {
	f := math.Round(Float(v))
	switch {
	case f >= math.MaxInt:
		return math.MaxInt
	case f <= math.MinInt:
		return math.MinInt
	}
	return int(f)
}

// Score parses an integer score clamped to [0,100].
func Score(v any) int {
	return ClampInt(Int(v), 0, 100)
}

// Probability parses a real clamped to [0,1].
func Probability(v any) float64 {
	return Clamp(Float(v), 0, 1)
}

// Clamp bounds f to [lo,hi]. NaN becomes lo.
func Clamp(f, lo, hi float64) float64 {
	if math.IsNaN(f) {
		return lo
	}
	return math.Max(lo, math.Min(hi, f))
}

// ClampInt bounds n to [lo,hi].
func ClampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// String trims strings and renders numbers without exponent; empty input yields def.
func String(v any, def string) string {
	var s string
	switch t := v.(type) {
	case string:
		s = strings.TrimSpace(t)
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		s = strconv.Itoa(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	case bool:
		s = strconv.FormatBool(t)
	}
	if s == "" {
		return def
	}
	return s
}

// Port normalizes a UN/LOCODE-style port code: upper case, inner spaces removed.
func Port(v any) string {
	s := strings.ToUpper(strings.ReplaceAll(String(v, ""), " ", ""))
	if s == "" || s == strings.ToUpper(unknown) {
		return unknown
	}
	return s
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Time parses RFC 3339 or calendar dates into UTC. Unparsable input is the zero time.
func Time(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC()
			}
		}
	}
	return time.Time{}
}

// Map returns v as an object, or an empty one.
func Map(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// List returns v as an array, or nil.
func List(v any) []any {
	if l, ok := v.([]any); ok {
		return l
	}
	return nil
}
