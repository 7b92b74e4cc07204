// Package tsv serializes pull-driven row sequences as tab-separated text.
package tsv

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Record is one flat output row keyed by column name. Values are strings,
// integers, floats, booleans or nil.
type Record map[string]any

// Line renders the record's values for columns, tab-joined and
// newline-terminated. Absent and nil values render as the empty string.
func (r Record) Line(columns []string) string {
	var b strings.Builder
	for i, col := range columns {
		if i > 0 {
			b.WriteByte('\t')
		}
		b.WriteString(FormatValue(r[col]))
	}
	b.WriteByte('\n')
	return b.String()
}

// FormatValue renders a scalar the way the portal's TSV files always have.
// Tabs and newlines inside strings are replaced by spaces so a value can
// never break the row structure.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return sanitize(x)
	case *string:
		if x == nil {
			return ""
		}
		return sanitize(*x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case *int:
		if x == nil {
			return ""
		}
		return strconv.Itoa(*x)
	case float64:
		return formatFloat(x)
	case *float64:
		if x == nil {
			return ""
		}
		return formatFloat(*x)
	case bool:
		return strconv.FormatBool(x)
	case *bool:
		if x == nil {
			return ""
		}
		return strconv.FormatBool(*x)
	default:
		return sanitize(fmt.Sprint(x))
	}
}

// formatFloat prints the shortest representation that round-trips, in
// positional notation for ordinary magnitudes and exponent notation for very
// small or very large ones (1e-7, 2.5e+21).
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	abs := math.Abs(f)
	if abs == 0 || (abs >= 1e-6 && abs < 1e21) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	// strconv pads the exponent to two digits
	mantissa, exp, _ := strings.Cut(s, "e")
	sign := exp[:1]
	digits := strings.TrimLeft(exp[1:], "0")
	if digits == "" {
		digits = "0"
	}
	return mantissa + "e" + sign + digits
}

var sanitizer = strings.NewReplacer("\t", " ", "\r\n", " ", "\n", " ", "\r", " ")

func sanitize(s string) string {
	if !strings.ContainsAny(s, "\t\r\n") {
		return s
	}
	return sanitizer.Replace(s)
}
