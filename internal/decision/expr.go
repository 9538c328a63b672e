// Package decision evaluates DMN-style decision tables against a
// token's context data: a small hand-written FEEL-subset grammar for
// per-cell matching, combined per row (conjunctive) and across rows
// according to a declared hit policy. No general FEEL engine exists in
// the stack this kernel draws on, so the grammar is implemented directly
// rather than delegated to a library.
package decision

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// EvaluateExpr reports whether value satisfies the FEEL-subset
// expression expr. An empty expression, "-", or "*" always matches.
func EvaluateExpr(expr string, value any) bool {
	e := strings.TrimSpace(expr)
	switch e {
	case "", "-", "*":
		return true
	case "true":
		b, ok := value.(bool)
		return ok && b
	case "false":
		b, ok := value.(bool)
		return ok && !b
	case "null":
		return value == nil
	case "not null":
		return value != nil
	}

	if strings.HasPrefix(e, `"`) && strings.HasSuffix(e, `"`) && len(e) >= 2 {
		return stringOf(value) == e[1:len(e)-1]
	}

	if rng, ok := parseRange(e); ok {
		return rng.matches(value)
	}

	if strings.HasPrefix(e, "not in(") && strings.HasSuffix(e, ")") {
		return !inSet(e[len("not in("):len(e)-1], value)
	}
	if strings.HasPrefix(e, "in(") && strings.HasSuffix(e, ")") {
		return inSet(e[len("in("):len(e)-1], value)
	}

	if strings.HasPrefix(e, "contains(") && strings.HasSuffix(e, ")") {
		needle := unquote(strings.TrimSpace(e[len("contains("):len(e)-1]))
		return strings.Contains(stringOf(value), needle)
	}
	if strings.HasPrefix(e, "starts with ") {
		return strings.HasPrefix(stringOf(value), unquote(strings.TrimSpace(e[len("starts with "):])))
	}
	if strings.HasPrefix(e, "ends with ") {
		return strings.HasSuffix(stringOf(value), unquote(strings.TrimSpace(e[len("ends with "):])))
	}
	if strings.HasPrefix(e, "matches(") && strings.HasSuffix(e, ")") {
		pattern := unquote(strings.TrimSpace(e[len("matches("):len(e)-1]))
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(stringOf(value))
	}

	if cmp, ok := parseComparison(e); ok {
		return cmp.matches(value)
	}

	if n, err := strconv.ParseFloat(e, 64); err == nil {
		f, ok := toFloat(value)
		return ok && f == n
	}
	return stringOf(value) == e
}

type comparison struct {
	op      string
	operand string
}

var comparisonOps = []string{">=", "<=", "==", "!=", "<>", ">", "<", "="}

func parseComparison(e string) (comparison, bool) {
	for _, op := range comparisonOps {
		if strings.HasPrefix(e, op) {
			return comparison{op: op, operand: strings.TrimSpace(e[len(op):])}, true
		}
	}
	return comparison{}, false
}

func (c comparison) matches(value any) bool {
	if n, err := strconv.ParseFloat(c.operand, 64); err == nil {
		f, ok := toFloat(value)
		if !ok {
			return false
		}
		switch c.op {
		case ">=":
			return f >= n
		case "<=":
			return f <= n
		case ">":
			return f > n
		case "<":
			return f < n
		case "=", "==":
			return f == n
		case "!=", "<>":
			return f != n
		}
		return false
	}
	s := stringOf(value)
	operand := unquote(c.operand)
	switch c.op {
	case "=", "==":
		return s == operand
	case "!=", "<>":
		return s != operand
	default:
		return false
	}
}

type numRange struct {
	lo, hi           float64
	loIncl, hiIncl   bool
}

var rangePattern = regexp.MustCompile(`^([\[(])\s*(-?[0-9.]+)\s*\.\.\s*(-?[0-9.]+)\s*([\])])$`)

func parseRange(e string) (numRange, bool) {
	m := rangePattern.FindStringSubmatch(e)
	if m == nil {
		return numRange{}, false
	}
	lo, err1 := strconv.ParseFloat(m[2], 64)
	hi, err2 := strconv.ParseFloat(m[3], 64)
	if err1 != nil || err2 != nil {
		return numRange{}, false
	}
	return numRange{lo: lo, hi: hi, loIncl: m[1] == "[", hiIncl: m[4] == "]"}, true
}

func (r numRange) matches(value any) bool {
	f, ok := toFloat(value)
	if !ok {
		return false
	}
	loOK := f > r.lo || (r.loIncl && f == r.lo)
	hiOK := f < r.hi || (r.hiIncl && f == r.hi)
	return loOK && hiOK
}

func inSet(list string, value any) bool {
	s := stringOf(value)
	for _, item := range strings.Split(list, ",") {
		if unquote(strings.TrimSpace(item)) == s {
			return true
		}
	}
	return false
}

func unquote(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}

func stringOf(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
