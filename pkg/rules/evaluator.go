package rules

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/fieldpath"
	"github.com/dmitrymomot/notifykit/pkg/notification"
)

const defaultMaxDepth = 32

// Evaluator evaluates condition trees against notifications. A
// misbehaving condition never aborts evaluation: every per-condition
// error degrades to false so the remaining rules still run.
type Evaluator struct {
	logger   *slog.Logger
	maxDepth int
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithEvaluatorLogger sets the logger used for degraded evaluations.
func WithEvaluatorLogger(logger *slog.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMaxDepth bounds condition tree recursion. Trees deeper than the
// bound evaluate to false instead of recursing further.
func WithMaxDepth(depth int) EvaluatorOption {
	return func(e *Evaluator) {
		if depth > 0 {
			e.maxDepth = depth
		}
	}
}

// NewEvaluator creates a condition evaluator.
func NewEvaluator(opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		logger:   slog.Default(),
		maxDepth: defaultMaxDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate returns whether the condition tree matches the notification.
func (e *Evaluator) Evaluate(cond Condition, n *notification.Notification) bool {
	if n == nil {
		return false
	}
	return e.eval(cond, n, 0)
}

func (e *Evaluator) eval(cond Condition, n *notification.Notification, depth int) bool {
	if depth > e.maxDepth {
		e.logger.Warn("condition tree exceeds max depth, treating as non-match",
			slog.Int("max_depth", e.maxDepth))
		return false
	}

	if cond.IsComposite() {
		return e.evalComposite(cond, n, depth)
	}
	return e.evalLeaf(cond, n)
}

// evalComposite combines nested results. An empty nested list is a
// malformed composite and never matches: composites must evaluate via
// their children, never default to true.
func (e *Evaluator) evalComposite(cond Condition, n *notification.Notification, depth int) bool {
	if len(cond.Nested) == 0 {
		return false
	}

	switch cond.Logical {
	case LogicalAnd:
		for _, nested := range cond.Nested {
			if !e.eval(nested, n, depth+1) {
				return false
			}
		}
		return true
	case LogicalOr:
		for _, nested := range cond.Nested {
			if e.eval(nested, n, depth+1) {
				return true
			}
		}
		return false
	case LogicalNot:
		for _, nested := range cond.Nested {
			if e.eval(nested, n, depth+1) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (e *Evaluator) evalLeaf(cond Condition, n *notification.Notification) bool {
	value, found := fieldpath.Resolve(n, cond.FieldPath)
	present := found && value != nil

	switch cond.Operator {
	case OpEquals, OpIn:
		return matchesAny(value, present, cond.ExpectedValues, cond.CaseSensitive)
	case OpNotEquals, OpNotIn:
		return !matchesAny(value, present, cond.ExpectedValues, cond.CaseSensitive)
	case OpGreaterThan:
		cmp, ok := compareOrdered(value, present, cond.ExpectedValues)
		return ok && cmp > 0
	case OpGreaterThanOrEqual:
		cmp, ok := compareOrdered(value, present, cond.ExpectedValues)
		return ok && cmp >= 0
	case OpLessThan:
		cmp, ok := compareOrdered(value, present, cond.ExpectedValues)
		return ok && cmp < 0
	case OpLessThanOrEqual:
		cmp, ok := compareOrdered(value, present, cond.ExpectedValues)
		return ok && cmp <= 0
	case OpContains:
		return matchesSubstring(value, present, cond.ExpectedValues, cond.CaseSensitive, strings.Contains)
	case OpDoesNotContain:
		// Absent and empty values never match the substring family,
		// including the negated member: an empty subject does not
		// "not contain" anything.
		if !present || stringify(value) == "" {
			return false
		}
		return !matchesSubstring(value, present, cond.ExpectedValues, cond.CaseSensitive, strings.Contains)
	case OpStartsWith:
		return matchesSubstring(value, present, cond.ExpectedValues, cond.CaseSensitive, strings.HasPrefix)
	case OpEndsWith:
		return matchesSubstring(value, present, cond.ExpectedValues, cond.CaseSensitive, strings.HasSuffix)
	case OpRegex:
		return matchesRegex(value, present, cond.ExpectedValues)
	case OpIsNull:
		return !present
	case OpIsNotNull:
		return present
	default:
		return false
	}
}

// matchesAny reports whether the resolved value equals any expected
// value. An absent value matches only an explicit nil entry.
func matchesAny(value any, present bool, expected []any, caseSensitive bool) bool {
	for _, exp := range expected {
		if !present {
			if exp == nil {
				return true
			}
			continue
		}
		if exp == nil {
			continue
		}
		if looseEqual(value, exp, caseSensitive) {
			return true
		}
	}
	return false
}

// looseEqual compares two values across the type boundaries a rule
// author cannot control: numbers stored as int vs decoded as float64,
// priorities referenced by name, times serialized as RFC3339 strings.
func looseEqual(value, exp any, caseSensitive bool) bool {
	if av, aok := toFloat(value); aok {
		if bv, bok := toFloat(exp); bok {
			return av == bv
		}
	}
	if ab, aok := value.(bool); aok {
		if bb, bok := exp.(bool); bok {
			return ab == bb
		}
	}
	if at, aok := toTime(value); aok {
		if bt, bok := toTime(exp); bok {
			return at.Equal(bt)
		}
	}

	as, bs := stringify(value), stringify(exp)
	if caseSensitive {
		return as == bs
	}
	return strings.EqualFold(as, bs)
}

// compareOrdered compares the value against the first expected value:
// natural ordering when both operands are ordinal-comparable, ordinal
// string comparison otherwise. Absent values never compare.
func compareOrdered(value any, present bool, expected []any) (int, bool) {
	if !present || len(expected) == 0 || expected[0] == nil {
		return 0, false
	}
	exp := expected[0]

	if av, aok := toFloat(value); aok {
		if bv, bok := toFloat(exp); bok {
			switch {
			case av < bv:
				return -1, true
			case av > bv:
				return 1, true
			default:
				return 0, true
			}
		}
	}

	if at, aok := toTime(value); aok {
		if bt, bok := toTime(exp); bok {
			switch {
			case at.Before(bt):
				return -1, true
			case at.After(bt):
				return 1, true
			default:
				return 0, true
			}
		}
	}

	return strings.Compare(stringify(value), stringify(exp)), true
}

func matchesSubstring(value any, present bool, expected []any, caseSensitive bool, test func(s, substr string) bool) bool {
	if !present {
		return false
	}
	s := stringify(value)
	if s == "" {
		return false
	}
	if !caseSensitive {
		s = strings.ToLower(s)
	}
	for _, exp := range expected {
		if exp == nil {
			continue
		}
		sub := stringify(exp)
		if !caseSensitive {
			sub = strings.ToLower(sub)
		}
		if test(s, sub) {
			return true
		}
	}
	return false
}

// matchesRegex treats each expected value as a pattern. Invalid patterns
// are skipped, never surfaced as errors.
func matchesRegex(value any, present bool, expected []any) bool {
	if !present {
		return false
	}
	s := stringify(value)
	for _, exp := range expected {
		if exp == nil {
			continue
		}
		re, err := regexp.Compile(stringify(exp))
		if err != nil {
			continue
		}
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// toFloat coerces the numeric types that reach the evaluator: native Go
// ints and floats, typed priorities, and priority names. JSON decoding
// produces float64; stores may hand back any integer width.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case time.Duration:
		return float64(n), true
	case notification.Priority:
		return float64(n), true
	case string:
		if p, ok := notification.ParsePriority(n); ok {
			return float64(p), true
		}
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
