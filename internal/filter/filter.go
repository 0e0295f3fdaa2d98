// Package filter implements the event filter language: a JSON rule tree
// combining field comparisons with and/or/not.
package filter

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"

	apperrors "onebridge/pkg/errors"
)

const (
	opAnd      = "and"
	opOr       = "or"
	opNot      = "not"
	opEq       = "eq"
	opNeq      = "neq"
	opIn       = "in"
	opContains = "contains"
	opRegex    = "regex"

	combinatorPrefix = "."
	regexTimeout     = 100 * time.Millisecond
)

// missing stands for a field the event does not carry. It never equals any
// rule value, including null.
type missing struct{}

// Rule is a parsed filter document. It is read-only after Parse and safe for
// concurrent use.
type Rule struct {
	root    any
	regexes sync.Map
}

func Parse(raw []byte) (*Rule, error) {
	root, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("parse filter: %w", err)
	}
	return &Rule{root: root}, nil
}

// LoadFile reads a filter document from disk.
func LoadFile(path string) (*Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read filter file: %w", err)
	}
	return Parse(raw)
}

// Matches reports whether the event passes rule. A nil rule passes every
// event; any evaluation error is treated as no match.
func Matches(rule *Rule, fields map[string]any) bool {
	if rule == nil {
		return true
	}
	ok, err := rule.Evaluate(fields)
	return err == nil && ok
}

// MatchesJSON decodes a serialized event and evaluates rule against it.
func MatchesJSON(rule *Rule, payload []byte) bool {
	if rule == nil {
		return true
	}
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return false
	}
	return Matches(rule, fields)
}

// Evaluate runs the rule and returns the evaluation error, if any, instead
// of folding it into false.
func (r *Rule) Evaluate(fields map[string]any) (matched bool, err error) {
	err = apperrors.Guard(func() error {
		var evalErr error
		matched, evalErr = r.exec(fields, r.root, opAnd, binding{})
		return evalErr
	})
	return matched, err
}

type binding struct {
	name  string
	bound bool
}

func (b binding) lookup(fields map[string]any) any {
	if !b.bound {
		return missing{}
	}
	v, ok := fields[b.name]
	if !ok {
		return missing{}
	}
	return v
}

func isCombinator(op string) bool {
	return op == opAnd || op == opOr || op == opNot
}

func (r *Rule) exec(fields map[string]any, value any, op string, field binding) (bool, error) {
	if isCombinator(op) {
		return r.combine(fields, value, op, field)
	}

	if obj, ok := value.(*object); ok {
		return r.exec(fields, obj, opAnd, field)
	}

	fv := field.lookup(fields)

	switch op {
	case opEq:
		return strictEqual(value, fv), nil
	case opNeq:
		return !strictEqual(value, fv), nil
	case opIn:
		return in(value, fv)
	case opContains:
		return contains(fv, value)
	case opRegex:
		return r.regex(value, fv)
	default:
		return true, nil
	}
}

// combine applies and/or/not across the children of a list or object.
// Completion without a short-circuit is true for and/not and for an empty
// or; a non-empty or with no matching child is false.
func (r *Rule) combine(fields map[string]any, value any, op string, field binding) (bool, error) {
	var (
		n     int
		child func(i int) (bool, error)
	)

	switch v := value.(type) {
	case []any:
		n = len(v)
		child = func(i int) (bool, error) {
			return r.exec(fields, v[i], opAnd, field)
		}
	case *object:
		n = v.len()
		child = func(i int) (bool, error) {
			key := v.keys[i]
			if strings.HasPrefix(key, combinatorPrefix) {
				return r.exec(fields, v.values[i], strings.TrimPrefix(key, combinatorPrefix), field)
			}
			return r.exec(fields, v.values[i], opEq, binding{name: key, bound: true})
		}
	default:
		return false, nil
	}

	for i := 0; i < n; i++ {
		matched, err := child(i)
		if err != nil {
			return false, err
		}
		switch {
		case !matched && op == opAnd:
			return false, nil
		case matched && op == opNot:
			return false, nil
		case matched && op == opOr:
			return true, nil
		}
	}

	return op != opOr || n == 0, nil
}

// strictEqual compares two JSON scalars by type and value. Lists and
// objects never compare equal, matching identity comparison of fresh values.
func strictEqual(a, b any) bool {
	switch a.(type) {
	case []any, *object, map[string]any, missing:
		return false
	}
	switch b.(type) {
	case []any, *object, map[string]any, missing:
		return false
	}
	return a == b
}

func in(value, fv any) (bool, error) {
	switch v := value.(type) {
	case []any:
		for _, item := range v {
			if strictEqual(item, fv) {
				return true, nil
			}
		}
		return false, nil
	case string:
		s, ok := scalarString(fv)
		if !ok {
			return false, nil
		}
		return strings.Contains(v, s), nil
	default:
		return false, fmt.Errorf("in: rule value is %T, want list or string", value)
	}
}

func contains(fv, value any) (bool, error) {
	switch f := fv.(type) {
	case string:
		s, ok := scalarString(value)
		if !ok {
			return false, fmt.Errorf("contains: rule value is %T, want scalar", value)
		}
		return strings.Contains(f, s), nil
	case []any:
		for _, item := range f {
			if strictEqual(item, value) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("contains: field value is %T, want string or list", fv)
	}
}

func (r *Rule) regex(value, fv any) (bool, error) {
	pattern, ok := value.(string)
	if !ok {
		return false, fmt.Errorf("regex: rule value is %T, want string", value)
	}
	subject, ok := fv.(string)
	if !ok {
		return false, fmt.Errorf("regex: field value is %T, want string", fv)
	}

	re, err := r.compile(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(subject)
}

func (r *Rule) compile(literal string) (*regexp2.Regexp, error) {
	if cached, ok := r.regexes.Load(literal); ok {
		return cached.(*regexp2.Regexp), nil
	}

	pattern, flags := splitPattern(literal)
	opts, err := regexOptions(flags)
	if err != nil {
		return nil, err
	}

	re, err := regexp2.Compile(pattern, opts)
	if err != nil {
		return nil, fmt.Errorf("regex: compile %q: %w", pattern, err)
	}
	re.MatchTimeout = regexTimeout

	r.regexes.Store(literal, re)
	return re, nil
}

// splitPattern accepts "pattern", "/pattern" or "/pattern/flags". The
// pattern itself cannot contain a slash.
func splitPattern(literal string) (string, string) {
	literal = strings.TrimPrefix(literal, "/")
	parts := strings.Split(literal, "/")
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

func regexOptions(flags string) (regexp2.RegexOptions, error) {
	opts := regexp2.None
	seen := make(map[rune]bool, len(flags))
	for _, f := range flags {
		if seen[f] {
			return 0, fmt.Errorf("regex: duplicate flag %q", f)
		}
		seen[f] = true

		switch f {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			opts |= regexp2.Singleline
		case 'g', 'y', 'u', 'd':
			// no effect on a boolean test
		default:
			return 0, fmt.Errorf("regex: invalid flag %q", f)
		}
	}
	return opts, nil
}

func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(s), true
	case nil:
		return "null", true
	default:
		return "", false
	}
}
