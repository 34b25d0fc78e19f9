// Package filter is the metadata predicate language shared by every
// collection backend: equality, set membership, conjunction and disjunction
// over string-valued metadata keys.
package filter

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/markdave123-py/Ledgerlens/internal/internalerr"
)

type Op string

const (
	OpEq  Op = "$eq"
	OpIn  Op = "$in"
	OpAnd Op = "$and"
	OpOr  Op = "$or"
)

// Expr is a node of a filter tree. The zero value matches every unit.
type Expr struct {
	Op     Op
	Key    string
	Value  string
	Values []string
	Args   []Expr
}

var keyPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Eq matches units whose key equals value.
func Eq(key, value string) Expr {
	return Expr{Op: OpEq, Key: key, Value: value}
}

// In matches units whose key equals any of values. A single value collapses
// to Eq.
func In(key string, values ...string) Expr {
	if len(values) == 1 {
		return Eq(key, values[0])
	}
	return Expr{Op: OpIn, Key: key, Values: values}
}

// And is the conjunction of args. Zero-valued args are dropped.
func And(args ...Expr) Expr {
	return combine(OpAnd, args)
}

// Or is the disjunction of args. Zero-valued args are dropped.
func Or(args ...Expr) Expr {
	return combine(OpOr, args)
}

func combine(op Op, args []Expr) Expr {
	kept := make([]Expr, 0, len(args))
	for _, a := range args {
		if !a.IsZero() {
			kept = append(kept, a)
		}
	}
	switch len(kept) {
	case 0:
		return Expr{}
	case 1:
		return kept[0]
	}
	return Expr{Op: op, Args: kept}
}

// IsZero reports whether e matches everything.
func (e Expr) IsZero() bool {
	return e.Op == ""
}

// Validate reports structural problems as internalerr.ErrInvalidFilter.
func (e Expr) Validate() error {
	switch e.Op {
	case "":
		return nil
	case OpEq:
		return validKey(e.Key)
	case OpIn:
		if err := validKey(e.Key); err != nil {
			return err
		}
		if len(e.Values) == 0 {
			return fmt.Errorf("%w: $in on %q needs at least one value", internalerr.ErrInvalidFilter, e.Key)
		}
		return nil
	case OpAnd, OpOr:
		if len(e.Args) == 0 {
			return fmt.Errorf("%w: %s needs at least one operand", internalerr.ErrInvalidFilter, e.Op)
		}
		for _, a := range e.Args {
			if a.IsZero() {
				return fmt.Errorf("%w: empty operand in %s", internalerr.ErrInvalidFilter, e.Op)
			}
			if err := a.Validate(); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown operator %q", internalerr.ErrInvalidFilter, e.Op)
	}
}

func validKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: bad metadata key %q", internalerr.ErrInvalidFilter, key)
	}
	return nil
}

// Match evaluates e against a metadata map. An absent key never matches.
func (e Expr) Match(md map[string]string) bool {
	switch e.Op {
	case "":
		return true
	case OpEq:
		v, ok := md[e.Key]
		return ok && v == e.Value
	case OpIn:
		v, ok := md[e.Key]
		if !ok {
			return false
		}
		for _, want := range e.Values {
			if v == want {
				return true
			}
		}
		return false
	case OpAnd:
		for _, a := range e.Args {
			if !a.Match(md) {
				return false
			}
		}
		return true
	case OpOr:
		for _, a := range e.Args {
			if a.Match(md) {
				return true
			}
		}
		return false
	}
	return false
}

// Keys returns the distinct metadata keys e refers to, sorted.
func (e Expr) Keys() []string {
	seen := map[string]bool{}
	var walk func(Expr)
	walk = func(x Expr) {
		if x.Key != "" {
			seen[x.Key] = true
		}
		for _, a := range x.Args {
			walk(a)
		}
	}
	walk(e)
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (e Expr) String() string {
	switch e.Op {
	case "":
		return "*"
	case OpEq:
		return fmt.Sprintf("%s=%q", e.Key, e.Value)
	case OpIn:
		return fmt.Sprintf("%s in %q", e.Key, e.Values)
	}
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = a.String()
	}
	sep := " AND "
	if e.Op == OpOr {
		sep = " OR "
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// FromWhere parses a Chroma-style where clause, for example
//
//	{"$and": [{"Quarter": {"$eq": "Q1-2025"}}, {"Content_Type": {"$in": ["table", "chart"]}}]}
//
// Several keys in one object are combined with $and, in key order.
func FromWhere(where map[string]any) (Expr, error) {
	if len(where) == 0 {
		return Expr{}, nil
	}
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []Expr
	for _, k := range keys {
		v := where[k]
		switch k {
		case string(OpAnd), string(OpOr):
			list, ok := v.([]any)
			if !ok || len(list) == 0 {
				return Expr{}, fmt.Errorf("%w: %s expects a non-empty list", internalerr.ErrInvalidFilter, k)
			}
			args := make([]Expr, 0, len(list))
			for _, item := range list {
				obj, ok := item.(map[string]any)
				if !ok {
					return Expr{}, fmt.Errorf("%w: %s operands must be objects", internalerr.ErrInvalidFilter, k)
				}
				sub, err := FromWhere(obj)
				if err != nil {
					return Expr{}, err
				}
				args = append(args, sub)
			}
			parts = append(parts, Expr{Op: Op(k), Args: args})
		default:
			if strings.HasPrefix(k, "$") {
				return Expr{}, fmt.Errorf("%w: unknown operator %q", internalerr.ErrInvalidFilter, k)
			}
			sub, err := fieldExpr(k, v)
			if err != nil {
				return Expr{}, err
			}
			parts = append(parts, sub)
		}
	}
	e := And(parts...)
	if err := e.Validate(); err != nil {
		return Expr{}, err
	}
	return e, nil
}

func fieldExpr(key string, v any) (Expr, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		s, err := scalar(v)
		if err != nil {
			return Expr{}, fmt.Errorf("%w: %s: %v", internalerr.ErrInvalidFilter, key, err)
		}
		return Eq(key, s), nil
	}
	if len(obj) != 1 {
		return Expr{}, fmt.Errorf("%w: %s expects exactly one operator", internalerr.ErrInvalidFilter, key)
	}
	for op, arg := range obj {
		switch Op(op) {
		case OpEq:
			s, err := scalar(arg)
			if err != nil {
				return Expr{}, fmt.Errorf("%w: %s: %v", internalerr.ErrInvalidFilter, key, err)
			}
			return Eq(key, s), nil
		case OpIn:
			list, ok := arg.([]any)
			if !ok || len(list) == 0 {
				return Expr{}, fmt.Errorf("%w: %s $in expects a non-empty list", internalerr.ErrInvalidFilter, key)
			}
			vals := make([]string, 0, len(list))
			for _, item := range list {
				s, err := scalar(item)
				if err != nil {
					return Expr{}, fmt.Errorf("%w: %s: %v", internalerr.ErrInvalidFilter, key, err)
				}
				vals = append(vals, s)
			}
			return In(key, vals...), nil
		default:
			return Expr{}, fmt.Errorf("%w: unsupported operator %q on %s", internalerr.ErrInvalidFilter, op, key)
		}
	}
	return Expr{}, nil
}

func scalar(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	}
	return "", fmt.Errorf("unsupported value %v", v)
}
