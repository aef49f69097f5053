// Package rule evaluates the JSON-expressed logic DSL used for workflow
// and task conditions and for enrichment values. Operators are
// single-key objects; literals evaluate to themselves; {"var": [path]}
// reads a dotted path from the evaluation context. Evaluation is
// deterministic and side-effect free.
package rule

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrUnknownOperator is returned for a single-key object whose key is
// not one of the enumerated operators.
var ErrUnknownOperator = errors.New("unknown operator")

// Apply evaluates logic against data and returns the resulting value.
// data is a decoded JSON tree (map[string]any, []any, float64, string,
// bool, nil).
func Apply(logic, data any) (any, error) {
	return eval(logic, data)
}

func eval(logic, data any) (any, error) {
	switch node := logic.(type) {
	case map[string]any:
		if len(node) != 1 {
			// Multi-key and empty objects are literals.
			return node, nil
		}
		for op, operand := range node {
			return applyOperator(op, operand, data)
		}
		return nil, nil
	case []any:
		out := make([]any, len(node))
		for i, item := range node {
			v, err := eval(item, data)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	default:
		return node, nil
	}
}

func applyOperator(op string, operand, data any) (any, error) {
	// Lazy operators receive raw operands.
	switch op {
	case "if", "?:":
		return evalIf(toOperands(operand), data)
	case "and":
		return evalAnd(toOperands(operand), data)
	case "or":
		return evalOr(toOperands(operand), data)
	}

	args, err := evalOperands(toOperands(operand), data)
	if err != nil {
		return nil, err
	}

	switch op {
	case "var":
		return evalVar(args, data)
	case "missing":
		return evalMissing(args, data)
	case "==":
		return looseEqual(arg(args, 0), arg(args, 1)), nil
	case "!=":
		return !looseEqual(arg(args, 0), arg(args, 1)), nil
	case "===":
		return strictEqual(arg(args, 0), arg(args, 1)), nil
	case "!==":
		return !strictEqual(arg(args, 0), arg(args, 1)), nil
	case "<":
		return compareChain(args, func(a, b float64) bool { return a < b })
	case "<=":
		return compareChain(args, func(a, b float64) bool { return a <= b })
	case ">":
		return compareChain(args, func(a, b float64) bool { return a > b })
	case ">=":
		return compareChain(args, func(a, b float64) bool { return a >= b })
	case "!":
		return !truthy(arg(args, 0)), nil
	case "!!":
		return truthy(arg(args, 0)), nil
	case "+":
		return arithmeticFold(op, args, 0, func(acc, v float64) float64 { return acc + v })
	case "*":
		return arithmeticFold(op, args, 1, func(acc, v float64) float64 { return acc * v })
	case "-":
		return evalSubtract(args)
	case "/":
		return evalDivide(args)
	case "%":
		return evalModulo(args)
	case "min":
		return arithmeticPick(op, args, func(a, b float64) bool { return a < b })
	case "max":
		return arithmeticPick(op, args, func(a, b float64) bool { return a > b })
	case "in":
		return evalIn(arg(args, 0), arg(args, 1)), nil
	case "cat":
		return evalCat(args), nil
	default:
		return nil, fmt.Errorf("evaluate %q: %w", op, ErrUnknownOperator)
	}
}

// toOperands normalises an operator's value to an argument list: an
// array is the list, anything else is a single argument.
func toOperands(operand any) []any {
	if list, ok := operand.([]any); ok {
		return list
	}
	return []any{operand}
}

func evalOperands(operands []any, data any) ([]any, error) {
	args := make([]any, len(operands))
	for i, o := range operands {
		v, err := eval(o, data)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

func evalVar(args []any, data any) (any, error) {
	path := arg(args, 0)
	if path == nil || path == "" {
		return data, nil
	}
	key, ok := path.(string)
	if !ok {
		return nil, fmt.Errorf("evaluate \"var\": path must be a string, got %T", path)
	}
	if v, found := lookup(data, key); found {
		return v, nil
	}
	return arg(args, 1), nil
}

func evalMissing(args []any, data any) (any, error) {
	missing := []any{}
	for _, a := range args {
		key, ok := a.(string)
		if !ok {
			continue
		}
		if _, found := lookup(data, key); !found {
			missing = append(missing, key)
		}
	}
	return missing, nil
}

func lookup(data any, path string) (any, bool) {
	cur := data
	for _, part := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

func evalIf(operands []any, data any) (any, error) {
	i := 0
	for ; i+1 < len(operands); i += 2 {
		cond, err := eval(operands[i], data)
		if err != nil {
			return nil, err
		}
		if truthy(cond) {
			return eval(operands[i+1], data)
		}
	}
	if i < len(operands) {
		return eval(operands[i], data)
	}
	return nil, nil
}

func evalAnd(operands []any, data any) (any, error) {
	var last any
	for _, o := range operands {
		v, err := eval(o, data)
		if err != nil {
			return nil, err
		}
		if !truthy(v) {
			return v, nil
		}
		last = v
	}
	return last, nil
}

func evalOr(operands []any, data any) (any, error) {
	var last any
	for _, o := range operands {
		v, err := eval(o, data)
		if err != nil {
			return nil, err
		}
		if truthy(v) {
			return v, nil
		}
		last = v
	}
	return last, nil
}

func evalSubtract(args []any) (any, error) {
	a, err := toNumber(arg(args, 0))
	if err != nil {
		return nil, fmt.Errorf("evaluate \"-\": %w", err)
	}
	if len(args) == 1 {
		return -a, nil
	}
	b, err := toNumber(arg(args, 1))
	if err != nil {
		return nil, fmt.Errorf("evaluate \"-\": %w", err)
	}
	return a - b, nil
}

func evalDivide(args []any) (any, error) {
	a, err := toNumber(arg(args, 0))
	if err != nil {
		return nil, fmt.Errorf("evaluate \"/\": %w", err)
	}
	b, err := toNumber(arg(args, 1))
	if err != nil {
		return nil, fmt.Errorf("evaluate \"/\": %w", err)
	}
	if b == 0 {
		return nil, errors.New("evaluate \"/\": division by zero")
	}
	return a / b, nil
}

func evalModulo(args []any) (any, error) {
	a, err := toNumber(arg(args, 0))
	if err != nil {
		return nil, fmt.Errorf("evaluate \"%%\": %w", err)
	}
	b, err := toNumber(arg(args, 1))
	if err != nil {
		return nil, fmt.Errorf("evaluate \"%%\": %w", err)
	}
	if b == 0 {
		return nil, errors.New("evaluate \"%\": modulo by zero")
	}
	return math.Mod(a, b), nil
}

func arithmeticFold(op string, args []any, init float64, fold func(acc, v float64) float64) (any, error) {
	acc := init
	for _, a := range args {
		n, err := toNumber(a)
		if err != nil {
			return nil, fmt.Errorf("evaluate %q: %w", op, err)
		}
		acc = fold(acc, n)
	}
	return acc, nil
}

func arithmeticPick(op string, args []any, better func(a, b float64) bool) (any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	best, err := toNumber(args[0])
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", op, err)
	}
	for _, a := range args[1:] {
		n, err := toNumber(a)
		if err != nil {
			return nil, fmt.Errorf("evaluate %q: %w", op, err)
		}
		if better(n, best) {
			best = n
		}
	}
	return best, nil
}

func compareChain(args []any, cmp func(a, b float64) bool) (any, error) {
	if len(args) < 2 {
		return false, nil
	}
	prev, err := toNumber(args[0])
	if err != nil {
		return nil, fmt.Errorf("evaluate comparison: %w", err)
	}
	// Three operands form a between test: a < b < c.
	limit := len(args)
	if limit > 3 {
		limit = 3
	}
	for _, a := range args[1:limit] {
		n, nerr := toNumber(a)
		if nerr != nil {
			return nil, fmt.Errorf("evaluate comparison: %w", nerr)
		}
		if !cmp(prev, n) {
			return false, nil
		}
		prev = n
	}
	return true, nil
}

func evalIn(needle, haystack any) bool {
	switch h := haystack.(type) {
	case string:
		s, ok := needle.(string)
		return ok && strings.Contains(h, s)
	case []any:
		for _, item := range h {
			if looseEqual(needle, item) {
				return true
			}
		}
	}
	return false
}

func evalCat(args []any) string {
	var b strings.Builder
	for _, a := range args {
		b.WriteString(stringify(a))
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Coercion
// ---------------------------------------------------------------------------

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

func toNumber(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot coerce %q to number", t)
		}
		return n, nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("cannot coerce %T to number", v)
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// looseEqual compares with numeric coercion: values of different scalar
// types are equal when both coerce to the same number.
func looseEqual(a, b any) bool {
	if strictEqual(a, b) {
		return true
	}
	an, aerr := toNumber(a)
	bn, berr := toNumber(b)
	if aerr != nil || berr != nil {
		return false
	}
	// Only coerce across scalar types; trees never loosely equal scalars.
	switch a.(type) {
	case map[string]any, []any:
		return false
	}
	switch b.(type) {
	case map[string]any, []any:
		return false
	}
	return an == bn
}

// strictEqual is deep equality over decoded JSON trees, no coercion.
func strictEqual(a, b any) bool {
	switch at := a.(type) {
	case map[string]any:
		bt, ok := b.(map[string]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for k, av := range at {
			bv, ok := bt[k]
			if !ok || !strictEqual(av, bv) {
				return false
			}
		}
		return true
	case []any:
		bt, ok := b.([]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !strictEqual(at[i], bt[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
