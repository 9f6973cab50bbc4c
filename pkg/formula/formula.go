// Package formula evaluates plain arithmetic: numbers, + - * /, unary signs,
// and parentheses. Parsing and evaluation are done by expr-lang; this
// package restricts the language to arithmetic and evaluates in float64.
package formula

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/file"
)

var (
	ErrSyntax         = errors.New("syntax error")
	ErrDivisionByZero = errors.New("division by zero")
	ErrOutOfRange     = errors.New("result out of range")
)

// Evaluator turns an arithmetic string into a number.
type Evaluator interface {
	Evaluate(expr string) (float64, error)
}

// Expr is the default Evaluator. The zero value is ready to use and is
// safe for concurrent use.
type Expr struct{}

func (Expr) Evaluate(input string) (float64, error) {
	if strings.TrimSpace(input) == "" {
		return 0, fmt.Errorf("%w: empty expression", ErrSyntax)
	}

	arith := &arithmetic{}
	program, err := expr.Compile(input,
		expr.Patch(arith),
		expr.DisableAllBuiltins(),
	)
	if err == nil {
		err = arith.err
	}
	if err != nil {
		return 0, syntaxError(err)
	}

	out, err := expr.Run(program, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSyntax, err)
	}
	var v float64
	switch n := out.(type) {
	case float64:
		v = n
	case int:
		v = float64(n)
	default:
		return 0, fmt.Errorf("%w: result is %T, not a number", ErrSyntax, out)
	}

	if math.IsInf(v, 0) || math.IsNaN(v) {
		if arith.divides {
			return 0, fmt.Errorf("%w in %q", ErrDivisionByZero, input)
		}
		return 0, fmt.Errorf("%w: %v", ErrOutOfRange, v)
	}
	return v, nil
}

// Eval evaluates input with the default Evaluator.
func Eval(input string) (float64, error) {
	return Expr{}.Evaluate(input)
}

// Truncate drops the fractional part of v, rounding toward zero.
func Truncate(v float64) (int64, error) {
	t := math.Trunc(v)
	// float64(math.MaxInt64) rounds up to 2^63, which is out of range
	if math.IsNaN(t) || t < math.MinInt64 || t >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %v", ErrOutOfRange, v)
	}
	return int64(t), nil
}

func syntaxError(err error) error {
	var fileErr *file.Error
	if errors.As(err, &fileErr) {
		return fmt.Errorf("%w at offset %d: %s", ErrSyntax, fileErr.From, fileErr.Message)
	}
	return fmt.Errorf("%w: %w", ErrSyntax, err)
}

// arithmetic rejects every node that is not a number, a sign or one of the
// four operators, and turns integer literals into floats so that all
// arithmetic happens in float64.
type arithmetic struct {
	err     error
	divides bool
}

func (a *arithmetic) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.FloatNode:
	case *ast.IntegerNode:
		ast.Patch(node, &ast.FloatNode{Value: float64(n.Value)})
	case *ast.UnaryNode:
		if n.Operator != "-" && n.Operator != "+" {
			a.reject(*node, "operator "+n.Operator)
		}
	case *ast.BinaryNode:
		switch n.Operator {
		case "+", "-", "*":
		case "/":
			a.divides = true
		default:
			a.reject(*node, "operator "+n.Operator)
		}
	case *ast.IdentifierNode:
		a.reject(*node, "name "+n.Value)
	default:
		a.reject(*node, (*node).String())
	}
}

func (a *arithmetic) reject(node ast.Node, what string) {
	if a.err == nil {
		a.err = &file.Error{
			Location: node.Location(),
			Message:  "unsupported " + what,
		}
	}
}
