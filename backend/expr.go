package backend

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"strconv"
)

// evalInt evaluates an integer config value. Numbers pass through; strings
// are arithmetic expressions over + - * / and parentheses with the
// identifiers min and max, e.g. "max - 1" or "max / 2".
func evalInt(value any, minimum, maximum int) (int, error) {
	var f float64
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		f = v
	case string:
		node, err := parser.ParseExpr(v)
		if err != nil {
			return 0, fmt.Errorf("invalid expression %q", v)
		}
		f, err = evalNode(node, map[string]float64{"min": float64(minimum), "max": float64(maximum)})
		if err != nil {
			return 0, fmt.Errorf("invalid expression %q: %w", v, err)
		}
	default:
		return 0, fmt.Errorf("unsupported value %v (%T)", value, value)
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("must be an integer (got %v)", f)
	}
	return int(f), nil
}

func evalNode(node ast.Expr, idents map[string]float64) (float64, error) {
	switch n := node.(type) {
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT {
			return 0, fmt.Errorf("unexpected literal %s", n.Value)
		}
		return strconv.ParseFloat(n.Value, 64)
	case *ast.Ident:
		v, ok := idents[n.Name]
		if !ok {
			return 0, fmt.Errorf("unknown identifier %q", n.Name)
		}
		return v, nil
	case *ast.ParenExpr:
		return evalNode(n.X, idents)
	case *ast.UnaryExpr:
		x, err := evalNode(n.X, idents)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.SUB:
			return -x, nil
		case token.ADD:
			return x, nil
		}
		return 0, fmt.Errorf("unsupported operator %s", n.Op)
	case *ast.BinaryExpr:
		x, err := evalNode(n.X, idents)
		if err != nil {
			return 0, err
		}
		y, err := evalNode(n.Y, idents)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.ADD:
			return x + y, nil
		case token.SUB:
			return x - y, nil
		case token.MUL:
			return x * y, nil
		case token.QUO:
			if y == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			return x / y, nil
		}
		return 0, fmt.Errorf("unsupported operator %s", n.Op)
	}
	return 0, fmt.Errorf("unsupported expression")
}
