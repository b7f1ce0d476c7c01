package tools

import (
	"context"
	"fmt"
	"go/ast"
	"go/constant"
	"go/parser"
	"go/token"
	"strings"
)

// MathSolverTool evaluates arithmetic expressions through an AST-walking
// safe evaluator, falling back to asking the model to work the problem out
// step by step when the expression isn't a pure arithmetic literal tree
// (variables, equations, calculus — anything go/parser can't reduce to
// constants). There is no symbolic-algebra tier: the corpus has no Go
// library comparable to SymPy, so that tier from the original is dropped.
type MathSolverTool struct{}

func NewMathSolverTool() *MathSolverTool { return &MathSolverTool{} }

func (t *MathSolverTool) Name() string { return "math_solver" }

func (t *MathSolverTool) Description() string {
	return "Evaluate an arithmetic expression exactly. Falls back to step-by-step reasoning for anything beyond plain arithmetic."
}

func (t *MathSolverTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"expression": map[string]interface{}{
				"type":        "string",
				"description": "The arithmetic expression to evaluate, e.g. \"(3 + 4) * 2 / 7\"",
			},
		},
		"required": []string{"expression"},
	}
}

func (t *MathSolverTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	expr, ok := args["expression"].(string)
	if !ok || strings.TrimSpace(expr) == "" {
		return "", fmt.Errorf("expression is required")
	}

	if result, err := evalArithmetic(expr); err == nil {
		return result, nil
	}

	return fmt.Sprintf("Could not compute %q directly. Please solve this step by step.", expr), nil
}

// evalArithmetic parses expr as a Go expression and reduces it to a single
// constant, rejecting anything that isn't a literal, a unary +/-, or a
// binary +-*/%^ combination of such nodes — no identifiers, no calls, no
// indexing, so the evaluator can never be driven to run arbitrary code.
func evalArithmetic(expr string) (string, error) {
	node, err := parser.ParseExpr(expr)
	if err != nil {
		return "", fmt.Errorf("not a parseable expression: %w", err)
	}

	val, err := evalConstNode(node)
	if err != nil {
		return "", err
	}

	return val.ExactString(), nil
}

func evalConstNode(n ast.Expr) (constant.Value, error) {
	switch v := n.(type) {
	case *ast.BasicLit:
		val := constant.MakeFromLiteral(v.Value, v.Kind, 0)
		if val.Kind() == constant.Unknown {
			return nil, fmt.Errorf("unsupported literal %q", v.Value)
		}
		return val, nil

	case *ast.ParenExpr:
		return evalConstNode(v.X)

	case *ast.UnaryExpr:
		x, err := evalConstNode(v.X)
		if err != nil {
			return nil, err
		}
		switch v.Op {
		case token.ADD:
			return x, nil
		case token.SUB:
			return constant.UnaryOp(token.SUB, x, 0), nil
		default:
			return nil, fmt.Errorf("unsupported unary operator %s", v.Op)
		}

	case *ast.BinaryExpr:
		x, err := evalConstNode(v.X)
		if err != nil {
			return nil, err
		}
		y, err := evalConstNode(v.Y)
		if err != nil {
			return nil, err
		}
		switch v.Op {
		case token.ADD, token.SUB, token.MUL, token.REM:
			return constant.BinaryOp(x, v.Op, y), nil
		case token.QUO:
			if constant.Sign(y) == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			if x.Kind() == constant.Int && y.Kind() == constant.Int {
				xf := constant.ToFloat(x)
				yf := constant.ToFloat(y)
				return constant.BinaryOp(xf, token.QUO, yf), nil
			}
			return constant.BinaryOp(x, token.QUO, y), nil
		case token.XOR:
			// go/parser has no '^' power operator; reuse XOR's token as the
			// caret so "2^10" reads as exponentiation like the Python original.
			return evalPow(x, y)
		default:
			return nil, fmt.Errorf("unsupported binary operator %s", v.Op)
		}

	default:
		return nil, fmt.Errorf("unsupported expression node %T", n)
	}
}

func evalPow(base, exp constant.Value) (constant.Value, error) {
	if exp.Kind() != constant.Int {
		return nil, fmt.Errorf("exponent must be an integer")
	}
	n, ok := constant.Int64Val(exp)
	if !ok {
		return nil, fmt.Errorf("exponent out of range")
	}
	if n < 0 {
		return nil, fmt.Errorf("negative exponents are not supported")
	}

	result := constant.MakeInt64(1)
	for i := int64(0); i < n; i++ {
		result = constant.BinaryOp(result, token.MUL, base)
	}
	return result, nil
}
