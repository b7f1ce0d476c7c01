package tools

import (
	"context"
	"strings"
	"testing"
)

func TestMathSolverTool_Arithmetic(t *testing.T) {
	tool := NewMathSolverTool()

	cases := []struct {
		expr string
		want string
	}{
		{"2 + 2", "4"},
		{"(3 + 4) * 2", "14"},
		{"10 - 3 * 2", "4"},
		{"7 % 3", "1"},
		{"-5 + 10", "5"},
		{"2^10", "1024"},
	}

	for _, tt := range cases {
		t.Run(tt.expr, func(t *testing.T) {
			result, err := tool.Execute(context.Background(), map[string]interface{}{"expression": tt.expr})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.want {
				t.Errorf("Execute(%q) = %q, want %q", tt.expr, result, tt.want)
			}
		})
	}
}

func TestMathSolverTool_Division(t *testing.T) {
	tool := NewMathSolverTool()

	result, err := tool.Execute(context.Background(), map[string]interface{}{"expression": "10 / 4"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result, "5/2") && result != "2.5" {
		t.Errorf("expected exact or decimal result for 10/4, got %q", result)
	}
}

func TestMathSolverTool_DivisionByZero(t *testing.T) {
	tool := NewMathSolverTool()

	result, err := tool.Execute(context.Background(), map[string]interface{}{"expression": "1 / 0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result, "step by step") {
		t.Errorf("expected LLM fallback for division by zero, got %q", result)
	}
}

func TestMathSolverTool_FallsBackOnNonArithmetic(t *testing.T) {
	tool := NewMathSolverTool()

	cases := []string{"x + 1", "solve(x**2 - 4, x)", "integral of x dx"}
	for _, expr := range cases {
		t.Run(expr, func(t *testing.T) {
			result, err := tool.Execute(context.Background(), map[string]interface{}{"expression": expr})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(result, "step by step") {
				t.Errorf("expected LLM fallback message for %q, got %q", expr, result)
			}
		})
	}
}

func TestMathSolverTool_MissingExpression(t *testing.T) {
	tool := NewMathSolverTool()
	_, err := tool.Execute(context.Background(), map[string]interface{}{})
	if err == nil {
		t.Error("expected error for missing expression")
	}
}
