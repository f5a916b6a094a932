package builtin

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/Knetic/govaluate"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MathTool implements expression evaluation, statistics, linear-equation
// solving, unit conversion, and random generation.
type MathTool struct{}

// NewMathTool creates the "math" builtin tool.
func NewMathTool() *MathTool { return &MathTool{} }

func (MathTool) Name() string { return "math" }

func (MathTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	op, _ := args["operation"].(string)

	switch op {
	case "evaluate":
		expr, _ := args["expression"].(string)
		return evaluateExpression(expr)
	case "statistics":
		numbers := toFloatSlice(args["numbers"])
		statType, _ := args["stat_type"].(string)
		return statistics(numbers, statType)
	case "solve":
		equation, _ := args["equation"].(string)
		return solveLinearEquation(equation)
	case "convert":
		value := toFloat(args["value"])
		from, _ := args["from_unit"].(string)
		to, _ := args["to_unit"].(string)
		return convertUnit(value, from, to)
	case "random":
		randomType, _ := args["random_type"].(string)
		min := toFloat(args["min"])
		max := toFloat(args["max"])
		choices := toStringSlice(args["choices"])
		return randomOp(randomType, min, max, choices)
	default:
		return nil, fmt.Errorf("math: unknown operation %q", op)
	}
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}

func toFloatSlice(v interface{}) []float64 {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(raw))
	for _, x := range raw {
		out = append(out, toFloat(x))
	}
	return out
}

func toStringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, x := range raw {
		if s, ok := x.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func evaluateExpression(expression string) (string, error) {
	if expression == "" {
		return "", fmt.Errorf("math: expression is required")
	}

	expr, err := govaluate.NewEvaluableExpressionWithFunctions(expression, map[string]govaluate.ExpressionFunction{
		"sqrt": func(a ...interface{}) (interface{}, error) { return math.Sqrt(a[0].(float64)), nil },
		"pow": func(a ...interface{}) (interface{}, error) { return math.Pow(a[0].(float64), a[1].(float64)), nil },
		"sin": func(a ...interface{}) (interface{}, error) { return math.Sin(a[0].(float64)), nil },
		"cos": func(a ...interface{}) (interface{}, error) { return math.Cos(a[0].(float64)), nil },
		"tan": func(a ...interface{}) (interface{}, error) { return math.Tan(a[0].(float64)), nil },
		"log": func(a ...interface{}) (interface{}, error) { return math.Log10(a[0].(float64)), nil },
		"ln": func(a ...interface{}) (interface{}, error) { return math.Log(a[0].(float64)), nil },
		"abs": func(a ...interface{}) (interface{}, error) { return math.Abs(a[0].(float64)), nil },
		"ceil": func(a ...interface{}) (interface{}, error) { return math.Ceil(a[0].(float64)), nil },
		"floor": func(a ...interface{}) (interface{}, error) { return math.Floor(a[0].(float64)), nil },
		"round": func(a ...interface{}) (interface{}, error) { return math.Round(a[0].(float64)), nil },
	})
	if err != nil {
		return "", fmt.Errorf("math: invalid expression: %w", err)
	}

	result, err := expr.Evaluate(nil)
	if err != nil {
		return "", fmt.Errorf("math: evaluation failed: %w", err)
	}

	switch v := result.(type) {
	case float64:
		return fmt.Sprintf("%.6f", v), nil
	case int:
		return fmt.Sprintf("%.6f", float64(v)), nil
	default:
		return "", fmt.Errorf("math: unexpected result type %T", result)
	}
}

// statistics delegates every stat_type to gonum/stat or gonum/floats.
// median is stat.Quantile(0.5, stat.Empirical), which for an even count
// returns the lower of the two middle values rather than their average.
func statistics(numbers []float64, statType string) (string, error) {
	if len(numbers) == 0 {
		return "", fmt.Errorf("math: numbers array is required")
	}
	if statType == "" {
		return "", fmt.Errorf("math: stat_type is required")
	}

	var result float64
	switch statType {
	case "mean":
		result = stat.Mean(numbers, nil)
	case "median":
		sorted := append([]float64(nil), numbers...)
		floats.Sort(sorted)
		result = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	case "stdev":
		result = stat.StdDev(numbers, nil)
	case "variance":
		result = stat.Variance(numbers, nil)
	case "min":
		result = floats.Min(numbers)
	case "max":
		result = floats.Max(numbers)
	case "sum":
		result = floats.Sum(numbers)
	default:
		return "", fmt.Errorf("math: unknown stat_type %q", statType)
	}
	return fmt.Sprintf("%.6f", result), nil
}

// solveLinearEquation solves "x+b=c", "x-b=c" and "x=c" forms, the same
// subset solver handled; quadratic equations are out of
// scope here as they were in agent/tools/math.go.
func solveLinearEquation(equation string) (string, error) {
	if equation == "" {
		return "", fmt.Errorf("math: equation is required")
	}
	parts := strings.Split(equation, "=")
	if len(parts) != 2 {
		return "", fmt.Errorf("math: equation must contain '='")
	}
	left := strings.ReplaceAll(strings.TrimSpace(parts[0]), " ", "")
	right := strings.TrimSpace(parts[1])

	rightVal, err := strconv.ParseFloat(right, 64)
	if err != nil {
		return "", fmt.Errorf("math: invalid right side value")
	}

	switch {
	case left == "x":
		return fmt.Sprintf("x = %.6f", rightVal), nil
	case strings.HasPrefix(left, "x+"):
		b, _ := strconv.ParseFloat(left[2:], 64)
		return fmt.Sprintf("x = %.6f", rightVal-b), nil
	case strings.HasPrefix(left, "x-"):
		b, _ := strconv.ParseFloat(left[2:], 64)
		return fmt.Sprintf("x = %.6f", rightVal+b), nil
	default:
		return "", fmt.Errorf("math: unsupported equation format")
	}
}

func convertUnit(value float64, fromUnit, toUnit string) (string, error) {
	if fromUnit == "" || toUnit == "" {
		return "", fmt.Errorf("math: from_unit and to_unit are required")
	}
	fromUnit, toUnit = strings.ToLower(fromUnit), strings.ToLower(toUnit)

	if fromUnit == "celsius" && toUnit == "fahrenheit" {
		return fmt.Sprintf("%.6f %s", (value*9/5)+32, toUnit), nil
	}
	if fromUnit == "fahrenheit" && toUnit == "celsius" {
		return fmt.Sprintf("%.6f %s", (value-32)*5/9, toUnit), nil
	}

	groups := []map[string]float64{
		{"km": 1000.0, "m": 1.0, "cm": 0.01, "mm": 0.001},
		{"kg": 1000.0, "g": 1.0, "mg": 0.001},
		{"hours": 3600.0, "minutes": 60.0, "seconds": 1.0},
	}
	for _, units := range groups {
		fromFactor, fromOK := units[fromUnit]
		toFactor, toOK := units[toUnit]
		if fromOK && toOK {
			return fmt.Sprintf("%.6f %s", (value*fromFactor)/toFactor, toUnit), nil
		}
	}
	return "", fmt.Errorf("math: unsupported unit conversion from %q to %q", fromUnit, toUnit)
}

func randomOp(randomType string, min, max float64, choices []string) (string, error) {
	switch randomType {
	case "integer":
		if min >= max {
			return "", fmt.Errorf("math: min must be less than max")
		}
		return fmt.Sprintf("%d", int(min)+rand.Intn(int(max-min+1))), nil
	case "float":
		if min >= max {
			return "", fmt.Errorf("math: min must be less than max")
		}
		return fmt.Sprintf("%.6f", min+rand.Float64()*(max-min)), nil
	case "choice":
		if len(choices) == 0 {
			return "", fmt.Errorf("math: choices array is required")
		}
		return choices[rand.Intn(len(choices))], nil
	default:
		return "", fmt.Errorf("math: unknown random_type %q", randomType)
	}
}
