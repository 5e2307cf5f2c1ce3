// Package cel provides CEL-based deny rules for hub service calls.
package cel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
)

// Rule condition limits.
const (
	maxConditionLength  = 1024
	maxConditionNesting = 50
	maxCost             = 100_000
	evalTimeout         = 5 * time.Second
	// interruptEvery is how many comprehension iterations run between
	// context checks.
	interruptEvery = 100
)

// Evaluator compiles and runs rule conditions over the service-call
// environment.
type Evaluator struct {
	env *cel.Env
}

// NewEvaluator creates an Evaluator.
func NewEvaluator() (*Evaluator, error) {
	env, err := NewServiceEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create service environment: %w", err)
	}
	return &Evaluator{env: env}, nil
}

// Compile checks a condition's size and nesting, type-checks it as a
// boolean expression and plans it under the cost limit.
func (e *Evaluator) Compile(condition string) (cel.Program, error) {
	if err := checkShape(condition); err != nil {
		return nil, err
	}

	ast, issues := e.env.Compile(condition)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid condition: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("condition must return bool, got %s", out)
	}

	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCost),
		cel.InterruptCheckFrequency(interruptEvery),
	)
	if err != nil {
		return nil, fmt.Errorf("planning condition: %w", err)
	}
	return prg, nil
}

// checkShape rejects conditions that are empty, too long or too deeply
// bracketed before the parser sees them.
func checkShape(condition string) error {
	if condition == "" {
		return errors.New("condition is empty")
	}
	if len(condition) > maxConditionLength {
		return fmt.Errorf("condition too long: %d characters (max %d)", len(condition), maxConditionLength)
	}
	depth, deepest := 0, 0
	for _, ch := range condition {
		switch ch {
		case '(', '[', '{':
			depth++
			deepest = max(deepest, depth)
		case ')', ']', '}':
			depth--
		}
	}
	if deepest > maxConditionNesting {
		return fmt.Errorf("condition nesting too deep: %d levels (max %d)", deepest, maxConditionNesting)
	}
	return nil
}

// Evaluate runs prg against call and reports whether the condition holds.
// A non-boolean result is an error.
func (e *Evaluator) Evaluate(ctx context.Context, prg cel.Program, call ServiceCall) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	out, _, err := prg.ContextEval(ctx, activation(call))
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition returned %T, not bool", out.Value())
	}
	return matched, nil
}
