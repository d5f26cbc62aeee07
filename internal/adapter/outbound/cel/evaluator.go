// Package cel compiles and runs the CEL conditions of tool-call policy rules.
package cel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/Sentinel-Gate/hrgate/internal/domain/policy"
)

// Bounds on rule conditions. Conditions come from the config file, so they
// are trusted, but a typo should not be able to stall every tool call.
const (
	maxExpressionLength = 1024
	maxNestingDepth     = 50
	maxCostBudget       = 100_000
	evalTimeout         = time.Second
	interruptCheckFreq  = 100 // comprehension iterations between ctx checks
)

// Evaluator compiles rule conditions against the policy environment.
// It is safe for concurrent use.
type Evaluator struct {
	env *cel.Env
}

// NewEvaluator creates an Evaluator.
func NewEvaluator() (*Evaluator, error) {
	env, err := NewPolicyEnvironment()
	if err != nil {
		return nil, fmt.Errorf("policy environment: %w", err)
	}
	return &Evaluator{env: env}, nil
}

// Compile checks condition against the size limits, type-checks it and
// returns the runnable program. The condition must produce a bool.
func (e *Evaluator) Compile(condition string) (cel.Program, error) {
	switch {
	case condition == "":
		return nil, errors.New("condition is empty")
	case len(condition) > maxExpressionLength:
		return nil, fmt.Errorf("condition too long: %d characters (max %d)", len(condition), maxExpressionLength)
	}
	if depth := nestingDepth(condition); depth > maxNestingDepth {
		return nil, fmt.Errorf("condition nesting too deep: %d levels (max %d)", depth, maxNestingDepth)
	}

	ast, issues := e.env.Compile(condition)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid CEL condition: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("condition must be boolean, got %s", out)
	}

	return e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
}

// Evaluate runs prg for one tool call. A dyn-typed condition that yields a
// non-bool at runtime is an error.
func (e *Evaluator) Evaluate(ctx context.Context, prg cel.Program, evalCtx policy.EvaluationContext) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	out, _, err := prg.ContextEval(ctx, BuildActivation(evalCtx))
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition returned %T, not bool", out.Value())
	}
	return matched, nil
}

// nestingDepth returns the deepest bracket nesting in expr.
func nestingDepth(expr string) int {
	depth, deepest := 0, 0
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			deepest = max(deepest, depth)
		case ')', ']', '}':
			depth--
		}
	}
	return deepest
}
