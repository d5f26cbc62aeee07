package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/cel-go/cel"

	celeval "github.com/Sentinel-Gate/hrgate/internal/adapter/outbound/cel"
	"github.com/Sentinel-Gate/hrgate/internal/domain/policy"
)

// CompiledRule represents a pre-compiled policy rule ready for evaluation.
type CompiledRule struct {
	Name    string
	Program cel.Program
	Action  policy.Action
}

// rulesSnapshot is the immutable rule set stored in an atomic.Pointer.
type rulesSnapshot struct {
	rules         []CompiledRule
	defaultAction policy.Action
}

// PolicyService evaluates tool calls against an ordered list of CEL rules.
// The first rule whose condition is true decides; otherwise the default
// action applies. Rules can be swapped at runtime with Reload.
type PolicyService struct {
	evaluator *celeval.Evaluator
	snapshot  atomic.Pointer[rulesSnapshot]
	logger    *slog.Logger
}

// NewPolicyService compiles rules and returns a ready service.
// An empty defaultAction means allow.
func NewPolicyService(rules []policy.Rule, defaultAction policy.Action, logger *slog.Logger) (*PolicyService, error) {
	evaluator, err := celeval.NewEvaluator()
	if err != nil {
		return nil, err
	}
	s := &PolicyService{
		evaluator: evaluator,
		logger:    logger,
	}
	if err := s.Reload(rules, defaultAction); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload recompiles rules and atomically replaces the active set. On error
// the previous set stays in effect.
func (s *PolicyService) Reload(rules []policy.Rule, defaultAction policy.Action) error {
	if defaultAction == "" {
		defaultAction = policy.ActionAllow
	}
	if !defaultAction.IsValid() {
		return fmt.Errorf("invalid default action %q", defaultAction)
	}

	compiled, err := s.compileRules(rules)
	if err != nil {
		return err
	}
	s.snapshot.Store(&rulesSnapshot{rules: compiled, defaultAction: defaultAction})
	s.logger.Info("policy rules loaded", "rules", len(compiled), "default_action", defaultAction)
	return nil
}

// ValidateRules checks every rule without installing it.
func (s *PolicyService) ValidateRules(rules []policy.Rule) error {
	_, err := s.compileRules(rules)
	return err
}

func (s *PolicyService) compileRules(rules []policy.Rule) ([]CompiledRule, error) {
	compiled := make([]CompiledRule, 0, len(rules))
	for i, r := range rules {
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("rule-%d", i+1)
		}
		if !r.Action.IsValid() {
			return nil, fmt.Errorf("rule %s: invalid action %q", name, r.Action)
		}
		condition := r.Condition
		if condition == "" {
			condition = "true"
		}
		prg, err := s.evaluator.Compile(condition)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", name, err)
		}
		compiled = append(compiled, CompiledRule{Name: name, Program: prg, Action: r.Action})
	}
	return compiled, nil
}

// Evaluate returns the decision for a tool call. Evaluation errors are
// returned to the caller, which treats them as a denial.
func (s *PolicyService) Evaluate(ctx context.Context, evalCtx policy.EvaluationContext) (policy.Decision, error) {
	snap := s.snapshot.Load()

	for _, rule := range snap.rules {
		if err := ctx.Err(); err != nil {
			return policy.Decision{}, err
		}
		matched, err := s.evaluator.Evaluate(ctx, rule.Program, evalCtx)
		if err != nil {
			return policy.Decision{}, fmt.Errorf("rule %s evaluation failed: %w", rule.Name, err)
		}
		if matched {
			return policy.Decision{
				Allowed:  rule.Action == policy.ActionAllow,
				RuleName: rule.Name,
				Reason:   fmt.Sprintf("matched rule %s", rule.Name),
			}, nil
		}
	}

	return policy.Decision{
		Allowed: snap.defaultAction == policy.ActionAllow,
		Reason:  fmt.Sprintf("no matching rule (default %s)", snap.defaultAction),
	}, nil
}

// Compile-time check that PolicyService implements policy.PolicyEngine.
var _ policy.PolicyEngine = (*PolicyService)(nil)
