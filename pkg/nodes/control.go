package nodes

import (
	"strconv"
	"strings"

	"github.com/flowzap/flowzap/pkg/models"
	"github.com/flowzap/flowzap/pkg/template"
)

// executeCondition compares left and right after substitution and routes
// true or false. Numeric coercion failure on relational operators fails
// closed to the false branch; conditions never throw for expected
// mismatches.
func (e *Executor) executeCondition(node *models.Node, cfg *models.ConditionConfig, instance *models.ExecutionInstance) (StepResult, error) {
	left := template.Render(cfg.Left, instance.Variables)
	right := template.Render(cfg.Right, instance.Variables)

	if evaluateCondition(left, cfg.Operator, right) {
		return StepResult{OutputPort: models.PortTrue}, nil
	}

	return StepResult{OutputPort: models.PortFalse}, nil
}

func evaluateCondition(left, operator, right string) bool {
	switch operator {
	case models.OpEqual:
		return left == right
	case models.OpNotEqual:
		return left != right
	case models.OpContains:
		return strings.Contains(left, right)
	case models.OpNotContains:
		return !strings.Contains(left, right)
	}

	l, errL := strconv.ParseFloat(strings.TrimSpace(left), 64)
	r, errR := strconv.ParseFloat(strings.TrimSpace(right), 64)

	if errL != nil || errR != nil {
		return false
	}

	switch operator {
	case models.OpGreater:
		return l > r
	case models.OpLess:
		return l < r
	case models.OpGreaterOrEqual:
		return l >= r
	case models.OpLessOrEqual:
		return l <= r
	default:
		return false
	}
}

// executeSwitch routes the first matching case; otherwise the default port
// when configured, otherwise the unmatched port. An unwired port completes
// the instance at the engine level.
func (e *Executor) executeSwitch(node *models.Node, cfg *models.SwitchConfig, instance *models.ExecutionInstance) (StepResult, error) {
	value := template.Render(cfg.Value, instance.Variables)

	for i, switchCase := range cfg.Cases {
		if value == template.Render(switchCase.Match, instance.Variables) {
			return StepResult{OutputPort: models.PortCase(i)}, nil
		}
	}

	if cfg.HasDefault {
		return StepResult{OutputPort: models.PortDefault}, nil
	}

	return StepResult{OutputPort: models.PortUnmatch}, nil
}

// executeLoop enforces the per-instance re-entry bound and evaluates the
// optional exit condition. Iterations 1..max take the body port; re-entry
// max+1 fails the instance with ErrLoopBoundExceeded.
func (e *Executor) executeLoop(node *models.Node, cfg *models.LoopConfig, instance *models.ExecutionInstance) (StepResult, error) {
	if cfg.ExitWhen != nil {
		left := template.Render(cfg.ExitWhen.Left, instance.Variables)
		right := template.Render(cfg.ExitWhen.Right, instance.Variables)

		if evaluateCondition(left, cfg.ExitWhen.Operator, right) {
			return StepResult{OutputPort: models.PortDone}, nil
		}
	}

	if instance.LoopCounts[node.ID] >= cfg.MaxIterations {
		return StepResult{}, models.ErrLoopBoundExceeded
	}

	return StepResult{
		OutputPort:    models.PortBody,
		LoopIncrement: node.ID,
	}, nil
}

// executeRandom selects a branch weighted by integer weights. A zero total
// weight falls back to uniform selection.
func (e *Executor) executeRandom(cfg *models.RandomConfig) (StepResult, error) {
	total := 0
	for _, w := range cfg.Weights {
		total += w
	}

	if total <= 0 {
		return StepResult{OutputPort: models.PortBranch(e.rng.Intn(len(cfg.Weights)))}, nil
	}

	pick := e.rng.Intn(total)
	for i, w := range cfg.Weights {
		if pick < w {
			return StepResult{OutputPort: models.PortBranch(i)}, nil
		}

		pick -= w
	}

	return StepResult{OutputPort: models.PortBranch(len(cfg.Weights) - 1)}, nil
}
