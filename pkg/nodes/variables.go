package nodes

import (
	"github.com/flowzap/flowzap/pkg/models"
	"github.com/flowzap/flowzap/pkg/template"
)

func (e *Executor) executeSetVariable(cfg *models.SetVariableConfig, instance *models.ExecutionInstance) (StepResult, error) {
	return StepResult{
		OutputPort: models.PortMain,
		VariableUpdates: map[string]any{
			cfg.Name: template.Render(cfg.Value, instance.Variables),
		},
	}, nil
}

// executeGetVariable copies a variable into another name. An unresolved
// source leaves the literal token, matching substitution semantics.
func (e *Executor) executeGetVariable(cfg *models.GetVariableConfig, instance *models.ExecutionInstance) (StepResult, error) {
	name := template.Render(cfg.Name, instance.Variables)

	return StepResult{
		OutputPort: models.PortMain,
		VariableUpdates: map[string]any{
			cfg.Into: template.Render("{{"+name+"}}", instance.Variables),
		},
	}, nil
}

// executeGoToFlow completes this instance and hands the conversation to the
// target flow for the same contact. passVariables seeds the new instance
// with the current store.
func (e *Executor) executeGoToFlow(node *models.Node, cfg *models.GoToFlowConfig, instance *models.ExecutionInstance) (StepResult, error) {
	effect := newEffect(models.EffectStartFlow, instance.ID, node.ID)
	effect.StartFlow = &models.StartFlowPayload{
		FlowID:    cfg.FlowID,
		ContactID: instance.ContactID,
	}

	if cfg.PassVariables {
		seed := make(map[string]any, len(instance.Variables))
		for k, v := range instance.Variables {
			seed[k] = v
		}

		effect.StartFlow.SeedVariables = seed
	}

	return StepResult{
		Complete: true,
		Effects:  []models.Effect{effect},
	}, nil
}
