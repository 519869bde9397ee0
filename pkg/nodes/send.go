package nodes

import (
	"github.com/flowzap/flowzap/pkg/models"
	"github.com/flowzap/flowzap/pkg/template"
)

// executeSendText emits a free-form text message. The window guard is
// consulted before the effect is emitted; a denial routes the error port
// and the engine fails the instance when that port is unwired. Compliance
// always takes precedence over conversation completion.
func (e *Executor) executeSendText(node *models.Node, cfg *models.SendTextConfig, instance *models.ExecutionInstance) (StepResult, error) {
	if err := e.windows.ValidateSend(instance.ContactID, e.now(), false); err != nil {
		return StepResult{OutputPort: models.PortError, PortErr: err}, nil
	}

	effect := newEffect(models.EffectSendMessage, instance.ID, node.ID)
	effect.Message = &models.SendMessagePayload{
		ContactID: instance.ContactID,
		Kind:      models.MessageKindText,
		Text:      template.Render(cfg.Text, instance.Variables),
	}

	return StepResult{
		OutputPort: models.PortSent,
		Effects:    []models.Effect{effect},
	}, nil
}

func (e *Executor) executeSendMedia(node *models.Node, cfg *models.SendMediaConfig, instance *models.ExecutionInstance) (StepResult, error) {
	if err := e.windows.ValidateSend(instance.ContactID, e.now(), false); err != nil {
		return StepResult{OutputPort: models.PortError, PortErr: err}, nil
	}

	effect := newEffect(models.EffectSendMessage, instance.ID, node.ID)
	effect.Message = &models.SendMessagePayload{
		ContactID: instance.ContactID,
		Kind:      models.MessageKindMedia,
		MediaURL:  template.Render(cfg.MediaURL, instance.Variables),
		MediaType: cfg.MediaType,
		Caption:   template.Render(cfg.Caption, instance.Variables),
	}

	return StepResult{
		OutputPort: models.PortSent,
		Effects:    []models.Effect{effect},
	}, nil
}

// executeSendTemplate emits a template message. Templates bypass the
// window but are gated on health; Yellow quality is sendable with a soft
// warning raised for operators.
func (e *Executor) executeSendTemplate(node *models.Node, cfg *models.SendTemplateConfig, instance *models.ExecutionInstance) (StepResult, error) {
	if !e.templates.IsSendable(cfg.TemplateID) {
		denied := &models.ComplianceDeniedError{
			Reason:     models.DenialTemplateUnhealthy,
			ContactID:  instance.ContactID,
			TemplateID: cfg.TemplateID,
		}

		return StepResult{OutputPort: models.PortError, PortErr: denied}, nil
	}

	params := make([]string, len(cfg.Params))
	for i, p := range cfg.Params {
		params[i] = template.Render(p, instance.Variables)
	}

	effect := newEffect(models.EffectSendMessage, instance.ID, node.ID)
	effect.Message = &models.SendMessagePayload{
		ContactID:  instance.ContactID,
		Kind:       models.MessageKindTemplate,
		TemplateID: cfg.TemplateID,
		Language:   cfg.Language,
		Params:     params,
	}

	effects := []models.Effect{effect}

	if e.templates.Quality(cfg.TemplateID) == models.QualityYellow {
		warn := newEffect(models.EffectOperatorAlert, instance.ID, node.ID)
		warn.Alert = &models.AlertPayload{
			Severity: "warning",
			Message:  "template quality degraded to yellow",
			Subject:  cfg.TemplateID,
		}
		effects = append(effects, warn)
	}

	return StepResult{
		OutputPort: models.PortSent,
		Effects:    effects,
	}, nil
}
