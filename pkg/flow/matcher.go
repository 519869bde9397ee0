package flow

import (
	"strings"

	"github.com/flowzap/flowzap/pkg/events"
	"github.com/flowzap/flowzap/pkg/models"
)

// Trigger match scores. A button payload match beats any keyword match,
// exact keywords beat substring keywords, and fallback triggers only fire
// when nothing else matched.
const (
	ScoreButton          = 300
	ScoreKeywordExact    = 200
	ScoreKeywordContains = 100
	ScoreFallback        = 0
)

// TriggerMatch pairs a flow with the trigger node that matched an inbound
// message.
type TriggerMatch struct {
	Flow    *models.FlowDefinition
	Trigger *models.Node
	Score   int
}

// MatchInbound scans the trigger nodes of the given published flows and
// returns the highest-scoring match for the message, or nil when no
// trigger matches. Ties keep the first flow in the given order, which
// callers sort deterministically.
func MatchInbound(flows []*models.FlowDefinition, message *events.InboundMessage) *TriggerMatch {
	var best *TriggerMatch

	for _, f := range flows {
		if f.Status != models.FlowStatusPublished {
			continue
		}

		for _, trigger := range f.TriggerNodes() {
			score, ok := scoreTrigger(trigger, message)
			if !ok {
				continue
			}

			if best == nil || score > best.Score {
				best = &TriggerMatch{Flow: f, Trigger: trigger, Score: score}
			}
		}
	}

	return best
}

func scoreTrigger(trigger *models.Node, message *events.InboundMessage) (int, bool) {
	cfg, err := trigger.DecodeConfig()
	if err != nil {
		return 0, false
	}

	switch c := cfg.(type) {
	case *models.TriggerButtonConfig:
		if message.ButtonPayload == "" {
			return 0, false
		}

		for _, payload := range c.Payloads {
			if payload == message.ButtonPayload {
				return ScoreButton, true
			}
		}

		return 0, false
	case *models.TriggerKeywordConfig:
		return scoreKeyword(c, message.Text)
	default:
		return 0, false
	}
}

func scoreKeyword(cfg *models.TriggerKeywordConfig, text string) (int, bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))

	mode := cfg.MatchMode
	if mode == "" {
		mode = models.MatchModeExact
	}

	for _, keyword := range cfg.Keywords {
		kw := strings.ToLower(strings.TrimSpace(keyword))
		if kw == "" {
			continue
		}

		switch mode {
		case models.MatchModeExact:
			if normalized == kw {
				return ScoreKeywordExact, true
			}
		case models.MatchModeContains:
			if strings.Contains(normalized, kw) {
				return ScoreKeywordContains, true
			}
		}
	}

	if cfg.Fallback {
		return ScoreFallback, true
	}

	return 0, false
}

// MatchWebhook returns the first published flow with a webhook trigger
// registered on the given path.
func MatchWebhook(flows []*models.FlowDefinition, path string) *TriggerMatch {
	for _, f := range flows {
		if f.Status != models.FlowStatusPublished {
			continue
		}

		for _, trigger := range f.TriggerNodes() {
			cfg, err := trigger.DecodeConfig()
			if err != nil {
				continue
			}

			webhook, ok := cfg.(*models.TriggerWebhookConfig)
			if !ok {
				continue
			}

			if strings.TrimPrefix(webhook.Path, "/") == strings.TrimPrefix(path, "/") {
				return &TriggerMatch{Flow: f, Trigger: trigger}
			}
		}
	}

	return nil
}
