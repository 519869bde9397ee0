package models

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// NodeConfig is the closed union of kind-specific node configurations.
type NodeConfig interface {
	nodeConfig()
}

// Condition operators supported by condition nodes and loop exit conditions.
const (
	OpEqual          = "=="
	OpNotEqual       = "!="
	OpGreater        = ">"
	OpLess           = "<"
	OpGreaterOrEqual = ">="
	OpLessOrEqual    = "<="
	OpContains       = "contains"
	OpNotContains    = "not_contains"
)

// KeywordMatchMode controls how trigger keywords match inbound text.
const (
	MatchModeExact    = "exact"
	MatchModeContains = "contains"
)

type TriggerKeywordConfig struct {
	Keywords  []string `json:"keywords"   validate:"required,min=1,dive,required"`
	MatchMode string   `json:"match_mode" validate:"omitempty,oneof=exact contains"`
	Fallback  bool     `json:"fallback"` // Universal fallback, lowest matching priority
}

type TriggerButtonConfig struct {
	Payloads []string `json:"payloads" validate:"required,min=1,dive,required"`
}

type TriggerWebhookConfig struct {
	Path string `json:"path" validate:"required"`
}

// TriggerScheduleConfig starts the flow on a cron schedule for each listed
// contact, e.g. a daily reminder campaign.
type TriggerScheduleConfig struct {
	Cron     string   `json:"cron"     validate:"required"`
	Contacts []string `json:"contacts" validate:"required,min=1,dive,required"`
}

type SendTextConfig struct {
	Text string `json:"text" validate:"required"`
}

type SendMediaConfig struct {
	MediaURL  string `json:"media_url"  validate:"required,url"`
	MediaType string `json:"media_type" validate:"required,oneof=image video audio document"`
	Caption   string `json:"caption"`
}

type SendTemplateConfig struct {
	TemplateID string   `json:"template_id" validate:"required"`
	Language   string   `json:"language"`
	Params     []string `json:"params"`
}

type AskQuestionConfig struct {
	Question       string `json:"question"        validate:"required"`
	Variable       string `json:"variable"        validate:"required"`
	TimeoutSeconds int    `json:"timeout_seconds" validate:"min=0"`
	TimeoutMessage string `json:"timeout_message"`
}

// ConditionConfig compares left and right after variable substitution.
// Operator is checked by ValidOperator; the validator tag grammar cannot
// express values containing '='.
type ConditionConfig struct {
	Left     string `json:"left"     validate:"required"`
	Operator string `json:"operator" validate:"required"`
	Right    string `json:"right"`
}

// ValidOperator reports whether op is one of the supported comparison
// operators.
func ValidOperator(op string) bool {
	switch op {
	case OpEqual, OpNotEqual, OpGreater, OpLess, OpGreaterOrEqual, OpLessOrEqual, OpContains, OpNotContains:
		return true
	default:
		return false
	}
}

type SwitchCase struct {
	Match string `json:"match" validate:"required"`
}

type SwitchConfig struct {
	Value      string       `json:"value" validate:"required"`
	Cases      []SwitchCase `json:"cases" validate:"min=1,dive"`
	HasDefault bool         `json:"has_default"`
}

type SetVariableConfig struct {
	Name  string `json:"name" validate:"required"`
	Value string `json:"value"`
}

type GetVariableConfig struct {
	Name string `json:"name" validate:"required"`
	Into string `json:"into" validate:"required"`
}

type CallAPIConfig struct {
	URL            string            `json:"url"    validate:"required"`
	Method         string            `json:"method" validate:"omitempty,oneof=GET POST PUT PATCH DELETE HEAD OPTIONS"`
	Headers        map[string]string `json:"headers"`
	Body           string            `json:"body"`
	TimeoutSeconds int               `json:"timeout_seconds" validate:"min=0,max=300"`
}

type CallAIConfig struct {
	Prompt       string  `json:"prompt"   validate:"required"`
	Variable     string  `json:"variable" validate:"required"`
	Model        string  `json:"model"`
	SystemPrompt string  `json:"system_prompt"`
	MaxTokens    int     `json:"max_tokens"  validate:"min=0"`
	Temperature  float64 `json:"temperature" validate:"min=0,max=2"`
}

type DelayConfig struct {
	DurationSeconds int  `json:"duration_seconds" validate:"required,min=1"`
	Jitter          bool `json:"jitter"`
	JitterSeconds   int  `json:"jitter_seconds" validate:"min=0"`
}

type LoopConfig struct {
	MaxIterations int              `json:"max_iterations" validate:"required,min=1"`
	ExitWhen      *ConditionConfig `json:"exit_when,omitempty"`
}

type RandomConfig struct {
	Weights []int `json:"weights" validate:"required,min=2,dive,min=0"`
}

type GoToFlowConfig struct {
	FlowID        string `json:"flow_id" validate:"required"`
	PassVariables bool   `json:"pass_variables"`
}

type EndConfig struct{}

func (TriggerKeywordConfig) nodeConfig()  {}
func (TriggerButtonConfig) nodeConfig()   {}
func (TriggerWebhookConfig) nodeConfig()  {}
func (TriggerScheduleConfig) nodeConfig() {}
func (SendTextConfig) nodeConfig()        {}
func (SendMediaConfig) nodeConfig()       {}
func (SendTemplateConfig) nodeConfig()    {}
func (AskQuestionConfig) nodeConfig()     {}
func (ConditionConfig) nodeConfig()       {}
func (SwitchConfig) nodeConfig()          {}
func (SetVariableConfig) nodeConfig()     {}
func (GetVariableConfig) nodeConfig()     {}
func (CallAPIConfig) nodeConfig()         {}
func (CallAIConfig) nodeConfig()          {}
func (DelayConfig) nodeConfig()           {}
func (LoopConfig) nodeConfig()            {}
func (RandomConfig) nodeConfig()          {}
func (GoToFlowConfig) nodeConfig()        {}
func (EndConfig) nodeConfig()             {}

var validate = validator.New()

// DecodeConfig decodes the raw config payload into the typed config for the
// node's kind and validates it. The switch is exhaustive over NodeKind.
func (n *Node) DecodeConfig() (NodeConfig, error) {
	var cfg NodeConfig

	switch n.Kind {
	case NodeKindTriggerKeyword:
		cfg = &TriggerKeywordConfig{}
	case NodeKindTriggerButton:
		cfg = &TriggerButtonConfig{}
	case NodeKindTriggerWebhook:
		cfg = &TriggerWebhookConfig{}
	case NodeKindTriggerSchedule:
		cfg = &TriggerScheduleConfig{}
	case NodeKindSendText:
		cfg = &SendTextConfig{}
	case NodeKindSendMedia:
		cfg = &SendMediaConfig{}
	case NodeKindSendTemplate:
		cfg = &SendTemplateConfig{}
	case NodeKindAskQuestion:
		cfg = &AskQuestionConfig{}
	case NodeKindCondition:
		cfg = &ConditionConfig{}
	case NodeKindSwitch:
		cfg = &SwitchConfig{}
	case NodeKindSetVariable:
		cfg = &SetVariableConfig{}
	case NodeKindGetVariable:
		cfg = &GetVariableConfig{}
	case NodeKindCallAPI:
		cfg = &CallAPIConfig{}
	case NodeKindCallAI:
		cfg = &CallAIConfig{}
	case NodeKindDelay:
		cfg = &DelayConfig{}
	case NodeKindLoop:
		cfg = &LoopConfig{}
	case NodeKindRandom:
		cfg = &RandomConfig{}
	case NodeKindGoToFlow:
		cfg = &GoToFlowConfig{}
	case NodeKindEnd:
		cfg = &EndConfig{}
	default:
		return nil, fmt.Errorf("unknown node kind %q", n.Kind)
	}

	raw, err := json.Marshal(n.Config)
	if err != nil {
		return nil, fmt.Errorf("invalid config for node %s: %w", n.ID, err)
	}

	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("invalid config for node %s: %w", n.ID, err)
	}

	if _, ok := cfg.(*EndConfig); ok {
		return cfg, nil
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config for node %s (%s): %w", n.ID, n.Kind, err)
	}

	switch c := cfg.(type) {
	case *ConditionConfig:
		if !ValidOperator(c.Operator) {
			return nil, fmt.Errorf("invalid config for node %s: unsupported operator %q", n.ID, c.Operator)
		}
	case *LoopConfig:
		if c.ExitWhen != nil && !ValidOperator(c.ExitWhen.Operator) {
			return nil, fmt.Errorf("invalid config for node %s: unsupported operator %q", n.ID, c.ExitWhen.Operator)
		}
	}

	return cfg, nil
}
