package models

import "strconv"

// NodeKind identifies one of the closed set of node behaviors. Adding a
// kind requires extending DecodeConfig and the executor dispatch, which
// keeps new kinds a compile-time-checked change.
type NodeKind string

const (
	NodeKindTriggerKeyword  NodeKind = "trigger:keyword"
	NodeKindTriggerButton   NodeKind = "trigger:button"
	NodeKindTriggerWebhook  NodeKind = "trigger:webhook"
	NodeKindTriggerSchedule NodeKind = "trigger:schedule"
	NodeKindSendText        NodeKind = "send_text"
	NodeKindSendMedia       NodeKind = "send_media"
	NodeKindSendTemplate    NodeKind = "send_template"
	NodeKindAskQuestion     NodeKind = "ask_question"
	NodeKindCondition       NodeKind = "condition"
	NodeKindSwitch          NodeKind = "switch"
	NodeKindSetVariable     NodeKind = "set_variable"
	NodeKindGetVariable     NodeKind = "get_variable"
	NodeKindCallAPI         NodeKind = "call_api"
	NodeKindCallAI          NodeKind = "call_ai"
	NodeKindDelay           NodeKind = "delay"
	NodeKindLoop            NodeKind = "loop"
	NodeKindRandom          NodeKind = "random"
	NodeKindGoToFlow        NodeKind = "goto_flow"
	NodeKindEnd             NodeKind = "end"
)

// IsTrigger reports whether the kind is an entry-point trigger.
func (k NodeKind) IsTrigger() bool {
	switch k {
	case NodeKindTriggerKeyword, NodeKindTriggerButton, NodeKindTriggerWebhook, NodeKindTriggerSchedule:
		return true
	default:
		return false
	}
}

// Common output port names. Kind-specific ports (switch cases, random
// branches) are derived with PortCase and PortBranch.
const (
	PortMain    = "main"
	PortTrue    = "true"
	PortFalse   = "false"
	PortSuccess = "success"
	PortError   = "error"
	PortSent    = "sent"
	PortReply   = "reply"
	PortTimeout = "timeout"
	PortBody    = "body"
	PortDone    = "done"
	PortDefault = "default"
	PortUnmatch = "unmatched"
)

// Node is one step in a flow. Config is the raw builder payload; it is
// decoded into the kind-specific typed config before execution.
type Node struct {
	ID        string         `json:"id"   validate:"required"`
	Kind      NodeKind       `json:"kind" validate:"required"`
	Name      string         `json:"name"`
	Config    map[string]any `json:"config"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
}

// OutputPorts returns the output port names this node can choose from.
// Trigger and terminal handling aside, an unconnected port halts that
// branch.
func (n *Node) OutputPorts() []string {
	switch n.Kind {
	case NodeKindTriggerKeyword, NodeKindTriggerButton, NodeKindTriggerWebhook, NodeKindTriggerSchedule:
		return []string{PortMain}
	case NodeKindSendText, NodeKindSendMedia:
		return []string{PortSent, PortError}
	case NodeKindSendTemplate:
		return []string{PortSent, PortError}
	case NodeKindAskQuestion:
		return []string{PortReply, PortTimeout}
	case NodeKindCondition:
		return []string{PortTrue, PortFalse}
	case NodeKindSwitch:
		cfg, err := n.DecodeConfig()
		if err != nil {
			return nil
		}

		sw := cfg.(*SwitchConfig)
		ports := make([]string, 0, len(sw.Cases)+2)

		for i := range sw.Cases {
			ports = append(ports, PortCase(i))
		}

		return append(ports, PortDefault, PortUnmatch)
	case NodeKindSetVariable, NodeKindGetVariable:
		return []string{PortMain}
	case NodeKindCallAPI, NodeKindCallAI:
		return []string{PortSuccess, PortError}
	case NodeKindDelay:
		return []string{PortMain}
	case NodeKindLoop:
		return []string{PortBody, PortDone}
	case NodeKindRandom:
		cfg, err := n.DecodeConfig()
		if err != nil {
			return nil
		}

		rnd := cfg.(*RandomConfig)
		ports := make([]string, 0, len(rnd.Weights))

		for i := range rnd.Weights {
			ports = append(ports, PortBranch(i))
		}

		return ports
	case NodeKindGoToFlow, NodeKindEnd:
		return nil
	default:
		return nil
	}
}

// PortCase names the output port for switch case i.
func PortCase(i int) string {
	return "case:" + strconv.Itoa(i)
}

// PortBranch names the output port for random branch i.
func PortBranch(i int) string {
	return "branch:" + strconv.Itoa(i)
}
