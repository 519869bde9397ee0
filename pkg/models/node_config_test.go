package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeConfigKeywordTrigger(t *testing.T) {
	node := &Node{
		ID:   "t1",
		Kind: NodeKindTriggerKeyword,
		Config: map[string]any{
			"keywords":   []any{"oi", "olá"},
			"match_mode": "contains",
		},
	}

	cfg, err := node.DecodeConfig()
	require.NoError(t, err)

	keyword := cfg.(*TriggerKeywordConfig)
	assert.Equal(t, []string{"oi", "olá"}, keyword.Keywords)
	assert.Equal(t, MatchModeContains, keyword.MatchMode)
	assert.False(t, keyword.Fallback)
}

func TestDecodeConfigRejectsMissingRequired(t *testing.T) {
	node := &Node{
		ID:     "s1",
		Kind:   NodeKindSendText,
		Config: map[string]any{},
	}

	_, err := node.DecodeConfig()
	assert.Error(t, err)
}

func TestDecodeConfigRejectsUnknownOperator(t *testing.T) {
	node := &Node{
		ID:   "c1",
		Kind: NodeKindCondition,
		Config: map[string]any{
			"left":     "{{answer}}",
			"operator": "matches",
			"right":    "sim",
		},
	}

	_, err := node.DecodeConfig()
	assert.ErrorContains(t, err, "unsupported operator")
}

func TestDecodeConfigUnknownKind(t *testing.T) {
	node := &Node{ID: "x", Kind: "teleport"}

	_, err := node.DecodeConfig()
	assert.Error(t, err)
}

func TestDecodeConfigEndNeedsNoConfig(t *testing.T) {
	node := &Node{ID: "e1", Kind: NodeKindEnd}

	cfg, err := node.DecodeConfig()
	require.NoError(t, err)
	assert.IsType(t, &EndConfig{}, cfg)
}

func TestValidOperator(t *testing.T) {
	for _, op := range []string{OpEqual, OpNotEqual, OpGreater, OpLess, OpGreaterOrEqual, OpLessOrEqual, OpContains, OpNotContains} {
		assert.True(t, ValidOperator(op), op)
	}

	assert.False(t, ValidOperator("matches"))
	assert.False(t, ValidOperator(""))
}

func TestSwitchOutputPorts(t *testing.T) {
	node := &Node{
		ID:   "sw",
		Kind: NodeKindSwitch,
		Config: map[string]any{
			"value": "{{answer}}",
			"cases": []any{
				map[string]any{"match": "a"},
				map[string]any{"match": "b"},
			},
		},
	}

	ports := node.OutputPorts()
	assert.Equal(t, []string{"case:0", "case:1", PortDefault, PortUnmatch}, ports)
}

func TestExecutionStatusPredicates(t *testing.T) {
	assert.True(t, ExecutionStatusCompleted.IsTerminal())
	assert.True(t, ExecutionStatusAborted.IsTerminal())
	assert.False(t, ExecutionStatusRunning.IsTerminal())

	assert.True(t, ExecutionStatusWaitingForInput.IsWaiting())
	assert.True(t, ExecutionStatusWaitingForCall.IsWaiting())
	assert.False(t, ExecutionStatusCompleted.IsWaiting())
}

func TestInstanceSnapshotIsolation(t *testing.T) {
	instance := &ExecutionInstance{
		ID:         "i1",
		Variables:  map[string]any{"name": "Maria"},
		LoopCounts: map[string]int{"loop1": 2},
	}

	snapshot := instance.Snapshot()
	snapshot.SetVariable("name", "João")
	snapshot.LoopCounts["loop1"] = 5

	assert.Equal(t, "Maria", instance.Variables["name"])
	assert.Equal(t, 2, instance.LoopCounts["loop1"])
}
