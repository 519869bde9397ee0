package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConversationWindowOpen(t *testing.T) {
	inbound := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	window := &ConversationWindow{
		ContactID:            "5511999990000",
		LastInboundMessageAt: inbound,
		WindowExpiresAt:      inbound.Add(SessionWindowDuration),
	}

	assert.True(t, window.Open(inbound.Add(23*time.Hour+59*time.Minute)))
	assert.False(t, window.Open(inbound.Add(24*time.Hour+1*time.Minute)))

	// The boundary itself is closed.
	assert.False(t, window.Open(inbound.Add(24*time.Hour)))
}
