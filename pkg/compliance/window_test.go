package compliance

import (
	"log/slog"
	"testing"
	"time"

	"github.com/flowzap/flowzap/pkg/mocks"
	"github.com/flowzap/flowzap/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestWindowGuard(t *testing.T) (*WindowGuard, *mocks.MockWindowRepository) {
	t.Helper()

	repo := new(mocks.MockWindowRepository)
	guard := NewWindowGuard(repo, slog.Default())

	return guard, repo
}

func TestWindowGuardRefreshReplacesWindow(t *testing.T) {
	guard, repo := newTestWindowGuard(t)
	repo.On("SaveWindow", mock.Anything, mock.Anything).Return(nil)

	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, guard.OnInboundMessage(t.Context(), "c1", first))

	// 20 hours later another inbound lands: a full fresh window replaces
	// the old one instead of extending it.
	second := first.Add(20 * time.Hour)
	require.NoError(t, guard.OnInboundMessage(t.Context(), "c1", second))

	assert.True(t, guard.CanSendFreeForm("c1", second.Add(23*time.Hour)))
	assert.False(t, guard.CanSendFreeForm("c1", second.Add(25*time.Hour)))
}

func TestWindowGuardNoWindowDeniesFreeForm(t *testing.T) {
	guard, _ := newTestWindowGuard(t)

	now := time.Now().UTC()
	assert.False(t, guard.CanSendFreeForm("unknown", now))

	err := guard.ValidateSend("unknown", now, false)
	require.Error(t, err)
	assert.True(t, models.IsComplianceDenied(err))
}

func TestWindowGuardTemplateBypassesWindow(t *testing.T) {
	guard, _ := newTestWindowGuard(t)

	assert.NoError(t, guard.ValidateSend("unknown", time.Now().UTC(), true))
}

func TestWindowGuardLoad(t *testing.T) {
	repo := new(mocks.MockWindowRepository)
	now := time.Now().UTC()
	repo.On("Windows", mock.Anything).Return([]*models.ConversationWindow{
		{ContactID: "c1", LastInboundMessageAt: now, WindowExpiresAt: now.Add(models.SessionWindowDuration)},
	}, nil)

	guard := NewWindowGuard(repo, slog.Default())
	require.NoError(t, guard.Load(t.Context()))

	assert.True(t, guard.CanSendFreeForm("c1", now.Add(time.Hour)))
}
