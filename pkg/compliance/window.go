// Package compliance implements the outbound send gates: the 24-hour
// conversation window guard and the template health monitor. Both keep
// their hot state in memory under a single-writer discipline (inbound
// message events for windows, provider status events for template health)
// and write through to an injected repository for durability. The flow
// engine and node executor only read them.
package compliance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/flowzap/flowzap/pkg/models"
)

// WindowRepository persists conversation windows across restarts.
type WindowRepository interface {
	SaveWindow(ctx context.Context, window *models.ConversationWindow) error
	Windows(ctx context.Context) ([]*models.ConversationWindow, error)
}

// WindowGuard tracks the per-contact free-form session window. It is the
// only writer of window state; reads are synchronous and lock-free enough
// to be re-checked at dispatch time.
type WindowGuard struct {
	mu      sync.RWMutex
	windows map[string]*models.ConversationWindow
	repo    WindowRepository
	logger  *slog.Logger
}

func NewWindowGuard(repo WindowRepository, logger *slog.Logger) *WindowGuard {
	return &WindowGuard{
		windows: make(map[string]*models.ConversationWindow),
		repo:    repo,
		logger:  logger.With("module", "window_guard"),
	}
}

// Load hydrates the in-memory state from the repository on startup.
func (g *WindowGuard) Load(ctx context.Context) error {
	windows, err := g.repo.Windows(ctx)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, w := range windows {
		g.windows[w.ContactID] = w
	}

	g.logger.Info("Loaded conversation windows", "count", len(windows))

	return nil
}

// OnInboundMessage replaces the contact's window with a fresh full 24h
// window anchored at the message time. The window is never merely
// extended.
func (g *WindowGuard) OnInboundMessage(ctx context.Context, contactID string, at time.Time) error {
	window := &models.ConversationWindow{
		ContactID:            contactID,
		LastInboundMessageAt: at,
		WindowExpiresAt:      at.Add(models.SessionWindowDuration),
	}

	g.mu.Lock()
	g.windows[contactID] = window
	g.mu.Unlock()

	if err := g.repo.SaveWindow(ctx, window); err != nil {
		return err
	}

	g.logger.Debug("Window refreshed", "contact_id", contactID, "expires_at", window.WindowExpiresAt)

	return nil
}

// CanSendFreeForm reports whether a window exists for the contact and is
// still open at the given time.
func (g *WindowGuard) CanSendFreeForm(contactID string, now time.Time) bool {
	g.mu.RLock()
	window, ok := g.windows[contactID]
	g.mu.RUnlock()

	return ok && window.Open(now)
}

// ValidateSend gates an outbound send. Template sends bypass the window
// (they are gated on health instead); free-form sends are denied when the
// window is closed. Callers must re-check at dispatch time, not only at
// enqueue time.
func (g *WindowGuard) ValidateSend(contactID string, now time.Time, isTemplate bool) error {
	if isTemplate {
		return nil
	}

	if g.CanSendFreeForm(contactID, now) {
		return nil
	}

	return &models.ComplianceDeniedError{
		Reason:    models.DenialWindowExpired,
		ContactID: contactID,
	}
}
