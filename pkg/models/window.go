package models

import "time"

// SessionWindowDuration is the platform-defined period after an inbound
// user message during which free-form replies are permitted.
const SessionWindowDuration = 24 * time.Hour

// ConversationWindow tracks the free-form messaging window for one contact.
// Each inbound message replaces the window with a fresh full one; it is
// never merely extended.
type ConversationWindow struct {
	ContactID            string    `json:"contact_id"`
	LastInboundMessageAt time.Time `json:"last_inbound_message_at"`
	WindowExpiresAt      time.Time `json:"window_expires_at"`
}

// Open reports whether free-form sends are permitted at the given time.
func (w *ConversationWindow) Open(now time.Time) bool {
	return now.Before(w.WindowExpiresAt)
}
