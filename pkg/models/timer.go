package models

import "time"

// ScheduledTimer is a durable wake-up for a suspended instance. Timers
// survive process restarts; the scheduler polls for due timers and emits
// TimerFired events.
type ScheduledTimer struct {
	ID         string    `json:"id"`
	InstanceID string    `json:"instance_id"`
	NodeID     string    `json:"node_id"`
	FireAt     time.Time `json:"fire_at"`
	CreatedAt  time.Time `json:"created_at"`
}
