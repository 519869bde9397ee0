package models

import "time"

// QualityScore is the provider-reported template quality rating.
type QualityScore string

const (
	QualityUnknown QualityScore = "unknown"
	QualityGreen   QualityScore = "green"
	QualityYellow  QualityScore = "yellow"
	QualityRed     QualityScore = "red"
)

// TemplateStatus is the provider-reported template approval status.
type TemplateStatus string

const (
	TemplateStatusPending  TemplateStatus = "pending"
	TemplateStatusApproved TemplateStatus = "approved"
	TemplateStatusPaused   TemplateStatus = "paused"
	TemplateStatusDisabled TemplateStatus = "disabled"
	TemplateStatusRejected TemplateStatus = "rejected"
)

// TemplateHealth is the stored health state for one outbound template.
// It is mutated only by provider status events, never inferred.
type TemplateHealth struct {
	TemplateID       string         `json:"template_id"`
	QualityScore     QualityScore   `json:"quality_score"`
	Status           TemplateStatus `json:"status"`
	LastStatusUpdate time.Time      `json:"last_status_update"`
}

// Sendable reports whether new sends may target this template. Paused,
// Disabled and Rejected statuses and Red quality are hard-blocked.
func (h *TemplateHealth) Sendable() bool {
	switch h.Status {
	case TemplateStatusPaused, TemplateStatusDisabled, TemplateStatusRejected:
		return false
	}

	return h.QualityScore != QualityRed
}
