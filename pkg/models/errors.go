package models

import (
	"errors"
	"fmt"
)

// Error taxonomy for flow execution. Expected domain outcomes (condition
// mismatch, compliance denial) are routed values, not errors; these types
// cover the cases that fail a step or an instance.

// ErrLoopBoundExceeded fails an instance whose loop node re-entered more
// times than its configured max_iterations. Kept distinct from generic
// failure for alerting.
var ErrLoopBoundExceeded = errors.New("loop bound exceeded")

// ComplianceDenialReason names why an outbound send was denied.
type ComplianceDenialReason string

const (
	DenialWindowExpired     ComplianceDenialReason = "window_expired"
	DenialTemplateUnhealthy ComplianceDenialReason = "template_unhealthy"
)

// ComplianceDeniedError denies an outbound send: window closed for
// free-form messages, or unhealthy template. Never retried.
type ComplianceDeniedError struct {
	Reason     ComplianceDenialReason
	ContactID  string
	TemplateID string
}

func (e *ComplianceDeniedError) Error() string {
	if e.TemplateID != "" {
		return fmt.Sprintf("compliance denied (%s): template %s", e.Reason, e.TemplateID)
	}

	return fmt.Sprintf("compliance denied (%s): contact %s", e.Reason, e.ContactID)
}

// IsComplianceDenied reports whether err is a compliance denial.
func IsComplianceDenied(err error) bool {
	var target *ComplianceDeniedError

	return errors.As(err, &target)
}

// ValidationError marks bad node configuration or an unresolved required
// field. Fatal for the instance, never retried.
type ValidationError struct {
	NodeID string
	Detail string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation failed at node %s: %s: %v", e.NodeID, e.Detail, e.Err)
	}

	return fmt.Sprintf("validation failed at node %s: %s", e.NodeID, e.Detail)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidationError reports whether err is a node validation error.
func IsValidationError(err error) bool {
	var target *ValidationError

	return errors.As(err, &target)
}

// TransientProviderError marks a retryable provider failure: timeout, 5xx
// or rate limiting. The connector layer retries it with capped exponential
// backoff before giving up.
type TransientProviderError struct {
	StatusCode int
	Err        error
}

func (e *TransientProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient provider error (status %d): %v", e.StatusCode, e.Err)
	}

	return fmt.Sprintf("transient provider error: %v", e.Err)
}

func (e *TransientProviderError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried by the connector.
func IsTransient(err error) bool {
	var target *TransientProviderError

	return errors.As(err, &target)
}
