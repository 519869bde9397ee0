package persistence

import "errors"

// Standard error values all implementations return so callers can branch
// without knowing the backend.
var (
	ErrFlowNotFound     = errors.New("flow not found")
	ErrInstanceNotFound = errors.New("instance not found")
	ErrTimerNotFound    = errors.New("timer not found")

	// ErrVersionConflict indicates an attempt to overwrite a published
	// flow version.
	ErrVersionConflict = errors.New("published flow versions are immutable")
)

func IsFlowNotFound(err error) bool {
	return errors.Is(err, ErrFlowNotFound)
}

func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}
