package monitor

import "errors"

var (
	// ErrSuppressed is returned when an alert falls inside its cooldown window
	ErrSuppressed = errors.New("alert suppressed by cooldown")

	// ErrAlertNotFound is returned when resolving an unknown alert
	ErrAlertNotFound = errors.New("alert not found")
)
