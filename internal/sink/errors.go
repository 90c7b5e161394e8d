package sink

import "errors"

var (
	// ErrNoChat is returned when no chat is configured for a target
	ErrNoChat = errors.New("no chat configured for target")
	// ErrCircuitOpen is returned while the webhook breaker rejects requests
	ErrCircuitOpen = errors.New("webhook circuit breaker is open")
)
