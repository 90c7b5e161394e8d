package scheduler

import "errors"

var (
	// ErrJobNotFound is returned when a job is not found
	ErrJobNotFound = errors.New("job not found")

	// ErrDuplicateJob is returned when a job name is already registered
	ErrDuplicateJob = errors.New("duplicate job")

	// ErrInvalidExpression is returned for an unparsable cron expression
	ErrInvalidExpression = errors.New("invalid cron expression")
)
