package ingest

import "errors"

var (
	// ErrMissingEntity is returned for an activity record without an entity id
	ErrMissingEntity = errors.New("activity record has no entity_id")
	// ErrMissingChannel is returned for a message batch without a channel id
	ErrMissingChannel = errors.New("message batch has no channel_id")
)
