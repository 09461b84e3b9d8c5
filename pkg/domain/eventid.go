package domain

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ValidateEventID accepts either a UUID or a ULID as a client-supplied
// event_id — both are the id shapes the teacher's own dependency stack
// already pulls in, and both sort or key predictably enough to be useful
// as a dedup key downstream of the store.
func ValidateEventID(id string) error {
	if _, err := uuid.Parse(id); err == nil {
		return nil
	}
	if _, err := ulid.Parse(id); err == nil {
		return nil
	}
	return NewInvalid("event_id %q is neither a valid UUID nor a valid ULID", id)
}
