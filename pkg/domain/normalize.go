package domain

import (
	"github.com/asaskevich/govalidator"
	"github.com/oklog/ulid/v2"
)

const (
	maxIDLength        = 256
	maxAggregateTypeLen = 128
	maxEventTypeLen     = 256
)

// ValidateTenantID checks the shape every engine requires of a tenant
// identifier before it ever reaches storage: non-empty, valid UTF-8, bounded
// length. Engines call this first so a malformed tenant can never partition
// storage under a garbage key.
func ValidateTenantID(tenantID string) error {
	if tenantID == "" {
		return NewInvalid("tenant_id must not be empty")
	}
	return validateIDShape("tenant_id", tenantID)
}

// ValidateAggregateID applies the same shape rule to an aggregate identifier.
func ValidateAggregateID(aggregateID string) error {
	if aggregateID == "" {
		return NewInvalid("aggregate_id must not be empty")
	}
	return validateIDShape("aggregate_id", aggregateID)
}

func validateIDShape(field, value string) error {
	if !govalidator.IsUTF8(value) {
		return NewInvalid("%s is not valid UTF-8", field)
	}
	if len(value) > maxIDLength {
		return NewInvalid("%s exceeds %d bytes", field, maxIDLength)
	}
	return nil
}

// ValidateAggregateType bounds the aggregate type name's length; it may be
// empty only when the caller is reading/subscribing without filtering.
func ValidateAggregateType(aggregateType string) error {
	if len(aggregateType) > maxAggregateTypeLen {
		return NewInvalid("aggregate_type exceeds %d bytes", maxAggregateTypeLen)
	}
	return nil
}

// NormalizeAppendRequest validates an AppendRequest's static shape (tenant,
// aggregate, per-event fields) and fills in any fields a client is allowed
// to omit (event_id). It does not touch anything that depends on engine
// state (nonces, fingerprints) — that's the caller's job.
func NormalizeAppendRequest(req *AppendRequest) error {
	if err := ValidateTenantID(req.TenantID); err != nil {
		return err
	}
	if err := ValidateAggregateID(req.AggregateID); err != nil {
		return err
	}
	if req.AggregateType == "" {
		return NewInvalid("aggregate_type must not be empty")
	}
	if err := ValidateAggregateType(req.AggregateType); err != nil {
		return err
	}
	if len(req.Events) == 0 {
		return NewInvalid("append request must contain at least one event")
	}
	for i := range req.Events {
		if err := normalizeAppendEvent(&req.Events[i]); err != nil {
			return NewInvalid("event %d: %v", i, err)
		}
	}
	return nil
}

func normalizeAppendEvent(e *AppendEvent) error {
	if e.EventType == "" {
		return NewInvalid("event_type must not be empty")
	}
	if len(e.EventType) > maxEventTypeLen {
		return NewInvalid("event_type exceeds %d bytes", maxEventTypeLen)
	}
	if e.EventID == "" {
		e.EventID = ulid.Make().String()
	} else if err := ValidateEventID(e.EventID); err != nil {
		return err
	}
	if e.Metadata == nil {
		e.Metadata = map[string]string{}
	}
	return nil
}
