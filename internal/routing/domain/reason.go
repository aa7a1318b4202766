package domain

import (
	"github.com/google/uuid"
)

// ReasonKind tags the variant of an assignment reason.
type ReasonKind string

const (
	// ReasonEscalation marks an assignment produced by the tier cascade,
	// either on intake or after an SLA expiry.
	ReasonEscalation ReasonKind = "escalation"
	// ReasonFixedBroker marks an assignment to the property's owner broker.
	// These assignments never expire and are exempt from re-routing.
	ReasonFixedBroker ReasonKind = "fixed_broker"
	// ReasonManual marks an assignment created by an operator.
	ReasonManual ReasonKind = "manual"
)

// Reason is the structured audit trail stored on every assignment.
// It is persisted as JSONB; Metadata carries forward-compatible extras.
type Reason struct {
	Kind             ReasonKind     `json:"kind"`
	Tier             Tier           `json:"tier,omitempty"`
	Source           string         `json:"source,omitempty"`
	PreviousBrokerID *uuid.UUID     `json:"previousBrokerId,omitempty"`
	Attempt          int            `json:"attempt,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// EscalationReason builds the reason for a cascade assignment.
func EscalationReason(tier Tier, source string, previousBrokerID *uuid.UUID, attempt int) Reason {
	return Reason{
		Kind:             ReasonEscalation,
		Tier:             tier,
		Source:           source,
		PreviousBrokerID: previousBrokerID,
		Attempt:          attempt,
	}
}

// FixedBrokerReason builds the reason for a property-owner assignment.
func FixedBrokerReason(source string) Reason {
	return Reason{Kind: ReasonFixedBroker, Source: source}
}

// ManualReason builds the reason for an operator-created assignment.
func ManualReason(source string) Reason {
	return Reason{Kind: ReasonManual, Source: source}
}

// IsFixedBroker reports whether this assignment is pinned to the property
// owner and therefore outside SLA processing.
func (r Reason) IsFixedBroker() bool {
	return r.Kind == ReasonFixedBroker
}
