// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"github.com/google/uuid"
)

// AssignmentExpired is published when the sweep moves an assignment past its
// SLA deadline into the expired state.
type AssignmentExpired struct {
	BaseEvent
	AssignmentID     int64
	LeadID           int64
	PreviousBrokerID uuid.UUID
}

// EventName returns the unique event identifier.
func (AssignmentExpired) EventName() string { return "routing.assignment_expired" }

// LeadRouted is published when a lead receives a new assignment, either on
// intake routing or after an SLA expiry.
type LeadRouted struct {
	BaseEvent
	LeadID           int64
	AssignmentID     int64
	BrokerID         uuid.UUID
	Tier             string
	AutoAccepted     bool
	ExpiresAt        *time.Time
	PreviousBrokerID *uuid.UUID
}

// EventName returns the unique event identifier.
func (LeadRouted) EventName() string { return "routing.lead_routed" }

// AssignmentAccepted is published when a broker takes an offer before its
// deadline.
type AssignmentAccepted struct {
	BaseEvent
	AssignmentID int64
	LeadID       int64
	BrokerID     uuid.UUID
}

// EventName returns the unique event identifier.
func (AssignmentAccepted) EventName() string { return "routing.assignment_accepted" }

// LeadExhausted is published when no eligible broker remains at any tier.
type LeadExhausted struct {
	BaseEvent
	LeadID   int64
	Attempts int
}

// EventName returns the unique event identifier.
func (LeadExhausted) EventName() string { return "routing.lead_exhausted" }
