package domain

import (
	"time"

	"github.com/google/uuid"
)

// AssignmentStatus is the lifecycle state of one offer of a lead to a broker.
type AssignmentStatus string

const (
	// StatusAssigned is the only active state; the broker must act before
	// the deadline.
	StatusAssigned AssignmentStatus = "assigned"
	// StatusAccepted is terminal success.
	StatusAccepted AssignmentStatus = "accepted"
	// StatusExpired is terminal for the assignment; the lead is re-routed.
	StatusExpired AssignmentStatus = "expired"
	// StatusRejected is terminal; the broker declined before the deadline.
	StatusRejected AssignmentStatus = "rejected"
)

// Assignment is one offer of a lead to a specific broker.
// ExpiresAt is always absolute (UTC); nil means the assignment auto-accepted
// and is outside SLA processing.
type Assignment struct {
	ID         int64
	LeadID     int64
	BrokerID   uuid.UUID
	Status     AssignmentStatus
	Reason     Reason
	ExpiresAt  *time.Time
	AcceptedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Broker is the directory's read model of a user eligible to receive leads.
type Broker struct {
	ID     uuid.UUID
	Name   string
	Email  string
	Phone  string
	Tier   Tier
	OnCall bool
	Active bool
}

// Area is a state+city pair; geographic matching is exact on both.
type Area struct {
	State string
	City  string
}
