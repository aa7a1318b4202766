package repository

import (
	"context"
	"time"

	"netimob_lead_router/internal/routing/domain"

	"github.com/google/uuid"
)

// ExpiredAssignment identifies one assignment the sweep moved to expired.
type ExpiredAssignment struct {
	AssignmentID int64
	LeadID       int64
	BrokerID     uuid.UUID
}

// CreateAssignmentParams carries everything needed to insert an assignment.
type CreateAssignmentParams struct {
	LeadID    int64
	BrokerID  uuid.UUID
	Status    domain.AssignmentStatus
	Reason    domain.Reason
	ExpiresAt *time.Time
}

// BrokerFilter narrows the broker directory query. ExcludeIDs removes
// brokers already offered the lead.
type BrokerFilter struct {
	Tier       domain.Tier
	OnCall     bool
	Area       *domain.Area
	ExcludeIDs []uuid.UUID
	Limit      int
}

// LeadContext is the denormalized view of a lead used for routing decisions
// and notification rendering.
type LeadContext struct {
	LeadID            int64
	PropertyID        int64
	PropertyCode      string
	PropertyTitle     string
	PriceCents        *int64
	Street            string
	Number            string
	District          string
	City              string
	State             string
	PostalCode        string
	FixedBrokerID     *uuid.UUID
	ClientName        string
	ClientEmail       string
	ClientPhone       string
	Message           string
	ContactPreference string
	CreatedAt         time.Time
}

// Area returns the lead's geographic matching key.
func (lc *LeadContext) Area() *domain.Area {
	if lc == nil || lc.State == "" || lc.City == "" {
		return nil
	}
	return &domain.Area{State: lc.State, City: lc.City}
}

// AssignmentStore owns assignment state transitions.
type AssignmentStore interface {
	// NormalizeFixedBrokerDeadlines clears deadlines that were wrongly
	// written onto fixed-broker assignments. Returns rows touched.
	NormalizeFixedBrokerDeadlines(ctx context.Context) (int64, error)
	// ClaimExpired locks and transitions past-deadline assignments to
	// expired in one transaction, skipping rows locked by other workers.
	ClaimExpired(ctx context.Context, limit int) ([]ExpiredAssignment, error)
	// Transition conditionally moves an assignment between statuses.
	// Returns false when the current status no longer matches from.
	Transition(ctx context.Context, id int64, from, to domain.AssignmentStatus) (bool, error)
	// Create inserts a new assignment. The partial unique index on
	// (lead_id) WHERE status='assigned' enforces single-active.
	Create(ctx context.Context, p CreateAssignmentParams) (int64, error)
	// GetAssignment loads one assignment by id.
	GetAssignment(ctx context.Context, id int64) (*domain.Assignment, error)
	// History lists every offer of a lead, oldest first.
	History(ctx context.Context, leadID int64) ([]domain.HistoryEntry, error)
}

// BrokerDirectory is the read-only view of broker eligibility.
type BrokerDirectory interface {
	EligibleBrokers(ctx context.Context, f BrokerFilter) ([]domain.Broker, error)
	// OnCallBroker prefers an area match and falls back to any active
	// on-call broker.
	OnCallBroker(ctx context.Context, area *domain.Area) (*domain.Broker, error)
	BrokerByID(ctx context.Context, id uuid.UUID) (*domain.Broker, error)
}

// LeadReader loads the lead view.
type LeadReader interface {
	LeadContext(ctx context.Context, leadID int64) (*LeadContext, error)
}

// ParameterReader loads the routing configuration snapshot.
type ParameterReader interface {
	RoutingConfig(ctx context.Context) (domain.RoutingConfig, error)
}

// PropertyWriter links a property to its broker after an auto-accept.
type PropertyWriter interface {
	SetPropertyBroker(ctx context.Context, propertyID int64, brokerID uuid.UUID) error
}
