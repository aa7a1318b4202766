package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// HistoryEntry is one prior offer of a lead, as read from the assignment
// ledger joined with the broker directory.
type HistoryEntry struct {
	BrokerID   uuid.UUID
	BrokerTier Tier
	OnCall     bool
	ReasonKind ReasonKind
	Status     AssignmentStatus
	CreatedAt  time.Time
}

// TierDecision is the Guardian's answer to "which tier do we try next".
type TierDecision struct {
	Tier             Tier
	Exhausted        bool
	ExternalAttempts int
	InternalAttempts int
	Detail           string
}

// Guardian is the routing decision engine. All tunables come from the
// RoutingConfig snapshot; the Guardian itself is pure and deterministic.
type Guardian struct {
	cfg RoutingConfig
}

// NewGuardian creates a Guardian bound to one configuration snapshot.
// Snapshots are read per tick, so a Guardian never outlives a tick.
func NewGuardian(cfg RoutingConfig) *Guardian {
	return &Guardian{cfg: cfg}
}

// Config returns the bound configuration snapshot.
func (g *Guardian) Config() RoutingConfig {
	return g.cfg
}

// NextTier decides the tier for the next attempt from the offer history.
//
// The cascade is strict: external brokers are tried up to the external
// fan-out, then internal brokers up to the internal fan-out, then the
// on-call fallback if escalation to it is enabled. On-call offers never
// count toward either tier.
func (g *Guardian) NextTier(history []HistoryEntry) TierDecision {
	var external, internal int
	for _, h := range history {
		if h.OnCall || h.ReasonKind == ReasonFixedBroker {
			continue
		}
		switch h.BrokerTier {
		case TierInternal:
			internal++
		default:
			external++
		}
	}

	d := TierDecision{ExternalAttempts: external, InternalAttempts: internal}

	switch {
	case external < g.cfg.ExternalFanOut && internal == 0:
		d.Tier = TierExternal
		d.Detail = fmt.Sprintf("external tier (attempt %d/%d)", external+1, g.cfg.ExternalFanOut)
	case internal < g.cfg.InternalFanOut:
		d.Tier = TierInternal
		d.Detail = fmt.Sprintf("internal tier (attempt %d/%d)", internal+1, g.cfg.InternalFanOut)
	case g.cfg.OnCallEscalationEnabled:
		d.Tier = TierOnCall
		d.Detail = fmt.Sprintf("on-call fallback (external %d/%d, internal %d/%d)",
			external, g.cfg.ExternalFanOut, internal, g.cfg.InternalFanOut)
	default:
		d.Exhausted = true
		d.Detail = "all tiers exhausted, on-call escalation disabled"
	}

	return d
}

// CascadeFrom returns the remaining tiers to try starting at tier, honoring
// the on-call escalation flag. A tier with no eligible broker falls through
// to the next one in the same pass.
func (g *Guardian) CascadeFrom(tier Tier) []Tier {
	var out []Tier
	seen := false
	for _, t := range EscalationOrder {
		if t == tier {
			seen = true
		}
		if !seen {
			continue
		}
		if t == TierOnCall && !g.cfg.OnCallEscalationEnabled {
			continue
		}
		out = append(out, t)
	}
	return out
}

// ExcludedBrokers lists every broker already offered this lead.
func (g *Guardian) ExcludedBrokers(history []HistoryEntry) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(history))
	seen := make(map[uuid.UUID]struct{}, len(history))
	for _, h := range history {
		if _, ok := seen[h.BrokerID]; ok {
			continue
		}
		seen[h.BrokerID] = struct{}{}
		out = append(out, h.BrokerID)
	}
	return out
}

// Deadline computes the acceptance deadline for an assignment created now.
// On-call assignments auto-accept and carry no deadline. The result is
// always UTC; naive local timestamps caused premature expiries in the past.
func (g *Guardian) Deadline(tier Tier, now time.Time) *time.Time {
	if tier == TierOnCall {
		return nil
	}
	d := now.UTC().Add(g.cfg.SLAFor(tier))
	return &d
}

// StatusFor returns the initial status of a new assignment. Fixed-broker and
// on-call assignments auto-accept; everything else awaits the broker.
func (g *Guardian) StatusFor(tier Tier, fixedBroker bool) AssignmentStatus {
	if fixedBroker || tier == TierOnCall {
		return StatusAccepted
	}
	return StatusAssigned
}

// ReasonFor builds the reason recorded on a cascade assignment.
func (g *Guardian) ReasonFor(tier Tier, source string, previousBrokerID *uuid.UUID, attempt int) Reason {
	return EscalationReason(tier, source, previousBrokerID, attempt)
}

// ShouldExpire reports whether an assignment is past its deadline.
// Assignments without a deadline and fixed-broker assignments never expire.
func (g *Guardian) ShouldExpire(a Assignment, now time.Time) bool {
	if a.Status != StatusAssigned {
		return false
	}
	if a.ExpiresAt == nil || a.Reason.IsFixedBroker() {
		return false
	}
	return !a.ExpiresAt.After(now)
}

// SkipInitialRouting reports whether a lead pinned to a property owner
// bypasses automatic intake routing. Controlled by the
// fixed_broker_routing_exempt parameter.
func (g *Guardian) SkipInitialRouting(hasFixedBroker bool) bool {
	return hasFixedBroker && g.cfg.FixedBrokerRoutingExempt
}
