package domain

import "time"

// RoutingConfig is the tunable parameter snapshot read from the
// routing_parameters row at the start of each tick or routing decision.
type RoutingConfig struct {
	ExternalSLAMinutes       int
	InternalSLAMinutes       int
	ExternalFanOut           int
	InternalFanOut           int
	OnCallEscalationEnabled  bool
	FixedBrokerRoutingExempt bool
}

// DefaultRoutingConfig mirrors the seeded routing_parameters row and is used
// when the row is missing.
func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{
		ExternalSLAMinutes:       30,
		InternalSLAMinutes:       60,
		ExternalFanOut:           3,
		InternalFanOut:           3,
		OnCallEscalationEnabled:  true,
		FixedBrokerRoutingExempt: true,
	}
}

// SLAFor returns the acceptance window for a tier. On-call assignments
// auto-accept and have no window.
func (c RoutingConfig) SLAFor(tier Tier) time.Duration {
	switch tier {
	case TierInternal:
		return time.Duration(c.InternalSLAMinutes) * time.Minute
	case TierExternal:
		return time.Duration(c.ExternalSLAMinutes) * time.Minute
	}
	return 0
}
