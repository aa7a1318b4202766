// Package domain holds the routing bounded context's core types and the
// Guardian decision engine. It has no infrastructure dependencies.
package domain

// Tier classifies brokers for escalation purposes. Leads cascade through
// tiers in EscalationOrder; the on-call tier is a fallback, not a broker
// classification stored on the broker row (on_call is a separate flag).
type Tier string

const (
	TierExternal Tier = "external"
	TierInternal Tier = "internal"
	TierOnCall   Tier = "on_call"
)

// EscalationOrder is the single source of truth for the tier cascade.
var EscalationOrder = []Tier{TierExternal, TierInternal, TierOnCall}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierExternal, TierInternal, TierOnCall:
		return true
	}
	return false
}
