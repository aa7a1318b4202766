package repository

import (
	"context"
	"errors"

	"netimob_lead_router/internal/routing/domain"

	"github.com/jackc/pgx/v5"
)

// RoutingConfig reads the single routing_parameters row. A missing row
// falls back to the seeded defaults rather than failing the tick.
func (r *Repository) RoutingConfig(ctx context.Context) (domain.RoutingConfig, error) {
	var cfg domain.RoutingConfig
	err := r.pool.QueryRow(ctx, `
		SELECT external_sla_minutes, internal_sla_minutes,
		       external_fanout, internal_fanout,
		       oncall_escalation_enabled, fixed_broker_routing_exempt
		FROM routing_parameters
		WHERE id = 1`,
	).Scan(
		&cfg.ExternalSLAMinutes, &cfg.InternalSLAMinutes,
		&cfg.ExternalFanOut, &cfg.InternalFanOut,
		&cfg.OnCallEscalationEnabled, &cfg.FixedBrokerRoutingExempt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DefaultRoutingConfig(), nil
		}
		return domain.RoutingConfig{}, err
	}
	return cfg, nil
}
