package repository

import (
	"context"
	"errors"

	"netimob_lead_router/internal/routing/domain"
	"netimob_lead_router/platform/apperr"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// EligibleBrokers lists active brokers matching the filter, ordered by the
// deterministic selection policy: fewest offers received, then longest
// since the last offer (never-offered first), then oldest broker account.
// The first row is always the next pick; the ordering makes routing
// reproducible under test.
func (r *Repository) EligibleBrokers(ctx context.Context, f BrokerFilter) ([]domain.Broker, error) {
	q := psql.
		Select("b.id", "b.name", "b.email", "COALESCE(b.phone, '')", "b.tier", "b.on_call").
		From("brokers b").
		LeftJoin("lead_assignments a ON a.broker_id = b.id").
		Where(sq.Eq{"b.active": true, "b.on_call": f.OnCall}).
		GroupBy("b.id", "b.name", "b.email", "b.phone", "b.tier", "b.on_call", "b.created_at").
		OrderBy("COUNT(a.id) ASC", "MAX(a.created_at) ASC NULLS FIRST", "b.created_at ASC")

	if f.Tier == domain.TierExternal || f.Tier == domain.TierInternal {
		q = q.Where(sq.Eq{"b.tier": string(f.Tier)})
	}
	if f.Area != nil {
		q = q.Join("broker_areas ba ON ba.broker_id = b.id").
			Where(sq.Eq{"ba.state": f.Area.State, "ba.city": f.Area.City})
	}
	if len(f.ExcludeIDs) > 0 {
		q = q.Where(sq.NotEq{"b.id": f.ExcludeIDs})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var brokers []domain.Broker
	for rows.Next() {
		var (
			b    domain.Broker
			tier string
		)
		if err := rows.Scan(&b.ID, &b.Name, &b.Email, &b.Phone, &tier, &b.OnCall); err != nil {
			return nil, err
		}
		b.Tier = domain.Tier(tier)
		b.Active = true
		brokers = append(brokers, b)
	}
	return brokers, rows.Err()
}

// OnCallBroker picks the next on-call broker, preferring an area match and
// falling back to any active on-call broker. Returns nil when none exists.
func (r *Repository) OnCallBroker(ctx context.Context, area *domain.Area) (*domain.Broker, error) {
	if area != nil {
		local, err := r.EligibleBrokers(ctx, BrokerFilter{OnCall: true, Area: area, Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(local) > 0 {
			return &local[0], nil
		}
	}

	global, err := r.EligibleBrokers(ctx, BrokerFilter{OnCall: true, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(global) == 0 {
		return nil, nil
	}
	return &global[0], nil
}

// BrokerByID loads one active broker.
func (r *Repository) BrokerByID(ctx context.Context, id uuid.UUID) (*domain.Broker, error) {
	var (
		b    domain.Broker
		tier string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, email, COALESCE(phone, ''), tier, on_call, active
		FROM brokers
		WHERE id = $1`, id,
	).Scan(&b.ID, &b.Name, &b.Email, &b.Phone, &tier, &b.OnCall, &b.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("broker not found")
		}
		return nil, err
	}
	b.Tier = domain.Tier(tier)
	return &b, nil
}
