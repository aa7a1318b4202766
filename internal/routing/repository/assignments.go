package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"netimob_lead_router/internal/routing/domain"
	"netimob_lead_router/platform/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// NormalizeFixedBrokerDeadlines clears expires_at on assigned fixed-broker
// rows. Such rows are outside SLA processing; a deadline on one is a write
// from before the reason variant was enforced.
func (r *Repository) NormalizeFixedBrokerDeadlines(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE lead_assignments
		SET expires_at = NULL, updated_at = now()
		WHERE status = 'assigned'
		  AND expires_at IS NOT NULL
		  AND reason->>'kind' = 'fixed_broker'`)
	if err != nil {
		return 0, fmt.Errorf("normalize fixed-broker deadlines: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ClaimExpired claims up to limit past-deadline assignments and moves them to
// expired in a single transaction. FOR UPDATE SKIP LOCKED makes concurrent
// workers skip each other's rows, and the status guard on the UPDATE makes
// the expiry a compare-and-swap: a row can be claimed at most once.
func (r *Repository) ClaimExpired(ctx context.Context, limit int) ([]ExpiredAssignment, error) {
	if limit < 1 {
		limit = 50
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `WITH cte AS (
		SELECT id
		FROM lead_assignments
		WHERE status = 'assigned'
		  AND expires_at IS NOT NULL
		  AND expires_at <= now()
		  AND reason->>'kind' <> 'fixed_broker'
		ORDER BY expires_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	)
	UPDATE lead_assignments a
	SET status = 'expired', updated_at = now()
	FROM cte
	WHERE a.id = cte.id AND a.status = 'assigned'
	RETURNING a.id, a.lead_id, a.broker_id`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ExpiredAssignment
	for rows.Next() {
		var e ExpiredAssignment
		if err := rows.Scan(&e.AssignmentID, &e.LeadID, &e.BrokerID); err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

// Transition conditionally moves an assignment from one status to another.
// Returns false when the row is gone or its status changed underneath us,
// e.g. the broker accepted while a sweep was expiring it.
func (r *Repository) Transition(ctx context.Context, id int64, from, to domain.AssignmentStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE lead_assignments
		SET status = $3,
		    accepted_at = CASE WHEN $3 = 'accepted' THEN now() ELSE accepted_at END,
		    updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Create inserts a new assignment. Auto-accepted assignments record their
// acceptance timestamp immediately.
func (r *Repository) Create(ctx context.Context, p CreateAssignmentParams) (int64, error) {
	reasonJSON, err := json.Marshal(p.Reason)
	if err != nil {
		return 0, fmt.Errorf("marshal reason: %w", err)
	}

	var id int64
	err = r.pool.QueryRow(ctx, `
		INSERT INTO lead_assignments (lead_id, broker_id, status, reason, expires_at, accepted_at)
		VALUES ($1, $2, $3, $4, $5, CASE WHEN $3 = 'accepted' THEN now() ELSE NULL END)
		RETURNING id`,
		p.LeadID, p.BrokerID, string(p.Status), reasonJSON, p.ExpiresAt,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, apperr.Wrap(apperr.KindConflict, "lead already has an active assignment", err)
		}
		return 0, err
	}
	return id, nil
}

// GetAssignment loads one assignment by id.
func (r *Repository) GetAssignment(ctx context.Context, id int64) (*domain.Assignment, error) {
	var (
		a          domain.Assignment
		status     string
		reasonJSON []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, lead_id, broker_id, status, reason, expires_at, accepted_at, created_at, updated_at
		FROM lead_assignments
		WHERE id = $1`, id,
	).Scan(&a.ID, &a.LeadID, &a.BrokerID, &status, &reasonJSON, &a.ExpiresAt, &a.AcceptedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("assignment not found")
		}
		return nil, err
	}
	a.Status = domain.AssignmentStatus(status)
	if err := json.Unmarshal(reasonJSON, &a.Reason); err != nil {
		return nil, fmt.Errorf("unmarshal reason: %w", err)
	}
	return &a, nil
}

// History lists every offer of a lead, oldest first, joined with the broker
// directory so the Guardian can count attempts per tier.
func (r *Repository) History(ctx context.Context, leadID int64) ([]domain.HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.broker_id, b.tier, b.on_call,
		       COALESCE(a.reason->>'kind', ''), a.status, a.created_at
		FROM lead_assignments a
		JOIN brokers b ON b.id = a.broker_id
		WHERE a.lead_id = $1
		ORDER BY a.created_at ASC`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []domain.HistoryEntry
	for rows.Next() {
		var (
			entry      domain.HistoryEntry
			tier       string
			reasonKind string
			status     string
		)
		if err := rows.Scan(&entry.BrokerID, &tier, &entry.OnCall, &reasonKind, &status, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.BrokerTier = domain.Tier(tier)
		entry.ReasonKind = domain.ReasonKind(reasonKind)
		entry.Status = domain.AssignmentStatus(status)
		history = append(history, entry)
	}
	return history, rows.Err()
}
