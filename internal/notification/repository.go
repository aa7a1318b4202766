package notification

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists the email audit log and bounce registry.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates the notification repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RecordSend writes one delivery attempt to the audit log.
func (r *Repository) RecordSend(ctx context.Context, template, recipient string, success bool, errMsg *string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO email_log (template, recipient, success, error_message, sent_at)
		VALUES ($1, $2, $3, $4, now())`,
		template, recipient, success, errMsg)
	return err
}

// RecentBounce reports whether the recipient bounced after the cutoff.
func (r *Repository) RecentBounce(ctx context.Context, recipient string, cutoff time.Time) (bool, error) {
	var bounced bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM email_bounces
			WHERE email = $1 AND bounced_at >= $2
		)`, recipient, cutoff,
	).Scan(&bounced)
	return bounced, err
}

// MarkBounce upserts a bounce record for the recipient.
func (r *Repository) MarkBounce(ctx context.Context, recipient, reason string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO email_bounces (email, reason, bounced_at)
		VALUES ($1, $2, now())
		ON CONFLICT (email) DO UPDATE
		SET reason = EXCLUDED.reason, bounced_at = EXCLUDED.bounced_at`,
		recipient, reason)
	return err
}
