package repository

import (
	"context"
	"errors"

	"netimob_lead_router/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LeadContext loads the denormalized lead view used by routing and by
// notification rendering.
func (r *Repository) LeadContext(ctx context.Context, leadID int64) (*LeadContext, error) {
	var lc LeadContext
	err := r.pool.QueryRow(ctx, `
		SELECT l.id, l.message, l.contact_preference, l.created_at,
		       p.id, p.code, p.title, p.price_cents,
		       COALESCE(p.street, ''), COALESCE(p.number, ''), COALESCE(p.district, ''),
		       p.city, p.state, COALESCE(p.postal_code, ''),
		       p.broker_id,
		       c.name, c.email, COALESCE(c.phone, '')
		FROM leads l
		JOIN properties p ON p.id = l.property_id
		JOIN clients c ON c.id = l.client_id
		WHERE l.id = $1`, leadID,
	).Scan(
		&lc.LeadID, &lc.Message, &lc.ContactPreference, &lc.CreatedAt,
		&lc.PropertyID, &lc.PropertyCode, &lc.PropertyTitle, &lc.PriceCents,
		&lc.Street, &lc.Number, &lc.District,
		&lc.City, &lc.State, &lc.PostalCode,
		&lc.FixedBrokerID,
		&lc.ClientName, &lc.ClientEmail, &lc.ClientPhone,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("lead not found")
		}
		return nil, err
	}
	return &lc, nil
}

// SetPropertyBroker links the property to the broker who auto-accepted its
// lead, mirroring the ownership handover on on-call assignments.
func (r *Repository) SetPropertyBroker(ctx context.Context, propertyID int64, brokerID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE properties
		SET broker_id = $2, updated_at = now()
		WHERE id = $1`, propertyID, brokerID)
	return err
}
