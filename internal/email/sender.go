// Package email renders and delivers the routing notification emails.
package email

import (
	"context"

	"netimob_lead_router/platform/config"
	"netimob_lead_router/platform/logger"
)

// LeadOfferData carries everything the broker-facing templates render.
type LeadOfferData struct {
	BrokerName      string
	PropertyCode    string
	PropertyTitle   string
	PropertyAddress string
	PriceFormatted  string
	ClientName      string
	ClientEmail     string
	ClientPhone     string
	WhatsAppURL     string
	Message         string
	AcceptByLabel   string
	LeadURL         string
}

// Sender delivers the routing notification emails. Implementations must be
// safe for concurrent use.
type Sender interface {
	// SendLeadOfferEmail notifies a broker of a new offer that needs
	// acceptance before the deadline.
	SendLeadOfferEmail(ctx context.Context, toEmail string, data LeadOfferData) error
	// SendLeadAutoAssignedEmail notifies a broker of an offer that was
	// accepted on their behalf (on-call or property owner).
	SendLeadAutoAssignedEmail(ctx context.Context, toEmail string, data LeadOfferData) error
	// SendLeadLostEmail tells the previous broker their offer expired.
	SendLeadLostEmail(ctx context.Context, toEmail, brokerName, propertyTitle string) error
	// SendClientAcceptedEmail confirms to the client that a broker took
	// their lead.
	SendClientAcceptedEmail(ctx context.Context, toEmail, clientName, brokerName, brokerPhone, propertyTitle string) error
	// SendLeadExhaustedEmail alerts operations that a lead ran out of
	// eligible brokers.
	SendLeadExhaustedEmail(ctx context.Context, toEmail string, leadID int64, attempts int) error
}

// NewSender returns the configured sender, or a no-op sender when email
// delivery is disabled.
func NewSender(cfg config.EmailConfig, log *logger.Logger) Sender {
	if !cfg.GetEmailEnabled() {
		log.Info("email delivery disabled, using noop sender")
		return NoopSender{}
	}
	return NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetEmailFromAddress(),
		cfg.GetEmailFromName(),
	)
}

// NoopSender silently drops every email. Used in development and tests.
type NoopSender struct{}

func (NoopSender) SendLeadOfferEmail(ctx context.Context, toEmail string, data LeadOfferData) error {
	return nil
}

func (NoopSender) SendLeadAutoAssignedEmail(ctx context.Context, toEmail string, data LeadOfferData) error {
	return nil
}

func (NoopSender) SendLeadLostEmail(ctx context.Context, toEmail, brokerName, propertyTitle string) error {
	return nil
}

func (NoopSender) SendClientAcceptedEmail(ctx context.Context, toEmail, clientName, brokerName, brokerPhone, propertyTitle string) error {
	return nil
}

func (NoopSender) SendLeadExhaustedEmail(ctx context.Context, toEmail string, leadID int64, attempts int) error {
	return nil
}
