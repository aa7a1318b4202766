// Package notification subscribes to routing events and sends the
// corresponding emails. Delivery is best effort: every failure is logged
// and recorded, and never reaches back into assignment state.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"netimob_lead_router/internal/email"
	"netimob_lead_router/internal/events"
	routingrepo "netimob_lead_router/internal/routing/repository"
	"netimob_lead_router/platform/config"
	"netimob_lead_router/platform/logger"
	"netimob_lead_router/platform/phone"
	"netimob_lead_router/platform/sanitize"
)

// EmailLog records delivery attempts and bounce state.
type EmailLog interface {
	RecordSend(ctx context.Context, template, recipient string, success bool, errMsg *string) error
	RecentBounce(ctx context.Context, recipient string, cutoff time.Time) (bool, error)
	MarkBounce(ctx context.Context, recipient, reason string) error
}

// Module wires routing events to email delivery.
type Module struct {
	sender     email.Sender
	repo       EmailLog
	leads      routingrepo.LeadReader
	directory  routingrepo.BrokerDirectory
	limiter    *rate.Limiter
	appBaseURL string
	opsAddress string
	bounceWin  time.Duration
	log        *logger.Logger
}

// NewModule creates the notification module.
func NewModule(
	sender email.Sender,
	repo EmailLog,
	leads routingrepo.LeadReader,
	directory routingrepo.BrokerDirectory,
	ncfg config.NotificationConfig,
	ecfg config.EmailConfig,
	log *logger.Logger,
) *Module {
	perSecond := ncfg.GetEmailSendsPerSecond()
	if perSecond <= 0 {
		perSecond = 2
	}
	return &Module{
		sender:     sender,
		repo:       repo,
		leads:      leads,
		directory:  directory,
		limiter:    rate.NewLimiter(rate.Limit(perSecond), 1),
		appBaseURL: ncfg.GetAppBaseURL(),
		opsAddress: ecfg.GetOpsAlertAddress(),
		bounceWin:  ncfg.GetBounceSuppressionWindow(),
		log:        log,
	}
}

// RegisterHandlers subscribes the module to routing events.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.LeadRouted{}.EventName(), m)
	bus.Subscribe(events.AssignmentAccepted{}.EventName(), m)
	bus.Subscribe(events.AssignmentExpired{}.EventName(), m)
	bus.Subscribe(events.LeadExhausted{}.EventName(), m)
}

// Handle routes events to the appropriate notification.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.LeadRouted:
		return m.handleLeadRouted(ctx, e)
	case events.AssignmentAccepted:
		return m.handleAssignmentAccepted(ctx, e)
	case events.AssignmentExpired:
		return m.handleAssignmentExpired(ctx, e)
	case events.LeadExhausted:
		return m.handleLeadExhausted(ctx, e)
	default:
		return nil
	}
}

func (m *Module) handleLeadRouted(ctx context.Context, e events.LeadRouted) error {
	lead, err := m.leads.LeadContext(ctx, e.LeadID)
	if err != nil {
		return fmt.Errorf("loading lead %d: %w", e.LeadID, err)
	}
	broker, err := m.directory.BrokerByID(ctx, e.BrokerID)
	if err != nil {
		return fmt.Errorf("loading broker %s: %w", e.BrokerID, err)
	}

	data := m.offerData(lead, broker.Name, e.ExpiresAt)

	var errs []error
	if e.AutoAccepted {
		errs = append(errs, m.deliver(ctx, "lead_auto_assigned", broker.Email, func(sendCtx context.Context) error {
			return m.sender.SendLeadAutoAssignedEmail(sendCtx, broker.Email, data)
		}))
		if lead.ClientEmail != "" {
			errs = append(errs, m.deliver(ctx, "client_accepted", lead.ClientEmail, func(sendCtx context.Context) error {
				return m.sender.SendClientAcceptedEmail(sendCtx, lead.ClientEmail,
					lead.ClientName, broker.Name, phone.FormatNational(broker.Phone), lead.PropertyTitle)
			}))
		}
	} else {
		errs = append(errs, m.deliver(ctx, "lead_offer", broker.Email, func(sendCtx context.Context) error {
			return m.sender.SendLeadOfferEmail(sendCtx, broker.Email, data)
		}))
	}

	return errors.Join(errs...)
}

func (m *Module) handleAssignmentAccepted(ctx context.Context, e events.AssignmentAccepted) error {
	lead, err := m.leads.LeadContext(ctx, e.LeadID)
	if err != nil {
		return fmt.Errorf("loading lead %d: %w", e.LeadID, err)
	}
	if lead.ClientEmail == "" {
		return nil
	}
	broker, err := m.directory.BrokerByID(ctx, e.BrokerID)
	if err != nil {
		return fmt.Errorf("loading broker %s: %w", e.BrokerID, err)
	}

	return m.deliver(ctx, "client_accepted", lead.ClientEmail, func(sendCtx context.Context) error {
		return m.sender.SendClientAcceptedEmail(sendCtx, lead.ClientEmail,
			lead.ClientName, broker.Name, phone.FormatNational(broker.Phone), lead.PropertyTitle)
	})
}

func (m *Module) handleAssignmentExpired(ctx context.Context, e events.AssignmentExpired) error {
	lead, err := m.leads.LeadContext(ctx, e.LeadID)
	if err != nil {
		return fmt.Errorf("loading lead %d: %w", e.LeadID, err)
	}
	broker, err := m.directory.BrokerByID(ctx, e.PreviousBrokerID)
	if err != nil {
		return fmt.Errorf("loading broker %s: %w", e.PreviousBrokerID, err)
	}

	return m.deliver(ctx, "lead_lost", broker.Email, func(sendCtx context.Context) error {
		return m.sender.SendLeadLostEmail(sendCtx, broker.Email, broker.Name, lead.PropertyTitle)
	})
}

func (m *Module) handleLeadExhausted(ctx context.Context, e events.LeadExhausted) error {
	if m.opsAddress == "" {
		m.log.Warn("no ops alert address configured, exhaustion alert dropped", "lead_id", e.LeadID)
		return nil
	}

	return m.deliver(ctx, "lead_exhausted", m.opsAddress, func(sendCtx context.Context) error {
		return m.sender.SendLeadExhaustedEmail(sendCtx, m.opsAddress, e.LeadID, e.Attempts)
	})
}

// deliver wraps one send with bounce suppression, rate limiting, the audit
// log and bounce marking.
func (m *Module) deliver(ctx context.Context, template, recipient string, send func(context.Context) error) error {
	if recipient == "" {
		return nil
	}

	cutoff := time.Now().UTC().Add(-m.bounceWin)
	bounced, err := m.repo.RecentBounce(ctx, recipient, cutoff)
	if err != nil {
		m.log.DatabaseError("check bounce suppression", err)
	} else if bounced {
		m.log.EmailEvent(template, recipient, false, "suppressed by recent bounce")
		return nil
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}

	sendErr := send(ctx)
	if sendErr != nil {
		msg := sendErr.Error()
		if recordErr := m.repo.RecordSend(ctx, template, recipient, false, &msg); recordErr != nil {
			m.log.DatabaseError("record email failure", recordErr)
		}
		if isDeliveryFailure(sendErr) {
			if markErr := m.repo.MarkBounce(ctx, recipient, msg); markErr != nil {
				m.log.DatabaseError("mark bounce", markErr)
			}
		}
		m.log.EmailEvent(template, recipient, false, msg)
		return fmt.Errorf("sending %s to %s: %w", template, recipient, sendErr)
	}

	if err := m.repo.RecordSend(ctx, template, recipient, true, nil); err != nil {
		m.log.DatabaseError("record email success", err)
	}
	m.log.EmailEvent(template, recipient, true, "")
	return nil
}

func notDigit(r rune) bool {
	return r < '0' || r > '9'
}

// isDeliveryFailure distinguishes recipient-level rejections worth
// suppressing from transient transport errors.
func isDeliveryFailure(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "recipient") ||
		strings.Contains(msg, "mailbox") ||
		strings.Contains(msg, "550") ||
		strings.Contains(msg, "553")
}

func (m *Module) offerData(lead *routingrepo.LeadContext, brokerName string, expiresAt *time.Time) email.LeadOfferData {
	data := email.LeadOfferData{
		BrokerName:    brokerName,
		PropertyCode:  lead.PropertyCode,
		PropertyTitle: lead.PropertyTitle,
		ClientName:    lead.ClientName,
		ClientEmail:   lead.ClientEmail,
		ClientPhone:   phone.FormatNational(lead.ClientPhone),
		Message:       sanitize.Text(lead.Message),
		LeadURL:       fmt.Sprintf("%s/leads/%d", strings.TrimRight(m.appBaseURL, "/"), lead.LeadID),
	}

	// wa.me links only work with bare E.164 digits; numbers that do not
	// normalize come back with their original formatting and get no link.
	e164 := phone.NormalizeE164(lead.ClientPhone)
	if digits, ok := strings.CutPrefix(e164, "+"); ok && !strings.ContainsFunc(digits, notDigit) {
		data.WhatsAppURL = "https://wa.me/" + digits
	}

	var addr []string
	if lead.Street != "" {
		street := lead.Street
		if lead.Number != "" {
			street += ", " + lead.Number
		}
		addr = append(addr, street)
	}
	if lead.District != "" {
		addr = append(addr, lead.District)
	}
	if lead.City != "" {
		addr = append(addr, lead.City+" - "+lead.State)
	}
	data.PropertyAddress = strings.Join(addr, ", ")

	if lead.PriceCents != nil {
		data.PriceFormatted = email.FormatCurrencyBRL(*lead.PriceCents)
	}
	if expiresAt != nil {
		data.AcceptByLabel = expiresAt.UTC().Format("02/01/2006 15:04 UTC")
	}
	return data
}
