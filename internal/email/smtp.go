package email

import (
	"context"
	"fmt"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// SMTPSender implements the Sender interface using a direct SMTP connection
// via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender creates a new SMTPSender with the given SMTP credentials.
func NewSMTPSender(host string, port int, username, password, fromEmail, fromName string) *SMTPSender {
	return &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

func (s *SMTPSender) SendLeadOfferEmail(ctx context.Context, toEmail string, data LeadOfferData) error {
	content, err := renderEmailTemplate("lead_offer.html", leadOfferEmailData{
		baseEmailData: baseEmailData{
			Title:    "Novo lead para você",
			Heading:  "Novo lead para você",
			CTALabel: "Aceitar lead",
			CTAURL:   data.LeadURL,
		},
		LeadOfferData: data,
	})
	if err != nil {
		return err
	}
	subject := fmt.Sprintf(subjectLeadOfferFmt, data.PropertyTitle)
	return s.send(ctx, toEmail, subject, content)
}

func (s *SMTPSender) SendLeadAutoAssignedEmail(ctx context.Context, toEmail string, data LeadOfferData) error {
	content, err := renderEmailTemplate("lead_auto_assigned.html", leadOfferEmailData{
		baseEmailData: baseEmailData{
			Title:    "Lead atribuído a você",
			Heading:  "Lead atribuído a você",
			CTALabel: "Ver lead",
			CTAURL:   data.LeadURL,
		},
		LeadOfferData: data,
	})
	if err != nil {
		return err
	}
	subject := fmt.Sprintf(subjectLeadAutoAssignedFmt, data.PropertyTitle)
	return s.send(ctx, toEmail, subject, content)
}

func (s *SMTPSender) SendLeadLostEmail(ctx context.Context, toEmail, brokerName, propertyTitle string) error {
	content, err := renderEmailTemplate("lead_lost.html", leadLostEmailData{
		baseEmailData: baseEmailData{
			Title:   "Lead expirado",
			Heading: "Lead expirado",
		},
		BrokerName:    brokerName,
		PropertyTitle: propertyTitle,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subjectLeadLost, content)
}

func (s *SMTPSender) SendClientAcceptedEmail(ctx context.Context, toEmail, clientName, brokerName, brokerPhone, propertyTitle string) error {
	content, err := renderEmailTemplate("client_accepted.html", clientAcceptedEmailData{
		baseEmailData: baseEmailData{
			Title:   "Seu atendimento começou",
			Heading: "Seu atendimento começou",
		},
		ClientName:    clientName,
		BrokerName:    brokerName,
		BrokerPhone:   brokerPhone,
		PropertyTitle: propertyTitle,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subjectClientAccepted, content)
}

func (s *SMTPSender) SendLeadExhaustedEmail(ctx context.Context, toEmail string, leadID int64, attempts int) error {
	content, err := renderEmailTemplate("lead_exhausted.html", leadExhaustedEmailData{
		baseEmailData: baseEmailData{
			Title:   "Lead sem corretor disponível",
			Heading: "Lead sem corretor disponível",
		},
		LeadID:   leadID,
		Attempts: attempts,
	})
	if err != nil {
		return err
	}
	subject := fmt.Sprintf(subjectLeadExhaustedFmt, leadID)
	return s.send(ctx, toEmail, subject, content)
}
