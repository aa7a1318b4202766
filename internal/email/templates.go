package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title    string
	Heading  string
	CTALabel string
	CTAURL   string
}

type leadOfferEmailData struct {
	baseEmailData
	LeadOfferData
}

type leadLostEmailData struct {
	baseEmailData
	BrokerName    string
	PropertyTitle string
}

type clientAcceptedEmailData struct {
	baseEmailData
	ClientName    string
	BrokerName    string
	BrokerPhone   string
	PropertyTitle string
}

type leadExhaustedEmailData struct {
	baseEmailData
	LeadID   int64
	Attempts int
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}

// FormatCurrencyBRL renders integer cents as a pt-BR price string.
func FormatCurrencyBRL(cents int64) string {
	reais := cents / 100
	rest := cents % 100

	// Thousands separator by hand; the amounts here never carry sign.
	var groups []string
	for reais >= 1000 {
		groups = append([]string{fmt.Sprintf("%03d", reais%1000)}, groups...)
		reais /= 1000
	}
	groups = append([]string{fmt.Sprintf("%d", reais)}, groups...)

	out := groups[0]
	for _, g := range groups[1:] {
		out += "." + g
	}
	return fmt.Sprintf("R$ %s,%02d", out, rest)
}
