package email

import (
	"strings"
	"testing"
)

func TestRenderLeadOfferTemplate(t *testing.T) {
	content, err := renderEmailTemplate("lead_offer.html", leadOfferEmailData{
		baseEmailData: baseEmailData{
			Title:    "Novo lead para você",
			Heading:  "Novo lead para você",
			CTALabel: "Aceitar lead",
			CTAURL:   "https://app.example.com/leads/42",
		},
		LeadOfferData: LeadOfferData{
			BrokerName:      "João",
			PropertyCode:    "AP-1042",
			PropertyTitle:   "Apartamento 2 quartos",
			PropertyAddress: "Rua XV de Novembro, 100, Centro, Curitiba - PR",
			PriceFormatted:  "R$ 450.000,00",
			ClientName:      "Maria Silva",
			ClientEmail:     "maria@example.com",
			ClientPhone:     "(41) 99999-0000",
			WhatsAppURL:     "https://wa.me/5541999990000",
			AcceptByLabel:   "31/08/2026 15:04 UTC",
		},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{
		"João",
		"AP-1042",
		"31/08/2026 15:04 UTC",
		"https://app.example.com/leads/42",
		"https://wa.me/5541999990000",
		"R$ 450.000,00",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("rendered template missing %q", want)
		}
	}
}

func TestRenderAllTemplates(t *testing.T) {
	cases := []struct {
		name string
		data any
	}{
		{"lead_auto_assigned.html", leadOfferEmailData{}},
		{"lead_lost.html", leadLostEmailData{BrokerName: "João", PropertyTitle: "Casa"}},
		{"client_accepted.html", clientAcceptedEmailData{ClientName: "Maria", BrokerName: "João"}},
		{"lead_exhausted.html", leadExhaustedEmailData{LeadID: 42, Attempts: 6}},
	}
	for _, tc := range cases {
		if _, err := renderEmailTemplate(tc.name, tc.data); err != nil {
			t.Errorf("render %s: %v", tc.name, err)
		}
	}
}

func TestFormatCurrencyBRL(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{0, "R$ 0,00"},
		{9950, "R$ 99,50"},
		{45000000, "R$ 450.000,00"},
		{123456789, "R$ 1.234.567,89"},
	}
	for _, tc := range cases {
		if got := FormatCurrencyBRL(tc.cents); got != tc.want {
			t.Errorf("FormatCurrencyBRL(%d) = %q, want %q", tc.cents, got, tc.want)
		}
	}
}
