package email

import (
	"strings"
	"testing"
)

func TestRenderQuoteReminderTemplate(t *testing.T) {
	body, err := renderEmailTemplate("quote_reminder.html", quoteReminderEmailData{
		baseEmailData:  baseEmailData{Title: "Quote reminder", Heading: "Quote reminder"},
		SupplierName:   "Acme Metals",
		Category:       "metals/steel",
		RequisitionRef: "3f0b8f3e",
		NotifiedAt:     "2026-08-01 09:00",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"Acme Metals", "metals/steel", "3f0b8f3e"} {
		if !strings.Contains(body, want) {
			t.Fatalf("rendered body missing %q:\n%s", want, body)
		}
	}
}

func TestRenderFollowUpAlertTemplate(t *testing.T) {
	body, err := renderEmailTemplate("follow_up_alert.html", followUpAlertEmailData{
		baseEmailData:  baseEmailData{Title: "Follow-up needed", Heading: "Follow-up needed"},
		SupplierName:   "Beta Cables",
		Category:       "electrical/cabling",
		RequisitionRef: "3f0b8f3e",
		NudgeCount:     3,
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"Beta Cables", "electrical/cabling"} {
		if !strings.Contains(body, want) {
			t.Fatalf("rendered body missing %q:\n%s", want, body)
		}
	}
}

func TestRenderUnknownTemplateErrors(t *testing.T) {
	if _, err := renderEmailTemplate("missing.html", nil); err == nil {
		t.Fatal("expected an error for an unknown template")
	}
}
