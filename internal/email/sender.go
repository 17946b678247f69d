// Package email delivers staff-facing notifications over SMTP: quote-chase
// reminders and follow-up alerts for the procurement team.
package email

import (
	"context"
	"fmt"
	"time"

	"procurement_backend/platform/config"
)

// Sender is the staff mail surface the escalation engine talks to.
type Sender interface {
	SendQuoteReminderEmail(ctx context.Context, supplierName, category, requisitionRef string, nudgeCount, maxNudges int, notifiedAt *time.Time) error
	SendFollowUpAlertEmail(ctx context.Context, supplierName, category, requisitionRef string, nudgeCount int) error
}

// NoopSender is used when no SMTP host is configured; reminders are dropped.
type NoopSender struct{}

func (NoopSender) SendQuoteReminderEmail(ctx context.Context, supplierName, category, requisitionRef string, nudgeCount, maxNudges int, notifiedAt *time.Time) error {
	return nil
}

func (NoopSender) SendFollowUpAlertEmail(ctx context.Context, supplierName, category, requisitionRef string, nudgeCount int) error {
	return nil
}

// NewSender selects the configured implementation.
func NewSender(cfg config.StaffChannelConfig) (Sender, error) {
	if !cfg.IsStaffEmailEnabled() {
		return NoopSender{}, nil
	}
	if cfg.GetProcurementTeamAddress() == "" {
		return nil, fmt.Errorf("SMTP configured but PROCUREMENT_TEAM_ADDRESS is empty")
	}
	return NewSMTPSender(cfg), nil
}
