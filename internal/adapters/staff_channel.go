// Package adapters bridges module interfaces across bounded contexts so
// modules only depend on interfaces they own.
package adapters

import (
	"context"

	"procurement_backend/internal/email"
	"procurement_backend/internal/nudge"
)

// StaffEmailChannel adapts the email sender to the nudge engine's
// StaffChannel interface.
type StaffEmailChannel struct {
	sender email.Sender
}

func NewStaffEmailChannel(sender email.Sender) *StaffEmailChannel {
	return &StaffEmailChannel{sender: sender}
}

func (a *StaffEmailChannel) SendReminder(ctx context.Context, r nudge.Reminder) error {
	return a.sender.SendQuoteReminderEmail(ctx, r.SupplierName, r.Category,
		r.RequisitionID.String(), r.NudgeCount, r.MaxNudges, r.SentAt)
}

func (a *StaffEmailChannel) SendFollowUpAlert(ctx context.Context, r nudge.Reminder) error {
	return a.sender.SendFollowUpAlertEmail(ctx, r.SupplierName, r.Category,
		r.RequisitionID.String(), r.NudgeCount)
}
