package email

const (
	subjectQuoteReminderFmt = "Reminder: %s has not quoted on %s"
	subjectFollowUpAlertFmt = "Follow-up needed: %s unresponsive after reminders"
)
