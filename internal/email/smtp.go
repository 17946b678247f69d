package email

import (
	"context"
	"fmt"
	"net"
	"time"

	"procurement_backend/platform/config"

	gomail "github.com/wneessen/go-mail"
)

// SMTPSender delivers staff mail via a direct SMTP connection using go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
	teamEmail string
}

func NewSMTPSender(cfg config.StaffChannelConfig) *SMTPSender {
	return &SMTPSender{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
		teamEmail: cfg.GetProcurementTeamAddress(),
	}
}

func (s *SMTPSender) send(ctx context.Context, subject, htmlContent string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(s.teamEmail); err != nil {
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

func (s *SMTPSender) SendQuoteReminderEmail(ctx context.Context, supplierName, category, requisitionRef string, nudgeCount, maxNudges int, notifiedAt *time.Time) error {
	notified := ""
	if notifiedAt != nil {
		notified = notifiedAt.Format("2006-01-02 15:04 MST")
	}
	content, err := renderEmailTemplate("quote_reminder.html", quoteReminderEmailData{
		baseEmailData: baseEmailData{
			Title:   "Quote reminder",
			Heading: fmt.Sprintf("Reminder %d of %d", nudgeCount, maxNudges),
		},
		SupplierName:   supplierName,
		Category:       category,
		RequisitionRef: requisitionRef,
		NotifiedAt:     notified,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, fmt.Sprintf(subjectQuoteReminderFmt, supplierName, category), content)
}

func (s *SMTPSender) SendFollowUpAlertEmail(ctx context.Context, supplierName, category, requisitionRef string, nudgeCount int) error {
	content, err := renderEmailTemplate("follow_up_alert.html", followUpAlertEmailData{
		baseEmailData: baseEmailData{
			Title:   "Manual follow-up needed",
			Heading: "Manual follow-up needed",
		},
		SupplierName:   supplierName,
		Category:       category,
		RequisitionRef: requisitionRef,
		NudgeCount:     nudgeCount,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, fmt.Sprintf(subjectFollowUpAlertFmt, supplierName), content)
}
