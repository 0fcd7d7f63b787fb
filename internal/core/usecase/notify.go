package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/case-intake/internal/core/domain"
	"github.com/kirillkom/case-intake/internal/core/ports"
)

type NotificationDispatcher struct {
	mail   ports.MailService
	logger *slog.Logger
}

func NewNotificationDispatcher(mail ports.MailService, logger *slog.Logger) *NotificationDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationDispatcher{
		mail:   mail,
		logger: logger,
	}
}

// Notify drafts and sends the verification report email. Failures are logged
// and returned for the caller to surface as a warning; they never affect
// committed case state.
func (d *NotificationDispatcher) Notify(ctx context.Context, c *domain.Case, report *domain.VerificationReport) error {
	err := d.notify(ctx, c, report)
	if err != nil {
		d.logger.Warn("report_email_failed", "case_id", c.ID, "error", err)
		return err
	}
	d.logger.Info("report_email_sent", "case_id", c.ID, "findings", report.Total())
	return nil
}

func (d *NotificationDispatcher) notify(ctx context.Context, c *domain.Case, report *domain.VerificationReport) error {
	recipient := strings.TrimSpace(c.ContactEmail)
	if recipient == "" {
		return errors.New("case has no contact email")
	}

	details, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal verification report: %w", err)
	}

	draft, err := d.mail.Draft(ctx, domain.MailDraftRequest{
		ErrorType:    ReportErrorType(report),
		ErrorDetails: string(details),
		Recipient:    recipient,
	})
	if err != nil {
		return fmt.Errorf("draft report email: %w", err)
	}

	msg := domain.MailMessage{
		Subject:   draft.Subject,
		Body:      draft.Body,
		Recipient: recipient,
	}
	if cc := strings.TrimSpace(c.ManagerEmail); cc != "" {
		msg.CC = []string{cc}
	}
	if err := d.mail.Send(ctx, msg); err != nil {
		return fmt.Errorf("send report email: %w", err)
	}
	return nil
}

// ReportErrorType names the report categories that carry findings.
func ReportErrorType(report *domain.VerificationReport) string {
	if report == nil {
		return "none"
	}
	var kinds []string
	if len(report.MismatchErrors) > 0 {
		kinds = append(kinds, "mismatch")
	}
	if len(report.MissingErrors) > 0 {
		kinds = append(kinds, "missing")
	}
	if len(report.SummarizationErrors) > 0 {
		kinds = append(kinds, "summarization")
	}
	if len(kinds) == 0 {
		return "none"
	}
	return strings.Join(kinds, ",")
}
