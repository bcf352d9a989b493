// Package notify delivers invitation email. Delivery is best effort;
// a failed send never blocks the membership change that triggered it.
package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/seatsync/seatsync/pkg/observability"
)

// Invite carries everything needed to render an invitation email
type Invite struct {
	Email       string
	Role        string
	InviterName string
	AccountName string
	Token       string
}

// Sender delivers notifications
type Sender interface {
	SendInvite(ctx context.Context, invite Invite) error
}

// SendGridSender delivers email through SendGrid
type SendGridSender struct {
	client    *sendgrid.Client
	fromName  string
	fromEmail string
	baseURL   string
}

// NewSendGridSender creates a SendGrid-backed sender. baseURL is the
// public address invite links point at.
func NewSendGridSender(apiKey, fromName, fromEmail, baseURL string) *SendGridSender {
	return &SendGridSender{
		client:    sendgrid.NewSendClient(apiKey),
		fromName:  fromName,
		fromEmail: fromEmail,
		baseURL:   baseURL,
	}
}

// SendInvite delivers an invitation email
func (s *SendGridSender) SendInvite(ctx context.Context, invite Invite) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail("", invite.Email)

	subject := fmt.Sprintf("%s invited you to join %s", invite.InviterName, invite.AccountName)
	link := fmt.Sprintf("%s/invitations/%s/accept", s.baseURL, invite.Token)
	plain := fmt.Sprintf(
		"%s has invited you to join %s as %s.\n\nAccept the invitation: %s\n",
		invite.InviterName, invite.AccountName, invite.Role, link)
	html := fmt.Sprintf(
		`<p>%s has invited you to join <strong>%s</strong> as %s.</p><p><a href=%q>Accept the invitation</a></p>`,
		invite.InviterName, invite.AccountName, invite.Role, link)

	message := mail.NewSingleEmail(from, subject, to, plain, html)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send invite email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("invite email rejected: status=%d body=%s", response.StatusCode, response.Body)
	}
	return nil
}

// LogSender writes notifications to the log instead of delivering
// them. It is the fallback when no email provider is configured.
type LogSender struct {
	logger *observability.Logger
}

// NewLogSender creates a log-only sender
func NewLogSender(logger *observability.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// SendInvite logs the invitation instead of delivering it
func (s *LogSender) SendInvite(ctx context.Context, invite Invite) error {
	s.logger.WithFields(map[string]interface{}{
		"email":   invite.Email,
		"role":    invite.Role,
		"account": invite.AccountName,
	}).Info("invite email suppressed (no email provider configured)")
	return nil
}
