package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Config holds SendGrid credentials and sender identity.
type Config struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// Service sends deadline reminder emails through SendGrid.
type Service struct {
	client *sendgrid.Client
	from   *mail.Email
	logger zerolog.Logger
}

// New constructs a SendGrid-backed mailer.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("sendgrid api key must be provided")
	}

	return &Service{
		client: sendgrid.NewSendClient(cfg.APIKey),
		from:   mail.NewEmail(cfg.FromName, cfg.FromEmail),
		logger: logger.With().Str("component", "mailer").Logger(),
	}, nil
}

// SendReminder emails a single student about an approaching deadline.
func (s *Service) SendReminder(ctx context.Context, email, name, assignmentTitle string, deadline time.Time, className string) error {
	subject := fmt.Sprintf("Reminder: %q is due soon", assignmentTitle)
	body := fmt.Sprintf(
		"Hi %s,\n\nThe assignment %q for class %s is due at %s and we have not received your submission yet.\n\nPlease submit before the deadline.",
		name, assignmentTitle, className, deadline.Format(time.RFC1123),
	)

	message := mail.NewSingleEmail(s.from, subject, mail.NewEmail(name, email), body, "")

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send reminder: %w", err)
	}

	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid rejected reminder: status %d", response.StatusCode)
	}

	s.logger.Info().Str("email", email).Str("assignment", assignmentTitle).Msg("reminder sent")
	return nil
}
