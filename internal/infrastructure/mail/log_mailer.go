// Package mail contains Mailer transports.
package mail

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/99minutos/identity-system/internal/core/ports"
	"github.com/99minutos/identity-system/internal/pkg/redact"
)

// LogMailer "delivers" mail by writing it to the log. Recipient and subject
// are logged at info; the body, which carries the one-time link, only at debug.
type LogMailer struct {
	log zerolog.Logger
}

func NewLogMailer(log zerolog.Logger) *LogMailer {
	return &LogMailer{log: log.With().Str("component", "mailer").Logger()}
}

func (m *LogMailer) Send(ctx context.Context, msg ports.MailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id := uuid.NewString()
	m.log.Info().
		Str("message_id", id).
		Str("to", redact.Email(msg.To)).
		Str("subject", msg.Subject).
		Msg("mail sent")
	m.log.Debug().
		Str("message_id", id).
		Str("body", msg.Body).
		Msg("mail body")
	return nil
}
