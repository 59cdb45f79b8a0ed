package services

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/remindery/go-reminder-backend/internal/domain"
)

// Sender transmits a resolved notification payload over whatever channel the
// deployment wires in (push, chat message, webhook). The engine only decides
// what and when; rendering and transport belong to the implementation.
type Sender interface {
	Send(ctx context.Context, n domain.Notification) error
}

// LogSender is the default Sender: it writes the payload to the structured
// log. Deployments replace it with a real transport adapter.
type LogSender struct {
	Log zerolog.Logger
}

// Send implements Sender.
func (s LogSender) Send(_ context.Context, n domain.Notification) error {
	s.Log.Info().
		Str("event_id", n.EventID).
		Str("chat_id", n.ChatID).
		Str("kind", n.Kind).
		Str("title", n.Title).
		Time("occurrence_at", n.OccurrenceAt).
		Int("offset_minutes", n.OffsetMinutes).
		Msg("notification")
	return nil
}
