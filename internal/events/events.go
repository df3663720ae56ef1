package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"campus-rides/internal/notify"
	"campus-rides/internal/session"
	"campus-rides/pkg/kafka"
)

// SessionChangedEvent is published to campus.session after every session
// transition. The token itself is never published.
type SessionChangedEvent struct {
	ID            string `json:"id"`
	Event         string `json:"event"`
	UserID        string `json:"user_id,omitempty"`
	Authenticated bool   `json:"authenticated"`
	Error         string `json:"error,omitempty"`
	OccurredAt    string `json:"occurred_at"`
}

// NotificationRaisedEvent is published to campus.notifications.
type NotificationRaisedEvent struct {
	ID       string `json:"id"`
	Level    string `json:"level"`
	Source   string `json:"source"`
	Message  string `json:"message"`
	RaisedAt string `json:"raised_at"`
}

// Publisher sends a JSON value to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value any) error
}

// Recorder persists session events (the Postgres audit table).
type Recorder interface {
	RecordSessionEvent(ctx context.Context, id, event, userID string) error
}

// NewSessionChanged builds the event for a session change.
func NewSessionChanged(c session.Change) SessionChangedEvent {
	return SessionChangedEvent{
		ID:            uuid.NewString(),
		Event:         c.Event,
		UserID:        c.State.User.ID(),
		Authenticated: c.State.IsAuthenticated(),
		Error:         c.State.Err,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339),
	}
}

// SessionPublisher returns a session listener that publishes every change.
// Errors are logged; a listener cannot fail the transition.
func SessionPublisher(p Publisher) func(session.Change) {
	return func(c session.Change) {
		ev := NewSessionChanged(c)
		if err := p.Publish(context.Background(), kafka.TopicSession, ev.UserID, ev); err != nil {
			log.Warn().Err(err).Str("event", ev.Event).Msg("[events] publish session change failed")
		}
	}
}

// SessionAudit returns a session listener that records login, register and
// logout outcomes. Intermediate transitions are skipped.
func SessionAudit(r Recorder) func(session.Change) {
	return func(c session.Change) {
		switch c.Event {
		case session.AuthSucceeded{}.Name(), session.AuthFailed{}.Name(), session.LoggedOut{}.Name():
		default:
			return
		}
		ev := NewSessionChanged(c)
		if err := r.RecordSessionEvent(context.Background(), ev.ID, ev.Event, ev.UserID); err != nil {
			log.Warn().Err(err).Str("event", ev.Event).Msg("[events] audit write failed")
		}
	}
}

// NotificationPublisher forwards notifications to campus.notifications.
func NotificationPublisher(p Publisher) notify.Notifier {
	return notify.Func(func(ctx context.Context, n notify.Notification) {
		ev := NotificationRaisedEvent{
			ID:       n.ID,
			Level:    string(n.Level),
			Source:   n.Source,
			Message:  n.Message,
			RaisedAt: n.At.Format(time.RFC3339),
		}
		if err := p.Publish(ctx, kafka.TopicNotifications, n.Source, ev); err != nil {
			log.Warn().Err(err).Msg("[events] publish notification failed")
		}
	})
}
