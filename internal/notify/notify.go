package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"campus-rides/internal/metrics"
)

// Level is the severity a UI uses to style a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelError   Level = "error"
)

// Notification is a transient user-facing message ("toast").
type Notification struct {
	ID      string    `json:"id"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Source  string    `json:"source"`
	At      time.Time `json:"at"`
}

// New stamps a notification with an id and time.
func New(level Level, source, message string) Notification {
	return Notification{
		ID:      uuid.NewString(),
		Level:   level,
		Message: message,
		Source:  source,
		At:      time.Now().UTC(),
	}
}

// Notifier delivers notifications. Implementations must not block for long;
// delivery failures are theirs to log.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n Notification)

func (f Func) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Discard drops everything.
var Discard Notifier = Func(func(context.Context, Notification) {})

// Fanout delivers to every notifier in order.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, n Notification) {
	metrics.Notifications.WithLabelValues(string(n.Level)).Inc()
	for _, nf := range f {
		nf.Notify(ctx, n)
	}
}

// Log writes notifications to the structured log.
var Log Notifier = Func(func(_ context.Context, n Notification) {
	ev := log.Info()
	if n.Level == LevelError {
		ev = log.Warn()
	}
	ev.Str("source", n.Source).Str("level", string(n.Level)).Msg(n.Message)
})

// Recorder keeps notifications in memory.
type Recorder struct {
	mu  sync.Mutex
	all []Notification
}

func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, n)
}

// All returns what was recorded so far.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.all...)
}

// Messages returns the recorded messages in order.
func (r *Recorder) Messages() []string {
	var out []string
	for _, n := range r.All() {
		out = append(out, n.Message)
	}
	return out
}
