package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFanoutDeliversInOrder(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	var seen []string
	f := Fanout{a, Func(func(_ context.Context, n Notification) { seen = append(seen, n.Message) }), b, Discard, Log}

	f.Notify(context.Background(), New(LevelSuccess, "session", "Login successful!"))
	f.Notify(context.Background(), New(LevelError, "rides", "Failed to fetch rides"))

	assert.Equal(t, []string{"Login successful!", "Failed to fetch rides"}, a.Messages())
	assert.Equal(t, a.Messages(), b.Messages())
	assert.Equal(t, a.Messages(), seen)
}

func TestNewStampsNotification(t *testing.T) {
	n := New(LevelInfo, "session", "Logged out successfully")
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.At.IsZero())
	assert.Equal(t, LevelInfo, n.Level)
	assert.NotEqual(t, n.ID, New(LevelInfo, "session", "x").ID)
}
