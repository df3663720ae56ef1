package sequence

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunFollowsTicketOrder(t *testing.T) {
	var s Sequencer
	first, second, third := s.Ticket(), s.Ticket(), s.Ticket()

	var mu sync.Mutex
	var got []uint64
	record := func(n uint64) func() {
		return func() {
			mu.Lock()
			got = append(got, n)
			mu.Unlock()
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); s.Run(third, record(third)) }()
	go func() { defer wg.Done(); s.Run(second, record(second)) }()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Empty(t, got, "later tickets ran before the first")
	mu.Unlock()

	s.Run(first, record(first))
	wg.Wait()
	assert.Equal(t, []uint64{first, second, third}, got)
}

func TestPanicAdvancesTurn(t *testing.T) {
	var s Sequencer
	a, b := s.Ticket(), s.Ticket()

	require.Panics(t, func() { s.Run(a, func() { panic("boom") }) })

	done := make(chan struct{})
	go func() { s.Run(b, nil); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second ticket never ran")
	}
}
