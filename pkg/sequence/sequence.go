// Package sequence runs callbacks in the order their tickets were taken.
package sequence

import "sync"

// Sequencer hands out tickets and runs each ticket's callback only after
// every earlier ticket's callback has returned. The zero value is ready to
// use.
//
// Take the ticket inside the critical section that makes the change, and
// run it after leaving that section. A callback must not take a ticket
// from the same Sequencer and wait for it to run.
type Sequencer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	issued uint64
	done   uint64
}

// Ticket reserves the next position.
func (s *Sequencer) Ticket() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.issued
	s.issued++
	return t
}

// Run waits for the turn of ticket t and calls fn. fn may be nil.
func (s *Sequencer) Run(t uint64, fn func()) {
	s.mu.Lock()
	if s.cond == nil {
		s.cond = sync.NewCond(&s.mu)
	}
	for s.done != t {
		s.cond.Wait()
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.done++
		s.cond.Broadcast()
		s.mu.Unlock()
	}()
	if fn != nil {
		fn()
	}
}
