// Package polltest provides a hand-driven poll.Scheduler.
package polltest

import (
	"sync"
	"time"

	"github.com/kurihiro0119/bili-comment/internal/poll"
)

// Manual queues scheduled calls until the test fires them.
type Manual struct {
	mu      sync.Mutex
	pending []*timer
}

type timer struct {
	m     *Manual
	delay time.Duration
	f     func()
	done  bool
}

func (t *timer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.m.removeLocked(t)
	return true
}

var _ poll.Scheduler = (*Manual)(nil)

// New creates an empty manual scheduler.
func New() *Manual {
	return &Manual{}
}

func (m *Manual) AfterFunc(d time.Duration, f func()) poll.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &timer{m: m, delay: d, f: f}
	m.pending = append(m.pending, t)
	return t
}

// Pending returns the number of calls waiting to fire.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Delays returns the delays of the waiting calls in scheduling order.
func (m *Manual) Delays() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.pending))
	for i, t := range m.pending {
		out[i] = t.delay
	}
	return out
}

// Fire runs the oldest waiting call on the calling goroutine.
// It returns false when nothing is waiting.
func (m *Manual) Fire() bool {
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return false
	}
	t := m.pending[0]
	m.pending = m.pending[1:]
	t.done = true
	m.mu.Unlock()

	t.f()
	return true
}

// FireAll fires waiting calls, including ones scheduled while firing,
// until none remain or limit calls have run. It returns the number fired.
func (m *Manual) FireAll(limit int) int {
	n := 0
	for n < limit && m.Fire() {
		n++
	}
	return n
}

func (m *Manual) removeLocked(t *timer) {
	for i, p := range m.pending {
		if p == t {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return
		}
	}
}
