// Package poll provides the timer plumbing shared by the client controllers:
// a self-rescheduling loop and a debouncer, both driven by a Scheduler so
// tests can advance time by hand.
package poll

import (
	"sync"
	"time"
)

// Timer is a pending scheduled call.
type Timer interface {
	// Stop prevents the call from firing. It reports whether the call was still pending.
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealScheduler schedules on the runtime timers.
var RealScheduler Scheduler = realScheduler{}

// Loop runs an iteration function repeatedly, scheduling each iteration only
// after the previous one returned. A Loop holds at most one timer.
type Loop struct {
	sched    Scheduler
	interval time.Duration

	mu     sync.Mutex
	timer  Timer
	active bool
	gen    uint64
}

// NewLoop creates a loop that waits interval between iterations.
func NewLoop(sched Scheduler, interval time.Duration) *Loop {
	if sched == nil {
		sched = RealScheduler
	}
	return &Loop{sched: sched, interval: interval}
}

// Start stops any running session and starts a new one whose first
// iteration fires immediately. iter returns true to schedule another
// iteration after the interval.
func (l *Loop) Start(iter func() bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopLocked()
	l.gen++
	l.active = true
	l.scheduleLocked(l.gen, 0, iter)
}

// Stop cancels the pending iteration and marks the loop inactive.
// An iteration already running is allowed to finish but will not reschedule.
// Stop is safe to call any number of times.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
}

// Active reports whether a session is running.
func (l *Loop) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

func (l *Loop) stopLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.active = false
}

func (l *Loop) scheduleLocked(gen uint64, d time.Duration, iter func() bool) {
	l.timer = l.sched.AfterFunc(d, func() { l.run(gen, iter) })
}

func (l *Loop) run(gen uint64, iter func() bool) {
	l.mu.Lock()
	if !l.active || l.gen != gen {
		l.mu.Unlock()
		return
	}
	l.timer = nil
	l.mu.Unlock()

	again := iter()

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active || l.gen != gen {
		return
	}
	if !again {
		l.active = false
		return
	}
	l.scheduleLocked(gen, l.interval, iter)
}

// Debouncer delays a call until no new call arrived for the delay.
type Debouncer struct {
	sched Scheduler

	mu    sync.Mutex
	timer Timer
	gen   uint64
}

// NewDebouncer creates a debouncer on sched (RealScheduler when nil).
func NewDebouncer(sched Scheduler) *Debouncer {
	if sched == nil {
		sched = RealScheduler
	}
	return &Debouncer{sched: sched}
}

// Trigger replaces any pending call with f, to run after delay.
func (d *Debouncer) Trigger(delay time.Duration, f func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cancelLocked()
	gen := d.gen
	d.timer = d.sched.AfterFunc(delay, func() {
		d.mu.Lock()
		if d.gen != gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		f()
	})
}

// Cancel drops the pending call, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
}

func (d *Debouncer) cancelLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}
