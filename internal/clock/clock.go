// Package clock abstracts time so the sampling loop and report timers can be
// driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	NewTimer(d time.Duration) Timer
	NewTicker(d time.Duration) Ticker
}

type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real implements Clock with the time package.
type Real struct{}

func (Real) Now() time.Time                  { return time.Now() }
func (Real) Since(t time.Time) time.Duration { return time.Since(t) }

func (Real) NewTimer(d time.Duration) Timer {
	return realTimer{time.NewTimer(d)}
}

func (Real) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTimer struct{ t *time.Timer }

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Mock is a manually advanced clock. Timers and tickers fire only from Advance.
type Mock struct {
	mu      sync.Mutex
	cond    *sync.Cond
	now     time.Time
	timers  []*mockTimer
	tickers []*mockTicker
}

func NewMock(start time.Time) *Mock {
	m := &Mock{now: start}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Mock) Since(t time.Time) time.Duration {
	return m.Now().Sub(t)
}

// Advance moves the clock forward and fires every timer and ticker that came due.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	now := m.now
	timers := append([]*mockTimer(nil), m.timers...)
	tickers := append([]*mockTicker(nil), m.tickers...)
	m.mu.Unlock()

	for _, t := range timers {
		t.fire(now)
	}
	for _, t := range tickers {
		t.fire(now)
	}
}

// BlockUntil waits until at least n timers have been created and not yet
// fired or stopped.
func (m *Mock) BlockUntil(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.pendingLocked() < n {
		m.cond.Wait()
	}
}

func (m *Mock) pendingLocked() int {
	n := 0
	for _, t := range m.timers {
		if t.active() {
			n++
		}
	}
	return n
}

func (m *Mock) NewTimer(d time.Duration) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &mockTimer{ch: make(chan time.Time, 1), deadline: m.now.Add(d)}
	m.timers = append(m.timers, t)
	m.cond.Broadcast()
	return t
}

func (m *Mock) NewTicker(d time.Duration) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &mockTicker{ch: make(chan time.Time, 1), interval: d, next: m.now.Add(d)}
	m.tickers = append(m.tickers, t)
	return t
}

type mockTimer struct {
	mu       sync.Mutex
	ch       chan time.Time
	deadline time.Time
	done     bool
}

func (t *mockTimer) C() <-chan time.Time { return t.ch }

func (t *mockTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.done
	t.done = true
	return wasActive
}

func (t *mockTimer) active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.done
}

func (t *mockTimer) fire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done || now.Before(t.deadline) {
		return
	}
	t.done = true
	t.ch <- now
}

type mockTicker struct {
	mu       sync.Mutex
	ch       chan time.Time
	interval time.Duration
	next     time.Time
	stopped  bool
}

func (t *mockTicker) C() <-chan time.Time { return t.ch }

func (t *mockTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

// fire delivers at most one tick per Advance; a slow reader drops ticks.
func (t *mockTicker) fire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || now.Before(t.next) {
		return
	}
	for !t.next.After(now) {
		t.next = t.next.Add(t.interval)
	}
	select {
	case t.ch <- now:
	default:
	}
}
