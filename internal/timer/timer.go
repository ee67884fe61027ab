// Package timer implements a keyed scheduler for delayed and repeating
// callbacks running on a cooperative, virtual clock.
//
// A Manager never starts goroutines. Its owner moves time forward with
// Advance, and due callbacks run serially on the caller's goroutine. At most
// one timer is live per key: scheduling under a key that is already in use
// replaces the earlier timer.
//
// Managers built with the same Clock share one "now": whichever of them
// advances moves time for all of them, and timers that fell due meanwhile
// run on the next Advance of their own manager.
//
// A Manager is not safe for concurrent use; callers serialise access.
package timer

import (
	"log/slog"
	"strings"
	"time"
)

// MinInterval is the smallest period a repeating timer may have.
const MinInterval = time.Millisecond

type entry struct {
	key      string
	deadline time.Duration
	interval time.Duration
	fn       func()
	seq      uint64
}

// Clock is a virtual time source shared by one or more Managers.
type Clock struct {
	now time.Duration
}

func NewClock() *Clock {
	return &Clock{}
}

func (c *Clock) Now() time.Duration {
	return c.now
}

type Manager struct {
	clock    *Clock
	seq      uint64
	timers   map[string]*entry
	maxDelay time.Duration
	logger   *slog.Logger
}

type Option func(*Manager)

// WithMaxDelay caps every delay and interval. Constrained deployments use it
// to keep feedback snappy; ordering between timers is unaffected.
func WithMaxDelay(d time.Duration) Option {
	return func(m *Manager) { m.maxDelay = d }
}

// WithClock makes the manager keep time on c instead of a private clock.
func WithClock(c *Clock) Option {
	return func(m *Manager) { m.clock = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func New(opts ...Option) *Manager {
	m := &Manager{
		timers: make(map[string]*entry),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.clock == nil {
		m.clock = NewClock()
	}
	return m
}

// Schedule registers fn to run once after delay. Negative delays count as zero.
func (m *Manager) Schedule(key string, delay time.Duration, fn func()) {
	m.add(key, m.clamp(delay), 0, fn)
}

// ScheduleRepeating registers fn to run every interval until cancelled.
func (m *Manager) ScheduleRepeating(key string, interval time.Duration, fn func()) {
	interval = m.clamp(interval)
	if interval < MinInterval {
		interval = MinInterval
	}
	m.add(key, interval, interval, fn)
}

func (m *Manager) add(key string, delay, interval time.Duration, fn func()) {
	if fn == nil {
		m.logger.Debug("ignoring timer without callback", "key", key)
		return
	}
	if _, ok := m.timers[key]; ok {
		m.logger.Debug("replacing live timer", "key", key)
	}
	m.seq++
	m.timers[key] = &entry{
		key:      key,
		deadline: m.clock.now + delay,
		interval: interval,
		fn:       fn,
		seq:      m.seq,
	}
}

func (m *Manager) clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if m.maxDelay > 0 && d > m.maxDelay {
		return m.maxDelay
	}
	return d
}

// Cancel removes the timer under key. It is a no-op when none is live.
func (m *Manager) Cancel(key string) {
	delete(m.timers, key)
}

// CancelPrefix removes every timer whose key starts with prefix and reports
// how many were removed.
func (m *Manager) CancelPrefix(prefix string) int {
	n := 0
	for key := range m.timers {
		if strings.HasPrefix(key, prefix) {
			delete(m.timers, key)
			n++
		}
	}
	return n
}

func (m *Manager) CancelAll() {
	clear(m.timers)
}

func (m *Manager) Active(key string) bool {
	_, ok := m.timers[key]
	return ok
}

func (m *Manager) Len() int {
	return len(m.timers)
}

func (m *Manager) CountPrefix(prefix string) int {
	n := 0
	for key := range m.timers {
		if strings.HasPrefix(key, prefix) {
			n++
		}
	}
	return n
}

// Now returns the virtual time elapsed on the manager's clock.
func (m *Manager) Now() time.Duration {
	return m.clock.now
}

// Next returns the earliest pending deadline. ok is false when nothing is
// scheduled.
func (m *Manager) Next() (deadline time.Duration, ok bool) {
	for _, e := range m.timers {
		if !ok || e.deadline < deadline {
			deadline, ok = e.deadline, true
		}
	}
	return deadline, ok
}

// Advance moves the clock forward by d and runs every callback that falls due,
// earliest deadline first, ties in scheduling order. Callbacks may schedule or
// cancel timers; anything they schedule inside the window also runs.
func (m *Manager) Advance(d time.Duration) {
	if d < 0 {
		d = 0
	}
	target := m.clock.now + d

	for {
		e := m.next(target)
		if e == nil {
			break
		}
		// A timer left overdue by another manager on the same clock runs
		// late; time never goes backwards.
		if e.deadline > m.clock.now {
			m.clock.now = e.deadline
		}
		if e.interval > 0 {
			m.seq++
			e.deadline += e.interval
			e.seq = m.seq
		} else {
			delete(m.timers, e.key)
		}
		e.fn()
	}

	m.clock.now = target
}

func (m *Manager) next(target time.Duration) *entry {
	var best *entry
	for _, e := range m.timers {
		if e.deadline > target {
			continue
		}
		if best == nil || e.deadline < best.deadline || (e.deadline == best.deadline && e.seq < best.seq) {
			best = e
		}
	}
	return best
}
