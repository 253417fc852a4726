package authclient

import (
	"sync"
	"time"
)

// DefaultWarningLead is how long before expiry the warning fires.
const DefaultWarningLead = 5 * time.Minute

// Monitor schedules session-expiry callbacks: a warning at expiry minus the
// lead, and an expiry callback at the deadline itself. When Start is called
// already inside the warning window, the warning fires immediately with the
// true remaining time. The warning fires at most once per Start; restarting
// after an extension rearms it.
type Monitor struct {
	lead      time.Duration
	clock     func() time.Time
	onWarning func(remaining time.Duration)
	onExpiry  func()

	mu         sync.Mutex
	generation int
	warnTimer  *time.Timer
	expiry     *time.Timer
	warned     bool
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithWarningLead overrides the warning lead time.
func WithWarningLead(lead time.Duration) MonitorOption {
	return func(m *Monitor) {
		if lead > 0 {
			m.lead = lead
		}
	}
}

// WithMonitorClock sets the clock function for testability.
func WithMonitorClock(clock func() time.Time) MonitorOption {
	return func(m *Monitor) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewMonitor constructs a Monitor. Nil callbacks are allowed and skipped.
func NewMonitor(onWarning func(remaining time.Duration), onExpiry func(), opts ...MonitorOption) *Monitor {
	m := &Monitor{
		lead:      DefaultWarningLead,
		clock:     time.Now,
		onWarning: onWarning,
		onExpiry:  onExpiry,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Start schedules callbacks for the given expiry. Any previously scheduled
// timers are canceled first; timers never accumulate across restarts.
func (m *Monitor) Start(expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelLocked()
	m.generation++
	m.warned = false
	gen := m.generation

	now := m.clock()
	remaining := expiresAt.Sub(now)

	if remaining <= 0 {
		go m.fireExpiry(gen)
		return
	}

	warnIn := remaining - m.lead
	if warnIn <= 0 {
		// Already inside the warning window; report the true remaining time.
		go m.fireWarning(gen, remaining)
	} else {
		m.warnTimer = time.AfterFunc(warnIn, func() {
			m.fireWarning(gen, m.lead)
		})
	}

	m.expiry = time.AfterFunc(remaining, func() {
		m.fireExpiry(gen)
	})
}

// Stop cancels all scheduled callbacks. Callbacks already in flight may still
// run; gate side effects on your own state if that matters.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelLocked()
	m.generation++
}

func (m *Monitor) cancelLocked() {
	if m.warnTimer != nil {
		m.warnTimer.Stop()
		m.warnTimer = nil
	}
	if m.expiry != nil {
		m.expiry.Stop()
		m.expiry = nil
	}
}

func (m *Monitor) fireWarning(gen int, remaining time.Duration) {
	m.mu.Lock()
	stale := gen != m.generation || m.warned
	if !stale {
		m.warned = true
	}
	m.mu.Unlock()

	if stale || m.onWarning == nil {
		return
	}
	m.onWarning(remaining)
}

func (m *Monitor) fireExpiry(gen int) {
	m.mu.Lock()
	stale := gen != m.generation
	m.mu.Unlock()

	if stale || m.onExpiry == nil {
		return
	}
	m.onExpiry()
}
