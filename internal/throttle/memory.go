package throttle

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	State
	pendingUntil time.Time
}

type memoryThrottle struct {
	mu        sync.Mutex
	policy    Policy
	states    map[string]entry
	lastSweep time.Time
}

// NewInMemory returns a process-local throttle. It is only correct for a single
// instance; multi-instance deployments use NewRedis.
func NewInMemory(policy Policy) Throttle {
	return &memoryThrottle{
		policy: policy.withDefaults(),
		states: make(map[string]entry),
	}
}

func (m *memoryThrottle) Admit(_ context.Context, identity string) error {
	key := Normalize(identity)
	now := m.policy.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep(now)

	e := m.current(key, now)
	if e.LockedAt(now) {
		return lockedError(e.LockUntil, now)
	}
	if !e.LockUntil.IsZero() {
		e = entry{}
	}
	if e.Failures+e.Pending >= m.policy.MaxAttempts {
		m.states[key] = e
		return ErrBusy
	}
	e.Pending++
	e.pendingUntil = now.Add(m.policy.SlotTTL)
	m.states[key] = e
	return nil
}

func (m *memoryThrottle) RecordFailure(_ context.Context, identity string) (State, error) {
	key := Normalize(identity)
	now := m.policy.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep(now)

	e := m.current(key, now)
	e.release()
	if e.LockedAt(now) {
		m.states[key] = e
		return e.State, nil
	}
	if !e.LockUntil.IsZero() {
		e = entry{State: State{Pending: e.Pending}, pendingUntil: e.pendingUntil}
	}

	e.Failures++
	if e.Failures == 1 {
		e.FirstFailureAt = now
	}
	e.LastFailureAt = now
	if e.Failures >= m.policy.MaxAttempts {
		e.LockUntil = now.Add(m.policy.Lockout)
	}
	m.states[key] = e
	return e.State, nil
}

func (m *memoryThrottle) RecordSuccess(_ context.Context, identity string) error {
	m.mu.Lock()
	delete(m.states, Normalize(identity))
	m.mu.Unlock()
	return nil
}

func (m *memoryThrottle) Release(_ context.Context, identity string) error {
	key := Normalize(identity)
	now := m.policy.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.current(key, now)
	e.release()
	if e.State == (State{}) {
		delete(m.states, key)
		return nil
	}
	m.states[key] = e
	return nil
}

func (m *memoryThrottle) State(_ context.Context, identity string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[Normalize(identity)].State, nil
}

// current loads an entry with expired slots and a stale failure run dropped.
// Callers hold m.mu.
func (m *memoryThrottle) current(key string, now time.Time) entry {
	e := m.states[key]
	if e.Pending > 0 && !now.Before(e.pendingUntil) {
		e.Pending = 0
		e.pendingUntil = time.Time{}
	}
	if e.LockUntil.IsZero() && e.Failures > 0 && !now.Before(e.LastFailureAt.Add(m.policy.Lockout)) {
		e.State = State{Pending: e.Pending}
	}
	return e
}

// sweep drops entries that no longer hold a lock, a live failure run or a
// slot. It runs at most once per slot TTL so a flood of distinct identities
// cannot grow the map without bound. Callers hold m.mu.
func (m *memoryThrottle) sweep(now time.Time) {
	if now.Sub(m.lastSweep) < m.policy.SlotTTL {
		return
	}
	m.lastSweep = now
	for key := range m.states {
		e := m.current(key, now)
		if e.Pending == 0 && !e.LockedAt(now) && (e.Failures == 0 || !e.LockUntil.IsZero()) {
			delete(m.states, key)
		}
	}
}

func (e *entry) release() {
	if e.Pending > 0 {
		e.Pending--
	}
	if e.Pending == 0 {
		e.pendingUntil = time.Time{}
	}
}
