// Package throttle tracks failed login attempts per identity and locks an
// identity out for a fixed window once it reaches the attempt limit.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	defaultMaxAttempts = 5
	defaultLockout     = 30 * time.Minute
	defaultKeyPrefix   = "login-attempts:"
	defaultSlotTTL     = 30 * time.Second
)

var (
	// ErrLocked matches any *LockedError.
	ErrLocked = errors.New("identity locked")
	// ErrBusy is returned by Admit when the failures already counted plus the
	// attempts still being verified use up the whole attempt budget.
	ErrBusy = errors.New("too many login attempts in progress")
)

// LockedError is returned by Admit while an identity is locked out.
type LockedError struct {
	Until     time.Time
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("identity locked for another %ds", e.RemainingSeconds())
}

func (e *LockedError) Is(target error) bool {
	return target == ErrLocked
}

// RemainingSeconds rounds the remaining wait up so a caller never retries early.
func (e *LockedError) RemainingSeconds() int64 {
	if e.Remaining <= 0 {
		return 0
	}
	return int64((e.Remaining + time.Second - 1) / time.Second)
}

// State is a snapshot of one identity's login attempts. The zero value is the
// clear state. Pending counts admitted attempts whose outcome is not recorded
// yet.
type State struct {
	Failures       int
	Pending        int
	FirstFailureAt time.Time
	LastFailureAt  time.Time
	LockUntil      time.Time
}

// LockedAt reports whether the state holds an unexpired lock at now.
func (s State) LockedAt(now time.Time) bool {
	return !s.LockUntil.IsZero() && now.Before(s.LockUntil)
}

// Throttle is the contract shared by the in-memory and Redis backends. All
// operations for one identity are serialized by the backend.
type Throttle interface {
	// Admit reserves an attempt slot and returns nil when the identity may
	// attempt a login. It returns a *LockedError while the identity is locked
	// and ErrBusy when failures plus pending slots reach MaxAttempts. An
	// expired lock is cleared.
	Admit(ctx context.Context, identity string) error
	// RecordFailure releases one slot, counts a failed attempt and engages the
	// lock on reaching the limit. Failures during an active lock leave it
	// untouched.
	RecordFailure(ctx context.Context, identity string) (State, error)
	// RecordSuccess clears all state for the identity, slots included.
	RecordSuccess(ctx context.Context, identity string) error
	// Release gives back a slot whose attempt ended without a verdict.
	Release(ctx context.Context, identity string) error
	State(ctx context.Context, identity string) (State, error)
}

// Policy configures a throttle backend.
type Policy struct {
	MaxAttempts int
	Lockout     time.Duration
	// KeyPrefix separates independent login flows sharing one store.
	KeyPrefix string
	// Timeout bounds each store round trip. Zero means no extra bound.
	Timeout time.Duration
	// SlotTTL frees slots of attempts that never reported back.
	SlotTTL time.Duration
	Now     func() time.Time
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.Lockout <= 0 {
		p.Lockout = defaultLockout
	}
	if p.KeyPrefix == "" {
		p.KeyPrefix = defaultKeyPrefix
	}
	if p.SlotTTL <= 0 {
		p.SlotTTL = defaultSlotTTL
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return p
}

// Normalize maps an identity to its canonical key form.
func Normalize(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

func lockedError(until, now time.Time) *LockedError {
	return &LockedError{Until: until, Remaining: until.Sub(now)}
}
