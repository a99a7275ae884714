package domain

import "time"

// LockoutPolicy locks password login for Duration once Threshold
// consecutive failures have been recorded.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{Threshold: 5, Duration: 30 * time.Minute}
}

// LoginFailure is the counter state after a failed attempt was recorded.
type LoginFailure struct {
	Attempts    int
	LockedUntil *time.Time
}

// Next computes the counter state after one more failure at now. A lock
// that has already elapsed does not carry its count into the next window.
func (p LockoutPolicy) Next(attempts int, lockedUntil *time.Time, now time.Time) LoginFailure {
	if lockedUntil != nil && !lockedUntil.After(now) {
		attempts = 0
		lockedUntil = nil
	}

	attempts++
	if attempts >= p.Threshold {
		until := now.Add(p.Duration)
		lockedUntil = &until
	}

	return LoginFailure{Attempts: attempts, LockedUntil: lockedUntil}
}
