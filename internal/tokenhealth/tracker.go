// Package tokenhealth tracks per-token failure streaks and cooldowns on a
// single TokenKey axis: a token's health is enforced by a caller asking
// this tracker, not by a bare flag.
package tokenhealth

import (
	"sync"
	"time"

	"github.com/mixaill76/cursor-gateway/internal/cursortoken"
)

type cooldown struct {
	since    time.Time
	duration time.Duration // 0 means permanent until explicit Reset
}

// Tracker records consecutive failures per TokenKey and trips a cooldown
// once a configured threshold is reached.
type Tracker struct {
	mu          sync.RWMutex
	maxAttempts int
	banDuration time.Duration

	failures map[cursortoken.TokenKey]int
	banned   map[cursortoken.TokenKey]*cooldown
}

func New(maxAttempts int, banDuration time.Duration) *Tracker {
	return &Tracker{
		maxAttempts: maxAttempts,
		banDuration: banDuration,
		failures:    make(map[cursortoken.TokenKey]int),
		banned:      make(map[cursortoken.TokenKey]*cooldown),
	}
}

// RecordSuccess clears the failure streak for key.
func (t *Tracker) RecordSuccess(key cursortoken.TokenKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.failures, key)
}

// RecordFailure increments the failure streak, tripping a cooldown once
// maxAttempts consecutive failures are seen. Returns true if this call
// tripped the cooldown.
func (t *Tracker) RecordFailure(key cursortoken.TokenKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.isBannedLocked(key) {
		return false
	}

	t.failures[key]++
	if t.failures[key] >= t.maxAttempts {
		t.banned[key] = &cooldown{since: time.Now(), duration: t.banDuration}
		return true
	}
	return false
}

func (t *Tracker) isBannedLocked(key cursortoken.TokenKey) bool {
	c, ok := t.banned[key]
	if !ok {
		return false
	}
	if c.duration > 0 && time.Since(c.since) > c.duration {
		delete(t.banned, key)
		delete(t.failures, key)
		return false
	}
	return true
}

// Unhealthy reports whether key is currently cooling down.
func (t *Tracker) Unhealthy(key cursortoken.TokenKey) bool {
	t.mu.RLock()
	c, ok := t.banned[key]
	if !ok {
		t.mu.RUnlock()
		return false
	}
	expired := c.duration > 0 && time.Since(c.since) > c.duration
	t.mu.RUnlock()

	if expired {
		t.mu.Lock()
		defer t.mu.Unlock()
		if c2, ok := t.banned[key]; ok && c2 == c {
			delete(t.banned, key)
			delete(t.failures, key)
		}
		return false
	}
	return true
}

// Reset clears any cooldown and failure streak for key, e.g. on manual
// admin re-enable.
func (t *Tracker) Reset(key cursortoken.TokenKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.banned, key)
	delete(t.failures, key)
}

// FailureCount returns the current consecutive-failure streak for key.
func (t *Tracker) FailureCount(key cursortoken.TokenKey) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.failures[key]
}
