package tokenhealth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mixaill76/cursor-gateway/internal/cursortoken"
)

func testKey(n uint64) cursortoken.TokenKey {
	return cursortoken.TokenKey{Randomness: n}
}

func TestRecordFailureTripsCooldownAtThreshold(t *testing.T) {
	tr := New(3, time.Minute)
	key := testKey(1)

	assert.False(t, tr.RecordFailure(key))
	assert.False(t, tr.RecordFailure(key))
	assert.True(t, tr.RecordFailure(key))

	assert.True(t, tr.Unhealthy(key))
	assert.Equal(t, 3, tr.FailureCount(key))
}

func TestRecordSuccessClearsStreak(t *testing.T) {
	tr := New(3, time.Minute)
	key := testKey(2)

	tr.RecordFailure(key)
	tr.RecordFailure(key)
	tr.RecordSuccess(key)

	assert.Equal(t, 0, tr.FailureCount(key))
	assert.False(t, tr.Unhealthy(key))
}

func TestFailuresWhileBannedDoNotRetrip(t *testing.T) {
	tr := New(1, time.Minute)
	key := testKey(3)

	assert.True(t, tr.RecordFailure(key))
	// Already banned; further failures are no-ops until the ban clears.
	assert.False(t, tr.RecordFailure(key))
	assert.True(t, tr.Unhealthy(key))
}

func TestCooldownExpiresAfterBanDuration(t *testing.T) {
	tr := New(1, time.Millisecond)
	key := testKey(4)

	assert.True(t, tr.RecordFailure(key))
	time.Sleep(5 * time.Millisecond)

	assert.False(t, tr.Unhealthy(key))
	assert.Equal(t, 0, tr.FailureCount(key))
}

func TestResetClearsBanAndStreak(t *testing.T) {
	tr := New(1, time.Minute)
	key := testKey(5)

	tr.RecordFailure(key)
	tr.Reset(key)

	assert.False(t, tr.Unhealthy(key))
	assert.Equal(t, 0, tr.FailureCount(key))
}

func TestZeroBanDurationIsPermanentUntilReset(t *testing.T) {
	tr := New(1, 0)
	key := testKey(6)

	tr.RecordFailure(key)
	assert.True(t, tr.Unhealthy(key))

	tr.Reset(key)
	assert.False(t, tr.Unhealthy(key))
}
