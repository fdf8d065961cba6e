package requestlog

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixaill76/cursor-gateway/internal/cursortoken"
)

type recordingSink struct {
	mu      sync.Mutex
	entries []Entry
}

func (s *recordingSink) Write(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

func (s *recordingSink) all() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func TestAddThenGetRoundTrips(t *testing.T) {
	l := New()
	startedAt := time.Now()
	id := l.Add(cursortoken.ExtToken{}, "trace-1", startedAt)

	e, ok := l.Get(id)
	require.True(t, ok)
	assert.Equal(t, "trace-1", e.TraceID)
	assert.Equal(t, 1, l.Len())
}

func TestGetUnknownIDReturnsFalse(t *testing.T) {
	l := New()
	_, ok := l.Get(NextID())
	assert.False(t, ok)
}

func TestUpdateUnknownIDReturnsFalse(t *testing.T) {
	l := New()
	ok := l.Update(NextID(), Patch{Kind: PatchSuccess})
	assert.False(t, ok)
}

func TestUpdateAppliesEachPatchKind(t *testing.T) {
	l := New()
	id := l.Add(cursortoken.ExtToken{}, "trace-2", time.Now())

	require.True(t, l.Update(id, Patch{Kind: PatchTiming, Seconds: 1.5}))
	require.True(t, l.Update(id, Patch{Kind: PatchDelays, Content: []float32{0.1, 0.2}, Thinking: 0.3}))
	require.True(t, l.Update(id, Patch{Kind: PatchUsage, Usage: ChainUsage{InputTokens: 10, OutputTokens: 20}}))
	require.True(t, l.Update(id, Patch{Kind: PatchTokenProfile, UserEmail: "a@b.com", UsageRequests: 5, StripePaid: true}))
	require.True(t, l.Update(id, Patch{Kind: PatchSuccess}))

	e, ok := l.Get(id)
	require.True(t, ok)
	assert.Equal(t, 1.5, e.TotalSeconds)
	assert.Equal(t, []float32{0.1, 0.2}, e.ContentDelays)
	assert.Equal(t, float32(0.3), e.ThinkingDelay)
	assert.Equal(t, uint32(10), e.Usage.InputTokens)
	assert.Equal(t, "a@b.com", e.UserEmail)
	assert.True(t, e.StripePaid)
	assert.True(t, e.Success)

	id2 := l.Add(cursortoken.ExtToken{}, "trace-2b", time.Now())
	require.True(t, l.Update(id2, Patch{Kind: PatchTimingChain, Seconds: 2.5, Usage: ChainUsage{InputTokens: 7}}))
	require.True(t, l.Update(id2, Patch{Kind: PatchFailure2, Error: "late", Seconds: 3}))

	e2, ok := l.Get(id2)
	require.True(t, ok)
	assert.Equal(t, uint32(7), e2.Usage.InputTokens)
	assert.Equal(t, 3.0, e2.TotalSeconds)
	assert.True(t, e2.Failed)
	assert.Equal(t, "late", e2.ErrorMessage)
}

func TestUpdateFailurePatchSetsErrorMessage(t *testing.T) {
	l := New()
	id := l.Add(cursortoken.ExtToken{}, "trace-3", time.Now())

	require.True(t, l.Update(id, Patch{Kind: PatchFailure, Error: "boom"}))

	e, ok := l.Get(id)
	require.True(t, ok)
	assert.True(t, e.Failed)
	assert.Equal(t, "boom", e.ErrorMessage)
}

func TestUpdateNotifiesEverySink(t *testing.T) {
	sinkA := &recordingSink{}
	sinkB := &recordingSink{}
	l := New(sinkA, sinkB)

	id := l.Add(cursortoken.ExtToken{}, "trace-4", time.Now())
	l.Update(id, Patch{Kind: PatchSuccess})

	assert.Len(t, sinkA.all(), 1)
	assert.Len(t, sinkB.all(), 1)
	assert.True(t, sinkA.all()[0].Success)
}

func TestLenCountsAllAddedEntries(t *testing.T) {
	l := New()
	for i := 0; i < 3; i++ {
		l.Add(cursortoken.ExtToken{}, "trace", time.Now())
	}
	assert.Equal(t, 3, l.Len())
}
