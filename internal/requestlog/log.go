// Package requestlog is the append-only per-request accounting log
// (spec.md §4.10): next_id() allocation, add(), and a small tagged set of
// update() patches applied under one mutex.
package requestlog

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mixaill76/cursor-gateway/internal/cursortoken"
)

// ID is the ULID-based monotonic identifier handed out by next_id().
type ID = ulid.ULID

// Entry is one request's accounting record. TokenSnapshot is a value copy
// of the token bundle at add() time so later profile refreshes never
// mutate historical records.
type Entry struct {
	ID            ID
	TraceID       string
	StartedAt     time.Time
	TokenSnapshot cursortoken.ExtToken

	Success       bool
	Failed        bool
	ErrorMessage  string
	TotalSeconds  float64
	ContentDelays []float32
	ThinkingDelay float32
	Usage         ChainUsage

	UserEmail     string
	UsageRequests int64
	StripePaid    bool
}

// ChainUsage is the token usage reported for a full tool-call chain.
type ChainUsage struct {
	InputTokens  uint32
	OutputTokens uint32
}

// Kind tags a Patch, the update() argument: only the Patch fields that
// belong to its Kind are meaningful, mirroring the original's small enum.
type Kind uint8

const (
	PatchSuccess Kind = iota
	PatchFailure
	PatchFailure2
	PatchTiming
	PatchDelays
	PatchUsage
	PatchTimingChain
	PatchTokenProfile
)

type Patch struct {
	Kind Kind

	Error        string
	Seconds      float64
	Content      []float32
	Thinking     float32
	Usage        ChainUsage
	UserEmail    string
	UsageRequests int64
	StripePaid   bool
}

// Log is the in-memory store: a dense slice indexed by the ULID's
// insertion order plus an id→index map, guarded by a single mutex
// (spec.md §5: "a single async mutex wraps the structure; updates are
// short"). sinks receive a copy of every finalized entry for durable
// storage; they run outside the lock.
type Log struct {
	mu      sync.Mutex
	entries []*Entry
	byID    map[ID]int

	sinks []Sink
}

// Sink durably persists finalized entries (e.g. into Postgres or an
// object-storage bucket). Write must not block the caller for long;
// implementations should queue internally if they need to batch.
type Sink interface {
	Write(Entry)
}

func New(sinks ...Sink) *Log {
	return &Log{byID: make(map[ID]int), sinks: sinks}
}

// NextID allocates a new monotonically increasing identifier.
func NextID() ID {
	return ulid.Make()
}

// Add inserts a new entry and returns its id.
func (l *Log) Add(tok cursortoken.ExtToken, traceID string, startedAt time.Time) ID {
	id := NextID()
	e := &Entry{ID: id, TraceID: traceID, StartedAt: startedAt, TokenSnapshot: tok.Clone()}

	l.mu.Lock()
	l.byID[id] = len(l.entries)
	l.entries = append(l.entries, e)
	l.mu.Unlock()

	return id
}

// Update applies one patch to the entry with the given id. Returns false
// if the id is unknown. Sinks are written only once the entry is finalized
// (Success or Failed set), and again on each later patch.
func (l *Log) Update(id ID, p Patch) bool {
	l.mu.Lock()
	idx, ok := l.byID[id]
	if !ok {
		l.mu.Unlock()
		return false
	}
	e := l.entries[idx]
	applyPatch(e, p)
	snapshot := *e
	l.mu.Unlock()

	if !snapshot.Success && !snapshot.Failed {
		return true
	}
	for _, sink := range l.sinks {
		sink.Write(snapshot)
	}
	return true
}

func applyPatch(e *Entry, p Patch) {
	switch p.Kind {
	case PatchSuccess:
		e.Success = true
	case PatchFailure:
		e.Failed = true
		e.ErrorMessage = p.Error
	case PatchFailure2:
		e.Failed = true
		e.ErrorMessage = p.Error
		e.TotalSeconds = p.Seconds
	case PatchTiming:
		e.TotalSeconds = p.Seconds
	case PatchDelays:
		e.ContentDelays = p.Content
		e.ThinkingDelay = p.Thinking
	case PatchUsage:
		e.Usage = p.Usage
	case PatchTimingChain:
		e.TotalSeconds = p.Seconds
		e.Usage = p.Usage
	case PatchTokenProfile:
		e.UserEmail = p.UserEmail
		e.UsageRequests = p.UsageRequests
		e.StripePaid = p.StripePaid
	}
}

// Get returns a value copy of the entry for id, if present.
func (l *Log) Get(id ID) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx, ok := l.byID[id]
	if !ok {
		return Entry{}, false
	}
	return *l.entries[idx], true
}

// Len reports the number of entries recorded so far.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
