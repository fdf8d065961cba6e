// Package tokenmanager implements the token pool manager of spec.md §4.2:
// a dense id-indexed store with alias and key indices, a round-robin
// selection queue, and the TokenWriter scope-guard for identity-changing
// mutations (refreshes).
package tokenmanager

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mixaill76/cursor-gateway/internal/cursortoken"
)

var (
	ErrAliasExists   = errors.New("tokenmanager: alias already exists")
	ErrNotFound      = errors.New("tokenmanager: id not found")
	ErrAliasNotFound = errors.New("tokenmanager: alias not found")
)

// Alias is the human-assigned name for a pool slot.
type Alias string

// HealthChecker reports whether key is currently cooling down from a
// tripped failure threshold. Select consults it, when wired via
// SetHealthTracker, in addition to info.Enabled; tokenhealth.Tracker
// satisfies this interface.
type HealthChecker interface {
	Unhealthy(key cursortoken.TokenKey) bool
}

// Manager is the TokenManager of spec.md §3/§4.2. The zero value is not
// usable; construct with New.
type Manager struct {
	mu sync.RWMutex

	tokens  []*cursortoken.TokenInfo // dense storage, nil = empty slot
	aliases []Alias                  // id_to_alias, mirrors tokens in length

	freeIDs []int // FIFO: oldest freed index reused first

	aliasMap map[Alias]int
	idMap    map[cursortoken.TokenKey]int

	queues map[QueueType]*rrQueue

	nextUnnamed int

	health HealthChecker
}

// SetHealthTracker wires the failure tracker Select consults. A Manager
// with none wired treats every enabled token as healthy.
func (m *Manager) SetHealthTracker(h HealthChecker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.health = h
}

// New constructs an empty Manager.
func New() *Manager {
	m := &Manager{
		aliasMap: make(map[Alias]int),
		idMap:    make(map[cursortoken.TokenKey]int),
		queues:   make(map[QueueType]*rrQueue, 4),
	}
	for _, qt := range []QueueType{PrivilegedFree, PrivilegedPaid, NormalFree, NormalPaid} {
		m.queues[qt] = &rrQueue{}
	}
	return m
}

// Add places info into a freed slot (oldest freed id first, not the
// lowest-numbered one) or, with none free, a fresh append, auto-renaming
// a blank or already-taken alias to "unnamed_<n>". Returns the assigned id.
func (m *Manager) Add(info *cursortoken.TokenInfo, alias Alias) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if alias == "" {
		alias = m.generateUnnamedAlias()
	} else if _, taken := m.aliasMap[alias]; taken {
		alias = m.generateUnnamedAlias()
	}

	var id int
	if n := len(m.freeIDs); n > 0 {
		id = m.freeIDs[0]
		m.freeIDs = m.freeIDs[1:]
		m.tokens[id] = info
		m.aliases[id] = alias
	} else {
		id = len(m.tokens)
		m.tokens = append(m.tokens, info)
		m.aliases = append(m.aliases, alias)
	}

	m.aliasMap[alias] = id
	m.idMap[info.Ext.Primary.Key()] = id

	qt := categoryOf(info.Privileged, info.Paid)
	for t, q := range m.queues {
		if t == qt {
			q.push(id)
		}
	}
	// Every id is pushed to every queue so a later membership change (an
	// admin flipping Privileged/Paid) is honored without a move step; the
	// non-matching queues simply filter it out at Select time.
	for t, q := range m.queues {
		if t != qt {
			q.push(id)
		}
	}

	return id, nil
}

func (m *Manager) generateUnnamedAlias() Alias {
	for {
		a := Alias(fmt.Sprintf("unnamed_%d", m.nextUnnamed))
		m.nextUnnamed++
		if _, taken := m.aliasMap[a]; !taken {
			return a
		}
	}
}

// Remove clears id's slot, frees the id for reuse, and drops it from both
// indices. Its presence in the round-robin queues is cleaned up lazily:
// Select drops nil slots it encounters instead of requeuing them.
func (m *Manager) Remove(id int) (*cursortoken.TokenInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id < 0 || id >= len(m.tokens) || m.tokens[id] == nil {
		return nil, false
	}
	info := m.tokens[id]
	delete(m.aliasMap, m.aliases[id])
	delete(m.idMap, info.Ext.Primary.Key())
	m.tokens[id] = nil
	m.aliases[id] = ""
	m.freeIDs = append(m.freeIDs, id)
	return info, true
}

// SetAlias renames id's alias. Per spec.md §9 Open Questions, renaming to
// the token's own current alias is treated as an error, not a no-op.
func (m *Manager) SetAlias(id int, newAlias Alias) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id < 0 || id >= len(m.tokens) || m.tokens[id] == nil {
		return ErrNotFound
	}
	if _, taken := m.aliasMap[newAlias]; taken {
		return ErrAliasExists
	}
	delete(m.aliasMap, m.aliases[id])
	m.aliases[id] = newAlias
	m.aliasMap[newAlias] = id
	return nil
}

// GetByAlias returns the info at the given alias.
func (m *Manager) GetByAlias(alias Alias) (*cursortoken.TokenInfo, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.aliasMap[alias]
	if !ok {
		return nil, 0, ErrAliasNotFound
	}
	return m.tokens[id], id, nil
}

// GetByID returns the info at id.
func (m *Manager) GetByID(id int) (*cursortoken.TokenInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id < 0 || id >= len(m.tokens) || m.tokens[id] == nil {
		return nil, false
	}
	return m.tokens[id], true
}

// GetByKey looks a slot up by its current TokenKey.
func (m *Manager) GetByKey(key cursortoken.TokenKey) (*cursortoken.TokenInfo, int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.idMap[key]
	if !ok {
		return nil, 0, false
	}
	return m.tokens[id], id, true
}

// Entry is one row of List()'s snapshot.
type Entry struct {
	ID    int
	Alias Alias
	Info  *cursortoken.TokenInfo
}

// List returns a dense, insertion-ordered snapshot of all live slots.
func (m *Manager) List() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.tokens))
	for id, info := range m.tokens {
		if info == nil {
			continue
		}
		out = append(out, Entry{ID: id, Alias: m.aliases[id], Info: info})
	}
	return out
}

// Select pops the head of qt's queue whose token currently passes the
// predicate (enabled, healthy, and still a member of qt), pushes it back
// to the tail, and returns a clone of its ExtToken. Ties among
// simultaneously-eligible heads resolve to FIFO (wall-clock insertion)
// order because that is the queue's natural order.
func (m *Manager) Select(qt QueueType) (*cursortoken.ExtToken, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queues[qt]
	attempts := q.len()
	for i := 0; i < attempts; i++ {
		id, ok := q.popFront()
		if !ok {
			return nil, false
		}
		info := m.tokens[id]
		if info == nil {
			// Freed since insertion; drop instead of requeuing.
			continue
		}
		if categoryOf(info.Privileged, info.Paid) == qt && info.Enabled && !m.unhealthyLocked(info.Ext.Primary.Key()) {
			q.push(id)
			ext := info.Ext.Clone()
			return &ext, true
		}
		q.push(id)
	}
	return nil, false
}

// unhealthyLocked asks the wired health tracker, if any, about key. Must
// be called with m.mu held.
func (m *Manager) unhealthyLocked(key cursortoken.TokenKey) bool {
	if m.health == nil {
		return false
	}
	return m.health.Unhealthy(key)
}

// TokenWriter is returned by Writer and must have Commit called exactly
// once, typically via defer, to reconcile id_map/queue state if the
// mutation changed the token's identity (a refresh).
type TokenWriter struct {
	m       *Manager
	id      int
	info    *cursortoken.TokenInfo
	origKey cursortoken.TokenKey
}

// Writer locks the manager for mutation and returns a guard over id's
// slot. The caller must invoke Commit (defer it immediately) before any
// other Manager method is called on this goroutine, since the manager is
// held locked until then.
func (m *Manager) Writer(id int) (*TokenWriter, bool) {
	m.mu.Lock()
	if id < 0 || id >= len(m.tokens) || m.tokens[id] == nil {
		m.mu.Unlock()
		return nil, false
	}
	info := m.tokens[id]
	return &TokenWriter{m: m, id: id, info: info, origKey: info.Ext.Primary.Key()}, true
}

// Info exposes the mutable TokenInfo for the duration of the write scope.
func (w *TokenWriter) Info() *cursortoken.TokenInfo { return w.info }

// Commit reconciles idMap if the token's key changed during mutation and
// releases the manager lock. Must be called exactly once per Writer.
func (w *TokenWriter) Commit() {
	defer w.m.mu.Unlock()
	newKey := w.info.Ext.Primary.Key()
	if newKey != w.origKey {
		delete(w.m.idMap, w.origKey)
		w.m.idMap[newKey] = w.id
	}
}

// UpdateClientKey regenerates every bundle's client-key and session-id,
// e.g. for scheduled secret rotation.
func (m *Manager) UpdateClientKey() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, info := range m.tokens {
		if info != nil {
			info.Ext.RegenerateClientKey()
		}
	}
}

// Len reports the dense storage length (including freed holes).
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tokens)
}
