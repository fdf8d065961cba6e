// Package modelregistry is the static model catalog backing request
// validation and "GET /v1/models": alias resolution is kept, per-provider
// pricing is dropped as out of this gateway's scope.
package modelregistry

import (
	"errors"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrModelNotSupported is returned when a caller-supplied model id is not
// a registered ExtModel or alias (spec.md §4.7 step 2).
var ErrModelNotSupported = errors.New("modelregistry: model not supported")

// ExtModel is the constant set applied by the outbound adapter when
// building an upstream request (spec.md §4.5).
type ExtModel struct {
	ID             string
	MaxTokens      int
	VisionDisabled bool
	SlowPool       bool
	ToolsAllowed   bool
}

// Registry is a static model table plus alias resolution and a response
// cache for the /v1/models listing endpoint.
type Registry struct {
	mu      sync.RWMutex
	models  map[string]ExtModel
	aliases map[string]string

	listCache *lru.Cache[string, []ExtModel]
}

// New builds a Registry from the given models, with a small LRU cache
// fronting the (rarely-changing) /v1/models listing.
func New(models []ExtModel, aliases map[string]string) (*Registry, error) {
	cache, err := lru.New[string, []ExtModel](4)
	if err != nil {
		return nil, err
	}
	r := &Registry{
		models:    make(map[string]ExtModel, len(models)),
		aliases:   make(map[string]string, len(aliases)),
		listCache: cache,
	}
	for _, m := range models {
		r.models[m.ID] = m
	}
	for alias, target := range aliases {
		r.aliases[alias] = target
	}
	return r, nil
}

// ResolveAlias reports whether id is an alias and, if so, the model id it
// resolves to.
func (r *Registry) ResolveAlias(id string) (resolved string, isAlias bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	target, ok := r.aliases[id]
	return target, ok
}

// Lookup validates id (resolving aliases first) against the registry.
func (r *Registry) Lookup(id string) (ExtModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if target, ok := r.aliases[id]; ok {
		id = target
	}
	m, ok := r.models[id]
	if !ok {
		return ExtModel{}, ErrModelNotSupported
	}
	return m, nil
}

// List returns a stable-ordered snapshot of all registered models, caching
// the result under key until Invalidate is called (spec.md §6.1: "the
// first successful call upstream populates a cache which subsequent calls
// read from until an explicit refresh").
func (r *Registry) List(key string) []ExtModel {
	if cached, ok := r.listCache.Get(key); ok {
		return cached
	}
	r.mu.RLock()
	out := make([]ExtModel, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	r.listCache.Add(key, out)
	return out
}

// Invalidate clears the cached /v1/models listing.
func (r *Registry) Invalidate(key string) {
	r.listCache.Remove(key)
}

// Put registers or replaces a model definition. A listing already cached
// by List keeps its old contents until Invalidate is called.
func (r *Registry) Put(m ExtModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[m.ID] = m
}

// DefaultModels is the built-in catalog shipped when no operator-supplied
// override exists, covering the model families the upstream commonly
// exposes. Deployments that track upstream additions more tightly can
// replace entries with Put.
func DefaultModels() []ExtModel {
	return []ExtModel{
		{ID: "gpt-4o", MaxTokens: 128000, ToolsAllowed: true},
		{ID: "gpt-4o-mini", MaxTokens: 128000, ToolsAllowed: true},
		{ID: "gpt-4.1", MaxTokens: 1000000, ToolsAllowed: true},
		{ID: "o3-mini", MaxTokens: 200000, VisionDisabled: true, ToolsAllowed: true},
		{ID: "claude-3-5-sonnet", MaxTokens: 200000, ToolsAllowed: true},
		{ID: "claude-3-7-sonnet", MaxTokens: 200000, ToolsAllowed: true},
		{ID: "claude-3-7-sonnet-thinking", MaxTokens: 200000, SlowPool: true, ToolsAllowed: true},
		{ID: "claude-3-opus", MaxTokens: 200000, SlowPool: true, ToolsAllowed: true},
		{ID: "claude-3-5-haiku", MaxTokens: 200000, ToolsAllowed: true},
		{ID: "cursor-small", MaxTokens: 32000, VisionDisabled: true},
		{ID: "deepseek-v3", MaxTokens: 64000, VisionDisabled: true},
	}
}

// DefaultAliases maps a few common shorthand names to their registered
// ExtModel id.
func DefaultAliases() map[string]string {
	return map[string]string{
		"gpt-4":  "gpt-4o",
		"sonnet": "claude-3-7-sonnet",
		"opus":   "claude-3-opus",
		"haiku":  "claude-3-5-haiku",
	}
}
