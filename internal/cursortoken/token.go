// Package cursortoken implements the Token value object: an immutable
// credential deduplicated by content across the whole process, plus the
// ExtToken/TokenInfo bundles built on top of it.
package cursortoken

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Kind distinguishes the two credential families the upstream service
// issues. Session tokens support refresh; Web tokens do not.
type Kind uint8

const (
	KindWeb Kind = iota
	KindSession
)

func (k Kind) String() string {
	if k == KindSession {
		return "session"
	}
	return "web"
}

// TokenKey is the stable 24-byte identity used to look a token up across
// refreshes: user-id (128 bits) plus per-issue randomness (64 bits).
type TokenKey struct {
	UserID     [16]byte
	Randomness uint64
}

func (k TokenKey) String() string {
	return fmt.Sprintf("%x-%016x", k.UserID, k.Randomness)
}

// Token is the immutable, refcounted value object described in spec.md §3.
// Two Tokens built from identical (UserID, Randomness, Expiry, Kind) content
// share a single allocation.
type Token struct {
	key       TokenKey
	expiry    int64 // seconds since epoch
	kind      Kind
	printable string

	refs int32
}

func (t *Token) Key() TokenKey   { return t.key }
func (t *Token) Expiry() int64   { return t.expiry }
func (t *Token) Kind() Kind      { return t.kind }
func (t *Token) IsWeb() bool     { return t.kind == KindWeb }
func (t *Token) IsSession() bool { return t.kind == KindSession }
func (t *Token) AsStr() string   { return t.printable }

type contentKey struct {
	key    TokenKey
	expiry int64
	kind   Kind
}

// pool is the global content-addressed dedupe cache. Its own lock protects
// it independently of any higher-level lock (TokenManager's included).
var pool = struct {
	mu      sync.RWMutex
	entries map[contentKey]*Token
}{entries: make(map[contentKey]*Token)}

// maxRefs guards against refcount overflow; crossing it indicates a bug
// (e.g. a Release/New imbalance) severe enough to abort rather than wrap.
const maxRefs = 1<<31 - 1024

// New returns a reference-counted Token for the given content, reusing the
// cached allocation if one with identical content already exists.
func New(key TokenKey, expiry int64, kind Kind, printable string) *Token {
	ck := contentKey{key, expiry, kind}

	pool.mu.RLock()
	if existing, ok := pool.entries[ck]; ok {
		n := atomic.AddInt32(&existing.refs, 1)
		pool.mu.RUnlock()
		if n > maxRefs {
			panic("cursortoken: refcount overflow")
		}
		return existing
	}
	pool.mu.RUnlock()

	pool.mu.Lock()
	defer pool.mu.Unlock()
	if existing, ok := pool.entries[ck]; ok {
		atomic.AddInt32(&existing.refs, 1)
		return existing
	}
	t := &Token{key: key, expiry: expiry, kind: kind, printable: printable, refs: 1}
	pool.entries[ck] = t
	return t
}

// Release drops one reference, freeing the pool entry on last-drop. A
// double-checked read under the write lock avoids racing with a concurrent
// New() that observed the entry just before this Release reached zero.
func Release(t *Token) {
	if t == nil {
		return
	}
	if atomic.AddInt32(&t.refs, -1) > 0 {
		return
	}
	ck := contentKey{t.key, t.expiry, t.kind}
	pool.mu.Lock()
	defer pool.mu.Unlock()
	if atomic.LoadInt32(&t.refs) <= 0 {
		if cur, ok := pool.entries[ck]; ok && cur == t {
			delete(pool.entries, ck)
		}
	}
}

// Retain increments the refcount of an already-held Token, e.g. when
// sharing it into a second owner without going through New.
func Retain(t *Token) *Token {
	if t == nil {
		return nil
	}
	atomic.AddInt32(&t.refs, 1)
	return t
}

// poolSize reports the number of distinct content entries; exposed for
// tests verifying that New() on an already-cached printable form does not
// increase pool cardinality (spec.md Testable Property 5).
func poolSize() int {
	pool.mu.RLock()
	defer pool.mu.RUnlock()
	return len(pool.entries)
}

// rawClaims is the payload half of the upstream's "payload.signature"
// printable token form. The upstream issuer's exact encoding is opaque to
// this gateway; this mirrors the shape it is known to carry.
type rawClaims struct {
	Sub  string `json:"sub"`
	Rand uint64 `json:"randomness"`
	Exp  int64  `json:"exp"`
	Kind uint8  `json:"type"`
}

// Parse extracts (TokenKey, expiry, kind) from a printable token without
// validating the signature half — signature verification is the upstream
// issuer's concern, not this gateway's.
func Parse(printable string) (TokenKey, int64, Kind, error) {
	dot := strings.IndexByte(printable, '.')
	if dot < 0 {
		return TokenKey{}, 0, 0, fmt.Errorf("cursortoken: malformed printable token")
	}
	raw, err := base64.RawURLEncoding.DecodeString(printable[:dot])
	if err != nil {
		return TokenKey{}, 0, 0, fmt.Errorf("cursortoken: decode payload: %w", err)
	}
	var c rawClaims
	if err := json.Unmarshal(raw, &c); err != nil {
		return TokenKey{}, 0, 0, fmt.Errorf("cursortoken: unmarshal claims: %w", err)
	}
	sub, err := base64.RawURLEncoding.DecodeString(c.Sub)
	if err != nil || len(sub) != 16 {
		return TokenKey{}, 0, 0, fmt.Errorf("cursortoken: malformed subject")
	}
	var key TokenKey
	copy(key.UserID[:], sub)
	key.Randomness = c.Rand
	return key, c.Exp, Kind(c.Kind), nil
}

// Printable renders the (payload, signature) pair into the "payload.signature"
// form the upstream issuer and this gateway exchange verbatim.
func Printable(key TokenKey, expiry int64, kind Kind, signature string) string {
	c := rawClaims{
		Sub:  base64.RawURLEncoding.EncodeToString(key.UserID[:]),
		Rand: key.Randomness,
		Exp:  expiry,
		Kind: uint8(kind),
	}
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw) + "." + signature
}

// NewRandomKey generates a fresh TokenKey for newly-issued tokens (e.g. the
// synthetic tokens used in tests and in the PKCE upgrade flow).
func NewRandomKey() TokenKey {
	var k TokenKey
	_, _ = rand.Read(k.UserID[:])
	var rbuf [8]byte
	_, _ = rand.Read(rbuf[:])
	for i, b := range rbuf {
		k.Randomness |= uint64(b) << (8 * i)
	}
	return k
}
