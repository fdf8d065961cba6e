package chatservice

import (
	"net/http"
	"strings"

	"github.com/mixaill76/cursor-gateway/internal/cursorerr"
	"github.com/mixaill76/cursor-gateway/internal/cursortoken"
	"github.com/mixaill76/cursor-gateway/internal/tokenmanager"
)

// AuthMode is the operating mode resolved for one inbound request
// (spec.md §4.7 step 1).
type AuthMode int

const (
	ModeAdmin AuthMode = iota
	ModeShared
	ModeDynamic
	ModeKnownCaller
)

// authenticate picks a token bundle for the request, trying admin-prefix,
// shared-key, dynamic-key, and known-caller resolution in that order.
func (s *Service) authenticate(r *http.Request) (*cursortoken.ExtToken, AuthMode, error) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, 0, cursorerr.ErrUnauthorized
	}
	bearer := strings.TrimPrefix(authHeader, "Bearer ")
	if bearer == "" {
		return nil, 0, cursorerr.ErrUnauthorized
	}

	if s.AdminKeyPrefix != "" && strings.HasPrefix(bearer, s.AdminKeyPrefix) {
		if alias := strings.TrimPrefix(bearer, s.AdminKeyPrefix); alias != "" {
			info, _, err := s.Tokens.GetByAlias(tokenmanager.Alias(alias))
			if err != nil {
				return nil, 0, cursorerr.ErrAliasNotFound
			}
			return &info.Ext, ModeAdmin, nil
		}
		ext, ok := s.Tokens.Select(tokenmanager.PrivilegedFree)
		if !ok {
			ext, ok = s.Tokens.Select(tokenmanager.PrivilegedPaid)
		}
		if !ok {
			return nil, 0, cursorerr.ErrNoAvailableTokens
		}
		return ext, ModeAdmin, nil
	}

	if s.SharedKey != "" && bearer == s.SharedKey {
		ext, ok := s.Tokens.Select(tokenmanager.NormalFree)
		if !ok {
			ext, ok = s.Tokens.Select(tokenmanager.NormalPaid)
		}
		if !ok {
			return nil, 0, cursorerr.ErrNoAvailableTokens
		}
		return ext, ModeShared, nil
	}

	if s.DynamicKeysEnabled {
		if ext, ok := parseDynamicKey(bearer); ok {
			return ext, ModeDynamic, nil
		}
	}

	if key, _, _, err := cursortoken.Parse(bearer); err == nil {
		if info, _, ok := s.Tokens.GetByKey(key); ok {
			return &info.Ext, ModeKnownCaller, nil
		}
	}

	return nil, 0, cursorerr.ErrUnauthorized
}

// parseDynamicKey decodes a caller-embedded token bundle from a bearer
// string without touching the pool at all (spec.md §4.7 step 1: "Dynamic
// key ... resolves to an embedded TokenInfo without touching the pool").
// The exact embedding format is deployment-specific; none is enabled by
// default (DynamicKeysEnabled defaults to false).
func parseDynamicKey(bearer string) (*cursortoken.ExtToken, bool) {
	key, expiry, kind, err := cursortoken.Parse(bearer)
	if err != nil {
		return nil, false
	}
	tok := cursortoken.New(key, expiry, kind, bearer)
	return &cursortoken.ExtToken{Primary: tok}, true
}
