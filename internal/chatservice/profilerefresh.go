package chatservice

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mixaill76/cursor-gateway/internal/cursortoken"
	"github.com/mixaill76/cursor-gateway/internal/tokenmanager"
)

const userProfileURL = "https://api2.cursor.sh/api/dashboard/get-me"

// refreshProfileAsync is spec.md §4.7 step 7's detached background task:
// it runs independently of request-serving, probes the upstream user
// profile endpoint, stores whatever it learns onto the pool-resident
// TokenInfo via a TokenWriter, and — if the token's alias is still an
// auto-generated one — renames it from the fetched email.
func (s *Service) refreshProfileAsync(id int) {
	info, ok := s.Tokens.GetByID(id)
	if !ok {
		return
	}

	probed, ok := s.probeUserProfile(context.Background(), &info.Ext)
	if ok {
		s.storeUserProfile(id, probed)
	}

	s.renameIfUnnamed(id, resolveEmail(probed, ok, info.User))
}

// resolveEmail picks the email to drive auto-naming from: a fresh probe
// wins when it succeeded, otherwise whatever profile is already on
// record (from an earlier successful refresh) is used instead of
// discarding it.
func resolveEmail(probed string, probeOK bool, existing *cursortoken.UserProfile) string {
	if probeOK {
		return probed
	}
	if existing != nil {
		return existing.Email
	}
	return ""
}

// renameIfUnnamed applies spec.md §4.7 step 7's auto-naming: a token
// still carrying its pool-assigned placeholder alias is renamed from
// the local part of a known email. Split out of refreshProfileAsync so
// it can be exercised without a live upstream probe.
func (s *Service) renameIfUnnamed(id int, email string) {
	current, ok := s.aliasFor(id)
	if !ok || !isUnnamedAlias(current) || email == "" {
		return
	}

	if err := s.Tokens.SetAlias(id, deriveAliasFromEmail(email)); err != nil && s.Logger != nil {
		s.Logger.Debug("profile-refresh: alias rename skipped", "id", id, "error", err)
	}
}

// probeUserProfile performs the single, unretried "get-me" request the
// original client issues alongside usage/stripe/session lookups. A
// failure here is routine (rate limiting, a cookie-only deployment) and
// is swallowed rather than logged at more than debug level.
func (s *Service) probeUserProfile(ctx context.Context, ext *cursortoken.ExtToken) (email string, ok bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, userProfileURL, http.NoBody)
	if err != nil {
		return "", false
	}
	req.Header.Set("Authorization", "Bearer "+ext.Primary.AsStr())
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Debug("profile-refresh: get-me request failed", "error", err)
		}
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	var payload struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || payload.Email == "" {
		return "", false
	}
	return payload.Email, true
}

// storeUserProfile commits the fetched email onto the pool-resident
// TokenInfo under the pool's write lock. The profile's name is not stored.
func (s *Service) storeUserProfile(id int, email string) {
	w, ok := s.Tokens.Writer(id)
	if !ok {
		return
	}
	defer w.Commit()
	w.Info().User = &cursortoken.UserProfile{Email: email}
}

func (s *Service) aliasFor(id int) (tokenmanager.Alias, bool) {
	for _, e := range s.Tokens.List() {
		if e.ID == id {
			return e.Alias, true
		}
	}
	return "", false
}

func isUnnamedAlias(a tokenmanager.Alias) bool {
	return strings.HasPrefix(string(a), "unnamed_")
}

func deriveAliasFromEmail(email string) tokenmanager.Alias {
	local, _, found := strings.Cut(email, "@")
	if !found {
		local = email
	}
	return tokenmanager.Alias(local)
}
