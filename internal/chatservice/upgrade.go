package chatservice

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/mixaill76/cursor-gateway/internal/cursortoken"
)

const (
	upgradePollAttempts = 5
	upgradePollInterval = time.Second
)

// errSessionExpired is the transport-error shape the upstream uses to
// signal an expired Session token; a real deployment would classify this
// from the HTTP status/body instead of a bare sentinel.
var errSessionExpired = errors.New("chatservice: session token expired")

// RefreshToken runs the Session→Web PKCE upgrade for ext on demand,
// independent of a failed upstream call. Exposed for adminapi's forced
// refresh endpoint, which has no request-scoped context of its own.
func (s *Service) RefreshToken(ext *cursortoken.ExtToken) (*cursortoken.Token, error) {
	return s.upgradeViaWebPKCE(context.Background(), ext)
}

// maybeRetrySessionExpiry implements spec.md §4.7's retry policy for a
// Session-kind token rejected as expired. The ExtToken bundle this
// gateway tracks carries no refresh_token value (the upstream issues
// only the bearer printable form), so there is no local refresh_token
// grant to attempt first; every Session-kind expiry goes straight to the
// PKCE upgrade flow. Returns (newExtToken, true) on success; the caller
// re-runs the request directly with the returned bundle, without going
// back through authentication or pool selection.
func (s *Service) maybeRetrySessionExpiry(ctx context.Context, ext *cursortoken.ExtToken, sendErr error) (*cursortoken.ExtToken, bool) {
	if !ext.Primary.IsSession() || !errors.Is(sendErr, errSessionExpired) {
		return nil, false
	}

	newTok, err := s.coalescedUpgrade(ctx, ext)
	if err != nil {
		return nil, false
	}
	s.commitRefreshedToken(ext, newTok, ext.Primary)
	return ext, true
}

// upgradeOutcome is what a coalesced upgrade delivers to every waiter
// sharing it.
type upgradeOutcome struct {
	token *cursortoken.Token
	err   error
}

// coalescedUpgrade ensures at most one PKCE upgrade is in flight per token
// key at a time: the first caller for a key becomes the leader and runs
// upgradeViaWebPKCE; concurrent callers for the same key wait on the
// leader's result instead of each starting their own upstream round trip.
// This mirrors a refresh-token manager's coalescing via a map of waiter
// channels keyed by credential.
func (s *Service) coalescedUpgrade(ctx context.Context, ext *cursortoken.ExtToken) (*cursortoken.Token, error) {
	key := ext.Primary.Key()
	wait := make(chan upgradeOutcome, 1)

	s.upgradeMu.Lock()
	if s.upgradeWaiters == nil {
		s.upgradeWaiters = make(map[cursortoken.TokenKey][]chan upgradeOutcome)
	}
	waiters, inFlight := s.upgradeWaiters[key]
	s.upgradeWaiters[key] = append(waiters, wait)
	s.upgradeMu.Unlock()

	if inFlight {
		select {
		case out := <-wait:
			return out.token, out.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	tok, err := s.upgradeViaWebPKCE(ctx, ext)

	s.upgradeMu.Lock()
	pending := s.upgradeWaiters[key]
	delete(s.upgradeWaiters, key)
	s.upgradeMu.Unlock()

	out := upgradeOutcome{token: tok, err: err}
	for _, ch := range pending {
		ch <- out
	}
	return tok, err
}

// upgradeViaWebPKCE runs the Session→Web PKCE upgrade: a random 32-byte
// verifier, its SHA-256 challenge, a POST to kick off the upgrade, then
// bounded polling of a companion URL until a new token is issued
// (spec.md §4.7 retry policy).
func (s *Service) upgradeViaWebPKCE(ctx context.Context, ext *cursortoken.ExtToken) (*cursortoken.Token, error) {
	verifier := make([]byte, 32)
	if _, err := rand.Read(verifier); err != nil {
		return nil, err
	}
	challengeSum := sha256.Sum256(verifier)
	challenge := base64.RawURLEncoding.EncodeToString(challengeSum[:])

	upgradeURL := "https://www.cursor.com/loginDeepControl"
	pollURL := "https://api2.cursor.sh/auth/poll"

	body, _ := json.Marshal(struct {
		Challenge string `json:"challenge"`
	}{Challenge: challenge})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, upgradeURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+ext.Primary.AsStr())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("chatservice: upgrade kickoff failed")
	}

	for i := 0; i < upgradePollAttempts; i++ {
		time.Sleep(upgradePollInterval)

		pollReq, err := http.NewRequestWithContext(ctx, http.MethodGet, pollURL+"?verifier="+base64.RawURLEncoding.EncodeToString(verifier), nil)
		if err != nil {
			return nil, err
		}
		pollResp, err := http.DefaultClient.Do(pollReq)
		if err != nil {
			continue
		}
		if pollResp.StatusCode == http.StatusOK {
			defer pollResp.Body.Close()
			var payload struct {
				AccessToken string `json:"accessToken"`
				Expiry      int64  `json:"expiry"`
			}
			if err := json.NewDecoder(pollResp.Body).Decode(&payload); err != nil {
				return nil, err
			}
			issued := &oauth2.Token{AccessToken: payload.AccessToken, Expiry: time.Unix(payload.Expiry, 0)}
			if !issued.Valid() {
				return nil, errors.New("chatservice: upgrade issued an already-expired token")
			}

			key, expiry, kind, err := cursortoken.Parse(issued.AccessToken)
			if err != nil {
				key = cursortoken.NewRandomKey()
				expiry = payload.Expiry
				kind = cursortoken.KindWeb
			}
			return cursortoken.New(key, expiry, kind, issued.AccessToken), nil
		}
		pollResp.Body.Close()
	}

	return nil, errors.New("chatservice: upgrade polling exhausted")
}

// commitRefreshedToken swaps ext's Primary for newTok via the pool's
// TokenWriter, keeping the prior token as Secondary for the duration of
// the upgrade (spec.md §4.7: "Success replaces primary_token (keeping the
// prior one as secondary_token for the duration of the upgrade)").
func (s *Service) commitRefreshedToken(ext *cursortoken.ExtToken, newTok *cursortoken.Token, secondary *cursortoken.Token) {
	_, id, ok := s.Tokens.GetByKey(ext.Primary.Key())
	if !ok {
		return
	}
	w, ok := s.Tokens.Writer(id)
	if !ok {
		return
	}
	defer w.Commit()

	prior := w.Info().Ext.Primary
	w.Info().Ext.Primary = newTok
	if secondary != nil {
		w.Info().Ext.Secondary = secondary
	} else {
		cursortoken.Release(prior)
	}

	ext.Primary = newTok
	ext.Secondary = w.Info().Ext.Secondary
}
