package chatservice

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixaill76/cursor-gateway/internal/cursortoken"
	"github.com/mixaill76/cursor-gateway/internal/tokenmanager"
)

func newTestExtToken(t *testing.T, kind cursortoken.Kind) *cursortoken.ExtToken {
	t.Helper()
	key := cursortoken.NewRandomKey()
	printable := cursortoken.Printable(key, 9999999999, kind, "sig")
	tok := cursortoken.New(key, 9999999999, kind, printable)
	return &cursortoken.ExtToken{Primary: tok}
}

// TestMaybeRetrySessionExpiryOnlyAppliesToSessionTokens covers half of
// spec.md Testable Property 14: a Web token never attempts the upgrade,
// regardless of the error, and must surface the original failure.
func TestMaybeRetrySessionExpiryOnlyAppliesToSessionTokens(t *testing.T) {
	s := &Service{Tokens: tokenmanager.New()}
	ext := newTestExtToken(t, cursortoken.KindWeb)

	got, upgraded := s.maybeRetrySessionExpiry(context.Background(), ext, errSessionExpired)
	assert.False(t, upgraded)
	assert.Nil(t, got)
}

func TestMaybeRetrySessionExpiryIgnoresUnrelatedErrors(t *testing.T) {
	s := &Service{Tokens: tokenmanager.New()}
	ext := newTestExtToken(t, cursortoken.KindSession)

	got, upgraded := s.maybeRetrySessionExpiry(context.Background(), ext, errors.New("some other upstream failure"))
	assert.False(t, upgraded)
	assert.Nil(t, got)
}

func TestCommitRefreshedTokenSwapsPrimaryAndKeepsSecondary(t *testing.T) {
	tokens := tokenmanager.New()
	oldKey := cursortoken.NewRandomKey()
	oldPrintable := cursortoken.Printable(oldKey, 100, cursortoken.KindSession, "sig")
	oldTok := cursortoken.New(oldKey, 100, cursortoken.KindSession, oldPrintable)

	info := &cursortoken.TokenInfo{Ext: cursortoken.ExtToken{Primary: oldTok}, Enabled: true}
	_, err := tokens.Add(info, "")
	require.NoError(t, err)

	s := &Service{Tokens: tokens}
	ext := &cursortoken.ExtToken{Primary: oldTok}

	newKey := cursortoken.NewRandomKey()
	newPrintable := cursortoken.Printable(newKey, 200, cursortoken.KindWeb, "sig2")
	newTok := cursortoken.New(newKey, 200, cursortoken.KindWeb, newPrintable)

	s.commitRefreshedToken(ext, newTok, oldTok)

	assert.Same(t, newTok, ext.Primary)
	assert.Same(t, oldTok, ext.Secondary)

	stored, _, ok := tokens.GetByKey(newKey)
	require.True(t, ok)
	assert.Same(t, newTok, stored.Ext.Primary)
	assert.Same(t, oldTok, stored.Ext.Secondary)
}
