package chatservice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixaill76/cursor-gateway/internal/cursortoken"
	"github.com/mixaill76/cursor-gateway/internal/tokenmanager"
)

func TestIsUnnamedAlias(t *testing.T) {
	assert.True(t, isUnnamedAlias("unnamed_0"))
	assert.True(t, isUnnamedAlias("unnamed_42"))
	assert.False(t, isUnnamedAlias("alice"))
	assert.False(t, isUnnamedAlias(""))
}

func TestDeriveAliasFromEmail(t *testing.T) {
	assert.Equal(t, tokenmanager.Alias("alice"), deriveAliasFromEmail("alice@example.com"))
	assert.Equal(t, tokenmanager.Alias("no-at-sign"), deriveAliasFromEmail("no-at-sign"))
}

func TestRenameIfUnnamedRenamesFromEmail(t *testing.T) {
	tokens := tokenmanager.New()
	key := cursortoken.NewRandomKey()
	printable := cursortoken.Printable(key, 9999999999, cursortoken.KindWeb, "sig")
	tok := cursortoken.New(key, 9999999999, cursortoken.KindWeb, printable)
	info := &cursortoken.TokenInfo{Ext: cursortoken.ExtToken{Primary: tok}, Enabled: true}
	id, err := tokens.Add(info, "")
	require.NoError(t, err)

	s := &Service{Tokens: tokens}
	s.renameIfUnnamed(id, "bob@example.com")

	_, _, err = tokens.GetByAlias("bob")
	assert.NoError(t, err)
}

func TestRenameIfUnnamedSkipsAlreadyNamedAlias(t *testing.T) {
	tokens := tokenmanager.New()
	key := cursortoken.NewRandomKey()
	printable := cursortoken.Printable(key, 9999999999, cursortoken.KindWeb, "sig")
	tok := cursortoken.New(key, 9999999999, cursortoken.KindWeb, printable)
	info := &cursortoken.TokenInfo{Ext: cursortoken.ExtToken{Primary: tok}, Enabled: true}
	id, err := tokens.Add(info, "carol-custom")
	require.NoError(t, err)

	s := &Service{Tokens: tokens}
	s.renameIfUnnamed(id, "carol@example.com")

	_, _, err = tokens.GetByAlias("carol-custom")
	assert.NoError(t, err, "alias should be left untouched")
}

func TestRenameIfUnnamedNoOpWithoutEmail(t *testing.T) {
	tokens := tokenmanager.New()
	key := cursortoken.NewRandomKey()
	printable := cursortoken.Printable(key, 9999999999, cursortoken.KindWeb, "sig")
	tok := cursortoken.New(key, 9999999999, cursortoken.KindWeb, printable)
	info := &cursortoken.TokenInfo{Ext: cursortoken.ExtToken{Primary: tok}, Enabled: true}
	id, err := tokens.Add(info, "")
	require.NoError(t, err)

	s := &Service{Tokens: tokens}
	assert.NotPanics(t, func() { s.renameIfUnnamed(id, "") })

	_, _, err = tokens.GetByAlias("unnamed_0")
	assert.NoError(t, err, "alias should be left untouched with no email to derive from")
}

func TestStoreUserProfileWritesEmailOntoPoolEntry(t *testing.T) {
	tokens := tokenmanager.New()
	key := cursortoken.NewRandomKey()
	printable := cursortoken.Printable(key, 9999999999, cursortoken.KindWeb, "sig")
	tok := cursortoken.New(key, 9999999999, cursortoken.KindWeb, printable)
	info := &cursortoken.TokenInfo{Ext: cursortoken.ExtToken{Primary: tok}, Enabled: true}
	id, err := tokens.Add(info, "")
	require.NoError(t, err)

	s := &Service{Tokens: tokens}
	s.storeUserProfile(id, "dana@example.com")

	stored, ok := tokens.GetByID(id)
	require.True(t, ok)
	require.NotNil(t, stored.User)
	assert.Equal(t, "dana@example.com", stored.User.Email)
}

func TestResolveEmailPrefersFreshProbe(t *testing.T) {
	existing := &cursortoken.UserProfile{Email: "stale@example.com"}
	assert.Equal(t, "fresh@example.com", resolveEmail("fresh@example.com", true, existing))
}

func TestResolveEmailFallsBackToExistingProfileWhenProbeFails(t *testing.T) {
	existing := &cursortoken.UserProfile{Email: "erin@example.com"}
	assert.Equal(t, "erin@example.com", resolveEmail("", false, existing))
}

func TestResolveEmailEmptyWithNeitherProbeNorExistingProfile(t *testing.T) {
	assert.Equal(t, "", resolveEmail("", false, nil))
}
