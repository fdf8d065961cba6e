package statefile

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixaill76/cursor-gateway/internal/cursortoken"
	"github.com/mixaill76/cursor-gateway/internal/proxypool"
	"github.com/mixaill76/cursor-gateway/internal/tokenmanager"
)

func hexZeros(n int) string {
	return hex.EncodeToString(make([]byte, n))
}

func testTokenRecord(t *testing.T, alias string) TokenRecord {
	t.Helper()
	key := cursortoken.NewRandomKey()
	printable := cursortoken.Printable(key, 9999999999, cursortoken.KindWeb, "sig")
	return TokenRecord{
		Alias:     alias,
		Token:     printable,
		Checksum:  hexZeros(32),
		ClientKey: hexZeros(32),
		SessionID: hexZeros(16),
		Enabled:   true,
	}
}

func TestLoadTokensMissingFileReturnsEmpty(t *testing.T) {
	recs, err := LoadTokens(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestToTokenInfoRoundTripsThroughSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.yaml")

	tokens := tokenmanager.New()
	rec := testTokenRecord(t, "alice")
	info, alias, err := rec.ToTokenInfo()
	require.NoError(t, err)
	_, err = tokens.Add(info, alias)
	require.NoError(t, err)

	require.NoError(t, SaveTokens(path, tokens))

	recs, err := LoadTokens(path)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "alice", recs[0].Alias)

	roundTripped, roundTrippedAlias, err := recs[0].ToTokenInfo()
	require.NoError(t, err)
	assert.Equal(t, tokenmanager.Alias("alice"), roundTrippedAlias)
	assert.Equal(t, info.Ext.Primary.Key(), roundTripped.Ext.Primary.Key())
}

func TestToTokenInfoRejectsMalformedToken(t *testing.T) {
	rec := TokenRecord{Alias: "bad", Token: "not-a-valid-token"}
	_, _, err := rec.ToTokenInfo()
	assert.Error(t, err)
}

func TestToTokenInfoRejectsBadChecksumLength(t *testing.T) {
	rec := testTokenRecord(t, "bob")
	rec.Checksum = hexZeros(4) // wrong length for a 32-byte field
	_, _, err := rec.ToTokenInfo()
	assert.Error(t, err)
}

func TestLoadProxiesMissingFileReturnsZeroConfig(t *testing.T) {
	cfg, err := LoadProxies(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Proxies)
}

func TestSaveAndLoadProxiesRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.yaml")
	cfg := proxypool.Config{
		Proxies: map[string]proxypool.SingleProxy{
			"direct": {Kind: proxypool.Non},
			"http":   {Kind: proxypool.Url, URL: "http://proxy.example:8080"},
		},
		General: "direct",
	}

	require.NoError(t, SaveProxies(path, cfg))

	loaded, err := LoadProxies(path)
	require.NoError(t, err)
	assert.Equal(t, "direct", loaded.General)
	assert.Equal(t, proxypool.Non, loaded.Proxies["direct"].Kind)
	assert.Equal(t, proxypool.Url, loaded.Proxies["http"].Kind)
	assert.Equal(t, "http://proxy.example:8080", loaded.Proxies["http"].URL)
}

func TestAtomicWriteCreatesFileWithExactContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x")
	require.NoError(t, atomicWrite(path, []byte("hello")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}
