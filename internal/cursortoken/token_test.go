package cursortoken

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRoundTripPrintableFormPreservesKeyAndPoolCardinality covers spec.md
// Testable Property 5: parsing a token's own printable form and building a
// new Token from the result yields the same key, and does not grow the
// dedupe pool beyond the one entry already held.
func TestRoundTripPrintableFormPreservesKeyAndPoolCardinality(t *testing.T) {
	key := NewRandomKey()
	printable := Printable(key, 1234567890, KindSession, "sig")
	tok := New(key, 1234567890, KindSession, printable)
	defer Release(tok)

	before := poolSize()

	parsedKey, parsedExpiry, parsedKind, err := Parse(tok.AsStr())
	require.NoError(t, err)
	assert.Equal(t, tok.Key(), parsedKey)

	again := New(parsedKey, parsedExpiry, parsedKind, printable)
	defer Release(again)

	assert.Equal(t, tok.Key(), again.Key())
	assert.Same(t, tok, again, "identical content must reuse the pooled allocation")
	assert.Equal(t, before, poolSize(), "re-New on cached content must not grow the pool")
}

func TestNewDedupesByContentAndReleaseEvictsOnLastRef(t *testing.T) {
	key := NewRandomKey()
	printable := Printable(key, 100, KindWeb, "sig")

	a := New(key, 100, KindWeb, printable)
	b := New(key, 100, KindWeb, printable)
	assert.Same(t, a, b)

	sizeWithRefs := poolSize()
	Release(a)
	assert.Equal(t, sizeWithRefs, poolSize(), "one remaining ref keeps the entry")

	Release(b)
	assert.Equal(t, sizeWithRefs-1, poolSize(), "last release must not leave the entry behind")
}

func TestParseRejectsMalformedPrintable(t *testing.T) {
	_, _, _, err := Parse("not-a-token")
	assert.Error(t, err)
}

func TestParseRejectsUndecodablePayload(t *testing.T) {
	_, _, _, err := Parse("not-base64!!.sig")
	assert.Error(t, err)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "session", KindSession.String())
	assert.Equal(t, "web", KindWeb.String())
}
