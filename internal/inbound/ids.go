package inbound

import (
	"math/big"

	"github.com/google/uuid"
)

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// base62FromUUID renders a UUID's 128 bits as exactly 22 base62 characters
// (62^22 > 2^128, so this never truncates), left-padding with the
// alphabet's zero symbol when the numeric value is small.
func base62FromUUID(id uuid.UUID) string {
	n := new(big.Int).SetBytes(id[:])
	base := big.NewInt(62)
	zero := big.NewInt(0)
	mod := new(big.Int)

	buf := make([]byte, 0, 22)
	for n.Cmp(zero) > 0 {
		n.DivMod(n, base, mod)
		buf = append(buf, base62Alphabet[mod.Int64()])
	}
	for len(buf) < 22 {
		buf = append(buf, base62Alphabet[0])
	}
	// reverse in place
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

// NewChatCompletionID returns an id of the form "chatcmpl-<22 base62 chars>"
// derived from a fresh message uuid (spec.md §6.1).
func NewChatCompletionID() string {
	return "chatcmpl-" + base62FromUUID(uuid.New())
}

// NewAnthropicMessageID returns an id of the form "msg_01<22 base62 chars>"
// (spec.md §6.1).
func NewAnthropicMessageID() string {
	return "msg_01" + base62FromUUID(uuid.New())
}
