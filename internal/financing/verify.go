package financing

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// Callback statuses the provider reports. The set is closed; anything else is
// rejected as a client error.
const (
	CallbackStatusSuccess   = "SUCCESS"
	CallbackStatusCancelled = "CANCELLED"
	CallbackStatusTimeout   = "TIMEOUT"
)

// VerificationHash computes the digest authenticating a callback: hex-encoded
// SHA-512 over the semicolon join of secret, status, reference id and usage.
// Missing fields participate as empty strings. The construction is a plain
// concatenation hash, not a keyed MAC; it is kept as-is for wire compatibility
// with the provider.
func VerificationHash(secretKey, status, referenceID, usage string) string {
	sum := sha512.Sum512([]byte(strings.Join([]string{secretKey, status, referenceID, usage}, ";")))
	return hex.EncodeToString(sum[:])
}

// VerifyCallback recomputes the verification hash from the callback fields and
// compares it against the claimed one. It never errors; any mismatch,
// including missing fields, yields false.
func VerifyCallback(secretKey, status, referenceID, usage, claimed string) bool {
	if claimed == "" {
		return false
	}
	expected := VerificationHash(secretKey, status, referenceID, usage)
	return hmac.Equal([]byte(expected), []byte(claimed))
}
