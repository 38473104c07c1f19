package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// NormalizeCredential upper-cases the ASCII letters of s. Other bytes are kept as-is,
// so the result does not depend on the process locale.
func NormalizeCredential(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' {
			return r - ('a' - 'A')
		}
		return r
	}, s)
}

// CalculatePasswordHash derives the stored credential digest for a login and password.
//
//	inner = SHA256(upper(login))
//	outer = SHA256(HEX(inner) + ":" + upper(password))
//
// The result is HEX(outer) in upper case, digest bytes in SHA-256 output order.
// Game server databases that store the digest byte-reversed (SRP-style hex) will not
// match these values; such rows must be rehashed before they can log in here.
func CalculatePasswordHash(login, password string) string {
	inner := sha256.Sum256([]byte(NormalizeCredential(login)))

	h := sha256.New()
	h.Write([]byte(upperHex(inner[:])))
	h.Write([]byte{':'})
	h.Write([]byte(NormalizeCredential(password)))

	return upperHex(h.Sum(nil))
}

// PasswordsMatch compares a computed digest with the stored one in constant time
func PasswordsMatch(computed, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(computed), []byte(stored)) == 1
}

func upperHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}
