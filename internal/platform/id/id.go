// Package id generates identifiers and human-enterable join codes.
package id

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// JoinCodeAlphabet omits characters that are easy to confuse when read aloud
// or typed (0/O, 1/I/L).
const JoinCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// JoinCodeLength is the number of characters in a join code.
const JoinCodeLength = 6

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID generates a URL-safe identifier using UUIDv4 bytes encoded as base32.
// The identifier is 26 characters long, lowercase, and contains no padding.
func NewID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("new uuid: %w", err)
	}
	return strings.ToLower(encoding.EncodeToString(u[:])), nil
}

// NewJoinCode returns a random code drawn from JoinCodeAlphabet.
func NewJoinCode() (string, error) {
	var raw [JoinCodeLength]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	out := make([]byte, JoinCodeLength)
	for i, b := range raw {
		out[i] = JoinCodeAlphabet[int(b)%len(JoinCodeAlphabet)]
	}
	return string(out), nil
}

// NormalizeJoinCode uppercases and trims a user-entered code. It reports
// false when the result cannot be a valid code.
func NormalizeJoinCode(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != JoinCodeLength {
		return "", false
	}
	for _, r := range code {
		if !strings.ContainsRune(JoinCodeAlphabet, r) {
			return "", false
		}
	}
	return code, true
}
