package device

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
)

// Credential parameters.
const (
	// PairingCodeMin and PairingCodeMax bound the six-digit pairing code.
	PairingCodeMin = 100000
	PairingCodeMax = 999999

	// TokenLength is the byte length of device tokens (256 bits).
	TokenLength = 32
)

// GeneratePairingCode draws a pairing code uniformly from
// [PairingCodeMin, PairingCodeMax].
func GeneratePairingCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(PairingCodeMax-PairingCodeMin+1))
	if err != nil {
		return "", fmt.Errorf("generating pairing code: %w", err)
	}
	return strconv.FormatInt(n.Int64()+PairingCodeMin, 10), nil
}

// ValidPairingCode reports whether code has the shape of an issued pairing code.
func ValidPairingCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return false
	}
	return n >= PairingCodeMin && n <= PairingCodeMax
}

// GenerateToken creates a new opaque device token.
func GenerateToken() (string, error) {
	b := make([]byte, TokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating device token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashToken returns the hex-encoded SHA-256 digest stored in place of the token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// tokenMatches compares the digest of token with storedHash in constant time.
func tokenMatches(token, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(storedHash)) == 1
}
