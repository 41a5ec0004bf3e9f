package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// Short codes are spoken aloud at kiosks, so the alphabet drops the characters
// people confuse over a bad PA system: 0/O, 1/I/L.
const shortCodeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const shortCodeLength = 6

// GenerateShortCode returns a 6-character registration short code.
func GenerateShortCode() string {
	buf := make([]byte, shortCodeLength)
	max := big.NewInt(int64(len(shortCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failing is unrecoverable enough that a
			// time-seeded fallback would be worse than a crash.
			panic(fmt.Sprintf("short code generation: %v", err))
		}
		buf[i] = shortCodeAlphabet[n.Int64()]
	}
	return string(buf)
}

// GenerateRegistrationID builds the durable ID from a short code:
// REG-<year>-<first 4 chars of the short code>.
func GenerateRegistrationID(shortCode string, at time.Time) string {
	return fmt.Sprintf("REG-%d-%s", at.Year(), shortCode[:4])
}

// CodeSuffix is the 4-character tail of a short code used for verbal lookup.
func CodeSuffix(shortCode string) string {
	if len(shortCode) <= 4 {
		return shortCode
	}
	return shortCode[len(shortCode)-4:]
}
