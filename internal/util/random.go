// Package util provides utility functions for the HRM sync agent.
package util

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID will be in the format: "{prefix}{hex_string}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified length.
// Uses math/rand/v2; not suitable for cryptographic purposes.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.IntN(16)])
	}

	return builder.String()
}

// GenerateMutationID generates a unique, lexicographically ordered mutation ID.
// The zero-padded nanosecond timestamp prefix makes IDs sort in creation order;
// the random suffix breaks ties between mutations created in the same nanosecond.
func GenerateMutationID() string {
	return fmt.Sprintf("m_%020d_%s", time.Now().UnixNano(), GenerateRandomHex(6))
}
