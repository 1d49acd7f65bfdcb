// SPDX-License-Identifier: MIT

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives a stable content-addressed key from the given parts.
// The same inputs always map to the same key, so identical external calls
// collapse onto one cache entry.
func Fingerprint(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeText collapses whitespace so semantically identical source
// documents share a script cache key.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
