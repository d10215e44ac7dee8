// Package identity provides deterministic content hashing and parcel
// identifier normalization used across the ingestion pipeline.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// HashContent returns the hex-encoded SHA-256 digest of raw payload bytes.
// Used as the dedup content hash for RawFetch rows.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Signature returns a deterministic content signature for a structured value.
// The value is serialized to canonical JSON (map keys sorted by encoding/json)
// and hashed. Identical structured payloads always produce identical
// signatures, which is what makes re-parsing reproducible.
func Signature(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to serialize payload for signature: %w", err)
	}
	return HashContent(b), nil
}

// NormalizeParcelID canonicalizes a source-supplied parcel identifier.
// Case is folded to lower and every non-alphanumeric rune is stripped, so
// "064-22-003A", "0642 2003a" and "06422003A" all normalize to "06422003a".
func NormalizeParcelID(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// NormalizeAddress produces the normalized full-address form stored on a
// parcel: upper-cased, punctuation removed, whitespace collapsed.
func NormalizeAddress(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	lastSpace := true
	for _, r := range raw {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToUpper(r))
			lastSpace = false
		case unicode.IsSpace(r) || r == ',' || r == '.' || r == '-' || r == '#':
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// ParcelKey formats the canonical parcel key from its three components:
// 2-digit state FIPS, 3-digit county FIPS, normalized parcel id.
func ParcelKey(stateFips, countyFips, parcelIDNorm string) string {
	return stateFips + "-" + countyFips + "-" + parcelIDNorm
}

// ParseParcelKey splits a canonical parcel key back into its components.
func ParseParcelKey(key string) (stateFips, countyFips, parcelIDNorm string, err error) {
	parts := strings.SplitN(key, "-", 3)
	if len(parts) != 3 || len(parts[0]) != 2 || len(parts[1]) != 3 || parts[2] == "" {
		return "", "", "", fmt.Errorf("invalid parcel key: %q", key)
	}
	return parts[0], parts[1], parts[2], nil
}
