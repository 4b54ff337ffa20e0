package key

import (
	"strings"
	"time"
)

// Validate checks if a key is usable at the given time.
// This is a PURE function - no side effects, deterministic.
func Validate(k Key, now time.Time) ValidationResult {
	if k.RevokedAt != nil {
		return ValidationResult{Reason: ReasonRevoked}
	}
	if k.ExpiresAt != nil && now.After(*k.ExpiresAt) {
		return ValidationResult{Reason: ReasonExpired}
	}
	return ValidationResult{Valid: true, Key: k}
}

// ValidateFormat checks the shape of a raw API key.
// Returns the lookup prefix when the key is well formed.
// This is a PURE function.
func ValidateFormat(rawKey, expectedPrefix string) (prefix string, valid bool) {
	if !strings.HasPrefix(rawKey, expectedPrefix) {
		return "", false
	}
	if len(rawKey) < len(expectedPrefix)+64 {
		return "", false
	}
	for _, c := range rawKey[len(expectedPrefix):] {
		if !isHex(c) {
			return "", false
		}
	}
	return LookupPrefix(rawKey), true
}

func isHex(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
}
