// Package key provides API key value types and pure validation functions.
package key

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// PrefixLen is the number of leading characters stored in clear for lookup.
const PrefixLen = 12

// MaskLen is the number of characters shown when a key is displayed.
const MaskLen = 10

// Key is a stored API key (immutable value type).
// The raw key is never stored; Hash holds its bcrypt hash.
type Key struct {
	ID        string
	UserID    int64
	Hash      []byte
	Prefix    string
	Name      string
	ExpiresAt *time.Time // nil = never expires
	RevokedAt *time.Time // nil = not revoked
	CreatedAt time.Time
	LastUsed  *time.Time

	// Policy override for this key. Zero fields fall back to the plan.
	RequestsPerMinute int64
	RequestsPerDay    int64
}

// ValidationResult is the outcome of key validation (value type).
type ValidationResult struct {
	Valid  bool
	Key    Key    // Populated only if Valid=true
	Reason string // Populated only if Valid=false
}

// Reasons for validation failure.
const (
	ReasonValid       = ""
	ReasonNotFound    = "key_not_found"
	ReasonExpired     = "key_expired"
	ReasonRevoked     = "key_revoked"
	ReasonBadFormat   = "invalid_format"
	ReasonUserSuspend = "user_suspended"
)

// Generate creates a new raw API key with the given prefix.
// The raw key is prefix + 64 hex chars. The caller hashes it and
// stores the returned Key; the raw key is shown to the user once.
func Generate(prefix string) (rawKey string, k Key, err error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", Key{}, fmt.Errorf("generate key: %w", err)
	}
	rawKey = prefix + hex.EncodeToString(secret)

	id := make([]byte, 8)
	if _, err := rand.Read(id); err != nil {
		return "", Key{}, fmt.Errorf("generate key id: %w", err)
	}

	k = Key{
		ID:     "key_" + hex.EncodeToString(id),
		Prefix: LookupPrefix(rawKey),
	}
	return rawKey, k, nil
}

// LookupPrefix returns the stored lookup prefix of a raw key.
func LookupPrefix(rawKey string) string {
	if len(rawKey) < PrefixLen {
		return rawKey
	}
	return rawKey[:PrefixLen]
}

// Mask returns the display form of a key: the first 10 characters
// followed by an ellipsis.
// This is a PURE function.
func Mask(rawKey string) string {
	if len(rawKey) <= MaskLen {
		return rawKey + "..."
	}
	return rawKey[:MaskLen] + "..."
}

// WithUserID returns a copy of the key owned by userID.
func (k Key) WithUserID(userID int64) Key {
	k.UserID = userID
	return k
}

// WithName returns a copy of the key with the Name set.
func (k Key) WithName(name string) Key {
	k.Name = name
	return k
}
