package app

import (
	"context"
	"fmt"

	"github.com/artpar/filinggate/domain/key"
	"github.com/artpar/filinggate/domain/ratelimit"
	"github.com/artpar/filinggate/ports"
)

// KeyService issues and revokes API keys.
type KeyService struct {
	keys      ports.KeyStore
	users     ports.UserStore
	hasher    ports.Hasher
	clock     ports.Clock
	keyPrefix string
}

// NewKeyService creates a key service.
func NewKeyService(keys ports.KeyStore, users ports.UserStore, hasher ports.Hasher, clk ports.Clock, keyPrefix string) *KeyService {
	return &KeyService{keys: keys, users: users, hasher: hasher, clock: clk, keyPrefix: keyPrefix}
}

// CreateKey generates a key for a user. The raw key is returned once and
// only its hash is stored. A zero override inherits the plan's policy.
func (s *KeyService) CreateKey(ctx context.Context, userID int64, name string, override ratelimit.Policy) (string, key.Key, error) {
	if _, err := s.users.Get(ctx, userID); err != nil {
		return "", key.Key{}, fmt.Errorf("lookup user %d: %w", userID, err)
	}

	raw, k, err := key.Generate(s.keyPrefix)
	if err != nil {
		return "", key.Key{}, err
	}
	hash, err := s.hasher.Hash(raw)
	if err != nil {
		return "", key.Key{}, fmt.Errorf("hash key: %w", err)
	}

	k = k.WithUserID(userID).WithName(name)
	k.Hash = hash
	k.CreatedAt = s.clock.Now()
	k.RequestsPerMinute = override.RequestsPerMinute
	k.RequestsPerDay = override.RequestsPerDay

	if err := s.keys.Create(ctx, k); err != nil {
		return "", key.Key{}, fmt.Errorf("store key: %w", err)
	}
	return raw, k, nil
}

// ListKeys returns a user's keys, oldest first.
func (s *KeyService) ListKeys(ctx context.Context, userID int64) ([]key.Key, error) {
	return s.keys.ListByUser(ctx, userID)
}

// RevokeKey revokes a key. Revoked keys fail authentication immediately.
func (s *KeyService) RevokeKey(ctx context.Context, id string) error {
	if _, err := s.keys.GetByID(ctx, id); err != nil {
		return fmt.Errorf("lookup key %s: %w", id, err)
	}
	return s.keys.Revoke(ctx, id, s.clock.Now())
}
