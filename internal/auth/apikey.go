package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/user/entityflow/internal/cache"
	"github.com/user/entityflow/internal/core/errs"
)

// APIKeyRepository looks up and touches API-key rows.
type APIKeyRepository interface {
	GetActiveByHash(ctx context.Context, hash string) (*APIKey, error)
	TouchLastUsed(ctx context.Context, uuid string, when time.Time) error
	RolesFor(ctx context.Context, apiKeyUUID string) ([]Role, error)
}

// apiKeyCacheEntry is the cached (ApiKey, user_uuid) pair.
type apiKeyCacheEntry struct {
	Key      APIKey `json:"key"`
	UserUUID string `json:"user_uuid"`
}

func hashAPIKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// APIKeyService implements a validation-with-cache contract:
// cache first, repository on miss, cache the hit, best-effort last_used_at.
type APIKeyService struct {
	repo  APIKeyRepository
	cache *cache.Cache
	ttl   time.Duration
}

func NewAPIKeyService(repo APIKeyRepository, c *cache.Cache, ttl time.Duration) *APIKeyService {
	return &APIKeyService{repo: repo, cache: c, ttl: ttl}
}

// Validate resolves a plaintext API key to its (APIKey, user_uuid) pair.
// last_used_at updates are skipped on a cache hit, matching the spec's
// "best-effort and may be skipped on cache hit" clause.
func (s *APIKeyService) Validate(ctx context.Context, plaintext string) (*APIKey, string, error) {
	hash := hashAPIKey(plaintext)
	cacheKey := cache.APIKeyHashKey(hash)

	var cached apiKeyCacheEntry
	if found, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && found {
		return &cached.Key, cached.UserUUID, nil
	}

	key, err := s.repo.GetActiveByHash(ctx, hash)
	if err != nil {
		return nil, "", errs.Wrap(errs.Database, err, "look up api key")
	}
	if key == nil {
		return nil, "", errs.AuthErr(errs.InvalidCredentials, "api key not found or inactive")
	}
	if key.ExpiresAt != nil && time.Now().After(*key.ExpiresAt) {
		return nil, "", errs.AuthErr(errs.TokenExpired, "api key expired")
	}

	_ = s.cache.Set(ctx, cacheKey, apiKeyCacheEntry{Key: *key, UserUUID: key.UserUUID}, s.ttl)

	// Best-effort: a failure here must not fail the request.
	_ = s.repo.TouchLastUsed(ctx, key.UUID, time.Now())

	return key, key.UserUUID, nil
}

// Revoke invalidates the cache entry synchronously with the caller's DB
// write (the DB write itself is the caller's responsibility).
func (s *APIKeyService) Revoke(ctx context.Context, plaintext string) error {
	return s.cache.Delete(ctx, cache.APIKeyHashKey(hashAPIKey(plaintext)))
}

// IdentityForAPIKey loads every role attached to the key and returns an
// Identity whose Permissions is the union across them, with any
// role.SuperAdmin short-circuiting to a super-admin identity.
func (s *APIKeyService) IdentityForAPIKey(ctx context.Context, key *APIKey, userUUID string) (Identity, error) {
	roles, err := s.repo.RolesFor(ctx, key.UUID)
	if err != nil {
		return Identity{}, errs.Wrap(errs.Database, err, "load api key roles")
	}

	ident := Identity{UserUUID: userUUID, Roles: roles}
	for _, r := range roles {
		if r.SuperAdmin {
			ident.SuperAdmin = true
		}
		ident.Permissions = append(ident.Permissions, r.Permissions...)
	}
	return ident, nil
}
