package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/user/entityflow/internal/core/errs"
)

// RefreshTokenRepository persists refresh tokens, one repository per
// aggregate.
type RefreshTokenRepository interface {
	Create(ctx context.Context, t RefreshToken) error
	GetByHash(ctx context.Context, hash string) (*RefreshToken, error)
	Revoke(ctx context.Context, id string) error
	DeleteExpiredOrRevoked(ctx context.Context) (int64, error)
}

// hashToken deterministically hashes a refresh-token plaintext. Using
// sha256 for this (rather than a random-salted hash) is required so lookups
// can match on hash without scanning every stored row.
func hashToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// GenerateRefreshToken creates a new 256-bit random refresh token, stores
// only its hash, and returns the plaintext (shown to the caller once).
func GenerateRefreshToken(ctx context.Context, repo RefreshTokenRepository, userID string, ttl time.Duration, deviceInfo string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errs.AuthErr(errs.TokenGeneration, err.Error())
	}
	plaintext := base64.RawURLEncoding.EncodeToString(buf)

	now := time.Now()
	if err := repo.Create(ctx, RefreshToken{
		UserID:     userID,
		TokenHash:  hashToken(plaintext),
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
		DeviceInfo: deviceInfo,
	}); err != nil {
		return "", errs.Wrap(errs.Database, err, "persist refresh token")
	}

	return plaintext, nil
}

// RotateRefreshToken validates plaintext against the stored hash, revokes
// the old token, and issues a new one (rotation-on-refresh).
func RotateRefreshToken(ctx context.Context, repo RefreshTokenRepository, plaintext string, ttl time.Duration) (string, string, error) {
	existing, err := repo.GetByHash(ctx, hashToken(plaintext))
	if err != nil {
		return "", "", err
	}
	if existing == nil || existing.IsRevoked {
		return "", "", errs.AuthErr(errs.InvalidCredentials, "refresh token revoked or unknown")
	}
	if time.Now().After(existing.ExpiresAt) {
		return "", "", errs.AuthErr(errs.TokenExpired, "refresh token expired")
	}

	if err := repo.Revoke(ctx, existing.ID); err != nil {
		return "", "", errs.Wrap(errs.Database, err, "revoke rotated refresh token")
	}

	next, err := GenerateRefreshToken(ctx, repo, existing.UserID, ttl, existing.DeviceInfo)
	if err != nil {
		return "", "", err
	}
	return existing.UserID, next, nil
}

// CleanupRefreshTokens is a scheduled maintenance job: delete expired or
// revoked rows, the same treatment as the version/run-log purgers.
func CleanupRefreshTokens(ctx context.Context, repo RefreshTokenRepository) (int64, error) {
	n, err := repo.DeleteExpiredOrRevoked(ctx)
	if err != nil {
		return 0, errs.Wrap(errs.Database, err, "cleanup refresh tokens")
	}
	return n, nil
}
