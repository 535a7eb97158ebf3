package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/user/entityflow/internal/cache"
)

type fakeAPIKeyRepo struct {
	byHash    map[string]*APIKey
	touched   []string
	rolesByID map[string][]Role
}

func (f *fakeAPIKeyRepo) GetActiveByHash(ctx context.Context, hash string) (*APIKey, error) {
	return f.byHash[hash], nil
}
func (f *fakeAPIKeyRepo) TouchLastUsed(ctx context.Context, uuid string, when time.Time) error {
	f.touched = append(f.touched, uuid)
	return nil
}
func (f *fakeAPIKeyRepo) RolesFor(ctx context.Context, apiKeyUUID string) ([]Role, error) {
	return f.rolesByID[apiKeyUUID], nil
}

func newTestAPIKeyCache(t *testing.T) *cache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c, err := cache.New(16, rdb, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestAPIKeyService_ValidateMissThenHit(t *testing.T) {
	plaintext := "sk_live_abc123"
	hash := hashAPIKey(plaintext)
	repo := &fakeAPIKeyRepo{byHash: map[string]*APIKey{
		hash: {UUID: "key-1", UserUUID: "user-1", IsActive: true},
	}}
	svc := NewAPIKeyService(repo, newTestAPIKeyCache(t), time.Minute)
	ctx := context.Background()

	key, userUUID, err := svc.Validate(ctx, plaintext)
	require.NoError(t, err)
	require.Equal(t, "key-1", key.UUID)
	require.Equal(t, "user-1", userUUID)
	require.Len(t, repo.touched, 1, "cache miss should touch last_used_at")

	_, _, err = svc.Validate(ctx, plaintext)
	require.NoError(t, err)
	require.Len(t, repo.touched, 1, "cache hit must skip touching last_used_at")
}

func TestAPIKeyService_UnknownKeyRejected(t *testing.T) {
	repo := &fakeAPIKeyRepo{byHash: map[string]*APIKey{}}
	svc := NewAPIKeyService(repo, newTestAPIKeyCache(t), time.Minute)

	_, _, err := svc.Validate(context.Background(), "nope")
	require.Error(t, err)
}

func TestAPIKeyService_IdentityUnionsRolePermissions(t *testing.T) {
	repo := &fakeAPIKeyRepo{
		byHash: map[string]*APIKey{},
		rolesByID: map[string][]Role{
			"key-1": {
				{Name: "reader", Permissions: []Permission{{ResourceType: "entities", PermissionType: "/billing:read"}}},
				{Name: "writer", SuperAdmin: true},
			},
		},
	}
	svc := NewAPIKeyService(repo, newTestAPIKeyCache(t), time.Minute)

	ident, err := svc.IdentityForAPIKey(context.Background(), &APIKey{UUID: "key-1"}, "user-1")
	require.NoError(t, err)
	require.True(t, ident.SuperAdmin, "any role with super_admin should short-circuit")
	require.Len(t, ident.Permissions, 1)
}
