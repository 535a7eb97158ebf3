package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/user/entityflow/internal/core/errs"
	dblib "github.com/user/entityflow/internal/db"
)

// AdminUserRepository persists the operator accounts that log in and are
// issued JWTs; the login flow itself (HTTP glue) is out of scope here.
type AdminUserRepository struct {
	DB *dblib.DB
}

func NewAdminUserRepository(db *dblib.DB) *AdminUserRepository { return &AdminUserRepository{DB: db} }

const adminUserColumns = `uuid, username, email, password_hash, first_name, last_name,
	is_active, is_admin, super_admin, role, failed_login_attempts, last_login`

func (r *AdminUserRepository) Create(ctx context.Context, u *AdminUser) error {
	if u.UUID == "" {
		u.UUID = uuid.NewString()
	}
	stmt := `INSERT INTO admin_users (` + adminUserColumns + `)
		VALUES (` + r.DB.Placeholders(12) + `)`
	_, err := r.DB.Conn.ExecContext(ctx, stmt,
		u.UUID, u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName,
		u.IsActive, u.IsAdmin, u.SuperAdmin, u.Role, u.FailedLoginAttempts, u.LastLogin)
	if err != nil {
		if dblib.IsUniqueViolation(err) {
			return errs.Field(errs.Conflict, "username", "username or email already exists")
		}
		return errs.Wrap(errs.Database, err, "insert admin user")
	}
	return nil
}

func (r *AdminUserRepository) scanOne(row *sql.Row) (*AdminUser, error) {
	var u AdminUser
	var lastLogin sql.NullTime
	err := row.Scan(&u.UUID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.IsActive, &u.IsAdmin, &u.SuperAdmin, &u.Role, &u.FailedLoginAttempts, &lastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "admin user not found")
		}
		return nil, errs.Wrap(errs.Database, err, "scan admin user")
	}
	if lastLogin.Valid {
		u.LastLogin = &lastLogin.Time
	}
	return &u, nil
}

func (r *AdminUserRepository) GetByUUID(ctx context.Context, id string) (*AdminUser, error) {
	row := r.DB.Conn.QueryRowContext(ctx,
		"SELECT "+adminUserColumns+" FROM admin_users WHERE uuid = "+r.DB.Placeholder(1), id)
	return r.scanOne(row)
}

func (r *AdminUserRepository) GetByUsername(ctx context.Context, username string) (*AdminUser, error) {
	row := r.DB.Conn.QueryRowContext(ctx,
		"SELECT "+adminUserColumns+" FROM admin_users WHERE username = "+r.DB.Placeholder(1), username)
	return r.scanOne(row)
}

// UpdateLastLogin resets the failed-login counter and stamps last_login.
func (r *AdminUserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.DB.Conn.ExecContext(ctx,
		`UPDATE admin_users SET last_login = `+r.DB.Placeholder(1)+`, failed_login_attempts = 0
		 WHERE uuid = `+r.DB.Placeholder(2), at, id)
	if err != nil {
		return errs.Wrap(errs.Database, err, "update admin user last login")
	}
	return nil
}

// UpdatePasswordHash overwrites id's stored bcrypt hash.
func (r *AdminUserRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	res, err := r.DB.Conn.ExecContext(ctx,
		"UPDATE admin_users SET password_hash = "+r.DB.Placeholder(1)+" WHERE uuid = "+r.DB.Placeholder(2),
		hash, id)
	if err != nil {
		return errs.Wrap(errs.Database, err, "update admin user password hash")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.New(errs.NotFound, "admin user not found")
	}
	return nil
}

// IncrementFailedLoginAttempts bumps the counter and returns its new value.
func (r *AdminUserRepository) IncrementFailedLoginAttempts(ctx context.Context, id string) (int, error) {
	row := r.DB.Conn.QueryRowContext(ctx,
		`UPDATE admin_users SET failed_login_attempts = failed_login_attempts + 1
		 WHERE uuid = `+r.DB.Placeholder(1)+` RETURNING failed_login_attempts`, id)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, errs.Wrap(errs.Database, err, "increment failed login attempts")
	}
	return n, nil
}

// APIKeyPostgresRepository implements APIKeyRepository against api_keys and
// a role-grant join table.
type APIKeyPostgresRepository struct {
	DB *dblib.DB
}

func NewAPIKeyPostgresRepository(db *dblib.DB) *APIKeyPostgresRepository {
	return &APIKeyPostgresRepository{DB: db}
}

func (r *APIKeyPostgresRepository) GetActiveByHash(ctx context.Context, hash string) (*APIKey, error) {
	row := r.DB.Conn.QueryRowContext(ctx,
		`SELECT uuid, user_uuid, key_hash, name, description, is_active, created_at, expires_at, last_used_at
		 FROM api_keys WHERE key_hash = `+r.DB.Placeholder(1)+` AND is_active`, hash)

	var k APIKey
	var expiresAt, lastUsedAt sql.NullTime
	err := row.Scan(&k.UUID, &k.UserUUID, &k.KeyHash, &k.Name, &k.Description,
		&k.IsActive, &k.CreatedAt, &expiresAt, &lastUsedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.Database, err, "look up active api key")
	}
	if expiresAt.Valid {
		k.ExpiresAt = &expiresAt.Time
	}
	if lastUsedAt.Valid {
		k.LastUsedAt = &lastUsedAt.Time
	}
	return &k, nil
}

func (r *APIKeyPostgresRepository) TouchLastUsed(ctx context.Context, uuidStr string, when time.Time) error {
	_, err := r.DB.Conn.ExecContext(ctx,
		"UPDATE api_keys SET last_used_at = "+r.DB.Placeholder(1)+" WHERE uuid = "+r.DB.Placeholder(2),
		when, uuidStr)
	if err != nil {
		return errs.Wrap(errs.Database, err, "touch api key last_used_at")
	}
	return nil
}

// RolesFor reads the roles granted to apiKeyUUID, each with its permission
// set, via a role-grant join table plus a JSONB permissions column.
func (r *APIKeyPostgresRepository) RolesFor(ctx context.Context, apiKeyUUID string) ([]Role, error) {
	rows, err := r.DB.Conn.QueryContext(ctx,
		`SELECT r.uuid, r.name, r.super_admin, r.permissions
		 FROM roles r
		 JOIN api_key_roles akr ON akr.role_uuid = r.uuid
		 WHERE akr.api_key_uuid = `+r.DB.Placeholder(1), apiKeyUUID)
	if err != nil {
		return nil, errs.Wrap(errs.Database, err, "list roles for api key")
	}
	defer rows.Close()

	var out []Role
	for rows.Next() {
		var role Role
		var permsJSON []byte
		if err := rows.Scan(&role.UUID, &role.Name, &role.SuperAdmin, &permsJSON); err != nil {
			return nil, errs.Wrap(errs.Database, err, "scan role")
		}
		if len(permsJSON) > 0 {
			if err := json.Unmarshal(permsJSON, &role.Permissions); err != nil {
				return nil, errs.Wrap(errs.Conversion, err, "unmarshal role permissions")
			}
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// RefreshTokenPostgresRepository implements RefreshTokenRepository against
// refresh_tokens.
type RefreshTokenPostgresRepository struct {
	DB *dblib.DB
}

func NewRefreshTokenPostgresRepository(db *dblib.DB) *RefreshTokenPostgresRepository {
	return &RefreshTokenPostgresRepository{DB: db}
}

func (r *RefreshTokenPostgresRepository) Create(ctx context.Context, t RefreshToken) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	stmt := `INSERT INTO refresh_tokens
		(id, user_id, token_hash, expires_at, created_at, is_revoked, device_info)
		VALUES (` + r.DB.Placeholders(7) + `)`
	_, err := r.DB.Conn.ExecContext(ctx, stmt,
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.CreatedAt, t.IsRevoked, t.DeviceInfo)
	if err != nil {
		return errs.Wrap(errs.Database, err, "insert refresh token")
	}
	return nil
}

func (r *RefreshTokenPostgresRepository) GetByHash(ctx context.Context, hash string) (*RefreshToken, error) {
	row := r.DB.Conn.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, created_at, last_used_at, is_revoked, device_info
		 FROM refresh_tokens WHERE token_hash = `+r.DB.Placeholder(1), hash)

	var t RefreshToken
	var lastUsedAt sql.NullTime
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt,
		&lastUsedAt, &t.IsRevoked, &t.DeviceInfo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.Database, err, "look up refresh token")
	}
	if lastUsedAt.Valid {
		t.LastUsedAt = &lastUsedAt.Time
	}
	return &t, nil
}

func (r *RefreshTokenPostgresRepository) Revoke(ctx context.Context, id string) error {
	_, err := r.DB.Conn.ExecContext(ctx,
		"UPDATE refresh_tokens SET is_revoked = true WHERE id = "+r.DB.Placeholder(1), id)
	if err != nil {
		return errs.Wrap(errs.Database, err, "revoke refresh token")
	}
	return nil
}

// DeleteExpiredOrRevoked deletes every row past its expiry or already
// revoked, returning the count removed; driven by the maintenance scheduler.
func (r *RefreshTokenPostgresRepository) DeleteExpiredOrRevoked(ctx context.Context) (int64, error) {
	res, err := r.DB.Conn.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE is_revoked OR expires_at < "+r.DB.Placeholder(1), time.Now())
	if err != nil {
		return 0, errs.Wrap(errs.Database, err, "delete expired or revoked refresh tokens")
	}
	n, _ := res.RowsAffected()
	return n, nil
}
