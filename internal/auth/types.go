// Package auth implements JWT + API-key authentication and role-merged,
// path-scoped permission evaluation.
package auth

import "time"

// AdminUser is a platform operator account.
type AdminUser struct {
	UUID                string
	Username            string
	Email                string
	PasswordHash         string
	FirstName            string
	LastName             string
	IsActive             bool
	IsAdmin              bool
	SuperAdmin           bool
	Role                 string
	FailedLoginAttempts  int
	LastLogin            *time.Time
}

// APIKey is a service credential. Only KeyHash is ever persisted; the
// plaintext is returned once, at creation time.
type APIKey struct {
	UUID        string
	UserUUID    string
	KeyHash     string
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	ExpiresAt   *time.Time
	LastUsedAt  *time.Time
	Roles       []string
}

// RefreshToken tracks a rotatable, revocable session credential. Only
// TokenHash is persisted.
type RefreshToken struct {
	ID           string
	UserID       string
	TokenHash    string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	LastUsedAt   *time.Time
	IsRevoked    bool
	DeviceInfo   string
}

// AccessLevel controls whether a Permission applies to all resources of its
// type or only a specific set.
type AccessLevel string

const (
	AccessAll      AccessLevel = "all"
	AccessSpecific AccessLevel = "specific"
)

// Permission grants a permission_type action within a resource_type
// namespace, optionally scoped to specific resource UUIDs or constraints.
type Permission struct {
	ResourceType   string // namespace, e.g. "entities"
	PermissionType string // action, e.g. "read", "admin", or "/billing:read"
	AccessLevel    AccessLevel
	ResourceUUIDs  []string
	Constraints    map[string]any
}

// Role owns a set of permissions; SuperAdmin short-circuits every check.
type Role struct {
	UUID        string
	Name        string
	SuperAdmin  bool
	Permissions []Permission
}

// PermissionScheme is a named, reusable grouping of role->permissions.
type PermissionScheme struct {
	UUID  string
	Name  string
	Roles []Role
}

// Identity is the resolved principal attached to a request once
// authentication succeeds.
type Identity struct {
	UserUUID   string
	Name       string
	Email      string
	SuperAdmin bool
	Roles      []Role
	// Permissions is the flattened, already-unioned set effective for this
	// identity (a single user's roles, or an API key's roles' union).
	Permissions []Permission
}
