package auth

import (
	"context"
	"strings"
)

// Authenticator composes JWT verification and API-key validation into a
// fixed extraction order. The HTTP boundary that calls this is out of scope
// for this core; this is the pure decision logic such a boundary would call.
type Authenticator struct {
	Tokens  *TokenService
	APIKeys *APIKeyService
}

// RequestCredentials carries the raw credential material an external HTTP
// layer would extract from headers before calling Extract.
type RequestCredentials struct {
	AuthorizationHeader string // "Bearer <token>"
	APIKeyHeader        string // X-API-Key value
	PreSharedKey        string // from a collaborator-provided value
	ExpectedPreSharedKey string
}

// Extract resolves an Identity from request credentials following the
// order: JWT -> API key -> pre-shared key. Returns ok=false if none
// succeed, leaving the decision of whether anonymous access is acceptable
// to the caller.
func (a *Authenticator) Extract(ctx context.Context, creds RequestCredentials) (Identity, bool) {
	if bearer, ok := strings.CutPrefix(creds.AuthorizationHeader, "Bearer "); ok && bearer != "" {
		if claims, err := a.Tokens.Verify(bearer); err == nil {
			return Identity{
				UserUUID:    claims.Subject,
				Name:        claims.Name,
				Email:       claims.Email,
				SuperAdmin:  claims.IsSuperAdmin,
				Permissions: permissionsFromClaims(claims.Permissions),
			}, true
		}
	}

	if creds.APIKeyHeader != "" && a.APIKeys != nil {
		key, userUUID, err := a.APIKeys.Validate(ctx, creds.APIKeyHeader)
		if err == nil {
			ident, err := a.APIKeys.IdentityForAPIKey(ctx, key, userUUID)
			if err == nil {
				return ident, true
			}
		}
	}

	if creds.PreSharedKey != "" && creds.ExpectedPreSharedKey != "" && creds.PreSharedKey == creds.ExpectedPreSharedKey {
		return Identity{SuperAdmin: false}, true
	}

	return Identity{}, false
}

// permissionsFromClaims reconstructs coarse Permission values from the
// "<namespace>:<action>" wire strings a JWT carries. Path-scoped grants
// ("entities:/prefix:action") round-trip through this split unchanged.
func permissionsFromClaims(perms []string) []Permission {
	out := make([]Permission, 0, len(perms))
	for _, p := range perms {
		idx := strings.Index(p, ":")
		if idx < 0 {
			continue
		}
		out = append(out, Permission{ResourceType: p[:idx], PermissionType: p[idx+1:]})
	}
	return out
}
