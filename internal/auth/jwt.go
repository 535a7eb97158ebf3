package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/user/entityflow/internal/core/errs"
)

// TokenService issues and verifies access tokens using jwt.NewWithClaims
// with jwt.SigningMethodHS256 and a jwt.MapClaims payload.
type TokenService struct {
	secret     []byte
	issuer     string
	expiration time.Duration
}

func NewTokenService(secret, issuer string, expiration time.Duration) *TokenService {
	if expiration <= 0 {
		expiration = time.Hour
	}
	return &TokenService{secret: []byte(secret), issuer: issuer, expiration: expiration}
}

// Claims is the decoded, typed view of an access token's payload: sub, iss,
// name, email, permissions[], exp, iat, is_super_admin.
type Claims struct {
	Subject     string   `json:"sub"`
	Issuer      string   `json:"iss"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Permissions []string `json:"permissions"`
	IssuedAt    int64    `json:"iat"`
	ExpiresAt   int64    `json:"exp"`
	IsSuperAdmin bool    `json:"is_super_admin"`
}

// permissionStrings flattens Permission values into the "<namespace>:<action>"
// wire form carried in the JWT, including entities:/prefix:action shapes.
func permissionStrings(perms []Permission) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, fmt.Sprintf("%s:%s", p.ResourceType, p.PermissionType))
	}
	return out
}

// Generate signs a new access token for the given user.
func (s *TokenService) Generate(user AdminUser, permissions []Permission) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":            user.UUID,
		"iss":            s.issuer,
		"name":           strings.TrimSpace(user.FirstName + " " + user.LastName),
		"email":          user.Email,
		"permissions":    permissionStrings(permissions),
		"iat":            now.Unix(),
		"exp":            now.Add(s.expiration).Unix(),
		"is_super_admin": user.SuperAdmin,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", errs.AuthErr(errs.TokenGeneration, err.Error())
	}
	return signed, nil
}

// Verify parses and validates token, returning the typed claims.
func (s *TokenService) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errs.AuthErr(errs.TokenExpired, "access token expired")
		}
		return nil, errs.AuthErr(errs.TokenValidation, err.Error())
	}
	if !token.Valid {
		return nil, errs.AuthErr(errs.TokenValidation, "invalid token")
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errs.AuthErr(errs.TokenValidation, "unexpected claims type")
	}

	claims := &Claims{
		Subject:      stringClaim(mc, "sub"),
		Issuer:       stringClaim(mc, "iss"),
		Name:         stringClaim(mc, "name"),
		Email:        stringClaim(mc, "email"),
		IsSuperAdmin: boolClaim(mc, "is_super_admin"),
	}
	if exp, ok := mc["exp"].(float64); ok {
		claims.ExpiresAt = int64(exp)
	}
	if iat, ok := mc["iat"].(float64); ok {
		claims.IssuedAt = int64(iat)
	}
	if perms, ok := mc["permissions"].([]any); ok {
		for _, p := range perms {
			if s, ok := p.(string); ok {
				claims.Permissions = append(claims.Permissions, s)
			}
		}
	}

	return claims, nil
}

func stringClaim(mc jwt.MapClaims, key string) string {
	if v, ok := mc[key].(string); ok {
		return v
	}
	return ""
}

func boolClaim(mc jwt.MapClaims, key string) bool {
	if v, ok := mc[key].(bool); ok {
		return v
	}
	return false
}
