package auth

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/user/entityflow/internal/core/errs"
)

// HashAdminPassword hashes an AdminUser's login password with bcrypt. This
// is distinct from the Argon2id hashing applied to entity fields of type
// Password (see internal/persistence/normalize.go): admin login
// credentials are not entity data.
func HashAdminPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", errs.Wrap(errs.Auth, err, "hash admin password")
	}
	return string(hash), nil
}

// CompareAdminPassword reports whether plaintext matches the stored bcrypt
// hash.
func CompareAdminPassword(hash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
