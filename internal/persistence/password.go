package persistence

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/user/entityflow/internal/core/errs"
)

// argon2Params are the password-hashing cost parameters, sized comparably
// to internal/auth's bcrypt usage and translated to Argon2id's knobs
// (time/memory/parallelism) rather than bcrypt's single cost factor, since
// field-level Password values require Argon2id specifically.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
	argon2SaltLen = 16
)

// hashPasswordIfSet hashes a non-empty Password field value with Argon2id
// under a fresh random salt; an empty string is left unchanged (step 3 of
// the normalisation pipeline).
func hashPasswordIfSet(val any) (any, error) {
	s, ok := val.(string)
	if !ok {
		return nil, errs.New(errs.Validation, "password field must be a string")
	}
	if s == "" {
		return s, nil
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, errs.Wrap(errs.Conversion, err, "generate password salt")
	}

	hash := argon2.IDKey([]byte(s), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argon2Memory, argon2Time, argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)
	return encoded, nil
}

// VerifyPassword checks plaintext against an Argon2id-encoded hash produced
// by hashPasswordIfSet.
func VerifyPassword(encoded, plaintext string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, errs.New(errs.Conversion, "malformed argon2id hash")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, errs.Wrap(errs.Conversion, err, "parse argon2id version")
	}

	var memory uint32
	var time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, errs.Wrap(errs.Conversion, err, "parse argon2id params")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, errs.Wrap(errs.Conversion, err, "decode argon2id salt")
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, errs.Wrap(errs.Conversion, err, "decode argon2id hash")
	}

	got := argon2.IDKey([]byte(plaintext), salt, time, memory, threads, uint32(len(want)))
	if len(got) != len(want) {
		return false, nil
	}
	var diff byte
	for i := range got {
		diff |= got[i] ^ want[i]
	}
	return diff == 0, nil
}
