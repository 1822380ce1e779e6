package application

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	// ErrPasswordHashMalformed reports a stored hash that is not in the
	// standard argon2id encoded form.
	ErrPasswordHashMalformed = errors.New("malformed password hash")
	// ErrPasswordHashVersion reports a hash produced by an argon2 version
	// this build cannot verify.
	ErrPasswordHashVersion = errors.New("unsupported argon2 version")
)

// Argon2idParams are the argon2id cost parameters recorded inside every
// encoded hash.
type Argon2idParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2idParams is used when hashing the dashboard password given as
// plain text. Verification always follows the parameters encoded in the
// stored hash, so these can change without invalidating old hashes.
var DefaultArgon2idParams = Argon2idParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// CreatePasswordHash derives an argon2id hash of password and returns it in
// the standard encoded form "$argon2id$v=19$m=..,t=..,p=..$salt$hash", the
// same form accepted for DASHBOARD_PASSWORD_HASH.
func CreatePasswordHash(password string, params Argon2idParams) (string, error) {
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		params.Memory, params.Iterations, params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword re-derives the hash of password with the parameters encoded
// in hashedPassword and compares in constant time. A mismatch returns
// ErrInvalidCredentials.
func VerifyPassword(hashedPassword, password string) error {
	params, salt, key, err := parseArgon2idHash(hashedPassword)
	if err != nil {
		return err
	}

	candidate := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)
	if subtle.ConstantTimeCompare(key, candidate) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

func parseArgon2idHash(encoded string) (Argon2idParams, []byte, []byte, error) {
	var params Argon2idParams

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return params, nil, nil, ErrPasswordHashMalformed
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return params, nil, nil, fmt.Errorf("%w: %v", ErrPasswordHashMalformed, err)
	}
	if version != argon2.Version {
		return params, nil, nil, ErrPasswordHashVersion
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return params, nil, nil, fmt.Errorf("%w: %v", ErrPasswordHashMalformed, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return params, nil, nil, fmt.Errorf("%w: %v", ErrPasswordHashMalformed, err)
	}
	params.SaltLength = uint32(len(salt))

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return params, nil, nil, fmt.Errorf("%w: %v", ErrPasswordHashMalformed, err)
	}
	params.KeyLength = uint32(len(key))

	return params, salt, key, nil
}
