package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// ErrInvalidPassword is returned when a candidate does not match.
var ErrInvalidPassword = errors.New("invalid password")

const (
	passwordHashPrefix     = "pbkdf2$"
	passwordHashIterations = 210_000
	passwordHashSaltLength = 16
	passwordHashKeyLength  = 32
)

// HashPassword derives an encoded PBKDF2-SHA256 hash of the form
// pbkdf2$sha256$<iterations>$<salt>$<key>.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is required")
	}
	salt := make([]byte, passwordHashSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	derived := pbkdf2.Key([]byte(password), salt, passwordHashIterations, passwordHashKeyLength, sha256.New)
	return fmt.Sprintf("pbkdf2$sha256$%d$%s$%s",
		passwordHashIterations,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(derived),
	), nil
}

// IsPasswordHash reports whether s looks like a HashPassword result.
func IsPasswordHash(s string) bool {
	return strings.HasPrefix(s, passwordHashPrefix)
}

// CheckPassword compares candidate against configured, which is either an
// encoded hash or a plain password. Both paths compare in constant time.
func CheckPassword(configured, candidate string) error {
	if configured == "" {
		return ErrInvalidPassword
	}
	if IsPasswordHash(configured) {
		return VerifyPassword(configured, candidate)
	}
	if subtle.ConstantTimeCompare([]byte(configured), []byte(candidate)) != 1 {
		return ErrInvalidPassword
	}
	return nil
}

// VerifyPassword checks candidate against an encoded hash.
func VerifyPassword(encodedHash, candidate string) error {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 5 {
		return errors.New("verify password: invalid hash format")
	}
	if parts[0] != "pbkdf2" || parts[1] != "sha256" {
		return errors.New("verify password: unsupported hash identifier")
	}
	iterations, err := strconv.Atoi(parts[2])
	if err != nil || iterations <= 0 {
		return errors.New("verify password: invalid iteration count")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return fmt.Errorf("verify password: decode salt: %w", err)
	}
	storedKey, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("verify password: decode hash: %w", err)
	}
	derived := pbkdf2.Key([]byte(candidate), salt, iterations, len(storedKey), sha256.New)
	if subtle.ConstantTimeCompare(derived, storedKey) != 1 {
		return ErrInvalidPassword
	}
	return nil
}

// RandomToken returns n random bytes encoded as unpadded URL-safe base64.
func RandomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
