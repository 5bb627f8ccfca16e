package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2 parameters
const (
	argonTime    = 3         // Number of iterations
	argonMemory  = 64 * 1024 // Memory in KB (64 MB)
	argonThreads = 4         // Number of threads
	argonKeyLen  = 32        // Output key length in bytes
)

// HashPassword hashes a password using argon2id with the username as salt.
// Returns a base64-encoded hash suitable for storage.
func HashPassword(password, username string) string {
	salt := []byte(username)

	hash := argon2.IDKey(
		[]byte(password),
		salt,
		argonTime,
		argonMemory,
		argonThreads,
		argonKeyLen,
	)

	return base64.RawURLEncoding.EncodeToString(hash)
}

// VerifyPassword reports whether the password matches the stored hash.
// Comparison is constant-time.
func VerifyPassword(password, username, storedHash string) bool {
	computed := HashPassword(password, username)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// ValidatePasswordFormat validates password meets minimum requirements
func ValidatePasswordFormat(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	if len(password) > 128 {
		return fmt.Errorf("password must be at most 128 characters")
	}
	return nil
}

// ValidateUsernameFormat validates username meets requirements for use as salt
func ValidateUsernameFormat(username string) error {
	if len(username) < 3 {
		return fmt.Errorf("username must be at least 3 characters")
	}
	if len(username) > 20 {
		return fmt.Errorf("username must be at most 20 characters")
	}
	return nil
}
