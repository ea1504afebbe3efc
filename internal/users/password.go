package users

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	PasswordIterations = 120000
	saltLength         = 16
	keyLength          = 32
)

// PasswordHash is a PBKDF2-SHA256 derived key with its parameters.
type PasswordHash struct {
	Hash       string
	Salt       string
	Iterations int
}

// HashPassword derives a fresh salted PBKDF2-SHA256 hash.
func HashPassword(password string) (PasswordHash, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return PasswordHash{}, fmt.Errorf("failed to generate salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, PasswordIterations, keyLength, sha256.New)
	return PasswordHash{
		Hash:       base64.StdEncoding.EncodeToString(key),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Iterations: PasswordIterations,
	}, nil
}

// VerifyPassword re-derives the key with the stored salt and iteration count
// and compares in constant time.
func VerifyPassword(password string, stored PasswordHash) bool {
	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return false
	}
	expected, err := base64.StdEncoding.DecodeString(stored.Hash)
	if err != nil || len(expected) == 0 {
		return false
	}
	iterations := stored.Iterations
	if iterations <= 0 {
		iterations = PasswordIterations
	}
	key := pbkdf2.Key([]byte(password), salt, iterations, len(expected), sha256.New)
	return subtle.ConstantTimeCompare(key, expected) == 1
}

// randomToken returns n random bytes, URL-safe encoded.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
