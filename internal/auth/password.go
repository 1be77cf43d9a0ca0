package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// minPasswordLength is the policy floor for new passwords.
const minPasswordLength = 8

// fallbackHash is verified against when the identifier is unknown, so a
// miss costs the same as a wrong password. The plaintext behind it is
// random and discarded.
var fallbackHash = func() string {
	h, err := bcrypt.GenerateFromPassword([]byte(newSecret()), bcrypt.DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("auth: init fallback hash: %v", err))
	}
	return string(h)
}()

// HashPassword returns the bcrypt hash to store for a password.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// VerifyPassword reports whether password matches the stored hash.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// VerifyDummy burns one bcrypt comparison against the fallback hash.
// Called on unknown identifiers to keep response timing uniform.
func VerifyDummy(password string) {
	_ = bcrypt.CompareHashAndPassword([]byte(fallbackHash), []byte(password))
}

// CheckPasswordPolicy validates a candidate password.
func CheckPasswordPolicy(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return ErrPasswordPolicy
	}
	return nil
}

// newSecret returns a 256-bit random value in unpadded base64url form,
// used for authorization codes and registration tokens.
func newSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("auth: read entropy: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
