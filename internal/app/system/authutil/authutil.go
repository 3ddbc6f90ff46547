// Package authutil provides password hashing and credential validation
// helpers shared by signup and login.
package authutil

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength is the minimum accepted password length.
	MinPasswordLength = 6

	// MaxPasswordLength caps input to bcrypt's 72-byte limit with headroom
	// removed; anything longer is rejected up front.
	MaxPasswordLength = 128
)

var (
	ErrPasswordTooShort = errors.New("password is too short")
	ErrPasswordTooLong  = errors.New("password is too long")
	ErrPasswordCommon   = errors.New("password is too common")
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrEmailRequired    = errors.New("email is required")
)

// commonPasswords is a small denylist of passwords seen at the top of
// every breach corpus. Checked case-insensitively.
var commonPasswords = map[string]bool{
	"123456":    true,
	"12345678":  true,
	"password":  true,
	"qwerty":    true,
	"abc123":    true,
	"iloveyou":  true,
	"letmein":   true,
	"football":  true,
	"welcome":   true,
	"monkey":    true,
	"dragon":    true,
	"sunshine":  true,
	"princess":  true,
	"trustno1":  true,
	"111111":    true,
	"123456789": true,
}

// ValidatePassword checks length bounds and the common-password denylist.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	if commonPasswords[strings.ToLower(password)] {
		return ErrPasswordCommon
	}
	return nil
}

// PasswordRules returns a human-readable description of the password
// requirements, suitable for API error messages.
func PasswordRules() string {
	return fmt.Sprintf("Passwords must be %d to %d characters and not a commonly used password.",
		MinPasswordLength, MaxPasswordLength)
}

// HashPassword returns the bcrypt hash of password at the default cost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidateEmail checks that email looks like a deliverable address.
// It is a structural check, not a full RFC 5322 parse.
func ValidateEmail(email string) error {
	if email == "" {
		return ErrEmailRequired
	}
	if !isValidEmail(email) {
		return ErrInvalidEmail
	}
	return nil
}

func isValidEmail(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 || at != strings.LastIndex(email, "@") {
		return false
	}
	domain := email[at+1:]
	dot := strings.LastIndex(domain, ".")
	if dot <= 0 || dot == len(domain)-1 {
		return false
	}
	if strings.HasPrefix(domain, ".") {
		return false
	}
	return true
}
