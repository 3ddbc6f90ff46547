package authutil

import (
	"strings"
	"testing"
)

// Test isValidEmail helper function

func TestIsValidEmail_Valid(t *testing.T) {
	validEmails := []string{
		"test@example.com",
		"user@domain.org",
		"name.surname@company.co.uk",
		"a@b.co",
	}

	for _, email := range validEmails {
		if !isValidEmail(email) {
			t.Errorf("expected %q to be valid", email)
		}
	}
}

func TestIsValidEmail_MissingAt(t *testing.T) {
	if isValidEmail("testexample.com") {
		t.Error("expected email without @ to be invalid")
	}
}

func TestIsValidEmail_MultipleAt(t *testing.T) {
	if isValidEmail("test@@example.com") {
		t.Error("expected email with multiple @ to be invalid")
	}
}

func TestIsValidEmail_EmptyLocalPart(t *testing.T) {
	if isValidEmail("@example.com") {
		t.Error("expected email with empty local part to be invalid")
	}
}

func TestIsValidEmail_NoDomainDot(t *testing.T) {
	if isValidEmail("test@example") {
		t.Error("expected email without domain dot to be invalid")
	}
}

func TestIsValidEmail_DotAtEnd(t *testing.T) {
	if isValidEmail("test@example.") {
		t.Error("expected email with dot at end to be invalid")
	}
}

func TestIsValidEmail_DotAtStart(t *testing.T) {
	if isValidEmail("test@.com") {
		t.Error("expected email with dot at start of domain to be invalid")
	}
}

func TestValidateEmail_Empty(t *testing.T) {
	if err := ValidateEmail(""); err != ErrEmailRequired {
		t.Errorf("expected ErrEmailRequired, got %v", err)
	}
}

func TestValidateEmail_Invalid(t *testing.T) {
	if err := ValidateEmail("not-an-email"); err != ErrInvalidEmail {
		t.Errorf("expected ErrInvalidEmail, got %v", err)
	}
}

// Test password validation

func TestValidatePassword_Valid(t *testing.T) {
	validPasswords := []string{
		"secure123",
		"MyP@ssw0rd",
		"abcdef1", // 7 chars, just above minimum
	}

	for _, pw := range validPasswords {
		if err := ValidatePassword(pw); err != nil {
			t.Errorf("expected %q to be valid, got error: %v", pw, err)
		}
	}
}

func TestValidatePassword_TooShort(t *testing.T) {
	shortPasswords := []string{
		"",
		"a",
		"ab",
		"abc",
		"abcd",
		"abcde", // 5 chars, below minimum of 6
	}

	for _, pw := range shortPasswords {
		err := ValidatePassword(pw)
		if err != ErrPasswordTooShort {
			t.Errorf("expected ErrPasswordTooShort for %q, got %v", pw, err)
		}
	}
}

func TestValidatePassword_TooLong(t *testing.T) {
	longPassword := strings.Repeat("a", 129)

	err := ValidatePassword(longPassword)
	if err != ErrPasswordTooLong {
		t.Errorf("expected ErrPasswordTooLong, got %v", err)
	}
}

func TestValidatePassword_AtMaxLength(t *testing.T) {
	maxPassword := strings.Repeat("a", 128)

	if err := ValidatePassword(maxPassword); err != nil {
		t.Errorf("expected password at max length to be valid, got %v", err)
	}
}

func TestValidatePassword_Common(t *testing.T) {
	commonPwds := []string{
		"123456",
		"password",
		"qwerty",
		"abc123",
		"iloveyou",
		"letmein",
		"football",
		"welcome",
	}

	for _, pw := range commonPwds {
		err := ValidatePassword(pw)
		if err != ErrPasswordCommon {
			t.Errorf("expected ErrPasswordCommon for %q, got %v", pw, err)
		}
	}
}

func TestValidatePassword_CommonCaseInsensitive(t *testing.T) {
	caseVariants := []string{
		"PASSWORD",
		"Password",
		"QWERTY",
		"Qwerty",
		"ILOVEYOU",
		"ILoveYou",
	}

	for _, pw := range caseVariants {
		err := ValidatePassword(pw)
		if err != ErrPasswordCommon {
			t.Errorf("expected ErrPasswordCommon for %q (case variant), got %v", pw, err)
		}
	}
}

// Test password hashing

func TestHashPassword_Valid(t *testing.T) {
	password := "SecurePassword123"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if hash == "" {
		t.Error("expected hash to be non-empty")
	}
	if hash == password {
		t.Error("hash should not equal plain password")
	}
	// bcrypt hashes start with $2a$ or $2b$
	if hash[0] != '$' {
		t.Error("expected bcrypt hash to start with $")
	}
}

func TestHashPassword_DifferentHashesForSamePassword(t *testing.T) {
	password := "SecurePassword123"

	hash1, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	hash2, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	// bcrypt uses random salt, so hashes should be different
	if hash1 == hash2 {
		t.Error("expected different hashes for same password (random salt)")
	}
}

// Test password checking

func TestCheckPassword_Correct(t *testing.T) {
	password := "SecurePassword123"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if !CheckPassword(password, hash) {
		t.Error("expected CheckPassword to return true for correct password")
	}
}

func TestCheckPassword_Incorrect(t *testing.T) {
	password := "SecurePassword123"
	wrongPassword := "WrongPassword456"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if CheckPassword(wrongPassword, hash) {
		t.Error("expected CheckPassword to return false for wrong password")
	}
}

func TestCheckPassword_EmptyPassword(t *testing.T) {
	password := "SecurePassword123"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if CheckPassword("", hash) {
		t.Error("expected CheckPassword to return false for empty password")
	}
}

func TestCheckPassword_InvalidHash(t *testing.T) {
	if CheckPassword("password", "not-a-valid-hash") {
		t.Error("expected CheckPassword to return false for invalid hash")
	}
}

// Test PasswordRules

func TestPasswordRules(t *testing.T) {
	rules := PasswordRules()
	if rules == "" {
		t.Error("expected PasswordRules to return non-empty string")
	}
	if !strings.Contains(rules, "6") {
		t.Error("expected PasswordRules to mention minimum length of 6")
	}
}
