package auth

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// Password length limits. bcrypt silently truncates input past 72 bytes, so
// longer passwords are rejected rather than half-checked.
const (
	MinPasswordLength = 6
	maxPasswordBytes  = 72
)

var (
	ErrPasswordTooShort = fmt.Errorf("auth: password must be at least %d characters", MinPasswordLength)
	ErrPasswordTooLong  = fmt.Errorf("auth: password must be %d bytes or fewer", maxPasswordBytes)

	// ErrPasswordMismatch is returned by Verify for a wrong password.
	ErrPasswordMismatch = errors.New("auth: invalid password")
)

// defaultCost is the bcrypt work factor: ~250ms per hash on current hardware.
const defaultCost = 12

// PasswordService provides bcrypt hashing and verification. The cost is a
// field so tests can drop it to the bcrypt minimum.
type PasswordService struct {
	cost int
}

// NewPasswordService creates a PasswordService with the default cost.
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceForTest creates a PasswordService with a custom cost.
// Tests in other packages pass bcrypt.MinCost (4). Never use in production.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// CheckLength enforces the password length rules shared by sign-up,
// password change and password reset.
func CheckLength(plaintext string) error {
	if utf8.RuneCountInString(plaintext) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(plaintext) > maxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

// Hash hashes plaintext with bcrypt. The output embeds salt and cost:
//
//	$2a$12$<22-char salt><31-char hash>
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil if plaintext matches hash. The comparison is
// constant-time.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
