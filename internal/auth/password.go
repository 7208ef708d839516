package auth

import (
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/rfpdesk/rfpdesk/internal/shared"
)

// Strength grades a password for the sign-up meter.
type Strength string

const (
	StrengthWeak   Strength = "weak"
	StrengthMedium Strength = "medium"
	StrengthStrong Strength = "strong"
)

// PasswordStrength scores length (8+, 12+) and character classes; a score of
// three or less is weak, five or less medium, otherwise strong.
func PasswordStrength(pw string) Strength {
	if pw == "" {
		return StrengthWeak
	}
	score := 0
	n := len([]rune(pw))
	if n >= 8 {
		score++
	}
	if n >= 12 {
		score++
	}
	var lower, upper, digit, other bool
	for _, r := range pw {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case unicode.IsDigit(r) && r < unicode.MaxASCII:
			digit = true
		default:
			other = true
		}
	}
	for _, ok := range []bool{lower, upper, digit, other} {
		if ok {
			score++
		}
	}
	switch {
	case score <= 3:
		return StrengthWeak
	case score <= 5:
		return StrengthMedium
	default:
		return StrengthStrong
	}
}

// CheckPasswordPolicy returns ErrWeakPassword when pw is not strong enough.
func CheckPasswordPolicy(pw string) error {
	if !shared.StrongPassword(pw) {
		return ErrWeakPassword
	}
	return nil
}

func hashPassword(pw string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func checkPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}
