package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	PinLength         = 4
	MinPasswordLength = 6
	MaxTitleLength    = 100
	MaxTotalSlots     = 1000
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ErrInvalid is matched by every ValidationError via errors.Is.
var ErrInvalid = errors.New("validation failed")

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

// NormalizeTitle trims surrounding space and applies NFC so visually equal titles compare equal.
func NormalizeTitle(title string) string {
	return norm.NFC.String(strings.TrimSpace(title))
}

// ValidateTitle checks an already normalized board title
func ValidateTitle(title string) error {
	if title == "" {
		return ValidationError{Field: "title", Message: "title is required"}
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return ValidationError{Field: "title", Message: fmt.Sprintf("title must be at most %d characters", MaxTitleLength)}
	}
	return nil
}

// ValidateTotalSlots checks a board's target count
func ValidateTotalSlots(totalSlots int) error {
	if totalSlots <= 0 {
		return ValidationError{Field: "totalSlots", Message: "total slots must be positive"}
	}
	if totalSlots > MaxTotalSlots {
		return ValidationError{Field: "totalSlots", Message: fmt.Sprintf("total slots must be at most %d", MaxTotalSlots)}
	}
	return nil
}

// ValidatePin checks that a parent PIN is exactly four ASCII digits
func ValidatePin(pin string) error {
	if len(pin) != PinLength {
		return ValidationError{Field: "pin", Message: fmt.Sprintf("pin must be exactly %d digits", PinLength)}
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return ValidationError{Field: "pin", Message: "pin must contain only digits"}
		}
	}
	return nil
}

// ValidateEmail checks if an email address is valid
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ValidationError{Field: "email", Message: "email is required"}
	}
	if !emailRegex.MatchString(email) {
		return ValidationError{Field: "email", Message: "invalid email format"}
	}
	return nil
}

// ValidatePassword checks if a password meets the minimum strength policy.
// Strength failures are reported by the identity provider as weak credentials;
// this only covers presence.
func ValidatePassword(password string) error {
	if password == "" {
		return ValidationError{Field: "password", Message: "password is required"}
	}
	return nil
}

// IsStrongPassword reports whether password satisfies the minimum length policy.
func IsStrongPassword(password string) bool {
	return utf8.RuneCountInString(password) >= MinPasswordLength
}
