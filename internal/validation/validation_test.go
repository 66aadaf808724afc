package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{
			name:    "valid email",
			email:   "test@example.com",
			wantErr: false,
		},
		{
			name:    "valid email with subdomain",
			email:   "user@mail.example.com",
			wantErr: false,
		},
		{
			name:    "valid email with plus",
			email:   "user+tag@example.com",
			wantErr: false,
		},
		{
			name:    "missing @",
			email:   "testexample.com",
			wantErr: true,
		},
		{
			name:    "missing domain",
			email:   "test@",
			wantErr: true,
		},
		{
			name:    "missing local part",
			email:   "@example.com",
			wantErr: true,
		},
		{
			name:    "empty string",
			email:   "",
			wantErr: true,
		},
		{
			name:    "spaces in email",
			email:   "test @example.com",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEmail(%q) error = %v, wantErr %v", tt.email, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePin(t *testing.T) {
	tests := []struct {
		name    string
		pin     string
		wantErr bool
	}{
		{name: "four digits", pin: "1234", wantErr: false},
		{name: "leading zeros", pin: "0007", wantErr: false},
		{name: "too short", pin: "123", wantErr: true},
		{name: "too long", pin: "12345", wantErr: true},
		{name: "six digits from old signup form", pin: "123456", wantErr: true},
		{name: "letters", pin: "12a4", wantErr: true},
		{name: "full-width digits", pin: "１２３４", wantErr: true},
		{name: "empty", pin: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePin(tt.pin)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePin(%q) error = %v, wantErr %v", tt.pin, err, tt.wantErr)
			}
		})
	}
}

func TestValidateTitle(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid title", input: "Eat an apple a day", wantErr: false},
		{name: "empty", input: "", wantErr: true},
		{name: "whitespace only", input: "   ", wantErr: true},
		{name: "max length", input: strings.Repeat("a", MaxTitleLength), wantErr: false},
		{name: "too long", input: strings.Repeat("a", MaxTitleLength+1), wantErr: true},
		{name: "multibyte counts runes", input: strings.Repeat("칭", MaxTitleLength), wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTitle(NormalizeTitle(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTitle(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeTitleComposes(t *testing.T) {
	decomposed := "cafe\u0301"
	if got := NormalizeTitle("  " + decomposed + " "); got != "caf\u00e9" {
		t.Errorf("NormalizeTitle() = %q, want composed form", got)
	}
}

func TestValidateTotalSlots(t *testing.T) {
	tests := []struct {
		slots   int
		wantErr bool
	}{
		{slots: -1, wantErr: true},
		{slots: 0, wantErr: true},
		{slots: 1, wantErr: false},
		{slots: 20, wantErr: false},
		{slots: MaxTotalSlots, wantErr: false},
		{slots: MaxTotalSlots + 1, wantErr: true},
	}

	for _, tt := range tests {
		err := ValidateTotalSlots(tt.slots)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateTotalSlots(%d) error = %v, wantErr %v", tt.slots, err, tt.wantErr)
		}
	}
}

func TestPasswordStrength(t *testing.T) {
	tests := []struct {
		name     string
		password string
		strong   bool
	}{
		{name: "exactly six", password: "abc123", strong: true},
		{name: "five", password: "abc12", strong: false},
		{name: "long", password: "thisIsAVeryLongPasswordThatShouldBeValid123", strong: true},
		{name: "empty", password: "", strong: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsStrongPassword(tt.password); got != tt.strong {
				t.Errorf("IsStrongPassword(%q) = %v, want %v", tt.password, got, tt.strong)
			}
		})
	}

	if err := ValidatePassword(""); err == nil {
		t.Error("ValidatePassword(\"\") should fail")
	}
}

func TestValidationErrorMatchesSentinel(t *testing.T) {
	err := ValidatePin("12")
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("errors.Is(%v, ErrInvalid) = false", err)
	}
	var ve ValidationError
	if !errors.As(err, &ve) || ve.Field != "pin" {
		t.Fatalf("expected pin ValidationError, got %#v", err)
	}
}
