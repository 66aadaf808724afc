package service

import (
	"context"
	"sync"

	"stickerboard/internal/validation"
)

// VerifyFunc checks a complete PIN.
type VerifyFunc func(ctx context.Context, pin string) (PinResult, error)

// PadState is what the PIN pad shows after an input.
type PadState struct {
	Entered  int
	Verified bool      // a verification ran for this input
	Result   PinResult // meaningful only when Verified
}

// PinPad collects PIN digits one at a time and verifies automatically once
// the fourth digit is entered. Digits are cleared after every verification.
type PinPad struct {
	verify VerifyFunc

	mu      sync.Mutex
	digits  []byte
	pending bool
}

// NewPinPad creates a new, empty PIN pad
func NewPinPad(verify VerifyFunc) *PinPad {
	return &PinPad{verify: verify, digits: make([]byte, 0, validation.PinLength)}
}

// Press enters one digit. While a verification is outstanding further
// digits fail with ErrVerificationPending.
func (p *PinPad) Press(ctx context.Context, digit rune) (PadState, error) {
	if digit < '0' || digit > '9' {
		return PadState{Entered: p.Entered()}, validation.ValidationError{Field: "pin", Message: "pin must contain only digits"}
	}

	p.mu.Lock()
	if p.pending {
		p.mu.Unlock()
		return PadState{}, ErrVerificationPending
	}
	p.digits = append(p.digits, byte(digit))
	if len(p.digits) < validation.PinLength {
		n := len(p.digits)
		p.mu.Unlock()
		return PadState{Entered: n}, nil
	}
	pin := string(p.digits)
	p.pending = true
	p.mu.Unlock()

	result, err := p.verify(ctx, pin)

	p.mu.Lock()
	p.digits = p.digits[:0]
	p.pending = false
	p.mu.Unlock()

	if err != nil {
		return PadState{}, err
	}
	return PadState{Verified: true, Result: result}, nil
}

// Delete removes the last entered digit, if any, and returns the new count.
// It is accepted while a verification is outstanding; the PIN already sent
// for verification is unaffected.
func (p *PinPad) Delete() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.digits) > 0 {
		p.digits = p.digits[:len(p.digits)-1]
	}
	return len(p.digits)
}

// Entered returns how many digits are currently entered
func (p *PinPad) Entered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.digits)
}

// Pending reports whether a verification is outstanding
func (p *PinPad) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}
