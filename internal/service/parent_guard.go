package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"stickerboard/internal/models"
	"stickerboard/internal/security"
	"stickerboard/internal/store"
	"stickerboard/internal/validation"
)

// PinResult is the outcome of a PIN verification.
type PinResult int

const (
	PinRejected PinResult = iota
	PinUnlocked
)

func (r PinResult) String() string {
	if r == PinUnlocked {
		return "unlocked"
	}
	return "rejected"
}

// ParentGuard holds the parent-mode authorization flag for one parent
// session. The flag lives only in memory and starts locked.
type ParentGuard struct {
	store    store.Store
	identity IdentityProvider
	hasher   security.Hasher
	limiter  *security.RateLimiter
	log      *zap.Logger
	timeout  time.Duration

	mu        sync.Mutex
	unlocked  bool
	accountID string
}

// NewParentGuard creates a new, locked parent guard. limiter may be nil to
// allow unlimited attempts.
func NewParentGuard(st store.Store, identity IdentityProvider, hasher security.Hasher, limiter *security.RateLimiter, log *zap.Logger) *ParentGuard {
	if hasher == nil {
		hasher = security.BcryptHasher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ParentGuard{
		store:    st,
		identity: identity,
		hasher:   hasher,
		limiter:  limiter,
		log:      log,
		timeout:  DefaultStoreTimeout,
	}
}

// HasPinProvisioned reports whether the account has a parent PIN
func (g *ParentGuard) HasPinProvisioned(account *models.Account) bool {
	return account != nil && account.HasPin()
}

// ProvisionPin sets the account's parent PIN and unlocks this session.
// Replacing an existing PIN requires the session to be unlocked for the account.
func (g *ParentGuard) ProvisionPin(ctx context.Context, account *models.Account, pin string) error {
	if account == nil {
		return validation.ValidationError{Field: "account", Message: "is required"}
	}
	if err := validation.ValidatePin(pin); err != nil {
		return err
	}
	if account.HasPin() && !g.UnlockedFor(account.ID) {
		return precondition("parent mode must be unlocked to change the PIN")
	}

	hash, err := g.hasher.Hash(pin)
	if err != nil {
		return fmt.Errorf("failed to hash pin: %w", err)
	}

	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	err = g.store.Update(ctx, models.CollectionAccounts, account.ID, store.Document{
		models.FieldParentPin: hash,
	})
	if err != nil {
		return storeError("failed to save pin", err)
	}
	account.ParentPinHash = hash

	g.unlock(account.ID)
	g.limiter.Reset(account.ID)
	g.log.Info("parent pin provisioned", zap.String("account_id", account.ID))
	return nil
}

// VerifyPin compares candidate with the account's stored PIN. A match
// unlocks the session; a mismatch leaves it locked. Attempts beyond the
// per-account budget fail with ErrTooManyAttempts without being checked.
func (g *ParentGuard) VerifyPin(ctx context.Context, account *models.Account, candidate string) (PinResult, error) {
	if account == nil {
		return PinRejected, validation.ValidationError{Field: "account", Message: "is required"}
	}

	if !g.limiter.Allow(account.ID) {
		g.Lock()
		g.log.Warn("parent pin attempts exhausted", zap.String("account_id", account.ID))
		return PinRejected, ErrTooManyAttempts
	}

	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	// The stored PIN may have been changed from another device.
	doc, err := g.store.Get(ctx, models.CollectionAccounts, account.ID)
	if err != nil {
		return PinRejected, storeError("failed to get account", err)
	}
	fresh, err := models.DecodeAccount(doc)
	if err != nil {
		return PinRejected, fmt.Errorf("failed to decode account %s: %w", account.ID, err)
	}
	if !fresh.HasPin() {
		return PinRejected, precondition("no parent PIN is provisioned")
	}
	account.ParentPinHash = fresh.ParentPinHash

	if validation.ValidatePin(candidate) != nil || !g.hasher.Verify(fresh.ParentPinHash, candidate) {
		g.Lock()
		return PinRejected, nil
	}

	g.unlock(account.ID)
	g.limiter.Reset(account.ID)
	return PinUnlocked, nil
}

// RequireUnlocked reports whether parent mode is active
func (g *ParentGuard) RequireUnlocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unlocked
}

// UnlockedFor reports whether parent mode is active for accountID
func (g *ParentGuard) UnlockedFor(accountID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unlocked && g.accountID == accountID
}

// Lock leaves parent mode
func (g *ParentGuard) Lock() {
	g.mu.Lock()
	g.unlocked = false
	g.accountID = ""
	g.mu.Unlock()
}

func (g *ParentGuard) unlock(accountID string) {
	g.mu.Lock()
	g.unlocked = true
	g.accountID = accountID
	g.mu.Unlock()
}

// UpgradeAnonymousAccount binds email and password to an anonymous account,
// keeping its id and therefore its boards. The lock state is unchanged.
func (g *ParentGuard) UpgradeAnonymousAccount(ctx context.Context, account *models.Account, email, password string) (*models.Account, error) {
	if account == nil {
		return nil, validation.ValidationError{Field: "account", Message: "is required"}
	}
	if !account.IsAnonymous {
		return nil, precondition("account %s already has credentials", account.ID)
	}
	if err := checkCredentials(email, password); err != nil {
		return nil, err
	}

	if err := g.identity.BindCredentials(ctx, account.ID, email, password); err != nil {
		return nil, fmt.Errorf("failed to upgrade account: %w", err)
	}

	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	doc, err := g.store.Get(ctx, models.CollectionAccounts, account.ID)
	if err != nil {
		return nil, storeError("failed to reload account", err)
	}
	upgraded, err := models.DecodeAccount(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode account %s: %w", account.ID, err)
	}

	g.log.Info("anonymous account upgraded", zap.String("account_id", account.ID))
	return upgraded, nil
}
