package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"stickerboard/internal/models"
	"stickerboard/internal/security"
	"stickerboard/internal/store"
	"stickerboard/internal/validation"
)

// Identity is the signed-in principal of a request.
type Identity struct {
	ID          string
	IsAnonymous bool
}

// IdentityProvider resolves the current identity and links credentials to it.
type IdentityProvider interface {
	CurrentIdentity(ctx context.Context) (*Identity, error)
	// BindCredentials attaches email and password to id. Calling it again
	// with the same id and email is a no-op.
	BindCredentials(ctx context.Context, id, email, password string) error
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity bound by WithIdentity.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}

type identityClaims struct {
	Anonymous bool `json:"anon"`
	jwt.RegisteredClaims
}

// AuthService handles authentication business logic
type AuthService struct {
	store    store.Store
	hasher   security.Hasher
	secret   []byte
	tokenTTL time.Duration
	timeout  time.Duration
	log      *zap.Logger
	now      func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(st store.Store, hasher security.Hasher, tokenSecret string, tokenTTL time.Duration, log *zap.Logger) *AuthService {
	if hasher == nil {
		hasher = security.BcryptHasher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		store:    st,
		hasher:   hasher,
		secret:   []byte(tokenSecret),
		tokenTTL: tokenTTL,
		timeout:  DefaultStoreTimeout,
		log:      log,
		now:      time.Now,
	}
}

// SetStoreTimeout overrides DefaultStoreTimeout.
func (s *AuthService) SetStoreTimeout(d time.Duration) {
	s.timeout = d
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func checkCredentials(email, password string) error {
	if err := validation.ValidateEmail(email); err != nil {
		return err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return err
	}
	if !validation.IsStrongPassword(password) {
		return fmt.Errorf("%w: at least %d characters required", ErrWeakCredential, validation.MinPasswordLength)
	}
	return nil
}

// CurrentIdentity returns the identity bound to ctx
func (s *AuthService) CurrentIdentity(ctx context.Context) (*Identity, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	return id, nil
}

// SignInAnonymously creates a new anonymous account
func (s *AuthService) SignInAnonymously(ctx context.Context) (*models.Account, error) {
	account := &models.Account{
		IsAnonymous: true,
		CreatedAt:   s.now().UTC(),
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	id, err := s.store.Create(ctx, models.CollectionAccounts, account.Fields())
	if err != nil {
		return nil, storeError("failed to create account", err)
	}
	account.ID = id

	s.log.Info("anonymous account created", zap.String("account_id", id))
	return account, nil
}

// Register creates an account with credentials and a parent PIN in one step
func (s *AuthService) Register(ctx context.Context, email, password, pin string) (*models.Account, error) {
	// Validate inputs
	if err := checkCredentials(email, password); err != nil {
		return nil, err
	}
	if err := validation.ValidatePin(pin); err != nil {
		return nil, err
	}
	email = normalizeEmail(email)

	// Hash secrets
	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	pinHash, err := s.hasher.Hash(pin)
	if err != nil {
		return nil, fmt.Errorf("failed to hash pin: %w", err)
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	// Claim the email first; the unique index decides races
	id := store.NewID()
	cred := &models.Credential{AccountID: id, Email: email, PasswordHash: passwordHash}
	if err := s.store.CreateWithID(ctx, models.CollectionCredentials, id, cred.Fields()); err != nil {
		return nil, storeError("failed to create credentials", err)
	}

	account := &models.Account{
		ID:            id,
		Email:         email,
		ParentPinHash: pinHash,
		IsAnonymous:   false,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.CreateWithID(ctx, models.CollectionAccounts, id, account.Fields()); err != nil {
		if derr := s.store.Delete(ctx, models.CollectionCredentials, id); derr != nil {
			s.log.Error("failed to remove orphaned credentials", zap.String("account_id", id), zap.Error(derr))
		}
		return nil, storeError("failed to create account", err)
	}

	s.log.Info("account registered", zap.String("account_id", id))
	return account, nil
}

// SignIn authenticates a user by email and password
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*models.Account, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	lctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	docs, err := s.store.List(lctx, models.CollectionCredentials, store.Query{
		Where: []store.Condition{store.Eq(models.FieldEmail, email)},
	})
	if err != nil {
		return nil, storeError("failed to look up credentials", err)
	}
	if len(docs) == 0 {
		return nil, ErrInvalidCredentials
	}

	cred, err := models.DecodeCredential(docs[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	if !s.hasher.Verify(cred.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	return s.GetAccount(ctx, cred.AccountID)
}

// GetAccount loads an account by id
func (s *AuthService) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	doc, err := s.store.Get(ctx, models.CollectionAccounts, id)
	if err != nil {
		return nil, storeError("failed to get account", err)
	}
	account, err := models.DecodeAccount(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode account %s: %w", id, err)
	}
	return account, nil
}

// BindCredentials links email and password to an existing account and marks
// it non-anonymous. The account id is unchanged.
func (s *AuthService) BindCredentials(ctx context.Context, id, email, password string) error {
	if err := checkCredentials(email, password); err != nil {
		return err
	}
	email = normalizeEmail(email)

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.store.Get(ctx, models.CollectionAccounts, id); err != nil {
		return storeError("failed to get account", err)
	}

	doc, err := s.store.Get(ctx, models.CollectionCredentials, id)
	switch {
	case err == nil:
		existing, derr := models.DecodeCredential(doc)
		if derr != nil {
			return fmt.Errorf("failed to decode credentials: %w", derr)
		}
		if existing.Email != email {
			return precondition("account %s already has credentials", id)
		}
		// Same binding retried; fall through to make sure the account reflects it.
	case errors.Is(err, store.ErrNotFound):
		hash, herr := s.hasher.Hash(password)
		if herr != nil {
			return fmt.Errorf("failed to hash password: %w", herr)
		}
		cred := &models.Credential{AccountID: id, Email: email, PasswordHash: hash}
		if err := s.store.CreateWithID(ctx, models.CollectionCredentials, id, cred.Fields()); err != nil {
			return storeError("failed to bind credentials", err)
		}
	default:
		return storeError("failed to get credentials", err)
	}

	err = s.store.Update(ctx, models.CollectionAccounts, id, store.Document{
		models.FieldEmail:       email,
		models.FieldIsAnonymous: false,
	})
	if err != nil {
		return storeError("failed to update account", err)
	}

	s.log.Info("credentials bound", zap.String("account_id", id))
	return nil
}

// IssueToken signs an identity token for account
func (s *AuthService) IssueToken(account *models.Account) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, errors.New("token secret is not configured")
	}
	now := s.now()
	expires := now.Add(s.tokenTTL)
	claims := identityClaims{
		Anonymous: account.IsAnonymous,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

// ParseToken validates an identity token and returns its identity
func (s *AuthService) ParseToken(token string) (*Identity, error) {
	if token == "" || len(s.secret) == 0 {
		return nil, ErrUnauthenticated
	}

	claims := &identityClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return &Identity{ID: claims.Subject, IsAnonymous: claims.Anonymous}, nil
}
