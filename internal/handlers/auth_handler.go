package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"stickerboard/internal/models"
	"stickerboard/internal/security"
	"stickerboard/internal/service"
)

// AuthHandler handles identity and account requests
type AuthHandler struct {
	authService  *service.AuthService
	emailService *service.EmailService
	log          *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, emailService *service.EmailService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		emailService: emailService,
		log:          log,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Pin      string `json:"pin,omitempty"`
}

type identityResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Account   *models.Account `json:"account"`
}

// issue signs a token for account, sets the identity cookie and writes the
// response.
func (h *AuthHandler) issue(w http.ResponseWriter, r *http.Request, status int, account *models.Account) {
	token, expires, err := h.authService.IssueToken(account)
	if err != nil {
		respondWithError(w, h.log, http.StatusInternalServerError, ErrInternalServerError, "failed to issue token", err)
		return
	}

	http.SetCookie(w, security.CreateSessionCookie(r, IdentityCookieName, token, expires))
	respondJSON(w, status, identityResponse{Token: token, ExpiresAt: expires, Account: account})
}

// Anonymous creates a new anonymous identity
func (h *AuthHandler) Anonymous(w http.ResponseWriter, r *http.Request) {
	account, err := h.authService.SignInAnonymously(r.Context())
	if err != nil {
		respondWithServiceError(w, h.log, "anonymous sign-in failed", err)
		return
	}
	h.issue(w, r, http.StatusCreated, account)
}

// Register creates a credentialed account with its parent PIN
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	account, err := h.authService.Register(r.Context(), req.Email, req.Password, req.Pin)
	if err != nil {
		respondWithServiceError(w, h.log, "registration failed", err)
		return
	}

	h.log.Info("account registered", zap.String("account_id", account.ID))
	h.issue(w, r, http.StatusCreated, account)
}

// Login signs in with email and password
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	account, err := h.authService.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		respondWithServiceError(w, h.log, "sign-in failed", err)
		return
	}
	h.issue(w, r, http.StatusOK, account)
}

// Logout locks parent mode and clears the identity and parent-session
// cookies. Bearer tokens simply expire.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sess := GetParentSession(r.Context()); sess != nil {
		sess.Guard.Lock()
	}
	http.SetCookie(w, security.CreateDeleteCookie(r, security.ParentSessionCookie))
	http.SetCookie(w, security.CreateDeleteCookie(r, IdentityCookieName))
	w.WriteHeader(http.StatusNoContent)
}

// Account returns the signed-in account
func (h *AuthHandler) Account(w http.ResponseWriter, r *http.Request) {
	id, _ := service.IdentityFromContext(r.Context())

	account, err := h.authService.GetAccount(r.Context(), id.ID)
	if err != nil {
		respondWithServiceError(w, h.log, "failed to load account", err)
		return
	}
	respondJSON(w, http.StatusOK, account)
}

type upgradeRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Upgrade links email credentials to the current anonymous account. The
// parent session must be unlocked for it.
func (h *AuthHandler) Upgrade(w http.ResponseWriter, r *http.Request) {
	var req upgradeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	id, _ := service.IdentityFromContext(r.Context())
	sess := GetParentSession(r.Context())

	account, err := h.authService.GetAccount(r.Context(), id.ID)
	if err != nil {
		respondWithServiceError(w, h.log, "failed to load account", err)
		return
	}

	account, err = sess.Guard.UpgradeAnonymousAccount(r.Context(), account, req.Email, req.Password)
	if err != nil {
		respondWithServiceError(w, h.log, "account upgrade failed", err)
		return
	}

	// Send confirmation (don't fail the request if email fails)
	if err := h.emailService.SendAccountLinkedEmail(r.Context(), account.Email); err != nil {
		h.log.Warn("failed to send account linked email", zap.String("account_id", account.ID), zap.Error(err))
	}

	h.issue(w, r, http.StatusOK, account)
}
