package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"stickerboard/internal/models"
	"stickerboard/internal/security"
	"stickerboard/internal/service"
	"stickerboard/internal/validation"
)

// ParentHandler handles parent-mode lock, unlock and PIN requests
type ParentHandler struct {
	authService *service.AuthService
	csrf        *security.CSRFGenerator
	log         *zap.Logger
}

// NewParentHandler creates a new parent handler
func NewParentHandler(authService *service.AuthService, csrf *security.CSRFGenerator, log *zap.Logger) *ParentHandler {
	return &ParentHandler{
		authService: authService,
		csrf:        csrf,
		log:         log,
	}
}

type parentStatusResponse struct {
	Unlocked   bool   `json:"unlocked"`
	HasPin     bool   `json:"hasPin"`
	PadEntered int    `json:"padEntered"`
	CSRFToken  string `json:"csrfToken,omitempty"`
}

type pinRequest struct {
	Pin string `json:"pin"`
}

type verifyResponse struct {
	Result   string `json:"result"`
	Unlocked bool   `json:"unlocked"`
}

type padRequest struct {
	Digit  string `json:"digit,omitempty"`
	Delete bool   `json:"delete,omitempty"`
}

type padResponse struct {
	Entered  int    `json:"entered"`
	Result   string `json:"result,omitempty"`
	Unlocked bool   `json:"unlocked"`
}

// account loads the account of the request identity
func (h *ParentHandler) account(w http.ResponseWriter, r *http.Request) (*models.Account, bool) {
	id, _ := service.IdentityFromContext(r.Context())
	account, err := h.authService.GetAccount(r.Context(), id.ID)
	if err != nil {
		respondWithServiceError(w, h.log, "failed to load account", err)
		return nil, false
	}
	return account, true
}

func (h *ParentHandler) status(sess *service.ParentSession, account *models.Account) parentStatusResponse {
	return parentStatusResponse{
		Unlocked:   sess.Guard.UnlockedFor(account.ID),
		HasPin:     sess.Guard.HasPinProvisioned(account),
		PadEntered: sess.Pad.Entered(),
	}
}

// Status reports the session's lock state and issues its CSRF token
func (h *ParentHandler) Status(w http.ResponseWriter, r *http.Request) {
	sess := GetParentSession(r.Context())
	account, ok := h.account(w, r)
	if !ok {
		return
	}

	token, err := h.csrf.GenerateToken(sess.ID)
	if err != nil {
		respondWithError(w, h.log, http.StatusInternalServerError, ErrInternalServerError, "failed to generate csrf token", err)
		return
	}

	resp := h.status(sess, account)
	resp.CSRFToken = token
	respondJSON(w, http.StatusOK, resp)
}

// ProvisionPin sets or replaces the parent PIN
func (h *ParentHandler) ProvisionPin(w http.ResponseWriter, r *http.Request) {
	var req pinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	sess := GetParentSession(r.Context())
	account, ok := h.account(w, r)
	if !ok {
		return
	}

	if err := sess.Guard.ProvisionPin(r.Context(), account, req.Pin); err != nil {
		respondWithServiceError(w, h.log, "failed to provision pin", err)
		return
	}
	respondJSON(w, http.StatusOK, h.status(sess, account))
}

// Verify checks a complete PIN in one request
func (h *ParentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req pinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	sess := GetParentSession(r.Context())
	account, ok := h.account(w, r)
	if !ok {
		return
	}

	result, err := sess.Guard.VerifyPin(r.Context(), account, req.Pin)
	if err != nil {
		respondWithServiceError(w, h.log, "pin verification failed", err)
		return
	}
	respondJSON(w, http.StatusOK, verifyResponse{Result: result.String(), Unlocked: result == service.PinUnlocked})
}

// Pad enters or deletes one digit on the session's PIN pad. The fourth
// digit triggers verification.
func (h *ParentHandler) Pad(w http.ResponseWriter, r *http.Request) {
	var req padRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	sess := GetParentSession(r.Context())
	id, _ := service.IdentityFromContext(r.Context())

	if req.Delete {
		respondJSON(w, http.StatusOK, padResponse{
			Entered:  sess.Pad.Delete(),
			Unlocked: sess.Guard.UnlockedFor(id.ID),
		})
		return
	}

	digits := []rune(req.Digit)
	if len(digits) != 1 {
		respondWithServiceError(w, h.log, "", validation.ValidationError{Field: "digit", Message: "must be a single digit"})
		return
	}

	state, err := sess.Pad.Press(r.Context(), digits[0])
	if err != nil {
		respondWithServiceError(w, h.log, "pin pad input failed", err)
		return
	}

	resp := padResponse{Entered: state.Entered, Unlocked: sess.Guard.UnlockedFor(id.ID)}
	if state.Verified {
		resp.Result = state.Result.String()
	}
	respondJSON(w, http.StatusOK, resp)
}

// Lock leaves parent mode
func (h *ParentHandler) Lock(w http.ResponseWriter, r *http.Request) {
	GetParentSession(r.Context()).Guard.Lock()
	w.WriteHeader(http.StatusNoContent)
}
