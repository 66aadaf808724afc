package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"stickerboard/internal/service"
	"stickerboard/internal/validation"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func respondWithError(w http.ResponseWriter, log *zap.Logger, status int, userMsg, logMsg string, err error) {
	if err != nil {
		if logMsg == "" {
			logMsg = userMsg
		}
		if status >= http.StatusInternalServerError {
			log.Error(logMsg, zap.Int("status", status), zap.Error(err))
		} else {
			log.Debug(logMsg, zap.Int("status", status), zap.Error(err))
		}
	}

	respondJSON(w, status, errorResponse{Error: userMsg})
}

// statusForError maps the service error taxonomy onto HTTP.
func statusForError(err error) (int, string) {
	var verr validation.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Error()
	case errors.Is(err, service.ErrWeakCredential):
		return http.StatusBadRequest, service.ErrWeakCredential.Error()
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized, ErrUnauthorized
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, service.ErrInvalidCredentials.Error()
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, ErrForbiddenMsg
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, ErrNotFoundMsg
	case errors.Is(err, service.ErrRange):
		return http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrPrecondition),
		errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrVerificationPending):
		return http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrTooManyAttempts):
		return http.StatusTooManyRequests, service.ErrTooManyAttempts.Error()
	case errors.Is(err, service.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, ErrUnavailableMsg
	}
	return http.StatusInternalServerError, ErrInternalServerError
}

func respondWithServiceError(w http.ResponseWriter, log *zap.Logger, logMsg string, err error) {
	status, msg := statusForError(err)
	respondWithError(w, log, status, msg, logMsg, err)
}
