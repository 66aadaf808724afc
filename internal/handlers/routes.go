package handlers

import (
	"net/http"

	"go.uber.org/zap"
)

// NewRouter registers the JSON API on a new ServeMux and wraps it with
// request logging.
func NewRouter(m *Middleware, authHandler *AuthHandler, parentHandler *ParentHandler, boardHandler *BoardHandler, log *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	// identity + parent session
	parent := func(h http.HandlerFunc) http.HandlerFunc {
		return m.RequireIdentity(m.WithParentSession(h))
	}
	// identity + parent session + CSRF
	parentWrite := func(h http.HandlerFunc) http.HandlerFunc {
		return parent(m.CSRFProtect(h))
	}
	// identity + unlocked parent mode + CSRF
	parentOnly := func(h http.HandlerFunc) http.HandlerFunc {
		return parent(m.RequireParentMode(m.CSRFProtect(h)))
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Identity routes
	mux.HandleFunc("POST /api/auth/anonymous", m.RateLimit(authHandler.Anonymous))
	mux.HandleFunc("POST /api/auth/register", m.RateLimit(authHandler.Register))
	mux.HandleFunc("POST /api/auth/login", m.RateLimit(authHandler.Login))
	mux.HandleFunc("POST /api/auth/logout", parent(authHandler.Logout))
	mux.HandleFunc("GET /api/account", m.RequireIdentity(authHandler.Account))
	mux.HandleFunc("POST /api/account/upgrade", parentOnly(authHandler.Upgrade))

	// Parent mode routes
	mux.HandleFunc("GET /api/parent/status", parent(parentHandler.Status))
	mux.HandleFunc("POST /api/parent/pin", parentWrite(parentHandler.ProvisionPin))
	mux.HandleFunc("POST /api/parent/verify", parentWrite(parentHandler.Verify))
	mux.HandleFunc("POST /api/parent/pad", parentWrite(parentHandler.Pad))
	mux.HandleFunc("POST /api/parent/lock", parentWrite(parentHandler.Lock))

	// Board routes
	mux.HandleFunc("GET /api/boards", m.RequireIdentity(boardHandler.List))
	mux.HandleFunc("GET /api/boards/stream", m.RequireIdentity(boardHandler.Stream))
	mux.HandleFunc("GET /api/boards/{id}", m.RequireIdentity(boardHandler.Get))
	mux.HandleFunc("POST /api/boards", parentOnly(boardHandler.Create))
	mux.HandleFunc("POST /api/boards/{id}/adjust", parentOnly(boardHandler.Adjust))
	mux.HandleFunc("POST /api/boards/{id}/archive", parentOnly(boardHandler.Archive))
	mux.HandleFunc("PATCH /api/boards/{id}", parentOnly(boardHandler.Update))
	mux.HandleFunc("DELETE /api/boards/{id}", parentOnly(boardHandler.Delete))

	return Logging(log, mux)
}
