package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"stickerboard/internal/security"
	"stickerboard/internal/service"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const ParentSessionContextKey ContextKey = "parent_session"

// Middleware holds dependencies for middleware functions
type Middleware struct {
	authService *service.AuthService
	sessions    *service.SessionRegistry
	csrf        *security.CSRFGenerator
	ipLimiter   *security.RateLimiter
	log         *zap.Logger
}

// NewMiddleware creates a new middleware instance
func NewMiddleware(authService *service.AuthService, sessions *service.SessionRegistry, csrf *security.CSRFGenerator, ipLimiter *security.RateLimiter, log *zap.Logger) *Middleware {
	return &Middleware{
		authService: authService,
		sessions:    sessions,
		csrf:        csrf,
		ipLimiter:   ipLimiter,
		log:         log,
	}
}

// identityToken reads the identity token from the Authorization header or,
// for browsers, the identity cookie.
func identityToken(r *http.Request) string {
	if token := security.BearerToken(r); token != "" {
		return token
	}
	if cookie, err := r.Cookie(IdentityCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// RequireIdentity is middleware that requires a valid identity token
func (m *Middleware) RequireIdentity(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := m.authService.ParseToken(identityToken(r))
		if err != nil {
			// Clear invalid cookie
			if _, cerr := r.Cookie(IdentityCookieName); cerr == nil {
				http.SetCookie(w, security.CreateDeleteCookie(r, IdentityCookieName))
			}
			respondWithError(w, m.log, http.StatusUnauthorized, ErrUnauthorized, "identity rejected", err)
			return
		}

		ctx := service.WithIdentity(r.Context(), id)
		next(w, r.WithContext(ctx))
	}
}

// WithParentSession attaches the caller's parent session, starting a new
// locked one when the cookie is missing or the session has expired.
func (m *Middleware) WithParentSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sess *service.ParentSession
		if cookie, err := r.Cookie(security.ParentSessionCookie); err == nil {
			sess, _ = m.sessions.Get(cookie.Value)
		}
		if sess == nil {
			sess = m.sessions.Create()
			http.SetCookie(w, security.CreateSessionCookie(r, security.ParentSessionCookie, sess.ID, time.Time{}))
		}

		ctx := context.WithValue(r.Context(), ParentSessionContextKey, sess)
		next(w, r.WithContext(ctx))
	}
}

// RequireParentMode is middleware that requires the parent session to be
// unlocked for the current identity. It must run inside RequireIdentity and
// WithParentSession.
func (m *Middleware) RequireParentMode(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := service.IdentityFromContext(r.Context())
		sess := GetParentSession(r.Context())
		if !ok || sess == nil || !sess.Guard.UnlockedFor(id.ID) {
			respondWithError(w, m.log, http.StatusForbidden, ErrParentModeRequired, "", nil)
			return
		}
		next(w, r)
	}
}

// CSRFProtect is middleware that checks the CSRF header against the parent
// session. It must run inside WithParentSession.
func (m *Middleware) CSRFProtect(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := GetParentSession(r.Context())
		if sess == nil || !m.csrf.ValidateToken(sess.ID, r.Header.Get(security.CSRFHeader)) {
			respondWithError(w, m.log, http.StatusForbidden, ErrInvalidCSRFToken, "", nil)
			return
		}
		next(w, r)
	}
}

// RateLimit is middleware that limits requests per client IP
func (m *Middleware) RateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := security.GetClientIP(r)
		if !m.ipLimiter.Allow(ip) {
			m.log.Warn("rate limit exceeded", zap.String("ip", ip), zap.String("path", r.URL.Path))
			respondWithError(w, m.log, http.StatusTooManyRequests, ErrTooManyRequests, "", nil)
			return
		}
		next(w, r)
	}
}

// GetParentSession retrieves the parent session from the request context
func GetParentSession(ctx context.Context) *service.ParentSession {
	sess, ok := ctx.Value(ParentSessionContextKey).(*service.ParentSession)
	if !ok {
		return nil
	}
	return sess
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Logging middleware logs HTTP requests
func Logging(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		// Call next handler
		next.ServeHTTP(rec, r)

		// Log request
		log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("failed to decode request body: %w", err)
	}
	return nil
}
