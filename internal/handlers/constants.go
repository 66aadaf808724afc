package handlers

const (
	IdentityCookieName = "identity"

	ErrInvalidRequestBody  = "Invalid request body"
	ErrUnauthorized        = "Unauthorized"
	ErrForbiddenMsg        = "Forbidden"
	ErrNotFoundMsg         = "Not found"
	ErrParentModeRequired  = "Parent mode required"
	ErrInvalidCSRFToken    = "Invalid CSRF token"
	ErrTooManyRequests     = "Too many requests"
	ErrUnavailableMsg      = "Service temporarily unavailable"
	ErrInternalServerError = "Internal server error"

	maxBodyBytes = 1 << 20
)
