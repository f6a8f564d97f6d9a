package utils

type AppError struct {
	Code    string
	Message string
	Origin  error // Original error that caused this error, if any
}

func (appErr *AppError) Error() string {
	if appErr.Origin != nil {
		return appErr.Message + ": " + appErr.Origin.Error()
	}
	return appErr.Message
}

// Standard error codes for the messaging core
const (
	// Malformed request: empty body, self-addressed message, guest sender.
	// Never retried automatically; callers reject before any store call
	// where possible.
	ErrValidation = "VALIDATION_ERROR"

	// Transport or query failure against the message store. Surfaced to
	// the UI as a generic failure; the user re-triggers.
	ErrStore = "STORE_ERROR"

	// Real-time channel failed to establish or dropped. Degrades to
	// silence; no automatic reconnection is promised.
	ErrSubscription = "SUBSCRIPTION_ERROR"

	// Resource errors
	ErrNotFound = "NOT_FOUND"

	// Authentication/Authorization errors
	ErrUnauthorized = "UNAUTHORIZED"
	ErrForbidden    = "FORBIDDEN"
	ErrInvalidToken = "INVALID_TOKEN"
)

// Error creation helper functions
func NewAppError(code string, message string, originalErr error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Origin:  originalErr,
	}
}

// Specific error creators for common cases
func NewValidationError(message string) *AppError {
	return NewAppError(ErrValidation, message, nil)
}

func NewStoreError(message string, originalErr error) *AppError {
	return NewAppError(ErrStore, message, originalErr)
}

func NewSubscriptionError(message string, originalErr error) *AppError {
	return NewAppError(ErrSubscription, message, originalErr)
}

func NewNotFoundError(message string) *AppError {
	return NewAppError(ErrNotFound, message, nil)
}

func NewForbiddenError(message string) *AppError {
	return NewAppError(ErrForbidden, message, nil)
}

// Helper method to check if an error is of a specific type
func IsErrorCode(err error, code string) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// AppErrorToHTTPStatus converts an AppError code to an HTTP status code.
func AppErrorToHTTPStatus(errorCode string) int {
	switch errorCode {
	case ErrNotFound:
		return 404 // http.StatusNotFound
	case ErrValidation:
		return 400 // http.StatusBadRequest
	case ErrUnauthorized, ErrInvalidToken:
		return 401 // http.StatusUnauthorized
	case ErrForbidden:
		return 403 // http.StatusForbidden
	case ErrStore, ErrSubscription:
		return 500 // http.StatusInternalServerError
	default:
		return 500 // http.StatusInternalServerError for unknown errors
	}
}
