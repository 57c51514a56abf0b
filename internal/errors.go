package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeConfiguration ErrorType = "CONFIGURATION_ERROR"
	ErrorTypeValidation    ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound      ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized  ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden     ErrorType = "FORBIDDEN"
	ErrorTypeConflict      ErrorType = "CONFLICT"
	ErrorTypeGateway       ErrorType = "GATEWAY_ERROR"
	ErrorTypePersistence   ErrorType = "PERSISTENCE_ERROR"
	ErrorTypeInternal      ErrorType = "INTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount    ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidCurrency  ErrorCode = "INVALID_CURRENCY"
	ErrCodeInvalidPartySize ErrorCode = "INVALID_PARTY_SIZE"

	ErrCodeIntegrationDisabled ErrorCode = "INTEGRATION_DISABLED"
	ErrCodeMissingSecretKey    ErrorCode = "MISSING_SECRET_KEY"

	ErrCodePaymentNotFound          ErrorCode = "PAYMENT_NOT_FOUND"
	ErrCodeMissingExternalReference ErrorCode = "MISSING_EXTERNAL_REFERENCE"
	ErrCodePaymentFinalized         ErrorCode = "PAYMENT_FINALIZED"
	ErrCodeGatewayTransport         ErrorCode = "GATEWAY_TRANSPORT"
	ErrCodeGatewayApplication       ErrorCode = "GATEWAY_APPLICATION"
	ErrCodePersistenceFailed        ErrorCode = "PERSISTENCE_FAILED"
	ErrCodeInvalidToken             ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired             ErrorCode = "TOKEN_EXPIRED"
	ErrCodeInsufficientScope        ErrorCode = "INSUFFICIENT_SCOPE"
	ErrCodeInternal                 ErrorCode = "INTERNAL_ERROR"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on type and code so that freshly built errors compare equal to
// the package-level sentinels.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewConfigurationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConfiguration,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
	}
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewGatewayError describes a failed exchange with the card gateway. Transport
// failures map to 504 so callers can tell them apart from gateway rejections.
func NewGatewayError(message string, code ErrorCode, cause error) *AppError {
	status := http.StatusBadGateway
	if code == ErrCodeGatewayTransport {
		status = http.StatusGatewayTimeout
	}
	return &AppError{
		Type:       ErrorTypeGateway,
		Code:       code,
		Message:    message,
		StatusCode: status,
		Cause:      cause,
	}
}

func NewPersistenceError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypePersistence,
		Code:       ErrCodePersistenceFailed,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       ErrCodeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

var (
	ErrIntegrationDisabled      = NewConfigurationError("payment integration is disabled", ErrCodeIntegrationDisabled)
	ErrMissingSecretKey         = NewConfigurationError("payment gateway secret key is not configured", ErrCodeMissingSecretKey)
	ErrInvalidAmount            = NewValidationError("payment amount must be greater than zero", ErrCodeInvalidAmount)
	ErrInvalidCurrency          = NewValidationError("currency must be a 3-letter ISO code", ErrCodeInvalidCurrency)
	ErrPaymentNotFound          = NewNotFoundError("payment not found", ErrCodePaymentNotFound)
	ErrMissingExternalReference = NewNotFoundError("payment has no gateway reference", ErrCodeMissingExternalReference)
	ErrPaymentFinalized         = NewConflictError("payment is already refunded or void", ErrCodePaymentFinalized)
	ErrGatewayTransport         = NewGatewayError("payment gateway unreachable", ErrCodeGatewayTransport, nil)
	ErrGatewayApplication       = NewGatewayError("payment gateway rejected the request", ErrCodeGatewayApplication, nil)
	ErrPersistence              = NewPersistenceError("failed to persist payment", nil)
	ErrInvalidToken             = NewUnauthorizedError("Invalid token", ErrCodeInvalidToken)
	ErrTokenExpired             = NewUnauthorizedError("Token has expired", ErrCodeTokenExpired)
)

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
