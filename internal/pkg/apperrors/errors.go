package apperrors

import (
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrRateLimited      ErrorType = "RATE_LIMITED"
	ErrAuthFailed       ErrorType = "AUTH_FAILED"
	ErrReplay           ErrorType = "REPLAY_REJECTED"
	ErrUnknownInterface ErrorType = "UNKNOWN_INTERFACE"
	ErrQuotaExhausted   ErrorType = "QUOTA_EXHAUSTED"
	ErrInvalidRequest   ErrorType = "INVALID_REQUEST"
	ErrStockShortage    ErrorType = "STOCK_SHORTAGE"
	ErrPriceMismatch    ErrorType = "PRICE_MISMATCH"
	ErrNotFound         ErrorType = "NOT_FOUND"
	ErrUpstream         ErrorType = "UPSTREAM_ERROR"
	ErrInternal         ErrorType = "INTERNAL_ERROR"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func NewAuthFailed(msg string) *AppError {
	return New(ErrAuthFailed, msg, nil)
}

// Wrap turns a collaborator error into an internal AppError with context.
// An error that already is an AppError passes through unchanged.
func Wrap(err error, msg string) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return New(ErrInternal, msg, err)
}

// Admission rejections are all 4xx and carry no retry semantics; collaborator
// faults surface as 5xx.
func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrAuthFailed, ErrReplay, ErrUnknownInterface, ErrQuotaExhausted:
		return http.StatusForbidden
	case ErrInvalidRequest, ErrStockShortage, ErrPriceMismatch:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrRateLimited:
		return "Slow down and retry after a short delay."
	case ErrAuthFailed:
		return "Check the access key and signature."
	case ErrReplay:
		return "Generate a fresh nonce and timestamp."
	case ErrQuotaExhausted:
		return "Purchase more invocation quota for this interface."
	case ErrStockShortage:
		return "Reduce the purchase count or try later."
	default:
		return ""
	}
}
