package repository

import "errors"

var (
	// ErrQuotaExhausted is a normal business outcome, not a system fault:
	// the caller has no invocations left for the interface.
	ErrQuotaExhausted = errors.New("invocation quota exhausted")

	// ErrVersionConflict surfaces an optimistic-concurrency conflict that
	// survived the bounded retry.
	ErrVersionConflict = errors.New("quota version conflict")

	ErrQuotaNotFound      = errors.New("quota record not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrInterfaceNotFound  = errors.New("interface not found")
	ErrCredentialNotFound = errors.New("credential not found")
	ErrStockShortage      = errors.New("insufficient interface stock")
)
