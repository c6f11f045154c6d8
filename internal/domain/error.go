package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrValidation         = errors.New("invalid request")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Payment lifecycle errors
	ErrProviderUnavailable    = errors.New("payment provider not configured")
	ErrProviderCreationFailed = errors.New("provider payment creation failed")
	ErrPersistence            = errors.New("persistence failure")
	ErrInvalidStateTransition = errors.New("invalid payment state transition")
	ErrMalformedPayload       = errors.New("malformed settlement payload")
	ErrActivationPersistence  = errors.New("subscription activation could not be committed")
	ErrSettleLockNotAcquired  = errors.New("settlement lock not acquired")
)
