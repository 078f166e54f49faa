package services

import (
	"errors"

	apperrors "github.com/SAP-F-2025/test-session-service/internal/errors"
)

// ===== SESSION ERROR TAXONOMY =====

var (
	// Admission errors
	ErrTestNotFound         = apperrors.ErrTestNotFound
	ErrTestNotAccessible    = apperrors.ErrTestNotAccessible
	ErrTestWindowClosed     = apperrors.ErrTestWindowClosed
	ErrNotEnrolled          = apperrors.ErrNotEnrolled
	ErrSessionAlreadyActive = apperrors.ErrSessionAlreadyActive
	ErrMaxAttemptsReached   = apperrors.ErrMaxAttemptsReached

	// Operation errors
	ErrSessionNotFound    = apperrors.ErrSessionNotFound
	ErrUnauthorizedAccess = apperrors.ErrUnauthorizedAccess
	ErrSessionNotActive   = apperrors.ErrSessionNotActive
	ErrAnswerNotFound     = apperrors.ErrAnswerNotFound
	ErrQuestionNotFound   = apperrors.ErrQuestionNotFound
	ErrGradingNotAllowed  = apperrors.ErrGradingNotAllowed
	ErrInvalidPoints      = apperrors.ErrInvalidPoints
)

// ===== CUSTOM ERROR TYPES =====

type SessionError = apperrors.SessionError
type UnhandledSessionError = apperrors.UnhandledSessionError

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

// ===== ERROR HELPERS =====

// NewValidationError creates a new validation error using the shared type
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTestNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrAnswerNotFound) ||
		errors.Is(err, ErrQuestionNotFound)
}

// IsUnauthorized checks if error represents an "unauthorized" condition
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorizedAccess)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	var ve ValidationErrors
	if errors.As(err, &ve) {
		return true
	}
	var single *ValidationError
	return errors.As(err, &single)
}

// IsConflict checks if error represents a state conflict with an existing session
func IsConflict(err error) bool {
	return errors.Is(err, ErrSessionAlreadyActive) ||
		errors.Is(err, ErrSessionNotActive)
}

// IsBusinessRule checks if error represents any expected, user-facing failure
// that is not covered by the helpers above
func IsBusinessRule(err error) bool {
	if apperrors.KindOf(err) == nil {
		return false
	}
	return !IsNotFound(err) && !IsUnauthorized(err) && !IsConflict(err)
}

// IsUnhandled checks if error wraps an unexpected infrastructure failure
func IsUnhandled(err error) bool {
	var unhandled *UnhandledSessionError
	return errors.As(err, &unhandled)
}
