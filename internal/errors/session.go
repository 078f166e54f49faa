package errors

import (
	"errors"
	"fmt"
)

// Admission failures. Returned before any session exists.
var (
	ErrTestNotFound         = errors.New("test not found")
	ErrTestNotAccessible    = errors.New("test is not accessible")
	ErrTestWindowClosed     = errors.New("test window is closed")
	ErrNotEnrolled          = errors.New("student is not enrolled in the subject")
	ErrSessionAlreadyActive = errors.New("an active session already exists for this test")
	ErrMaxAttemptsReached   = errors.New("maximum number of attempts reached")
)

// Operation failures on an existing session.
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrUnauthorizedAccess = errors.New("caller does not own this session")
	ErrSessionNotActive   = errors.New("session is not in progress")
	ErrAnswerNotFound     = errors.New("answer not found")
	ErrQuestionNotFound   = errors.New("question does not belong to this test")
	ErrGradingNotAllowed  = errors.New("answer does not accept manual grading")
	ErrInvalidPoints      = errors.New("points out of range for question")
)

// SessionError is an expected, user-facing failure. Kind is one of the
// sentinels above and is what errors.Is matches against.
type SessionError struct {
	Kind    error                  `json:"-"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (e *SessionError) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Message)
}

func (e *SessionError) Unwrap() error {
	return e.Kind
}

func NewSessionError(kind error, message string, context map[string]interface{}) *SessionError {
	return &SessionError{
		Kind:    kind,
		Message: message,
		Context: context,
	}
}

// UnhandledSessionError wraps an unexpected store, catalog or cache failure.
type UnhandledSessionError struct {
	Op    string
	Cause error
}

func (e *UnhandledSessionError) Error() string {
	return fmt.Sprintf("unhandled error during %s: %v", e.Op, e.Cause)
}

func (e *UnhandledSessionError) Unwrap() error {
	return e.Cause
}

// NewUnhandledSessionError wraps cause unless it already is a known session
// failure, in which case it is returned as is.
func NewUnhandledSessionError(op string, cause error) error {
	if cause == nil {
		return nil
	}
	if KindOf(cause) != nil {
		return cause
	}
	var unhandled *UnhandledSessionError
	if errors.As(cause, &unhandled) {
		return cause
	}
	return &UnhandledSessionError{Op: op, Cause: cause}
}

var kinds = []error{
	ErrTestNotFound,
	ErrTestNotAccessible,
	ErrTestWindowClosed,
	ErrNotEnrolled,
	ErrSessionAlreadyActive,
	ErrMaxAttemptsReached,
	ErrSessionNotFound,
	ErrUnauthorizedAccess,
	ErrSessionNotActive,
	ErrAnswerNotFound,
	ErrQuestionNotFound,
	ErrGradingNotAllowed,
	ErrInvalidPoints,
}

// KindOf returns the taxonomy sentinel err belongs to, or nil.
func KindOf(err error) error {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Code returns the stable machine-readable name for err.
func Code(err error) string {
	switch KindOf(err) {
	case ErrTestNotFound:
		return "TEST_NOT_FOUND"
	case ErrTestNotAccessible:
		return "TEST_NOT_ACCESSIBLE"
	case ErrTestWindowClosed:
		return "TEST_WINDOW_CLOSED"
	case ErrNotEnrolled:
		return "NOT_ENROLLED"
	case ErrSessionAlreadyActive:
		return "SESSION_ALREADY_ACTIVE"
	case ErrMaxAttemptsReached:
		return "MAX_ATTEMPTS_REACHED"
	case ErrSessionNotFound:
		return "SESSION_NOT_FOUND"
	case ErrUnauthorizedAccess:
		return "UNAUTHORIZED_ACCESS"
	case ErrSessionNotActive:
		return "SESSION_NOT_ACTIVE"
	case ErrAnswerNotFound:
		return "ANSWER_NOT_FOUND"
	case ErrQuestionNotFound:
		return "QUESTION_NOT_FOUND"
	case ErrGradingNotAllowed:
		return "GRADING_NOT_ALLOWED"
	case ErrInvalidPoints:
		return "INVALID_POINTS"
	}
	return "INTERNAL_ERROR"
}
