package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/SAP-F-2025/test-session-service/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrActiveSessionExists is returned by Save when the (test, student) pair
	// already has an in-progress session.
	ErrActiveSessionExists = errors.New("an in-progress session already exists for this test and student")
	// ErrStaleSession is returned by Save when the stored version moved on.
	ErrStaleSession = errors.New("session was modified concurrently")
)

// SessionStore persists test sessions. Save is atomic per session and must
// reject a second in-progress session for the same (test, student).
type SessionStore interface {
	Load(ctx context.Context, sessionID string) (*models.TestSession, error)
	// LoadActive returns nil, nil when there is no in-progress session.
	LoadActive(ctx context.Context, testID, studentID string) (*models.TestSession, error)
	// CountCompletedAttempts counts terminal sessions (completed or abandoned).
	CountCompletedAttempts(ctx context.Context, testID, studentID string) (int, error)
	Save(ctx context.Context, session *models.TestSession) error

	// ListInProgress pages through in-progress sessions in (started_at, id)
	// order, starting strictly after the cursor.
	ListInProgress(ctx context.Context, after SessionCursor, limit int) ([]*models.TestSession, error)
	ListByTest(ctx context.Context, testID string) ([]*models.TestSession, error)
}

// SessionCursor is a position in (started_at, id) order. The zero value
// points before the first session.
type SessionCursor struct {
	StartedAt time.Time
	ID        string
}

func CursorAfter(session *models.TestSession) SessionCursor {
	return SessionCursor{StartedAt: session.StartedAt(), ID: session.ID()}
}

// IsZero reports whether the cursor points before the first session.
func (c SessionCursor) IsZero() bool {
	return c.ID == "" && c.StartedAt.IsZero()
}

// Before reports whether a session started at startedAt with the given id
// sorts after the cursor.
func (c SessionCursor) Before(startedAt time.Time, id string) bool {
	if c.IsZero() {
		return true
	}
	if startedAt.Equal(c.StartedAt) {
		return id > c.ID
	}
	return startedAt.After(c.StartedAt)
}

// TestCatalog is read-only access to test definitions and enrollment.
type TestCatalog interface {
	GetTestDefinition(ctx context.Context, testID string) (*models.TestDefinition, error)
	IsEnrolled(ctx context.Context, subjectID, studentID string) (bool, error)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
