package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/SAP-F-2025/test-session-service/internal/errors"
	"github.com/SAP-F-2025/test-session-service/internal/models"
	"github.com/SAP-F-2025/test-session-service/internal/repositories"
)

// SessionAdmissionGuard decides whether a student may start a new attempt.
// It only reads from the catalog and the store.
type SessionAdmissionGuard struct {
	catalog repositories.TestCatalog
	store   repositories.SessionStore
	logger  *slog.Logger
}

func NewSessionAdmissionGuard(catalog repositories.TestCatalog, store repositories.SessionStore, logger *slog.Logger) *SessionAdmissionGuard {
	return &SessionAdmissionGuard{
		catalog: catalog,
		store:   store,
		logger:  logger,
	}
}

// Check runs the admission checks in order and stops at the first failure:
// existence, publication, time window, enrollment, active session, attempts.
// On success the test definition is returned for the caller to use.
func (g *SessionAdmissionGuard) Check(ctx context.Context, testID, studentID string, now time.Time) (*models.TestDefinition, error) {
	test, err := g.catalog.GetTestDefinition(ctx, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, apperrors.NewSessionError(apperrors.ErrTestNotFound,
				fmt.Sprintf("test %s does not exist", testID),
				map[string]interface{}{"test_id": testID})
		}
		return nil, apperrors.NewUnhandledSessionError("load test definition", err)
	}

	if !test.IsPublished() {
		return nil, apperrors.NewSessionError(apperrors.ErrTestNotAccessible,
			fmt.Sprintf("test is %s", test.Status),
			map[string]interface{}{"test_id": testID, "status": test.Status})
	}

	if err := checkWindow(test, now); err != nil {
		return nil, err
	}

	enrolled, err := g.catalog.IsEnrolled(ctx, test.SubjectID, studentID)
	if err != nil {
		return nil, apperrors.NewUnhandledSessionError("check enrollment", err)
	}
	if !enrolled {
		return nil, apperrors.NewSessionError(apperrors.ErrNotEnrolled,
			"enroll in the subject before starting this test",
			map[string]interface{}{"subject_id": test.SubjectID, "student_id": studentID})
	}

	active, err := g.store.LoadActive(ctx, testID, studentID)
	if err != nil {
		return nil, apperrors.NewUnhandledSessionError("load active session", err)
	}
	if active != nil {
		return nil, apperrors.NewSessionError(apperrors.ErrSessionAlreadyActive,
			"resume the session already in progress",
			map[string]interface{}{"session_id": active.ID()})
	}

	if limit := test.Settings.MaxAttempts; limit > 0 {
		attempts, err := g.store.CountCompletedAttempts(ctx, testID, studentID)
		if err != nil {
			return nil, apperrors.NewUnhandledSessionError("count attempts", err)
		}
		if attempts >= limit {
			return nil, apperrors.NewSessionError(apperrors.ErrMaxAttemptsReached,
				fmt.Sprintf("all %d allowed attempts have been used", limit),
				map[string]interface{}{"max_attempts": limit, "attempts": attempts})
		}
	}

	g.logger.Debug("Admission granted", "test_id", testID, "student_id", studentID)
	return test, nil
}

func checkWindow(test *models.TestDefinition, now time.Time) error {
	switch test.WindowState(now) {
	case models.WindowNotYetOpen:
		return apperrors.NewSessionError(apperrors.ErrTestWindowClosed,
			fmt.Sprintf("test opens at %s", test.Settings.StartDate.Format(time.RFC3339)),
			map[string]interface{}{"start_date": test.Settings.StartDate})
	case models.WindowClosed:
		return apperrors.NewSessionError(apperrors.ErrTestWindowClosed,
			fmt.Sprintf("test closed at %s", test.Settings.EndDate.Format(time.RFC3339)),
			map[string]interface{}{"end_date": test.Settings.EndDate})
	}
	return nil
}
