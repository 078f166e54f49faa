package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/SAP-F-2025/test-session-service/internal/errors"
	"github.com/SAP-F-2025/test-session-service/internal/events"
	"github.com/SAP-F-2025/test-session-service/internal/grading"
	"github.com/SAP-F-2025/test-session-service/internal/models"
	"github.com/SAP-F-2025/test-session-service/internal/repositories"
)

// maxSaveAttempts bounds reload-and-retry on concurrent modification.
const maxSaveAttempts = 3

// defaultSweepPageSize is the expiry sweep page size when no limit is given.
const defaultSweepPageSize = 200

const (
	AbandonReasonManual  = "manual"
	AbandonReasonExpired = "window_expired"
)

// NotificationSink receives lifecycle events. Emit must not block.
type NotificationSink interface {
	Emit(event *events.SessionEvent)
}

// Clock returns the current time.
type Clock func() time.Time

type ViolationInput struct {
	Type            models.ViolationType
	QuestionID      *string
	DurationSeconds int
}

// SessionService orchestrates the test session lifecycle.
type SessionService interface {
	StartSession(ctx context.Context, testID, studentID string) (*models.TestSession, error)
	SubmitAnswer(ctx context.Context, sessionID, studentID, questionID string, selectedOptionIDs []string, textAnswer string) (*models.TestSession, error)
	// RecordViolation reports whether the violation was stored. Violations on
	// a finished session are accepted and dropped.
	RecordViolation(ctx context.Context, sessionID, studentID string, input ViolationInput) (bool, error)
	CompleteSession(ctx context.Context, sessionID, studentID string) (*models.TestSession, error)

	GradeManually(ctx context.Context, sessionID, questionID string, points int, graderID string) (*models.TestSession, error)
	AbandonSession(ctx context.Context, sessionID, reason string) (*models.TestSession, error)
	AbandonExpiredSessions(ctx context.Context, limit int) (int, error)

	GetSession(ctx context.Context, sessionID, studentID string) (*models.TestSession, error)
	GetSessionForReview(ctx context.Context, sessionID string) (*models.TestSession, error)
	GetActiveSession(ctx context.Context, testID, studentID string) (*models.TestSession, error)
}

type sessionService struct {
	store   repositories.SessionStore
	catalog repositories.TestCatalog
	guard   *SessionAdmissionGuard
	sink    NotificationSink
	clock   Clock
	logger  *ServiceLogger
}

func NewSessionService(store repositories.SessionStore, catalog repositories.TestCatalog, sink NotificationSink, clock Clock, logger *slog.Logger) SessionService {
	if clock == nil {
		clock = time.Now
	}
	return &sessionService{
		store:   store,
		catalog: catalog,
		guard:   NewSessionAdmissionGuard(catalog, store, logger),
		sink:    sink,
		clock:   clock,
		logger: NewServiceLogger(logger, LogConfig{
			Service:   "test-session-service",
			Component: "session_lifecycle",
		}),
	}
}

// ===== LIFECYCLE OPERATIONS =====

func (s *sessionService) StartSession(ctx context.Context, testID, studentID string) (session *models.TestSession, err error) {
	op := s.logger.WithOperation(ctx, "start_session", studentID)
	defer func() { op.LogResult(sessionIDOf(session), err) }()

	now := s.clock()
	test, err := s.guard.Check(ctx, testID, studentID, now)
	if err != nil {
		return nil, err
	}

	session = models.NewTestSession(testID, studentID, test.MaxScore(), now)
	if err := s.store.Save(ctx, session); err != nil {
		// lost the race against a concurrent start for the same student
		if errors.Is(err, repositories.ErrActiveSessionExists) {
			return nil, apperrors.NewSessionError(apperrors.ErrSessionAlreadyActive,
				"resume the session already in progress",
				map[string]interface{}{"test_id": testID, "student_id": studentID})
		}
		return nil, apperrors.NewUnhandledSessionError("save new session", err)
	}

	s.sink.Emit(events.NewSessionStartedEvent(session))
	return session, nil
}

func (s *sessionService) SubmitAnswer(ctx context.Context, sessionID, studentID, questionID string, selectedOptionIDs []string, textAnswer string) (session *models.TestSession, err error) {
	op := s.logger.WithOperation(ctx, "submit_answer", studentID)
	defer func() { op.LogResult(sessionID, err) }()

	var totalQuestions int
	var answeredAt time.Time
	session, _, err = s.mutate(ctx, "submit answer", sessionID, ownedBy(studentID), func(session *models.TestSession) (bool, error) {
		if session.Status() == models.SessionInProgress {
			test, err := s.testFor(ctx, session)
			if err != nil {
				return false, err
			}
			if _, ok := test.QuestionSet().Get(questionID); !ok {
				return false, apperrors.NewSessionError(apperrors.ErrQuestionNotFound,
					fmt.Sprintf("question %s is not part of this test", questionID),
					map[string]interface{}{"question_id": questionID, "test_id": session.TestID()})
			}
			totalQuestions = len(test.ScoredQuestions())
		}
		answeredAt = s.clock()
		return true, session.SubmitAnswer(questionID, selectedOptionIDs, textAnswer, answeredAt)
	})
	if err != nil {
		return nil, err
	}

	s.sink.Emit(events.NewAnswerSubmittedEvent(session, questionID, totalQuestions, answeredAt))
	return session, nil
}

func (s *sessionService) RecordViolation(ctx context.Context, sessionID, studentID string, input ViolationInput) (recorded bool, err error) {
	op := s.logger.WithOperation(ctx, "record_violation", studentID)
	defer func() { op.LogResult(sessionID, err) }()

	if !input.Type.IsValid() {
		return false, ValidationErrors{{
			Field:   "type",
			Message: "is not a known violation type",
			Value:   input.Type,
			Rule:    "violation_type",
		}}
	}

	var recordedAt time.Time
	session, changed, err := s.mutate(ctx, "record violation", sessionID, ownedBy(studentID), func(session *models.TestSession) (bool, error) {
		recordedAt = s.clock()
		return session.RecordViolation(input.Type, input.QuestionID, input.DurationSeconds, recordedAt), nil
	})
	if err != nil {
		return false, err
	}
	if !changed {
		s.logger.Debug(ctx, "Dropped violation for finished session",
			"session_id", sessionID, "status", session.Status())
		return false, nil
	}

	s.sink.Emit(events.NewViolationRecordedEvent(session, input.Type, input.QuestionID, recordedAt))
	return true, nil
}

func (s *sessionService) CompleteSession(ctx context.Context, sessionID, studentID string) (session *models.TestSession, err error) {
	op := s.logger.WithOperation(ctx, "complete_session", studentID)
	defer func() { op.LogResult(sessionID, err) }()

	var completedAt time.Time
	session, _, err = s.mutate(ctx, "complete session", sessionID, ownedBy(studentID), func(session *models.TestSession) (bool, error) {
		questions := models.QuestionSet{}
		if session.Status() == models.SessionInProgress {
			test, err := s.testFor(ctx, session)
			if err != nil && !errors.Is(err, apperrors.ErrTestNotFound) {
				return false, err
			}
			if test != nil {
				questions = test.QuestionSet()
			} else {
				s.logger.Logger().Warn("Completing session whose test no longer exists",
					"session_id", session.ID(), "test_id", session.TestID())
			}
		}
		completedAt = s.clock()
		return true, session.Complete(completedAt, questions, grading.Grade)
	})
	if err != nil {
		return nil, err
	}

	s.sink.Emit(events.NewSessionCompletedEvent(session, completedAt))
	if session.IsEvaluated() {
		s.sink.Emit(events.NewSessionEvaluatedEvent(session, completedAt))
	}
	return session, nil
}

// ===== GRADING & ADMINISTRATION =====

func (s *sessionService) GradeManually(ctx context.Context, sessionID, questionID string, points int, graderID string) (session *models.TestSession, err error) {
	op := s.logger.WithOperation(ctx, "grade_manually", graderID)
	defer func() { op.LogResult(sessionID, err) }()

	var gradedAt time.Time
	var wasEvaluated bool
	session, _, err = s.mutate(ctx, "grade answer", sessionID, anyCaller, func(session *models.TestSession) (bool, error) {
		if _, ok := session.Answer(questionID); !ok {
			return false, apperrors.NewSessionError(apperrors.ErrAnswerNotFound,
				fmt.Sprintf("no answer stored for question %s", questionID),
				map[string]interface{}{"session_id": session.ID(), "question_id": questionID})
		}
		test, err := s.testFor(ctx, session)
		if err != nil {
			return false, err
		}
		question, ok := test.QuestionSet().Get(questionID)
		if !ok {
			return false, apperrors.NewSessionError(apperrors.ErrQuestionNotFound,
				fmt.Sprintf("question %s is no longer part of this test", questionID),
				map[string]interface{}{"question_id": questionID, "test_id": session.TestID()})
		}
		wasEvaluated = session.IsEvaluated()
		gradedAt = s.clock()
		return true, session.GradeManually(question, points, gradedAt)
	})
	if err != nil {
		return nil, err
	}

	s.sink.Emit(events.NewAnswerGradedEvent(session, questionID, points, graderID, gradedAt))
	if !wasEvaluated && session.IsEvaluated() {
		s.sink.Emit(events.NewSessionEvaluatedEvent(session, gradedAt))
	}
	return session, nil
}

func (s *sessionService) AbandonSession(ctx context.Context, sessionID, reason string) (session *models.TestSession, err error) {
	op := s.logger.WithOperation(ctx, "abandon_session", "")
	defer func() { op.LogResult(sessionID, err) }()

	if reason == "" {
		reason = AbandonReasonManual
	}

	var abandonedAt time.Time
	session, _, err = s.mutate(ctx, "abandon session", sessionID, anyCaller, func(session *models.TestSession) (bool, error) {
		abandonedAt = s.clock()
		return true, session.Abandon(abandonedAt)
	})
	if err != nil {
		return nil, err
	}

	s.sink.Emit(events.NewSessionAbandonedEvent(session, reason, abandonedAt))
	return session, nil
}

// AbandonExpiredSessions abandons up to limit in-progress sessions whose test
// window has ended and returns how many it abandoned. In-progress sessions
// are paged through in start order so sessions on tests that never close
// cannot hide expired ones behind them.
func (s *sessionService) AbandonExpiredSessions(ctx context.Context, limit int) (int, error) {
	pageSize := limit
	if pageSize <= 0 {
		pageSize = defaultSweepPageSize
	}

	now := s.clock()
	tests := make(map[string]*models.TestDefinition)
	abandoned, scanned := 0, 0
	var cursor repositories.SessionCursor

scan:
	for {
		page, err := s.store.ListInProgress(ctx, cursor, pageSize)
		if err != nil {
			return abandoned, apperrors.NewUnhandledSessionError("list in-progress sessions", err)
		}
		scanned += len(page)

		for _, session := range page {
			if err := ctx.Err(); err != nil {
				return abandoned, err
			}
			if limit > 0 && abandoned >= limit {
				break scan
			}
			if !s.windowClosed(ctx, tests, session, now) {
				continue
			}

			_, err := s.AbandonSession(ctx, session.ID(), AbandonReasonExpired)
			switch {
			case err == nil:
				abandoned++
			case errors.Is(err, apperrors.ErrSessionNotActive):
				// completed between listing and abandoning
			default:
				s.logger.Logger().Error("Failed to abandon expired session",
					"session_id", session.ID(), "error", err)
			}
		}

		if len(page) < pageSize {
			break
		}
		cursor = repositories.CursorAfter(page[len(page)-1])
	}

	if abandoned > 0 {
		s.logger.Logger().Info("Abandoned expired sessions", "count", abandoned, "scanned", scanned)
	}
	return abandoned, nil
}

// windowClosed looks up the session's test once per sweep. Sessions whose
// test is gone or cannot be loaded are left alone.
func (s *sessionService) windowClosed(ctx context.Context, tests map[string]*models.TestDefinition, session *models.TestSession, now time.Time) bool {
	test, seen := tests[session.TestID()]
	if !seen {
		var err error
		test, err = s.testFor(ctx, session)
		if err != nil && !errors.Is(err, apperrors.ErrTestNotFound) {
			s.logger.Logger().Error("Failed to load test for expiry check",
				"session_id", session.ID(), "test_id", session.TestID(), "error", err)
			return false
		}
		tests[session.TestID()] = test
	}
	return test != nil && test.WindowState(now) == models.WindowClosed
}

// ===== READ OPERATIONS =====

func (s *sessionService) GetSession(ctx context.Context, sessionID, studentID string) (*models.TestSession, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := ownedBy(studentID)(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *sessionService) GetSessionForReview(ctx context.Context, sessionID string) (*models.TestSession, error) {
	return s.load(ctx, sessionID)
}

func (s *sessionService) GetActiveSession(ctx context.Context, testID, studentID string) (*models.TestSession, error) {
	session, err := s.store.LoadActive(ctx, testID, studentID)
	if err != nil {
		return nil, apperrors.NewUnhandledSessionError("load active session", err)
	}
	if session == nil {
		return nil, apperrors.NewSessionError(apperrors.ErrSessionNotFound,
			"no session in progress for this test",
			map[string]interface{}{"test_id": testID})
	}
	return session, nil
}

// ===== HELPERS =====

type authorizer func(session *models.TestSession) error

func anyCaller(*models.TestSession) error { return nil }

func ownedBy(studentID string) authorizer {
	return func(session *models.TestSession) error {
		if session.StudentID() != studentID {
			return apperrors.NewSessionError(apperrors.ErrUnauthorizedAccess, "",
				map[string]interface{}{"session_id": session.ID()})
		}
		return nil
	}
}

// mutate loads a session, applies fn and saves it. A concurrent write makes
// the save fail on version, in which case the whole cycle is retried on a
// fresh copy. fn reports whether it changed anything worth saving.
func (s *sessionService) mutate(ctx context.Context, step, sessionID string, authorize authorizer, fn func(*models.TestSession) (bool, error)) (*models.TestSession, bool, error) {
	for attempt := 1; ; attempt++ {
		session, err := s.load(ctx, sessionID)
		if err != nil {
			return nil, false, err
		}
		if err := authorize(session); err != nil {
			return nil, false, err
		}

		changed, err := fn(session)
		if err != nil {
			return nil, false, apperrors.NewUnhandledSessionError(step, err)
		}
		if !changed {
			return session, false, nil
		}

		err = s.store.Save(ctx, session)
		if err == nil {
			return session, true, nil
		}
		if errors.Is(err, repositories.ErrStaleSession) && attempt < maxSaveAttempts {
			s.logger.Debug(ctx, "Session changed concurrently, retrying",
				"session_id", sessionID, "attempt", attempt)
			continue
		}
		return nil, false, apperrors.NewUnhandledSessionError(step, err)
	}
}

func (s *sessionService) load(ctx context.Context, sessionID string) (*models.TestSession, error) {
	session, err := s.store.Load(ctx, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, apperrors.NewSessionError(apperrors.ErrSessionNotFound, "",
				map[string]interface{}{"session_id": sessionID})
		}
		return nil, apperrors.NewUnhandledSessionError("load session", err)
	}
	return session, nil
}

func (s *sessionService) testFor(ctx context.Context, session *models.TestSession) (*models.TestDefinition, error) {
	test, err := s.catalog.GetTestDefinition(ctx, session.TestID())
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, apperrors.NewSessionError(apperrors.ErrTestNotFound,
				fmt.Sprintf("test %s does not exist", session.TestID()),
				map[string]interface{}{"test_id": session.TestID()})
		}
		return nil, apperrors.NewUnhandledSessionError("load test definition", err)
	}
	return test, nil
}

func sessionIDOf(session *models.TestSession) string {
	if session == nil {
		return ""
	}
	return session.ID()
}
