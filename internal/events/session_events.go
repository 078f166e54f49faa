package events

import (
	"time"

	"github.com/SAP-F-2025/test-session-service/internal/models"
	"github.com/google/uuid"
)

// EventType represents the session lifecycle events emitted by the service
type EventType string

const (
	EventSessionStarted    EventType = "session.started"
	EventAnswerSubmitted   EventType = "session.answer_submitted"
	EventViolationRecorded EventType = "session.violation_recorded"
	EventSessionCompleted  EventType = "session.completed"
	EventSessionAbandoned  EventType = "session.abandoned"

	// Post-hoc grading events
	EventAnswerGraded     EventType = "session.answer_graded"
	EventSessionEvaluated EventType = "session.evaluated"
)

const (
	eventSource  = "test-session-service"
	eventVersion = "1.0"
)

// SessionEvent is the envelope shared by all lifecycle events. TestID and
// SessionID are carried outside Data so publishers can route without
// inspecting the payload.
type SessionEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	TestID    string                 `json:"test_id"`
	SessionID string                 `json:"session_id"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type SessionStartedEvent struct {
	SessionID string    `json:"session_id"`
	TestID    string    `json:"test_id"`
	StudentID string    `json:"student_id"`
	StartedAt time.Time `json:"started_at"`
	MaxScore  int       `json:"max_score"`
}

type AnswerSubmittedEvent struct {
	SessionID      string    `json:"session_id"`
	StudentID      string    `json:"student_id"`
	QuestionID     string    `json:"question_id"`
	QuestionNumber int       `json:"question_number"` // answered so far, this one included
	TotalQuestions int       `json:"total_questions"`
	AnsweredAt     time.Time `json:"answered_at"`
}

type ViolationRecordedEvent struct {
	SessionID       string               `json:"session_id"`
	StudentID       string               `json:"student_id"`
	Type            models.ViolationType `json:"type"`
	QuestionID      *string              `json:"question_id,omitempty"`
	TotalViolations int                  `json:"total_violations"`
	RecordedAt      time.Time            `json:"recorded_at"`
}

type SessionCompletedEvent struct {
	SessionID      string    `json:"session_id"`
	StudentID      string    `json:"student_id"`
	Score          int       `json:"score"`
	MaxScore       int       `json:"max_score"`
	ViolationCount int       `json:"violation_count"`
	PendingManual  int       `json:"pending_manual"`
	CompletedAt    time.Time `json:"completed_at"`
}

type SessionAbandonedEvent struct {
	SessionID   string    `json:"session_id"`
	StudentID   string    `json:"student_id"`
	Reason      string    `json:"reason"`
	AbandonedAt time.Time `json:"abandoned_at"`
}

type AnswerGradedEvent struct {
	SessionID  string    `json:"session_id"`
	StudentID  string    `json:"student_id"`
	QuestionID string    `json:"question_id"`
	Points     int       `json:"points"`
	Score      int       `json:"score"`
	GraderID   string    `json:"grader_id"`
	GradedAt   time.Time `json:"graded_at"`
}

type SessionEvaluatedEvent struct {
	SessionID   string    `json:"session_id"`
	StudentID   string    `json:"student_id"`
	Score       int       `json:"score"`
	MaxScore    int       `json:"max_score"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Event factory functions

func newEvent(eventType EventType, session *models.TestSession, at time.Time, data interface{}) *SessionEvent {
	return &SessionEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: at,
		Source:    eventSource,
		Version:   eventVersion,
		TestID:    session.TestID(),
		SessionID: session.ID(),
		Data:      data,
	}
}

func NewSessionStartedEvent(session *models.TestSession) *SessionEvent {
	return newEvent(EventSessionStarted, session, session.StartedAt(), SessionStartedEvent{
		SessionID: session.ID(),
		TestID:    session.TestID(),
		StudentID: session.StudentID(),
		StartedAt: session.StartedAt(),
		MaxScore:  session.MaxScore(),
	})
}

func NewAnswerSubmittedEvent(session *models.TestSession, questionID string, totalQuestions int, at time.Time) *SessionEvent {
	return newEvent(EventAnswerSubmitted, session, at, AnswerSubmittedEvent{
		SessionID:      session.ID(),
		StudentID:      session.StudentID(),
		QuestionID:     questionID,
		QuestionNumber: session.AnsweredCount(),
		TotalQuestions: totalQuestions,
		AnsweredAt:     at,
	})
}

func NewViolationRecordedEvent(session *models.TestSession, violationType models.ViolationType, questionID *string, at time.Time) *SessionEvent {
	return newEvent(EventViolationRecorded, session, at, ViolationRecordedEvent{
		SessionID:       session.ID(),
		StudentID:       session.StudentID(),
		Type:            violationType,
		QuestionID:      questionID,
		TotalViolations: session.ViolationCount(),
		RecordedAt:      at,
	})
}

func NewSessionCompletedEvent(session *models.TestSession, at time.Time) *SessionEvent {
	return newEvent(EventSessionCompleted, session, at, SessionCompletedEvent{
		SessionID:      session.ID(),
		StudentID:      session.StudentID(),
		Score:          session.TotalScore(),
		MaxScore:       session.MaxScore(),
		ViolationCount: session.ViolationCount(),
		PendingManual:  session.PendingManualCount(),
		CompletedAt:    at,
	})
}

func NewSessionAbandonedEvent(session *models.TestSession, reason string, at time.Time) *SessionEvent {
	return newEvent(EventSessionAbandoned, session, at, SessionAbandonedEvent{
		SessionID:   session.ID(),
		StudentID:   session.StudentID(),
		Reason:      reason,
		AbandonedAt: at,
	})
}

func NewAnswerGradedEvent(session *models.TestSession, questionID string, points int, graderID string, at time.Time) *SessionEvent {
	return newEvent(EventAnswerGraded, session, at, AnswerGradedEvent{
		SessionID:  session.ID(),
		StudentID:  session.StudentID(),
		QuestionID: questionID,
		Points:     points,
		Score:      session.TotalScore(),
		GraderID:   graderID,
		GradedAt:   at,
	})
}

func NewSessionEvaluatedEvent(session *models.TestSession, at time.Time) *SessionEvent {
	return newEvent(EventSessionEvaluated, session, at, SessionEvaluatedEvent{
		SessionID:   session.ID(),
		StudentID:   session.StudentID(),
		Score:       session.TotalScore(),
		MaxScore:    session.MaxScore(),
		EvaluatedAt: at,
	})
}
