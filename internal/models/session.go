package models

import (
	"fmt"
	"time"

	apperrors "github.com/SAP-F-2025/test-session-service/internal/errors"
	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionAbandoned  SessionStatus = "abandoned"
)

func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionAbandoned
}

// TestSession is one student's attempt at one test. Its state only changes
// through the methods below.
type TestSession struct {
	id         string
	testID     string
	studentID  string
	status     SessionStatus
	startedAt  time.Time
	finishedAt *time.Time
	answers    []StudentAnswer
	violations []Violation
	totalScore int
	maxScore   int
	version    int
}

// SessionSnapshot is a plain copy of a session's state, used by stores to
// persist and rebuild sessions.
type SessionSnapshot struct {
	ID         string
	TestID     string
	StudentID  string
	Status     SessionStatus
	StartedAt  time.Time
	FinishedAt *time.Time
	Answers    []StudentAnswer
	Violations []Violation
	TotalScore int
	MaxScore   int
	Version    int
}

// NewTestSession starts a fresh in-progress session. maxScore is frozen here.
func NewTestSession(testID, studentID string, maxScore int, now time.Time) *TestSession {
	return &TestSession{
		id:         uuid.NewString(),
		testID:     testID,
		studentID:  studentID,
		status:     SessionInProgress,
		startedAt:  now,
		answers:    []StudentAnswer{},
		violations: []Violation{},
		maxScore:   maxScore,
	}
}

// RestoreTestSession rebuilds a session from persisted state.
func RestoreTestSession(snap SessionSnapshot) *TestSession {
	s := &TestSession{
		id:         snap.ID,
		testID:     snap.TestID,
		studentID:  snap.StudentID,
		status:     snap.Status,
		startedAt:  snap.StartedAt,
		totalScore: snap.TotalScore,
		maxScore:   snap.MaxScore,
		version:    snap.Version,
		answers:    make([]StudentAnswer, 0, len(snap.Answers)),
		violations: make([]Violation, 0, len(snap.Violations)),
	}
	if snap.FinishedAt != nil {
		t := *snap.FinishedAt
		s.finishedAt = &t
	}
	for _, a := range snap.Answers {
		s.answers = append(s.answers, copyAnswer(a))
	}
	for _, v := range snap.Violations {
		s.violations = append(s.violations, copyViolation(v))
	}
	return s
}

func (s *TestSession) Snapshot() SessionSnapshot {
	snap := SessionSnapshot{
		ID:         s.id,
		TestID:     s.testID,
		StudentID:  s.studentID,
		Status:     s.status,
		StartedAt:  s.startedAt,
		Answers:    s.Answers(),
		Violations: s.Violations(),
		TotalScore: s.totalScore,
		MaxScore:   s.maxScore,
		Version:    s.version,
	}
	if s.finishedAt != nil {
		t := *s.finishedAt
		snap.FinishedAt = &t
	}
	return snap
}

func (s *TestSession) ID() string            { return s.id }
func (s *TestSession) TestID() string        { return s.testID }
func (s *TestSession) StudentID() string     { return s.studentID }
func (s *TestSession) Status() SessionStatus { return s.status }
func (s *TestSession) StartedAt() time.Time  { return s.startedAt }
func (s *TestSession) TotalScore() int       { return s.totalScore }
func (s *TestSession) MaxScore() int         { return s.maxScore }
func (s *TestSession) Version() int          { return s.version }
func (s *TestSession) AnsweredCount() int    { return len(s.answers) }
func (s *TestSession) ViolationCount() int   { return len(s.violations) }

func (s *TestSession) FinishedAt() *time.Time {
	if s.finishedAt == nil {
		return nil
	}
	t := *s.finishedAt
	return &t
}

func (s *TestSession) Answers() []StudentAnswer {
	out := make([]StudentAnswer, 0, len(s.answers))
	for _, a := range s.answers {
		out = append(out, copyAnswer(a))
	}
	return out
}

func (s *TestSession) Violations() []Violation {
	out := make([]Violation, 0, len(s.violations))
	for _, v := range s.violations {
		out = append(out, copyViolation(v))
	}
	return out
}

// Answer returns the stored answer for a question.
func (s *TestSession) Answer(questionID string) (StudentAnswer, bool) {
	if i := s.answerIndex(questionID); i >= 0 {
		return copyAnswer(s.answers[i]), true
	}
	return StudentAnswer{}, false
}

func (s *TestSession) PendingManualCount() int {
	n := 0
	for _, a := range s.answers {
		if a.PendingManual {
			n++
		}
	}
	return n
}

// IsEvaluated is true for a completed session with nothing left to grade by hand.
func (s *TestSession) IsEvaluated() bool {
	return s.status == SessionCompleted && s.PendingManualCount() == 0
}

// MarkSaved advances the persisted version. Called by stores after a successful write.
func (s *TestSession) MarkSaved() {
	s.version++
}

// SubmitAnswer stores an answer, replacing any earlier answer to the same question.
func (s *TestSession) SubmitAnswer(questionID string, selectedOptionIDs []string, textAnswer string, now time.Time) error {
	if s.status != SessionInProgress {
		return s.notActive()
	}

	answer := StudentAnswer{
		QuestionID:        questionID,
		SelectedOptionIDs: normalizeSelection(selectedOptionIDs),
		TextAnswer:        textAnswer,
		AnsweredAt:        now,
	}

	if i := s.answerIndex(questionID); i >= 0 {
		s.answers[i] = answer
	} else {
		s.answers = append(s.answers, answer)
	}
	s.recomputeTotal()
	return nil
}

// RecordViolation appends a violation. It is a no-op once the session has
// left InProgress; the return value reports whether anything was recorded.
func (s *TestSession) RecordViolation(violationType ViolationType, questionID *string, durationSeconds int, now time.Time) bool {
	if s.status != SessionInProgress {
		return false
	}
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	s.violations = append(s.violations, copyViolation(Violation{
		Type:            violationType,
		QuestionID:      questionID,
		DurationSeconds: durationSeconds,
		OccurredAt:      now,
	}))
	return true
}

// Complete grades every stored answer and closes the session. Answers whose
// question is not in questions are left at zero.
func (s *TestSession) Complete(now time.Time, questions QuestionSet, grade GradingFunc) error {
	if s.status != SessionInProgress {
		return s.notActive()
	}

	for i := range s.answers {
		answer := &s.answers[i]
		answer.PointsAwarded = 0
		answer.PendingManual = false
		answer.GradedAt = nil

		question, ok := questions.Get(answer.QuestionID)
		if !ok {
			continue
		}
		result := grade(question, copyAnswer(*answer))
		answer.PointsAwarded = clampPoints(result.Points, question.Points)
		answer.PendingManual = result.PendingManual
		if !result.PendingManual {
			gradedAt := now
			answer.GradedAt = &gradedAt
		}
	}

	s.recomputeTotal()
	s.finish(SessionCompleted, now)
	return nil
}

// Abandon closes an in-progress session without grading it.
func (s *TestSession) Abandon(now time.Time) error {
	if s.status != SessionInProgress {
		return s.notActive()
	}
	s.finish(SessionAbandoned, now)
	return nil
}

// GradeManually sets the points of an essay or pending answer on a completed
// session. The status is left as is.
func (s *TestSession) GradeManually(question *Question, points int, now time.Time) error {
	i := s.answerIndex(question.ID)
	if i < 0 {
		return apperrors.NewSessionError(apperrors.ErrAnswerNotFound,
			fmt.Sprintf("no answer stored for question %s", question.ID),
			map[string]interface{}{"session_id": s.id, "question_id": question.ID})
	}
	if s.status != SessionCompleted {
		return apperrors.NewSessionError(apperrors.ErrGradingNotAllowed,
			"session must be completed before manual grading",
			map[string]interface{}{"session_id": s.id, "status": s.status})
	}
	answer := &s.answers[i]
	if question.Type != OpenEssay && !answer.PendingManual {
		return apperrors.NewSessionError(apperrors.ErrGradingNotAllowed,
			fmt.Sprintf("question type %s is graded automatically", question.Type),
			map[string]interface{}{"session_id": s.id, "question_id": question.ID})
	}
	if points < 0 || points > question.Points {
		return apperrors.NewSessionError(apperrors.ErrInvalidPoints,
			fmt.Sprintf("points must be between 0 and %d", question.Points),
			map[string]interface{}{"question_id": question.ID, "points": points})
	}

	answer.PointsAwarded = points
	answer.PendingManual = false
	gradedAt := now
	answer.GradedAt = &gradedAt
	s.recomputeTotal()
	return nil
}

func (s *TestSession) answerIndex(questionID string) int {
	for i := range s.answers {
		if s.answers[i].QuestionID == questionID {
			return i
		}
	}
	return -1
}

func (s *TestSession) recomputeTotal() {
	total := 0
	for _, a := range s.answers {
		total += a.PointsAwarded
	}
	if total > s.maxScore {
		total = s.maxScore
	}
	s.totalScore = total
}

func (s *TestSession) finish(status SessionStatus, now time.Time) {
	if now.Before(s.startedAt) {
		now = s.startedAt
	}
	s.status = status
	s.finishedAt = &now
}

func (s *TestSession) notActive() error {
	return apperrors.NewSessionError(apperrors.ErrSessionNotActive,
		fmt.Sprintf("session is %s", s.status),
		map[string]interface{}{"session_id": s.id, "status": s.status})
}

func clampPoints(points, max int) int {
	if points < 0 {
		return 0
	}
	if points > max {
		return max
	}
	return points
}
