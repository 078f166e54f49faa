package models

import "time"

// ===== REQUEST DTOs =====

type StartSessionRequest struct {
	TestID string `json:"test_id" validate:"required,not_blank,max=64"`
}

type SubmitAnswerRequest struct {
	SelectedOptionIDs []string `json:"selected_option_ids" validate:"omitempty,max=50,dive,required,max=64"`
	TextAnswer        string   `json:"text_answer" validate:"max=10000"`
}

type RecordViolationRequest struct {
	Type            ViolationType `json:"type" validate:"required,violation_type"`
	QuestionID      *string       `json:"question_id" validate:"omitempty,not_blank,max=64"`
	DurationSeconds int           `json:"duration_seconds" validate:"gte=0"`
}

type GradeAnswerRequest struct {
	Points *int `json:"points" validate:"required,gte=0"`
}

type AbandonSessionRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=200"`
}

// ===== RESPONSE DTOs =====

type SessionResponse struct {
	ID             string          `json:"id"`
	TestID         string          `json:"test_id"`
	StudentID      string          `json:"student_id"`
	Status         SessionStatus   `json:"status"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
	TotalScore     int             `json:"total_score"`
	MaxScore       int             `json:"max_score"`
	Evaluated      bool            `json:"evaluated"`
	PendingManual  int             `json:"pending_manual"`
	AnsweredCount  int             `json:"answered_count"`
	ViolationCount int             `json:"violation_count"`
	Answers        []StudentAnswer `json:"answers"`
	Violations     []Violation     `json:"violations,omitempty"`
}

// NewSessionResponse renders a session. Violations are only included for
// reviewers.
func NewSessionResponse(s *TestSession, includeViolations bool) *SessionResponse {
	resp := &SessionResponse{
		ID:             s.ID(),
		TestID:         s.TestID(),
		StudentID:      s.StudentID(),
		Status:         s.Status(),
		StartedAt:      s.StartedAt(),
		FinishedAt:     s.FinishedAt(),
		TotalScore:     s.TotalScore(),
		MaxScore:       s.MaxScore(),
		Evaluated:      s.IsEvaluated(),
		PendingManual:  s.PendingManualCount(),
		AnsweredCount:  s.AnsweredCount(),
		ViolationCount: s.ViolationCount(),
		Answers:        s.Answers(),
	}
	if includeViolations {
		resp.Violations = s.Violations()
	}
	return resp
}

type ViolationResponse struct {
	Recorded bool `json:"recorded"`
}
