package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// TestSessionRecord is the row layout of a session. Answers and violations
// are stored as JSON lists of flat records.
type TestSessionRecord struct {
	ID         string         `json:"id" gorm:"primaryKey;type:uuid"`
	TestID     string         `json:"test_id" gorm:"type:uuid;not null;index:idx_test_sessions_test_student"`
	StudentID  string         `json:"student_id" gorm:"size:255;not null;index:idx_test_sessions_test_student"`
	Status     SessionStatus  `json:"status" gorm:"size:20;not null;index"`
	StartedAt  time.Time      `json:"started_at" gorm:"not null"`
	FinishedAt *time.Time     `json:"finished_at"`
	Answers    datatypes.JSON `json:"answers" gorm:"type:jsonb;not null"`
	Violations datatypes.JSON `json:"violations" gorm:"type:jsonb;not null"`
	TotalScore int            `json:"total_score" gorm:"not null;default:0"`
	MaxScore   int            `json:"max_score" gorm:"not null"`
	Version    int            `json:"version" gorm:"not null;default:1"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (TestSessionRecord) TableName() string { return "test_sessions" }

// NewSessionRecord flattens a session into its row layout.
func NewSessionRecord(s *TestSession) (*TestSessionRecord, error) {
	snap := s.Snapshot()

	answers, err := json.Marshal(snap.Answers)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal answers: %w", err)
	}
	violations, err := json.Marshal(snap.Violations)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal violations: %w", err)
	}

	return &TestSessionRecord{
		ID:         snap.ID,
		TestID:     snap.TestID,
		StudentID:  snap.StudentID,
		Status:     snap.Status,
		StartedAt:  snap.StartedAt,
		FinishedAt: snap.FinishedAt,
		Answers:    datatypes.JSON(answers),
		Violations: datatypes.JSON(violations),
		TotalScore: snap.TotalScore,
		MaxScore:   snap.MaxScore,
		Version:    snap.Version,
	}, nil
}

// ToSession rebuilds the aggregate from a row.
func (r *TestSessionRecord) ToSession() (*TestSession, error) {
	var answers []StudentAnswer
	if len(r.Answers) > 0 {
		if err := json.Unmarshal(r.Answers, &answers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal answers of session %s: %w", r.ID, err)
		}
	}
	var violations []Violation
	if len(r.Violations) > 0 {
		if err := json.Unmarshal(r.Violations, &violations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal violations of session %s: %w", r.ID, err)
		}
	}

	return RestoreTestSession(SessionSnapshot{
		ID:         r.ID,
		TestID:     r.TestID,
		StudentID:  r.StudentID,
		Status:     r.Status,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Answers:    answers,
		Violations: violations,
		TotalScore: r.TotalScore,
		MaxScore:   r.MaxScore,
		Version:    r.Version,
	}), nil
}
