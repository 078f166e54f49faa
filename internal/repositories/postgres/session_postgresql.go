package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/SAP-F-2025/test-session-service/internal/models"
	"github.com/SAP-F-2025/test-session-service/internal/repositories"
	"gorm.io/gorm"
)

// SessionPostgreSQL stores sessions in test_sessions. One-active-session per
// (test, student) is enforced by the partial unique index
// ux_test_sessions_active; the gorm connection must be opened with
// TranslateError so the violation surfaces as gorm.ErrDuplicatedKey.
type SessionPostgreSQL struct {
	db *gorm.DB
}

func NewSessionPostgreSQL(db *gorm.DB) repositories.SessionStore {
	return &SessionPostgreSQL{db: db}
}

func (p *SessionPostgreSQL) Load(ctx context.Context, sessionID string) (*models.TestSession, error) {
	var record models.TestSessionRecord
	if err := p.db.WithContext(ctx).First(&record, "id = ?", sessionID).Error; err != nil {
		return nil, lookupErr(err)
	}
	return record.ToSession()
}

func (p *SessionPostgreSQL) LoadActive(ctx context.Context, testID, studentID string) (*models.TestSession, error) {
	var record models.TestSessionRecord
	if err := p.db.WithContext(ctx).
		Where("test_id = ? AND student_id = ? AND status = ?", testID, studentID, models.SessionInProgress).
		First(&record).Error; err != nil {
		if repositories.IsNotFoundError(lookupErr(err)) {
			return nil, nil
		}
		return nil, err
	}
	return record.ToSession()
}

func (p *SessionPostgreSQL) CountCompletedAttempts(ctx context.Context, testID, studentID string) (int, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Model(&models.TestSessionRecord{}).
		Where("test_id = ? AND student_id = ? AND status IN ?", testID, studentID,
			[]models.SessionStatus{models.SessionCompleted, models.SessionAbandoned}).
		Count(&count).Error
	return int(count), err
}

func (p *SessionPostgreSQL) Save(ctx context.Context, session *models.TestSession) error {
	record, err := models.NewSessionRecord(session)
	if err != nil {
		return err
	}

	if session.Version() == 0 {
		record.Version = 1
		if err := p.db.WithContext(ctx).Create(record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return repositories.ErrActiveSessionExists
			}
			return fmt.Errorf("failed to insert session: %w", err)
		}
		session.MarkSaved()
		return nil
	}

	result := p.db.WithContext(ctx).
		Model(&models.TestSessionRecord{}).
		Where("id = ? AND version = ?", record.ID, session.Version()).
		Updates(map[string]interface{}{
			"status":      record.Status,
			"finished_at": record.FinishedAt,
			"answers":     record.Answers,
			"violations":  record.Violations,
			"total_score": record.TotalScore,
			"version":     session.Version() + 1,
		})
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return repositories.ErrActiveSessionExists
		}
		return fmt.Errorf("failed to update session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrStaleSession
	}
	session.MarkSaved()
	return nil
}

func (p *SessionPostgreSQL) ListInProgress(ctx context.Context, after repositories.SessionCursor, limit int) ([]*models.TestSession, error) {
	query := p.db.WithContext(ctx).
		Where("status = ?", models.SessionInProgress).
		Order("started_at ASC, id ASC")
	if !after.IsZero() {
		query = query.Where("(started_at, id) > (?, ?)", after.StartedAt, after.ID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	return p.find(query)
}

func (p *SessionPostgreSQL) ListByTest(ctx context.Context, testID string) ([]*models.TestSession, error) {
	return p.find(p.db.WithContext(ctx).Where("test_id = ?", testID).Order("started_at ASC"))
}

func (p *SessionPostgreSQL) find(query *gorm.DB) ([]*models.TestSession, error) {
	var records []models.TestSessionRecord
	if err := query.Find(&records).Error; err != nil {
		if isInvalidText(err) {
			return nil, nil
		}
		return nil, err
	}

	sessions := make([]*models.TestSession, 0, len(records))
	for i := range records {
		session, err := records[i].ToSession()
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}
