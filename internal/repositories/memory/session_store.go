// Package memory holds in-process implementations of the repository
// contracts, used for local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/SAP-F-2025/test-session-service/internal/models"
	"github.com/SAP-F-2025/test-session-service/internal/repositories"
)

type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]models.SessionSnapshot
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]models.SessionSnapshot)}
}

var _ repositories.SessionStore = (*SessionStore)(nil)

func (s *SessionStore) Load(ctx context.Context, sessionID string) (*models.TestSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.sessions[sessionID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return models.RestoreTestSession(snap), nil
}

func (s *SessionStore) LoadActive(ctx context.Context, testID, studentID string) (*models.TestSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if snap, ok := s.findActive(testID, studentID); ok {
		return models.RestoreTestSession(snap), nil
	}
	return nil, nil
}

func (s *SessionStore) CountCompletedAttempts(ctx context.Context, testID, studentID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, snap := range s.sessions {
		if snap.TestID == testID && snap.StudentID == studentID && snap.Status.IsTerminal() {
			n++
		}
	}
	return n, nil
}

// Save inserts when the session has never been saved and otherwise compares
// versions before overwriting.
func (s *SessionStore) Save(ctx context.Context, session *models.TestSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := session.Snapshot()
	current, exists := s.sessions[snap.ID]

	if snap.Version == 0 {
		if exists {
			return repositories.ErrStaleSession
		}
		if snap.Status == models.SessionInProgress {
			if _, ok := s.findActive(snap.TestID, snap.StudentID); ok {
				return repositories.ErrActiveSessionExists
			}
		}
	} else if !exists || current.Version != snap.Version {
		return repositories.ErrStaleSession
	}

	snap.Version++
	s.sessions[snap.ID] = snap
	session.MarkSaved()
	return nil
}

func (s *SessionStore) ListInProgress(ctx context.Context, after repositories.SessionCursor, limit int) ([]*models.TestSession, error) {
	return s.list(ctx, limit, func(snap models.SessionSnapshot) bool {
		return snap.Status == models.SessionInProgress && after.Before(snap.StartedAt, snap.ID)
	})
}

func (s *SessionStore) ListByTest(ctx context.Context, testID string) ([]*models.TestSession, error) {
	return s.list(ctx, 0, func(snap models.SessionSnapshot) bool {
		return snap.TestID == testID
	})
}

func (s *SessionStore) list(ctx context.Context, limit int, keep func(models.SessionSnapshot) bool) ([]*models.TestSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []models.SessionSnapshot
	for _, snap := range s.sessions {
		if keep(snap) {
			matched = append(matched, snap)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].StartedAt.Equal(matched[j].StartedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].StartedAt.Before(matched[j].StartedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	sessions := make([]*models.TestSession, 0, len(matched))
	for _, snap := range matched {
		sessions = append(sessions, models.RestoreTestSession(snap))
	}
	return sessions, nil
}

func (s *SessionStore) findActive(testID, studentID string) (models.SessionSnapshot, bool) {
	for _, snap := range s.sessions {
		if snap.TestID == testID && snap.StudentID == studentID && snap.Status == models.SessionInProgress {
			return snap, true
		}
	}
	return models.SessionSnapshot{}, false
}
