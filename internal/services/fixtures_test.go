package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/SAP-F-2025/test-session-service/internal/events"
	"github.com/SAP-F-2025/test-session-service/internal/models"
	"github.com/SAP-F-2025/test-session-service/internal/repositories"
	"github.com/SAP-F-2025/test-session-service/internal/repositories/memory"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	subjectID = "subject-1"
	studentID = "student-1"
)

var (
	baseTime   = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	store   *memory.SessionStore
	catalog *memory.Catalog
	events  *events.MockEventPublisher
	clock   *fakeClock
	service SessionService
}

func newHarness(t *testing.T, tests ...*models.TestDefinition) *harness {
	t.Helper()
	h := &harness{
		store:   memory.NewSessionStore(),
		catalog: memory.NewCatalog(),
		events:  events.NewMockEventPublisher(testLogger),
		clock:   &fakeClock{now: baseTime},
	}
	for _, test := range tests {
		require.NoError(t, h.catalog.PutTest(test))
	}
	h.catalog.Enroll(subjectID, studentID)
	h.service = NewSessionService(h.store, h.catalog, h.events, h.clock.Now, testLogger)
	return h
}

// twoQuestionTest is a single-choice question worth 2 and a short answer worth 3.
func twoQuestionTest(id string) *models.TestDefinition {
	return &models.TestDefinition{
		ID:        id,
		SubjectID: subjectID,
		Title:     "Geography",
		Status:    models.TestPublished,
		Settings:  models.TestSettings{MaxAttempts: 1},
		Sections: []models.TestSection{{
			ID: "section-1",
			Questions: []models.Question{
				{
					ID: "q1", Type: models.SingleChoice, Points: 2,
					Options: []models.AnswerOption{
						{ID: "optA", Text: "A", IsCorrect: true},
						{ID: "optB", Text: "B"},
					},
				},
				{
					ID: "q2", Type: models.ShortAnswer, Points: 3,
					Options: []models.AnswerOption{{ID: "q2-key", Text: "42", IsCorrect: true}},
				},
			},
		}},
	}
}

func essayTest(id string) *models.TestDefinition {
	return &models.TestDefinition{
		ID:        id,
		SubjectID: subjectID,
		Title:     "Essays",
		Status:    models.TestPublished,
		Settings:  models.TestSettings{MaxAttempts: 0},
		Sections: []models.TestSection{{
			ID: "section-1",
			Questions: []models.Question{
				{ID: "e1", Type: models.OpenEssay, Points: 5},
				{
					ID: "s1", Type: models.SingleChoice, Points: 1,
					Options: []models.AnswerOption{{ID: "yes", IsCorrect: true}, {ID: "no"}},
				},
			},
		}},
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// MockSessionStore is a mock implementation of repositories.SessionStore
type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) Load(ctx context.Context, sessionID string) (*models.TestSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TestSession), args.Error(1)
}

func (m *MockSessionStore) LoadActive(ctx context.Context, testID, studentID string) (*models.TestSession, error) {
	args := m.Called(ctx, testID, studentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TestSession), args.Error(1)
}

func (m *MockSessionStore) CountCompletedAttempts(ctx context.Context, testID, studentID string) (int, error) {
	args := m.Called(ctx, testID, studentID)
	return args.Int(0), args.Error(1)
}

func (m *MockSessionStore) Save(ctx context.Context, session *models.TestSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionStore) ListInProgress(ctx context.Context, after repositories.SessionCursor, limit int) ([]*models.TestSession, error) {
	args := m.Called(ctx, after, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.TestSession), args.Error(1)
}

func (m *MockSessionStore) ListByTest(ctx context.Context, testID string) ([]*models.TestSession, error) {
	args := m.Called(ctx, testID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.TestSession), args.Error(1)
}

// MockTestCatalog is a mock implementation of repositories.TestCatalog
type MockTestCatalog struct {
	mock.Mock
}

func (m *MockTestCatalog) GetTestDefinition(ctx context.Context, testID string) (*models.TestDefinition, error) {
	args := m.Called(ctx, testID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TestDefinition), args.Error(1)
}

func (m *MockTestCatalog) IsEnrolled(ctx context.Context, subjectID, studentID string) (bool, error) {
	args := m.Called(ctx, subjectID, studentID)
	return args.Bool(0), args.Error(1)
}
