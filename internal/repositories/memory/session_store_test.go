package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/SAP-F-2025/test-session-service/internal/models"
	"github.com/SAP-F-2025/test-session-service/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func TestSessionStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	session := models.NewTestSession("test-1", "student-1", 5, now)

	require.NoError(t, store.Save(ctx, session))
	assert.Equal(t, 1, session.Version())

	loaded, err := store.Load(ctx, session.ID())
	require.NoError(t, err)
	assert.Equal(t, session.Snapshot(), loaded.Snapshot())

	_, err = store.Load(ctx, "missing")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestSessionStore_LoadActive(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	active, err := store.LoadActive(ctx, "test-1", "student-1")
	require.NoError(t, err)
	assert.Nil(t, active)

	session := models.NewTestSession("test-1", "student-1", 5, now)
	require.NoError(t, store.Save(ctx, session))

	active, err = store.LoadActive(ctx, "test-1", "student-1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, session.ID(), active.ID())

	require.NoError(t, active.Abandon(now.Add(time.Hour)))
	require.NoError(t, store.Save(ctx, active))

	active, err = store.LoadActive(ctx, "test-1", "student-1")
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestSessionStore_RejectsSecondActiveSession(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	require.NoError(t, store.Save(ctx, models.NewTestSession("test-1", "student-1", 5, now)))

	err := store.Save(ctx, models.NewTestSession("test-1", "student-1", 5, now))
	assert.ErrorIs(t, err, repositories.ErrActiveSessionExists)

	// other students and other tests are independent
	require.NoError(t, store.Save(ctx, models.NewTestSession("test-1", "student-2", 5, now)))
	require.NoError(t, store.Save(ctx, models.NewTestSession("test-2", "student-1", 5, now)))
}

func TestSessionStore_ConcurrentInsertsLeaveOneActive(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	const workers = 32
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.Save(ctx, models.NewTestSession("test-1", "student-1", 5, now))
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, repositories.ErrActiveSessionExists)
		}
	}
	assert.Equal(t, 1, succeeded)

	sessions, err := store.ListInProgress(ctx, repositories.SessionCursor{}, 0)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestSessionStore_StaleSave(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	session := models.NewTestSession("test-1", "student-1", 5, now)
	require.NoError(t, store.Save(ctx, session))

	first, err := store.Load(ctx, session.ID())
	require.NoError(t, err)
	second, err := store.Load(ctx, session.ID())
	require.NoError(t, err)

	require.NoError(t, first.SubmitAnswer("q1", nil, "a", now))
	require.NoError(t, store.Save(ctx, first))

	require.NoError(t, second.SubmitAnswer("q2", nil, "b", now))
	assert.ErrorIs(t, store.Save(ctx, second), repositories.ErrStaleSession)

	loaded, err := store.Load(ctx, session.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.AnsweredCount())
	assert.Equal(t, 2, loaded.Version())
}

func TestSessionStore_CountCompletedAttempts(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	completed := models.NewTestSession("test-1", "student-1", 5, now)
	require.NoError(t, completed.Complete(now.Add(time.Minute), models.QuestionSet{}, func(*models.Question, models.StudentAnswer) models.GradeResult {
		return models.GradeResult{}
	}))
	require.NoError(t, store.Save(ctx, completed))

	abandoned := models.NewTestSession("test-1", "student-1", 5, now.Add(time.Hour))
	require.NoError(t, abandoned.Abandon(now.Add(2*time.Hour)))
	require.NoError(t, store.Save(ctx, abandoned))

	require.NoError(t, store.Save(ctx, models.NewTestSession("test-1", "student-1", 5, now.Add(3*time.Hour))))

	count, err := store.CountCompletedAttempts(ctx, "test-1", "student-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	byTest, err := store.ListByTest(ctx, "test-1")
	require.NoError(t, err)
	require.Len(t, byTest, 3)
	assert.Equal(t, completed.ID(), byTest[0].ID())
}

func TestSessionStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewSessionStore()
	err := store.Save(ctx, models.NewTestSession("test-1", "student-1", 5, now))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSessionStore_ListInProgressPages(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	for i := 0; i < 5; i++ {
		session := models.NewTestSession("test-1", fmt.Sprintf("student-%d", i), 5, now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.Save(ctx, session))
	}

	var seen []string
	var cursor repositories.SessionCursor
	for {
		page, err := store.ListInProgress(ctx, cursor, 2)
		require.NoError(t, err)
		for _, session := range page {
			seen = append(seen, session.StudentID())
		}
		if len(page) < 2 {
			break
		}
		cursor = repositories.CursorAfter(page[len(page)-1])
	}

	assert.Equal(t, []string{"student-0", "student-1", "student-2", "student-3", "student-4"}, seen)
}
