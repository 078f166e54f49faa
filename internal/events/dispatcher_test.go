package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/SAP-F-2025/test-session-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// blockingPublisher holds every Publish call until release is closed.
type blockingPublisher struct {
	*MockEventPublisher
	release chan struct{}
	once    sync.Once
}

func (b *blockingPublisher) Publish(ctx context.Context, event *SessionEvent) error {
	<-b.release
	return b.MockEventPublisher.Publish(ctx, event)
}

func (b *blockingPublisher) unblock() {
	b.once.Do(func() { close(b.release) })
}

type failingPublisher struct{ closed bool }

func (f *failingPublisher) Publish(context.Context, *SessionEvent) error {
	return errors.New("broker unavailable")
}

func (f *failingPublisher) Close() error {
	f.closed = true
	return nil
}

func sampleSession() *models.TestSession {
	return models.NewTestSession("test-1", "student-1", 10, time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))
}

func TestDispatcher_DeliversAndDrainsOnClose(t *testing.T) {
	mock := NewMockEventPublisher(testLogger)
	d := NewDispatcher(mock, 16, testLogger)
	d.Start()

	session := sampleSession()
	for i := 0; i < 5; i++ {
		d.Emit(NewSessionStartedEvent(session))
	}

	require.NoError(t, d.Close())
	assert.Len(t, mock.GetPublishedEvents(), 5)

	// emitting after close is dropped, not a panic
	d.Emit(NewSessionStartedEvent(session))
	assert.Len(t, mock.GetPublishedEvents(), 5)
	assert.NoError(t, d.Close())
}

func TestDispatcher_EmitNeverBlocks(t *testing.T) {
	blocking := &blockingPublisher{MockEventPublisher: NewMockEventPublisher(testLogger), release: make(chan struct{})}
	defer blocking.unblock()

	d := NewDispatcher(blocking, 2, testLogger)
	d.Start()

	session := sampleSession()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			d.Emit(NewSessionStartedEvent(session))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full queue")
	}

	blocking.unblock()
	require.NoError(t, d.Close())

	// one in flight plus the buffered ones; everything else was dropped
	published := len(blocking.GetPublishedEvents())
	assert.GreaterOrEqual(t, published, 1)
	assert.LessOrEqual(t, published, 3)
}

func TestDispatcher_PublishFailureIsLoggedOnly(t *testing.T) {
	failing := &failingPublisher{}
	d := NewDispatcher(failing, 4, testLogger)
	d.Start()

	d.Emit(NewSessionStartedEvent(sampleSession()))
	require.NoError(t, d.Close())
	assert.True(t, failing.closed)
}

func TestFanoutPublisher(t *testing.T) {
	first := NewMockEventPublisher(testLogger)
	second := NewMockEventPublisher(testLogger)
	failing := &failingPublisher{}

	fanout := NewFanoutPublisher(first, failing, second)
	err := fanout.Publish(context.Background(), NewSessionStartedEvent(sampleSession()))

	assert.Error(t, err)
	assert.Len(t, first.GetPublishedEvents(), 1)
	assert.Len(t, second.GetPublishedEvents(), 1)

	require.NoError(t, fanout.Close())
	assert.True(t, failing.closed)
}

func TestSessionEventFactories(t *testing.T) {
	session := sampleSession()
	at := session.StartedAt().Add(time.Minute)
	require.NoError(t, session.SubmitAnswer("q1", []string{"a"}, "", at))

	t.Run("answer submitted carries running count", func(t *testing.T) {
		event := NewAnswerSubmittedEvent(session, "q1", 4, at)
		assert.Equal(t, EventAnswerSubmitted, event.Type)
		assert.Equal(t, "test-1", event.TestID)
		assert.Equal(t, session.ID(), event.SessionID)
		assert.Equal(t, "test-session-service", event.Source)
		assert.Equal(t, "1.0", event.Version)

		data, ok := event.Data.(AnswerSubmittedEvent)
		require.True(t, ok)
		assert.Equal(t, 1, data.QuestionNumber)
		assert.Equal(t, 4, data.TotalQuestions)
	})

	t.Run("ids are unique", func(t *testing.T) {
		a := NewSessionStartedEvent(session)
		b := NewSessionStartedEvent(session)
		assert.NotEqual(t, a.ID, b.ID)
	})

	t.Run("kafka message metadata", func(t *testing.T) {
		event := NewSessionStartedEvent(session)
		msg, err := toMessage(event)
		require.NoError(t, err)
		assert.Equal(t, event.ID, msg.UUID)
		assert.Equal(t, string(EventSessionStarted), msg.Metadata.Get("event_type"))
		assert.Equal(t, session.ID(), msg.Metadata.Get("session_id"))
		assert.Equal(t, "test-1", msg.Metadata.Get("test_id"))
	})
}

func TestMonitorChannel(t *testing.T) {
	assert.Equal(t, "test:abc:monitor", MonitorChannel("test", "abc"))
	assert.Equal(t, "exam:abc:monitor", MonitorChannel("exam", "abc"))
}

func TestMockEventPublisher_EventsOfType(t *testing.T) {
	mock := NewMockEventPublisher(testLogger)
	session := sampleSession()
	at := session.StartedAt()

	mock.Emit(NewSessionStartedEvent(session))
	mock.Emit(NewSessionAbandonedEvent(session, "manual", at))
	mock.Emit(NewSessionStartedEvent(session))

	assert.Len(t, mock.EventsOfType(EventSessionStarted), 2)
	assert.Len(t, mock.EventsOfType(EventSessionAbandoned), 1)

	mock.ClearEvents()
	assert.Empty(t, mock.GetPublishedEvents())
}
