package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/SAP-F-2025/test-session-service/internal/errors"
	"github.com/SAP-F-2025/test-session-service/internal/events"
	"github.com/SAP-F-2025/test-session-service/internal/middleware"
	"github.com/SAP-F-2025/test-session-service/internal/models"
	"github.com/SAP-F-2025/test-session-service/internal/repositories/memory"
	"github.com/SAP-F-2025/test-session-service/internal/services"
	"github.com/SAP-F-2025/test-session-service/internal/utils"
	"github.com/SAP-F-2025/test-session-service/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	subjectID = "subject-1"
	student   = "student-1"
	teacher   = "teacher-1"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router  *gin.Engine
	catalog *memory.Catalog
	events  *events.MockEventPublisher
}

func newTestServer(t *testing.T, tests ...*models.TestDefinition) *testServer {
	t.Helper()
	store := memory.NewSessionStore()
	catalog := memory.NewCatalog()
	catalog.Enroll(subjectID, student)
	for _, test := range tests {
		require.NoError(t, catalog.PutTest(test))
	}

	publisher := events.NewMockEventPublisher(discardLogger)
	service := services.NewSessionService(store, catalog, publisher, nil, discardLogger)
	exporter := services.NewResultsExporter(store, catalog, discardLogger)

	router := gin.New()
	NewHandlerManager(service, exporter, validator.New(), middleware.HeaderAuth(), utils.NewSlogLogger(discardLogger)).
		SetupRoutes(router)

	return &testServer{router: router, catalog: catalog, events: publisher}
}

func (s *testServer) do(method, path, userID string, role models.UserRole, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(middleware.HeaderUserID, userID)
		req.Header.Set(middleware.HeaderUserRole, string(role))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) startSession(t *testing.T, testID string) models.SessionResponse {
	t.Helper()
	w := s.do(http.MethodPost, "/api/v1/sessions", student, models.RoleStudent, gin.H{"test_id": testID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeSession(t, w)
}

func decodeSession(t *testing.T, w *httptest.ResponseRecorder) models.SessionResponse {
	t.Helper()
	var resp models.SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func geographyTest(id string) *models.TestDefinition {
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
		Sections: []models.TestSection{{
			ID:        "section-1",
			Questions: []models.Question{{ID: "e1", Type: models.OpenEssay, Points: 5}},
		}},
	}
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/health", "", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestSessionHandler_Lifecycle(t *testing.T) {
	s := newTestServer(t, geographyTest("geo"))

	session := s.startSession(t, "geo")
	assert.Equal(t, models.SessionInProgress, session.Status)
	assert.Equal(t, 5, session.MaxScore)

	t.Run("second start conflicts", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/v1/sessions", student, models.RoleStudent, gin.H{"test_id": "geo"})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "SESSION_ALREADY_ACTIVE", decodeError(t, w).Code)
	})

	t.Run("active session resumes", func(t *testing.T) {
		w := s.do(http.MethodGet, "/api/v1/sessions/active?test_id=geo", student, models.RoleStudent, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, session.ID, decodeSession(t, w).ID)
	})

	t.Run("answers are stored", func(t *testing.T) {
		w := s.do(http.MethodPut, "/api/v1/sessions/"+session.ID+"/answers/q1", student, models.RoleStudent,
			gin.H{"selected_option_ids": []string{"optA"}})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = s.do(http.MethodPut, "/api/v1/sessions/"+session.ID+"/answers/q2", student, models.RoleStudent,
			gin.H{"text_answer": " 42 "})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, 2, decodeSession(t, w).AnsweredCount)
	})

	t.Run("unknown question is rejected", func(t *testing.T) {
		w := s.do(http.MethodPut, "/api/v1/sessions/"+session.ID+"/answers/nope", student, models.RoleStudent,
			gin.H{"text_answer": "x"})
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "QUESTION_NOT_FOUND", decodeError(t, w).Code)
	})

	t.Run("violation is recorded", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/v1/sessions/"+session.ID+"/violations", student, models.RoleStudent,
			gin.H{"type": "tab_switch", "duration_seconds": 3})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.JSONEq(t, `{"recorded":true}`, w.Body.String())
	})

	t.Run("complete grades the session", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/v1/sessions/"+session.ID+"/complete", student, models.RoleStudent, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decodeSession(t, w)
		assert.Equal(t, models.SessionCompleted, resp.Status)
		assert.Equal(t, 5, resp.TotalScore)
		assert.True(t, resp.Evaluated)
		assert.NotNil(t, resp.FinishedAt)
		assert.Empty(t, resp.Violations)
	})

	t.Run("late violation is acknowledged but dropped", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/v1/sessions/"+session.ID+"/violations", student, models.RoleStudent,
			gin.H{"type": "focus_lost"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"recorded":false}`, w.Body.String())
	})

	t.Run("answer after completion conflicts", func(t *testing.T) {
		w := s.do(http.MethodPut, "/api/v1/sessions/"+session.ID+"/answers/q1", student, models.RoleStudent,
			gin.H{"selected_option_ids": []string{"optB"}})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "SESSION_NOT_ACTIVE", decodeError(t, w).Code)
	})

	t.Run("attempts are used up", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/v1/sessions", student, models.RoleStudent, gin.H{"test_id": "geo"})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "MAX_ATTEMPTS_REACHED", decodeError(t, w).Code)
	})

	t.Run("other student is forbidden", func(t *testing.T) {
		w := s.do(http.MethodGet, "/api/v1/sessions/"+session.ID, "student-2", models.RoleStudent, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "UNAUTHORIZED_ACCESS", decodeError(t, w).Code)
	})

	t.Run("reviewer sees violations", func(t *testing.T) {
		w := s.do(http.MethodGet, "/api/v1/sessions/"+session.ID, teacher, models.RoleTeacher, nil)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeSession(t, w)
		require.Len(t, resp.Violations, 1)
		assert.Equal(t, models.ViolationTabSwitch, resp.Violations[0].Type)
	})

	assert.Len(t, s.events.EventsOfType(events.EventSessionCompleted), 1)
}

func TestSessionHandler_RequestErrors(t *testing.T) {
	s := newTestServer(t, geographyTest("geo"))
	session := s.startSession(t, "geo")

	tests := []struct {
		name       string
		method     string
		path       string
		userID     string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing identity",
			method:     http.MethodPost,
			path:       "/api/v1/sessions",
			body:       gin.H{"test_id": "geo"},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "UNAUTHENTICATED",
		},
		{
			name:       "blank test id",
			method:     http.MethodPost,
			path:       "/api/v1/sessions",
			userID:     student,
			body:       gin.H{"test_id": "   "},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "unknown test",
			method:     http.MethodPost,
			path:       "/api/v1/sessions",
			userID:     student,
			body:       gin.H{"test_id": "missing"},
			wantStatus: http.StatusNotFound,
			wantCode:   "TEST_NOT_FOUND",
		},
		{
			name:       "unknown violation type",
			method:     http.MethodPost,
			path:       "/api/v1/sessions/" + session.ID + "/violations",
			userID:     student,
			body:       gin.H{"type": "sneezing"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "negative violation duration",
			method:     http.MethodPost,
			path:       "/api/v1/sessions/" + session.ID + "/violations",
			userID:     student,
			body:       gin.H{"type": "tab_switch", "duration_seconds": -1},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "unknown session",
			method:     http.MethodPost,
			path:       "/api/v1/sessions/nope/complete",
			userID:     student,
			wantStatus: http.StatusNotFound,
			wantCode:   "SESSION_NOT_FOUND",
		},
		{
			name:       "malformed session id",
			method:     http.MethodGet,
			path:       "/api/v1/sessions/abc",
			userID:     student,
			wantStatus: http.StatusNotFound,
			wantCode:   "SESSION_NOT_FOUND",
		},
		{
			name:       "no active session",
			method:     http.MethodGet,
			path:       "/api/v1/sessions/active?test_id=other",
			userID:     student,
			wantStatus: http.StatusNotFound,
			wantCode:   "SESSION_NOT_FOUND",
		},
		{
			name:       "students cannot grade",
			method:     http.MethodPost,
			path:       "/api/v1/grading/sessions/" + session.ID + "/abandon",
			userID:     student,
			wantStatus: http.StatusForbidden,
			wantCode:   "FORBIDDEN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(tt.method, tt.path, tt.userID, models.RoleStudent, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, tt.wantCode, decodeError(t, w).Code)
		})
	}
}

func TestGradingHandler_GradeAnswer(t *testing.T) {
	s := newTestServer(t, essayTest("essay"))
	session := s.startSession(t, "essay")

	w := s.do(http.MethodPut, "/api/v1/sessions/"+session.ID+"/answers/e1", student, models.RoleStudent,
		gin.H{"text_answer": "Rivers shape valleys."})
	require.Equal(t, http.StatusOK, w.Code)

	gradePath := "/api/v1/grading/sessions/" + session.ID + "/answers/e1"

	t.Run("grading before completion is refused", func(t *testing.T) {
		w := s.do(http.MethodPost, gradePath, teacher, models.RoleTeacher, gin.H{"points": 4})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "GRADING_NOT_ALLOWED", decodeError(t, w).Code)
	})

	w = s.do(http.MethodPost, "/api/v1/sessions/"+session.ID+"/complete", student, models.RoleStudent, nil)
	require.Equal(t, http.StatusOK, w.Code)
	completed := decodeSession(t, w)
	assert.Equal(t, 1, completed.PendingManual)
	assert.False(t, completed.Evaluated)

	t.Run("points are required", func(t *testing.T) {
		w := s.do(http.MethodPost, gradePath, teacher, models.RoleTeacher, gin.H{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("points above the question maximum", func(t *testing.T) {
		w := s.do(http.MethodPost, gradePath, teacher, models.RoleTeacher, gin.H{"points": 6})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "INVALID_POINTS", decodeError(t, w).Code)
	})

	t.Run("grading evaluates the session", func(t *testing.T) {
		w := s.do(http.MethodPost, gradePath, teacher, models.RoleTeacher, gin.H{"points": 4})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decodeSession(t, w)
		assert.Equal(t, 4, resp.TotalScore)
		assert.Equal(t, 0, resp.PendingManual)
		assert.True(t, resp.Evaluated)
	})

	graded := s.events.EventsOfType(events.EventAnswerGraded)
	require.Len(t, graded, 1)
	assert.Len(t, s.events.EventsOfType(events.EventSessionEvaluated), 1)
}

func TestGradingHandler_AbandonSession(t *testing.T) {
	s := newTestServer(t, geographyTest("geo"))
	session := s.startSession(t, "geo")
	path := "/api/v1/grading/sessions/" + session.ID + "/abandon"

	w := s.do(http.MethodPost, path, "proctor-1", models.RoleProctor, gin.H{"reason": "left the room"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.SessionAbandoned, decodeSession(t, w).Status)

	abandoned := s.events.EventsOfType(events.EventSessionAbandoned)
	require.Len(t, abandoned, 1)
	assert.Equal(t, "left the room", abandoned[0].Data.(events.SessionAbandonedEvent).Reason)

	w = s.do(http.MethodPost, path, "proctor-1", models.RoleProctor, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGradingHandler_ExportResults(t *testing.T) {
	s := newTestServer(t, geographyTest("geo"))
	s.startSession(t, "geo")

	w := s.do(http.MethodGet, "/api/v1/grading/tests/geo/results/export", teacher, models.RoleTeacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "results-geo.xlsx")
	assert.NotEmpty(t, w.Body.Bytes())

	w = s.do(http.MethodGet, "/api/v1/grading/tests/missing/results/export", teacher, models.RoleTeacher, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// failingSessionService fails every start with an infrastructure error.
type failingSessionService struct {
	services.SessionService
}

func (failingSessionService) StartSession(context.Context, string, string) (*models.TestSession, error) {
	return nil, apperrors.NewUnhandledSessionError("save new session", errors.New("connection reset"))
}

func TestSessionHandler_UnhandledErrorIsHidden(t *testing.T) {
	router := gin.New()
	NewHandlerManager(failingSessionService{}, nil, validator.New(), middleware.HeaderAuth(), utils.NewSlogLogger(discardLogger)).
		SetupRoutes(router)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", bytes.NewBufferString(`{"test_id":"geo"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderUserID, student)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, w).Code)
}

func TestCORS(t *testing.T) {
	router := gin.New()
	router.Use(CORS([]string{"https://exam.example.com"}))
	router.GET("/health", HealthCheck)

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://exam.example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "https://exam.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("foreign origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
