package handlers

import (
	"net/http"
	"strings"

	"github.com/SAP-F-2025/test-session-service/internal/models"
	"github.com/SAP-F-2025/test-session-service/internal/services"
	"github.com/SAP-F-2025/test-session-service/internal/utils"
	"github.com/SAP-F-2025/test-session-service/internal/validator"
	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	BaseHandler
	sessionService services.SessionService
	validator      *validator.Validator
}

func NewSessionHandler(
	sessionService services.SessionService,
	validator *validator.Validator,
	logger utils.Logger,
) *SessionHandler {
	return &SessionHandler{
		BaseHandler:    NewBaseHandler(logger),
		sessionService: sessionService,
		validator:      validator,
	}
}

// StartSession starts a new test session for the calling student
// @Summary Start session
// @Tags sessions
// @Accept json
// @Produce json
// @Param session body models.StartSessionRequest true "Test to start"
// @Success 201 {object} models.SessionResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /sessions [post]
func (h *SessionHandler) StartSession(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var req models.StartSessionRequest
	if !bindJSON(c, h.validator, &req) {
		return
	}

	h.LogRequest(c, "Starting session", "test_id", req.TestID)

	session, err := h.sessionService.StartSession(c.Request.Context(), strings.TrimSpace(req.TestID), caller.ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.NewSessionResponse(session, false))
}

// GetSession returns a session. Students only see their own sessions;
// reviewers see any session including its violations.
// @Summary Get session
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.SessionResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	sessionID := ParseStringIDParam(c, "id")
	if sessionID == "" {
		return
	}
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var (
		session *models.TestSession
		err     error
	)
	if caller.Role.CanReview() {
		session, err = h.sessionService.GetSessionForReview(c.Request.Context(), sessionID)
	} else {
		session, err = h.sessionService.GetSession(c.Request.Context(), sessionID, caller.ID)
	}
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewSessionResponse(session, caller.Role.CanReview()))
}

// GetActiveSession returns the caller's in-progress session for a test
// @Summary Get active session
// @Tags sessions
// @Produce json
// @Param test_id query string true "Test ID"
// @Success 200 {object} models.SessionResponse
// @Failure 404 {object} ErrorResponse
// @Router /sessions/active [get]
func (h *SessionHandler) GetActiveSession(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	testID := strings.TrimSpace(c.Query("test_id"))
	if testID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid test_id",
			Details: "test_id query parameter is required",
		})
		return
	}

	session, err := h.sessionService.GetActiveSession(c.Request.Context(), testID, caller.ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewSessionResponse(session, false))
}

// SubmitAnswer stores or replaces the answer to one question
// @Summary Submit answer
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param question_id path string true "Question ID"
// @Param answer body models.SubmitAnswerRequest true "Answer"
// @Success 200 {object} models.SessionResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{id}/answers/{question_id} [put]
func (h *SessionHandler) SubmitAnswer(c *gin.Context) {
	sessionID := ParseStringIDParam(c, "id")
	if sessionID == "" {
		return
	}
	questionID := ParseStringIDParam(c, "question_id")
	if questionID == "" {
		return
	}
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var req models.SubmitAnswerRequest
	if !bindJSON(c, h.validator, &req) {
		return
	}

	session, err := h.sessionService.SubmitAnswer(c.Request.Context(), sessionID, caller.ID, questionID, req.SelectedOptionIDs, req.TextAnswer)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewSessionResponse(session, false))
}

// RecordViolation records a proctoring signal. Signals for a finished
// session are acknowledged with recorded=false.
// @Summary Record violation
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param violation body models.RecordViolationRequest true "Violation"
// @Success 201 {object} models.ViolationResponse
// @Success 200 {object} models.ViolationResponse
// @Failure 400 {object} ErrorResponse
// @Router /sessions/{id}/violations [post]
func (h *SessionHandler) RecordViolation(c *gin.Context) {
	sessionID := ParseStringIDParam(c, "id")
	if sessionID == "" {
		return
	}
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var req models.RecordViolationRequest
	if !bindJSON(c, h.validator, &req) {
		return
	}

	recorded, err := h.sessionService.RecordViolation(c.Request.Context(), sessionID, caller.ID, services.ViolationInput{
		Type:            req.Type,
		QuestionID:      req.QuestionID,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	status := http.StatusCreated
	if !recorded {
		status = http.StatusOK
	}
	c.JSON(status, models.ViolationResponse{Recorded: recorded})
}

// CompleteSession finishes the session and auto-grades its answers
// @Summary Complete session
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.SessionResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{id}/complete [post]
func (h *SessionHandler) CompleteSession(c *gin.Context) {
	sessionID := ParseStringIDParam(c, "id")
	if sessionID == "" {
		return
	}
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Completing session", "session_id", sessionID)

	session, err := h.sessionService.CompleteSession(c.Request.Context(), sessionID, caller.ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewSessionResponse(session, false))
}
