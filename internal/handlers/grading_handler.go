package handlers

import (
	"fmt"
	"net/http"

	"github.com/SAP-F-2025/test-session-service/internal/models"
	"github.com/SAP-F-2025/test-session-service/internal/services"
	"github.com/SAP-F-2025/test-session-service/internal/utils"
	"github.com/SAP-F-2025/test-session-service/internal/validator"
	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type GradingHandler struct {
	BaseHandler
	sessionService services.SessionService
	exporter       *services.ResultsExporter
	validator      *validator.Validator
}

func NewGradingHandler(
	sessionService services.SessionService,
	exporter *services.ResultsExporter,
	validator *validator.Validator,
	logger utils.Logger,
) *GradingHandler {
	return &GradingHandler{
		BaseHandler:    NewBaseHandler(logger),
		sessionService: sessionService,
		exporter:       exporter,
		validator:      validator,
	}
}

// GradeAnswer grades an answer that needs manual review
// @Summary Grade answer
// @Description Manually grades a stored answer of a completed session
// @Tags grading
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param question_id path string true "Question ID"
// @Param grade body models.GradeAnswerRequest true "Grading data"
// @Success 200 {object} models.SessionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /grading/sessions/{id}/answers/{question_id} [post]
func (h *GradingHandler) GradeAnswer(c *gin.Context) {
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

	var req models.GradeAnswerRequest
	if !bindJSON(c, h.validator, &req) {
		return
	}

	h.LogRequest(c, "Grading answer", "session_id", sessionID, "question_id", questionID, "points", *req.Points)

	session, err := h.sessionService.GradeManually(c.Request.Context(), sessionID, questionID, *req.Points, caller.ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewSessionResponse(session, true))
}

// AbandonSession force-ends an in-progress session
// @Summary Abandon session
// @Tags grading
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param body body models.AbandonSessionRequest false "Reason"
// @Success 200 {object} models.SessionResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /grading/sessions/{id}/abandon [post]
func (h *GradingHandler) AbandonSession(c *gin.Context) {
	sessionID := ParseStringIDParam(c, "id")
	if sessionID == "" {
		return
	}

	var req models.AbandonSessionRequest
	if c.Request.ContentLength != 0 {
		if !bindJSON(c, h.validator, &req) {
			return
		}
	}

	h.LogRequest(c, "Abandoning session", "session_id", sessionID, "reason", req.Reason)

	session, err := h.sessionService.AbandonSession(c.Request.Context(), sessionID, req.Reason)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewSessionResponse(session, true))
}

// ExportResults downloads every session of a test as an xlsx workbook
// @Summary Export results
// @Tags grading
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param test_id path string true "Test ID"
// @Success 200 {file} file
// @Failure 404 {object} ErrorResponse
// @Router /grading/tests/{test_id}/results/export [get]
func (h *GradingHandler) ExportResults(c *gin.Context) {
	testID := ParseStringIDParam(c, "test_id")
	if testID == "" {
		return
	}

	h.LogRequest(c, "Exporting results", "test_id", testID)

	data, err := h.exporter.ExportResults(c.Request.Context(), testID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="results-%s.xlsx"`, testID))
	c.Data(http.StatusOK, xlsxContentType, data)
}
