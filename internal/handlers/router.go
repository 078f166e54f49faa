package handlers

import (
	"time"

	"github.com/SAP-F-2025/test-session-service/internal/middleware"
	"github.com/SAP-F-2025/test-session-service/internal/services"
	"github.com/SAP-F-2025/test-session-service/internal/utils"
	"github.com/SAP-F-2025/test-session-service/internal/validator"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type HandlerManager struct {
	sessionHandler *SessionHandler
	gradingHandler *GradingHandler
	auth           gin.HandlerFunc
}

// NewHandlerManager wires the HTTP handlers. auth is the authentication
// middleware applied to every /api/v1 route.
func NewHandlerManager(
	sessionService services.SessionService,
	exporter *services.ResultsExporter,
	validator *validator.Validator,
	auth gin.HandlerFunc,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		sessionHandler: NewSessionHandler(sessionService, validator, logger),
		gradingHandler: NewGradingHandler(sessionService, exporter, validator, logger),
		auth:           auth,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	// Health check endpoint
	router.GET("/health", HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1", hm.auth)
	{
		// Student session routes
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", hm.sessionHandler.StartSession)
			sessions.GET("/active", hm.sessionHandler.GetActiveSession)
			sessions.GET("/:id", hm.sessionHandler.GetSession)
			sessions.PUT("/:id/answers/:question_id", hm.sessionHandler.SubmitAnswer)
			sessions.POST("/:id/violations", hm.sessionHandler.RecordViolation)
			sessions.POST("/:id/complete", hm.sessionHandler.CompleteSession)
		}

		// Grading routes, reviewers only
		grading := v1.Group("/grading", middleware.RequireReviewer())
		{
			grading.POST("/sessions/:id/answers/:question_id", hm.gradingHandler.GradeAnswer)
			grading.POST("/sessions/:id/abandon", hm.gradingHandler.AbandonSession)
			grading.GET("/tests/:test_id/results/export", hm.gradingHandler.ExportResults)
		}
	}
}

// CORS restricts browsers to allowedOrigins, or allows any origin when empty.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	if len(allowedOrigins) > 0 {
		corsConfig.AllowOrigins = allowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	return cors.New(corsConfig)
}
