package middleware

import (
	"net/http"
	"strings"

	"github.com/SAP-F-2025/test-session-service/internal/models"
	"github.com/SAP-F-2025/test-session-service/internal/utils"
	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"
)

const (
	ContextUserID   = "user_id"
	ContextUserRole = "user_role"
	contextCaller   = "caller"

	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// TokenParser validates a bearer token and returns its claims
type TokenParser interface {
	ParseJwtToken(token string) (*casdoorsdk.Claims, error)
}

type authErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// CasdoorAuth authenticates requests with Casdoor-issued JWTs.
func CasdoorAuth(parser TokenParser, logger utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			abortUnauthenticated(c, "Authorization header must be in the format: Bearer {token}")
			return
		}

		claims, err := parser.ParseJwtToken(strings.TrimSpace(token))
		if err != nil {
			logger.Warn("Rejected bearer token", "error", err, "path", c.Request.URL.Path)
			abortUnauthenticated(c, "Invalid or expired token")
			return
		}

		setCaller(c, models.Caller{
			ID:   claims.User.Id,
			Name: claims.User.Name,
			Role: roleFromClaims(claims),
		})
		c.Next()
	}
}

// HeaderAuth trusts identity headers set by an upstream gateway. Meant for
// deployments behind an authenticating proxy and for tests.
func HeaderAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID == "" {
			abortUnauthenticated(c, HeaderUserID+" header is required")
			return
		}

		role := models.UserRole(strings.ToLower(c.GetHeader(HeaderUserRole)))
		if role == "" {
			role = models.RoleStudent
		}
		if !role.IsValid() {
			abortUnauthenticated(c, "unknown role "+string(role))
			return
		}

		setCaller(c, models.Caller{ID: userID, Role: role})
		c.Next()
	}
}

// RequireReviewer only lets teachers, proctors and admins through.
func RequireReviewer() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := GetCaller(c)
		if !ok || !caller.Role.CanReview() {
			c.AbortWithStatusJSON(http.StatusForbidden, authErrorResponse{
				Message: "Insufficient permissions",
				Code:    "FORBIDDEN",
			})
			return
		}
		c.Next()
	}
}

// GetCaller returns the identity stored by one of the auth middlewares
func GetCaller(c *gin.Context) (models.Caller, bool) {
	value, exists := c.Get(contextCaller)
	if !exists {
		return models.Caller{}, false
	}
	caller, ok := value.(models.Caller)
	return caller, ok
}

func setCaller(c *gin.Context, caller models.Caller) {
	c.Set(contextCaller, caller)
	c.Set(ContextUserID, caller.ID)
	c.Set(ContextUserRole, caller.Role)
}

// roleFromClaims picks the first known Casdoor role, then the user tag.
func roleFromClaims(claims *casdoorsdk.Claims) models.UserRole {
	for _, role := range claims.User.Roles {
		if role == nil {
			continue
		}
		if r := models.UserRole(strings.ToLower(role.Name)); r.IsValid() {
			return r
		}
	}
	if r := models.UserRole(strings.ToLower(claims.User.Tag)); r.IsValid() {
		return r
	}
	if claims.User.IsAdmin {
		return models.RoleAdmin
	}
	return models.RoleStudent
}

func abortUnauthenticated(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, authErrorResponse{
		Message: message,
		Code:    "UNAUTHENTICATED",
	})
}
