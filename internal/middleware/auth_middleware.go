package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/setrag/rail-booking-backend/internal/models"
	"github.com/setrag/rail-booking-backend/pkg/jwt"
	"github.com/sirupsen/logrus"
)

// UserContextKey is the key used to store user information in Gin context
const UserContextKey = "user"

// UserContext represents the authenticated user's information
type UserContext struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Roles  []string  `json:"roles"`
}

// Identity converts the context into the identity services work with
func (u UserContext) Identity() *models.Identity {
	return &models.Identity{UserID: u.UserID, Email: u.Email, Roles: u.Roles}
}

type authFailure struct {
	status  int
	error   string
	message string
	code    string
}

// authenticate reads the bearer token. It returns nil, nil when no
// Authorization header is present.
func authenticate(c *gin.Context, jwtService *jwt.Service) (*UserContext, *authFailure) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, nil
	}

	// Check Bearer token format
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, &authFailure{http.StatusUnauthorized, "unauthorized", "Invalid authorization header format. Expected: Bearer <token>", "INVALID_AUTH_FORMAT"}
	}

	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		return nil, &authFailure{http.StatusUnauthorized, "unauthorized", "Token cannot be empty", "INVALID_AUTH_FORMAT"}
	}

	claims, err := jwtService.ValidateAccessToken(tokenString)
	if err != nil {
		return nil, &authFailure{http.StatusUnauthorized, "invalid_token", "Invalid or expired access token", "INVALID_TOKEN"}
	}

	return &UserContext{UserID: claims.UserID, Email: claims.Email, Roles: claims.Roles}, nil
}

func abortAuth(c *gin.Context, logger *logrus.Logger, f *authFailure) {
	logger.WithFields(logrus.Fields{
		"path": c.Request.URL.Path,
		"ip":   c.ClientIP(),
		"code": f.code,
	}).Warn("Authentication failed")

	c.JSON(f.status, gin.H{
		"error":   f.error,
		"message": f.message,
		"code":    f.code,
	})
	c.Abort()
}

// AuthMiddleware creates a middleware that requires a valid JWT
func AuthMiddleware(jwtService *jwt.Service, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, failure := authenticate(c, jwtService)
		if failure == nil && user == nil {
			failure = &authFailure{http.StatusUnauthorized, "unauthorized", "Authorization header is required", "MISSING_AUTH_HEADER"}
		}
		if failure != nil {
			abortAuth(c, logger, failure)
			return
		}

		c.Set(UserContextKey, *user)
		c.Next()
	}
}

// OptionalAuth attaches the user when a token is sent and lets guests
// through. A token that is present but invalid is still rejected.
func OptionalAuth(jwtService *jwt.Service, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, failure := authenticate(c, jwtService)
		if failure != nil {
			abortAuth(c, logger, failure)
			return
		}
		if user != nil {
			c.Set(UserContextKey, *user)
		}
		c.Next()
	}
}

// RequireRole creates a middleware that checks if user has required role
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, exists := GetUserContext(c)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "User context not found. Auth middleware may not be applied.",
				"code":    "MISSING_USER_CONTEXT",
			})
			c.Abort()
			return
		}

		identity := userCtx.Identity()
		for _, role := range roles {
			if identity.HasRole(role) {
				c.Next()
				return
			}
		}

		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "You don't have permission to access this resource",
			"code":    "INSUFFICIENT_PERMISSIONS",
		})
		c.Abort()
	}
}

// GetUserContext retrieves the user context from Gin context
func GetUserContext(c *gin.Context) (UserContext, bool) {
	value, exists := c.Get(UserContextKey)
	if !exists {
		return UserContext{}, false
	}

	userCtx, ok := value.(UserContext)
	if !ok {
		return UserContext{}, false
	}

	return userCtx, true
}

// GetIdentity returns the caller's identity, or nil for a guest
func GetIdentity(c *gin.Context) *models.Identity {
	userCtx, ok := GetUserContext(c)
	if !ok {
		return nil
	}
	return userCtx.Identity()
}
