package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// ParamTokenKey is where the router stores the token parsed from the
	// request parameters.
	ParamTokenKey       = "param_token"
	authTokenContextKey = "auth_token"
)

const (
	MsgUnauthorized   = "Unauthorized. Please login again."
	MsgSessionExpired = "Session expired. Please login again."
)

// RequireSession aborts with the standard envelope unless the request
// carries a live admin token.
func (s *Service) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := s.RequestToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusOK, gin.H{"success": false, "error": MsgUnauthorized})
			return
		}
		if !s.IsValidSession(c.Request.Context(), token) {
			c.AbortWithStatusJSON(http.StatusOK, gin.H{"success": false, "error": MsgSessionExpired})
			return
		}
		c.Set(authTokenContextKey, token)
		c.Next()
	}
}

// AuthTokenFromContext retrieves the token accepted by RequireSession.
func AuthTokenFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(authTokenContextKey)
	if !ok {
		return "", false
	}
	token, ok := val.(string)
	return token, ok
}

// RequestToken returns the token from the request parameters, falling back
// to a bearer Authorization header.
func (s *Service) RequestToken(c *gin.Context) string {
	if v, ok := c.Get(ParamTokenKey); ok {
		if token, _ := v.(string); token != "" {
			return token
		}
	}
	authHeader := c.GetHeader(s.headerName)
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
