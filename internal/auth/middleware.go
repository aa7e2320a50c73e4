package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// GinAuth rejects requests without a valid token. A nil Service disables
// the check. The token is read from "Authorization: Bearer", then from the
// Basic auth password (checked against the operator password), then from
// the "token" query parameter for websocket clients that cannot set headers.
func GinAuth(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s == nil {
			c.Next()
			return
		}
		if !s.authenticate(c.Request) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

// LoginHandler serves POST /auth/login.
func LoginHandler(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "authentication disabled"})
			return
		}
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tok, err := s.Login(req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, tok)
	}
}

func (s *Service) authenticate(r *http.Request) bool {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return s.Verify(strings.TrimSpace(parts[1])) == nil
		}
	}
	if _, password, ok := r.BasicAuth(); ok {
		_, err := s.Login(password)
		return err == nil
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return s.Verify(t) == nil
	}
	return false
}
