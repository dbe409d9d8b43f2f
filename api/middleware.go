package api

import (
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/vquang/leaflib/api/handler"
	"github.com/vquang/leaflib/database"
)

// loadUser resolves the session user id to a user row and stores it in the
// request context. Stale sessions for deleted users are cleared.
func (s *Server) loadUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		raw := session.Get(handler.SessionUserKey)
		userID, ok := raw.(uint)
		if !ok {
			c.Next()
			return
		}

		user, err := s.db.GetUser(c.Request.Context(), userID)
		if err != nil {
			session.Clear()
			if err := session.Save(); err != nil {
				log.Error("failed to clear stale session", "error", err)
			}
			c.Next()
			return
		}
		c.Set(handler.UserContextKey, user)
		c.Next()
	}
}

// requireAuth blocks anonymous requests: pages redirect to the login form,
// API routes get a JSON 401.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(handler.UserContextKey); exists {
			c.Next()
			return
		}
		if wantsJSON(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "login required"})
			return
		}
		c.Redirect(http.StatusFound, "/login")
		c.Abort()
	}
}

// requireAdmin blocks non-admin users.
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := s.handlerUser(c)
		if user == nil || !user.IsAdmin {
			if wantsJSON(c) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "admin required"})
				return
			}
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}

func (s *Server) handlerUser(c *gin.Context) *database.User {
	raw, exists := c.Get(handler.UserContextKey)
	if !exists {
		return nil
	}
	user, ok := raw.(*database.User)
	if !ok {
		return nil
	}
	return user
}

func wantsJSON(c *gin.Context) bool {
	return strings.HasPrefix(c.Request.URL.Path, "/api/") ||
		strings.Contains(c.GetHeader("Accept"), "application/json")
}
