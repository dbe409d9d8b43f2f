package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/vquang/leaflib/database"
)

// SessionUserKey is the session key holding the logged-in user id.
const SessionUserKey = "user_id"

func (h *Handler) LoginPage(c *gin.Context) {
	h.render(c, http.StatusOK, "login.html", nil)
}

func (h *Handler) Login(c *gin.Context) {
	username := strings.TrimSpace(c.PostForm("username"))
	password := c.PostForm("password")

	user, err := h.db.Authenticate(c.Request.Context(), username, password)
	if err != nil {
		if !errors.Is(err, database.ErrInvalidCredentials) {
			log.Error("login failed", "username", username, "error", err)
		}
		flash(c, "danger", "Invalid username or password.")
		c.Redirect(http.StatusFound, "/login")
		return
	}

	session := sessions.Default(c)
	session.Set(SessionUserKey, user.ID)
	if err := session.Save(); err != nil {
		log.Error("failed to save session", "error", err)
		c.String(http.StatusInternalServerError, "session error")
		return
	}
	c.Redirect(http.StatusFound, "/")
}

func (h *Handler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		log.Error("failed to clear session", "error", err)
	}
	c.Redirect(http.StatusFound, "/login")
}

func (h *Handler) RegisterPage(c *gin.Context) {
	h.render(c, http.StatusOK, "register.html", nil)
}

func (h *Handler) Register(c *gin.Context) {
	username := strings.TrimSpace(c.PostForm("username"))
	password := c.PostForm("password")
	confirm := c.PostForm("confirm_password")

	switch {
	case username == "" || password == "":
		flash(c, "danger", "Username and password are required.")
	case password != confirm:
		flash(c, "danger", "Passwords do not match.")
	default:
		_, err := h.db.CreateUser(c.Request.Context(), username, password)
		if errors.Is(err, database.ErrUsernameTaken) {
			flash(c, "danger", "This username is already taken.")
		} else if err != nil {
			log.Error("registration failed", "username", username, "error", err)
			flash(c, "danger", "Registration failed, try again.")
		} else {
			flash(c, "success", "Account created, you can log in now.")
			c.Redirect(http.StatusFound, "/login")
			return
		}
	}
	c.Redirect(http.StatusFound, "/register")
}

func (h *Handler) ChangePasswordPage(c *gin.Context) {
	h.render(c, http.StatusOK, "change_password.html", nil)
}

func (h *Handler) ChangePassword(c *gin.Context) {
	user := h.user(c)
	if user.IsGuest() {
		flash(c, "danger", "The guest account has no password.")
		c.Redirect(http.StatusFound, "/")
		return
	}

	current := c.PostForm("current_password")
	next := c.PostForm("new_password")
	confirm := c.PostForm("confirm_password")

	switch {
	case next == "":
		flash(c, "danger", "The new password must not be empty.")
	case next != confirm:
		flash(c, "danger", "Passwords do not match.")
	default:
		err := h.db.ChangePassword(c.Request.Context(), user.ID, current, next)
		if errors.Is(err, database.ErrInvalidCredentials) {
			flash(c, "danger", "The current password is wrong.")
		} else if err != nil {
			log.Error("password change failed", "user", user.Username, "error", err)
			flash(c, "danger", "Password change failed, try again.")
		} else {
			flash(c, "success", "Password changed.")
			c.Redirect(http.StatusFound, "/")
			return
		}
	}
	c.Redirect(http.StatusFound, "/change_password")
}
