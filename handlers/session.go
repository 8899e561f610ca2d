package handlers

import (
	"net/http"

	"magnata-crm/middleware"
	"magnata-crm/session"

	"github.com/gin-gonic/gin"
)

// openSession returns the caller's session, opening it on first use. It
// writes the error response itself and returns false on failure.
func openSession(c *gin.Context, sessions *session.Manager) (*session.Session, bool) {
	userID := middleware.UserID(c)
	if userID == "" {
		SendError(c, http.StatusUnauthorized, CodeUnauthorized, "Autenticação necessária")
		return nil, false
	}

	s, err := sessions.Open(c.Request.Context(), userID, middleware.TokenExpiry(c))
	if err != nil {
		_ = c.Error(err)
		SendError(c, http.StatusServiceUnavailable, CodeUnavailable, SafeMessage(err, MsgPatientError))
		return nil, false
	}
	return s, true
}
