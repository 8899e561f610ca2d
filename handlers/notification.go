package handlers

import (
	"errors"
	"net/http"
	"time"

	"magnata-crm/notify"
	"magnata-crm/session"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	sessions *session.Manager
	now      func() time.Time
}

func NewNotificationHandler(sessions *session.Manager) *NotificationHandler {
	return &NotificationHandler{sessions: sessions, now: time.Now}
}

func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	s, ok := openSession(c, h.sessions)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Engine.Snapshot())
}

func (h *NotificationHandler) Dismiss(c *gin.Context) {
	s, ok := openSession(c, h.sessions)
	if !ok {
		return
	}
	s.Engine.Dismiss(c.Param("key"))
	c.JSON(http.StatusOK, s.Engine.Snapshot())
}

func (h *NotificationHandler) DismissAll(c *gin.Context) {
	s, ok := openSession(c, h.sessions)
	if !ok {
		return
	}
	s.Engine.DismissAll()
	c.JSON(http.StatusOK, s.Engine.Snapshot())
}

// TriggerTest raises tomorrow's reminders immediately, outside the checkpoints.
func (h *NotificationHandler) TriggerTest(c *gin.Context) {
	s, ok := openSession(c, h.sessions)
	if !ok {
		return
	}

	raised, err := s.Engine.TriggerTest(c.Request.Context(), h.now())
	if err != nil {
		if errors.Is(err, notify.ErrNoUpcoming) {
			c.JSON(http.StatusOK, gin.H{
				"message":       "Nenhum paciente agendado para amanhã",
				"notifications": []notify.Notification{},
			})
			return
		}
		_ = c.Error(err)
		SendError(c, http.StatusInternalServerError, CodeInternal, MsgDefault)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Notificações de teste geradas",
		"notifications": raised,
	})
}
