package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"magnata-crm/dispatch"
	"magnata-crm/models"

	"github.com/gin-gonic/gin"
)

const ServiceKeyHeader = "X-Service-Key"

type ReminderHandler struct {
	dispatcher *dispatch.Dispatcher
	serviceKey string
	loc        *time.Location
	now        func() time.Time
}

func NewReminderHandler(dispatcher *dispatch.Dispatcher, serviceKey string, loc *time.Location) *ReminderHandler {
	return &ReminderHandler{dispatcher: dispatcher, serviceKey: serviceKey, loc: loc, now: time.Now}
}

type ReminderResponse struct {
	Message string            `json:"message"`
	Results []dispatch.Result `json:"results"`
}

// SendReminders runs the dispatcher for ?date=YYYY-MM-DD, or tomorrow when
// the parameter is absent. CORS headers come from middleware.CORS.
func (h *ReminderHandler) SendReminders(c *gin.Context) {
	if h.serviceKey != "" {
		key := c.GetHeader(ServiceKeyHeader)
		if subtle.ConstantTimeCompare([]byte(key), []byte(h.serviceKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid service key"})
			return
		}
	}

	date := dispatch.Tomorrow(h.now(), h.loc)
	if raw := c.Query("date"); raw != "" {
		if _, err := models.Date(raw).Time(h.loc); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected YYYY-MM-DD"})
			return
		}
		date = models.Date(raw)
	}

	report, err := h.dispatcher.Run(c.Request.Context(), date)
	if err != nil {
		if errors.Is(err, dispatch.ErrRunInProgress) {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, dispatch.ErrGatewayNotConfigured) {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Z-API credentials not configured"})
			return
		}
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if report.Candidates == 0 {
		c.JSON(http.StatusOK, gin.H{"message": "No reminders to send", "count": 0})
		return
	}
	c.JSON(http.StatusOK, ReminderResponse{Message: "Reminders processed", Results: report.Results})
}
