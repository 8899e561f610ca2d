package handlers

import (
	"net/http"
	"time"

	"magnata-crm/dashboard"
	"magnata-crm/session"

	"github.com/gin-gonic/gin"
)

type DashboardHandler struct {
	sessions *session.Manager
	loc      *time.Location
	now      func() time.Time
}

func NewDashboardHandler(sessions *session.Manager, loc *time.Location) *DashboardHandler {
	return &DashboardHandler{sessions: sessions, loc: loc, now: time.Now}
}

type DashboardResponse struct {
	Period string `json:"period"`
	dashboard.Stats
}

func (h *DashboardHandler) GetDashboard(c *gin.Context) {
	period, err := dashboard.ParsePeriod(c.Query("period"), c.Query("year"), c.Query("month"))
	if err != nil {
		SendError(c, http.StatusBadRequest, CodeBadRequest, "Período inválido")
		return
	}

	s, ok := openSession(c, h.sessions)
	if !ok {
		return
	}

	patients := dashboard.FilterByPeriod(s.Store.List(), period, h.now().In(h.loc))
	c.JSON(http.StatusOK, DashboardResponse{
		Period: period.Label(),
		Stats:  dashboard.Aggregate(patients),
	})
}
