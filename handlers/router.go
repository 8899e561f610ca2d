package handlers

import (
	"net/http"
	"time"

	"magnata-crm/dispatch"
	"magnata-crm/middleware"
	"magnata-crm/models"
	"magnata-crm/monitoring"
	"magnata-crm/session"
	"magnata-crm/utils"

	"github.com/gin-gonic/gin"
)

// Deps carries everything the router needs. Redis, Kafka and Elasticsearch
// are optional.
type Deps struct {
	Users      models.UserRepository
	Sessions   *session.Manager
	Tokens     *middleware.TokenManager
	Dispatcher *dispatch.Dispatcher
	Redis      utils.RedisClient
	Kafka      utils.KafkaProducer
	Search     utils.ElasticsearchClient
	ServiceKey string
	Location   *time.Location
}

func NewRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Logger(),
		gin.Recovery(),
		middleware.CORS(),
		middleware.SentryMiddleware(),
		middleware.ErrorHandler(),
		middleware.PrometheusMetrics(),
	)

	health := NewHealthHandler(d.Redis)
	auth := NewAuthHandler(d.Users, d.Tokens, d.Sessions)
	patients := NewPatientHandler(d.Sessions, d.Kafka)
	search := NewSearchHandler(d.Sessions, d.Search)
	dash := NewDashboardHandler(d.Sessions, d.Location)
	exports := NewExportHandler(d.Sessions, d.Location)
	notifications := NewNotificationHandler(d.Sessions)
	reminders := NewReminderHandler(d.Dispatcher, d.ServiceKey, d.Location)

	router.GET("/metrics", gin.WrapH(monitoring.Handler()))

	api := router.Group("/api/v1")
	{
		api.GET("/health", health.Health)

		api.POST("/auth/register", auth.Register)
		api.POST("/auth/login", auth.Login)

		api.GET("/functions/send-reminder", reminders.SendReminders)
		api.POST("/functions/send-reminder", reminders.SendReminders)

		authed := api.Group("", middleware.AuthMiddleware(d.Tokens))
		authed.POST("/auth/logout", auth.Logout)

		authed.GET("/patients", patients.ListPatients)
		authed.POST("/patients", patients.CreatePatient)
		authed.GET("/patients/search", search.SearchPatients)
		authed.GET("/patients/:id", patients.GetPatient)
		authed.PATCH("/patients/:id", patients.UpdatePatient)
		authed.DELETE("/patients/:id", patients.DeletePatient)

		authed.GET("/dashboard", dash.GetDashboard)

		authed.GET("/export/csv", exports.ExportCSV)
		authed.GET("/export/pdf", exports.ExportPDF)

		authed.GET("/notifications", notifications.GetNotifications)
		authed.POST("/notifications/dismiss-all", notifications.DismissAll)
		authed.POST("/notifications/test", notifications.TriggerTest)
		authed.POST("/notifications/:key/dismiss", notifications.Dismiss)
	}

	router.NoRoute(func(c *gin.Context) {
		SendError(c, http.StatusNotFound, CodeNotFound, "Rota não encontrada")
	})

	return router
}
