package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"magnata-crm/models"
	"magnata-crm/session"
	"magnata-crm/store"
	"magnata-crm/utils"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type PatientHandler struct {
	sessions *session.Manager
	kafka    utils.KafkaProducer
}

func NewPatientHandler(sessions *session.Manager, kafka utils.KafkaProducer) *PatientHandler {
	return &PatientHandler{
		sessions: sessions,
		kafka:    kafka,
	}
}

type PatientListResponse struct {
	Patients []models.Patient `json:"patients"`
	Total    int              `json:"total"`
}

func (h *PatientHandler) ListPatients(c *gin.Context) {
	s, ok := openSession(c, h.sessions)
	if !ok {
		return
	}

	patients := s.Store.Filter(filterFromQuery(c))
	if patients == nil {
		patients = []models.Patient{}
	}
	c.JSON(http.StatusOK, PatientListResponse{Patients: patients, Total: len(patients)})
}

func (h *PatientHandler) CreatePatient(c *gin.Context) {
	var draft models.PatientDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		SendError(c, http.StatusBadRequest, CodeBadRequest, "Corpo da requisição inválido")
		return
	}

	s, ok := openSession(c, h.sessions)
	if !ok {
		return
	}

	patient, err := s.Store.Add(c.Request.Context(), draft)
	if err != nil {
		sendStoreError(c, err)
		return
	}

	if h.kafka != nil {
		go h.sendKafkaEvent(models.EventPatientCreated, patient)
	}

	c.JSON(http.StatusCreated, patient)
}

func (h *PatientHandler) GetPatient(c *gin.Context) {
	s, ok := openSession(c, h.sessions)
	if !ok {
		return
	}

	patient, found := s.Store.GetByID(c.Param("id"))
	if !found {
		SendError(c, http.StatusNotFound, CodeNotFound, "Paciente não encontrado")
		return
	}
	c.JSON(http.StatusOK, patient)
}

func (h *PatientHandler) UpdatePatient(c *gin.Context) {
	var patch models.PatientPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		SendError(c, http.StatusBadRequest, CodeBadRequest, "Corpo da requisição inválido")
		return
	}
	if patch.IsEmpty() {
		SendError(c, http.StatusBadRequest, CodeBadRequest, "Nenhum campo para atualizar")
		return
	}

	s, ok := openSession(c, h.sessions)
	if !ok {
		return
	}

	patient, err := s.Store.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		sendStoreError(c, err)
		return
	}

	if h.kafka != nil {
		go h.sendKafkaEvent(models.EventPatientUpdated, patient)
	}

	c.JSON(http.StatusOK, patient)
}

func (h *PatientHandler) DeletePatient(c *gin.Context) {
	s, ok := openSession(c, h.sessions)
	if !ok {
		return
	}

	id := c.Param("id")
	if err := s.Store.Delete(c.Request.Context(), id); err != nil {
		sendStoreError(c, err)
		return
	}

	if h.kafka != nil {
		go h.sendKafkaEvent(models.EventPatientDeleted, models.Patient{ID: id, UserID: s.UserID})
	}

	c.Status(http.StatusNoContent)
}

func (h *PatientHandler) sendKafkaEvent(eventType string, patient models.Patient) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	jsonData, err := json.Marshal(models.PatientEvent{Event: eventType, Data: patient})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal patient event")
		return
	}

	if err := h.kafka.SendMessage(ctx, utils.TopicPatientEvents, []byte(patient.ID), jsonData); err != nil {
		log.Warn().Err(err).Str("event", eventType).Str("patient_id", patient.ID).Msg("failed to publish patient event")
	}
}

func filterFromQuery(c *gin.Context) store.PatientFilter {
	return store.PatientFilter{
		Search:          c.Query("q"),
		Status:          models.Status(c.Query("status")),
		MediaOrigin:     models.MediaOrigin(c.Query("media")),
		Procedure:       models.Procedure(c.Query("procedure")),
		AppointmentDate: models.Date(c.Query("date")),
	}
}
