package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"magnata-crm/models"
	"magnata-crm/session"
	"magnata-crm/store"
	"magnata-crm/utils"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type SearchHandler struct {
	sessions *session.Manager
	es       utils.ElasticsearchClient
}

func NewSearchHandler(sessions *session.Manager, es utils.ElasticsearchClient) *SearchHandler {
	return &SearchHandler{sessions: sessions, es: es}
}

// SearchPatients queries the search index. Without an index, or when it
// fails, the in-memory list is filtered instead.
func (h *SearchHandler) SearchPatients(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		SendError(c, http.StatusBadRequest, CodeBadRequest, "Informe o termo de busca")
		return
	}

	s, ok := openSession(c, h.sessions)
	if !ok {
		return
	}

	if h.es != nil {
		patients, err := h.searchIndex(c, s, q)
		if err == nil {
			c.JSON(http.StatusOK, PatientListResponse{Patients: patients, Total: len(patients)})
			return
		}
		log.Warn().Err(err).Msg("patient search index unavailable, filtering in memory")
	}

	patients := s.Store.Filter(store.PatientFilter{Search: q})
	if patients == nil {
		patients = []models.Patient{}
	}
	c.JSON(http.StatusOK, PatientListResponse{Patients: patients, Total: len(patients)})
}

func (h *SearchHandler) searchIndex(c *gin.Context, s *session.Session, q string) ([]models.Patient, error) {
	hits, err := h.es.Search(c.Request.Context(), utils.PatientIndex, utils.PatientQuery(s.UserID, q, 50))
	if err != nil {
		return nil, err
	}

	patients := make([]models.Patient, 0, len(hits))
	for _, raw := range hits {
		var hit struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &hit); err != nil {
			return nil, err
		}
		// the index lags behind writes; the session list is authoritative
		if p, ok := s.Store.GetByID(hit.ID); ok {
			patients = append(patients, p)
		}
	}
	return patients, nil
}
