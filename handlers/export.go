package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"magnata-crm/dashboard"
	"magnata-crm/export"
	"magnata-crm/session"

	"github.com/gin-gonic/gin"
)

type ExportHandler struct {
	sessions *session.Manager
	loc      *time.Location
	now      func() time.Time
}

func NewExportHandler(sessions *session.Manager, loc *time.Location) *ExportHandler {
	return &ExportHandler{sessions: sessions, loc: loc, now: time.Now}
}

// ExportCSV streams the filtered table. observations=true adds the
// Observações column.
func (h *ExportHandler) ExportCSV(c *gin.Context) {
	s, ok := openSession(c, h.sessions)
	if !ok {
		return
	}

	patients := s.Store.Filter(filterFromQuery(c))
	opts := export.CSVOptions{IncludeObservations: queryBool(c, "observations")}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, patients, opts); err != nil {
		if errors.Is(err, export.ErrNothingToExport) {
			SendError(c, http.StatusNotFound, CodeNotFound, "Nenhum paciente para exportar")
			return
		}
		_ = c.Error(err)
		SendError(c, http.StatusInternalServerError, CodeInternal, MsgDefault)
		return
	}

	filename := export.CSVFilename(h.now().In(h.loc))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// ExportPDF renders the statistical report for the selected period and
// filters. list=true appends the patient listing.
func (h *ExportHandler) ExportPDF(c *gin.Context) {
	period, err := dashboard.ParsePeriod(c.Query("period"), c.Query("year"), c.Query("month"))
	if err != nil {
		SendError(c, http.StatusBadRequest, CodeBadRequest, "Período inválido")
		return
	}

	s, ok := openSession(c, h.sessions)
	if !ok {
		return
	}

	now := h.now().In(h.loc)
	patients := dashboard.FilterByPeriod(s.Store.Filter(filterFromQuery(c)), period, now)

	var buf bytes.Buffer
	err = export.WriteReport(&buf, patients, export.ReportOptions{
		PeriodLabel:         period.Label(),
		IncludePatientList:  queryBool(c, "list"),
		IncludeObservations: queryBool(c, "observations"),
		GeneratedAt:         now,
	})
	if err != nil {
		_ = c.Error(err)
		SendError(c, http.StatusInternalServerError, CodeInternal, MsgDefault)
		return
	}

	filename := fmt.Sprintf("magnata_crm_relatorio_%s.pdf", now.Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

func queryBool(c *gin.Context, key string) bool {
	v, err := strconv.ParseBool(c.Query(key))
	return err == nil && v
}
