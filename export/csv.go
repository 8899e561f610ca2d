// Package export renders patient lists as CSV spreadsheets and PDF reports.
package export

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"magnata-crm/models"
)

const productSlug = "magnata_crm"

var ErrNothingToExport = errors.New("nenhum paciente para exportar")

type CSVOptions struct {
	IncludeObservations bool
}

func CSVHeader(opts CSVOptions) []string {
	header := []string{
		"Nome",
		"Telefone",
		"Data do Contato",
		"Data do Agendamento",
		"Status",
		"Valor Fechado",
		"Mídia de Origem",
		"Procedimentos",
	}
	if opts.IncludeObservations {
		header = append(header, "Observações")
	}
	return header
}

func CSVFilename(now time.Time) string {
	return fmt.Sprintf("%s_export_%s.csv", productSlug, now.Format("2006-01-02"))
}

// WriteCSV writes a BOM-prefixed, comma-separated sheet with every data cell
// quoted so spreadsheet tools keep phone numbers and dates as text.
func WriteCSV(w io.Writer, patients []models.Patient, opts CSVOptions) error {
	if len(patients) == 0 {
		return ErrNothingToExport
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("\ufeff"); err != nil {
		return err
	}
	if _, err := bw.WriteString(strings.Join(CSVHeader(opts), ",")); err != nil {
		return err
	}

	for _, p := range patients {
		row := []string{
			p.Name,
			p.Phone,
			FormatDate(p.ContactDate),
			FormatDate(p.AppointmentDate),
			p.Status.Label(),
			closedValueCell(p.ClosedValue),
			p.MediaOrigin.Label(),
			procedureLabels(p),
		}
		if opts.IncludeObservations {
			row = append(row, p.Observations)
		}
		for i, cell := range row {
			row[i] = quote(cell)
		}
		if _, err := bw.WriteString("\n" + strings.Join(row, ",")); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// FormatDate renders a stored date as dd/MM/yyyy, passing malformed values
// through unchanged.
func FormatDate(d models.Date) string {
	t, err := d.Time(time.UTC)
	if err != nil {
		return d.String()
	}
	return t.Format("02/01/2006")
}

func closedValueCell(v *float64) string {
	if v == nil || *v == 0 {
		return ""
	}
	return fmt.Sprintf("R$ %.2f", *v)
}

func procedureLabels(p models.Patient) string {
	labels := make([]string, 0, len(p.Procedures))
	for _, proc := range p.ProcedureList() {
		labels = append(labels, proc.Label())
	}
	return strings.Join(labels, "; ")
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
