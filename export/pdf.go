package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"magnata-crm/dashboard"
	"magnata-crm/models"

	"github.com/go-pdf/fpdf"
)

const productName = "Magnata do CRM"

type ReportOptions struct {
	PeriodLabel         string
	IncludePatientList  bool
	IncludeObservations bool
	GeneratedAt         time.Time
}

var (
	headerFill = [3]int{234, 88, 12}
	stripeFill = [3]int{255, 247, 237}
)

// WriteReport renders the statistical report: summary, status, channel and
// procedure breakdowns and, optionally, the full patient listing.
func WriteReport(w io.Writer, patients []models.Patient, opts ReportOptions) error {
	if opts.GeneratedAt.IsZero() {
		opts.GeneratedAt = time.Now()
	}
	stats := dashboard.Aggregate(patients)

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pageW, pageH := pdf.GetPageSize()
	pdf.SetMargins(14, 14, 14)
	pdf.SetAutoPageBreak(true, 16)
	pdf.AliasNbPages("{nb}")
	pdf.SetFooterFunc(func() {
		pdf.SetY(pageH - 12)
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 6, tr(fmt.Sprintf("%s - Página %d de {nb}", productName, pdf.PageNo())), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFillColor(headerFill[0], headerFill[1], headerFill[2])
	pdf.Rect(0, 0, pageW, 32, "F")
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetXY(14, 8)
	pdf.CellFormat(0, 10, tr(productName), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetX(14)
	pdf.CellFormat((pageW-28)/2, 6, tr("Relatório gerado em "+opts.GeneratedAt.Format("02/01/2006 às 15:04")), "", 0, "L", false, 0, "")
	pdf.CellFormat((pageW-28)/2, 6, tr("Período: "+opts.PeriodLabel), "", 1, "R", false, 0, "")
	pdf.SetY(44)

	section(pdf, tr, "Resumo")
	table(pdf, tr, []string{"Indicador", "Valor"}, []float64{100, 82}, [][]string{
		{"Total Faturado", FormatCurrency(stats.TotalRevenue)},
		{"Fechamentos", fmt.Sprint(stats.ClosedCount)},
		{"Ticket Médio", FormatCurrency(stats.AverageTicket)},
		{"Agendamentos", fmt.Sprint(stats.ScheduledCount)},
		{"Total de Pacientes", fmt.Sprint(stats.TotalCount)},
		{"Taxa de Conversão", fmt.Sprintf("%.1f%%", stats.ConversionRate)},
	})

	section(pdf, tr, "Pacientes por Status")
	var statusRows [][]string
	for _, s := range stats.Statuses {
		statusRows = append(statusRows, []string{s.Label, fmt.Sprint(s.Count), fmt.Sprintf("%.1f%%", s.Percent)})
	}
	table(pdf, tr, []string{"Status", "Quantidade", "% do Total"}, []float64{82, 50, 50}, statusRows)

	section(pdf, tr, "Origem das Conversões (Fechados)")
	var channelRows [][]string
	for _, c := range stats.Channels {
		channelRows = append(channelRows, []string{c.Label, fmt.Sprint(c.Closed), FormatCurrency(c.Revenue)})
	}
	table(pdf, tr, []string{"Origem", "Fechamentos", "Faturamento"}, []float64{82, 50, 50}, channelRows)

	section(pdf, tr, "Faturamento por Procedimento (Fechados)")
	var procRows [][]string
	for _, p := range stats.Procedures {
		procRows = append(procRows, []string{p.Label, fmt.Sprint(p.Count), FormatCurrency(p.Revenue)})
	}
	table(pdf, tr, []string{"Procedimento", "Quantidade", "Faturamento"}, []float64{82, 50, 50}, procRows)

	if opts.IncludePatientList && len(patients) > 0 {
		pdf.AddPage()
		section(pdf, tr, "Lista de Pacientes")

		headers := []string{"Nome", "Telefone", "Agendamento", "Status", "Procedimentos", "Valor"}
		widths := []float64{40, 28, 24, 22, 44, 24}
		if opts.IncludeObservations {
			headers = append(headers, "Observações")
			widths = []float64{32, 24, 21, 19, 36, 20, 30}
		}
		var rows [][]string
		for _, p := range patients {
			value := ""
			if p.ClosedValue != nil {
				value = FormatCurrency(*p.ClosedValue)
			}
			row := []string{p.Name, p.Phone, FormatDate(p.AppointmentDate), p.Status.Label(), procedureLabels(p), value}
			if opts.IncludeObservations {
				row = append(row, p.Observations)
			}
			rows = append(rows, row)
		}
		pdf.SetFont("Helvetica", "", 8)
		table(pdf, tr, headers, widths, rows)
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return pdf.Output(w)
}

// FormatCurrency renders a value as Brazilian reais, e.g. R$ 1.234,50.
func FormatCurrency(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	cents := int64(v*100 + 0.5)
	whole := fmt.Sprint(cents / 100)

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := fmt.Sprintf("R$ %s,%02d", b.String(), cents%100)
	if neg {
		return "-" + out
	}
	return out
}

func section(pdf *fpdf.Fpdf, tr func(string) string, title string) {
	if pdf.GetY() > 240 {
		pdf.AddPage()
	}
	pdf.SetTextColor(30, 30, 30)
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, tr(title), "", 1, "L", false, 0, "")
	pdf.Ln(1)
}

func table(pdf *fpdf.Fpdf, tr func(string) string, headers []string, widths []float64, rows [][]string) {
	size, _ := pdf.GetFontSize()
	if size > 10 {
		size = 10
	}

	header := func() {
		pdf.SetFont("Helvetica", "B", size)
		pdf.SetFillColor(headerFill[0], headerFill[1], headerFill[2])
		pdf.SetTextColor(255, 255, 255)
		for i, h := range headers {
			pdf.CellFormat(widths[i], 7, tr(h), "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", size)
		pdf.SetTextColor(30, 30, 30)
	}

	_, pageH := pdf.GetPageSize()
	header()
	for n, row := range rows {
		if pdf.GetY()+7 > pageH-16 {
			pdf.AddPage()
			header()
		}
		fill := n%2 == 1
		pdf.SetFillColor(stripeFill[0], stripeFill[1], stripeFill[2])
		for i, cell := range row {
			pdf.CellFormat(widths[i], 7, truncate(pdf, tr(cell), widths[i]-2), "1", 0, "L", fill, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(6)
}

// truncate shortens s until it fits in width, appending "...". s is already
// translated to the font's code page.
func truncate(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	b := []byte(s)
	for len(b) > 0 && pdf.GetStringWidth(string(b)+"...") > width {
		b = b[:len(b)-1]
	}
	return string(b) + "..."
}
