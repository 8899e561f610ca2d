package dashboard

import (
	"fmt"
	"strconv"
	"time"

	"magnata-crm/models"
)

type PeriodKind string

const (
	PeriodAll       PeriodKind = "all"
	PeriodDay       PeriodKind = "day"
	PeriodWeek      PeriodKind = "week"
	PeriodMonth     PeriodKind = "month"
	PeriodYearMonth PeriodKind = "year_month"
)

var monthNames = [...]string{
	"Janeiro", "Fevereiro", "Março", "Abril", "Maio", "Junho",
	"Julho", "Agosto", "Setembro", "Outubro", "Novembro", "Dezembro",
}

// Period selects patients by creation time. Month is 1-12, or 0 for the
// whole year.
type Period struct {
	Kind  PeriodKind
	Year  int
	Month int
}

func ParsePeriod(kind, year, month string) (Period, error) {
	p := Period{Kind: PeriodKind(kind)}
	switch p.Kind {
	case "":
		p.Kind = PeriodAll
	case PeriodAll, PeriodDay, PeriodWeek, PeriodMonth:
	case PeriodYearMonth:
		if year != "" {
			y, err := strconv.Atoi(year)
			if err != nil || y < 1 {
				return Period{}, fmt.Errorf("invalid year %q", year)
			}
			p.Year = y
		}
		if month != "" && month != "all_months" {
			m, err := strconv.Atoi(month)
			if err != nil || m < 1 || m > 12 {
				return Period{}, fmt.Errorf("invalid month %q", month)
			}
			p.Month = m
		}
	default:
		return Period{}, fmt.Errorf("unknown period %q", kind)
	}
	return p, nil
}

func (p Period) Label() string {
	switch p.Kind {
	case PeriodDay:
		return "Hoje"
	case PeriodWeek:
		return "Esta semana"
	case PeriodMonth:
		return "Este mês"
	case PeriodYearMonth:
		if p.Year == 0 {
			return "Todo período"
		}
		month := "Todos os meses"
		if p.Month >= 1 && p.Month <= 12 {
			month = monthNames[p.Month-1]
		}
		return fmt.Sprintf("%s / %d", month, p.Year)
	default:
		return "Todo período"
	}
}

// FilterByPeriod keeps the patients created inside the period. Relative
// periods (day, week, month) are computed in now's location; weeks start on
// Sunday.
func FilterByPeriod(patients []models.Patient, p Period, now time.Time) []models.Patient {
	loc := now.Location()

	var keep func(created time.Time) bool
	switch p.Kind {
	case PeriodDay, PeriodWeek, PeriodMonth:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
		switch p.Kind {
		case PeriodWeek:
			start = start.AddDate(0, 0, -int(start.Weekday()))
		case PeriodMonth:
			start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		}
		keep = func(created time.Time) bool { return created.After(start) }
	case PeriodYearMonth:
		if p.Year == 0 {
			return patients
		}
		start := time.Date(p.Year, time.January, 1, 0, 0, 0, 0, loc)
		end := start.AddDate(1, 0, 0)
		if p.Month != 0 {
			start = time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, loc)
			end = start.AddDate(0, 1, 0)
		}
		keep = func(created time.Time) bool {
			return !created.Before(start) && created.Before(end)
		}
	default:
		return patients
	}

	var out []models.Patient
	for _, patient := range patients {
		if keep(patient.CreatedAt.In(loc)) {
			out = append(out, patient)
		}
	}
	return out
}
