// Package dashboard derives read-only revenue and conversion statistics from
// a list of patients.
package dashboard

import "magnata-crm/models"

type ProcedureStat struct {
	Procedure models.Procedure `json:"procedure"`
	Label     string           `json:"label"`
	Count     int              `json:"count"`
	Revenue   float64          `json:"revenue"`
}

type ChannelStat struct {
	MediaOrigin models.MediaOrigin `json:"media_origin"`
	Label       string             `json:"label"`
	Closed      int                `json:"closed"`
	Revenue     float64            `json:"revenue"`
}

type StatusStat struct {
	Status  models.Status `json:"status"`
	Label   string        `json:"label"`
	Count   int           `json:"count"`
	Percent float64       `json:"percent"`
}

type Stats struct {
	TotalRevenue   float64         `json:"total_revenue"`
	ClosedCount    int             `json:"closed_count"`
	AverageTicket  float64         `json:"average_ticket"`
	ScheduledCount int             `json:"scheduled_count"`
	TotalCount     int             `json:"total_count"`
	ConversionRate float64         `json:"conversion_rate"`
	Procedures     []ProcedureStat `json:"procedures"`
	Channels       []ChannelStat   `json:"channels"`
	Statuses       []StatusStat    `json:"statuses"`
}

// Aggregate computes the dashboard figures. Breakdowns list every catalog
// entry in catalog order, including zeros. A closed deal's value is split
// evenly across its distinct procedures.
func Aggregate(patients []models.Patient) Stats {
	s := Stats{TotalCount: len(patients)}

	procIdx := make(map[models.Procedure]int, len(models.Procedures))
	for i, p := range models.Procedures {
		procIdx[p] = i
		s.Procedures = append(s.Procedures, ProcedureStat{Procedure: p, Label: p.Label()})
	}
	chanIdx := make(map[models.MediaOrigin]int, len(models.MediaOrigins))
	for i, m := range models.MediaOrigins {
		chanIdx[m] = i
		s.Channels = append(s.Channels, ChannelStat{MediaOrigin: m, Label: m.Label()})
	}
	statusIdx := make(map[models.Status]int, len(models.Statuses))
	for i, st := range models.Statuses {
		statusIdx[st] = i
		s.Statuses = append(s.Statuses, StatusStat{Status: st, Label: st.Label()})
	}

	for _, p := range patients {
		if i, ok := statusIdx[p.Status]; ok {
			s.Statuses[i].Count++
		}
		if p.Status == models.StatusScheduled {
			s.ScheduledCount++
		}
		if p.Status != models.StatusClosed {
			continue
		}

		value := 0.0
		if p.ClosedValue != nil {
			value = *p.ClosedValue
		}
		s.ClosedCount++
		s.TotalRevenue += value

		if i, ok := chanIdx[p.MediaOrigin]; ok {
			s.Channels[i].Closed++
			s.Channels[i].Revenue += value
		}

		procs := distinctKnown(p.ProcedureList(), procIdx)
		for _, proc := range procs {
			i := procIdx[proc]
			s.Procedures[i].Count++
			s.Procedures[i].Revenue += value / float64(len(procs))
		}
	}

	if s.ClosedCount > 0 {
		s.AverageTicket = s.TotalRevenue / float64(s.ClosedCount)
	}
	if s.TotalCount > 0 {
		s.ConversionRate = float64(s.ClosedCount) / float64(s.TotalCount) * 100
		for i := range s.Statuses {
			s.Statuses[i].Percent = float64(s.Statuses[i].Count) / float64(s.TotalCount) * 100
		}
	}
	return s
}

func distinctKnown(procs []models.Procedure, known map[models.Procedure]int) []models.Procedure {
	seen := make(map[models.Procedure]bool, len(procs))
	out := make([]models.Procedure, 0, len(procs))
	for _, p := range procs {
		if _, ok := known[p]; !ok || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
