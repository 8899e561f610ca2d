package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

type Status string

const (
	StatusScheduled     Status = "agendado"
	StatusCame          Status = "veio"
	StatusNoShow        Status = "nao_veio"
	StatusNotInterested Status = "sem_interesse"
	StatusClosed        Status = "fechado"
)

var Statuses = []Status{StatusScheduled, StatusCame, StatusNoShow, StatusNotInterested, StatusClosed}

var StatusLabels = map[Status]string{
	StatusScheduled:     "Agendado",
	StatusCame:          "Veio",
	StatusNoShow:        "Não Veio",
	StatusNotInterested: "Sem Interesse",
	StatusClosed:        "Fechado",
}

func (s Status) Valid() bool {
	_, ok := StatusLabels[s]
	return ok
}

func (s Status) Label() string {
	if l, ok := StatusLabels[s]; ok {
		return l
	}
	return string(s)
}

type MediaOrigin string

const (
	MediaFacebook      MediaOrigin = "facebook"
	MediaInstagram     MediaOrigin = "instagram"
	MediaReferral      MediaOrigin = "indicacao"
	MediaCampaignGuide MediaOrigin = "guia_campanha"
	MediaClaudio       MediaOrigin = "claudio"
)

var MediaOrigins = []MediaOrigin{MediaFacebook, MediaInstagram, MediaReferral, MediaCampaignGuide, MediaClaudio}

var MediaLabels = map[MediaOrigin]string{
	MediaFacebook:      "Facebook",
	MediaInstagram:     "Instagram",
	MediaReferral:      "Indicação",
	MediaCampaignGuide: "Guia Campanha",
	MediaClaudio:       "Cláudio",
}

func (m MediaOrigin) Valid() bool {
	_, ok := MediaLabels[m]
	return ok
}

func (m MediaOrigin) Label() string {
	if l, ok := MediaLabels[m]; ok {
		return l
	}
	return string(m)
}

type Procedure string

const (
	ProcedureFlexible Procedure = "protese_flexivel"
	ProcedureTotal    Procedure = "protese_total"
	ProcedurePPR      Procedure = "protese_ppr"
	ProcedurePPRMixed Procedure = "protese_ppr_mista"
)

var Procedures = []Procedure{ProcedureFlexible, ProcedureTotal, ProcedurePPR, ProcedurePPRMixed}

var ProcedureLabels = map[Procedure]string{
	ProcedureFlexible: "Prótese Flexível",
	ProcedureTotal:    "Prótese Total",
	ProcedurePPR:      "Prótese PPR",
	ProcedurePPRMixed: "Prótese PPR Mista",
}

func (p Procedure) Valid() bool {
	_, ok := ProcedureLabels[p]
	return ok
}

func (p Procedure) Label() string {
	if l, ok := ProcedureLabels[p]; ok {
		return l
	}
	return string(p)
}

type Patient struct {
	ID              string         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          string         `gorm:"type:uuid;index;not null" json:"user_id"`
	Name            string         `gorm:"not null" json:"name"`
	Phone           string         `gorm:"not null" json:"phone"`
	ContactDate     Date           `gorm:"type:date;not null" json:"contact_date"`
	AppointmentDate Date           `gorm:"type:date;index;not null" json:"appointment_date"`
	AppointmentTime string         `json:"appointment_time,omitempty"`
	Status          Status         `gorm:"not null;index" json:"status"`
	ClosedValue     *float64       `gorm:"type:numeric(12,2)" json:"closed_value,omitempty"`
	MediaOrigin     MediaOrigin    `gorm:"not null" json:"media_origin"`
	Procedures      pq.StringArray `gorm:"type:text[];not null" json:"procedures"`
	Observations    string         `json:"observations,omitempty"`
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (p *Patient) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

func (p Patient) ProcedureList() []Procedure {
	out := make([]Procedure, len(p.Procedures))
	for i, proc := range p.Procedures {
		out[i] = Procedure(proc)
	}
	return out
}

// Clone returns a copy that shares no slices or pointers with p.
func (p Patient) Clone() Patient {
	c := p
	if p.Procedures != nil {
		c.Procedures = append(pq.StringArray(nil), p.Procedures...)
	}
	if p.ClosedValue != nil {
		v := *p.ClosedValue
		c.ClosedValue = &v
	}
	return c
}

// PatientDraft is a patient as submitted by the intake form, before the
// store assigns identity and timestamps.
type PatientDraft struct {
	Name            string      `json:"name"`
	Phone           string      `json:"phone"`
	ContactDate     Date        `json:"contact_date"`
	AppointmentDate Date        `json:"appointment_date"`
	AppointmentTime string      `json:"appointment_time,omitempty"`
	Status          Status      `json:"status"`
	ClosedValue     *float64    `json:"closed_value,omitempty"`
	MediaOrigin     MediaOrigin `json:"media_origin"`
	Procedures      []Procedure `json:"procedures"`
	Observations    string      `json:"observations,omitempty"`
}

func (d PatientDraft) Validate() error {
	return d.toPatient().validate()
}

func (d PatientDraft) ToPatient(userID string) Patient {
	p := d.toPatient()
	p.UserID = userID
	return p
}

func (d PatientDraft) toPatient() Patient {
	procs := make(pq.StringArray, len(d.Procedures))
	for i, proc := range d.Procedures {
		procs[i] = string(proc)
	}
	p := Patient{
		Name:            d.Name,
		Phone:           d.Phone,
		ContactDate:     d.ContactDate,
		AppointmentDate: d.AppointmentDate,
		AppointmentTime: d.AppointmentTime,
		Status:          d.Status,
		MediaOrigin:     d.MediaOrigin,
		Procedures:      procs,
		Observations:    d.Observations,
	}
	if d.ClosedValue != nil {
		v := *d.ClosedValue
		p.ClosedValue = &v
	}
	return p
}

func (p Patient) validate() error {
	v := &ValidationError{}
	if p.Name == "" {
		v.add("name", "obrigatório")
	}
	if p.Phone == "" {
		v.add("phone", "obrigatório")
	} else if !validPhone(p.Phone) {
		v.add("phone", "formato inválido")
	}
	checkDate(v, "contact_date", p.ContactDate)
	checkDate(v, "appointment_date", p.AppointmentDate)
	if p.AppointmentTime != "" {
		if _, err := time.Parse("15:04", p.AppointmentTime); err != nil {
			v.add("appointment_time", "formato inválido")
		}
	}
	if !p.Status.Valid() {
		v.add("status", "valor desconhecido")
	}
	if !p.MediaOrigin.Valid() {
		v.add("media_origin", "valor desconhecido")
	}
	if len(p.Procedures) == 0 {
		v.add("procedures", "selecione pelo menos um procedimento")
	}
	for _, proc := range p.Procedures {
		if !Procedure(proc).Valid() {
			v.add("procedures", "procedimento desconhecido: "+proc)
		}
	}
	if p.ClosedValue != nil && *p.ClosedValue < 0 {
		v.add("closed_value", "não pode ser negativo")
	}
	if p.Status == StatusClosed && p.ClosedValue == nil {
		v.add("closed_value", "obrigatório para pacientes fechados")
	}
	if len(v.Fields) > 0 {
		return v
	}
	return nil
}

func checkDate(v *ValidationError, field string, d Date) {
	if d.IsZero() {
		v.add(field, "obrigatório")
		return
	}
	if _, err := d.Time(time.UTC); err != nil {
		v.add(field, "data inválida")
	}
}

func validPhone(phone string) bool {
	digits := 0
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == ' ' || r == '(' || r == ')' || r == '-' || r == '+' || r == '.':
		default:
			return false
		}
	}
	return digits >= 8
}
