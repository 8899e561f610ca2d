package models

import (
	"bytes"
	"encoding/json"

	"github.com/lib/pq"
)

// Nullable distinguishes a field that was left out of an update (Set is
// false) from one explicitly cleared (Set is true, Value is nil).
type Nullable[T any] struct {
	Set   bool
	Value *T
}

func Some[T any](v T) Nullable[T] {
	return Nullable[T]{Set: true, Value: &v}
}

func Null[T any]() Nullable[T] {
	return Nullable[T]{Set: true}
}

func (n *Nullable[T]) UnmarshalJSON(b []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

// PatientPatch is a partial update. Nil pointers and unset Nullables leave
// the stored value untouched.
type PatientPatch struct {
	Name            *string           `json:"name"`
	Phone           *string           `json:"phone"`
	ContactDate     *Date             `json:"contact_date"`
	AppointmentDate *Date             `json:"appointment_date"`
	AppointmentTime Nullable[string]  `json:"appointment_time"`
	Status          *Status           `json:"status"`
	ClosedValue     Nullable[float64] `json:"closed_value"`
	MediaOrigin     *MediaOrigin      `json:"media_origin"`
	Procedures      []Procedure       `json:"procedures"`
	Observations    Nullable[string]  `json:"observations"`
}

func (p PatientPatch) IsEmpty() bool {
	return len(p.Columns()) == 0
}

// Apply merges the patch into a copy of dst and validates the result.
func (p PatientPatch) Apply(dst Patient) (Patient, error) {
	out := dst.Clone()
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Phone != nil {
		out.Phone = *p.Phone
	}
	if p.ContactDate != nil {
		out.ContactDate = *p.ContactDate
	}
	if p.AppointmentDate != nil {
		out.AppointmentDate = *p.AppointmentDate
	}
	if p.AppointmentTime.Set {
		out.AppointmentTime = derefString(p.AppointmentTime.Value)
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.ClosedValue.Set {
		if p.ClosedValue.Value == nil {
			out.ClosedValue = nil
		} else {
			v := *p.ClosedValue.Value
			out.ClosedValue = &v
		}
	}
	if p.MediaOrigin != nil {
		out.MediaOrigin = *p.MediaOrigin
	}
	if p.Procedures != nil {
		out.Procedures = procedureArray(p.Procedures)
	}
	if p.Observations.Set {
		out.Observations = derefString(p.Observations.Value)
	}
	if err := out.validate(); err != nil {
		return dst, err
	}
	return out, nil
}

// Columns returns the changed columns keyed by their database name.
func (p PatientPatch) Columns() map[string]interface{} {
	cols := make(map[string]interface{})
	if p.Name != nil {
		cols["name"] = *p.Name
	}
	if p.Phone != nil {
		cols["phone"] = *p.Phone
	}
	if p.ContactDate != nil {
		cols["contact_date"] = *p.ContactDate
	}
	if p.AppointmentDate != nil {
		cols["appointment_date"] = *p.AppointmentDate
	}
	if p.AppointmentTime.Set {
		cols["appointment_time"] = derefString(p.AppointmentTime.Value)
	}
	if p.Status != nil {
		cols["status"] = *p.Status
	}
	if p.ClosedValue.Set {
		if p.ClosedValue.Value == nil {
			cols["closed_value"] = nil
		} else {
			cols["closed_value"] = *p.ClosedValue.Value
		}
	}
	if p.MediaOrigin != nil {
		cols["media_origin"] = *p.MediaOrigin
	}
	if p.Procedures != nil {
		cols["procedures"] = procedureArray(p.Procedures)
	}
	if p.Observations.Set {
		cols["observations"] = derefString(p.Observations.Value)
	}
	return cols
}

func procedureArray(procs []Procedure) pq.StringArray {
	out := make(pq.StringArray, len(procs))
	for i, proc := range procs {
		out[i] = string(proc)
	}
	return out
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
