// Package store holds the in-memory patient collection of one operator and
// mediates every read and write against the persistent backend.
package store

import (
	"context"
	"errors"
	"strings"
	"sync"

	"magnata-crm/models"
)

// Backend is the subset of models.Repository the store needs.
type Backend interface {
	ListPatients(ctx context.Context, userID string) ([]models.Patient, error)
	CreatePatient(ctx context.Context, patient *models.Patient) error
	UpdatePatient(ctx context.Context, userID, id string, patch models.PatientPatch) (*models.Patient, error)
	DeletePatient(ctx context.Context, userID, id string) error
}

type State struct {
	Patients []models.Patient
	Loading  bool
	Err      error
}

// Store never mutates its collection before the backend confirms a write.
type Store struct {
	backend Backend
	userID  string

	mu       sync.RWMutex
	patients []models.Patient
	loading  bool
	err      error
}

func New(backend Backend, userID string) *Store {
	return &Store{backend: backend, userID: userID}
}

func (s *Store) UserID() string {
	return s.userID
}

// Load replaces the collection with the backend's list. On failure the
// previous list is kept.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	patients, err := s.backend.ListPatients(ctx, s.userID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.err = models.NewPersistenceError("list patients", err)
		return s.err
	}
	s.patients = clonePatients(patients)
	s.err = nil
	return nil
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients = nil
	s.err = nil
	s.loading = false
}

func (s *Store) List() []models.Patient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePatients(s.patients)
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Patients: clonePatients(s.patients),
		Loading:  s.loading,
		Err:      s.err,
	}
}

func (s *Store) GetByID(id string) (models.Patient, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.patients[i].Clone(), true
	}
	return models.Patient{}, false
}

func (s *Store) Add(ctx context.Context, draft models.PatientDraft) (models.Patient, error) {
	if err := draft.Validate(); err != nil {
		return models.Patient{}, err
	}

	patient := draft.ToPatient(s.userID)
	if err := s.backend.CreatePatient(ctx, &patient); err != nil {
		return models.Patient{}, models.NewPersistenceError("create patient", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients = append([]models.Patient{patient.Clone()}, s.patients...)
	return patient, nil
}

func (s *Store) Update(ctx context.Context, id string, patch models.PatientPatch) (models.Patient, error) {
	current, ok := s.GetByID(id)
	if !ok {
		return models.Patient{}, &models.NotFoundError{ID: id}
	}
	if _, err := patch.Apply(current); err != nil {
		return models.Patient{}, err
	}

	updated, err := s.backend.UpdatePatient(ctx, s.userID, id, patch)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.Patient{}, &models.NotFoundError{ID: id}
		}
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			return models.Patient{}, err
		}
		return models.Patient{}, models.NewPersistenceError("update patient", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		s.patients[i] = updated.Clone()
	}
	return *updated, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if _, ok := s.GetByID(id); !ok {
		return &models.NotFoundError{ID: id}
	}

	if err := s.backend.DeletePatient(ctx, s.userID, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &models.NotFoundError{ID: id}
		}
		return models.NewPersistenceError("delete patient", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		s.patients = append(s.patients[:i:i], s.patients[i+1:]...)
	}
	return nil
}

// PatientFilter mirrors the filters of the patient table. Zero values match
// everything.
type PatientFilter struct {
	Search          string
	Status          models.Status
	MediaOrigin     models.MediaOrigin
	Procedure       models.Procedure
	AppointmentDate models.Date
}

func (f PatientFilter) Match(p models.Patient) bool {
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(p.Name), q) && !strings.Contains(p.Phone, f.Search) {
			return false
		}
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.MediaOrigin != "" && p.MediaOrigin != f.MediaOrigin {
		return false
	}
	if f.Procedure != "" {
		found := false
		for _, proc := range p.Procedures {
			if models.Procedure(proc) == f.Procedure {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.AppointmentDate != "" && p.AppointmentDate != f.AppointmentDate {
		return false
	}
	return true
}

func (s *Store) Filter(f PatientFilter) []models.Patient {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Patient
	for _, p := range s.patients {
		if f.Match(p) {
			out = append(out, p.Clone())
		}
	}
	return out
}

func (s *Store) indexOf(id string) int {
	for i := range s.patients {
		if s.patients[i].ID == id {
			return i
		}
	}
	return -1
}

func clonePatients(in []models.Patient) []models.Patient {
	if in == nil {
		return nil
	}
	out := make([]models.Patient, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}
