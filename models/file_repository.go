package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileRepository keeps every record in a single JSON document on local disk.
// It backs single-device installs where no database is available.
type FileRepository struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
	data fileData
}

type fileData struct {
	Patients     []Patient     `json:"patients"`
	ReminderLogs []ReminderLog `json:"reminder_logs"`
	Users        []User        `json:"users"`
}

func NewFileRepository(path string) (*FileRepository, error) {
	r := &FileRepository{path: path, now: time.Now}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return r, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if len(strings.TrimSpace(string(raw))) == 0 {
		return r, nil
	}
	if err := json.Unmarshal(raw, &r.data); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return r, nil
}

// WithClock replaces the timestamp source; used by tests.
func (r *FileRepository) WithClock(now func() time.Time) *FileRepository {
	r.now = now
	return r
}

func (r *FileRepository) ListPatients(ctx context.Context, userID string) ([]Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Patient
	for _, p := range r.data.Patients {
		if p.UserID == userID {
			out = append(out, p.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *FileRepository) CreatePatient(ctx context.Context, patient *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if patient.ID == "" {
		patient.ID = uuid.NewString()
	}
	for _, p := range r.data.Patients {
		if p.ID == patient.ID {
			return fmt.Errorf("patient %s already exists", patient.ID)
		}
	}
	now := r.now()
	patient.CreatedAt = now
	patient.UpdatedAt = now

	r.data.Patients = append(r.data.Patients, patient.Clone())
	if err := r.persist(); err != nil {
		r.data.Patients = r.data.Patients[:len(r.data.Patients)-1]
		return err
	}
	return nil
}

func (r *FileRepository) GetPatientByID(ctx context.Context, userID, id string) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(userID, id)
	if i < 0 {
		return nil, ErrNotFound
	}
	p := r.data.Patients[i].Clone()
	return &p, nil
}

func (r *FileRepository) UpdatePatient(ctx context.Context, userID, id string, patch PatientPatch) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(userID, id)
	if i < 0 {
		return nil, ErrNotFound
	}
	prev := r.data.Patients[i]
	updated, err := patch.Apply(prev)
	if err != nil {
		return nil, err
	}
	updated.UpdatedAt = r.now()
	if updated.UpdatedAt.Before(updated.CreatedAt) {
		updated.UpdatedAt = updated.CreatedAt
	}

	r.data.Patients[i] = updated
	if err := r.persist(); err != nil {
		r.data.Patients[i] = prev
		return nil, err
	}
	out := updated.Clone()
	return &out, nil
}

func (r *FileRepository) DeletePatient(ctx context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(userID, id)
	if i < 0 {
		return ErrNotFound
	}
	prev := r.data.Patients
	r.data.Patients = append(append([]Patient(nil), prev[:i]...), prev[i+1:]...)
	if err := r.persist(); err != nil {
		r.data.Patients = prev
		return err
	}
	return nil
}

func (r *FileRepository) PatientsForReminder(ctx context.Context, date Date, statuses []Status) ([]Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Patient
	for _, p := range r.data.Patients {
		if p.AppointmentDate != date {
			continue
		}
		for _, s := range statuses {
			if p.Status == s {
				out = append(out, p.Clone())
				break
			}
		}
	}
	return out, nil
}

func (r *FileRepository) SentReminderPatientIDs(ctx context.Context, patientIDs []string, date Date) (map[string]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wanted := make(map[string]bool, len(patientIDs))
	for _, id := range patientIDs {
		wanted[id] = true
	}
	sent := make(map[string]bool)
	for _, l := range r.data.ReminderLogs {
		if l.Status == ReminderSent && l.AppointmentDate == date && wanted[l.PatientID] {
			sent[l.PatientID] = true
		}
	}
	return sent, nil
}

func (r *FileRepository) CreateReminderLog(ctx context.Context, log *ReminderLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	log.CreatedAt = r.now()
	r.data.ReminderLogs = append(r.data.ReminderLogs, *log)
	if err := r.persist(); err != nil {
		r.data.ReminderLogs = r.data.ReminderLogs[:len(r.data.ReminderLogs)-1]
		return err
	}
	return nil
}

func (r *FileRepository) CreateUser(ctx context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.data.Users {
		if strings.EqualFold(u.Email, user.Email) {
			return fmt.Errorf("user %s already registered", user.Email)
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = r.now()
	r.data.Users = append(r.data.Users, *user)
	if err := r.persist(); err != nil {
		r.data.Users = r.data.Users[:len(r.data.Users)-1]
		return err
	}
	return nil
}

func (r *FileRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.data.Users {
		if strings.EqualFold(u.Email, email) {
			out := u
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r *FileRepository) Close() error {
	return nil
}

func (r *FileRepository) indexOf(userID, id string) int {
	for i, p := range r.data.Patients {
		if p.ID == id && p.UserID == userID {
			return i
		}
	}
	return -1
}

// persist writes a temp file and renames it over the store.
func (r *FileRepository) persist() error {
	raw, err := json.MarshalIndent(r.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}
	if dir := filepath.Dir(r.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	return os.Rename(tmp, r.path)
}
