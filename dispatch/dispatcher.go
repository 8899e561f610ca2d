// Package dispatch sends WhatsApp reminders to patients whose appointment is
// on a given day and records one log entry per attempt.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"magnata-crm/models"
	"magnata-crm/monitoring"
	"magnata-crm/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrRunInProgress        = errors.New("a reminder run for this date is already in progress")
	ErrGatewayNotConfigured = errors.New("z-api credentials not configured")
)

// CandidateStatuses are the statuses that still receive a reminder.
var CandidateStatuses = []models.Status{models.StatusScheduled, models.StatusCame}

type Gateway interface {
	SendText(ctx context.Context, phone, message string) error
}

// Locker is satisfied by utils.RedisClient.
type Locker interface {
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) error
	ReleaseLock(ctx context.Context, key, owner string) error
}

// ExternalDispatchError is a gateway failure for a single patient. It never
// aborts the rest of the batch.
type ExternalDispatchError struct {
	PatientID string
	Err       error
}

func (e *ExternalDispatchError) Error() string {
	return fmt.Sprintf("dispatch to patient %s failed: %v", e.PatientID, e.Err)
}

func (e *ExternalDispatchError) Unwrap() error {
	return e.Err
}

type Result struct {
	PatientID string                `json:"patient_id"`
	Status    models.ReminderStatus `json:"status"`
	Error     string                `json:"error,omitempty"`
}

type Report struct {
	Date        models.Date `json:"date"`
	Candidates  int         `json:"candidates"`
	AlreadySent int         `json:"already_sent"`
	Results     []Result    `json:"results"`
}

type Dispatcher struct {
	repo    models.ReminderRepository
	gateway Gateway
	locker  Locker
	lockTTL time.Duration
}

// NewDispatcher wires the dispatcher. gateway is nil when no credentials are
// configured; locker may be nil when redis is unavailable.
func NewDispatcher(repo models.ReminderRepository, gateway Gateway, locker Locker) *Dispatcher {
	return &Dispatcher{
		repo:    repo,
		gateway: gateway,
		locker:  locker,
		lockTTL: 10 * time.Minute,
	}
}

// Run sends the reminders for appointments on date. Patients already logged
// as sent for that date are skipped.
func (d *Dispatcher) Run(ctx context.Context, date models.Date) (*Report, error) {
	if d.gateway == nil {
		return nil, ErrGatewayNotConfigured
	}

	if d.locker != nil {
		key := "dispatch:lock:" + date.String()
		owner := uuid.NewString()
		if err := d.locker.AcquireLock(ctx, key, owner, d.lockTTL); err != nil {
			if errors.Is(err, utils.ErrLockHeld) {
				return nil, ErrRunInProgress
			}
			return nil, err
		}
		defer func() {
			if err := d.locker.ReleaseLock(context.Background(), key, owner); err != nil {
				log.Warn().Err(err).Str("date", date.String()).Msg("failed to release dispatch lock")
			}
		}()
	}

	patients, err := d.repo.PatientsForReminder(ctx, date, CandidateStatuses)
	if err != nil {
		return nil, fmt.Errorf("failed to load reminder candidates: %w", err)
	}

	report := &Report{Date: date, Candidates: len(patients), Results: []Result{}}
	if len(patients) == 0 {
		return report, nil
	}

	ids := make([]string, len(patients))
	for i, p := range patients {
		ids[i] = p.ID
	}
	sent, err := d.repo.SentReminderPatientIDs(ctx, ids, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load reminder logs: %w", err)
	}

	for _, p := range patients {
		if sent[p.ID] {
			report.AlreadySent++
			continue
		}
		report.Results = append(report.Results, d.send(ctx, p, date))
	}

	log.Info().
		Str("date", date.String()).
		Int("candidates", report.Candidates).
		Int("already_sent", report.AlreadySent).
		Int("attempted", len(report.Results)).
		Msg("reminder run finished")
	return report, nil
}

func (d *Dispatcher) send(ctx context.Context, p models.Patient, date models.Date) Result {
	entry := &models.ReminderLog{
		PatientID:       p.ID,
		UserID:          p.UserID,
		AppointmentDate: date,
		Status:          models.ReminderSent,
		MessageType:     models.MessageTypeWhatsApp,
	}
	result := Result{PatientID: p.ID, Status: models.ReminderSent}

	if err := d.gateway.SendText(ctx, NormalizePhone(p.Phone), Message(p.Name, date)); err != nil {
		dispatchErr := &ExternalDispatchError{PatientID: p.ID, Err: err}
		log.Error().Err(dispatchErr).Msg("failed to send reminder")

		entry.Status = models.ReminderFailed
		entry.ErrorMessage = err.Error()
		result.Status = models.ReminderFailed
		result.Error = err.Error()
	}

	if err := d.repo.CreateReminderLog(ctx, entry); err != nil {
		log.Warn().Err(err).Str("patient_id", p.ID).Msg("failed to write reminder log")
	}
	monitoring.RemindersSent.WithLabelValues(string(result.Status)).Inc()
	return result
}

// NormalizePhone keeps digits only, drops a leading trunk zero and prefixes
// the Brazilian country code when it is missing.
func NormalizePhone(phone string) string {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, phone)
	digits = strings.TrimPrefix(digits, "0")
	if !strings.HasPrefix(digits, "55") {
		digits = "55" + digits
	}
	return digits
}

func Message(name string, date models.Date) string {
	day := date.String()
	if t, err := date.Time(time.UTC); err == nil {
		day = t.Format("02/01/2006")
	}
	return fmt.Sprintf("Olá %s! 😊\n\nLembramos que você tem uma consulta agendada para amanhã (%s).\n\nCaso precise reagendar, entre em contato conosco.\n\nAguardamos você! 🦷", name, day)
}

// Tomorrow returns the calendar day after now in loc.
func Tomorrow(now time.Time, loc *time.Location) models.Date {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	return models.NewDate(time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc))
}
