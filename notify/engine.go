// Package notify raises in-session reminders for patients whose appointment
// is tomorrow. The engine polls the patient list at fixed checkpoints of the
// day, queues matching patients for the operator and emits an audible alert
// at most once per cooldown window.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"magnata-crm/models"
	"magnata-crm/monitoring"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrNoUpcoming = errors.New("no scheduled patients for tomorrow")

type PatientSource interface {
	List() []models.Patient
}

type Notification struct {
	Key      string         `json:"key"`
	Patient  models.Patient `json:"patient"`
	Message  string         `json:"message"`
	RaisedAt time.Time      `json:"raised_at"`
}

type Config struct {
	Checkpoints  []string
	Tolerance    time.Duration
	PollInterval time.Duration
	Cooldown     time.Duration
	Location     *time.Location
}

func DefaultConfig() Config {
	return Config{
		Checkpoints:  []string{"08:00", "10:00", "12:00", "14:00", "16:00", "18:00"},
		Tolerance:    time.Minute,
		PollInterval: time.Minute,
		Cooldown:     3 * time.Minute,
		Location:     time.Local,
	}
}

type Snapshot struct {
	Notifications []Notification `json:"notifications"`
	Current       *Notification  `json:"current,omitempty"`
	Open          bool           `json:"open"`
	SoundCooldown bool           `json:"sound_cooldown"`
}

type checkpoint struct {
	hour, minute int
}

// Engine state is owned by one instance and only reached through its methods.
type Engine struct {
	source      PatientSource
	alerter     Alerter
	cfg         Config
	checkpoints []checkpoint
	now         func() time.Time

	mu            sync.Mutex
	notifications []Notification
	dismissed     map[string]struct{}
	currentKey    string
	open          bool
	cooldownUntil time.Time

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewEngine(source PatientSource, alerter Alerter, cfg Config) (*Engine, error) {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}

	cps := make([]checkpoint, 0, len(cfg.Checkpoints))
	for _, s := range cfg.Checkpoints {
		t, err := time.Parse("15:04", s)
		if err != nil {
			return nil, fmt.Errorf("invalid checkpoint %q: %w", s, err)
		}
		cps = append(cps, checkpoint{hour: t.Hour(), minute: t.Minute()})
	}

	return &Engine{
		source:      source,
		alerter:     alerter,
		cfg:         cfg,
		checkpoints: cps,
		now:         time.Now,
		dismissed:   make(map[string]struct{}),
	}, nil
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Start resets the engine, runs one check immediately and then one per poll
// interval until Stop is called or ctx is done.
func (e *Engine) Start(ctx context.Context) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.cancel != nil {
		return
	}

	e.reset()
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done

	go func() {
		defer close(done)
		e.Check(ctx, e.now())

		ticker := time.NewTicker(e.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.Check(ctx, e.now())
			}
		}
	}()
}

// Stop ends the polling loop and clears the sound cooldown.
func (e *Engine) Stop() {
	e.runMu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	e.mu.Lock()
	e.cooldownUntil = time.Time{}
	e.mu.Unlock()
}

func (e *Engine) Running() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.cancel != nil
}

// Check raises the reminders due at now. Outside a checkpoint window it does
// nothing and returns nil.
func (e *Engine) Check(ctx context.Context, now time.Time) []Notification {
	local := now.In(e.cfg.Location)
	cp, ok := e.checkpointAt(local)
	if !ok {
		return nil
	}
	bucket := cp.Format("2006-01-02 15:04")

	// Every tick inside one window sees the same patient set: "tomorrow" is
	// relative to the checkpoint's day, not the tick's.
	var fresh []Notification
	for _, p := range e.upcoming(cp) {
		n := newNotification(p.ID+"@"+bucket, p, local)
		if !e.isDismissed(n.Key) {
			fresh = append(fresh, n)
		}
	}
	return e.raise(ctx, fresh, local)
}

// TriggerTest raises the current matches regardless of the time of day. Keys
// are unique per call so the dismissed set is never consulted or polluted.
func (e *Engine) TriggerTest(ctx context.Context, now time.Time) ([]Notification, error) {
	local := now.In(e.cfg.Location)
	matches := e.upcoming(local)
	if len(matches) == 0 {
		return nil, ErrNoUpcoming
	}

	run := uuid.NewString()
	list := make([]Notification, len(matches))
	for i, p := range matches {
		list[i] = newNotification(fmt.Sprintf("test-%s-%s", run, p.ID), p, local)
	}
	return e.raise(ctx, list, local), nil
}

func (e *Engine) Dismiss(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.dismissed[key] = struct{}{}
	for i, n := range e.notifications {
		if n.Key == key {
			e.notifications = append(e.notifications[:i:i], e.notifications[i+1:]...)
			break
		}
	}

	if len(e.notifications) == 0 {
		e.currentKey = ""
		e.open = false
		return
	}
	if e.currentKey == key || e.indexOf(e.currentKey) < 0 {
		e.currentKey = e.notifications[0].Key
	}
}

func (e *Engine) DismissAll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, n := range e.notifications {
		e.dismissed[n.Key] = struct{}{}
	}
	e.notifications = nil
	e.currentKey = ""
	e.open = false
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Snapshot{
		Notifications: make([]Notification, len(e.notifications)),
		Open:          e.open,
		SoundCooldown: e.now().Before(e.cooldownUntil),
	}
	copy(s.Notifications, e.notifications)
	if i := e.indexOf(e.currentKey); i >= 0 {
		cur := e.notifications[i]
		s.Current = &cur
	}
	return s
}

func (e *Engine) raise(ctx context.Context, list []Notification, now time.Time) []Notification {
	if len(list) == 0 {
		return nil
	}

	e.mu.Lock()
	e.notifications = list
	e.currentKey = list[0].Key
	e.open = true
	playSound := !now.Before(e.cooldownUntil)
	if playSound {
		e.cooldownUntil = now.Add(e.cfg.Cooldown)
	}
	out := make([]Notification, len(list))
	copy(out, list)
	e.mu.Unlock()

	monitoring.NotificationsRaised.Add(float64(len(out)))
	log.Debug().Int("count", len(out)).Bool("sound", playSound).Msg("appointment reminders raised")

	if playSound && e.alerter != nil {
		monitoring.NotificationAlerts.Inc()
		if err := e.alerter.Alert(ctx, out); err != nil {
			log.Warn().Err(err).Msg("failed to emit reminder alert")
		}
	}
	return out
}

// upcoming returns scheduled patients whose appointment falls on the day
// after day. Records with an unparseable date are skipped.
func (e *Engine) upcoming(day time.Time) []models.Patient {
	loc := e.cfg.Location
	today := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	tomorrow := today.AddDate(0, 0, 1)

	var out []models.Patient
	for _, p := range e.source.List() {
		if p.Status != models.StatusScheduled {
			continue
		}
		appt, err := p.AppointmentDate.Time(loc)
		if err != nil {
			log.Debug().Str("patient_id", p.ID).Err(err).Msg("skipping patient with malformed appointment date")
			continue
		}
		if appt.Equal(tomorrow) {
			out = append(out, p)
		}
	}
	return out
}

// checkpointAt returns the checkpoint within tolerance of now.
func (e *Engine) checkpointAt(now time.Time) (time.Time, bool) {
	for _, cp := range e.checkpoints {
		for _, offset := range []int{0, -1, 1} {
			at := time.Date(now.Year(), now.Month(), now.Day()+offset, cp.hour, cp.minute, 0, 0, now.Location())
			diff := now.Sub(at)
			if diff < 0 {
				diff = -diff
			}
			if diff <= e.cfg.Tolerance {
				return at, true
			}
		}
	}
	return time.Time{}, false
}

func (e *Engine) isDismissed(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.dismissed[key]
	return ok
}

func (e *Engine) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifications = nil
	e.dismissed = make(map[string]struct{})
	e.currentKey = ""
	e.open = false
	e.cooldownUntil = time.Time{}
}

func (e *Engine) indexOf(key string) int {
	if key == "" {
		return -1
	}
	for i, n := range e.notifications {
		if n.Key == key {
			return i
		}
	}
	return -1
}

func newNotification(key string, p models.Patient, now time.Time) Notification {
	return Notification{
		Key:      key,
		Patient:  p,
		Message:  "ATENÇÃO: Você tem paciente agendado amanhã – " + p.Name,
		RaisedAt: now,
	}
}
