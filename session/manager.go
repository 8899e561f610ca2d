// Package session keeps one patient store and notification engine per
// logged-in operator.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"magnata-crm/monitoring"
	"magnata-crm/notify"
	"magnata-crm/store"

	"github.com/rs/zerolog/log"
)

type AlerterFactory func(userID string) notify.Alerter

type Session struct {
	UserID string
	Store  *store.Store
	Engine *notify.Engine

	// expiresAt is the latest token expiry seen for the operator. Zero means
	// the session is only closed explicitly. Guarded by Manager.mu.
	expiresAt time.Time
}

func (s *Session) extend(until time.Time) {
	if until.After(s.expiresAt) {
		s.expiresAt = until
	}
}

type Manager struct {
	base       context.Context
	backend    store.Backend
	cfg        notify.Config
	newAlerter AlerterFactory

	mu       sync.Mutex
	sessions map[string]*Session
	sweeper  sync.WaitGroup
}

// NewManager validates cfg up front. Engines run under base until their
// session closes.
func NewManager(base context.Context, backend store.Backend, cfg notify.Config, newAlerter AlerterFactory) (*Manager, error) {
	if _, err := notify.NewEngine(nil, nil, cfg); err != nil {
		return nil, fmt.Errorf("invalid notification config: %w", err)
	}
	if newAlerter == nil {
		newAlerter = func(userID string) notify.Alerter {
			return notify.LogAlerter{UserID: userID}
		}
	}
	return &Manager{
		base:       base,
		backend:    backend,
		cfg:        cfg,
		newAlerter: newAlerter,
		sessions:   make(map[string]*Session),
	}, nil
}

// Open returns the operator's session, creating it and fetching the patient
// list if needed. until is the expiry of the token the caller authenticated
// with; the session is swept once every token seen for it has expired.
func (m *Manager) Open(ctx context.Context, userID string, until time.Time) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[userID]; ok {
		s.extend(until)
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	st := store.New(m.backend, userID)
	if err := st.Load(ctx); err != nil {
		return nil, err
	}
	engine, err := notify.NewEngine(st, m.newAlerter(userID), m.cfg)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		s.extend(until)
		return s, nil
	}
	s := &Session{UserID: userID, Store: st, Engine: engine, expiresAt: until}
	m.sessions[userID] = s
	engine.Start(m.base)
	monitoring.ActiveSessions.Inc()

	log.Info().Str("user_id", userID).Int("patients", len(st.List())).Msg("session opened")
	return s, nil
}

func (m *Manager) Get(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Close stops the engine and clears the store. Closing an unknown user is a
// no-op.
func (m *Manager) Close(userID string) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if !ok {
		return
	}
	teardown(s)
	log.Info().Str("user_id", userID).Msg("session closed")
}

func teardown(s *Session) {
	s.Engine.Stop()
	s.Store.Clear()
	monitoring.ActiveSessions.Dec()
}

// Sweep closes every session whose tokens have all expired by now and
// returns how many were closed.
func (m *Manager) Sweep(now time.Time) int {
	var expired []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if !s.expiresAt.IsZero() && !now.Before(s.expiresAt) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		teardown(s)
		log.Info().Str("user_id", s.UserID).Msg("session expired")
	}
	return len(expired)
}

// StartSweeper runs Sweep every interval until ctx is cancelled.
func (m *Manager) StartSweeper(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	m.sweeper.Add(1)
	go func() {
		defer m.sweeper.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.Sweep(now)
			}
		}
	}()
}

// Wait blocks until the sweeper goroutine has exited.
func (m *Manager) Wait() {
	m.sweeper.Wait()
}

func (m *Manager) CloseAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Close(id)
	}
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
