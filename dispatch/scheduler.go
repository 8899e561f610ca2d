package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Scheduler runs the dispatcher for the following day once a day at a fixed
// time of day.
type Scheduler struct {
	dispatcher   *Dispatcher
	hour, minute int
	loc          *time.Location
	now          func() time.Time

	wg sync.WaitGroup
}

func NewScheduler(d *Dispatcher, sendAt string, loc *time.Location) (*Scheduler, error) {
	t, err := time.Parse("15:04", sendAt)
	if err != nil {
		return nil, fmt.Errorf("invalid dispatch time %q: %w", sendAt, err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		dispatcher: d,
		hour:       t.Hour(),
		minute:     t.Minute(),
		loc:        loc,
		now:        time.Now,
	}, nil
}

// Next returns the first run time strictly after now.
func (s *Scheduler) Next(now time.Time) time.Time {
	local := now.In(s.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, s.hour, s.minute, 0, 0, s.loc)
	}
	return next
}

// Start launches the loop; it returns immediately. Wait blocks until the loop
// has exited after ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			next := s.Next(s.now())
			log.Info().Time("next_run", next).Msg("reminder dispatch scheduled")

			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case fired := <-timer.C:
				s.runOnce(ctx, fired)
			}
		}
	}()
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) runOnce(ctx context.Context, at time.Time) {
	date := Tomorrow(at, s.loc)
	if _, err := s.dispatcher.Run(ctx, date); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			log.Info().Str("date", date.String()).Msg("reminder run skipped, another run holds the lock")
			return
		}
		log.Error().Err(err).Str("date", date.String()).Msg("scheduled reminder run failed")
	}
}
