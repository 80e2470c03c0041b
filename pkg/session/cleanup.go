package session

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DefaultSweepSchedule runs the sweeper once a minute, keeping the
// expired-row backlog small without measurable write contention.
const DefaultSweepSchedule = "@every 1m"

// Sweeper periodically purges expired sessions and delivery markers.
type Sweeper struct {
	store    *Store
	schedule string
	cron     *cron.Cron
	entryID  cron.EntryID

	// OnSweep, when set, is called after each sweep with the number of
	// purged sessions and markers.
	OnSweep func(sessions, markers int64)
}

// NewSweeper creates a sweeper for the given store.
func NewSweeper(store *Store, schedule string) (*Sweeper, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	return &Sweeper{
		store:    store,
		schedule: schedule,
		cron:     cron.New(),
	}, nil
}

// Start schedules the sweep job and runs one sweep immediately.
func (sw *Sweeper) Start() error {
	id, err := sw.cron.AddFunc(sw.schedule, sw.sweep)
	if err != nil {
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}
	sw.entryID = id
	sw.cron.Start()

	sw.sweep()

	log.Info().Str("schedule", sw.schedule).Msg("Session sweeper started")
	return nil
}

// Stop halts the sweep schedule, waiting for an in-flight sweep.
func (sw *Sweeper) Stop() {
	ctx := sw.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("Session sweeper stopped")
}

func (sw *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sessions, markers, err := sw.store.PurgeExpired(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to purge expired session state")
		return
	}

	if sessions > 0 || markers > 0 {
		log.Debug().
			Int64("sessions", sessions).
			Int64("markers", markers).
			Msg("Purged expired session state")
	}

	if sw.OnSweep != nil {
		sw.OnSweep(sessions, markers)
	}
}
