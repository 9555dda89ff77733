package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/prodplan/prodplan_api/internal/models"
	"github.com/prodplan/prodplan_api/internal/repository"
	"github.com/prodplan/prodplan_api/internal/service"
	"github.com/prodplan/prodplan_api/internal/utils"
)

// SyncWorker triggers scheduled catalog syncs. The interval comes from the
// schedule settings singleton and is reread before every run, so settings
// changes take effect without a restart.
type SyncWorker struct {
	syncService  *service.SyncService
	settingsRepo *repository.SettingsRepository
	fallback     time.Duration
}

// NewSyncWorker constructs a SyncWorker. The fallback interval applies when
// settings cannot be read.
func NewSyncWorker(syncService *service.SyncService, settingsRepo *repository.SettingsRepository, fallback time.Duration) *SyncWorker {
	return &SyncWorker{syncService: syncService, settingsRepo: settingsRepo, fallback: fallback}
}

// Start begins the scheduled sync loop and listens for context cancellation.
func (w *SyncWorker) Start(ctx context.Context) {
	log.Info().Dur("fallback_interval", w.fallback).Msg("Starting scheduled sync worker")

	timer := time.NewTimer(w.nextInterval())
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			w.run(ctx)
			timer.Reset(w.nextInterval())
		case <-ctx.Done():
			log.Info().Msg("Scheduled sync worker stopped")
			return
		}
	}
}

// nextInterval reads the current schedule interval, falling back to the
// static config when settings are unreadable.
func (w *SyncWorker) nextInterval() time.Duration {
	settings, err := w.settingsRepo.GetSchedule()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load schedule settings, using fallback interval")
		return w.fallback
	}
	if iv := settings.Interval(); iv >= time.Minute {
		return iv
	}
	return w.fallback
}

func (w *SyncWorker) run(ctx context.Context) {
	settings, err := w.settingsRepo.GetSchedule()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load schedule settings, skipping scheduled sync")
		return
	}
	if !settings.Enabled {
		log.Debug().Msg("Scheduled sync disabled, skipping")
		return
	}

	_, err = w.syncService.Sync(ctx, service.SyncOptions{
		SyncType: models.SyncTypeScheduled,
	})
	switch {
	case err == nil:
	case errors.Is(err, utils.ErrSyncBusy):
		// A manual run is in flight. Skip, do not queue; the next tick
		// covers the interval.
		log.Warn().Msg("Scheduled sync skipped: another sync is running")
	default:
		log.Error().Err(err).Msg("Scheduled sync failed")
	}
}
