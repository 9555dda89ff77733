package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/prodplan/prodplan_api/internal/repository"
)

// SweepWorker fails sync run records that are still marked running past the
// stall timeout. A crashed process never reaches Finalize; without the
// sweep its running row would hold the run lock forever.
type SweepWorker struct {
	syncLogRepo  *repository.SyncLogRepository
	stallTimeout time.Duration
	interval     time.Duration
}

// NewSweepWorker constructs a SweepWorker.
func NewSweepWorker(syncLogRepo *repository.SyncLogRepository, stallTimeout, interval time.Duration) *SweepWorker {
	return &SweepWorker{syncLogRepo: syncLogRepo, stallTimeout: stallTimeout, interval: interval}
}

// Start begins the periodic sweep loop and listens for context cancellation.
func (w *SweepWorker) Start(ctx context.Context) {
	log.Info().
		Dur("stall_timeout", w.stallTimeout).
		Dur("interval", w.interval).
		Msg("Starting stalled sync sweeper")

	// Sweep immediately: a crash before the last restart may have left a
	// stuck running row.
	w.run()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.run()
		case <-ctx.Done():
			log.Info().Msg("Stalled sync sweeper stopped")
			return
		}
	}
}

func (w *SweepWorker) run() {
	ids, err := w.syncLogRepo.SweepStalled(w.stallTimeout)
	if err != nil {
		log.Error().Err(err).Msg("Failed to sweep stalled sync runs")
		return
	}
	for _, id := range ids {
		log.Warn().Int("sync_log_id", id).Msg("Swept stalled sync run to failed")
	}
}
