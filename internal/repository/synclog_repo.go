package repository

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/prodplan/prodplan_api/internal/models"
	"github.com/prodplan/prodplan_api/internal/utils"
)

// SyncLogRepository handles data access for sync run records. The running
// record is also the process-wide run lock.
type SyncLogRepository struct {
	db *sqlx.DB
}

// NewSyncLogRepository creates a new SyncLogRepository.
func NewSyncLogRepository(db *sqlx.DB) *SyncLogRepository {
	return &SyncLogRepository{db: db}
}

// CreateRunning inserts the running record for a new sync run. The partial
// unique index on status='running' makes this the lock acquisition: a
// concurrent run fails here with utils.ErrSyncBusy.
func (r *SyncLogRepository) CreateRunning(log *models.SyncLog) error {
	const q = `
        INSERT INTO sync_logs (started_at, warehouse_id, warehouse_name, excluded_groups, sync_type, status)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id`

	log.StartedAt = time.Now()
	log.Status = models.SyncStatusRunning
	if log.ExcludedGroups == nil {
		log.ExcludedGroups = pq.StringArray{}
	}

	err := r.db.QueryRowx(q,
		log.StartedAt,
		log.WarehouseID,
		log.WarehouseName,
		log.ExcludedGroups,
		log.SyncType,
		log.Status,
	).Scan(&log.ID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return utils.ErrSyncBusy
		}
		return err
	}
	return nil
}

// Finalize closes a run record with its terminal status and counters,
// releasing the run lock.
func (r *SyncLogRepository) Finalize(log *models.SyncLog) error {
	const q = `
        UPDATE sync_logs SET
            finished_at = NOW(),
            status = $2,
            total = $3,
            synced = $4,
            failed = $5,
            deleted = $6,
            error_details = $7
        WHERE id = $1
        RETURNING finished_at`

	return r.db.QueryRowx(q,
		log.ID,
		log.Status,
		log.Total,
		log.Synced,
		log.Failed,
		log.Deleted,
		log.ErrorDetails,
	).Scan(&log.FinishedAt)
}

// FindRunning returns the current running record, or nil when no sync is in
// flight.
func (r *SyncLogRepository) FindRunning() (*models.SyncLog, error) {
	const q = `SELECT * FROM sync_logs WHERE status = 'running' LIMIT 1`
	var log models.SyncLog
	if err := r.db.Get(&log, q); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &log, nil
}

// SweepStalled fails running records older than the stall timeout. Covers
// process crashes that never reached Finalize. Returns the ids swept.
func (r *SyncLogRepository) SweepStalled(stallTimeout time.Duration) ([]int, error) {
	const q = `
        UPDATE sync_logs SET
            finished_at = NOW(),
            status = 'failed',
            error_details = 'stalled: no heartbeat before stall timeout'
        WHERE status = 'running' AND started_at < $1
        RETURNING id`

	rows, err := r.db.Queryx(q, time.Now().Add(-stallTimeout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// List returns the most recent sync runs, newest first.
func (r *SyncLogRepository) List(limit int) ([]models.SyncLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const q = `SELECT * FROM sync_logs ORDER BY started_at DESC LIMIT $1`
	var logs []models.SyncLog
	if err := r.db.Select(&logs, q, limit); err != nil {
		return nil, err
	}
	return logs, nil
}

// ListFinishedSince returns runs that finished after the given time, oldest
// first. Used by the daily digest and throughput probes.
func (r *SyncLogRepository) ListFinishedSince(since time.Time) ([]models.SyncLog, error) {
	const q = `
        SELECT * FROM sync_logs
        WHERE finished_at IS NOT NULL AND finished_at >= $1
        ORDER BY finished_at ASC`
	var logs []models.SyncLog
	if err := r.db.Select(&logs, q, since); err != nil {
		return nil, err
	}
	return logs, nil
}
