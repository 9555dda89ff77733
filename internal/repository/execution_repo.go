package repository

import (
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/prodplan/prodplan_api/internal/models"
)

// ExecutionRepository handles the monitored execution records.
type ExecutionRepository struct {
	db *sqlx.DB
}

// NewExecutionRepository creates a new ExecutionRepository.
func NewExecutionRepository(db *sqlx.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// Start inserts a new execution record at operation start.
func (r *ExecutionRepository) Start(e *models.Execution) error {
	const q = `
        INSERT INTO sync_executions (exec_type, started_at)
        VALUES ($1, $2)
        RETURNING id`
	e.StartedAt = time.Now()
	return r.db.QueryRowx(q, e.ExecType, e.StartedAt).Scan(&e.ID)
}

// Finish finalizes an execution record with its result counters.
func (r *ExecutionRepository) Finish(e *models.Execution) error {
	const q = `
        UPDATE sync_executions SET
            finished_at = NOW(),
            input_count = $2,
            output_count = $3,
            needing_production = $4,
            total_production_units = $5,
            error_count = $6,
            error_text = $7
        WHERE id = $1
        RETURNING finished_at`

	return r.db.QueryRowx(q,
		e.ID,
		e.InputCount,
		e.OutputCount,
		e.NeedingProduction,
		e.TotalProductionUnits,
		e.ErrorCount,
		e.ErrorText,
	).Scan(&e.FinishedAt)
}

// ListSince returns executions started after the given time, newest first.
func (r *ExecutionRepository) ListSince(since time.Time, execType models.ExecutionType) ([]models.Execution, error) {
	const q = `
        SELECT * FROM sync_executions
        WHERE started_at >= $1 AND ($2 = '' OR exec_type = $2)
        ORDER BY started_at DESC`
	var execs []models.Execution
	if err := r.db.Select(&execs, q, since, string(execType)); err != nil {
		return nil, err
	}
	return execs, nil
}

// PruneOlderThan deletes execution records older than the retention window.
func (r *ExecutionRepository) PruneOlderThan(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM sync_executions WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
