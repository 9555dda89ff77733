// Package monitor brackets every planning operation with a durable execution
// record and exposes the engine's Prometheus metrics and periodic probes.
package monitor

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/prodplan/prodplan_api/internal/models"
)

// ExecutionStore persists execution records.
type ExecutionStore interface {
	Start(e *models.Execution) error
	Finish(e *models.Execution) error
	ListSince(since time.Time, execType models.ExecutionType) ([]models.Execution, error)
	PruneOlderThan(cutoff time.Time) (int64, error)
}

// Monitor records execution brackets. Recording failures are logged, never
// swallowed silently, and never fail the monitored operation.
type Monitor struct {
	store ExecutionStore
}

// NewMonitor constructs a Monitor.
func NewMonitor(store ExecutionStore) *Monitor {
	return &Monitor{store: store}
}

// Outcome is the result a finished operation reports.
type Outcome struct {
	Input             int
	Output            int
	NeedingProduction int
	TotalUnits        decimal.Decimal
	Errors            int
	Err               error
}

// Run is one open execution bracket.
type Run struct {
	m   *Monitor
	rec models.Execution
}

// Begin opens an execution bracket. The record is written immediately so a
// crashed process still leaves evidence of the attempt.
func (m *Monitor) Begin(execType models.ExecutionType) *Run {
	run := &Run{m: m, rec: models.Execution{ExecType: execType}}
	if err := m.store.Start(&run.rec); err != nil {
		log.Error().Err(err).Str("exec_type", string(execType)).Msg("failed to record execution start")
	}
	return run
}

// Finish closes the bracket with the operation's outcome. Safe to call on
// every exit path; the caller must call it exactly once.
func (r *Run) Finish(out Outcome) {
	r.rec.InputCount = out.Input
	r.rec.OutputCount = out.Output
	r.rec.NeedingProduction = out.NeedingProduction
	r.rec.TotalProductionUnits = out.TotalUnits
	r.rec.ErrorCount = out.Errors
	if out.Err != nil {
		r.rec.ErrorText = out.Err.Error()
	}

	observeExecution(&r.rec)

	if r.rec.ID == 0 {
		// Start never landed; nothing to finalize.
		return
	}
	if err := r.m.store.Finish(&r.rec); err != nil {
		log.Error().Err(err).Int("execution_id", r.rec.ID).Msg("failed to record execution finish")
	}
}
