package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionType names the monitored operations of the engine.
type ExecutionType string

const (
	ExecFullSync      ExecutionType = "full_sync"
	ExecCalcOnly      ExecutionType = "calc_only"
	ExecSingleProduct ExecutionType = "single_product"
)

// Execution is one monitored run of a planning operation. The record is
// created when the operation starts and finalized when it exits, on every
// path including cancellation.
type Execution struct {
	ID                   int             `db:"id" json:"id"`
	ExecType             ExecutionType   `db:"exec_type" json:"execType"`
	StartedAt            time.Time       `db:"started_at" json:"startedAt"`
	FinishedAt           *time.Time      `db:"finished_at" json:"finishedAt,omitempty"`
	InputCount           int             `db:"input_count" json:"inputCount"`
	OutputCount          int             `db:"output_count" json:"outputCount"`
	NeedingProduction    int             `db:"needing_production" json:"needingProduction"`
	TotalProductionUnits decimal.Decimal `db:"total_production_units" json:"totalProductionUnits"`
	ErrorCount           int             `db:"error_count" json:"errorCount"`
	ErrorText            string          `db:"error_text" json:"errorText,omitempty"`
}
