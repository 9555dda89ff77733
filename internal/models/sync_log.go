package models

import (
	"time"

	"github.com/lib/pq"
)

// SyncType distinguishes how a sync run was triggered.
type SyncType string

const (
	SyncTypeManual    SyncType = "manual"
	SyncTypeScheduled SyncType = "scheduled"
)

// SyncStatus is the lifecycle state of a sync run.
type SyncStatus string

const (
	SyncStatusRunning SyncStatus = "running"
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusPartial SyncStatus = "partial"
	SyncStatusFailed  SyncStatus = "failed"
)

// SyncLog is the durable record of one sync run. The single row with
// status=running doubles as the process-wide run lock: a partial unique
// index on the table rejects a second running row.
type SyncLog struct {
	ID             int            `db:"id" json:"id"`
	StartedAt      time.Time      `db:"started_at" json:"startedAt"`
	FinishedAt     *time.Time     `db:"finished_at" json:"finishedAt,omitempty"`
	WarehouseID    string         `db:"warehouse_id" json:"warehouseId"`
	WarehouseName  string         `db:"warehouse_name" json:"warehouseName,omitempty"`
	ExcludedGroups pq.StringArray `db:"excluded_groups" json:"excludedGroups"`
	SyncType       SyncType       `db:"sync_type" json:"syncType"`
	Status         SyncStatus     `db:"status" json:"status"`
	Total          int            `db:"total" json:"total"`
	Synced         int            `db:"synced" json:"synced"`
	Failed         int            `db:"failed" json:"failed"`
	Deleted        int            `db:"deleted" json:"deleted"`
	ErrorDetails   string         `db:"error_details" json:"errorDetails,omitempty"`
}

// Duration returns how long the run took, or how long it has been running.
func (l *SyncLog) Duration() time.Duration {
	if l.FinishedAt != nil {
		return l.FinishedAt.Sub(l.StartedAt)
	}
	return time.Since(l.StartedAt)
}
