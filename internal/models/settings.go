package models

import (
	"time"

	"github.com/lib/pq"
)

// singletonID is the fixed primary key of the settings singleton rows.
// "Exactly one configuration record per kind" is enforced by the schema, not
// by process-global state.
const singletonID = 1

// ScheduleSettings controls the scheduled sync trigger.
type ScheduleSettings struct {
	ID               int            `db:"id" json:"-"`
	Enabled          bool           `db:"enabled" json:"enabled"`
	IntervalSeconds  int            `db:"interval_seconds" json:"intervalSeconds"`
	WarehouseID      string         `db:"warehouse_id" json:"warehouseId"`
	ExcludedGroupIDs pq.StringArray `db:"excluded_group_ids" json:"excludedGroupIds"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updatedAt"`
}

// Interval returns the sync interval as a duration.
func (s *ScheduleSettings) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// DefaultScheduleSettings returns the settings created on first access.
func DefaultScheduleSettings() *ScheduleSettings {
	return &ScheduleSettings{
		ID:               singletonID,
		Enabled:          true,
		IntervalSeconds:  86400,
		ExcludedGroupIDs: pq.StringArray{},
	}
}

// GeneralSettings holds the calculator tunables and list defaults.
type GeneralSettings struct {
	ID                     int       `db:"id" json:"-"`
	DefaultNewProductStock int       `db:"default_new_product_stock" json:"defaultNewProductStock"`
	ProductsPerPage        int       `db:"products_per_page" json:"productsPerPage"`
	LowStockThreshold      int       `db:"low_stock_threshold" json:"lowStockThreshold"`
	LowSalesThreshold      int       `db:"low_sales_threshold" json:"lowSalesThreshold"`
	MediumSalesUpper       int       `db:"medium_sales_upper" json:"mediumSalesUpper"`
	MediumStockUpper       int       `db:"medium_stock_upper" json:"mediumStockUpper"`
	TargetStockDays        int       `db:"target_stock_days" json:"targetStockDays"`
	UpdatedAt              time.Time `db:"updated_at" json:"updatedAt"`
}

// DefaultGeneralSettings returns the settings created on first access.
func DefaultGeneralSettings() *GeneralSettings {
	return &GeneralSettings{
		ID:                     singletonID,
		DefaultNewProductStock: 10,
		ProductsPerPage:        50,
		LowStockThreshold:      5,
		LowSalesThreshold:      3,
		MediumSalesUpper:       10,
		MediumStockUpper:       6,
		TargetStockDays:        15,
	}
}
