package repository

import (
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/prodplan/prodplan_api/internal/models"
)

// SettingsRepository handles the two settings singletons. Reads create the
// row with defaults on first access so callers never see a missing record.
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository creates a new SettingsRepository.
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetSchedule returns the schedule settings, creating defaults when absent.
func (r *SettingsRepository) GetSchedule() (*models.ScheduleSettings, error) {
	var s models.ScheduleSettings
	err := r.db.Get(&s, `SELECT * FROM schedule_settings WHERE id = 1`)
	if err == nil {
		return &s, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	def := models.DefaultScheduleSettings()
	if err := r.SaveSchedule(def); err != nil {
		return nil, err
	}
	return def, nil
}

// SaveSchedule writes the schedule settings singleton.
func (r *SettingsRepository) SaveSchedule(s *models.ScheduleSettings) error {
	const q = `
        INSERT INTO schedule_settings (id, enabled, interval_seconds, warehouse_id, excluded_group_ids, updated_at)
        VALUES (1, $1, $2, $3, $4, NOW())
        ON CONFLICT (id) DO UPDATE SET
            enabled = EXCLUDED.enabled,
            interval_seconds = EXCLUDED.interval_seconds,
            warehouse_id = EXCLUDED.warehouse_id,
            excluded_group_ids = EXCLUDED.excluded_group_ids,
            updated_at = NOW()
        RETURNING updated_at`

	return r.db.QueryRowx(q, s.Enabled, s.IntervalSeconds, s.WarehouseID, s.ExcludedGroupIDs).Scan(&s.UpdatedAt)
}

// EnsureGeneral inserts the given general settings only when no row exists
// yet. Used to seed the singleton from the environment on first boot.
func (r *SettingsRepository) EnsureGeneral(s *models.GeneralSettings) error {
	const q = `
        INSERT INTO general_settings (
            id, default_new_product_stock, products_per_page,
            low_stock_threshold, low_sales_threshold,
            medium_sales_upper, medium_stock_upper, target_stock_days, updated_at
        )
        VALUES (1, $1, $2, $3, $4, $5, $6, $7, NOW())
        ON CONFLICT (id) DO NOTHING`

	_, err := r.db.Exec(q,
		s.DefaultNewProductStock,
		s.ProductsPerPage,
		s.LowStockThreshold,
		s.LowSalesThreshold,
		s.MediumSalesUpper,
		s.MediumStockUpper,
		s.TargetStockDays,
	)
	return err
}

// GetGeneral returns the general settings, creating defaults when absent.
func (r *SettingsRepository) GetGeneral() (*models.GeneralSettings, error) {
	var s models.GeneralSettings
	err := r.db.Get(&s, `SELECT * FROM general_settings WHERE id = 1`)
	if err == nil {
		return &s, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	def := models.DefaultGeneralSettings()
	if err := r.SaveGeneral(def); err != nil {
		return nil, err
	}
	return def, nil
}

// SaveGeneral writes the general settings singleton.
func (r *SettingsRepository) SaveGeneral(s *models.GeneralSettings) error {
	const q = `
        INSERT INTO general_settings (
            id, default_new_product_stock, products_per_page,
            low_stock_threshold, low_sales_threshold,
            medium_sales_upper, medium_stock_upper, target_stock_days, updated_at
        )
        VALUES (1, $1, $2, $3, $4, $5, $6, $7, NOW())
        ON CONFLICT (id) DO UPDATE SET
            default_new_product_stock = EXCLUDED.default_new_product_stock,
            products_per_page = EXCLUDED.products_per_page,
            low_stock_threshold = EXCLUDED.low_stock_threshold,
            low_sales_threshold = EXCLUDED.low_sales_threshold,
            medium_sales_upper = EXCLUDED.medium_sales_upper,
            medium_stock_upper = EXCLUDED.medium_stock_upper,
            target_stock_days = EXCLUDED.target_stock_days,
            updated_at = NOW()
        RETURNING updated_at`

	return r.db.QueryRowx(q,
		s.DefaultNewProductStock,
		s.ProductsPerPage,
		s.LowStockThreshold,
		s.LowSalesThreshold,
		s.MediumSalesUpper,
		s.MediumStockUpper,
		s.TargetStockDays,
	).Scan(&s.UpdatedAt)
}
