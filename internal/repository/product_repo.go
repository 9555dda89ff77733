package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/prodplan/prodplan_api/internal/models"
	"github.com/prodplan/prodplan_api/internal/utils"
)

// ProductRepository handles data access for the mirrored product catalog.
type ProductRepository struct {
	db *sqlx.DB
}

// NewProductRepository creates a new ProductRepository.
func NewProductRepository(db *sqlx.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Upsert inserts or updates a product by upstream_id together with its
// derived planning fields. The single statement keeps base and derived
// fields atomic per row. Returns true when the row was created.
func (r *ProductRepository) Upsert(p *models.Product) (bool, error) {
	const q = `
        INSERT INTO products (
            upstream_id, article, name, description, group_id, group_name, color,
            current_stock, reserved_stock, sales_last_60d,
            avg_daily_consumption, product_type, days_of_stock,
            production_need, production_priority, last_synced_at, is_absent
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, false)
        ON CONFLICT (upstream_id) DO UPDATE SET
            article = EXCLUDED.article,
            name = EXCLUDED.name,
            description = EXCLUDED.description,
            group_id = EXCLUDED.group_id,
            group_name = EXCLUDED.group_name,
            color = EXCLUDED.color,
            current_stock = EXCLUDED.current_stock,
            reserved_stock = EXCLUDED.reserved_stock,
            sales_last_60d = EXCLUDED.sales_last_60d,
            avg_daily_consumption = EXCLUDED.avg_daily_consumption,
            product_type = EXCLUDED.product_type,
            days_of_stock = EXCLUDED.days_of_stock,
            production_need = EXCLUDED.production_need,
            production_priority = EXCLUDED.production_priority,
            last_synced_at = EXCLUDED.last_synced_at,
            is_absent = false,
            updated_at = NOW()
        RETURNING id, (xmax = 0) AS created`

	row := r.db.QueryRowx(q,
		p.UpstreamID,
		p.Article,
		p.Name,
		p.Description,
		p.GroupID,
		p.GroupName,
		p.Color,
		p.CurrentStock,
		p.ReservedStock,
		p.SalesLast60d,
		p.AvgDailyConsumption,
		p.ProductType,
		p.DaysOfStock,
		p.ProductionNeed,
		p.ProductionPriority,
		p.LastSyncedAt,
	)
	var created bool
	if err := row.Scan(&p.ID, &created); err != nil {
		return false, err
	}
	return created, nil
}

// UpdateDerived rewrites only the derived planning fields of a product.
// Used by recalculation runs that do not touch upstream data.
func (r *ProductRepository) UpdateDerived(p *models.Product) error {
	const q = `
        UPDATE products SET
            avg_daily_consumption = $2,
            product_type = $3,
            days_of_stock = $4,
            production_need = $5,
            production_priority = $6,
            updated_at = NOW()
        WHERE upstream_id = $1`

	res, err := r.db.Exec(q,
		p.UpstreamID,
		p.AvgDailyConsumption,
		p.ProductType,
		p.DaysOfStock,
		p.ProductionNeed,
		p.ProductionPriority,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return utils.ErrNotFound
	}
	return nil
}

// GetByUpstreamID returns a single product by its upstream id.
func (r *ProductRepository) GetByUpstreamID(upstreamID string) (*models.Product, error) {
	const q = `SELECT * FROM products WHERE upstream_id = $1 LIMIT 1`
	var p models.Product
	if err := r.db.Get(&p, q, upstreamID); err != nil {
		if err == sql.ErrNoRows {
			return nil, utils.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ProductFilter holds filters for product list queries.
type ProductFilter struct {
	Type          string
	NeedsOnly     bool // only rows with production_need > 0
	IncludeAbsent bool
	Search        string // ILIKE on article and name
	Page          int
	Limit         int
}

// ProductListResult contains paginated product results.
type ProductListResult struct {
	Products   []models.Product
	TotalItems int
	TotalPages int
	Page       int
	Limit      int
}

// List returns products ordered for the production list: highest priority
// first, ties broken by article.
func (r *ProductRepository) List(filter *ProductFilter) (*ProductListResult, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 500 {
		filter.Limit = 500
	}
	offset := (filter.Page - 1) * filter.Limit

	baseWhere := `WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if !filter.IncludeAbsent {
		baseWhere += ` AND is_absent = false`
	}
	if filter.Type != "" {
		baseWhere += fmt.Sprintf(" AND product_type = $%d", argIdx)
		args = append(args, filter.Type)
		argIdx++
	}
	if filter.NeedsOnly {
		baseWhere += ` AND production_need > 0`
	}
	if filter.Search != "" {
		baseWhere += fmt.Sprintf(" AND (article ILIKE $%d OR name ILIKE $%d)", argIdx, argIdx)
		args = append(args, "%"+filter.Search+"%")
		argIdx++
	}

	countQuery := `SELECT COUNT(1) FROM products ` + baseWhere
	var total int
	if err := r.db.Get(&total, countQuery, args...); err != nil {
		return nil, err
	}

	listQuery := fmt.Sprintf(`SELECT * FROM products %s
        ORDER BY production_priority DESC, article ASC
        LIMIT $%d OFFSET $%d`, baseWhere, argIdx, argIdx+1)
	args = append(args, filter.Limit, offset)

	var products []models.Product
	if err := r.db.Select(&products, listQuery, args...); err != nil {
		return nil, err
	}

	return &ProductListResult{
		Products:   products,
		TotalItems: total,
		TotalPages: (total + filter.Limit - 1) / filter.Limit,
		Page:       filter.Page,
		Limit:      filter.Limit,
	}, nil
}

// ListActive returns every product that is not soft-marked absent.
func (r *ProductRepository) ListActive() ([]models.Product, error) {
	const q = `SELECT * FROM products WHERE is_absent = false ORDER BY article`
	var products []models.Product
	if err := r.db.Select(&products, q); err != nil {
		return nil, err
	}
	return products, nil
}

// CountsByType returns how many active products each type has.
func (r *ProductRepository) CountsByType() (map[models.ProductType]int, error) {
	const q = `
        SELECT product_type, COUNT(1) AS cnt
        FROM products WHERE is_absent = false
        GROUP BY product_type`

	rows, err := r.db.Queryx(q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.ProductType]int)
	for rows.Next() {
		var pt models.ProductType
		var cnt int
		if err := rows.Scan(&pt, &cnt); err != nil {
			return nil, err
		}
		counts[pt] = cnt
	}
	return counts, rows.Err()
}

// ProductionSummary aggregates the open production demand.
type ProductionSummary struct {
	NeedingProduction int             `db:"needing_production"`
	TotalUnits        decimal.Decimal `db:"total_units"`
}

// Summary returns the production demand over active products.
func (r *ProductRepository) Summary() (*ProductionSummary, error) {
	const q = `
        SELECT
            COUNT(1) FILTER (WHERE production_need > 0) AS needing_production,
            COALESCE(SUM(production_need), 0) AS total_units
        FROM products WHERE is_absent = false`

	var s ProductionSummary
	if err := r.db.Get(&s, q); err != nil {
		return nil, err
	}
	return &s, nil
}

// MarkAbsentBefore soft-marks every product not seen since the cutoff.
// Rows stay in place; production lists skip them. Returns the number of
// rows newly marked.
func (r *ProductRepository) MarkAbsentBefore(cutoff time.Time) (int64, error) {
	const q = `
        UPDATE products SET is_absent = true, updated_at = NOW()
        WHERE is_absent = false
        AND (last_synced_at IS NULL OR last_synced_at < $1)`

	res, err := r.db.Exec(q, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListImageStale returns products synced since the given time whose images
// were never mirrored or whose last image sync is older than the TTL.
func (r *ProductRepository) ListImageStale(syncedSince time.Time, ttl time.Duration) ([]models.Product, error) {
	const q = `
        SELECT * FROM products
        WHERE last_synced_at >= $1
        AND (last_image_sync_at IS NULL OR last_image_sync_at < $2)
        ORDER BY id`

	var products []models.Product
	if err := r.db.Select(&products, q, syncedSince, time.Now().Add(-ttl)); err != nil {
		return nil, err
	}
	return products, nil
}

// SetImageSynced stamps a product's image mirror time.
func (r *ProductRepository) SetImageSynced(productID int) error {
	const q = `UPDATE products SET last_image_sync_at = NOW() WHERE id = $1`
	_, err := r.db.Exec(q, productID)
	return err
}
