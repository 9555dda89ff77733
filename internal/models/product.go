package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductType classifies a product for the production planning team.
type ProductType string

const (
	// ProductTypeNew marks products with no sales in the trailing 60 days.
	ProductTypeNew ProductType = "new"
	// ProductTypeSteady marks products that sell and are adequately stocked.
	ProductTypeSteady ProductType = "steady"
	// ProductTypeCritical marks selling products whose stock fell below the
	// low-stock threshold.
	ProductTypeCritical ProductType = "critical"
)

// Product is the local mirror of an upstream ERP product, extended with the
// derived planning fields. Keyed by UpstreamID; the article is stored in its
// canonical (normalized) form.
type Product struct {
	ID          int    `db:"id" json:"id"`
	UpstreamID  string `db:"upstream_id" json:"upstreamId"`
	Article     string `db:"article" json:"article"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description,omitempty"`
	GroupID     string `db:"group_id" json:"groupId,omitempty"`
	GroupName   string `db:"group_name" json:"groupName,omitempty"`
	Color       string `db:"color" json:"color,omitempty"`

	CurrentStock  decimal.Decimal `db:"current_stock" json:"currentStock"`
	ReservedStock decimal.Decimal `db:"reserved_stock" json:"reservedStock"`
	SalesLast60d  decimal.Decimal `db:"sales_last_60d" json:"salesLast60d"`

	// Derived planning fields, recomputed on every sync.
	AvgDailyConsumption decimal.Decimal     `db:"avg_daily_consumption" json:"avgDailyConsumption"`
	ProductType         ProductType         `db:"product_type" json:"productType"`
	DaysOfStock         decimal.NullDecimal `db:"days_of_stock" json:"daysOfStock,omitempty"`
	ProductionNeed      decimal.Decimal     `db:"production_need" json:"productionNeed"`
	ProductionPriority  int                 `db:"production_priority" json:"productionPriority"`

	// IsAbsent is set when a full sync no longer sees the product in the
	// upstream stock report. Absent products stay in place but are excluded
	// from production lists.
	IsAbsent bool `db:"is_absent" json:"isAbsent"`

	LastSyncedAt    *time.Time `db:"last_synced_at" json:"lastSyncedAt,omitempty"`
	LastImageSyncAt *time.Time `db:"last_image_sync_at" json:"-"`
	CreatedAt       time.Time  `db:"created_at" json:"-"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updatedAt"`
}

// ProductImage is an image mirrored from the upstream ERP. The first image of
// a product is its main image.
type ProductImage struct {
	ID        int       `db:"id" json:"id"`
	ProductID int       `db:"product_id" json:"productId"`
	RemoteURL string    `db:"remote_url" json:"remoteUrl"`
	IsMain    bool      `db:"is_main" json:"isMain"`
	Data      []byte    `db:"data" json:"-"`
	Thumbnail []byte    `db:"thumbnail" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"-"`
}
