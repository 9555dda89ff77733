package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prodplan/prodplan_api/pkg/moysklad"
)

// referenceTTL bounds how stale cached upstream reference data may get.
// Warehouses and folder trees change rarely; an hour is conservative.
const referenceTTL = time.Hour

const (
	keyWarehouses = "erp:ref:warehouses"
	keyGroups     = "erp:ref:productgroups"
)

// ReferenceCache keeps slow-changing upstream reference data (warehouses,
// product group tree) in Redis so repeated runs and API handlers do not
// spend rate-limit budget on them.
type ReferenceCache struct {
	redis *RedisClient
}

// NewReferenceCache creates a ReferenceCache.
func NewReferenceCache(redis *RedisClient) *ReferenceCache {
	return &ReferenceCache{redis: redis}
}

// GetWarehouses returns the cached warehouse list, or ok=false on a miss.
func (c *ReferenceCache) GetWarehouses(ctx context.Context) ([]moysklad.Warehouse, bool) {
	var out []moysklad.Warehouse
	return out, c.getJSON(ctx, keyWarehouses, &out)
}

// PutWarehouses caches the warehouse list.
func (c *ReferenceCache) PutWarehouses(ctx context.Context, rows []moysklad.Warehouse) error {
	return c.putJSON(ctx, keyWarehouses, rows)
}

// GetProductGroups returns the cached folder tree, or ok=false on a miss.
func (c *ReferenceCache) GetProductGroups(ctx context.Context) ([]moysklad.ProductGroup, bool) {
	var out []moysklad.ProductGroup
	return out, c.getJSON(ctx, keyGroups, &out)
}

// PutProductGroups caches the folder tree.
func (c *ReferenceCache) PutProductGroups(ctx context.Context, rows []moysklad.ProductGroup) error {
	return c.putJSON(ctx, keyGroups, rows)
}

// Invalidate drops all cached reference data.
func (c *ReferenceCache) Invalidate(ctx context.Context) error {
	return c.redis.Delete(ctx, keyWarehouses, keyGroups)
}

func (c *ReferenceCache) getJSON(ctx context.Context, key string, out any) bool {
	if c == nil || c.redis == nil {
		return false
	}
	raw, err := c.redis.Get(ctx, key)
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(raw), out) == nil
}

func (c *ReferenceCache) putJSON(ctx context.Context, key string, v any) error {
	if c == nil || c.redis == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return c.redis.Set(ctx, key, string(raw), referenceTTL)
}
