package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/prodplan/prodplan_api/internal/cache"
	"github.com/prodplan/prodplan_api/internal/utils"
	"github.com/prodplan/prodplan_api/pkg/moysklad"
)

// ReferenceHandler serves the upstream reference lists (warehouses and
// product groups) the settings UI needs, backed by the Redis cache.
type ReferenceHandler struct {
	erp   *moysklad.Client
	cache *cache.ReferenceCache
}

// NewReferenceHandler constructs a ReferenceHandler.
func NewReferenceHandler(erp *moysklad.Client, refCache *cache.ReferenceCache) *ReferenceHandler {
	return &ReferenceHandler{erp: erp, cache: refCache}
}

// GetWarehouses returns the upstream warehouse list.
func (h *ReferenceHandler) GetWarehouses(c *gin.Context) {
	ctx := c.Request.Context()

	if rows, ok := h.cache.GetWarehouses(ctx); ok {
		utils.Success(c, 200, "Warehouses retrieved successfully", gin.H{"warehouses": rows, "cached": true})
		return
	}

	rows, err := h.erp.ListWarehouses(ctx)
	if err != nil {
		utils.Error(c, 502, "UPSTREAM_ERROR", "Failed to fetch warehouses")
		return
	}
	if err := h.cache.PutWarehouses(ctx, rows); err != nil {
		log.Warn().Err(err).Msg("Failed to cache warehouses")
	}

	utils.Success(c, 200, "Warehouses retrieved successfully", gin.H{"warehouses": rows, "cached": false})
}

// GetProductGroups returns the upstream product folder tree as a flat list.
func (h *ReferenceHandler) GetProductGroups(c *gin.Context) {
	ctx := c.Request.Context()

	if rows, ok := h.cache.GetProductGroups(ctx); ok {
		utils.Success(c, 200, "Product groups retrieved successfully", gin.H{"groups": rows, "cached": true})
		return
	}

	rows, err := h.erp.ListProductGroups(ctx)
	if err != nil {
		utils.Error(c, 502, "UPSTREAM_ERROR", "Failed to fetch product groups")
		return
	}
	if err := h.cache.PutProductGroups(ctx, rows); err != nil {
		log.Warn().Err(err).Msg("Failed to cache product groups")
	}

	utils.Success(c, 200, "Product groups retrieved successfully", gin.H{"groups": rows, "cached": false})
}
