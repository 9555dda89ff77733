package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/prodplan/prodplan_api/internal/repository"
	"github.com/prodplan/prodplan_api/internal/service"
	"github.com/prodplan/prodplan_api/internal/utils"
)

// ProductHandler handles product list and recalculation endpoints.
type ProductHandler struct {
	productRepo  *repository.ProductRepository
	imageRepo    *repository.ImageRepository
	settingsRepo *repository.SettingsRepository
	syncService  *service.SyncService
	defaultPage  int
}

// NewProductHandler constructs a ProductHandler.
func NewProductHandler(
	productRepo *repository.ProductRepository,
	imageRepo *repository.ImageRepository,
	settingsRepo *repository.SettingsRepository,
	syncService *service.SyncService,
	defaultPageSize int,
) *ProductHandler {
	if defaultPageSize <= 0 {
		defaultPageSize = 50
	}
	return &ProductHandler{
		productRepo:  productRepo,
		imageRepo:    imageRepo,
		settingsRepo: settingsRepo,
		syncService:  syncService,
		defaultPage:  defaultPageSize,
	}
}

// pageSize resolves the page size for unpaginated requests from the
// general settings, falling back to the configured default.
func (h *ProductHandler) pageSize() int {
	if settings, err := h.settingsRepo.GetGeneral(); err == nil && settings.ProductsPerPage > 0 {
		return settings.ProductsPerPage
	}
	return h.defaultPage
}

// GetProducts returns the production list with optional filters and
// pagination, ordered by production priority.
func (h *ProductHandler) GetProducts(c *gin.Context) {
	filter := &repository.ProductFilter{
		Type:          c.Query("type"), // new, steady, critical
		Search:        c.Query("search"),
		NeedsOnly:     c.Query("needsProduction") == "true",
		IncludeAbsent: c.Query("includeAbsent") == "true",
		Page:          1,
		Limit:         h.pageSize(),
	}
	if v := c.Query("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Page = n
		}
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}

	result, err := h.productRepo.List(filter)
	if err != nil {
		utils.Error(c, 500, "INTERNAL_ERROR", "Failed to get products")
		return
	}

	utils.SuccessWithPagination(c, 200, "Products retrieved successfully", gin.H{
		"products": result.Products,
	}, result.Page, result.Limit, result.TotalItems)
}

// GetProduct returns one product by upstream id, with its image metadata.
func (h *ProductHandler) GetProduct(c *gin.Context) {
	product, err := h.productRepo.GetByUpstreamID(c.Param("id"))
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			utils.Error(c, 404, "NOT_FOUND", "Product not found")
			return
		}
		utils.Error(c, 500, "INTERNAL_ERROR", "Failed to get product")
		return
	}

	images, err := h.imageRepo.ListForProduct(product.ID)
	if err != nil {
		utils.Error(c, 500, "INTERNAL_ERROR", "Failed to get product images")
		return
	}

	utils.Success(c, 200, "Product retrieved successfully", gin.H{
		"product": product,
		"images":  images,
	})
}

// GetProductImage streams one stored image binary.
func (h *ProductHandler) GetProductImage(c *gin.Context) {
	imageID, err := strconv.Atoi(c.Param("imageId"))
	if err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "Invalid image id")
		return
	}

	data, err := h.imageRepo.GetData(imageID)
	if err != nil {
		utils.Error(c, 404, "NOT_FOUND", "Image not found")
		return
	}
	c.Data(200, "image/jpeg", data)
}

// GetSummary returns the catalog composition and open production demand.
func (h *ProductHandler) GetSummary(c *gin.Context) {
	counts, err := h.productRepo.CountsByType()
	if err != nil {
		utils.Error(c, 500, "INTERNAL_ERROR", "Failed to get counts")
		return
	}
	summary, err := h.productRepo.Summary()
	if err != nil {
		utils.Error(c, 500, "INTERNAL_ERROR", "Failed to get summary")
		return
	}

	utils.Success(c, 200, "Summary retrieved successfully", gin.H{
		"countsByType":         counts,
		"needingProduction":    summary.NeedingProduction,
		"totalProductionUnits": summary.TotalUnits,
	})
}

// Recalculate rewrites the derived fields of every active product using the
// current settings, without contacting the upstream ERP.
func (h *ProductHandler) Recalculate(c *gin.Context) {
	updated, err := h.syncService.RecalculateAll(c.Request.Context())
	if err != nil {
		utils.Error(c, 500, "INTERNAL_ERROR", "Recalculation incomplete")
		return
	}
	utils.Success(c, 200, "Recalculation finished", gin.H{"updated": updated})
}

// RecalculateOne rewrites the derived fields of a single product.
func (h *ProductHandler) RecalculateOne(c *gin.Context) {
	product, err := h.syncService.RecalculateOne(c.Param("id"))
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			utils.Error(c, 404, "NOT_FOUND", "Product not found")
			return
		}
		utils.Error(c, 500, "INTERNAL_ERROR", "Recalculation failed")
		return
	}
	utils.Success(c, 200, "Product recalculated", gin.H{"product": product})
}
