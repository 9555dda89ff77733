package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/lib/pq"

	"github.com/prodplan/prodplan_api/internal/repository"
	"github.com/prodplan/prodplan_api/internal/utils"
)

// SettingsHandler exposes the two settings singletons.
type SettingsHandler struct {
	settingsRepo *repository.SettingsRepository
}

// NewSettingsHandler constructs a SettingsHandler.
func NewSettingsHandler(settingsRepo *repository.SettingsRepository) *SettingsHandler {
	return &SettingsHandler{settingsRepo: settingsRepo}
}

// GetSchedule returns the schedule settings.
func (h *SettingsHandler) GetSchedule(c *gin.Context) {
	s, err := h.settingsRepo.GetSchedule()
	if err != nil {
		utils.Error(c, 500, "INTERNAL_ERROR", "Failed to get schedule settings")
		return
	}
	utils.Success(c, 200, "Schedule settings", s)
}

// updateScheduleRequest is the body of PUT /settings/schedule.
type updateScheduleRequest struct {
	Enabled          *bool    `json:"enabled"`
	IntervalSeconds  *int     `json:"intervalSeconds"`
	WarehouseID      *string  `json:"warehouseId"`
	ExcludedGroupIDs []string `json:"excludedGroupIds"`
}

// UpdateSchedule patches the schedule settings. Omitted fields keep their
// current values.
func (h *SettingsHandler) UpdateSchedule(c *gin.Context) {
	var req updateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "Invalid request body")
		return
	}

	s, err := h.settingsRepo.GetSchedule()
	if err != nil {
		utils.Error(c, 500, "INTERNAL_ERROR", "Failed to get schedule settings")
		return
	}

	if req.Enabled != nil {
		s.Enabled = *req.Enabled
	}
	if req.IntervalSeconds != nil {
		if *req.IntervalSeconds < 60 {
			utils.Error(c, 400, "INVALID_SETTINGS", "intervalSeconds must be at least 60")
			return
		}
		s.IntervalSeconds = *req.IntervalSeconds
	}
	if req.WarehouseID != nil {
		s.WarehouseID = *req.WarehouseID
	}
	if req.ExcludedGroupIDs != nil {
		s.ExcludedGroupIDs = pq.StringArray(req.ExcludedGroupIDs)
	}

	if err := h.settingsRepo.SaveSchedule(s); err != nil {
		utils.Error(c, 500, "INTERNAL_ERROR", "Failed to save schedule settings")
		return
	}
	utils.Success(c, 200, "Schedule settings updated", s)
}

// GetGeneral returns the general settings.
func (h *SettingsHandler) GetGeneral(c *gin.Context) {
	s, err := h.settingsRepo.GetGeneral()
	if err != nil {
		utils.Error(c, 500, "INTERNAL_ERROR", "Failed to get general settings")
		return
	}
	utils.Success(c, 200, "General settings", s)
}

// updateGeneralRequest is the body of PUT /settings/general.
type updateGeneralRequest struct {
	DefaultNewProductStock *int `json:"defaultNewProductStock"`
	ProductsPerPage        *int `json:"productsPerPage"`
	LowStockThreshold      *int `json:"lowStockThreshold"`
	LowSalesThreshold      *int `json:"lowSalesThreshold"`
	MediumSalesUpper       *int `json:"mediumSalesUpper"`
	MediumStockUpper       *int `json:"mediumStockUpper"`
	TargetStockDays        *int `json:"targetStockDays"`
}

// UpdateGeneral patches the general settings. Omitted fields keep their
// current values; all values must be non-negative.
func (h *SettingsHandler) UpdateGeneral(c *gin.Context) {
	var req updateGeneralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "Invalid request body")
		return
	}

	s, err := h.settingsRepo.GetGeneral()
	if err != nil {
		utils.Error(c, 500, "INTERNAL_ERROR", "Failed to get general settings")
		return
	}

	for _, f := range []struct {
		val *int
		dst *int
	}{
		{req.DefaultNewProductStock, &s.DefaultNewProductStock},
		{req.ProductsPerPage, &s.ProductsPerPage},
		{req.LowStockThreshold, &s.LowStockThreshold},
		{req.LowSalesThreshold, &s.LowSalesThreshold},
		{req.MediumSalesUpper, &s.MediumSalesUpper},
		{req.MediumStockUpper, &s.MediumStockUpper},
		{req.TargetStockDays, &s.TargetStockDays},
	} {
		if f.val == nil {
			continue
		}
		if *f.val < 0 {
			utils.Error(c, 400, "INVALID_SETTINGS", "Settings values must be non-negative")
			return
		}
		*f.dst = *f.val
	}
	if s.TargetStockDays == 0 {
		utils.Error(c, 400, "INVALID_SETTINGS", "targetStockDays must be positive")
		return
	}

	if err := h.settingsRepo.SaveGeneral(s); err != nil {
		utils.Error(c, 500, "INTERNAL_ERROR", "Failed to save general settings")
		return
	}
	utils.Success(c, 200, "General settings updated", s)
}
