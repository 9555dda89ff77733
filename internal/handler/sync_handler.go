package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/prodplan/prodplan_api/internal/models"
	"github.com/prodplan/prodplan_api/internal/repository"
	"github.com/prodplan/prodplan_api/internal/service"
	"github.com/prodplan/prodplan_api/internal/utils"
)

// SyncHandler exposes manual sync triggers and run history.
type SyncHandler struct {
	baseCtx     context.Context
	syncService *service.SyncService
	syncLogRepo *repository.SyncLogRepository
}

// NewSyncHandler constructs a SyncHandler. Background runs it starts are
// bound to baseCtx, so shutdown cancels them.
func NewSyncHandler(baseCtx context.Context, syncService *service.SyncService, syncLogRepo *repository.SyncLogRepository) *SyncHandler {
	return &SyncHandler{baseCtx: baseCtx, syncService: syncService, syncLogRepo: syncLogRepo}
}

// triggerSyncRequest is the optional body of POST /sync.
type triggerSyncRequest struct {
	WarehouseID      string   `json:"warehouseId"`
	ExcludedGroupIDs []string `json:"excludedGroupIds"`
	SkipImages       bool     `json:"skipImages"`
}

// TriggerSync starts a manual sync in the background and returns 202. A run
// already in flight yields 409 with the running record.
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	var req triggerSyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.Error(c, 400, "INVALID_REQUEST", "Invalid request body")
			return
		}
	}

	if running, err := h.syncService.Running(); err == nil && running != nil {
		c.JSON(409, gin.H{
			"success": false,
			"error":   gin.H{"code": "SYNC_ALREADY_RUNNING", "message": "A sync is already running"},
			"running": running,
		})
		return
	}

	opts := service.SyncOptions{
		WarehouseID:      req.WarehouseID,
		ExcludedGroupIDs: req.ExcludedGroupIDs,
		SyncType:         models.SyncTypeManual,
		SkipImages:       req.SkipImages,
	}

	// The run outlives the request; it is bounded by its own deadline and
	// by the process lifecycle, not by the request context.
	go func() {
		if _, err := h.syncService.Sync(h.baseCtx, opts); err != nil {
			if errors.Is(err, utils.ErrSyncBusy) {
				log.Warn().Msg("Manual sync lost the run lock race")
				return
			}
			log.Error().Err(err).Msg("Manual sync failed")
		}
	}()

	utils.Success(c, 202, "Sync started", nil)
}

// GetStatus returns the in-flight run, if any.
func (h *SyncHandler) GetStatus(c *gin.Context) {
	running, err := h.syncService.Running()
	if err != nil {
		utils.Error(c, 500, "INTERNAL_ERROR", "Failed to get sync status")
		return
	}
	utils.Success(c, 200, "Sync status", gin.H{
		"running": running != nil,
		"current": running,
	})
}

// GetLogs returns recent sync runs, newest first.
func (h *SyncHandler) GetLogs(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	logs, err := h.syncLogRepo.List(limit)
	if err != nil {
		utils.Error(c, 500, "INTERNAL_ERROR", "Failed to get sync logs")
		return
	}
	utils.Success(c, 200, "Sync logs retrieved successfully", gin.H{"logs": logs})
}
