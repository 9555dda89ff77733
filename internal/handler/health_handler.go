package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/prodplan/prodplan_api/internal/utils"
	"github.com/prodplan/prodplan_api/pkg/moysklad"
)

var startTime = time.Now()

// HealthHandler provides the health endpoint.
type HealthHandler struct {
	db  *sqlx.DB
	erp *moysklad.Client
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db *sqlx.DB, erp *moysklad.Client) *HealthHandler {
	return &HealthHandler{db: db, erp: erp}
}

// GetHealth responds with service, database and upstream ERP status.
func (h *HealthHandler) GetHealth(c *gin.Context) {
	dbStatus := "connected"
	if err := h.db.Ping(); err != nil {
		dbStatus = "disconnected"
	}

	erpStatus := "connected"
	if err := h.erp.TestConnection(c.Request.Context()); err != nil {
		erpStatus = "disconnected"
	}

	status := "healthy"
	code := 200
	if dbStatus != "connected" {
		status = "unhealthy"
		code = 503
	}

	utils.Success(c, code, "Health check", gin.H{
		"status":   status,
		"version":  "1.0.0",
		"uptime":   int(time.Since(startTime).Seconds()),
		"database": dbStatus,
		"upstream": erpStatus,
	})
}
