package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/prodplan/prodplan_api/internal/models"
)

var (
	execTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "prodplan",
		Name:      "executions_total",
		Help:      "Finished planning executions by type and result.",
	}, []string{"exec_type", "result"})

	execDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "prodplan",
		Name:      "execution_duration_seconds",
		Help:      "Wall time of planning executions.",
		Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600},
	}, []string{"exec_type"})

	execRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "prodplan",
		Name:      "execution_rows_total",
		Help:      "Rows processed by planning executions.",
	}, []string{"exec_type", "outcome"})

	productsByType = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "prodplan",
		Name:      "products",
		Help:      "Active products by classification.",
	}, []string{"product_type"})

	productionNeedUnits = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "prodplan",
		Name:      "production_need_units",
		Help:      "Total open production need over active products.",
	})

	productsNeedingProduction = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "prodplan",
		Name:      "products_needing_production",
		Help:      "Active products with a positive production need.",
	})

	erpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "prodplan",
		Name:      "erp_requests_total",
		Help:      "Upstream ERP requests by operation and result.",
	}, []string{"op", "result"})
)

// ObserveERPRequest feeds the upstream request counter. Wired as the ERP
// client's observer callback.
func ObserveERPRequest(op string, status int, err error) {
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case status >= 400:
		result = "http_error"
	}
	erpRequests.WithLabelValues(op, result).Inc()
}

// observeExecution updates the execution metrics from a finished record.
func observeExecution(e *models.Execution) {
	result := "success"
	if e.ErrorText != "" {
		result = "failed"
	} else if e.ErrorCount > 0 {
		result = "partial"
	}
	execTotal.WithLabelValues(string(e.ExecType), result).Inc()
	execDuration.WithLabelValues(string(e.ExecType)).Observe(time.Since(e.StartedAt).Seconds())
	execRows.WithLabelValues(string(e.ExecType), "ok").Add(float64(e.OutputCount))
	execRows.WithLabelValues(string(e.ExecType), "error").Add(float64(e.ErrorCount))
}

// SetCatalogGauges publishes the catalog composition gauges.
func SetCatalogGauges(counts map[models.ProductType]int, needing int, totalUnits float64) {
	for _, t := range []models.ProductType{models.ProductTypeNew, models.ProductTypeSteady, models.ProductTypeCritical} {
		productsByType.WithLabelValues(string(t)).Set(float64(counts[t]))
	}
	productsNeedingProduction.Set(float64(needing))
	productionNeedUnits.Set(totalUnits)
}
