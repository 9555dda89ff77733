package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodplan/prodplan_api/internal/config"
	"github.com/prodplan/prodplan_api/internal/models"
	"github.com/prodplan/prodplan_api/internal/monitor"
	"github.com/prodplan/prodplan_api/internal/repository"
	"github.com/prodplan/prodplan_api/internal/service"
	"github.com/prodplan/prodplan_api/pkg/moysklad"
)

// stubERP fails every call with the context error, so a run started on a
// canceled context surfaces that immediately.
type stubERP struct{}

func (stubERP) ListWarehouses(ctx context.Context) ([]moysklad.Warehouse, error) {
	return nil, ctx.Err()
}
func (stubERP) ListProductGroups(ctx context.Context) ([]moysklad.ProductGroup, error) {
	return nil, ctx.Err()
}
func (stubERP) StockReport(ctx context.Context, _ string, _ bool) ([]moysklad.StockRow, error) {
	return nil, ctx.Err()
}
func (stubERP) TurnoverReport(ctx context.Context, _ string, _, _ time.Time) ([]moysklad.TurnoverRow, error) {
	return nil, ctx.Err()
}
func (stubERP) ListProducts(ctx context.Context, _ moysklad.Filter) ([]moysklad.ProductRow, error) {
	return nil, ctx.Err()
}

type stubProductStore struct{}

func (stubProductStore) Upsert(*models.Product) (bool, error)            { return false, nil }
func (stubProductStore) UpdateDerived(*models.Product) error             { return nil }
func (stubProductStore) GetByUpstreamID(string) (*models.Product, error) { return nil, nil }
func (stubProductStore) ListActive() ([]models.Product, error)           { return nil, nil }
func (stubProductStore) MarkAbsentBefore(time.Time) (int64, error)       { return 0, nil }
func (stubProductStore) Summary() (*repository.ProductionSummary, error) {
	return &repository.ProductionSummary{}, nil
}

type stubLogStore struct {
	mu        sync.Mutex
	finalized []*models.SyncLog
	done      chan struct{}
}

func (s *stubLogStore) CreateRunning(l *models.SyncLog) error {
	l.ID = 1
	l.StartedAt = time.Now()
	l.Status = models.SyncStatusRunning
	return nil
}

func (s *stubLogStore) Finalize(l *models.SyncLog) error {
	s.mu.Lock()
	cp := *l
	s.finalized = append(s.finalized, &cp)
	s.mu.Unlock()
	close(s.done)
	return nil
}

func (s *stubLogStore) FindRunning() (*models.SyncLog, error) { return nil, nil }

type stubSettingsStore struct{}

func (stubSettingsStore) GetSchedule() (*models.ScheduleSettings, error) {
	sched := models.DefaultScheduleSettings()
	sched.WarehouseID = "wh-1"
	return sched, nil
}
func (stubSettingsStore) GetGeneral() (*models.GeneralSettings, error) {
	return models.DefaultGeneralSettings(), nil
}

type stubExecutionStore struct{}

func (stubExecutionStore) Start(e *models.Execution) error { e.ID = 1; return nil }
func (stubExecutionStore) Finish(*models.Execution) error  { return nil }
func (stubExecutionStore) ListSince(time.Time, models.ExecutionType) ([]models.Execution, error) {
	return nil, nil
}
func (stubExecutionStore) PruneOlderThan(time.Time) (int64, error) { return 0, nil }

func TestTriggerSyncRunsUnderLifecycleContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	logs := &stubLogStore{done: make(chan struct{})}
	svc := service.NewSyncService(
		stubERP{},
		stubProductStore{},
		logs,
		stubSettingsStore{},
		nil,
		monitor.NewMonitor(stubExecutionStore{}),
		config.SyncConfig{
			DefaultWarehouseID: "wh-1",
			Interval:           24 * time.Hour,
			RunDeadlineMargin:  time.Minute,
		},
	)

	baseCtx, cancel := context.WithCancel(context.Background())
	cancel() // shutdown already happened
	h := NewSyncHandler(baseCtx, svc, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/sync", nil)

	h.TriggerSync(c)
	assert.Equal(t, 202, w.Code, "trigger is fire-and-forget")

	select {
	case <-logs.done:
	case <-time.After(2 * time.Second):
		t.Fatal("background run was not finalized")
	}

	logs.mu.Lock()
	defer logs.mu.Unlock()
	require.Len(t, logs.finalized, 1)
	assert.Equal(t, models.SyncStatusFailed, logs.finalized[0].Status)
	assert.Contains(t, logs.finalized[0].ErrorDetails, context.Canceled.Error())
}
