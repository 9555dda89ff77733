package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/prodplan/prodplan_api/internal/calculator"
	"github.com/prodplan/prodplan_api/internal/config"
	"github.com/prodplan/prodplan_api/internal/models"
	"github.com/prodplan/prodplan_api/internal/monitor"
	"github.com/prodplan/prodplan_api/internal/normalize"
	"github.com/prodplan/prodplan_api/internal/repository"
	"github.com/prodplan/prodplan_api/internal/utils"
	"github.com/prodplan/prodplan_api/pkg/moysklad"
)

// salesWindow is the turnover window the calculator is defined over.
const salesWindow = 60 * 24 * time.Hour

// maxRowErrors is how many per-row persistence failures a run tolerates
// before it aborts as failed.
const maxRowErrors = 10

// erpClient is the slice of the upstream API a sync run needs.
type erpClient interface {
	ListWarehouses(ctx context.Context) ([]moysklad.Warehouse, error)
	ListProductGroups(ctx context.Context) ([]moysklad.ProductGroup, error)
	StockReport(ctx context.Context, warehouseID string, includeZero bool) ([]moysklad.StockRow, error)
	TurnoverReport(ctx context.Context, warehouseID string, from, to time.Time) ([]moysklad.TurnoverRow, error)
	ListProducts(ctx context.Context, filter moysklad.Filter) ([]moysklad.ProductRow, error)
}

// productStore is the product persistence a sync run needs.
type productStore interface {
	Upsert(p *models.Product) (bool, error)
	UpdateDerived(p *models.Product) error
	GetByUpstreamID(upstreamID string) (*models.Product, error)
	ListActive() ([]models.Product, error)
	MarkAbsentBefore(cutoff time.Time) (int64, error)
	Summary() (*repository.ProductionSummary, error)
}

// syncLogStore handles run records and the run lock.
type syncLogStore interface {
	CreateRunning(l *models.SyncLog) error
	Finalize(l *models.SyncLog) error
	FindRunning() (*models.SyncLog, error)
}

// settingsStore reads the settings singletons.
type settingsStore interface {
	GetSchedule() (*models.ScheduleSettings, error)
	GetGeneral() (*models.GeneralSettings, error)
}

// SyncOptions parameterize one sync run. Zero values fall back to the
// schedule settings and then the static config.
type SyncOptions struct {
	WarehouseID      string
	ExcludedGroupIDs []string
	SyncType         models.SyncType
	SkipImages       bool
}

// SyncService runs full catalog syncs against the upstream ERP and
// recalculates the derived planning fields.
type SyncService struct {
	erp      erpClient
	products productStore
	logs     syncLogStore
	settings settingsStore
	images   *ImageService // nil disables image mirroring
	monitor  *monitor.Monitor
	syncCfg  config.SyncConfig
}

// NewSyncService constructs a SyncService.
func NewSyncService(
	erp erpClient,
	products productStore,
	logs syncLogStore,
	settings settingsStore,
	images *ImageService,
	mon *monitor.Monitor,
	syncCfg config.SyncConfig,
) *SyncService {
	return &SyncService{
		erp:      erp,
		products: products,
		logs:     logs,
		settings: settings,
		images:   images,
		monitor:  mon,
		syncCfg:  syncCfg,
	}
}

// Running returns the in-flight run record, or nil.
func (s *SyncService) Running() (*models.SyncLog, error) {
	return s.logs.FindRunning()
}

// Sync performs one full catalog sync. Exactly one run can be in flight;
// a concurrent call returns utils.ErrSyncBusy immediately. The returned
// SyncLog is finalized on every exit path.
func (s *SyncService) Sync(ctx context.Context, opts SyncOptions) (*models.SyncLog, error) {
	if opts.SyncType == "" {
		opts.SyncType = models.SyncTypeManual
	}

	sched, err := s.settings.GetSchedule()
	if err != nil {
		return nil, fmt.Errorf("load schedule settings: %w", err)
	}
	if opts.WarehouseID == "" {
		opts.WarehouseID = sched.WarehouseID
	}
	if opts.WarehouseID == "" {
		opts.WarehouseID = s.syncCfg.DefaultWarehouseID
	}
	if opts.WarehouseID == "" {
		return nil, utils.ErrNoWarehouse
	}
	if opts.ExcludedGroupIDs == nil {
		opts.ExcludedGroupIDs = sched.ExcludedGroupIDs
	}

	runLog := &models.SyncLog{
		WarehouseID:    opts.WarehouseID,
		ExcludedGroups: opts.ExcludedGroupIDs,
		SyncType:       opts.SyncType,
	}
	// Lock acquisition: the partial unique index rejects a second running row.
	if err := s.logs.CreateRunning(runLog); err != nil {
		return nil, err
	}

	run := s.monitor.Begin(models.ExecFullSync)

	ctx, cancel := context.WithTimeout(ctx, s.syncCfg.RunDeadline())
	defer cancel()

	runErr := s.runSync(ctx, runLog, opts)

	switch {
	case runErr == nil:
		runLog.Status = models.SyncStatusSuccess
		if runLog.Failed > 0 {
			runLog.Status = models.SyncStatusPartial
		}
	case errors.Is(runErr, utils.ErrTooManyRowErrors):
		runLog.Status = models.SyncStatusFailed
		runLog.ErrorDetails = joinDetails(runErr.Error(), runLog.ErrorDetails)
	case runLog.Synced > 0:
		runLog.Status = models.SyncStatusPartial
		runLog.ErrorDetails = joinDetails(runErr.Error(), runLog.ErrorDetails)
	default:
		runLog.Status = models.SyncStatusFailed
		runLog.ErrorDetails = joinDetails(runErr.Error(), runLog.ErrorDetails)
	}

	// Finalize releases the run lock. Must happen on every path.
	if err := s.logs.Finalize(runLog); err != nil {
		log.Error().Err(err).Int("sync_log_id", runLog.ID).Msg("failed to finalize sync log")
	}

	outcome := monitor.Outcome{
		Input:  runLog.Total,
		Output: runLog.Synced,
		Errors: runLog.Failed,
		Err:    runErr,
	}
	if summary, err := s.products.Summary(); err == nil {
		outcome.NeedingProduction = summary.NeedingProduction
		outcome.TotalUnits = summary.TotalUnits
	}
	run.Finish(outcome)

	log.Info().
		Int("sync_log_id", runLog.ID).
		Str("status", string(runLog.Status)).
		Int("total", runLog.Total).
		Int("synced", runLog.Synced).
		Int("failed", runLog.Failed).
		Int("deleted", runLog.Deleted).
		Dur("duration", runLog.Duration()).
		Msg("sync run finished")

	return runLog, runErr
}

// runSync is the body of one run: fetch, join, upsert, soft-mark, images.
func (s *SyncService) runSync(ctx context.Context, runLog *models.SyncLog, opts SyncOptions) error {
	runStart := runLog.StartedAt

	general, err := s.settings.GetGeneral()
	if err != nil {
		return fmt.Errorf("load general settings: %w", err)
	}
	tunables := calculator.TunablesFromSettings(general)

	// The upstream fetches are independent; fail the run on the first
	// error and cancel the rest.
	var (
		warehouses []moysklad.Warehouse
		groups     []moysklad.ProductGroup
		stock      []moysklad.StockRow
		turnover   []moysklad.TurnoverRow
		details    []moysklad.ProductRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		warehouses, err = s.erp.ListWarehouses(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		groups, err = s.erp.ListProductGroups(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		stock, err = s.erp.StockReport(gctx, opts.WarehouseID, true)
		return err
	})
	g.Go(func() error {
		now := time.Now()
		var err error
		turnover, err = s.erp.TurnoverReport(gctx, opts.WarehouseID, now.Add(-salesWindow), now)
		return err
	})
	g.Go(func() error {
		var err error
		details, err = s.erp.ListProducts(gctx, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("fetch upstream reports: %w", err)
	}

	for _, w := range warehouses {
		if w.Meta.ID() == opts.WarehouseID || w.ID == opts.WarehouseID {
			runLog.WarehouseName = w.Name
			break
		}
	}

	excluded := expandExcluded(groups, opts.ExcludedGroupIDs)
	sales := indexTurnover(turnover)
	detailByID := make(map[string]*moysklad.ProductRow, len(details))
	for i := range details {
		detailByID[details[i].Meta.ID()] = &details[i]
	}

	groupNames := make(map[string]string, len(groups))
	for _, gr := range groups {
		groupNames[gr.Meta.ID()] = gr.Name
	}

	var rowErrs []string
	persistFails := 0
	for i := range stock {
		if err := ctx.Err(); err != nil {
			return utils.ErrRunCanceled
		}
		row := &stock[i]
		if !row.IsProduct() || row.Archived {
			continue
		}
		if _, skip := excluded[row.GroupID()]; skip {
			continue
		}
		runLog.Total++

		article := normalize.Normalize(row.Article)
		if article == "" {
			runLog.Failed++
			if len(rowErrs) < maxRowErrors {
				rowErrs = append(rowErrs, fmt.Sprintf("%s: %v", row.UpstreamID(), utils.ErrEmptyArticle))
			}
			log.Warn().
				Str("upstream_id", row.UpstreamID()).
				Str("name", row.Name).
				Msg("article empty after normalization, row skipped")
			continue
		}
		sales60 := sales[normalize.NormalizeFold(article)]

		now := time.Now()
		p := &models.Product{
			UpstreamID:    row.UpstreamID(),
			Article:       article,
			Name:          strings.TrimSpace(row.Name),
			GroupID:       row.GroupID(),
			GroupName:     groupNames[row.GroupID()],
			CurrentStock:  row.Stock,
			ReservedStock: row.Reserve,
			SalesLast60d:  sales60,
			LastSyncedAt:  &now,
		}
		if d, ok := detailByID[p.UpstreamID]; ok {
			p.Description = d.Description
			p.Color = d.Color
		}

		res := calculator.Calculate(calculator.Inputs{
			Stock:   p.CurrentStock,
			Reserve: p.ReservedStock,
			Sales60: p.SalesLast60d,
		}, tunables)
		calculator.Apply(p, res)

		if _, err := s.products.Upsert(p); err != nil {
			runLog.Failed++
			persistFails++
			if len(rowErrs) < maxRowErrors {
				rowErrs = append(rowErrs, fmt.Sprintf("%s: %v", p.UpstreamID, err))
			}
			log.Error().Err(err).
				Str("upstream_id", p.UpstreamID).
				Str("article", p.Article).
				Msg("failed to upsert product")
			if persistFails > maxRowErrors {
				runLog.ErrorDetails = strings.Join(rowErrs, "; ")
				return utils.ErrTooManyRowErrors
			}
			continue
		}
		runLog.Synced++
	}
	if len(rowErrs) > 0 {
		runLog.ErrorDetails = strings.Join(rowErrs, "; ")
	}

	// Products the report no longer contains are soft-marked, never deleted.
	marked, err := s.products.MarkAbsentBefore(runStart)
	if err != nil {
		return fmt.Errorf("mark absent products: %w", err)
	}
	runLog.Deleted = int(marked)

	if s.images != nil && !opts.SkipImages {
		// Image failures never fail the run.
		if err := s.images.MirrorSince(ctx, runStart); err != nil {
			log.Warn().Err(err).Msg("image mirroring incomplete")
		}
	}

	return nil
}

// RecalculateAll rereads the tunables and rewrites the derived fields of
// every active product without touching upstream data.
func (s *SyncService) RecalculateAll(ctx context.Context) (int, error) {
	run := s.monitor.Begin(models.ExecCalcOnly)

	general, err := s.settings.GetGeneral()
	if err != nil {
		run.Finish(monitor.Outcome{Err: err})
		return 0, err
	}
	tunables := calculator.TunablesFromSettings(general)

	products, err := s.products.ListActive()
	if err != nil {
		run.Finish(monitor.Outcome{Err: err})
		return 0, err
	}

	updated, failed := 0, 0
	var lastErr error
	for i := range products {
		if err := ctx.Err(); err != nil {
			lastErr = utils.ErrRunCanceled
			break
		}
		p := &products[i]
		res := calculator.Calculate(calculator.Inputs{
			Stock:   p.CurrentStock,
			Reserve: p.ReservedStock,
			Sales60: p.SalesLast60d,
		}, tunables)
		calculator.Apply(p, res)
		if err := s.products.UpdateDerived(p); err != nil {
			failed++
			lastErr = err
			log.Error().Err(err).Str("upstream_id", p.UpstreamID).Msg("failed to update derived fields")
			continue
		}
		updated++
	}

	run.Finish(monitor.Outcome{
		Input:  len(products),
		Output: updated,
		Errors: failed,
		Err:    lastErr,
	})
	return updated, lastErr
}

// RecalculateOne rewrites the derived fields of a single product.
func (s *SyncService) RecalculateOne(upstreamID string) (*models.Product, error) {
	run := s.monitor.Begin(models.ExecSingleProduct)

	p, err := s.products.GetByUpstreamID(upstreamID)
	if err != nil {
		run.Finish(monitor.Outcome{Input: 1, Err: err})
		return nil, err
	}

	general, err := s.settings.GetGeneral()
	if err != nil {
		run.Finish(monitor.Outcome{Input: 1, Err: err})
		return nil, err
	}

	res := calculator.Calculate(calculator.Inputs{
		Stock:   p.CurrentStock,
		Reserve: p.ReservedStock,
		Sales60: p.SalesLast60d,
	}, calculator.TunablesFromSettings(general))
	calculator.Apply(p, res)

	if err := s.products.UpdateDerived(p); err != nil {
		run.Finish(monitor.Outcome{Input: 1, Errors: 1, Err: err})
		return nil, err
	}

	run.Finish(monitor.Outcome{Input: 1, Output: 1})
	return p, nil
}

// expandExcluded returns the set of group ids excluded either directly or
// through an excluded ancestor folder.
func expandExcluded(groups []moysklad.ProductGroup, excludedIDs []string) map[string]struct{} {
	excluded := make(map[string]struct{}, len(excludedIDs))
	for _, id := range excludedIDs {
		if id != "" {
			excluded[id] = struct{}{}
		}
	}
	if len(excluded) == 0 {
		return excluded
	}

	parent := make(map[string]string, len(groups))
	for _, g := range groups {
		parent[g.Meta.ID()] = g.ParentID()
	}

	for _, g := range groups {
		id := g.Meta.ID()
		// Walk up the folder chain; a cycle guard caps the depth.
		cur := id
		for depth := 0; cur != "" && depth < 64; depth++ {
			if _, hit := excluded[cur]; hit {
				excluded[id] = struct{}{}
				break
			}
			cur = parent[cur]
		}
	}
	return excluded
}

// indexTurnover sums outgoing quantities per case-folded normalized article.
// Rows without an article cannot be matched and are skipped.
func indexTurnover(rows []moysklad.TurnoverRow) map[string]decimal.Decimal {
	sales := make(map[string]decimal.Decimal, len(rows))
	for _, r := range rows {
		key := normalize.NormalizeFold(r.Assortment.Article)
		if key == "" {
			continue
		}
		sales[key] = sales[key].Add(r.Outcome.Quantity)
	}
	return sales
}

// joinDetails keeps the fatal error first and preserves any row-level
// details already collected during the run.
func joinDetails(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "; ")
}
