package monitor

import (
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/prodplan/prodplan_api/internal/calculator"
	"github.com/prodplan/prodplan_api/internal/models"
	"github.com/prodplan/prodplan_api/internal/repository"
)

// catalogStore is the catalog aggregation the probes read.
type catalogStore interface {
	CountsByType() (map[models.ProductType]int, error)
	Summary() (*repository.ProductionSummary, error)
}

// runLogStore is the sync run history the digest reads.
type runLogStore interface {
	ListFinishedSince(since time.Time) ([]models.SyncLog, error)
}

// executionRetentionDays is how long execution records are kept.
const executionRetentionDays = 30

// Probes schedules the periodic health checks of the planning engine.
type Probes struct {
	cron       *cron.Cron
	executions ExecutionStore
	catalog    catalogStore
	runLogs    runLogStore
}

// NewProbes constructs the probe scheduler. Call Start to arm it.
func NewProbes(executions ExecutionStore, catalog catalogStore, runLogs runLogStore) *Probes {
	return &Probes{
		cron:       cron.New(),
		executions: executions,
		catalog:    catalog,
		runLogs:    runLogs,
	}
}

// Start registers and arms all probes.
func (p *Probes) Start() error {
	specs := []struct {
		spec string
		name string
		fn   func()
	}{
		{"@every 5m", "catalog gauges", p.refreshCatalogGauges},
		{"@every 1h", "calculator self-check", p.calculatorSelfCheck},
		{"@every 4h", "throughput check", p.throughputCheck},
		{"0 9 * * *", "daily digest", p.dailyDigest},
		{"0 2 * * *", "execution pruning", p.pruneExecutions},
	}
	for _, s := range specs {
		if _, err := p.cron.AddFunc(s.spec, s.fn); err != nil {
			return err
		}
		log.Info().Str("probe", s.name).Str("schedule", s.spec).Msg("probe registered")
	}
	p.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running probes.
func (p *Probes) Stop() {
	<-p.cron.Stop().Done()
}

// refreshCatalogGauges republishes catalog composition metrics.
func (p *Probes) refreshCatalogGauges() {
	counts, err := p.catalog.CountsByType()
	if err != nil {
		log.Error().Err(err).Msg("catalog gauge probe: counts query failed")
		return
	}
	summary, err := p.catalog.Summary()
	if err != nil {
		log.Error().Err(err).Msg("catalog gauge probe: summary query failed")
		return
	}
	units, _ := summary.TotalUnits.Float64()
	SetCatalogGauges(counts, summary.NeedingProduction, units)
}

// calculatorSelfCheck runs the seeded fixtures through the calculator and
// alerts when any result drifts. Catches bad deployments and tunable
// regressions that tests missed.
func (p *Probes) calculatorSelfCheck() {
	for _, drift := range calculatorDrift(calculator.DefaultTunables()) {
		log.Error().Str("fixture", drift).Msg("calculator self-check failed")
	}
}

// calculatorFixture is one seeded scenario with its expected outcome.
type calculatorFixture struct {
	name        string
	in          calculator.Inputs
	wantType    models.ProductType
	wantNeed    int64
	minPriority int
}

func calculatorFixtures() []calculatorFixture {
	return []calculatorFixture{
		{
			name:        "critical runway",
			in:          calculator.Inputs{Stock: decimal.NewFromInt(3), Sales60: decimal.NewFromInt(60)},
			wantType:    models.ProductTypeCritical,
			wantNeed:    12,
			minPriority: 88,
		},
		{
			name:        "reserve override",
			in:          calculator.Inputs{Stock: decimal.NewFromInt(100), Reserve: decimal.NewFromInt(800)},
			wantType:    models.ProductTypeNew,
			wantNeed:    800,
			minPriority: 30,
		},
		{
			name:     "low stock slow sales",
			in:       calculator.Inputs{Stock: decimal.NewFromInt(4), Sales60: decimal.NewFromInt(6)},
			wantType: models.ProductTypeCritical,
			wantNeed: 0,
		},
	}
}

// calculatorDrift evaluates the fixtures and returns the names of those
// whose result no longer matches.
func calculatorDrift(t calculator.Tunables) []string {
	var drifted []string
	for _, f := range calculatorFixtures() {
		res := calculator.Calculate(f.in, t)
		ok := res.Type == f.wantType &&
			res.ProductionNeed.Equal(decimal.NewFromInt(f.wantNeed)) &&
			res.Priority >= f.minPriority
		if !ok {
			drifted = append(drifted, f.name)
		}
	}
	return drifted
}

// throughputCheck compares the latest full sync's row throughput with the
// trailing day's median and warns when it has at least halved.
func (p *Probes) throughputCheck() {
	execs, err := p.executions.ListSince(time.Now().Add(-24*time.Hour), models.ExecFullSync)
	if err != nil {
		log.Error().Err(err).Msg("throughput probe: query failed")
		return
	}
	latest, median, drop := throughputDrop(execs)
	if drop {
		log.Warn().
			Float64("latest_rows_per_sec", latest).
			Float64("median_rows_per_sec", median).
			Msg("sync throughput dropped sharply")
	}
}

// throughputDrop derives the latest run's row rate and the median of the
// prior runs' rates. It reports a drop when the latest rate is below half
// the median; fewer than three prior rates is not enough to judge.
// The executions are expected newest first.
func throughputDrop(execs []models.Execution) (latest, median float64, drop bool) {
	rates := make([]float64, 0, len(execs))
	latest = -1
	for _, e := range execs {
		if e.FinishedAt == nil || e.OutputCount == 0 {
			continue
		}
		secs := e.FinishedAt.Sub(e.StartedAt).Seconds()
		if secs <= 0 {
			continue
		}
		rate := float64(e.OutputCount) / secs
		if latest < 0 {
			latest = rate
			continue
		}
		rates = append(rates, rate)
	}
	if latest < 0 || len(rates) < 3 {
		return latest, 0, false
	}

	sort.Float64s(rates)
	median = rates[len(rates)/2]
	return latest, median, median > 0 && latest < median/2
}

// dailyDigest logs a one-line summary of the last day's sync activity.
func (p *Probes) dailyDigest() {
	since := time.Now().Add(-24 * time.Hour)
	logs, err := p.runLogs.ListFinishedSince(since)
	if err != nil {
		log.Error().Err(err).Msg("digest probe: query failed")
		return
	}

	var runs, succeeded, partial, failed, synced, deleted int
	for _, l := range logs {
		runs++
		switch l.Status {
		case models.SyncStatusSuccess:
			succeeded++
		case models.SyncStatusPartial:
			partial++
		case models.SyncStatusFailed:
			failed++
		}
		synced += l.Synced
		deleted += l.Deleted
	}

	summary, err := p.catalog.Summary()
	if err != nil {
		log.Error().Err(err).Msg("digest probe: summary query failed")
		return
	}

	log.Info().
		Int("runs", runs).
		Int("succeeded", succeeded).
		Int("partial", partial).
		Int("failed", failed).
		Int("products_synced", synced).
		Int("products_marked_absent", deleted).
		Int("needing_production", summary.NeedingProduction).
		Str("total_production_units", summary.TotalUnits.String()).
		Msg("daily planning digest")
}

// pruneExecutions drops execution records past the retention window.
func (p *Probes) pruneExecutions() {
	cutoff := time.Now().AddDate(0, 0, -executionRetentionDays)
	n, err := p.executions.PruneOlderThan(cutoff)
	if err != nil {
		log.Error().Err(err).Msg("execution pruning failed")
		return
	}
	if n > 0 {
		log.Info().Int64("pruned", n).Msg("pruned old execution records")
	}
}
