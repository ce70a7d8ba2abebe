package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/blsq/iaso/modules/orgunit/domain/types"
)

const defaultSeedBatchSize = 500

type SeedReport struct {
	Seeded    int
	Remaining int
	Rounds    int
	Failed    int
	Elapsed   time.Duration
}

// PathSeeder assigns paths to PENDING units, top-down, until a round makes no progress.
type PathSeeder struct {
	units     *OrgUnitService
	batchSize int
	logger    *zap.Logger
}

func NewPathSeeder(units *OrgUnitService, batchSize int, logger *zap.Logger) *PathSeeder {
	if batchSize <= 0 {
		batchSize = defaultSeedBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PathSeeder{units: units, batchSize: batchSize, logger: logger}
}

// Run saves every pending unit that is a root or whose parent already has a path, one
// transaction per unit. Each save seeds the pending descendants of the unit as well.
// Cancellation is honoured between units; the next run resumes from a partial one.
func (p *PathSeeder) Run(ctx context.Context) (SeedReport, error) {
	ctx, span := tracer.Start(ctx, "orgunit.seed_paths")
	defer span.End()

	started := time.Now()
	var report SeedReport
	// Failed units are skipped for the rest of the run.
	skipped := make(map[int64]bool)
	seedable := types.NewOrgUnitQuery(types.PathSeedable{}).OrderBy(types.OrderByID)

	for {
		if err := ctx.Err(); err != nil {
			return p.finish(ctx, report, started, err)
		}
		batch, err := p.units.List(ctx, seedable.WithLimit(p.batchSize+len(skipped)))
		if err != nil {
			return p.finish(ctx, report, started, err)
		}
		report.Rounds++

		progress := 0
		for _, unit := range batch {
			if skipped[unit.ID] {
				continue
			}
			if err := ctx.Err(); err != nil {
				return p.finish(ctx, report, started, err)
			}
			res, err := p.units.Save(ctx, unit, SaveOptions{ForceRecalculate: true})
			if err != nil {
				if ctx.Err() != nil {
					return p.finish(ctx, report, started, err)
				}
				p.logger.Warn("path seeding failed", zap.Int64("org_unit_id", unit.ID), zap.Error(err))
				skipped[unit.ID] = true
				report.Failed++
				continue
			}
			for _, u := range res.Changed {
				if u.PathState == types.PathStateSeeded {
					report.Seeded++
				}
			}
			progress++
		}
		if progress == 0 {
			break
		}
	}
	return p.finish(ctx, report, started, nil)
}

func (p *PathSeeder) finish(ctx context.Context, report SeedReport, started time.Time, runErr error) (SeedReport, error) {
	report.Elapsed = time.Since(started)
	// Count with a fresh context so that a cancelled run still reports what is left.
	remaining, err := p.units.Count(context.WithoutCancel(ctx), types.NewOrgUnitQuery(types.PathPending{}))
	if err == nil {
		report.Remaining = remaining
	}

	result := "ok"
	switch {
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		result = "cancelled"
	case runErr != nil:
		result = "error"
	}
	p.units.metrics.ObserveSeedRun(result)
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("org_unit.seed_result", result),
		attribute.Int("org_unit.seeded", report.Seeded),
		attribute.Int("org_unit.remaining", report.Remaining),
	)

	p.logger.Info("path seeding finished",
		zap.String("result", result),
		zap.Int("seeded", report.Seeded),
		zap.Int("remaining", report.Remaining),
		zap.Int("failed", report.Failed),
		zap.Int("rounds", report.Rounds),
		zap.Duration("elapsed", report.Elapsed),
	)
	if runErr != nil {
		return report, runErr
	}
	return report, err
}
