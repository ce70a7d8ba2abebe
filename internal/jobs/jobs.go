// Package jobs runs the background maintenance tasks of the org unit service on a cron schedule.
package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/blsq/iaso/modules/orgunit/services"
)

var ErrScheduleMissing = errors.New("jobs: seeder schedule is empty")

type pathSeeder interface {
	Run(ctx context.Context) (services.SeedReport, error)
}

// Cron schedules the path seeding pass. Overlapping runs are skipped.
type Cron struct {
	logger *zap.Logger
	server *cron.Cron
	seeder pathSeeder

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewCron(seeder pathSeeder, logger *zap.Logger) *Cron {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger: logger.Named("cron")}
	server := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	return &Cron{logger: logger, server: server, seeder: seeder, ctx: ctx, cancel: cancel}
}

// Run registers the seeding job on schedule and starts the scheduler.
func (c *Cron) Run(schedule string) error {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return ErrScheduleMissing
	}
	if _, err := c.server.AddFunc(schedule, c.seedPaths); err != nil {
		return err
	}
	c.server.Start()
	c.logger.Info("cron started", zap.String("seeder_schedule", schedule))
	return nil
}

// Stop cancels a running pass and waits for it to return, or for ctx to expire.
func (c *Cron) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.cancel()
	c.mu.Unlock()

	done := c.server.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Cron) seedPaths() {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	report, err := c.seeder.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("scheduled path seeding", zap.Error(err))
		return
	}
	if report.Remaining > 0 && report.Seeded == 0 {
		c.logger.Warn("path seeding made no progress", zap.Int("remaining", report.Remaining), zap.Int("failed", report.Failed))
	}
}

type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, fields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(fields(keysAndValues), zap.Error(err))...)
}

func fields(keysAndValues []any) []zap.Field {
	out := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		switch v := keysAndValues[i+1].(type) {
		case time.Time:
			out = append(out, zap.Time(key, v))
		default:
			out = append(out, zap.Any(key, v))
		}
	}
	return out
}
