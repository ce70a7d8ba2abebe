package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/blsq/iaso/modules/orgunit/services"
)

type seederStub struct {
	calls  atomic.Int32
	report services.SeedReport
	err    error
	block  bool
}

func (s *seederStub) Run(ctx context.Context) (services.SeedReport, error) {
	s.calls.Add(1)
	if s.block {
		<-ctx.Done()
		return s.report, ctx.Err()
	}
	return s.report, s.err
}

func TestCron_RunRejectsBadSchedule(t *testing.T) {
	c := NewCron(&seederStub{}, zap.NewNop())
	if err := c.Run(" "); !errors.Is(err, ErrScheduleMissing) {
		t.Fatalf("expected ErrScheduleMissing, got %v", err)
	}
	if err := c.Run("not a schedule"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestCron_RunsSeeder(t *testing.T) {
	seeder := &seederStub{report: services.SeedReport{Seeded: 2}}
	c := NewCron(seeder, zap.NewNop())
	if err := c.Run("@every 1s"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Stop(context.Background()) })

	deadline := time.Now().Add(5 * time.Second)
	for seeder.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("seeder never ran")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestCron_StopCancelsRunningPass(t *testing.T) {
	seeder := &seederStub{block: true}
	c := NewCron(seeder, zap.NewNop())

	finished := make(chan struct{})
	go func() {
		c.seedPaths()
		close(finished)
	}()
	for seeder.calls.Load() == 0 {
		time.Sleep(10 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("running pass was not cancelled")
	}

	c.seedPaths()
	if got := seeder.calls.Load(); got != 1 {
		t.Fatalf("expected no run after stop, got %d calls", got)
	}
}

func TestCron_LogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	c := NewCron(&seederStub{err: errors.New("db down")}, zap.New(core))
	c.seedPaths()
	if logs.FilterMessage("scheduled path seeding").Len() != 1 {
		t.Fatalf("expected failure log, got %v", logs.All())
	}

	core, logs = observer.New(zapcore.DebugLevel)
	c = NewCron(&seederStub{report: services.SeedReport{Remaining: 3, Failed: 3}}, zap.New(core))
	c.seedPaths()
	if logs.FilterMessage("path seeding made no progress").Len() != 1 {
		t.Fatalf("expected stall log, got %v", logs.All())
	}
}
