package main

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/blsq/iaso/migrations"
)

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status|version]",
		Short:     "Apply or inspect the embedded schema migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := "up"
			if len(args) == 1 {
				direction = args[0]
			}
			ctx := cmd.Context()
			pool, err := e.pool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			db := stdlib.OpenDBFromPool(pool)
			defer func() { _ = db.Close() }()

			provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
			if err != nil {
				return withCode(exitValidation, err)
			}
			return runMigrate(ctx, provider, direction, cmd.OutOrStdout())
		},
	}
}

type migrationProvider interface {
	Up(ctx context.Context) ([]*goose.MigrationResult, error)
	Down(ctx context.Context) (*goose.MigrationResult, error)
	Status(ctx context.Context) ([]*goose.MigrationStatus, error)
	GetDBVersion(ctx context.Context) (int64, error)
}

func runMigrate(ctx context.Context, p migrationProvider, direction string, out io.Writer) error {
	switch direction {
	case "up":
		results, err := p.Up(ctx)
		for _, r := range results {
			printResult(out, r)
		}
		if err != nil {
			return withCode(exitDB, err)
		}
		if len(results) == 0 {
			fmt.Fprintln(out, "schema is up to date")
		}
	case "down":
		r, err := p.Down(ctx)
		if r != nil {
			printResult(out, r)
		}
		if err != nil {
			return withCode(exitDB, err)
		}
	case "status":
		statuses, err := p.Status(ctx)
		if err != nil {
			return withCode(exitDB, err)
		}
		for _, s := range statuses {
			applied := "pending"
			if s.State == goose.StateApplied {
				applied = s.AppliedAt.UTC().Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(out, "%05d %-40s %s\n", s.Source.Version, s.Source.Path, applied)
		}
	case "version":
		v, err := p.GetDBVersion(ctx)
		if err != nil {
			return withCode(exitDB, err)
		}
		fmt.Fprintf(out, "version %d\n", v)
	default:
		return withCode(exitUsage, fmt.Errorf("unknown migrate direction %q", direction))
	}
	return nil
}

func printResult(out io.Writer, r *goose.MigrationResult) {
	if r == nil || r.Source == nil {
		return
	}
	state := "ok"
	if r.Error != nil {
		state = "FAILED: " + r.Error.Error()
	}
	fmt.Fprintf(out, "%s %05d %s (%s) %s\n", r.Direction, r.Source.Version, r.Source.Path, r.Duration.Round(1e6), state)
}
