package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blsq/iaso/modules/orgunit/infrastructure/persistence"
	"github.com/blsq/iaso/modules/orgunit/services"
)

func newSeedPathsCmd(e *env) *cobra.Command {
	var batchSize int
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "seed-paths",
		Short: "Compute the paths of every PENDING org unit whose ancestors are seeded",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			pool, err := e.pool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			if batchSize <= 0 {
				batchSize = e.conf.Seeder.BatchSize
			}
			units := services.NewOrgUnitService(persistence.NewOrgUnitPGStore(pool), e.logger, nil)
			report, err := services.NewPathSeeder(units, batchSize, e.logger).Run(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "seeded=%d remaining=%d failed=%d rounds=%d elapsed=%s\n",
				report.Seeded, report.Remaining, report.Failed, report.Rounds, report.Elapsed.Round(time.Millisecond))
			if err != nil {
				return withCode(exitDB, err)
			}
			if report.Failed > 0 {
				return withCode(exitValidation, fmt.Errorf("%d org units could not be seeded", report.Failed))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Pending units loaded per round (default from SEEDER__BATCH_SIZE)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Stop after this long; a later run resumes")
	return cmd
}
