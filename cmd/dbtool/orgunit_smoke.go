package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"

	"github.com/blsq/iaso/modules/orgunit/domain/ports"
	"github.com/blsq/iaso/modules/orgunit/domain/types"
	"github.com/blsq/iaso/modules/orgunit/infrastructure/persistence"
	"github.com/blsq/iaso/modules/orgunit/services"
	orgunitpkg "github.com/blsq/iaso/pkg/orgunit"
)

// newOrgUnitSmokeCmd exercises path maintenance against a live schema inside one transaction
// that is always rolled back.
func newOrgUnitSmokeCmd(e *env) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "orgunit-smoke",
		Short: "Create, move and seed a throwaway hierarchy, then roll it back",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			pool, err := e.pool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			tx, err := pool.Begin(ctx)
			if err != nil {
				return withCode(exitDB, err)
			}
			defer func() { _ = tx.Rollback(context.Background()) }()

			if err := orgunitSmoke(ctx, tx, services.NewOrgUnitService(persistence.NewOrgUnitPGStore(tx), e.logger, nil)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "orgunit-smoke OK")
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall deadline")
	return cmd
}

func orgunitSmoke(ctx context.Context, tx pgx.Tx, units *services.OrgUnitService) error {
	run := uuid.Must(uuid.NewV7()).String()
	ref := func(name string) *string {
		s := "smoke-" + run + "-" + name
		return &s
	}

	var versionID int64
	if err := tx.QueryRow(ctx, `
WITH ds AS (INSERT INTO iaso.data_sources (name) VALUES ($1) RETURNING id)
INSERT INTO iaso.source_versions (data_source_id, number) SELECT id, 1 FROM ds RETURNING id`,
		"smoke "+run,
	).Scan(&versionID); err != nil {
		return withCode(exitDB, fmt.Errorf("create version: %w", err))
	}

	root, err := units.Create(ctx, services.CreateOrgUnitRequest{Name: "Smoke Root", VersionID: &versionID, SourceRef: ref("root")})
	if err != nil {
		return withCode(exitDB, fmt.Errorf("create root: %w", err))
	}
	child, err := units.Create(ctx, services.CreateOrgUnitRequest{
		Name:            "Smoke Child",
		VersionID:       &versionID,
		ParentSourceRef: *ref("root"),
		SourceRef:       ref("child"),
	})
	if err != nil {
		return withCode(exitDB, fmt.Errorf("create child: %w", err))
	}

	// An imported row bypasses path maintenance and stays PENDING.
	var importedID int64
	if err := tx.QueryRow(ctx, `
INSERT INTO iaso.org_units (name, parent_id, version_id, path_state, source_ref)
VALUES ('Smoke Imported', $1, $2, 'PENDING', $3) RETURNING id`,
		child.Unit.ID, versionID, *ref("imported"),
	).Scan(&importedID); err != nil {
		return withCode(exitDB, fmt.Errorf("insert imported: %w", err))
	}

	if _, err := units.Update(ctx, services.UpdateOrgUnitRequest{ID: child.Unit.ID, ForceRecalculate: true}); err != nil {
		return withCode(exitDB, fmt.Errorf("recalculate child: %w", err))
	}

	resolved, err := units.ResolveSourceRef(ctx, versionID, *ref("imported"))
	if err != nil {
		return withCode(exitDB, fmt.Errorf("resolve imported: %w", err))
	}
	if resolved != importedID {
		return withCode(exitValidation, fmt.Errorf("source ref resolved to %d, want %d", resolved, importedID))
	}

	checks := []struct {
		id   int64
		want orgunitpkg.Path
	}{
		{root.Unit.ID, orgunitpkg.Path{root.Unit.ID}},
		{child.Unit.ID, orgunitpkg.Path{root.Unit.ID, child.Unit.ID}},
		{importedID, orgunitpkg.Path{root.Unit.ID, child.Unit.ID, importedID}},
	}
	for _, c := range checks {
		u, err := units.Get(ctx, c.id)
		if err != nil {
			return withCode(exitDB, err)
		}
		if err := expectPath(u, c.want); err != nil {
			return withCode(exitValidation, err)
		}
	}

	_, err = units.Update(ctx, services.UpdateOrgUnitRequest{ID: root.Unit.ID, ParentID: &importedID})
	if !errors.Is(err, ports.ErrParentCycle) {
		return withCode(exitValidation, fmt.Errorf("expected parent cycle rejection, got %v", err))
	}
	return nil
}

func expectPath(u types.OrgUnit, want orgunitpkg.Path) error {
	if u.PathState != types.PathStateSeeded {
		return fmt.Errorf("org unit %d: path_state=%s, want %s", u.ID, u.PathState, types.PathStateSeeded)
	}
	if !slices.Equal(u.Path, want) {
		return fmt.Errorf("org unit %d: path=%s, want %s", u.ID, u.Path, want)
	}
	return nil
}
