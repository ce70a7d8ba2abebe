package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/blsq/iaso/modules/orgunit/domain/ports"
	"github.com/blsq/iaso/modules/orgunit/domain/types"
	orgunitpkg "github.com/blsq/iaso/pkg/orgunit"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type OrgUnitPGStore struct {
	pool pgBeginner
}

func NewOrgUnitPGStore(pool pgBeginner) *OrgUnitPGStore {
	return &OrgUnitPGStore{pool: pool}
}

var _ ports.OrgUnitStore = (*OrgUnitPGStore)(nil)

func (s *OrgUnitPGStore) GetOrgUnit(ctx context.Context, id int64) (types.OrgUnit, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.OrgUnit{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	unit, err := scanOrgUnit(tx.QueryRow(ctx, `SELECT `+orgUnitColumns("o")+`
FROM iaso.org_units o
WHERE o.id = $1::bigint
`, id))
	if err != nil {
		return types.OrgUnit{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.OrgUnit{}, err
	}
	return unit, nil
}

func (s *OrgUnitPGStore) ListOrgUnits(ctx context.Context, q types.OrgUnitQuery) ([]types.OrgUnit, error) {
	if q.IsNone() {
		return []types.OrgUnit{}, nil
	}
	sql, args, err := buildOrgUnitSelect(q)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	out, err := collectOrgUnits(rows)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *OrgUnitPGStore) CountOrgUnits(ctx context.Context, q types.OrgUnitQuery) (int, error) {
	if q.IsNone() {
		return 0, nil
	}
	sql, args, err := buildOrgUnitCount(q)
	if err != nil {
		return 0, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var n int64
	if err := tx.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *OrgUnitPGStore) ResolveSourceRef(ctx context.Context, versionID int64, sourceRef string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	id, err := orgunitpkg.ResolveIDBySourceRef(ctx, tx, versionID, sourceRef)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *OrgUnitPGStore) InTx(ctx context.Context, fn func(tx ports.OrgUnitTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if err := fn(&orgUnitPGTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type orgUnitPGTx struct {
	tx pgx.Tx
}

func (t *orgUnitPGTx) Get(ctx context.Context, id int64) (types.OrgUnit, error) {
	return scanOrgUnit(t.tx.QueryRow(ctx, `SELECT `+orgUnitColumns("o")+`
FROM iaso.org_units o
WHERE o.id = $1::bigint
FOR SHARE
`, id))
}

func (t *orgUnitPGTx) Insert(ctx context.Context, unit types.OrgUnit) (types.OrgUnit, error) {
	vals, err := orgUnitWriteValues(unit)
	if err != nil {
		return types.OrgUnit{}, err
	}
	return scanOrgUnit(t.tx.QueryRow(ctx, `
INSERT INTO iaso.org_units (
  name, parent_id, org_unit_type_id, version_id, validation_status,
  location, altitude, geom, catchment, source_ref, aliases, path, path_state
)
VALUES (
  $1::text, $2::bigint, $3::bigint, $4::bigint, $5::text,
  ST_GeomFromWKB($6::bytea, 4326), $7::float8, ST_GeomFromWKB($8::bytea, 4326), ST_GeomFromWKB($9::bytea, 4326),
  $10::text, $11::text[], NULL, 'PENDING'
)
RETURNING `+orgUnitColumns(""), vals...))
}

func (t *orgUnitPGTx) Update(ctx context.Context, unit types.OrgUnit) (types.OrgUnit, error) {
	vals, err := orgUnitWriteValues(unit)
	if err != nil {
		return types.OrgUnit{}, err
	}
	return scanOrgUnit(t.tx.QueryRow(ctx, `
UPDATE iaso.org_units
SET name = $1::text,
    parent_id = $2::bigint,
    org_unit_type_id = $3::bigint,
    version_id = $4::bigint,
    validation_status = $5::text,
    location = ST_GeomFromWKB($6::bytea, 4326),
    altitude = $7::float8,
    geom = ST_GeomFromWKB($8::bytea, 4326),
    catchment = ST_GeomFromWKB($9::bytea, 4326),
    source_ref = $10::text,
    aliases = $11::text[],
    updated_at = now()
WHERE id = $12::bigint
RETURNING `+orgUnitColumns(""), append(vals, unit.ID)...))
}

const lockSubtreeSQL = `SELECT %s
FROM iaso.org_units o
WHERE o.id IN (
  WITH RECURSIVE subtree(id, visited) AS (
    SELECT u.id, ARRAY[u.id] FROM iaso.org_units u WHERE u.id = $1::bigint
    UNION ALL
    SELECT c.id, s.visited || c.id
    FROM iaso.org_units c
    JOIN subtree s ON c.parent_id = s.id
    WHERE NOT c.id = ANY(s.visited)
  )
  SELECT id FROM subtree
)
ORDER BY (o.id = $1::bigint) DESC, o.id
FOR UPDATE
`

// maxSubtreeLockRounds bounds how often LockSubtree re-reads a subtree that keeps gaining children.
const maxSubtreeLockRounds = 8

// LockSubtree follows parent pointers rather than paths so that pending units are locked too.
// The subquery only sees rows committed before the statement started, so the walk repeats with
// the locks held until two rounds return the same ids; a child attached concurrently is then
// locked as well.
func (t *orgUnitPGTx) LockSubtree(ctx context.Context, id int64) ([]types.OrgUnit, error) {
	query := fmt.Sprintf(lockSubtreeSQL, orgUnitColumns("o"))
	var prev []types.OrgUnit
	for round := 0; round < maxSubtreeLockRounds; round++ {
		rows, err := t.tx.Query(ctx, query, id)
		if err != nil {
			return nil, err
		}
		units, err := collectOrgUnits(rows)
		if err != nil {
			return nil, err
		}
		if round > 0 && sameUnitIDs(prev, units) {
			return units, nil
		}
		prev = units
	}
	return nil, fmt.Errorf("lock subtree %d: %w", id, ports.ErrPathConflict)
}

func sameUnitIDs(a, b []types.OrgUnit) bool {
	return slices.EqualFunc(a, b, func(x, y types.OrgUnit) bool { return x.ID == y.ID })
}

func (t *orgUnitPGTx) UpdatePaths(ctx context.Context, units []types.OrgUnit) error {
	if len(units) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, u := range units {
		var path any
		if u.Path != nil {
			path = u.Path.Int64s()
		}
		batch.Queue(`
UPDATE iaso.org_units
SET path = $2::bigint[], path_state = $3::text, updated_at = now()
WHERE id = $1::bigint
`, u.ID, path, string(u.PathState))
	}
	br := t.tx.SendBatch(ctx, batch)
	for range units {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

func (t *orgUnitPGTx) InsertChanges(ctx context.Context, changes []types.OrgUnitChange) error {
	if len(changes) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range changes {
		var old []byte
		if c.Old != nil {
			b, err := json.Marshal(c.Old)
			if err != nil {
				return err
			}
			old = b
		}
		newJSON, err := json.Marshal(c.New)
		if err != nil {
			return err
		}
		batch.Queue(`
INSERT INTO iaso.org_unit_changes (id, org_unit_id, user_id, kind, old, new, created_at)
VALUES ($1::uuid, $2::bigint, $3::bigint, $4::text, $5::jsonb, $6::jsonb, $7::timestamptz)
`, c.ID, c.OrgUnitID, c.UserID, string(c.Kind), old, newJSON, c.CreatedAt)
	}
	br := t.tx.SendBatch(ctx, batch)
	for range changes {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

func orgUnitWriteValues(u types.OrgUnit) ([]any, error) {
	location, err := orgunitpkg.PointWKB(u.Location)
	if err != nil {
		return nil, err
	}
	geom, err := orgunitpkg.MultiPolygonWKB(u.Geom)
	if err != nil {
		return nil, err
	}
	catchment, err := orgunitpkg.MultiPolygonWKB(u.Catchment)
	if err != nil {
		return nil, err
	}
	aliases := u.Aliases
	if aliases == nil {
		aliases = []string{}
	}
	return []any{
		u.Name, u.ParentID, u.OrgUnitTypeID, u.VersionID, string(u.ValidationStatus),
		location, u.Altitude, geom, catchment,
		u.SourceRef, aliases,
	}, nil
}

func scanOrgUnit(row pgx.Row) (types.OrgUnit, error) {
	var (
		u                         types.OrgUnit
		path                      []int64
		pathState, status         string
		location, geom, catchment []byte
		aliases                   []string
		createdAt, updatedAt      time.Time
	)
	if err := row.Scan(
		&u.ID, &u.Name, &u.ParentID, &path, &pathState, &u.OrgUnitTypeID, &u.VersionID, &status,
		&location, &u.Altitude, &geom, &catchment, &u.SourceRef, &aliases, &createdAt, &updatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.OrgUnit{}, ports.ErrOrgUnitNotFound
		}
		return types.OrgUnit{}, err
	}
	if path != nil {
		u.Path = orgunitpkg.Path(path)
	}
	u.PathState = types.PathState(pathState)
	u.ValidationStatus = types.ValidationStatus(status)
	u.Aliases = aliases
	u.CreatedAt, u.UpdatedAt = createdAt, updatedAt

	var err error
	if u.Location, err = orgunitpkg.PointFromWKB(location); err != nil {
		return types.OrgUnit{}, err
	}
	u.Location = orgunitpkg.NormalizeLocation(u.Location)
	if u.Geom, err = orgunitpkg.MultiPolygonFromWKB(geom); err != nil {
		return types.OrgUnit{}, err
	}
	if u.Catchment, err = orgunitpkg.MultiPolygonFromWKB(catchment); err != nil {
		return types.OrgUnit{}, err
	}
	return u, nil
}

func collectOrgUnits(rows pgx.Rows) ([]types.OrgUnit, error) {
	defer rows.Close()
	out := make([]types.OrgUnit, 0)
	for rows.Next() {
		u, err := scanOrgUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
