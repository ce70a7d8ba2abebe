package persistence

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/blsq/iaso/modules/orgunit/domain/ports"
	"github.com/blsq/iaso/modules/orgunit/domain/types"
)

const orgUnitTypeColumns = `t.id, t.name, t.short_name, COALESCE(t.category, ''), t.depth, t.account_id, t.created_at, t.updated_at,
COALESCE((SELECT array_agg(st.sub_unit_type_id ORDER BY st.sub_unit_type_id) FROM iaso.org_unit_type_sub_types st WHERE st.org_unit_type_id = t.id), '{}'::bigint[]),
COALESCE((SELECT array_agg(pt.project_id ORDER BY pt.project_id) FROM iaso.project_org_unit_types pt WHERE pt.org_unit_type_id = t.id), '{}'::bigint[])`

type OrgUnitTypePGStore struct {
	pool pgBeginner
}

func NewOrgUnitTypePGStore(pool pgBeginner) *OrgUnitTypePGStore {
	return &OrgUnitTypePGStore{pool: pool}
}

var _ ports.OrgUnitTypeStore = (*OrgUnitTypePGStore)(nil)

func (s *OrgUnitTypePGStore) GetOrgUnitType(ctx context.Context, id int64) (types.OrgUnitType, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.OrgUnitType{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	t, err := scanOrgUnitType(tx.QueryRow(ctx, `SELECT `+orgUnitTypeColumns+`
FROM iaso.org_unit_types t
WHERE t.id = $1::bigint
`, id))
	if err != nil {
		return types.OrgUnitType{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.OrgUnitType{}, err
	}
	return t, nil
}

func (s *OrgUnitTypePGStore) ListOrgUnitTypes(ctx context.Context, filter types.OrgUnitTypeFilter) ([]types.OrgUnitType, error) {
	sql, args := buildOrgUnitTypeSelect(filter)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]types.OrgUnitType, 0)
	for rows.Next() {
		t, err := scanOrgUnitType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *OrgUnitTypePGStore) CreateOrgUnitType(ctx context.Context, in types.OrgUnitType) (types.OrgUnitType, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.OrgUnitType{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var id int64
	if err := tx.QueryRow(ctx, `
INSERT INTO iaso.org_unit_types (name, short_name, category, depth, account_id)
VALUES ($1::text, $2::text, NULLIF($3::text, ''), $4::int, $5::bigint)
RETURNING id
`, in.Name, in.ShortName, string(in.Category), in.Depth, in.AccountID).Scan(&id); err != nil {
		return types.OrgUnitType{}, err
	}

	if len(in.SubUnitTypeIDs) > 0 || len(in.ProjectIDs) > 0 {
		batch := &pgx.Batch{}
		for _, sub := range in.SubUnitTypeIDs {
			batch.Queue(`INSERT INTO iaso.org_unit_type_sub_types (org_unit_type_id, sub_unit_type_id) VALUES ($1::bigint, $2::bigint)`, id, sub)
		}
		for _, project := range in.ProjectIDs {
			batch.Queue(`INSERT INTO iaso.project_org_unit_types (project_id, org_unit_type_id) VALUES ($1::bigint, $2::bigint)`, project, id)
		}
		br := tx.SendBatch(ctx, batch)
		for range batch.Len() {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return types.OrgUnitType{}, err
			}
		}
		if err := br.Close(); err != nil {
			return types.OrgUnitType{}, err
		}
	}

	out, err := scanOrgUnitType(tx.QueryRow(ctx, `SELECT `+orgUnitTypeColumns+`
FROM iaso.org_unit_types t
WHERE t.id = $1::bigint
`, id))
	if err != nil {
		return types.OrgUnitType{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.OrgUnitType{}, err
	}
	return out, nil
}

func buildOrgUnitTypeSelect(filter types.OrgUnitTypeFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.Name != nil {
		conds = append(conds, "t.name = "+arg(*filter.Name)+"::text")
	}
	if filter.MatchDepth {
		conds = append(conds, "t.depth IS NOT DISTINCT FROM "+arg(filter.Depth)+"::int")
	}
	if filter.ProjectIDs != nil {
		conds = append(conds, `EXISTS (
  SELECT 1 FROM iaso.project_org_unit_types pf
  WHERE pf.org_unit_type_id = t.id AND pf.project_id = ANY(`+arg(filter.ProjectIDs)+`::bigint[])
)`)
	}
	if filter.AccountID != nil {
		a := arg(*filter.AccountID)
		conds = append(conds, `t.account_id = `+a+`::bigint OR EXISTS (
  SELECT 1 FROM iaso.project_org_unit_types pa
  JOIN iaso.projects p ON p.id = pa.project_id
  WHERE pa.org_unit_type_id = t.id AND p.account_id = `+a+`::bigint
)`)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(orgUnitTypeColumns)
	sb.WriteString("\nFROM iaso.org_unit_types t")
	if len(conds) > 0 {
		sb.WriteString("\nWHERE (")
		sb.WriteString(strings.Join(conds, ") AND ("))
		sb.WriteString(")")
	}
	sb.WriteString("\nORDER BY t.id ASC")
	return sb.String(), args
}

func scanOrgUnitType(row pgx.Row) (types.OrgUnitType, error) {
	var (
		t        types.OrgUnitType
		category string
		depth    *int32
	)
	if err := row.Scan(
		&t.ID, &t.Name, &t.ShortName, &category, &depth, &t.AccountID, &t.CreatedAt, &t.UpdatedAt,
		&t.SubUnitTypeIDs, &t.ProjectIDs,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.OrgUnitType{}, ports.ErrOrgUnitTypeNotFound
		}
		return types.OrgUnitType{}, err
	}
	t.Category = types.Category(category)
	if depth != nil {
		d := int(*depth)
		t.Depth = &d
	}
	return t, nil
}
