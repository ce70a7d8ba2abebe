package persistence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/blsq/iaso/modules/orgunit/domain/ports"
	"github.com/blsq/iaso/modules/orgunit/domain/types"
)

type AccessPGStore struct {
	pool pgBeginner
}

func NewAccessPGStore(pool pgBeginner) *AccessPGStore {
	return &AccessPGStore{pool: pool}
}

var _ ports.AccessStore = (*AccessPGStore)(nil)

func (s *AccessPGStore) GetUser(ctx context.Context, id int64) (types.User, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.User{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	u := types.User{ID: id}
	if err := tx.QueryRow(ctx, `
SELECT p.account_id,
       p.is_superuser,
       COALESCE(array_agg(po.org_unit_id ORDER BY po.org_unit_id) FILTER (WHERE po.org_unit_id IS NOT NULL), '{}'::bigint[])
FROM iaso.profiles p
LEFT JOIN iaso.profile_org_units po ON po.user_id = p.user_id
WHERE p.user_id = $1::bigint
GROUP BY p.user_id, p.account_id, p.is_superuser
`, id).Scan(&u.AccountID, &u.IsSuperuser, &u.OrgUnitIDs); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.User{}, ports.ErrProfileNotFound
		}
		return types.User{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.User{}, err
	}
	return u, nil
}

func (s *AccessPGStore) GetAccount(ctx context.Context, id int64) (types.Account, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.Account{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	a := types.Account{ID: id}
	if err := tx.QueryRow(ctx, `
SELECT name, default_version_id
FROM iaso.accounts
WHERE id = $1::bigint
`, id).Scan(&a.Name, &a.DefaultVersionID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Account{}, ports.ErrAccountNotFound
		}
		return types.Account{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.Account{}, err
	}
	return a, nil
}

func (s *AccessPGStore) FindProjectByAppID(ctx context.Context, appID string, accountID *int64) (types.Project, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.Project{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var p types.Project
	if err := tx.QueryRow(ctx, `
SELECT p.id, p.name, p.app_id, p.account_id, p.needs_authentication,
       COALESCE((SELECT array_agg(pt.org_unit_type_id ORDER BY pt.org_unit_type_id)
                 FROM iaso.project_org_unit_types pt
                 WHERE pt.project_id = p.id), '{}'::bigint[])
FROM iaso.projects p
WHERE p.app_id = $1::text
  AND ($2::bigint IS NULL OR p.account_id = $2::bigint)
ORDER BY p.id ASC
LIMIT 1
`, appID, accountID).Scan(&p.ID, &p.Name, &p.AppID, &p.AccountID, &p.NeedsAuthentication, &p.OrgUnitTypeIDs); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Project{}, ports.ErrProjectNotFound
		}
		return types.Project{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.Project{}, err
	}
	return p, nil
}

func (s *AccessPGStore) ListAccountVersionIDs(ctx context.Context, accountID int64) ([]int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT DISTINCT v.id
FROM iaso.source_versions v
JOIN iaso.data_source_projects dp ON dp.data_source_id = v.data_source_id
JOIN iaso.projects p ON p.id = dp.project_id
WHERE p.account_id = $1::bigint
ORDER BY v.id ASC
`, accountID)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}
