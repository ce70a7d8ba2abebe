package persistence

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/blsq/iaso/modules/orgunit/domain/types"
	orgunitpkg "github.com/blsq/iaso/pkg/orgunit"
)

const orgUnitColumnList = `id, name, parent_id, path, path_state, org_unit_type_id, version_id, validation_status,
ST_AsBinary(location), altitude, ST_AsBinary(geom), ST_AsBinary(catchment), source_ref, aliases, created_at, updated_at`

// orgUnitColumns qualifies the selected columns with alias.
func orgUnitColumns(alias string) string {
	if alias == "" {
		return orgUnitColumnList
	}
	return fmt.Sprintf(`%[1]s.id, %[1]s.name, %[1]s.parent_id, %[1]s.path, %[1]s.path_state, %[1]s.org_unit_type_id, %[1]s.version_id, %[1]s.validation_status,
ST_AsBinary(%[1]s.location), %[1]s.altitude, ST_AsBinary(%[1]s.geom), ST_AsBinary(%[1]s.catchment), %[1]s.source_ref, %[1]s.aliases, %[1]s.created_at, %[1]s.updated_at`, alias)
}

type orgUnitSQL struct {
	args  []any
	alias int
}

func (b *orgUnitSQL) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *orgUnitSQL) nextAlias() string {
	b.alias++
	return "h" + strconv.Itoa(b.alias)
}

func buildOrgUnitSelect(q types.OrgUnitQuery) (string, []any, error) {
	b := &orgUnitSQL{}
	where, err := b.where("o", q)
	if err != nil {
		return "", nil, err
	}
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(orgUnitColumns("o"))
	sb.WriteString("\nFROM iaso.org_units o\nWHERE ")
	sb.WriteString(where)
	if order := orderClause("o", q.Order()); order != "" {
		sb.WriteString("\nORDER BY ")
		sb.WriteString(order)
	}
	if q.Limit() > 0 {
		sb.WriteString("\nLIMIT ")
		sb.WriteString(b.arg(q.Limit()))
	}
	if q.Offset() > 0 {
		sb.WriteString("\nOFFSET ")
		sb.WriteString(b.arg(q.Offset()))
	}
	return sb.String(), b.args, nil
}

func buildOrgUnitCount(q types.OrgUnitQuery) (string, []any, error) {
	b := &orgUnitSQL{}
	where, err := b.where("o", q.Unpaged())
	if err != nil {
		return "", nil, err
	}
	return "SELECT count(*) FROM iaso.org_units o WHERE " + where, b.args, nil
}

func (b *orgUnitSQL) where(alias string, q types.OrgUnitQuery) (string, error) {
	if q.IsNone() {
		return "FALSE", nil
	}
	preds := q.Predicates()
	if len(preds) == 0 {
		return "TRUE", nil
	}
	parts := make([]string, 0, len(preds))
	for _, p := range preds {
		clause, err := b.predicate(alias, p)
		if err != nil {
			return "", err
		}
		parts = append(parts, "("+clause+")")
	}
	return strings.Join(parts, " AND "), nil
}

func (b *orgUnitSQL) predicate(a string, p types.Predicate) (string, error) {
	switch p := p.(type) {
	case types.IDIn:
		return fmt.Sprintf("%s.id = ANY(%s::bigint[])", a, b.arg(nonNilIDs(p.IDs))), nil
	case types.VersionIn:
		return fmt.Sprintf("%s.version_id = ANY(%s::bigint[])", a, b.arg(nonNilIDs(p.IDs))), nil
	case types.TypeIn:
		return fmt.Sprintf("%s.org_unit_type_id = ANY(%s::bigint[])", a, b.arg(nonNilIDs(p.IDs))), nil
	case types.StatusIn:
		statuses := make([]string, len(p.Statuses))
		for i, s := range p.Statuses {
			statuses[i] = string(s)
		}
		return fmt.Sprintf("%s.validation_status = ANY(%s::text[])", a, b.arg(statuses)), nil
	case types.ParentIs:
		return fmt.Sprintf("%s.parent_id = %s::bigint", a, b.arg(p.ID)), nil
	case types.RootsOnly:
		return a + ".parent_id IS NULL", nil
	case types.NameContains:
		pattern := b.arg("%" + escapeLike(p.Text) + "%")
		return fmt.Sprintf("%[1]s.name ILIKE %[2]s OR EXISTS (SELECT 1 FROM unnest(%[1]s.aliases) AS alias WHERE alias ILIKE %[2]s)", a, pattern), nil
	case types.SourceRefIn:
		refs := p.Refs
		if refs == nil {
			refs = []string{}
		}
		return fmt.Sprintf("%s.source_ref = ANY(%s::text[])", a, b.arg(refs)), nil
	case types.ChildrenOf:
		return b.pathPrefix(a, p.Path, "=", 1)
	case types.DescendantsOf:
		return b.pathPrefix(a, p.Path, ">", 0)
	case types.InHierarchyOf:
		if len(p.Paths) == 0 {
			return "FALSE", nil
		}
		ors := make([]string, 0, len(p.Paths))
		for _, path := range p.Paths {
			clause, err := b.pathPrefix(a, path, ">=", 0)
			if err != nil {
				return "", err
			}
			ors = append(ors, "("+clause+")")
		}
		return strings.Join(ors, " OR "), nil
	case types.InHierarchyOfQuery:
		h := b.nextAlias()
		sub, err := b.where(h, p.Query.Unpaged())
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(`EXISTS (
  SELECT 1 FROM iaso.org_units %[2]s
  WHERE %[2]s.path IS NOT NULL
    AND %[1]s.path @> ARRAY[%[2]s.id]
    AND %[1]s.path[1:cardinality(%[2]s.path)] = %[2]s.path
    AND (%[3]s)
)`, a, h, sub), nil
	case types.PathPending:
		return a + ".path IS NULL", nil
	case types.PathSeedable:
		return fmt.Sprintf(`%[1]s.path IS NULL AND (%[1]s.parent_id IS NULL OR EXISTS (
  SELECT 1 FROM iaso.org_units sp WHERE sp.id = %[1]s.parent_id AND sp.path IS NOT NULL
))`, a), nil
	default:
		return "", fmt.Errorf("unsupported org unit predicate %T", p)
	}
}

// pathPrefix matches paths starting with prefix whose length compares to len(prefix)+extra with
// op. The containment test on the last label lets the GIN index on path prune candidates.
func (b *orgUnitSQL) pathPrefix(a string, prefix orgunitpkg.Path, op string, extra int) (string, error) {
	leaf, ok := prefix.Leaf()
	if !ok {
		return "", orgunitpkg.ErrPathInvalid
	}
	n := prefix.Depth()
	return fmt.Sprintf("%[1]s.path @> ARRAY[%[2]s::bigint] AND %[1]s.path[1:%[3]d] = %[4]s::bigint[] AND cardinality(%[1]s.path) %[5]s %[6]d",
		a, b.arg(leaf), n, b.arg(prefix.Int64s()), op, n+extra), nil
}

func orderClause(a string, order []types.OrderField) string {
	if len(order) == 0 {
		return ""
	}
	parts := make([]string, 0, len(order)+1)
	for _, f := range order {
		switch f {
		case types.OrderByID:
			parts = append(parts, a+".id")
		case types.OrderByName:
			parts = append(parts, a+".name")
		case types.OrderByPath:
			parts = append(parts, a+".path NULLS LAST")
		}
	}
	if order[len(order)-1] != types.OrderByID {
		parts = append(parts, a+".id")
	}
	return strings.Join(parts, ", ")
}

func nonNilIDs(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
