package services

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/blsq/iaso/modules/orgunit/domain/types"
	"github.com/blsq/iaso/pkg/httperr"
)

var ErrInvalidFilter = errors.New("invalid_filter")

var newSearchFilterCELEnv = func() (*cel.Env, error) {
	return cel.NewEnv(cel.Variable("unit", cel.MapType(cel.StringType, cel.DynType)))
}

var searchFilterProgramCache sync.Map

// SearchFilter is a compiled boolean CEL expression over the `unit` variable.
type SearchFilter struct {
	expr    string
	program cel.Program
}

func CompileSearchFilter(expr string) (*SearchFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, invalidFilter("expression required")
	}
	if cached, ok := searchFilterProgramCache.Load(expr); ok {
		return &SearchFilter{expr: expr, program: cached.(cel.Program)}, nil
	}
	env, err := newSearchFilterCELEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, invalidFilter(issues.Err().Error())
	}
	// Fields of `unit` are dyn, so `unit.has_location` alone only resolves to bool at evaluation.
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, invalidFilter("expression must be boolean")
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, invalidFilter(err.Error())
	}
	searchFilterProgramCache.Store(expr, program)
	return &SearchFilter{expr: expr, program: program}, nil
}

func (f *SearchFilter) String() string { return f.expr }

func (f *SearchFilter) Match(unit types.OrgUnit) (bool, error) {
	out, _, err := f.program.Eval(map[string]any{"unit": searchFilterVars(unit)})
	if err != nil {
		return false, invalidFilter(err.Error())
	}
	v, ok := out.Value().(bool)
	if !ok {
		return false, invalidFilter("expression must be boolean")
	}
	return v, nil
}

// Apply keeps the units matching the filter, in order. A nil filter keeps everything.
func (f *SearchFilter) Apply(units []types.OrgUnit) ([]types.OrgUnit, error) {
	if f == nil {
		return units, nil
	}
	out := make([]types.OrgUnit, 0, len(units))
	for _, u := range units {
		ok, err := f.Match(u)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func searchFilterVars(u types.OrgUnit) map[string]any {
	vars := map[string]any{
		"id":                u.ID,
		"name":              u.Name,
		"depth":             int64(u.Path.Depth()),
		"validation_status": string(u.ValidationStatus),
		"path_state":        string(u.PathState),
		"has_location":      u.Location != nil,
		"has_geometry":      len(u.Geom) > 0,
		"aliases":           append([]string{}, u.Aliases...),
		"parent_id":         int64(0),
		"org_unit_type_id":  int64(0),
		"version_id":        int64(0),
		"source_ref":        "",
	}
	if u.ParentID != nil {
		vars["parent_id"] = *u.ParentID
	}
	if u.OrgUnitTypeID != nil {
		vars["org_unit_type_id"] = *u.OrgUnitTypeID
	}
	if u.VersionID != nil {
		vars["version_id"] = *u.VersionID
	}
	if u.SourceRef != nil {
		vars["source_ref"] = *u.SourceRef
	}
	return vars
}

func invalidFilter(msg string) error {
	return errors.Join(ErrInvalidFilter, httperr.NewBadRequest(msg))
}
