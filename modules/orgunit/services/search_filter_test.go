package services

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blsq/iaso/modules/orgunit/domain/types"
	"github.com/blsq/iaso/pkg/httperr"
	orgunitpkg "github.com/blsq/iaso/pkg/orgunit"
)

func searchUnits() []types.OrgUnit {
	return []types.OrgUnit{
		{ID: 1, Name: "Sierra Leone", Path: orgunitpkg.Path{1}, PathState: types.PathStateSeeded, ValidationStatus: types.ValidationStatusValid},
		{ID: 2, Name: "Bo", ParentID: ptr(int64(1)), Path: orgunitpkg.Path{1, 2}, PathState: types.PathStateSeeded, ValidationStatus: types.ValidationStatusNew, Aliases: []string{"Bo District"}},
		{ID: 3, Name: "Bo Government Hospital", ParentID: ptr(int64(2)), Path: orgunitpkg.Path{1, 2, 3}, PathState: types.PathStateSeeded, ValidationStatus: types.ValidationStatusValid, Location: &orb.Point{-11.7, 7.9}, SourceRef: ptr("hf-003")},
		{ID: 4, Name: "Imported", PathState: types.PathStatePending, ValidationStatus: types.ValidationStatusRejected},
	}
}

func TestSearchFilter_Apply(t *testing.T) {
	cases := []struct {
		expr string
		want []int64
	}{
		{expr: `unit.depth == 2`, want: []int64{2}},
		{expr: `unit.depth >= 2 && unit.validation_status == "VALID"`, want: []int64{3}},
		{expr: `unit.has_location`, want: []int64{3}},
		{expr: `unit.name.startsWith("Bo")`, want: []int64{2, 3}},
		{expr: `"Bo District" in unit.aliases`, want: []int64{2}},
		{expr: `unit.parent_id == 0`, want: []int64{1, 4}},
		{expr: `unit.path_state == "PENDING"`, want: []int64{4}},
		{expr: `unit.source_ref != ""`, want: []int64{3}},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			f, err := CompileSearchFilter(tc.expr)
			require.NoError(t, err)
			got, err := f.Apply(searchUnits())
			require.NoError(t, err)
			assert.Equal(t, tc.want, changedIDs(got))
		})
	}
}

func TestSearchFilter_NilKeepsEverything(t *testing.T) {
	var f *SearchFilter
	got, err := f.Apply(searchUnits())
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestSearchFilter_Invalid(t *testing.T) {
	for _, expr := range []string{"", "unit.name ==", "1 + 1", "missing.depth == 1"} {
		_, err := CompileSearchFilter(expr)
		assert.ErrorIs(t, err, ErrInvalidFilter, expr)
		assert.True(t, httperr.IsBadRequest(err), expr)
	}
}

func TestSearchFilter_NonBooleanResult(t *testing.T) {
	f, err := CompileSearchFilter(`unit.name`)
	require.NoError(t, err)

	_, err = f.Match(searchUnits()[0])
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestSearchFilter_ReusesPrograms(t *testing.T) {
	a, err := CompileSearchFilter(` unit.id == 1 `)
	require.NoError(t, err)
	b, err := CompileSearchFilter(`unit.id == 1`)
	require.NoError(t, err)
	assert.Equal(t, "unit.id == 1", a.String())
	assert.Equal(t, a.program, b.program)
}
