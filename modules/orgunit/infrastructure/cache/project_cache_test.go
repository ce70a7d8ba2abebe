package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blsq/iaso/modules/orgunit/domain/types"
)

type fakeRedis struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.values[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func TestProjectCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	c := NewProjectCache(rdb)

	_, hit, err := c.GetProject(ctx, "project:app:org.demo:account:any")
	require.NoError(t, err)
	assert.False(t, hit)

	want := types.Project{ID: 10, Name: "Demo", AppID: "org.demo", AccountID: 1, NeedsAuthentication: true, OrgUnitTypeIDs: []int64{3, 4}}
	require.NoError(t, c.SetProject(ctx, "project:app:org.demo:account:any", want, time.Minute))
	assert.Equal(t, time.Minute, rdb.ttls["iaso:project:app:org.demo:account:any"])

	got, hit, err := c.GetProject(ctx, "project:app:org.demo:account:any")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, want, got)
}

func TestProjectCache_Errors(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	c := NewProjectCache(rdb)

	rdb.values["iaso:broken"] = "{"
	_, hit, err := c.GetProject(ctx, "broken")
	require.Error(t, err)
	assert.False(t, hit)

	rdb.err = errors.New("connection refused")
	_, _, err = c.GetProject(ctx, "any")
	assert.ErrorIs(t, err, rdb.err)
	assert.ErrorIs(t, c.SetProject(ctx, "any", types.Project{ID: 1}, 0), rdb.err)
}
