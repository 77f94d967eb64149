package filtercache_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accented-ai/semq/internal/filtercache"
	"github.com/accented-ai/semq/internal/fragment"
)

func TestKeyIsOrderInsensitiveOverValues(t *testing.T) {
	a := filtercache.Key(filtercache.Condition{Member: "Orders.status", Operator: "in", Values: []any{"open", "closed"}})
	b := filtercache.Key(filtercache.Condition{Member: "Orders.status", Operator: "in", Values: []any{"closed", "open"}})
	require.Equal(t, a, b)
}

func TestKeyIsCaseInsensitiveOverMemberAndOperator(t *testing.T) {
	a := filtercache.Key(filtercache.Condition{Member: "Orders.status", Operator: "equals", Values: []any{"open"}})
	b := filtercache.Key(filtercache.Condition{Member: "orders.STATUS", Operator: "EQUALS", Values: []any{"open"}})
	require.Equal(t, a, b)
}

func TestKeyDistinguishesDateRange(t *testing.T) {
	a := filtercache.Key(filtercache.Condition{Member: "Orders.createdAt", Operator: "inDateRange", DateRange: [2]string{"2024-01-01", "2024-01-31"}})
	b := filtercache.Key(filtercache.Condition{Member: "Orders.createdAt", Operator: "inDateRange", DateRange: [2]string{"2024-02-01", "2024-02-29"}})
	require.NotEqual(t, a, b)
}

func TestGetOrBuildCachesOnHit(t *testing.T) {
	c := filtercache.New()
	key := filtercache.Key(filtercache.Condition{Member: "Orders.status", Operator: "equals", Values: []any{"open"}})

	calls := 0
	build := func() (*fragment.Fragment, error) {
		calls++
		return fragment.Infix("=", fragment.Ident("status"), fragment.Param("open")), nil
	}

	first, err := c.GetOrBuild(key, build)
	require.NoError(t, err)

	second, err := c.GetOrBuild(key, build)
	require.NoError(t, err)

	require.Same(t, first, second)
	require.Equal(t, 1, calls, "build must only run once per key")
}

func TestGetOrBuildPropagatesBuildError(t *testing.T) {
	c := filtercache.New()
	wantErr := assertErr{}

	_, err := c.GetOrBuild("k", func() (*fragment.Fragment, error) {
		return nil, wantErr
	})
	require.ErrorIs(t, err, wantErr)

	_, ok := c.Get("k")
	require.False(t, ok, "a failed build must not populate the cache")
}

type assertErr struct{}

func (assertErr) Error() string { return "build failed" }
