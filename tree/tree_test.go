package tree

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFound(t *testing.T) {
	root := map[string]any{"number": map[string]any{"six": float64(6)}}
	node, remaining, kind := Resolve(root, "number.six")
	assert.Equal(t, Found, kind)
	assert.Equal(t, "", remaining)
	assert.Equal(t, float64(6), node)
}

func TestResolveAbsent(t *testing.T) {
	root := map[string]any{}
	_, _, kind := Resolve(root, "missing.path")
	assert.Equal(t, Absent, kind)
}

func TestResolveCallableStopsEarly(t *testing.T) {
	var called any
	fn := Callable(func(ctx context.Context, params any) (any, error) {
		called = params
		return map[string]any{"q": float64(42)}, nil
	})
	root := map[string]any{"double": map[string]any{"me": fn}}

	node, remaining, kind := Resolve(root, "double.me.q")
	assert.Equal(t, ViaCallable, kind)
	assert.Equal(t, "q", remaining)
	require.NotNil(t, node)
	_ = called
}

func TestResolveCallableAtExactPath(t *testing.T) {
	fn := Callable(func(ctx context.Context, params any) (any, error) { return float64(4), nil })
	root := map[string]any{"double": map[string]any{"me": fn}}

	_, remaining, kind := Resolve(root, "double.me")
	assert.Equal(t, ViaCallable, kind)
	assert.Equal(t, "", remaining)
}

func TestSetLeafAutoCreatesIntermediateMaps(t *testing.T) {
	root := map[string]any{}
	require.NoError(t, SetLeaf(root, "a.b.c", float64(1)))
	node, _, kind := Resolve(root, "a.b.c")
	assert.Equal(t, Found, kind)
	assert.Equal(t, float64(1), node)
}

func TestSetLeafNilRemoves(t *testing.T) {
	root := map[string]any{"a": map[string]any{"b": float64(1)}}
	require.NoError(t, SetLeaf(root, "a.b", nil))
	_, _, kind := Resolve(root, "a.b")
	assert.Equal(t, Absent, kind)
}

func TestPushLeafAppendsAndTrims(t *testing.T) {
	root := map[string]any{}
	for i := 0; i < 4; i++ {
		require.NoError(t, PushLeaf(root, "rapid.data", float64(i), 2))
	}
	node, _, _ := Resolve(root, "rapid.data")
	seq := node.([]any)
	require.Len(t, seq, 2)
	assert.Equal(t, float64(2), seq[0])
	assert.Equal(t, float64(3), seq[1])
}

func TestPushLeafRejectsNonSequence(t *testing.T) {
	root := map[string]any{"x": float64(1)}
	err := PushLeaf(root, "x", float64(2), 0)
	assert.Error(t, err)
}

func TestProjectDepthLimited(t *testing.T) {
	root := map[string]any{
		"a": map[string]any{
			"b": map[string]any{
				"c": float64(1),
			},
		},
	}
	projected := Project(root, 1).(map[string]any)
	inner, ok := projected["a"].(map[string]any)
	require.True(t, ok)
	assert.Empty(t, inner)
}

func TestProjectDepthZeroPreservesPrimitives(t *testing.T) {
	assert.Equal(t, float64(6), Project(float64(6), 0))
}

func TestDereferenceReplacesCallables(t *testing.T) {
	fn := Callable(func(ctx context.Context, params any) (any, error) { return float64(2), nil })
	root := map[string]any{"double": map[string]any{"me": fn}}

	derefed, err := Dereference(context.Background(), root)
	require.NoError(t, err)
	m := derefed.(map[string]any)["double"].(map[string]any)
	assert.Equal(t, float64(2), m["me"])
}
