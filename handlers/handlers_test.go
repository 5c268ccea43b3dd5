package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entangld-go/entangld/store"
	"github.com/entangld-go/entangld/tree"
)

func newTestHandler(t *testing.T) (*Handler[string], *store.Store[string]) {
	t.Helper()
	s := store.New[string]()
	return New(s, "/store/", nil), s
}

func TestPutThenGetRoundTrips(t *testing.T) {
	h, _ := newTestHandler(t)

	putReq := httptest.NewRequest(http.MethodPut, "/store/a.b", strings.NewReader(`5`))
	putRec := httptest.NewRecorder()
	h.ServeHTTP(putRec, putReq)
	require.Equal(t, http.StatusOK, putRec.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/store/a.b", nil)
	getRec := httptest.NewRecorder()
	h.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	var body struct {
		Path  string  `json:"path"`
		Value float64 `json:"value"`
	}
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &body))
	assert.Equal(t, "a.b", body.Path)
	assert.Equal(t, 5.0, body.Value)
}

func TestGetMissingPathIsNotFound(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/store/nope.nothing", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostAppendsToSequence(t *testing.T) {
	h, s := newTestHandler(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/store/log", strings.NewReader(`{"value":1}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	v, err := s.Get(ctx, "log", nil)
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 1.0}, v)
}

func TestDeleteClearsLeaf(t *testing.T) {
	h, s := newTestHandler(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "a", 1.0))

	req := httptest.NewRequest(http.MethodDelete, "/store/a", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err := s.Get(ctx, "a", nil)
	assert.Error(t, err)
}

func TestPatchInvokesCallableWithBodyAsParams(t *testing.T) {
	h, s := newTestHandler(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "double", map[string]any{
		"me": tree.Callable(func(ctx context.Context, params any) (any, error) {
			m := params.(map[string]any)
			return m["x"].(float64) * 2, nil
		}),
	}))

	req := httptest.NewRequest(http.MethodPatch, "/store/double.me", strings.NewReader(`{"x":21}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Result float64 `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 42.0, body.Result)
}

func TestOptionsRequestReturnsOK(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodOptions, "/store/a", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnsupportedMethodIsRejected(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodConnect, "/store/a", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
