package sse

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entangld-go/entangld/store"
)

func jsonEncode(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

func TestSubscribeStreamsUpdatesUntilClientDisconnects(t *testing.T) {
	s := store.New[string]()
	h := New(s, nil)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/subscribe?path=a.b", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.Subscribe(rec, req, "a.b", 1, jsonEncode)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(s.SubscribedTo("a.b")) == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, s.Set(context.Background(), "a.b", 1.0))
	require.Eventually(t, func() bool {
		return strings.Contains(rec.Body.String(), "data: 1\n")
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not return after client disconnect")
	}

	assert.Empty(t, s.SubscribedTo("a.b"))
	assert.Contains(t, rec.Body.String(), "data: 1\n")
}

func TestSubscribeRejectsWhenResponseWriterCannotFlush(t *testing.T) {
	s := store.New[string]()
	h := New(s, nil)

	req := httptest.NewRequest(http.MethodGet, "/subscribe?path=a", nil)
	rec := &noFlushWriter{header: make(http.Header)}

	h.Subscribe(rec, req, "a", 1, jsonEncode)
	assert.Equal(t, http.StatusInternalServerError, rec.code)
}

// noFlushWriter implements http.ResponseWriter but deliberately not
// http.Flusher, to exercise the handler's streaming-unsupported path.
type noFlushWriter struct {
	header http.Header
	code   int
	body   []byte
}

func (w *noFlushWriter) Header() http.Header { return w.header }
func (w *noFlushWriter) Write(b []byte) (int, error) {
	w.body = append(w.body, b...)
	return len(b), nil
}
func (w *noFlushWriter) WriteHeader(code int) { w.code = code }
