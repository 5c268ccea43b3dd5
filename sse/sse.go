// Package sse streams a store subscription to an HTTP client as a
// Server-Sent Events feed. One connection corresponds to one
// store.Subscribe chain: the handler installs the subscription when
// the client connects and tears it down when the client disconnects,
// forwarding every delivered value as an "update" event in between.
package sse

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/entangld-go/entangld/store"
)

type writeFlusher interface {
	http.ResponseWriter
	http.Flusher
}

// Handler adapts a store.Store[R] to net/http, one SSE connection per
// subscribed path.
type Handler[R comparable] struct {
	store *store.Store[R]
	log   *slog.Logger
}

// New returns a Handler backed by s. A nil logger falls back to
// slog.Default.
func New[R comparable](s *store.Store[R], log *slog.Logger) *Handler[R] {
	if log == nil {
		log = slog.Default()
	}
	return &Handler[R]{store: s, log: log}
}

func commentSender(wf writeFlusher) {
	var evt bytes.Buffer
	evt.WriteString(": keep-alive\n\n")
	wf.Write(evt.Bytes())
	wf.Flush()
}

// updateEventSender writes one "update" SSE frame carrying data, which
// is assumed to already be a JSON-encoded value.
func updateEventSender(wf writeFlusher, data string) {
	var evt bytes.Buffer
	evt.WriteString("event: update\n")
	evt.WriteString(fmt.Sprintf("id: %d\n", time.Now().UnixMilli()))
	evt.WriteString(fmt.Sprintf("data: %s\n\n", data))
	wf.Write(evt.Bytes())
	wf.Flush()
}

// Subscribe handles an SSE connection for path, registering a chained
// subscription against the store and streaming every delivered value
// to w until the client disconnects. throttle follows store.Subscribe;
// encode marshals a delivered value to the wire string sent as the
// event's data field (typically json.Marshal).
func (h *Handler[R]) Subscribe(w http.ResponseWriter, r *http.Request, path string, throttle int, encode func(any) (string, error)) {
	wf, ok := w.(writeFlusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events := make(chan string, 64)
	id, err := h.store.Subscribe(r.Context(), path, func(_ string, value any) {
		data, err := encode(value)
		if err != nil {
			h.log.Warn("sse: failed to encode event value", "path", path, "err", err)
			return
		}
		select {
		case events <- data:
		default:
			h.log.Warn("sse: client too slow, dropping event", "path", path)
		}
	}, throttle)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer h.store.Unsubscribe(context.Background(), id)

	wf.Header().Set("Content-Type", "text/event-stream")
	wf.Header().Set("Cache-Control", "no-cache")
	wf.Header().Set("Connection", "keep-alive")
	wf.Header().Set("Access-Control-Allow-Origin", "*")
	wf.WriteHeader(http.StatusOK)
	updateEventSender(wf, strconv.Quote("subscribed:"+id))

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			commentSender(wf)
		case data := <-events:
			updateEventSender(wf, data)
		case <-r.Context().Done():
			h.log.Info("sse: client disconnected", "path", path, "id", id)
			return
		}
	}
}
