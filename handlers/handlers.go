// Package handlers exposes a store.Store over HTTP: GET resolves a
// path (or, with ?mode=subscribe, upgrades to an SSE event stream),
// PUT sets a leaf, POST pushes onto an ordered leaf, PATCH invokes a
// callable leaf with a JSON body as its params, and DELETE clears a
// leaf. Paths arrive dot-separated in the URL, matching the store's
// own path grammar; any "/" left after the prefix is also read as a
// segment separator and turned into ".".
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/entangld-go/entangld/auth"
	"github.com/entangld-go/entangld/entangleerr"
	"github.com/entangld-go/entangld/sse"
	"github.com/entangld-go/entangld/store"
)

// Handler adapts a store.Store[R] to net/http.
type Handler[R comparable] struct {
	store   *store.Store[R]
	stream  *sse.Handler[R]
	log     *slog.Logger
	trimmed string // URL prefix stripped before interpreting the remainder as a dotted path
}

// New builds a Handler serving s under the given URL prefix (e.g.
// "/store/"). A nil logger falls back to slog.Default.
func New[R comparable](s *store.Store[R], prefix string, log *slog.Logger) *Handler[R] {
	if log == nil {
		log = slog.Default()
	}
	return &Handler[R]{store: s, stream: sse.New(s, log), log: log, trimmed: prefix}
}

// ServeHTTP dispatches by method to a per-verb handler.
func (h *Handler[R]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "OPTIONS, GET, PUT, POST, PATCH, DELETE")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		h.GetHandler(w, r)
	case http.MethodPut:
		h.PutHandler(w, r)
	case http.MethodPost:
		h.PostHandler(w, r)
	case http.MethodPatch:
		h.PatchHandler(w, r)
	case http.MethodDelete:
		h.DeleteHandler(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler[R]) pathFromRequest(r *http.Request) string {
	p := strings.TrimPrefix(r.URL.Path, h.trimmed)
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return strings.ReplaceAll(p, "/", ".")
}

func respondWithError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case entangleerr.Is(err, entangleerr.KindNotFound):
		status = http.StatusNotFound
	case entangleerr.Is(err, entangleerr.KindTypeError),
		entangleerr.Is(err, entangleerr.KindInvalidArgument),
		entangleerr.Is(err, entangleerr.KindConflictingMount):
		status = http.StatusBadRequest
	case entangleerr.Is(err, entangleerr.KindAlreadyAttached):
		status = http.StatusConflict
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// GetHandler resolves path, either as a one-shot value read or, with
// ?mode=subscribe, as a long-lived SSE stream of every change beneath
// it. A ?depth=N query parameter requests a depth-limited projection;
// otherwise a ?params= query parameter holding a JSON object is passed
// as a callable's RPC params. Other query parameters are ignored.
func (h *Handler[R]) GetHandler(w http.ResponseWriter, r *http.Request) {
	path := h.pathFromRequest(r)
	query := r.URL.Query()

	if strings.EqualFold(query.Get("mode"), "subscribe") {
		throttle, _ := strconv.Atoi(query.Get("throttle"))
		if throttle <= 0 {
			throttle = 1
		}
		h.stream.Subscribe(w, r, path, throttle, func(v any) (string, error) {
			b, err := json.Marshal(v)
			return string(b), err
		})
		return
	}

	var params any
	if depth := query.Get("depth"); depth != "" {
		n, err := strconv.Atoi(depth)
		if err != nil {
			http.Error(w, "invalid depth", http.StatusBadRequest)
			return
		}
		params = n
	} else if raw := query.Get("params"); raw != "" {
		var decoded map[string]any
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			http.Error(w, "invalid params", http.StatusBadRequest)
			return
		}
		params = decoded
	}

	value, err := h.store.Get(r.Context(), path, params)
	if err != nil {
		respondWithError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"path": path, "value": value})
}

// PutHandler decodes the request body as a JSON value and sets it at
// path, replacing whatever was there.
func (h *Handler[R]) PutHandler(w http.ResponseWriter, r *http.Request) {
	path := h.pathFromRequest(r)

	var value any
	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.store.Set(r.Context(), path, value); err != nil {
		respondWithError(w, err)
		return
	}
	if username, ok := auth.UsernameFromContext(r.Context()); ok {
		h.log.Info("set", "path", path, "user", username)
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"path": path})
}

// PostHandler appends to the ordered sequence at path. The body is
// {"value": <any>, "limit": <int, optional>}.
func (h *Handler[R]) PostHandler(w http.ResponseWriter, r *http.Request) {
	path := h.pathFromRequest(r)

	var body struct {
		Value any `json:"value"`
		Limit int `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.store.Push(r.Context(), path, body.Value, body.Limit); err != nil {
		respondWithError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"path": path})
}

// PatchHandler invokes the callable leaf at path, decoding the request
// body as its keyword params.
func (h *Handler[R]) PatchHandler(w http.ResponseWriter, r *http.Request) {
	path := h.pathFromRequest(r)
	if path == "" {
		http.Error(w, "PATCH requires a non-root path", http.StatusBadRequest)
		return
	}

	var params map[string]any
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	result, err := h.store.Get(r.Context(), path, params)
	if err != nil {
		respondWithError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"path": path, "result": result})
}

// DeleteHandler clears the leaf at path by setting it to nil.
func (h *Handler[R]) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	path := h.pathFromRequest(r)
	if path == "" {
		http.Error(w, "DELETE requires a non-root path", http.StatusBadRequest)
		return
	}
	if err := h.store.Set(r.Context(), path, nil); err != nil {
		respondWithError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
