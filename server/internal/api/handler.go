package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ludisdb/ludis/pkg/replpb"
	"github.com/ludisdb/ludis/server/internal/store"
)

const (
	defaultScanLimit = 100
	maxScanLimit     = 10000

	// maxValueBytes caps PUT and publish request bodies.
	maxValueBytes = 1 << 20
)

// Replicator receives every write accepted through the API.
// *shipper.Shipper satisfies it.
type Replicator interface {
	Ship(w replpb.WriteRequest)
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	store *store.Store
	repl  Replicator
	mux   *http.ServeMux
}

// New creates a Handler wired to st and registers all routes. repl may be nil
// when replication is disabled.
func New(st *store.Store, repl Replicator) http.Handler {
	h := &Handler{store: st, repl: repl, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/keys", h.keys)
	h.mux.HandleFunc("/api/v1/kv/", h.kv) // subtree, extracts {key}
	h.mux.HandleFunc("/api/v1/scan", h.scan)
	h.mux.HandleFunc("/api/v1/publish/", h.publish)
	h.mux.HandleFunc("/api/v1/stats", h.stats)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Shards: h.store.ShardCount(),
		Keys:   h.store.Len(),
	})
}

// keys returns GET /api/v1/keys?prefix=p.
func (h *Handler) keys(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var prefix []byte
	if p := r.URL.Query().Get("prefix"); p != "" {
		prefix = []byte(p)
	}

	ks := h.store.Keys(prefix)
	out := KeysResponse{Keys: make([]string, 0, len(ks))}
	for _, k := range ks {
		out.Keys = append(out.Keys, string(k))
	}
	jsonResp(w, http.StatusOK, out)
}

// kv dispatches GET, PUT and DELETE on /api/v1/kv/{key}.
func (h *Handler) kv(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/api/v1/kv/")
	if key == "" {
		jsonErr(w, http.StatusBadRequest, "key is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getKey(w, []byte(key))
	case http.MethodPut:
		h.putKey(w, r, []byte(key))
	case http.MethodDelete:
		jsonResp(w, http.StatusOK, DeleteResponse{Deleted: h.store.Delete([]byte(key))})
	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) getKey(w http.ResponseWriter, key []byte) {
	v, dl, ok := h.store.GetWithDeadline(key)
	if !ok {
		jsonErr(w, http.StatusNotFound, "key not found")
		return
	}
	jsonResp(w, http.StatusOK, EntryResponse{
		Key:       string(key),
		Value:     string(v),
		ExpiresAt: formatDeadline(dl),
	})
}

// putKey handles PUT /api/v1/kv/{key}?ttl=30s. The request body is the value.
func (h *Handler) putKey(w http.ResponseWriter, r *http.Request, key []byte) {
	var ttl time.Duration
	if s := r.URL.Query().Get("ttl"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d < 0 {
			jsonErr(w, http.StatusBadRequest, "ttl must be a non-negative duration")
			return
		}
		ttl = d
	}

	value, ok := readBody(w, r)
	if !ok {
		return
	}

	// The stored deadline is the one shipped and reported.
	deadline := h.store.Set(key, value, ttl)

	if h.repl != nil {
		wr := replpb.WriteRequest{Key: key, Value: value}
		if !deadline.IsZero() {
			dl := deadline.UTC()
			wr.Deadline = &dl
		}
		h.repl.Ship(wr)
	}

	jsonResp(w, http.StatusOK, SetResponse{Key: string(key), ExpiresAt: formatDeadline(deadline)})
}

// scan returns GET /api/v1/scan?start=p&limit=n, entries whose keys start
// with p in per-shard key order.
func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := defaultScanLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxScanLimit {
			jsonErr(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxScanLimit))
			return
		}
		limit = n
	}

	var it *store.Iterator
	if start := r.URL.Query().Get("start"); start != "" {
		it = h.store.Range([]byte(start))
	} else {
		it = h.store.Iter()
	}

	out := ScanResponse{Entries: make([]EntryResponse, 0)}
	for it.Next() {
		if len(out.Entries) == limit {
			out.Truncated = true
			break
		}
		shard := it.Shard()
		out.Entries = append(out.Entries, EntryResponse{
			Key:       string(it.Key()),
			Value:     string(it.Value()),
			ExpiresAt: formatDeadline(it.Entry().ExpiresAt),
			Shard:     &shard,
		})
	}
	jsonResp(w, http.StatusOK, out)
}

// publish handles POST /api/v1/publish/{key}. The request body is the message.
func (h *Handler) publish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/api/v1/publish/")
	if key == "" {
		jsonErr(w, http.StatusBadRequest, "key is required")
		return
	}

	msg, ok := readBody(w, r)
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, PublishResponse{Receivers: h.store.Publish([]byte(key), msg)})
}

// stats returns GET /api/v1/stats, per-shard statistics and totals.
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.store.Stats())
}

// --- helpers ----------------------------------------------------------------

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxValueBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonErr(w, http.StatusRequestEntityTooLarge, "body exceeds "+strconv.Itoa(maxValueBytes)+" bytes")
			return nil, false
		}
		jsonErr(w, http.StatusBadRequest, "read body: "+err.Error())
		return nil, false
	}
	return body, true
}

func formatDeadline(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
