package node

import (
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"everstore/internal/storage"
	"everstore/internal/telemetry"
)

const (
	etagKeyPrefix = "etag/"

	maxValueBytes = 1 << 20
)

// etagHandlers serves the ETag side channel.
type etagHandlers struct {
	store  *storage.LocalStore
	logger zerolog.Logger
}

// NewRouter builds the node's HTTP routes. /metrics is mounted only when
// telemetry has been initialized.
func NewRouter(store *storage.LocalStore, logger zerolog.Logger) http.Handler {
	h := &etagHandlers{store: store, logger: logger.With().Str("component", "http").Logger()}

	r := chi.NewRouter()
	r.Route("/etag", func(r chi.Router) {
		r.Get("/{key}", h.handleGet)
		r.Put("/{key}", h.handlePut)
	})

	if metrics := telemetry.GetMetricsHandler(); metrics != nil {
		r.Handle("/metrics", metrics)
	}

	return r
}

// keyParam returns the unescaped {key} path parameter. chi routes on the
// raw path when the request carries escaped characters.
func keyParam(r *http.Request) string {
	key := chi.URLParam(r, "key")
	if r.URL.RawPath == "" {
		return key
	}
	if unescaped, err := url.PathUnescape(key); err == nil {
		return unescaped
	}
	return key
}

func (h *etagHandlers) handleGet(w http.ResponseWriter, r *http.Request) {
	key := keyParam(r)

	rec, found, err := h.store.Get(etagKeyPrefix + key)
	if err != nil {
		h.logger.Error().Err(err).Str("key", key).Msg("ETag read failed")
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.NotFound(w, r)
		return
	}

	tag := strconv.Quote(rec.Value)
	w.Header().Set("ETag", tag)
	w.Header().Set("Cache-Control", "private, no-cache")
	w.Header().Set(storage.ETagHashHeader, storage.ETagHash(rec.Value))

	if r.Header.Get("If-None-Match") == tag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, rec.Value)
}

func (h *etagHandlers) handlePut(w http.ResponseWriter, r *http.Request) {
	key := keyParam(r)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxValueBytes+1))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if len(body) > maxValueBytes {
		http.Error(w, "value too large", http.StatusRequestEntityTooLarge)
		return
	}

	if err := h.store.Put(etagKeyPrefix+key, storage.NewRecord(string(body))); err != nil {
		h.logger.Error().Err(err).Str("key", key).Msg("ETag write failed")
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	h.logger.Debug().Str("key", key).Msg("ETag stored")
	w.WriteHeader(http.StatusNoContent)
}
