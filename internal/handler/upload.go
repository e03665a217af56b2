package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/zynqcloud/go-storage/internal/cache"
	"github.com/zynqcloud/go-storage/internal/cacheerr"
	"github.com/zynqcloud/go-storage/internal/integrity"
	"github.com/zynqcloud/go-storage/internal/telemetry"
)

// PutResponse is returned after a successful single-object write.
type PutResponse struct {
	Key          string `json:"key"`
	Integrity    string `json:"integrity"`
	Deduplicated bool   `json:"deduplicated"`
}

// Put handles a streaming single-object write, content-addressing and
// indexing the body under {key}.
//
// The request body is piped directly through the cache's writer — the full
// object is never held in memory (spec.md §4.4's streaming contract).
//
// POST /v1/objects/{key}
// Optional header: X-Expected-Integrity — an SRI-style token; the write is
// rejected if the computed digest does not match (spec.md §4.4 commit step 2).
func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	h.metrics.UploadsTotal.Add(1)

	key := r.PathValue("key")
	if !isValidKey(key) {
		h.metrics.UploadsFailed.Add(1)
		writeError(w, http.StatusBadRequest, "invalid key")
		return
	}

	opts := cache.PutOptions{}
	if r.ContentLength >= 0 {
		opts.Size = r.ContentLength
		opts.HasSize = true
	}
	if expected := r.Header.Get("X-Expected-Integrity"); expected != "" {
		sri, err := integrity.Parse(expected)
		if err != nil {
			h.metrics.UploadsFailed.Add(1)
			writeError(w, http.StatusBadRequest, "invalid X-Expected-Integrity")
			return
		}
		opts.Expected = sri
	}

	sri, isNew, err := h.cache.PutReportNew(key, r.Body, opts)
	if err != nil {
		h.metrics.UploadsFailed.Add(1)
		h.logger.Error("put: write failed", "key", key, telemetry.Err(err))
		writeError(w, http.StatusInternalServerError, "storage write failed")
		return
	}

	if isNew {
		h.metrics.DedupMisses.Add(1)
	} else {
		h.metrics.DedupHits.Add(1)
	}

	h.logger.Info("put complete", "key", key, "integrity", sri.String(), "is_new", isNew)
	writeJSON(w, http.StatusCreated, PutResponse{
		Key:          key,
		Integrity:    sri.String(),
		Deduplicated: !isNew,
	})
}

// Get streams key's verified contents back to the caller without loading it
// into memory.
//
// GET /v1/objects/{key}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !isValidKey(key) {
		writeError(w, http.StatusBadRequest, "invalid key")
		return
	}

	rc, entry, err := h.cache.Get(key)
	if err != nil {
		if errors.Is(err, cacheerr.ErrNotFound) {
			writeError(w, http.StatusNotFound, "object not found")
			return
		}
		h.logger.Error("get: open failed", "key", key, telemetry.Err(err))
		writeError(w, http.StatusInternalServerError, "read failed")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Integrity", entry.Integrity.String())
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Error("get: copy failed", "key", key, telemetry.Err(err))
		return
	}
	if _, err := rc.Finalize(); err != nil {
		h.logger.Error("get: verification failed after streaming", "key", key, telemetry.Err(err))
	}
}

// Remove tombstones key. The underlying blob is left in place, whether or
// not another live key still references it (spec.md §4.3 rm survive semantics).
//
// DELETE /v1/objects/{key}
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !isValidKey(key) {
		writeError(w, http.StatusBadRequest, "invalid key")
		return
	}

	if err := h.cache.RemoveEntry(key); err != nil {
		h.logger.Error("remove failed", "key", key, telemetry.Err(err))
		writeError(w, http.StatusInternalServerError, "remove failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List returns every live key currently in the index (spec.md §4.3 scan,
// exposed publicly per SPEC_FULL.md's ls supplement).
//
// GET /v1/objects
func (h *Handler) List(w http.ResponseWriter, _ *http.Request) {
	entries, err := h.cache.List()
	if err != nil {
		h.logger.Error("list failed", telemetry.Err(err))
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	type item struct {
		Key       string `json:"key"`
		Integrity string `json:"integrity"`
		Size      uint64 `json:"size"`
	}
	out := make([]item, 0, len(entries))
	for _, e := range entries {
		out = append(out, item{Key: e.Key, Integrity: e.Integrity.String(), Size: e.Size})
	}
	writeJSON(w, http.StatusOK, out)
}

// isValidKey rejects empty values and obvious path-traversal attempts —
// keys are hashed through pathlayout.BucketPath, so traversal cannot escape
// the index tree, but rejecting it early gives callers a clearer error.
func isValidKey(key string) bool {
	if key == "" || len(key) >= 4096 {
		return false
	}
	for _, part := range strings.FieldsFunc(key, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return false
		}
	}
	return true
}
