package handler

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/zynqcloud/go-storage/internal/cache"
	"github.com/zynqcloud/go-storage/internal/integrity"
	"github.com/zynqcloud/go-storage/internal/telemetry"
)

// ── Request / response types ──────────────────────────────────────────────────

type InitUploadRequest struct {
	Key string `json:"key"`
}

type InitUploadResponse struct {
	SessionID string `json:"session_id"`
}

type PartUploadResponse struct {
	PartNum int   `json:"part_num"`
	Size    int64 `json:"size"`
}

type CompleteUploadRequest struct {
	// Optional. When provided, the assembled blob's integrity must match or
	// the upload is rejected, preventing silent corruption (spec.md §4.4
	// commit step 2, surfaced here for the chunked-upload path).
	ExpectedIntegrity string `json:"expected_integrity"`
}

type CompleteUploadResponse struct {
	Key          string `json:"key"`
	Integrity    string `json:"integrity"`
	Size         int64  `json:"size"`
	Deduplicated bool   `json:"deduplicated"`
}

// ── Session helpers ───────────────────────────────────────────────────────────

// sessionDir returns the temporary directory used to stage parts for sessionID.
// This lives alongside the cache root's own tmp/ (pathlayout.TmpDir) but under
// a separate ".uploads" name, since part staging predates a write's Integrity
// and so cannot itself be a writer spool.
func (h *Handler) sessionDir(sessionID string) string {
	return filepath.Join(h.cfg.StoragePath, ".uploads", sessionID)
}

func newSessionID() string {
	b := make([]byte, 16)
	rand.Read(b) //nolint:errcheck
	return hex.EncodeToString(b)
}

// ── Handlers ──────────────────────────────────────────────────────────────────

// InitUpload creates a resumable upload session and returns its ID.
//
// POST /v1/uploads
// Body: {"key":"…"}
func (h *Handler) InitUpload(w http.ResponseWriter, r *http.Request) {
	var req InitUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !isValidKey(req.Key) {
		writeError(w, http.StatusBadRequest, "invalid key")
		return
	}

	sessionID := newSessionID()
	dir := h.sessionDir(sessionID)

	if err := os.MkdirAll(dir, 0o750); err != nil {
		h.logger.Error("init upload: mkdir failed", telemetry.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	if err := os.WriteFile(filepath.Join(dir, "key"), []byte(req.Key), 0o640); err != nil {
		os.RemoveAll(dir)
		writeError(w, http.StatusInternalServerError, "failed to write session metadata")
		return
	}

	h.metrics.SessionsCreated.Add(1)
	h.logger.Info("upload session created", "session", sessionID, "key", req.Key)
	writeJSON(w, http.StatusCreated, InitUploadResponse{SessionID: sessionID})
}

// UploadPart streams a single chunk to disk.
// Parts are numbered from 1; up to 10 000 parts are supported (≈50 TB at 5 GB/part).
//
// PUT /v1/uploads/{sessionId}/parts/{partNum}
// Body: raw bytes for this part
func (h *Handler) UploadPart(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	partNumStr := r.PathValue("partNum")

	if !isValidKey(sessionID) {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	partNum, err := strconv.Atoi(partNumStr)
	if err != nil || partNum < 1 || partNum > 10_000 {
		writeError(w, http.StatusBadRequest, "partNum must be an integer 1–10000")
		return
	}

	dir := h.sessionDir(sessionID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	partPath := filepath.Join(dir, fmt.Sprintf("part_%05d", partNum))

	f, err := os.OpenFile(partPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to open part file")
		return
	}

	n, werr := io.Copy(f, r.Body)
	cerr := f.Close()

	if werr != nil || cerr != nil {
		os.Remove(partPath)
		writeError(w, http.StatusInternalServerError, "part write failed")
		return
	}

	writeJSON(w, http.StatusOK, PartUploadResponse{PartNum: partNum, Size: n})
}

// CompleteUpload assembles all uploaded parts in order and commits the
// result to the cache under the session's key, then cleans up the session.
//
// POST /v1/uploads/{sessionId}/complete
// Body (optional): {"expected_integrity":"…"}
func (h *Handler) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	if !isValidKey(sessionID) {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	var req CompleteUploadRequest
	json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck

	dir := h.sessionDir(sessionID)
	keyBytes, err := os.ReadFile(filepath.Join(dir, "key"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	key := strings.TrimSpace(string(keyBytes))

	// Collect and sort part paths lexicographically (part_00001, part_00002, …).
	entries, err := os.ReadDir(dir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read session dir")
		return
	}
	var parts []string
	var totalSize int64
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "part_") {
			parts = append(parts, filepath.Join(dir, e.Name()))
			if info, err := e.Info(); err == nil {
				totalSize += info.Size()
			}
		}
	}
	sort.Strings(parts)

	if len(parts) == 0 {
		writeError(w, http.StatusBadRequest, "no parts uploaded")
		return
	}

	// Acquire an assembly slot: bounded concurrency for the disk-heavy
	// part-concatenation + writer commit below.
	select {
	case h.assemblySem <- struct{}{}:
		defer func() { <-h.assemblySem }()
	default:
		writeError(w, http.StatusServiceUnavailable, "assembly queue full — retry shortly")
		return
	}

	// Stream all parts in sequence through a pipe into the cache's writer —
	// no intermediate buffer accumulates the full file.
	pr, pw := io.Pipe()
	go func() {
		for _, p := range parts {
			f, err := os.Open(p)
			if err != nil {
				pw.CloseWithError(fmt.Errorf("open part %s: %w", p, err))
				return
			}
			if _, err := io.Copy(pw, f); err != nil {
				f.Close()
				pw.CloseWithError(fmt.Errorf("copy part %s: %w", p, err))
				return
			}
			f.Close()
		}
		pw.Close()
	}()

	opts := cache.PutOptions{}
	if req.ExpectedIntegrity != "" {
		sri, err := integrity.Parse(req.ExpectedIntegrity)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid expected_integrity")
			return
		}
		opts.Expected = sri
	}

	sri, isNew, err := h.cache.PutReportNew(key, pr, opts)
	if err != nil {
		h.metrics.UploadsFailed.Add(1)
		h.logger.Error("chunked upload: assemble failed", "key", key, telemetry.Err(err))
		writeError(w, http.StatusInternalServerError, "assemble failed")
		return
	}

	if isNew {
		h.metrics.DedupMisses.Add(1)
	} else {
		h.metrics.DedupHits.Add(1)
	}

	os.RemoveAll(dir) // best-effort cleanup; failures are non-fatal

	h.metrics.SessionsComplete.Add(1)
	h.logger.Info("chunked upload complete",
		"key", key, "parts", len(parts), "integrity", sri.String(), "is_new", isNew)

	writeJSON(w, http.StatusCreated, CompleteUploadResponse{
		Key:          key,
		Integrity:    sri.String(),
		Size:         totalSize,
		Deduplicated: !isNew,
	})
}

// AbortUpload removes an in-progress upload session and all its staged parts.
//
// DELETE /v1/uploads/{sessionId}
func (h *Handler) AbortUpload(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	if !isValidKey(sessionID) {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	os.RemoveAll(h.sessionDir(sessionID)) //nolint:errcheck
	h.metrics.SessionsAborted.Add(1)
	w.WriteHeader(http.StatusNoContent)
}
