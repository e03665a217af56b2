package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/zynqcloud/go-storage/internal/cache"
	"github.com/zynqcloud/go-storage/internal/config"
	"github.com/zynqcloud/go-storage/internal/diskstats"
	"github.com/zynqcloud/go-storage/internal/middleware"
)

// Handler holds shared dependencies for all HTTP handlers.
type Handler struct {
	cfg         *config.Config
	cache       *cache.Cache
	logger      *slog.Logger
	metrics     *Metrics
	assemblySem chan struct{} // bounded slot pool for CompleteUpload disk I/O
}

// New registers all routes and returns the root http.Handler.
// Uses Go 1.22 method+path pattern syntax — no external router needed.
//
// Middleware stack (outer → inner):
//
//	RequestLog → ServeMux → ServiceToken auth → UploadLimiter → handler
func New(cfg *config.Config, c *cache.Cache, logger *slog.Logger) http.Handler {
	// Assembly semaphore: cap concurrent CompleteUpload workers to prevent
	// disk thrashing when many sessions finish simultaneously.
	assemblySem := make(chan struct{}, cfg.MaxAssemblyWorkers)

	h := &Handler{
		cfg:         cfg,
		cache:       c,
		logger:      logger,
		metrics:     &Metrics{},
		assemblySem: assemblySem,
	}

	auth := middleware.ServiceToken(cfg.ServiceToken)
	logMW := middleware.RequestLog(logger)
	limiter := middleware.NewUploadLimiter(cfg.MaxConcurrentUploads)

	mux := http.NewServeMux()

	// ── Single-put streaming upload / verified read / remove ────────────────
	// POST   /v1/objects/{key}   body: raw bytes, content-addressed + indexed under key
	// GET    /v1/objects/{key}   streams the verified blob back
	// DELETE /v1/objects/{key}   tombstones key (blob is kept)
	mux.Handle("POST /v1/objects/{key}",
		auth(limiter.Limit(http.HandlerFunc(h.Put))))
	mux.Handle("GET /v1/objects/{key}",
		auth(http.HandlerFunc(h.Get)))
	mux.Handle("DELETE /v1/objects/{key}",
		auth(http.HandlerFunc(h.Remove)))

	// ── Listing ───────────────────────────────────────────────────────────────
	mux.Handle("GET /v1/objects",
		auth(http.HandlerFunc(h.List)))

	// ── Resumable / chunked upload ───────────────────────────────────────────
	// POST   /v1/uploads                        → initiate session
	// PUT    /v1/uploads/{id}/parts/{n}          → stream part n (rate-limited)
	// POST   /v1/uploads/{id}/complete           → assemble + finalise
	// DELETE /v1/uploads/{id}                    → abort
	mux.Handle("POST /v1/uploads",
		auth(http.HandlerFunc(h.InitUpload)))
	mux.Handle("PUT /v1/uploads/{sessionId}/parts/{partNum}",
		auth(limiter.Limit(http.HandlerFunc(h.UploadPart))))
	mux.Handle("POST /v1/uploads/{sessionId}/complete",
		auth(http.HandlerFunc(h.CompleteUpload)))
	mux.Handle("DELETE /v1/uploads/{sessionId}",
		auth(http.HandlerFunc(h.AbortUpload)))

	// ── Observability ─────────────────────────────────────────────────────────
	//
	// GET /health        — liveness probe: fast 200 while the process is alive.
	//                      K8s restarts the pod if this returns non-2xx.
	//
	// GET /healthz/ready — readiness probe: checks disk space and storage dir.
	//                      K8s stops routing traffic (not restart) on 503.
	//                      Protected by service token so internal state is not
	//                      leaked to the public internet.
	//
	// GET /metrics       — atomic process counters as flat JSON.
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /healthz/ready",
		auth(http.HandlerFunc(h.Readiness)))
	mux.Handle("GET /metrics",
		auth(h.metrics.metricsHandler(limiter.Active)))

	// Wrap the entire mux with request logging so every route — including
	// auth failures and 503s from the limiter — gets an access log entry.
	return logMW(mux)
}

// Readiness is the Kubernetes readiness probe handler.
// Returns 200 when the service can accept uploads; 503 when it cannot.
// Checks performed:
//  1. Cache root is accessible (os.Stat)
//  2. Free disk space ≥ cfg.MinFreeBytes (Linux only via syscall.Statfs)
func (h *Handler) Readiness(w http.ResponseWriter, _ *http.Request) {
	type check struct {
		Name string `json:"name"`
		OK   bool   `json:"ok"`
		Msg  string `json:"msg,omitempty"`
	}
	var checks []check
	allOK := true

	if _, err := os.Stat(h.cache.Root); err != nil {
		checks = append(checks, check{"storage_accessible", false, "stat failed"})
		allOK = false
	} else {
		checks = append(checks, check{"storage_accessible", true, ""})
	}

	// Disk space check: (0, 0) means "unavailable" — skip rather than
	// false-alarm (diskstats.Stats is a no-op returning zeros off Linux).
	if h.cfg.MinFreeBytes > 0 {
		avail, total := diskstats.Stats(h.cache.Root)
		if total > 0 {
			if avail < uint64(h.cfg.MinFreeBytes) {
				checks = append(checks, check{
					"disk_space", false,
					mbStr(avail) + " MB free — need " + mbStr(uint64(h.cfg.MinFreeBytes)) + " MB",
				})
				allOK = false
			} else {
				checks = append(checks, check{
					"disk_space", true,
					mbStr(avail) + " MB free of " + mbStr(total) + " MB",
				})
			}
		}
	}

	status := http.StatusOK
	if !allOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"ready": allOK, "checks": checks})
}

func mbStr(b uint64) string {
	return strconv.FormatUint(b>>20, 10)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
