package health

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SebastianMertens-sebmer/degiro-connector/internal/httputil"
)

type Handler struct {
	pool        *pgxpool.Pool
	startedAt   time.Time
	authMode    string
	httpAddr    string
	internalTok string
}

// NewHandler wires the health endpoints. The pool may be nil; the
// watchlist database is optional and its absence is not a failure.
func NewHandler(pool *pgxpool.Pool, startedAt time.Time, authMode, httpAddr, internalToken string) *Handler {
	start := startedAt.UTC()
	if start.IsZero() {
		start = time.Now().UTC()
	}
	return &Handler{
		pool:        pool,
		startedAt:   start,
		authMode:    strings.TrimSpace(authMode),
		httpAddr:    strings.TrimSpace(httpAddr),
		internalTok: strings.TrimSpace(internalToken),
	}
}

type liveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	UptimeSec int64  `json:"uptime_sec"`
}

type readinessResponse struct {
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
	UptimeSec int64   `json:"uptime_sec"`
	Database  dbStats `json:"database"`
}

type dbStats struct {
	Configured bool      `json:"configured"`
	Reachable  bool      `json:"reachable"`
	PingMs     int64     `json:"ping_ms"`
	Error      string    `json:"error,omitempty"`
	Pool       poolStats `json:"pool,omitempty"`
}

type poolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
	AcquireCount  int64 `json:"acquire_count"`
}

type fullResponse struct {
	Status    string       `json:"status"`
	Timestamp string       `json:"timestamp"`
	UptimeSec int64        `json:"uptime_sec"`
	HTTPAddr  string       `json:"http_addr"`
	AuthMode  string       `json:"auth_mode"`
	PID       int          `json:"pid"`
	Hostname  string       `json:"hostname"`
	Runtime   runtimeStats `json:"runtime"`
	Memory    memoryStats  `json:"memory"`
	Database  dbStats      `json:"database"`
	Version   string       `json:"version,omitempty"`
}

type runtimeStats struct {
	GoVersion  string `json:"go_version"`
	Goroutines int    `json:"goroutines"`
	GoMaxProcs int    `json:"gomaxprocs"`
	NumGC      uint32 `json:"num_gc"`
}

type memoryStats struct {
	AllocBytes     uint64 `json:"alloc_bytes"`
	HeapInuseBytes uint64 `json:"heap_inuse_bytes"`
	SysBytes       uint64 `json:"sys_bytes"`
	HeapObjects    uint64 `json:"heap_objects"`
}

func (h *Handler) uptime(now time.Time) int64 {
	uptime := now.Sub(h.startedAt)
	if uptime < 0 {
		return 0
	}
	return int64(uptime.Seconds())
}

func secureTokenEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (h *Handler) requireInternalToken(w http.ResponseWriter, r *http.Request) bool {
	if h.internalTok == "" {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, httputil.ErrorResponse{Error: "internal token is not configured"})
		return false
	}
	provided := strings.TrimSpace(r.Header.Get("X-Internal-Token"))
	if !secureTokenEqual(provided, h.internalTok) {
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "invalid internal token"})
		return false
	}
	return true
}

func (h *Handler) collectDB(ctx context.Context, includePool bool) dbStats {
	if h.pool == nil {
		return dbStats{Configured: false}
	}
	stats := dbStats{Configured: true}
	if includePool {
		stat := h.pool.Stat()
		stats.Pool = poolStats{
			TotalConns:    stat.TotalConns(),
			IdleConns:     stat.IdleConns(),
			AcquiredConns: stat.AcquiredConns(),
			MaxConns:      stat.MaxConns(),
			AcquireCount:  stat.AcquireCount(),
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	pingStart := time.Now()
	if err := h.pool.Ping(pingCtx); err != nil {
		stats.Error = err.Error()
	} else {
		stats.Reachable = true
	}
	stats.PingMs = time.Since(pingStart).Milliseconds()
	return stats
}

// Live reports only that the process is up.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	httputil.WriteJSON(w, http.StatusOK, liveResponse{
		Status:    "ok",
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: h.uptime(now),
	})
}

// Ready checks the watchlist database when one is configured. A
// connector running without a database is still ready.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	db := h.collectDB(r.Context(), false)
	status := "ok"
	httpStatus := http.StatusOK
	if db.Configured && !db.Reachable {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, httpStatus, readinessResponse{
		Status:    status,
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: h.uptime(now),
		Database:  db,
	})
}

// Full returns process diagnostics and is protected by X-Internal-Token.
func (h *Handler) Full(w http.ResponseWriter, r *http.Request) {
	if !h.requireInternalToken(w, r) {
		return
	}
	now := time.Now().UTC()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	db := h.collectDB(r.Context(), true)
	status := "ok"
	httpStatus := http.StatusOK
	if db.Configured && !db.Reachable {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	version := ""
	if info, ok := debug.ReadBuildInfo(); ok && info != nil {
		version = strings.TrimSpace(info.Main.Version)
	}
	host, _ := os.Hostname()

	httputil.WriteJSON(w, httpStatus, fullResponse{
		Status:    status,
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: h.uptime(now),
		HTTPAddr:  h.httpAddr,
		AuthMode:  h.authMode,
		PID:       os.Getpid(),
		Hostname:  host,
		Runtime: runtimeStats{
			GoVersion:  runtime.Version(),
			Goroutines: runtime.NumGoroutine(),
			GoMaxProcs: runtime.GOMAXPROCS(0),
			NumGC:      mem.NumGC,
		},
		Memory: memoryStats{
			AllocBytes:     mem.Alloc,
			HeapInuseBytes: mem.HeapInuse,
			SysBytes:       mem.Sys,
			HeapObjects:    mem.HeapObjects,
		},
		Database: db,
		Version:  version,
	})
}

// Metrics returns basic Prometheus-compatible metrics and is protected
// by X-Internal-Token.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	if !h.requireInternalToken(w, r) {
		return
	}
	now := time.Now().UTC()
	db := h.collectDB(r.Context(), true)
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	dbUp := 0
	if db.Reachable {
		dbUp = 1
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "# HELP connector_up Service process is running.\n")
	_, _ = fmt.Fprintf(w, "# TYPE connector_up gauge\n")
	_, _ = fmt.Fprintf(w, "connector_up 1\n")
	_, _ = fmt.Fprintf(w, "connector_uptime_seconds %d\n", h.uptime(now))
	_, _ = fmt.Fprintf(w, "connector_db_up %d\n", dbUp)
	_, _ = fmt.Fprintf(w, "connector_db_ping_milliseconds %d\n", db.PingMs)
	_, _ = fmt.Fprintf(w, "connector_go_goroutines %d\n", runtime.NumGoroutine())
	_, _ = fmt.Fprintf(w, "connector_go_mem_alloc_bytes %d\n", mem.Alloc)
	_, _ = fmt.Fprintf(w, "connector_go_mem_heap_inuse_bytes %d\n", mem.HeapInuse)
	_, _ = fmt.Fprintf(w, "connector_go_mem_sys_bytes %d\n", mem.Sys)
	_, _ = fmt.Fprintf(w, "connector_go_gc_count %d\n", mem.NumGC)
	_, _ = fmt.Fprintf(w, "connector_db_pool_total_conns %d\n", db.Pool.TotalConns)
	_, _ = fmt.Fprintf(w, "connector_db_pool_idle_conns %d\n", db.Pool.IdleConns)
	_, _ = fmt.Fprintf(w, "connector_db_pool_acquired_conns %d\n", db.Pool.AcquiredConns)
}
