package server

import (
	"errors"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/simm/internal/scheduler"
)

// SystemStatusResponse is returned by GET /api/system/status
type SystemStatusResponse struct {
	Status           string   `json:"status"`
	ParamsVersion    string   `json:"params_version"`
	PostingThreshold float64  `json:"posting_threshold"`
	UptimeSeconds    float64  `json:"uptime_seconds"`
	GoVersion        string   `json:"go_version"`
	Goroutines       int      `json:"goroutines"`
	CPUPercent       float64  `json:"cpu_percent"`
	RAMPercent       float64  `json:"ram_percent"`
	HeapMB           float64  `json:"heap_mb"`
	Jobs             []string `json:"jobs"`
}

// DBInfo describes a database file
type DBInfo struct {
	Name   string  `json:"name"`
	Path   string  `json:"path"`
	SizeMB float64 `json:"size_mb"`
	WALMB  float64 `json:"wal_mb"`
}

// SystemHandlers serves process and maintenance endpoints
type SystemHandlers struct {
	cfg     Config
	started time.Time
	log     zerolog.Logger
}

// NewSystemHandlers creates the system handlers
func NewSystemHandlers(cfg Config, started time.Time, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		cfg:     cfg,
		started: started,
		log:     log.With().Str("handler", "system").Logger(),
	}
}

// RegisterRoutes registers system routes
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/system", func(r chi.Router) {
		r.Get("/status", h.HandleSystemStatus)
		r.Get("/database", h.HandleDatabaseStats)
		r.Get("/jobs", h.HandleJobs)
		r.Post("/jobs/{name}", h.HandleTriggerJob)
		r.Get("/backups", h.HandleListBackups)
	})
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := h.getSystemStats()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	response := SystemStatusResponse{
		Status:        "ok",
		ParamsVersion: h.cfg.ParamsVersion,
		UptimeSeconds: time.Since(h.started).Seconds(),
		GoVersion:     runtime.Version(),
		Goroutines:    runtime.NumGoroutine(),
		CPUPercent:    cpuPercent,
		RAMPercent:    ramPercent,
		HeapMB:        float64(ms.HeapAlloc) / 1024 / 1024,
		Jobs:          h.jobNames(),
	}
	if h.cfg.Calculator != nil {
		response.PostingThreshold = h.cfg.Calculator.PostingThreshold()
	}
	writeJSON(w, h.log, http.StatusOK, response)
}

// HandleDatabaseStats handles GET /api/system/database
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	if h.cfg.RunsDB == nil {
		writeJSON(w, h.log, http.StatusOK, []DBInfo{})
		return
	}

	info := DBInfo{
		Name:   h.cfg.RunsDB.Name(),
		Path:   h.cfg.RunsDB.Path(),
		SizeMB: fileSizeMB(h.cfg.RunsDB.Path()),
		WALMB:  fileSizeMB(h.cfg.RunsDB.Path() + "-wal"),
	}
	writeJSON(w, h.log, http.StatusOK, []DBInfo{info})
}

// HandleJobs handles GET /api/system/jobs
func (h *SystemHandlers) HandleJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.log, http.StatusOK, map[string]interface{}{"jobs": h.jobNames()})
}

// HandleTriggerJob handles POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if h.cfg.Scheduler == nil {
		writeJSON(w, h.log, http.StatusServiceUnavailable, map[string]string{"error": "scheduler not running"})
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job trigger")
	err := h.cfg.Scheduler.Trigger(name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		writeJSON(w, h.log, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, scheduler.ErrJobRunning):
		writeJSON(w, h.log, http.StatusConflict, map[string]string{"error": err.Error()})
	case err != nil:
		h.log.Error().Err(err).Str("job", name).Msg("Manual job failed")
		writeJSON(w, h.log, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, h.log, http.StatusOK, map[string]string{
			"status":  "success",
			"message": name + " completed",
		})
	}
}

// HandleListBackups handles GET /api/system/backups
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Backups == nil {
		writeJSON(w, h.log, http.StatusNotFound, map[string]string{"error": "backups are not configured"})
		return
	}
	backups, err := h.cfg.Backups.ListBackups(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list backups")
		writeJSON(w, h.log, http.StatusBadGateway, map[string]string{"error": "failed to list backups"})
		return
	}
	writeJSON(w, h.log, http.StatusOK, backups)
}

func (h *SystemHandlers) jobNames() []string {
	if h.cfg.Scheduler == nil {
		return []string{}
	}
	return h.cfg.Scheduler.Jobs()
}

// getSystemStats returns CPU and RAM usage percentages. CPU is sampled over
// 100ms to keep the call fast.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(cpuPercent) == 0 {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return cpuPercent[0], 0
	}
	return cpuPercent[0], memStat.UsedPercent
}

func fileSizeMB(path string) float64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return float64(info.Size()) / 1024 / 1024
}
