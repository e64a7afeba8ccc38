package server

import (
	"context"
	"net/http"
	"time"

	"github.com/aristath/yieldfund/internal/database"
	"github.com/aristath/yieldfund/internal/server/respond"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemStatusResponse is returned by GET /api/system/status.
type SystemStatusResponse struct {
	Status      string         `json:"status"`
	Database    DatabaseStatus `json:"database"`
	UptimeHours float64        `json:"uptime_hours"`
	CPUPercent  float64        `json:"cpu_percent"`
	RAMPercent  float64        `json:"ram_percent"`
}

// DatabaseStatus reports reachability and size of fund.db.
type DatabaseStatus struct {
	OK           bool   `json:"ok"`
	Error        string `json:"error,omitempty"`
	SizeBytes    int64  `json:"size_bytes"`
	WALSizeBytes int64  `json:"wal_size_bytes"`
}

// SystemHandlers serves health and host status.
type SystemHandlers struct {
	db          *database.DB
	startupTime time.Time
	log         zerolog.Logger
}

// NewSystemHandlers creates the system handlers.
func NewSystemHandlers(db *database.DB, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		db:          db,
		startupTime: time.Now(),
		log:         log.With().Str("handler", "system").Logger(),
	}
}

// HandleHealth is the liveness probe.
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, h.log, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "yieldfund",
	})
}

// HandleSystemStatus pings the database and samples host load. Responds 503
// when the database is unreachable.
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := SystemStatusResponse{
		Status:      "healthy",
		UptimeHours: time.Since(h.startupTime).Hours(),
	}

	if err := h.db.QuickCheck(ctx); err != nil {
		h.log.Error().Err(err).Msg("Database ping failed")
		response.Status = "degraded"
		response.Database.Error = err.Error()
	} else {
		response.Database.OK = true
		if stats, err := h.db.GetStats(ctx); err == nil {
			response.Database.SizeBytes = stats.SizeBytes
			response.Database.WALSizeBytes = stats.WALSizeBytes
		}
	}

	response.CPUPercent, response.RAMPercent = h.getSystemStats(ctx)

	status := http.StatusOK
	if !response.Database.OK {
		status = http.StatusServiceUnavailable
	}
	respond.Data(w, h.log, status, response)
}

// getSystemStats samples CPU over 100ms and reads memory usage.
func (h *SystemHandlers) getSystemStats(ctx context.Context) (float64, float64) {
	var cpuPercent float64
	if values, err := cpu.PercentWithContext(ctx, 100*time.Millisecond, false); err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
	} else if len(values) > 0 {
		cpuPercent = values[0]
	}

	memStat, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return cpuPercent, 0
	}
	return cpuPercent, memStat.UsedPercent
}
