package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/zefau/huesync/internal/bridges/hue"
)

// StatusResponse represents the complete status response.
type StatusResponse struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Runtime       RuntimeStats      `json:"runtime"`
	Bridge        hue.BridgeMetrics `json:"bridge"`
	Tree          TreeStats         `json:"tree"`
}

// RuntimeStats contains Go runtime statistics.
type RuntimeStats struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// TreeStats contains state tree statistics.
type TreeStats struct {
	Nodes int `json:"nodes"`
}

// handleStatus returns a point-in-time view of the sync engine: bridge
// connectivity, sync state, queue depth, light aggregates and tree size.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	writeJSON(w, http.StatusOK, StatusResponse{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeStats{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Bridge: s.bridge.Metrics(),
		Tree:   TreeStats{Nodes: s.store.Len()},
	})
}
