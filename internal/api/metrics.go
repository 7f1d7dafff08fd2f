package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	Link          *LinkMetrics   `json:"link,omitempty"`
	Scripts       ScriptMetrics  `json:"scripts"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int    `json:"connected_clients"`
	DroppedEvents    uint64 `json:"dropped_events"`
}

// LinkMetrics contains message broker statistics.
type LinkMetrics struct {
	Connected bool `json:"connected"`
}

// ScriptMetrics counts registered scripts by state.
type ScriptMetrics struct {
	Total   int            `json:"total"`
	ByState map[string]int `json:"by_state"`
	Runs    int            `json:"runs"`
}

// handleMetrics returns process and robot metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
			DroppedEvents:    s.hub.Dropped(),
		},
		Scripts: ScriptMetrics{ByState: make(map[string]int)},
	}

	if s.link != nil {
		metrics.Link = &LinkMetrics{Connected: s.link.IsConnected()}
	}

	for _, script := range s.robot.Snapshot().Scripts {
		metrics.Scripts.Total++
		metrics.Scripts.ByState[script.State]++
		metrics.Scripts.Runs += script.Runs
	}

	writeJSON(w, http.StatusOK, metrics)
}
