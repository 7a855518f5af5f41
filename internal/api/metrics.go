package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-lifx/internal/infrastructure/mqtt"
)

// SystemMetrics is the JSON snapshot served at /api/v1/system/metrics.
type SystemMetrics struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Runtime       RuntimeMetrics    `json:"runtime"`
	WebSocket     WSMetrics         `json:"websocket"`
	Lights        LightMetrics      `json:"lights"`
	Correlation   CorrelationMetric `json:"correlation"`
	UDP           *UDPMetrics       `json:"udp,omitempty"`
	MQTT          *MQTTMetrics      `json:"mqtt,omitempty"`
	Database      *DatabaseMetrics  `json:"database,omitempty"`
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
	ConnectedClients int `json:"connected_clients"`
}

// LightMetrics summarises the light records.
type LightMetrics struct {
	Total         int    `json:"total"`
	Reachable     int    `json:"reachable"`
	FramesHandled uint64 `json:"frames_handled"`
}

// CorrelationMetric summarises request tracking.
type CorrelationMetric struct {
	Sent      uint64 `json:"sent"`
	Retries   uint64 `json:"retries"`
	Timeouts  uint64 `json:"timeouts"`
	Completed uint64 `json:"completed"`
	Pending   int    `json:"pending"`
}

// UDPMetrics contains socket counters.
type UDPMetrics struct {
	Connected     bool   `json:"connected"`
	FramesRx      uint64 `json:"frames_rx"`
	FramesTx      uint64 `json:"frames_tx"`
	FramesDropped uint64 `json:"frames_dropped"`
	DecodeErrors  uint64 `json:"decode_errors"`
	Reconnects    uint64 `json:"reconnects"`
}

// MQTTMetrics contains the broker link state and traffic counters.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
	mqtt.Stats
}

// DatabaseMetrics contains SQLite connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

const bytesPerMB = 1024 * 1024

// handleSystemMetrics returns a JSON summary of the process.
func (s *Server) handleSystemMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	st := s.lights.Stats()
	m := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / bytesPerMB,
			MemoryTotalMB: float64(memStats.TotalAlloc) / bytesPerMB,
			NumGC:         memStats.NumGC,
		},
		Lights: LightMetrics{
			Total:         st.Lights,
			Reachable:     st.Reachable,
			FramesHandled: st.FramesHandled,
		},
		Correlation: CorrelationMetric{
			Sent:      st.Correlation.Sent,
			Retries:   st.Correlation.Retries,
			Timeouts:  st.Correlation.Timeouts,
			Completed: st.Correlation.Completed,
			Pending:   st.Correlation.Pending,
		},
	}

	if hub := s.Hub(); hub != nil {
		m.WebSocket.ConnectedClients = hub.ClientCount()
	}

	if s.transport != nil {
		ts := s.transport.Stats()
		m.UDP = &UDPMetrics{
			Connected:     ts.Connected,
			FramesRx:      ts.FramesRx,
			FramesTx:      ts.FramesTx,
			FramesDropped: ts.FramesDropped,
			DecodeErrors:  ts.DecodeErrors,
			Reconnects:    ts.ReconnectsTotal,
		}
	}

	if s.broker != nil {
		m.MQTT = &MQTTMetrics{Connected: s.broker.IsConnected(), Stats: s.broker.Stats()}
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		m.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, m)
}
