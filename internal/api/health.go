package api

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/boreal-chat/boreal/internal/api/apiutil"
)

// ServiceHealth represents the health status of an individual service dependency.
type ServiceHealth struct {
	Status  string      `json:"status"` // "healthy", "unhealthy", "disabled"
	Latency string      `json:"latency,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// DeepHealthResponse is the response body for the deep health check endpoint.
type DeepHealthResponse struct {
	Status    string                   `json:"status"` // "ok", "degraded", "unhealthy"
	Version   string                   `json:"version"`
	Uptime    string                   `json:"uptime"`
	Timestamp string                   `json:"timestamp"`
	Services  map[string]ServiceHealth `json:"services"`
	System    SystemInfo               `json:"system"`
}

// SystemInfo contains runtime information about the Boreal process.
type SystemInfo struct {
	GoVersion    string  `json:"go_version"`
	NumGoroutine int     `json:"num_goroutine"`
	NumCPU       int     `json:"num_cpu"`
	MemAllocMB   float64 `json:"mem_alloc_mb"`
	MemSysMB     float64 `json:"mem_sys_mb"`
	MemGCCycles  uint32  `json:"mem_gc_cycles"`
}

// handleHealthCheck is a cheap liveness probe: it reports healthy as long
// as the process is serving requests, without touching any dependency.
//
// GET /health
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	apiutil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDeepHealthCheck checks every service dependency this instance
// actually has wired: PostgreSQL, S3-compatible avatar storage, and the
// voice SFU. Each check runs with its own timeout and reports its
// latency.
//
// GET /health/deep
//
// Response: 200 if every service is healthy, 503 if any is degraded.
func (s *Server) handleDeepHealthCheck(w http.ResponseWriter, r *http.Request) {
	services := make(map[string]ServiceHealth)
	overallStatus := "ok"

	checkTimeout := 5 * time.Second

	dbHealth := s.checkServiceHealth("database", checkTimeout, func(ctx context.Context) error {
		return s.DB.HealthCheck(ctx)
	})
	services["database"] = dbHealth
	if dbHealth.Status == "unhealthy" {
		overallStatus = "unhealthy"
	}
	if s.DB != nil && s.DB.Pool != nil {
		stat := s.DB.Pool.Stat()
		dbSvc := services["database"]
		dbSvc.Details = map[string]interface{}{
			"total_conns":    stat.TotalConns(),
			"idle_conns":     stat.IdleConns(),
			"acquired_conns": stat.AcquiredConns(),
			"max_conns":      stat.MaxConns(),
		}
		services["database"] = dbSvc
	}

	if s.Media != nil {
		storageHealth := s.checkServiceHealth("storage", checkTimeout, func(ctx context.Context) error {
			return s.Media.HealthCheck(ctx)
		})
		services["storage"] = storageHealth
		if storageHealth.Status == "unhealthy" && overallStatus == "ok" {
			overallStatus = "degraded"
		}
	} else {
		services["storage"] = ServiceHealth{Status: "disabled"}
	}

	if s.Voice != nil {
		services["voice"] = ServiceHealth{Status: "healthy"}
	} else {
		services["voice"] = ServiceHealth{Status: "disabled"}
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response := DeepHealthResponse{
		Status:    overallStatus,
		Version:   s.Version,
		Uptime:    time.Since(s.StartedAt).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  services,
		System: SystemInfo{
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			NumCPU:       runtime.NumCPU(),
			MemAllocMB:   float64(memStats.Alloc) / 1024 / 1024,
			MemSysMB:     float64(memStats.Sys) / 1024 / 1024,
			MemGCCycles:  memStats.NumGC,
		},
	}

	httpStatus := http.StatusOK
	if overallStatus != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}

	apiutil.WriteJSON(w, httpStatus, response)
}

// checkServiceHealth runs a health check function with a timeout and
// returns its status, latency, and any error.
func (s *Server) checkServiceHealth(name string, timeout time.Duration, check func(context.Context) error) ServiceHealth {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	err := check(ctx)
	latency := time.Since(start)

	if err != nil {
		return ServiceHealth{
			Status:  "unhealthy",
			Latency: latency.String(),
			Error:   fmt.Sprintf("%s health check failed: %v", name, err),
		}
	}

	return ServiceHealth{
		Status:  "healthy",
		Latency: latency.String(),
	}
}
