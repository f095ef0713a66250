package daemon

import (
	"encoding/json"
	"net/http"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/version"
)

// HealthStatus represents the overall health of the daemon.
type HealthStatus string

const (
	HealthStatusHealthy  HealthStatus = "healthy"
	HealthStatusDegraded HealthStatus = "degraded"
)

// HealthCheck represents a single health check.
type HealthCheck struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// HealthResponse represents the complete health check response.
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Version   string        `json:"version"`
	LastBuild *Job          `json:"last_build,omitempty"`
	Checks    []HealthCheck `json:"checks"`
}

// PerformHealthChecks reports on the build queue and the NATS connection.
func (d *Daemon) PerformHealthChecks() *HealthResponse {
	resp := &HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now(),
		Uptime:    time.Since(d.started).Round(time.Second).String(),
		Version:   version.Version,
	}

	queueCheck := HealthCheck{Name: "build_queue", Status: HealthStatusHealthy}
	if last, ok := d.queue.LastCompleted(); ok {
		resp.LastBuild = &last
		if last.Status == JobFailed {
			queueCheck.Status = HealthStatusDegraded
			queueCheck.Message = "last build failed: " + last.Error
		}
	} else {
		queueCheck.Message = "no build completed yet"
	}
	resp.Checks = append(resp.Checks, queueCheck)

	if bridge := d.natsBridge(); bridge != nil {
		natsCheck := HealthCheck{Name: "nats", Status: HealthStatusHealthy}
		if !bridge.Connected() {
			natsCheck.Status = HealthStatusDegraded
			natsCheck.Message = "disconnected"
		}
		resp.Checks = append(resp.Checks, natsCheck)
	}

	for _, c := range resp.Checks {
		if c.Status != HealthStatusHealthy {
			resp.Status = HealthStatusDegraded
		}
	}
	return resp
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(d.PerformHealthChecks())
}
