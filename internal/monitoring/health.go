package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

const maxRecentErrors = 10

// HealthChecker reports the state of the jobs started by this process.
type HealthChecker struct {
	mu           sync.RWMutex
	startTime    time.Time
	running      int
	completed    int
	failed       int
	lastFinished time.Time
	errors       []string
}

// HealthStatus is the JSON body served by HealthChecker.
type HealthStatus struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	RunningJobs   int       `json:"running_jobs"`
	CompletedJobs int       `json:"completed_jobs"`
	FailedJobs    int       `json:"failed_jobs"`
	LastFinished  time.Time `json:"last_finished,omitempty"`
	Uptime        string    `json:"uptime"`
	Errors        []string  `json:"errors,omitempty"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		startTime: time.Now(),
		errors:    make([]string, 0),
	}
}

// JobStarted marks one job as running
func (h *HealthChecker) JobStarted() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running++
}

// JobFinished marks a running job as done. A non-nil err is kept in the
// recent errors list.
func (h *HealthChecker) JobFinished(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running > 0 {
		h.running--
	}
	h.lastFinished = time.Now()
	if err == nil {
		h.completed++
		return
	}
	h.failed++
	h.errors = append(h.errors, err.Error())
	if len(h.errors) > maxRecentErrors {
		h.errors = h.errors[len(h.errors)-maxRecentErrors:]
	}
}

// Status returns a snapshot
func (h *HealthChecker) Status() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	if h.failed > 0 && h.completed == 0 {
		status = "unhealthy"
	} else if h.failed > 0 {
		status = "degraded"
	}
	return HealthStatus{
		Status:        status,
		Timestamp:     time.Now(),
		RunningJobs:   h.running,
		CompletedJobs: h.completed,
		FailedJobs:    h.failed,
		LastFinished:  h.lastFinished,
		Uptime:        time.Since(h.startTime).String(),
		Errors:        append([]string(nil), h.errors...),
	}
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	health := h.Status()

	w.Header().Set("Content-Type", "application/json")
	if health.Status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(health)
}

// NewMux serves metrics on /metrics and health on /health.
func NewMux(m *Metrics, h *HealthChecker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	if h != nil {
		mux.Handle("/health", h)
	}
	return mux
}
