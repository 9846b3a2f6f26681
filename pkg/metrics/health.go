package metrics

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// Component names reported by cirrus
const (
	ComponentKubernetes = "kubernetes"
	ComponentPricing    = "pricing"
	ComponentScheduler  = "scheduler"
	ComponentAPI        = "api"
)

// State is the health of one component
type State string

const (
	StateHealthy   State = "healthy"
	StateDegraded  State = "degraded" // working, but the last operation reported errors
	StateUnhealthy State = "unhealthy"
)

// Overall readiness values
const (
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
)

// HealthStatus is the body of /health and /ready
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

// ComponentHealth is the last report of a single component
type ComponentHealth struct {
	Name    string
	State   State
	Message string
	Updated time.Time
}

// Healthy reports whether the component can serve, degraded included
func (c ComponentHealth) Healthy() bool {
	return c.State != StateUnhealthy
}

func (c ComponentHealth) describe() string {
	if c.Message == "" {
		return string(c.State)
	}
	return string(c.State) + ": " + c.Message
}

// registry holds component reports for the whole process
type registry struct {
	mu         sync.RWMutex
	components map[string]ComponentHealth
	critical   []string
	startTime  time.Time
	version    string
}

var components = newRegistry()

func newRegistry() *registry {
	return &registry{
		components: make(map[string]ComponentHealth),
		critical:   []string{ComponentKubernetes, ComponentPricing, ComponentScheduler},
		startTime:  time.Now(),
	}
}

// SetVersion sets the version reported by /health and /ready
func SetVersion(version string) {
	components.mu.Lock()
	defer components.mu.Unlock()
	components.version = version
}

// SetCriticalComponents replaces the components that gate readiness
func SetCriticalComponents(names ...string) {
	components.mu.Lock()
	defer components.mu.Unlock()
	components.critical = append([]string(nil), names...)
}

// UpdateComponent records a component report. A healthy report that carries
// a message marks the component degraded.
func UpdateComponent(name string, healthy bool, message string) {
	state := StateHealthy
	switch {
	case !healthy:
		state = StateUnhealthy
	case message != "":
		state = StateDegraded
	}

	components.mu.Lock()
	defer components.mu.Unlock()
	components.components[name] = ComponentHealth{
		Name:    name,
		State:   state,
		Message: message,
		Updated: time.Now(),
	}
}

// Component returns the last report of a single component
func Component(name string) (ComponentHealth, bool) {
	components.mu.RLock()
	defer components.mu.RUnlock()
	c, ok := components.components[name]
	return c, ok
}

// GetHealth aggregates every reported component. The worst state wins.
func GetHealth() HealthStatus {
	components.mu.RLock()
	defer components.mu.RUnlock()

	status := StateHealthy
	described := make(map[string]string, len(components.components))
	var troubled []string
	for name, c := range components.components {
		described[name] = c.describe()
		switch c.State {
		case StateUnhealthy:
			status = StateUnhealthy
			troubled = append(troubled, name)
		case StateDegraded:
			if status == StateHealthy {
				status = StateDegraded
			}
			troubled = append(troubled, name)
		}
	}
	sort.Strings(troubled)

	h := components.status(string(status), described)
	if len(troubled) > 0 {
		h.Message = "check " + strings.Join(troubled, ", ")
	}
	return h
}

// GetReadiness reports ready once every critical component has reported and
// none of them is unhealthy
func GetReadiness() HealthStatus {
	components.mu.RLock()
	defer components.mu.RUnlock()

	status := StatusReady
	var message string
	described := make(map[string]string, len(components.critical))
	for _, name := range components.critical {
		c, ok := components.components[name]
		switch {
		case !ok:
			status = StatusNotReady
			message = "waiting for " + name + " initialization"
			described[name] = "not registered"
		case !c.Healthy():
			status = StatusNotReady
			message = "waiting for " + name
			described[name] = c.describe()
		default:
			described[name] = StatusReady
		}
	}

	h := components.status(status, described)
	h.Message = message
	return h
}

func (r *registry) status(status string, described map[string]string) HealthStatus {
	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: described,
		Version:    r.version,
		Uptime:     time.Since(r.startTime).Round(time.Second).String(),
	}
}

// HealthHandler serves /health. Degraded components still answer 200.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := GetHealth()
		code := http.StatusOK
		if h.Status == string(StateUnhealthy) {
			code = http.StatusServiceUnavailable
		}
		writeStatus(w, code, h)
	}
}

// ReadyHandler serves /ready
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := GetReadiness()
		code := http.StatusOK
		if h.Status != StatusReady {
			code = http.StatusServiceUnavailable
		}
		writeStatus(w, code, h)
	}
}

// LivenessHandler answers 200 while the process runs
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components.mu.RLock()
		uptime := time.Since(components.startTime).Round(time.Second)
		components.mu.RUnlock()
		writeStatus(w, http.StatusOK, map[string]string{
			"status": "alive",
			"uptime": uptime.String(),
		})
	}
}

func writeStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
