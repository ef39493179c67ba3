package health

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rumbleFTW/koe-app/internal/backend"
	"github.com/rumbleFTW/koe-app/internal/conversation"
)

const readinessTimeout = 5 * time.Second

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type ComponentStatus struct {
	Status    Status `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
	Details   any    `json:"details,omitempty"`
}

type RuntimeStats struct {
	Goroutines int    `json:"goroutines"`
	HeapMB     uint64 `json:"heap_mb"`
	NumGC      uint32 `json:"num_gc"`
}

type RequestStats struct {
	TotalRequests uint64 `json:"total_requests"`
	InFlight      int64  `json:"in_flight"`
}

type Stats struct {
	Session  conversation.Info `json:"session"`
	Requests RequestStats      `json:"requests"`
	Runtime  RuntimeStats      `json:"runtime"`
}

type HealthResponse struct {
	Status        Status                     `json:"status"`
	Timestamp     time.Time                  `json:"timestamp"`
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Stats         Stats                      `json:"stats"`
	Components    map[string]ComponentStatus `json:"components"`
}

type BackendProber interface {
	Health(ctx context.Context) backend.Health
}

type SessionInfo interface {
	Info() conversation.Info
}

// probe returns a component's status, an error string, and optional details.
type probe func(ctx context.Context) (Status, string, any)

type Handler struct {
	redis   *redis.Client
	backend BackendProber
	session SessionInfo
	version string
	started time.Time

	requests atomic.Uint64
	inFlight atomic.Int64
}

func NewHandler(redis *redis.Client, backend BackendProber, session SessionInfo, version string) *Handler {
	return &Handler{
		redis:   redis,
		backend: backend,
		session: session,
		version: version,
		started: time.Now(),
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/health", h.Liveness)
	g.GET("/health/ready", h.Readiness)
}

// Middleware counts requests for the readiness report.
func (h *Handler) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h.requests.Add(1)
		h.inFlight.Add(1)
		defer h.inFlight.Add(-1)
		return next(c)
	}
}

func (h *Handler) uptime() int64 {
	return int64(time.Since(h.started).Seconds())
}

// Liveness godoc
// @Summary      Liveness check
// @Description  Reports that the process is up along with the session state
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]any
// @Router       /health [get]
func (h *Handler) Liveness(c echo.Context) error {
	resp := map[string]any{
		"status":         "ok",
		"version":        h.version,
		"uptime_seconds": h.uptime(),
	}
	if h.session != nil {
		resp["session_state"] = h.session.Info().State
	}
	return c.JSON(http.StatusOK, resp)
}

// Readiness godoc
// @Summary      Readiness check
// @Description  Probes redis and the voice backend and reports runtime stats
// @Tags         health
// @Produce      json
// @Success      200  {object}  HealthResponse
// @Failure      503  {object}  HealthResponse
// @Router       /health/ready [get]
func (h *Handler) Readiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessTimeout)
	defer cancel()

	components := runProbes(ctx, map[string]probe{
		"redis":   h.probeRedis,
		"backend": h.probeBackend,
	})

	resp := HealthResponse{
		Status:        computeOverallStatus(components),
		Timestamp:     time.Now().UTC(),
		Version:       h.version,
		UptimeSeconds: h.uptime(),
		Stats: Stats{
			Requests: RequestStats{
				TotalRequests: h.requests.Load(),
				InFlight:      h.inFlight.Load(),
			},
			Runtime: readRuntime(),
		},
		Components: components,
	}
	if h.session != nil {
		resp.Stats.Session = h.session.Info()
	}

	code := http.StatusOK
	if resp.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}

func runProbes(ctx context.Context, probes map[string]probe) map[string]ComponentStatus {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[string]ComponentStatus, len(probes))
	)
	for name, p := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			status, errMsg, details := p(ctx)
			cs := ComponentStatus{
				Status:    status,
				LatencyMs: time.Since(start).Milliseconds(),
				Error:     errMsg,
				Details:   details,
			}
			mu.Lock()
			out[name] = cs
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

func readRuntime() RuntimeStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return RuntimeStats{
		Goroutines: runtime.NumGoroutine(),
		HeapMB:     ms.HeapAlloc >> 20,
		NumGC:      ms.NumGC,
	}
}

func (h *Handler) probeRedis(ctx context.Context) (Status, string, any) {
	if h.redis == nil {
		return StatusUnhealthy, "redis not configured", nil
	}
	if err := h.redis.Ping(ctx).Err(); err != nil {
		return StatusUnhealthy, "ping failed", nil
	}
	return StatusHealthy, "", nil
}

func (h *Handler) probeBackend(ctx context.Context) (Status, string, any) {
	if h.backend == nil {
		return StatusUnhealthy, "backend not configured", nil
	}

	report := h.backend.Health(ctx)
	switch {
	case report.Connected != backend.ConnectedOK:
		return StatusUnhealthy, "unreachable", report
	case !report.OK:
		return StatusDegraded, "backend reports not ok", report
	}
	return StatusHealthy, "", report
}

// computeOverallStatus treats redis as critical. Losing the remote backend only
// degrades the local process.
func computeOverallStatus(components map[string]ComponentStatus) Status {
	if cs, ok := components["redis"]; ok && cs.Status == StatusUnhealthy {
		return StatusUnhealthy
	}
	for _, cs := range components {
		if cs.Status != StatusHealthy {
			return StatusDegraded
		}
	}
	return StatusHealthy
}
