package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/ignite/keylock/internal/config"
	"github.com/ignite/keylock/internal/pkg/httputil"
	"github.com/ignite/keylock/internal/service/keystore"
	"github.com/redis/go-redis/v9"
)

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status  string                    `json:"status"`  // "healthy", "degraded", "unhealthy"
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  string `json:"status"`            // "up", "down", "degraded"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// staleLockScanLimit caps how many long-held locks one health check lists.
const staleLockScanLimit = 100

// HealthChecker reports the health of the engine's stores: PostgreSQL,
// Redis, and the keys themselves.
type HealthChecker struct {
	db          *sql.DB
	redisClient *redis.Client
	keys        *keystore.Store
	critical    []string
	orphanAge   time.Duration
	startTime   time.Time
}

// NewHealthChecker creates a new HealthChecker.
// Any dependency can be nil; the check will report "not configured" for nil deps.
// A configured database is always critical, and so is Redis when it backs the
// keys. Keys locked for longer than orphanAge degrade the locks check.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client, keys *keystore.Store, backend config.KeyBackend, orphanAge time.Duration) *HealthChecker {
	if orphanAge <= 0 {
		orphanAge = 24 * time.Hour
	}
	critical := []string{"database"}
	if backend == config.BackendRedis {
		critical = append(critical, "redis")
	}
	return &HealthChecker{
		db:          db,
		redisClient: redisClient,
		keys:        keys,
		critical:    critical,
		orphanAge:   orphanAge,
		startTime:   time.Now(),
	}
}

const healthVersion = "1.0.0"

// HandleHealth returns the comprehensive health status of all components.
// Overall status is "healthy" if all checks pass, "degraded" if any are degraded
// or non-critical ones are down, and "unhealthy" if critical components are down.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())

	overall := determineOverallStatus(checks, hc.critical)

	status := HealthStatus{
		Status:  overall,
		Version: healthVersion,
		Uptime:  formatUptime(time.Since(hc.startTime)),
		Checks:  checks,
	}

	// Always return 200 for the general health endpoint.
	// The status field in the JSON body conveys health.
	// Use /health/ready for probes that need HTTP 503 on failure.
	httputil.JSON(w, http.StatusOK, status)
}

// HandleLiveness is a simple liveness probe: always returns 200 if the server
// process is running. Suitable for Kubernetes/ECS liveness probes.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"status": "alive",
		"uptime": formatUptime(time.Since(hc.startTime)),
	})
}

// HandleReadiness checks all critical dependencies and returns 200 only when
// the service is ready to accept traffic. Suitable for readiness probes.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())

	overall := determineOverallStatus(checks, hc.critical)

	ready := overall != "unhealthy"
	httpStatus := http.StatusOK
	if !ready {
		httpStatus = http.StatusServiceUnavailable
	}

	httputil.JSON(w, httpStatus, map[string]interface{}{
		"ready":  ready,
		"status": overall,
		"checks": checks,
	})
}

// ---------------------------------------------------------------------------
// Individual component checks
// ---------------------------------------------------------------------------

func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	checks := make(map[string]ComponentCheck, 3)

	// Run checks concurrently for minimal total latency.
	type result struct {
		name  string
		check ComponentCheck
	}
	ch := make(chan result, 3)

	go func() { ch <- result{"database", hc.checkDatabase(ctx)} }()
	go func() { ch <- result{"redis", hc.checkRedis(ctx)} }()
	go func() { ch <- result{"locks", hc.checkLocks(ctx)} }()

	for i := 0; i < 3; i++ {
		r := <-ch
		checks[r.name] = r.check
	}

	return checks
}

// checkDatabase pings PostgreSQL with a 3-second timeout.
func (hc *HealthChecker) checkDatabase(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	err := hc.db.PingContext(pingCtx)
	latency := time.Since(start)

	if err != nil {
		return ComponentCheck{
			Status:  "down",
			Latency: latency.String(),
			Message: fmt.Sprintf("ping failed: %v", err),
		}
	}

	status := "up"
	msg := "connected"
	if latency > 1*time.Second {
		status = "degraded"
		msg = fmt.Sprintf("slow response (%s)", latency)
	}

	return ComponentCheck{
		Status:  status,
		Latency: latency.String(),
		Message: msg,
	}
}

// checkRedis pings Redis with a 2-second timeout.
func (hc *HealthChecker) checkRedis(ctx context.Context) ComponentCheck {
	if hc.redisClient == nil {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	err := hc.redisClient.Ping(pingCtx).Err()
	latency := time.Since(start)

	if err != nil {
		return ComponentCheck{
			Status:  "down",
			Latency: latency.String(),
			Message: fmt.Sprintf("ping failed: %v", err),
		}
	}

	status := "up"
	msg := "connected"
	if latency > 500*time.Millisecond {
		status = "degraded"
		msg = fmt.Sprintf("slow response (%s)", latency)
	}

	return ComponentCheck{
		Status:  status,
		Latency: latency.String(),
		Message: msg,
	}
}

// checkLocks counts keys that have stayed locked past the orphan age. A
// non-zero count means the reaper is not running or cannot keep up.
func (hc *HealthChecker) checkLocks(ctx context.Context) ComponentCheck {
	if hc.keys == nil {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}

	queryCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	stale, err := hc.keys.LockedBefore(queryCtx, start.Add(-hc.orphanAge), staleLockScanLimit)
	latency := time.Since(start)
	if err != nil {
		return ComponentCheck{
			Status:  "degraded",
			Latency: latency.String(),
			Message: fmt.Sprintf("lock check failed: %v", err),
		}
	}

	check := ComponentCheck{Status: "up", Latency: latency.String(), Message: "no stale locks"}
	switch n := len(stale); {
	case n >= staleLockScanLimit:
		check.Status = "degraded"
		check.Message = fmt.Sprintf("at least %d keys locked longer than %s", n, hc.orphanAge)
	case n > 0:
		check.Status = "degraded"
		check.Message = fmt.Sprintf("%d keys locked longer than %s", n, hc.orphanAge)
	}
	return check
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// determineOverallStatus derives the aggregate status from individual checks.
//
// Rules:
//   - "unhealthy" if a configured critical check is down
//   - "degraded"  if any check is degraded or a non-critical check is down
//   - "healthy"   otherwise
func determineOverallStatus(checks map[string]ComponentCheck, critical []string) string {
	for _, name := range critical {
		if c, ok := checks[name]; ok && c.Status == "down" && c.Message != "not configured" {
			return "unhealthy"
		}
	}

	for _, c := range checks {
		if c.Status == "degraded" {
			return "degraded"
		}
		if c.Status == "down" && c.Message != "not configured" {
			return "degraded"
		}
	}

	return "healthy"
}

// HandleDBStats returns database/sql pool statistics.
//
//	GET /health/db
func (hc *HealthChecker) HandleDBStats(w http.ResponseWriter, r *http.Request) {
	if hc.db == nil {
		httputil.Error(w, http.StatusNotFound, "no database configured")
		return
	}
	stats := hc.db.Stats()
	httputil.OK(w, map[string]interface{}{
		"max_open":      stats.MaxOpenConnections,
		"open":          stats.OpenConnections,
		"in_use":        stats.InUse,
		"idle":          stats.Idle,
		"wait_count":    stats.WaitCount,
		"wait_duration": stats.WaitDuration.String(),
	})
}

// formatUptime produces a human-readable uptime string like "3d 4h 12m 5s".
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
