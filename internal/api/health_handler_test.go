package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/ignite/keylock/internal/config"
	"github.com/ignite/keylock/internal/domain"
	"github.com/ignite/keylock/internal/repository/memory"
	redisrepo "github.com/ignite/keylock/internal/repository/redis"
	"github.com/ignite/keylock/internal/service/catalog"
	"github.com/ignite/keylock/internal/service/keystore"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type readinessBody struct {
	Ready  bool                      `json:"ready"`
	Status string                    `json:"status"`
	Checks map[string]ComponentCheck `json:"checks"`
}

func healthCategories(t *testing.T) *catalog.CategoryCatalog {
	t.Helper()
	cats, err := catalog.NewCategoryCatalog([]domain.CategoryInfo{
		{Category: "gaming", MaxUsagePerDay: 5, DefaultCooloffHours: 360},
	})
	require.NoError(t, err)
	return cats
}

func readiness(t *testing.T, hc *HealthChecker) (int, readinessBody) {
	t.Helper()
	w := httptest.NewRecorder()
	hc.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var body readinessBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestReadiness_RedisKeyBackendDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })

	store := keystore.NewStore(redisrepo.NewKeyRepo(client), healthCategories(t))
	hc := NewHealthChecker(nil, client, store, config.BackendRedis, time.Hour)

	code, body := readiness(t, hc)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, body.Ready)
	assert.Equal(t, "healthy", body.Status)

	mr.Close()

	code, body = readiness(t, hc)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, body.Ready)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "down", body.Checks["redis"].Status)
}

func TestReadiness_RedisNotCriticalForPostgresBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	store := keystore.NewStore(memory.NewKeyRepo(), healthCategories(t))
	hc := NewHealthChecker(nil, client, store, config.BackendPostgres, time.Hour)

	code, body := readiness(t, hc)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", body.Status)
}

func TestHealth_StaleLocksFromKeyStore(t *testing.T) {
	store := keystore.NewStore(memory.NewKeyRepo(), healthCategories(t))
	ok, err := store.TryLock(context.Background(), "U1", "gaming", "A", "BrandX", time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	require.True(t, ok)

	hc := NewHealthChecker(nil, nil, store, config.BackendMemory, time.Hour)
	w := httptest.NewRecorder()
	hc.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, "degraded", status.Checks["locks"].Status)
	assert.Contains(t, status.Checks["locks"].Message, "1 keys locked longer than")
}

func TestDetermineOverallStatus(t *testing.T) {
	down := ComponentCheck{Status: "down", Message: "ping failed"}
	up := ComponentCheck{Status: "up"}
	unset := ComponentCheck{Status: "down", Message: "not configured"}

	tests := []struct {
		name     string
		checks   map[string]ComponentCheck
		critical []string
		want     string
	}{
		{"all up", map[string]ComponentCheck{"database": up, "redis": up}, []string{"database"}, "healthy"},
		{"database down", map[string]ComponentCheck{"database": down, "redis": up}, []string{"database"}, "unhealthy"},
		{"database unset", map[string]ComponentCheck{"database": unset, "redis": up}, []string{"database"}, "healthy"},
		{"redis down, not critical", map[string]ComponentCheck{"database": up, "redis": down}, []string{"database"}, "degraded"},
		{"redis down, critical", map[string]ComponentCheck{"database": unset, "redis": down}, []string{"database", "redis"}, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, determineOverallStatus(tt.checks, tt.critical))
		})
	}
}

func TestHandleDBStats(t *testing.T) {
	w := httptest.NewRecorder()
	NewHealthChecker(nil, nil, nil, config.BackendMemory, 0).HandleDBStats(w, httptest.NewRequest(http.MethodGet, "/health/db", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(7)

	w = httptest.NewRecorder()
	NewHealthChecker(db, nil, nil, config.BackendPostgres, 0).HandleDBStats(w, httptest.NewRequest(http.MethodGet, "/health/db", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.EqualValues(t, 7, stats["max_open"])
	assert.Contains(t, stats, "in_use")
}
