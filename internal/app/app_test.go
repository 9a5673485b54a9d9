package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ignite/keylock/internal/config"
	"github.com/ignite/keylock/internal/domain"
	"github.com/ignite/keylock/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func testConfig(backend config.KeyBackend) *config.Config {
	return &config.Config{
		Keys: config.KeysConfig{Backend: backend},
		Categories: []domain.CategoryInfo{
			{Category: "gaming", MaxUsagePerDay: 1, DefaultCooloffHours: 360},
		},
		Sweeper: config.SweeperConfig{LeaderLockTTLSeconds: 60},
	}
}

func TestNew_MemoryBackend(t *testing.T) {
	a, err := New(context.Background(), testConfig(config.BackendMemory))
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.DB)
	assert.Nil(t, a.Redis)
	assert.IsType(t, &memory.Directory{}, a.Directory)
	assert.IsType(t, &memory.ParticipationRepo{}, a.Participations)

	_, err = a.LeaderLock("sweeper")
	assert.ErrorIs(t, err, ErrNoLeaderBackend)

	dir := a.Directory.(*memory.Directory)
	dir.PutStreamer(domain.Streamer{ID: "U1"})
	dir.PutCampaign(domain.Campaign{ID: "A", BrandID: "B", Category: "gaming"})

	ctx := context.Background()
	ok, err := a.Keys.TryLock(ctx, "U1", "gaming", "A", "B", testNow)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNew_RedisBackend(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := testConfig(config.BackendRedis)
	cfg.Redis.URL = "redis://" + mr.Addr()

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Redis)
	lock, err := a.LeaderLock("sweeper")
	require.NoError(t, err)
	got, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, got)

	ok, err := a.Keys.TryLock(context.Background(), "U1", "gaming", "A", "B", testNow)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("keylock:key:U1:gaming"))
}

func TestNew_BackendWithoutStore(t *testing.T) {
	_, err := New(context.Background(), testConfig(config.BackendPostgres))
	assert.Error(t, err)

	_, err = New(context.Background(), testConfig(config.BackendRedis))
	assert.Error(t, err)
}

func TestNew_DuplicateCategory(t *testing.T) {
	cfg := testConfig(config.BackendMemory)
	cfg.Categories = append(cfg.Categories, cfg.Categories[0])
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
