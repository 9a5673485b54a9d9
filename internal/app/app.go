// Package app assembles the engine's stores and services from configuration.
// Both binaries share it so the server and the worker see the same wiring.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/keylock/internal/config"
	"github.com/ignite/keylock/internal/domain"
	"github.com/ignite/keylock/internal/pkg/distlock"
	"github.com/ignite/keylock/internal/pkg/logger"
	"github.com/ignite/keylock/internal/repository/dynamo"
	"github.com/ignite/keylock/internal/repository/memory"
	"github.com/ignite/keylock/internal/repository/postgres"
	keyredis "github.com/ignite/keylock/internal/repository/redis"
	"github.com/ignite/keylock/internal/service/catalog"
	"github.com/ignite/keylock/internal/service/eligibility"
	"github.com/ignite/keylock/internal/service/join"
	"github.com/ignite/keylock/internal/service/keystore"
	"github.com/ignite/keylock/internal/service/violation"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

// ErrNoLeaderBackend means neither Redis nor PostgreSQL is configured, so
// maintenance workers cannot elect a leader.
var ErrNoLeaderBackend = errors.New("leader election needs redis or postgres")

// ParticipationStore is the participation access shared by the API, the
// coordinator and the orphan reaper.
type ParticipationStore interface {
	ListRecent(ctx context.Context, streamerID string, since time.Time) ([]domain.ActiveParticipation, error)
	Create(ctx context.Context, p domain.ActiveParticipation) error
	End(ctx context.Context, streamerID, campaignID string, status domain.ParticipationStatus, at time.Time) (bool, error)
	IsActive(ctx context.Context, streamerID, campaignID string) (bool, error)
}

// Directory supplies campaigns and streamers.
type Directory interface {
	join.CampaignDirectory
	join.StreamerDirectory
}

// App holds the wired engine.
type App struct {
	Config *config.Config

	// DB and Redis are nil when not configured.
	DB    *sql.DB
	Redis *redis.Client

	Categories     *catalog.CategoryCatalog
	Rules          *catalog.RuleCatalog
	Keys           *keystore.Store
	Violations     *violation.Recorder
	Coordinator    *join.Coordinator
	Directory      Directory
	Participations ParticipationStore
}

// New connects to the configured stores and wires the services.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	cats, err := catalog.NewCategoryCatalog(cfg.Categories)
	if err != nil {
		return nil, err
	}
	a.Categories = cats

	if cfg.Database.URL != "" {
		if a.DB, err = openDB(ctx, cfg.Database); err != nil {
			return nil, err
		}
		logger.Info("connected to database", "url", logger.RedactDSN(cfg.Database.URL))
	}
	if cfg.Redis.URL != "" {
		if a.Redis, err = openRedis(ctx, cfg.Redis.URL); err != nil {
			a.Close()
			return nil, err
		}
		logger.Info("connected to redis", "url", logger.RedactDSN(cfg.Redis.URL))
	}

	keyRepo, err := a.keyRepository(cfg.Keys.Backend)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Keys = keystore.NewStore(keyRepo, cats)

	var (
		ruleRepo      catalog.RuleRepository
		violationRepo violation.Repository
	)
	if a.DB != nil {
		ruleRepo = postgres.NewRuleRepo(a.DB)
		violationRepo = postgres.NewViolationRepo(a.DB)
		a.Directory = postgres.NewDirectoryRepo(a.DB)
		a.Participations = postgres.NewParticipationRepo(a.DB)
	} else {
		logger.Warn("no database configured; campaigns, rules and violations are kept in memory")
		ruleRepo = memory.NewRuleRepo()
		violationRepo = memory.NewViolationRepo()
		a.Directory = memory.NewDirectory()
		a.Participations = memory.NewParticipationRepo()
	}
	a.Rules = catalog.NewRuleCatalog(ruleRepo, cfg.Rules.CacheTTL())

	var archive violation.Archiver
	if cfg.Archive.Enabled {
		arch, err := dynamo.NewFromAWS(ctx, cfg.Archive)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("violation archive: %w", err)
		}
		archive = arch
		logger.Info("violation archive enabled", "table", cfg.Archive.DynamoDBTable, "region", cfg.Archive.AWSRegion)
	}
	a.Violations = violation.NewRecorder(violationRepo, archive)

	a.Coordinator = join.NewCoordinator(join.Deps{
		Campaigns:      a.Directory,
		Streamers:      a.Directory,
		Participations: a.Participations,
		Violations:     a.Violations,
		Keys:           a.Keys,
		Categories:     cats,
		Rules:          a.Rules,
		Evaluator:      eligibility.NewEvaluator(),
	}, join.Options{
		ParticipationLookback: cfg.Engine.ParticipationLookback(),
		CompensationTimeout:   cfg.Engine.CompensationTimeout(),
	})

	logger.Info("engine wired",
		"key_backend", string(cfg.Keys.Backend), "categories", len(cats.Names()),
		"archive", cfg.Archive.Enabled)
	return a, nil
}

func (a *App) keyRepository(backend config.KeyBackend) (keystore.Repository, error) {
	switch backend {
	case config.BackendPostgres:
		if a.DB == nil {
			return nil, fmt.Errorf("key backend postgres: no database configured")
		}
		return postgres.NewKeyRepo(a.DB), nil
	case config.BackendRedis:
		if a.Redis == nil {
			return nil, fmt.Errorf("key backend redis: no redis configured")
		}
		return keyredis.NewKeyRepo(a.Redis), nil
	case config.BackendMemory:
		logger.Warn("memory key backend: keys are lost on restart and not shared across instances")
		return memory.NewKeyRepo(), nil
	default:
		return nil, fmt.Errorf("unknown key backend %q", backend)
	}
}

// LeaderLock returns the lock that elects one maintenance runner for name.
// Redis is preferred; PostgreSQL advisory locks are the fallback.
func (a *App) LeaderLock(name string) (distlock.DistLock, error) {
	if a.Redis == nil && a.DB == nil {
		return nil, ErrNoLeaderBackend
	}
	return distlock.NewLock(a.Redis, a.DB, name, a.Config.Sweeper.LeaderLockTTL()), nil
}

// Close releases the store connections.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			logger.Warn("redis close failed", "error", err)
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			logger.Warn("database close failed", "error", err)
		}
	}
}

func openDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime())
	db.SetConnMaxIdleTime(time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
