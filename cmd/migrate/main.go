package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ignite/keylock/internal/pkg/logger"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

const migrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	name       TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

func main() {
	_ = godotenv.Load()

	dir := flag.String("dir", "migrations", "directory of .sql files")
	listOnly := flag.Bool("list", false, "list engine tables and applied migrations, then exit")
	flag.Parse()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("ping failed", "url", logger.RedactDSN(dsn), "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database", "url", logger.RedactDSN(dsn))

	if _, err := db.ExecContext(ctx, migrationsTable); err != nil {
		logger.Error("create schema_migrations failed", "error", err)
		os.Exit(1)
	}

	if *listOnly {
		if err := list(ctx, db); err != nil {
			logger.Error("list failed", "error", err)
			os.Exit(1)
		}
		return
	}

	ok, failed, err := apply(ctx, db, *dir)
	if err != nil {
		logger.Error("migrate failed", "error", err)
		os.Exit(1)
	}
	logger.Info("migrations complete", "applied", ok, "failed", failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func list(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `SELECT name, applied_at FROM schema_migrations ORDER BY name`)
	if err != nil {
		return err
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		var name string
		var at time.Time
		if err := rows.Scan(&name, &at); err != nil {
			return err
		}
		fmt.Printf("  %s  %s\n", at.Format(time.RFC3339), name)
		n++
	}
	fmt.Printf("Total: %d migrations\n", n)
	return rows.Err()
}

func apply(ctx context.Context, db *sql.DB, dir string) (okCount, errCount int, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, fmt.Errorf("read migrations dir %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		var applied bool
		if err := db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, f,
		).Scan(&applied); err != nil {
			return okCount, errCount, err
		}
		if applied {
			continue
		}

		path := filepath.Join(dir, f)
		data, err := os.ReadFile(path)
		if err != nil {
			return okCount, errCount, fmt.Errorf("read %s: %w", path, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}

		if err := applyOne(ctx, db, f, string(data)); err != nil {
			logger.Error("migration failed", "file", f, "error", err)
			errCount++
			continue
		}
		logger.Info("migration applied", "file", f)
		okCount++
	}
	return okCount, errCount, nil
}

func applyOne(ctx context.Context, db *sql.DB, name, content string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, content); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
