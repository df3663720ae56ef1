package db

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const connectAttempts = 30

// DB wraps a pgx connection pool.
type DB struct {
	Pool *pgxpool.Pool
}

// Connect opens a connection pool with retry logic.
func Connect(ctx context.Context, dsn string) (*DB, error) {
	var pool *pgxpool.Pool
	var err error
	for i := 0; i < connectAttempts; i++ {
		pool, err = pgxpool.New(ctx, dsn)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				log.Info().Msg("[db] connected to PostgreSQL")
				return &DB{Pool: pool}, nil
			}
			pool.Close()
		}
		log.Info().Msgf("[db] waiting for PostgreSQL... (%d/%d)", i+1, connectAttempts)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return nil, fmt.Errorf("postgres: failed after %d attempts: %w", connectAttempts, err)
}

// RunMigrations reads SQL files from the embedded FS and applies them in order.
func (d *DB) RunMigrations(ctx context.Context, migrationFS fs.FS) error {
	_, err := d.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ  DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var sqlFiles []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			sqlFiles = append(sqlFiles, e.Name())
		}
	}
	sort.Strings(sqlFiles)

	for _, file := range sqlFiles {
		var count int
		if err := d.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE version=$1", file).Scan(&count); err != nil {
			return fmt.Errorf("check %s: %w", file, err)
		}
		if count > 0 {
			log.Debug().Str("migration", file).Msg("[db] already applied")
			continue
		}

		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}
		if _, err = d.Pool.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("exec %s: %w", file, err)
		}
		if _, err = d.Pool.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", file); err != nil {
			return fmt.Errorf("record %s: %w", file, err)
		}
		log.Info().Str("migration", file).Msg("[db] applied migration")
	}
	return nil
}

// RecordSessionEvent appends a row to session_audit.
func (d *DB) RecordSessionEvent(ctx context.Context, id, event, userID string) error {
	var uid any
	if userID != "" {
		uid = userID
	}
	_, err := d.Pool.Exec(ctx,
		`INSERT INTO session_audit (id, event, user_id) VALUES ($1, $2, $3)`,
		id, event, uid)
	return err
}

// TokenStore keeps one session token per storage key in the credentials table.
type TokenStore struct {
	pool *pgxpool.Pool
	key  string
}

// TokenStore returns a token store for key.
func (d *DB) TokenStore(key string) *TokenStore {
	return &TokenStore{pool: d.Pool, key: key}
}

func (s *TokenStore) Load(ctx context.Context) (string, error) {
	var token string
	err := s.pool.QueryRow(ctx, `SELECT token FROM credentials WHERE storage_key=$1`, s.key).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	return token, nil
}

func (s *TokenStore) Save(ctx context.Context, token string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO credentials (storage_key, token, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (storage_key) DO UPDATE SET token = EXCLUDED.token, updated_at = NOW()
	`, s.key, token)
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func (s *TokenStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM credentials WHERE storage_key=$1`, s.key); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

// Close shuts down the pool.
func (d *DB) Close() { d.Pool.Close() }
