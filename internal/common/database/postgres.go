// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"league-signup/internal/common/config"

	_ "github.com/lib/pq"
)

// PostgresClient wraps the connection pool behind the postgres result backend.
type PostgresClient struct {
	DB *sql.DB
}

// NewPostgres opens the pool and verifies it answers within five seconds.
func NewPostgres(ctx context.Context, cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	client := &PostgresClient{DB: db}
	if err := client.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return client, nil
}

// Ping tests the database connection
func (c *PostgresClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

// Close closes the database connection
func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// CountOutcomes returns how many outcomes a run has stored.
func (c *PostgresClient) CountOutcomes(ctx context.Context, runID string) (int, error) {
	var n int
	err := c.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM signup_outcomes WHERE run_id = $1`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count outcomes for run %s: %w", runID, err)
	}
	return n, nil
}
