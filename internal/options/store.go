// Package options persists configuration values in the sg_options table.
// Stored options sit between the explicit config file and the environment.
package options

import (
	"context"
	"fmt"
	"strings"

	"sgjobs_backend/platform/apperr"
	"sgjobs_backend/platform/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store reads and writes stored options.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a new options store
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Load reads every stored option into a config source. Blank values are
// dropped so they never shadow the environment.
func (s *Store) Load(ctx context.Context) (config.MapSource, error) {
	rows, err := s.pool.Query(ctx, `SELECT option_key, option_value FROM sg_options`)
	if err != nil {
		return nil, fmt.Errorf("failed to load stored options: %w", err)
	}
	defer rows.Close()

	out := config.MapSource{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan stored option: %w", err)
		}
		if strings.TrimSpace(value) == "" {
			continue
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stored options: %w", err)
	}
	return out, nil
}

// Set stores one option. An empty value clears it.
func (s *Store) Set(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if config.EnvName(key) == "" {
		return apperr.Validation(fmt.Sprintf("unknown option %q", key))
	}

	if strings.TrimSpace(value) == "" {
		if _, err := s.pool.Exec(ctx, `DELETE FROM sg_options WHERE option_key = $1`, key); err != nil {
			return fmt.Errorf("failed to clear option %s: %w", key, err)
		}
		return nil
	}

	query := `
		INSERT INTO sg_options (option_key, option_value) VALUES ($1, $2)
		ON CONFLICT (option_key) DO UPDATE SET option_value = EXCLUDED.option_value, updated_at = now()`
	if _, err := s.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to store option %s: %w", key, err)
	}
	return nil
}
