package repository

import (
	"context"
	"errors"
	"fmt"

	"sgjobs_backend/internal/jobs/domain"
	"sgjobs_backend/platform/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const teamColumns = `id, name, caldav_principal, team_calendar_path, blocker_calendar_path`

// Repository provides database operations for teams.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new teams repository
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID retrieves a team.
func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.Team, error) {
	var t domain.Team
	err := r.pool.QueryRow(ctx, `SELECT `+teamColumns+` FROM sg_teams WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.Principal, &t.ExecutionPath, &t.BlockerPath)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(fmt.Sprintf("team %d not found", id))
		}
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return &t, nil
}

// List returns all teams ordered by name.
func (r *Repository) List(ctx context.Context) ([]domain.Team, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+teamColumns+` FROM sg_teams ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	teams := make([]domain.Team, 0)
	for rows.Next() {
		var t domain.Team
		if err := rows.Scan(&t.ID, &t.Name, &t.Principal, &t.ExecutionPath, &t.BlockerPath); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate teams: %w", err)
	}
	return teams, nil
}

// Upsert inserts a team or updates the calendar addresses of the team with
// the same name, returning its id.
func (r *Repository) Upsert(ctx context.Context, team domain.Team) (int64, error) {
	query := `
		INSERT INTO sg_teams (name, caldav_principal, team_calendar_path, blocker_calendar_path)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			caldav_principal = EXCLUDED.caldav_principal,
			team_calendar_path = EXCLUDED.team_calendar_path,
			blocker_calendar_path = EXCLUDED.blocker_calendar_path,
			updated_at = now()
		RETURNING id`

	var id int64
	if err := r.pool.QueryRow(ctx, query, team.Name, team.Principal, team.ExecutionPath, team.BlockerPath).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to upsert team %q: %w", team.Name, err)
	}
	return id, nil
}
