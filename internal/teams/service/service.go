// Package service manages installer teams and their calendar addresses.
package service

import (
	"context"
	"strings"

	"sgjobs_backend/internal/jobs/domain"
	"sgjobs_backend/platform/config"
	"sgjobs_backend/platform/logger"
)

// Repository is the team store.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*domain.Team, error)
	List(ctx context.Context) ([]domain.Team, error)
	Upsert(ctx context.Context, team domain.Team) (int64, error)
}

// TeamResponse is the API view of a team.
type TeamResponse struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Principal     string `json:"caldav_principal"`
	ExecutionPath string `json:"team_calendar_path"`
	BlockerPath   string `json:"blocker_calendar_path"`
}

// SyncResult summarizes a team sync.
type SyncResult struct {
	Upserted int
	Skipped  int
}

// Service provides team operations.
type Service struct {
	repo Repository
	log  *logger.Logger
}

// New creates a new teams service.
func New(repo Repository, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{repo: repo, log: log}
}

// GetByID returns one team.
func (s *Service) GetByID(ctx context.Context, id int64) (*domain.Team, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns all teams.
func (s *Service) List(ctx context.Context) ([]TeamResponse, error) {
	teams, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]TeamResponse, 0, len(teams))
	for _, t := range teams {
		out = append(out, TeamResponse{
			ID:            t.ID,
			Name:          t.Name,
			Principal:     t.Principal,
			ExecutionPath: t.ExecutionPath,
			BlockerPath:   t.BlockerPath,
		})
	}
	return out, nil
}

// Sync upserts the configured team definitions by name. Definitions without
// a name and principal or without an execution calendar are skipped.
func (s *Service) Sync(ctx context.Context, defs []config.TeamDefinition) (SyncResult, error) {
	var result SyncResult
	for _, def := range defs {
		name := strings.TrimSpace(def.DisplayName())
		if name == "" || def.ExecutionPath == "" {
			s.log.Warn("skipping incomplete team definition", "name", name, "principal", def.Principal)
			result.Skipped++
			continue
		}

		id, err := s.repo.Upsert(ctx, domain.Team{
			Name:          name,
			Principal:     def.Principal,
			ExecutionPath: def.ExecutionPath,
			BlockerPath:   def.BlockerPath,
		})
		if err != nil {
			return result, err
		}
		s.log.Info("team synced", "team_id", id, "name", name)
		result.Upserted++
	}
	return result, nil
}
