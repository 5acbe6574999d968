package service

import (
	"context"
	"errors"
	"testing"

	"sgjobs_backend/internal/jobs/domain"
	"sgjobs_backend/platform/apperr"
	"sgjobs_backend/platform/config"
)

type memoryTeams struct {
	byName map[string]domain.Team
	nextID int64
	fail   error
}

func newMemoryTeams() *memoryTeams {
	return &memoryTeams{byName: map[string]domain.Team{}}
}

func (m *memoryTeams) GetByID(_ context.Context, id int64) (*domain.Team, error) {
	for _, t := range m.byName {
		if t.ID == id {
			team := t
			return &team, nil
		}
	}
	return nil, apperr.NotFound("team not found")
}

func (m *memoryTeams) List(context.Context) ([]domain.Team, error) {
	out := make([]domain.Team, 0, len(m.byName))
	for _, t := range m.byName {
		out = append(out, t)
	}
	return out, nil
}

func (m *memoryTeams) Upsert(_ context.Context, team domain.Team) (int64, error) {
	if m.fail != nil {
		return 0, m.fail
	}
	if existing, ok := m.byName[team.Name]; ok {
		team.ID = existing.ID
	} else {
		m.nextID++
		team.ID = m.nextID
	}
	m.byName[team.Name] = team
	return team.ID, nil
}

func TestSyncUpsertsByName(t *testing.T) {
	repo := newMemoryTeams()
	svc := New(repo, nil)

	defs := []config.TeamDefinition{
		{Name: "Nord", Principal: "nord", ExecutionPath: "/cal/nord/exec/", BlockerPath: "/cal/nord/block/"},
		{Principal: "sued", ExecutionPath: "/cal/sued/exec/"},
	}
	result, err := svc.Sync(context.Background(), defs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Upserted != 2 || result.Skipped != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if _, ok := repo.byName["sued"]; !ok {
		t.Fatalf("expected principal to be used as name")
	}

	defs[0].ExecutionPath = "/cal/nord/v2/"
	if _, err := svc.Sync(context.Background(), defs[:1]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	nord := repo.byName["Nord"]
	if nord.ID != 1 || nord.ExecutionPath != "/cal/nord/v2/" {
		t.Fatalf("expected in-place update, got %+v", nord)
	}
}

func TestSyncSkipsIncompleteDefinitions(t *testing.T) {
	svc := New(newMemoryTeams(), nil)

	result, err := svc.Sync(context.Background(), []config.TeamDefinition{
		{Name: "Ohne Kalender"},
		{ExecutionPath: "/cal/x/"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Upserted != 0 || result.Skipped != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestSyncStopsOnStoreError(t *testing.T) {
	repo := newMemoryTeams()
	repo.fail = errors.New("db down")
	svc := New(repo, nil)

	_, err := svc.Sync(context.Background(), []config.TeamDefinition{{Name: "Nord", ExecutionPath: "/cal/"}})
	if err == nil {
		t.Fatalf("expected store error")
	}
}

func TestGetByIDPassesNotFoundThrough(t *testing.T) {
	svc := New(newMemoryTeams(), nil)

	_, err := svc.GetByID(context.Background(), 99)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
