// Package memstore is the in-process ProjectStore used when no database is
// configured. State is lost on restart.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"moviemaker/internal/domain"
)

type Store struct {
	mu       sync.RWMutex
	projects map[string]*domain.Project
}

func New() *Store {
	return &Store{projects: map[string]*domain.Project{}}
}

func (s *Store) Put(ctx context.Context, project *domain.Project) error {
	if project == nil || project.ID == "" {
		return fmt.Errorf("%w: project id is required", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[project.ID] = project.Clone()
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

// Update runs fn on a private copy under the write lock and stores the copy
// only when fn succeeds.
func (s *Store) Update(ctx context.Context, id string, fn func(*domain.Project) error) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.projects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = id
	s.projects[id] = next
	return next.Clone(), nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return false, nil
	}
	delete(s.projects, id)
	return true, nil
}

func (s *Store) List(ctx context.Context) ([]*domain.Project, error) {
	s.mu.RLock()
	out := make([]*domain.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p.Clone())
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

var _ domain.ProjectStore = (*Store)(nil)
