package domain

import "context"

// ProjectStore persists movie projects. Implementations hand out copies:
// mutating a returned Project never changes stored state.
type ProjectStore interface {
	Put(ctx context.Context, project *Project) error
	Get(ctx context.Context, id string) (*Project, error)
	// Update applies fn to the stored project atomically and returns the
	// updated copy. It returns ErrNotFound when the project no longer exists,
	// so a deleted project is never written back.
	Update(ctx context.Context, id string, fn func(*Project) error) (*Project, error)
	Delete(ctx context.Context, id string) (bool, error)
	// List returns every project ordered by creation time.
	List(ctx context.Context) ([]*Project, error)
}
