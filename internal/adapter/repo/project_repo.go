package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"moviemaker/internal/domain"
	"moviemaker/internal/infra"
	"moviemaker/internal/sqlinline"
)

// TxExecutor is an SQLExecutor that can also run a function in a transaction.
// infra.SQLRunner satisfies it.
type TxExecutor interface {
	infra.SQLExecutor
	InTx(ctx context.Context, fn func(infra.SQLExecutor) error) error
}

// ProjectRepositoryPG implements domain.ProjectStore on PostgreSQL. Each
// project is stored as one JSONB document next to its status and timestamps.
type ProjectRepositoryPG struct {
	db TxExecutor
}

// NewProjectRepository creates a project repository backed by PostgreSQL.
func NewProjectRepository(db TxExecutor) *ProjectRepositoryPG {
	return &ProjectRepositoryPG{db: db}
}

// EnsureSchema creates the projects table when it does not exist yet.
func (r *ProjectRepositoryPG) EnsureSchema(ctx context.Context) error {
	for _, q := range []string{sqlinline.QCreateProjectsTable, sqlinline.QCreateProjectsCreatedIndex} {
		if _, err := r.db.Exec(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Put inserts or replaces a project.
func (r *ProjectRepositoryPG) Put(ctx context.Context, project *domain.Project) error {
	if project == nil {
		return fmt.Errorf("%w: project is required", domain.ErrInvalidInput)
	}
	if _, err := uuid.Parse(project.ID); err != nil {
		return fmt.Errorf("%w: project id must be a uuid", domain.ErrInvalidInput)
	}
	doc, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}
	_, err = r.db.Exec(ctx, sqlinline.QInsertProject,
		project.ID,
		string(project.Status),
		doc,
		project.CreatedAt,
		project.UpdatedAt,
	)
	return err
}

// Get fetches a project by id.
func (r *ProjectRepositoryPG) Get(ctx context.Context, id string) (*domain.Project, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	return scanProject(r.db.QueryRow(ctx, sqlinline.QSelectProject, id))
}

// Update locks the row, applies fn and writes the result in one transaction.
func (r *ProjectRepositoryPG) Update(ctx context.Context, id string, fn func(*domain.Project) error) (*domain.Project, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	var updated *domain.Project
	err := r.db.InTx(ctx, func(tx infra.SQLExecutor) error {
		project, err := scanProject(tx.QueryRow(ctx, sqlinline.QSelectProjectForUpdate, id))
		if err != nil {
			return err
		}
		if err := fn(project); err != nil {
			return err
		}
		project.ID = id
		doc, err := json.Marshal(project)
		if err != nil {
			return fmt.Errorf("encode project: %w", err)
		}
		tag, err := tx.Exec(ctx, sqlinline.QUpdateProject, id, string(project.Status), doc, project.UpdatedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		updated = project
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a project and reports whether it existed.
func (r *ProjectRepositoryPG) Delete(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	tag, err := r.db.Exec(ctx, sqlinline.QDeleteProject, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// List returns every project ordered by creation time.
func (r *ProjectRepositoryPG) List(ctx context.Context) ([]*domain.Project, error) {
	rows, err := r.db.Query(ctx, sqlinline.QListProjects)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, project)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanProject(row pgx.Row) (*domain.Project, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var project domain.Project
	if err := json.Unmarshal(doc, &project); err != nil {
		return nil, fmt.Errorf("decode project: %w", err)
	}
	return &project, nil
}

var _ domain.ProjectStore = (*ProjectRepositoryPG)(nil)
