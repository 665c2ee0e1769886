package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/forge-tickets/internal/domain"
)

// MilestoneStore persists repository milestones. Milestones have their own
// lifecycle; tickets reference them by name only.
type MilestoneStore interface {
	Create(ctx context.Context, milestone *domain.Milestone) error
	Update(ctx context.Context, milestone *domain.Milestone) error
	Rename(ctx context.Context, repository, oldName, newName string) error
	Delete(ctx context.Context, repository, name string) error
	Get(ctx context.Context, repository, name string) (*domain.Milestone, error)
	List(ctx context.Context, repository string) ([]domain.Milestone, error)
}

type milestoneStore struct {
	pool *pgxpool.Pool
}

// NewMilestoneStore instantiates the postgres-backed store.
func NewMilestoneStore(pool *pgxpool.Pool) MilestoneStore {
	return &milestoneStore{pool: pool}
}

func (s *milestoneStore) Create(ctx context.Context, milestone *domain.Milestone) error {
	const query = `
        INSERT INTO milestones (repository, name, status, color, due)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING created_at`
	return s.pool.QueryRow(ctx, query,
		milestone.Repository,
		milestone.Name,
		milestone.Status,
		milestone.Color,
		milestone.Due,
	).Scan(&milestone.CreatedAt)
}

func (s *milestoneStore) Update(ctx context.Context, milestone *domain.Milestone) error {
	const query = `
        UPDATE milestones SET status=$1, color=$2, due=$3
        WHERE repository=$4 AND name=$5`
	cmd, err := s.pool.Exec(ctx, query,
		milestone.Status,
		milestone.Color,
		milestone.Due,
		milestone.Repository,
		milestone.Name,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *milestoneStore) Rename(ctx context.Context, repository, oldName, newName string) error {
	const query = `UPDATE milestones SET name=$1 WHERE repository=$2 AND name=$3`
	cmd, err := s.pool.Exec(ctx, query, newName, repository, oldName)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *milestoneStore) Delete(ctx context.Context, repository, name string) error {
	const query = `DELETE FROM milestones WHERE repository=$1 AND name=$2`
	cmd, err := s.pool.Exec(ctx, query, repository, name)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *milestoneStore) Get(ctx context.Context, repository, name string) (*domain.Milestone, error) {
	const query = `
        SELECT repository, name, status, color, due, created_at
        FROM milestones WHERE repository=$1 AND name=$2`
	var milestone domain.Milestone
	if err := s.pool.QueryRow(ctx, query, repository, name).Scan(
		&milestone.Repository,
		&milestone.Name,
		&milestone.Status,
		&milestone.Color,
		&milestone.Due,
		&milestone.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &milestone, nil
}

func (s *milestoneStore) List(ctx context.Context, repository string) ([]domain.Milestone, error) {
	const query = `
        SELECT repository, name, status, color, due, created_at
        FROM milestones WHERE repository=$1 ORDER BY created_at`
	rows, err := s.pool.Query(ctx, query, repository)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	milestones := make([]domain.Milestone, 0)
	for rows.Next() {
		var milestone domain.Milestone
		if err := rows.Scan(
			&milestone.Repository,
			&milestone.Name,
			&milestone.Status,
			&milestone.Color,
			&milestone.Due,
			&milestone.CreatedAt,
		); err != nil {
			return nil, err
		}
		milestones = append(milestones, milestone)
	}
	return milestones, rows.Err()
}
