package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ethed-api/internal/domain"
)

// CompletionRepository lee los cursos completados que registra el módulo de
// progreso.
type CompletionRepository interface {
	GetCourseCompletion(ctx context.Context, userID, courseID string) (domain.AchievementParams, error)
}

type PgCompletionRepository struct {
	pool *pgxpool.Pool
}

func NewPgCompletionRepository(pool *pgxpool.Pool) *PgCompletionRepository {
	return &PgCompletionRepository{pool: pool}
}

func (r *PgCompletionRepository) GetCourseCompletion(ctx context.Context, userID, courseID string) (domain.AchievementParams, error) {
	const query = `
		SELECT course_id, course_title, completed_at
		FROM course_completions
		WHERE user_id = $1 AND course_id = $2
	`
	var (
		params      domain.AchievementParams
		completedAt time.Time
	)
	err := r.pool.QueryRow(ctx, query, userID, courseID).Scan(
		&params.CourseID,
		&params.CourseTitle,
		&completedAt,
	)
	if err != nil {
		return domain.AchievementParams{}, translate(err)
	}
	params.CompletedAt = completedAt.UTC()
	return params, nil
}
