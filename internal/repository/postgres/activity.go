package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"kurodrive/internal/domain"
)

const activityColumns = `id, actor_id, actor_name, action, resource_kind, resource_name, source_ip, created_at`

type ActivityRepository struct {
	db sqlx.ExtContext
}

func NewActivityRepository(db sqlx.ExtContext) *ActivityRepository {
	return &ActivityRepository{db: db}
}

func (r *ActivityRepository) Append(ctx context.Context, e *domain.ActivityLogEntry) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO activity_logs (`+activityColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.ActorID, e.ActorName, e.Action, e.ResourceKind, e.ResourceName, e.SourceIP, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

func (r *ActivityRepository) List(ctx context.Context, actorID string, limit int) ([]domain.ActivityLogEntry, error) {
	entries := []domain.ActivityLogEntry{}
	var err error
	if actorID == "" {
		err = sqlx.SelectContext(ctx, r.db, &entries, `
            SELECT `+activityColumns+` FROM activity_logs
            ORDER BY created_at DESC LIMIT $1`, limit)
	} else {
		err = sqlx.SelectContext(ctx, r.db, &entries, `
            SELECT `+activityColumns+` FROM activity_logs
            WHERE actor_id = $1
            ORDER BY created_at DESC LIMIT $2`, actorID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	return entries, nil
}
