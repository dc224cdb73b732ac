package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"kurodrive/internal/domain"
)

const shareColumns = `id, file_id, owner_id, token, password_hash, expires_at, access_count, created_at`

type ShareLinkRepository struct {
	db sqlx.ExtContext
}

func NewShareLinkRepository(db sqlx.ExtContext) *ShareLinkRepository {
	return &ShareLinkRepository{db: db}
}

func (r *ShareLinkRepository) Create(ctx context.Context, l *domain.ShareLink) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO share_links (id, file_id, owner_id, token, password_hash, expires_at, access_count, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		l.ID, l.FileID, l.OwnerID, l.Token, l.PasswordHash, l.ExpiresAt, l.AccessCount, l.CreatedAt)
	if pqCode(err) == codeForeignKeyViolation {
		return domain.ErrFileNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to create share link: %w", err)
	}
	return nil
}

func (r *ShareLinkRepository) Get(ctx context.Context, ownerID string, id uuid.UUID) (*domain.ShareLink, error) {
	return r.get(ctx, `SELECT `+shareColumns+` FROM share_links WHERE id = $1 AND owner_id = $2`, id, ownerID)
}

func (r *ShareLinkRepository) GetByToken(ctx context.Context, token string) (*domain.ShareLink, error) {
	return r.get(ctx, `SELECT `+shareColumns+` FROM share_links WHERE token = $1`, token)
}

func (r *ShareLinkRepository) get(ctx context.Context, query string, args ...any) (*domain.ShareLink, error) {
	var l domain.ShareLink
	if err := sqlx.GetContext(ctx, r.db, &l, query, args...); err != nil {
		return nil, notFound(err, "share link")
	}
	return &l, nil
}

func (r *ShareLinkRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.ShareLink, error) {
	links := []domain.ShareLink{}
	err := sqlx.SelectContext(ctx, r.db, &links, `
        SELECT `+shareColumns+`
        FROM share_links
        WHERE owner_id = $1
        ORDER BY created_at DESC, id`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list share links: %w", err)
	}
	return links, nil
}

func (r *ShareLinkRepository) IncrementAccess(ctx context.Context, id uuid.UUID) (int64, error) {
	var count int64
	err := r.db.QueryRowxContext(ctx, `
        UPDATE share_links
        SET access_count = access_count + 1
        WHERE id = $1
        RETURNING access_count`,
		id).Scan(&count)
	if err != nil {
		return 0, notFound(err, "share link")
	}
	return count, nil
}

func (r *ShareLinkRepository) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM share_links WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete share link: %w", err)
	}
	return requireAffected(res, "share link")
}

func (r *ShareLinkRepository) DeleteByFiles(ctx context.Context, fileIDs []uuid.UUID) (int64, error) {
	if len(fileIDs) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM share_links WHERE file_id = ANY($1::uuid[])`, uuidArray(fileIDs))
	if err != nil {
		return 0, fmt.Errorf("failed to delete share links: %w", err)
	}
	return res.RowsAffected()
}

func (r *ShareLinkRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM share_links WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired share links: %w", err)
	}
	return res.RowsAffected()
}
