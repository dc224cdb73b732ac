package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"kurodrive/internal/domain"
)

const fileColumns = `id, name, size, content_kind, mime_type, folder_id, owner_id, blob_handle, created_at, updated_at`

type FileRepository struct {
	db sqlx.ExtContext
}

func NewFileRepository(db sqlx.ExtContext) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) Get(ctx context.Context, ownerID string, id uuid.UUID) (*domain.File, error) {
	return r.get(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1 AND owner_id = $2`, id, ownerID)
}

func (r *FileRepository) Lock(ctx context.Context, ownerID string, id uuid.UUID) (*domain.File, error) {
	return r.get(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1 AND owner_id = $2 FOR UPDATE`, id, ownerID)
}

func (r *FileRepository) get(ctx context.Context, query string, args ...any) (*domain.File, error) {
	var f domain.File
	if err := sqlx.GetContext(ctx, r.db, &f, query, args...); err != nil {
		return nil, notFound(err, "file")
	}
	return &f, nil
}

func (r *FileRepository) List(ctx context.Context, ownerID string, folderID *uuid.UUID) ([]domain.File, error) {
	files := []domain.File{}
	err := sqlx.SelectContext(ctx, r.db, &files, `
        SELECT `+fileColumns+`
        FROM files
        WHERE owner_id = $1 AND folder_id IS NOT DISTINCT FROM $2::uuid
        ORDER BY name, id`,
		ownerID, folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}

func (r *FileRepository) LockByFolder(ctx context.Context, ownerID string, folderID uuid.UUID) ([]domain.File, error) {
	var files []domain.File
	err := sqlx.SelectContext(ctx, r.db, &files, `
        SELECT `+fileColumns+`
        FROM files
        WHERE owner_id = $1 AND folder_id = $2
        ORDER BY id
        FOR UPDATE`,
		ownerID, folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock folder files: %w", err)
	}
	return files, nil
}

func (r *FileRepository) Create(ctx context.Context, f *domain.File) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO files (id, name, size, content_kind, mime_type, folder_id, owner_id, blob_handle, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		f.ID, f.Name, f.Size, f.ContentKind, f.MIMEType, f.FolderID, f.OwnerID, f.BlobHandle, f.CreatedAt, f.UpdatedAt)
	if pqCode(err) == codeForeignKeyViolation {
		return domain.ErrParentNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to create file record: %w", err)
	}
	return nil
}

func (r *FileRepository) Update(ctx context.Context, f *domain.File) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE files
        SET name = $1, content_kind = $2, folder_id = $3, updated_at = $4
        WHERE id = $5 AND owner_id = $6`,
		f.Name, f.ContentKind, f.FolderID, f.UpdatedAt, f.ID, f.OwnerID)
	if pqCode(err) == codeForeignKeyViolation {
		return domain.ErrParentNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update file: %w", err)
	}
	return requireAffected(res, "file")
}

func (r *FileRepository) DeleteMany(ctx context.Context, ownerID string, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM files WHERE owner_id = $1 AND id = ANY($2::uuid[])`,
		ownerID, uuidArray(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to delete files: %w", err)
	}
	return res.RowsAffected()
}
