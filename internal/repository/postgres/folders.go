package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"kurodrive/internal/domain"
)

const folderColumns = `id, name, parent_id, owner_id, file_count, size_bytes, created_at, updated_at`

type FolderRepository struct {
	db sqlx.ExtContext
}

func NewFolderRepository(db sqlx.ExtContext) *FolderRepository {
	return &FolderRepository{db: db}
}

func (r *FolderRepository) Get(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Folder, error) {
	return r.get(ctx, `SELECT `+folderColumns+` FROM folders WHERE id = $1 AND owner_id = $2`, id, ownerID)
}

func (r *FolderRepository) Lock(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Folder, error) {
	return r.get(ctx, `SELECT `+folderColumns+` FROM folders WHERE id = $1 AND owner_id = $2 FOR UPDATE`, id, ownerID)
}

func (r *FolderRepository) FindByName(ctx context.Context, ownerID string, parentID *uuid.UUID, name string) (*domain.Folder, error) {
	return r.get(ctx, `
        SELECT `+folderColumns+`
        FROM folders
        WHERE owner_id = $1 AND parent_id IS NOT DISTINCT FROM $2::uuid AND name = $3`,
		ownerID, parentID, name)
}

func (r *FolderRepository) get(ctx context.Context, query string, args ...any) (*domain.Folder, error) {
	var f domain.Folder
	if err := sqlx.GetContext(ctx, r.db, &f, query, args...); err != nil {
		return nil, notFound(err, "folder")
	}
	return &f, nil
}

func (r *FolderRepository) List(ctx context.Context, ownerID string, parentID *uuid.UUID) ([]domain.Folder, error) {
	folders := []domain.Folder{}
	err := sqlx.SelectContext(ctx, r.db, &folders, `
        SELECT `+folderColumns+`
        FROM folders
        WHERE owner_id = $1 AND parent_id IS NOT DISTINCT FROM $2::uuid
        ORDER BY name`,
		ownerID, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	return folders, nil
}

func (r *FolderRepository) LockChildren(ctx context.Context, ownerID string, parentID uuid.UUID) ([]domain.Folder, error) {
	var folders []domain.Folder
	err := sqlx.SelectContext(ctx, r.db, &folders, `
        SELECT `+folderColumns+`
        FROM folders
        WHERE owner_id = $1 AND parent_id = $2
        ORDER BY id
        FOR UPDATE`,
		ownerID, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock subfolders: %w", err)
	}
	return folders, nil
}

func (r *FolderRepository) Create(ctx context.Context, f *domain.Folder) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO folders (id, name, parent_id, owner_id, file_count, size_bytes, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		f.ID, f.Name, f.ParentID, f.OwnerID, f.FileCount, f.SizeBytes, f.CreatedAt, f.UpdatedAt)
	return folderWriteError(err, f.Name)
}

func (r *FolderRepository) Update(ctx context.Context, f *domain.Folder) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE folders
        SET name = $1, parent_id = $2, updated_at = $3
        WHERE id = $4 AND owner_id = $5`,
		f.Name, f.ParentID, f.UpdatedAt, f.ID, f.OwnerID)
	if err != nil {
		return folderWriteError(err, f.Name)
	}
	return requireAffected(res, "folder")
}

func folderWriteError(err error, name string) error {
	if err == nil {
		return nil
	}
	switch pqCode(err) {
	case codeUniqueViolation:
		return fmt.Errorf("folder %q: %w", name, domain.ErrDuplicateName)
	case codeForeignKeyViolation:
		return domain.ErrParentNotFound
	}
	return fmt.Errorf("failed to write folder: %w", err)
}

func (r *FolderRepository) AdjustStats(ctx context.Context, id uuid.UUID, files, bytes int64) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE folders
        SET file_count = GREATEST(0, file_count + $1),
            size_bytes = GREATEST(0, size_bytes + $2),
            updated_at = CURRENT_TIMESTAMP
        WHERE id = $3`,
		files, bytes, id)
	if err != nil {
		return fmt.Errorf("failed to update folder stats: %w", err)
	}
	return requireAffected(res, "folder")
}

func (r *FolderRepository) DeleteMany(ctx context.Context, ownerID string, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM folders WHERE owner_id = $1 AND id = ANY($2::uuid[])`,
		ownerID, uuidArray(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to delete folders: %w", err)
	}
	return res.RowsAffected()
}
