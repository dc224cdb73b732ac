package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"kurodrive/internal/domain"
)

const userColumns = `id, name, role, storage_used, storage_limit, created_at, updated_at`

type UserRepository struct {
	db sqlx.ExtContext
}

func NewUserRepository(db sqlx.ExtContext) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Get(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := sqlx.GetContext(ctx, r.db, &u,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

func (r *UserRepository) Ensure(ctx context.Context, u *domain.User) (*domain.User, error) {
	// Имя приходит от сервиса идентификации и перезаписывается, если
	// изменилось. Роль берётся из токена только при создании, дальше ею
	// управляет администратор.
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO users (id, name, role, storage_used, storage_limit)
        VALUES ($1, $2, $3, 0, $4)
        ON CONFLICT (id) DO UPDATE
        SET name = EXCLUDED.name, updated_at = CURRENT_TIMESTAMP
        WHERE users.name IS DISTINCT FROM EXCLUDED.name`,
		u.ID, u.Name, u.Role, u.StorageLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}
	return r.Get(ctx, u.ID)
}

func (r *UserRepository) Reserve(ctx context.Context, id string, n int64) (int64, error) {
	var used int64
	err := r.db.QueryRowxContext(ctx, `
        UPDATE users
        SET storage_used = storage_used + $1,
            updated_at = CURRENT_TIMESTAMP
        WHERE id = $2 AND storage_used + $1 <= storage_limit
        RETURNING storage_used`,
		n, id).Scan(&used)
	if err == nil {
		return used, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to reserve space: %w", err)
	}

	exists, err := r.exists(ctx, id)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return 0, fmt.Errorf("reserve %d bytes for %s: %w", n, id, domain.ErrQuotaExceeded)
}

func (r *UserRepository) Release(ctx context.Context, id string, n int64) (int64, int64, error) {
	var prev int64
	err := r.db.QueryRowxContext(ctx,
		`SELECT storage_used FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&prev)
	if err != nil {
		return 0, 0, notFound(err, "user")
	}

	var used int64
	err = r.db.QueryRowxContext(ctx, `
        UPDATE users
        SET storage_used = GREATEST(0, storage_used - $1),
            updated_at = CURRENT_TIMESTAMP
        WHERE id = $2
        RETURNING storage_used`,
		n, id).Scan(&used)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to release space: %w", err)
	}

	return prev - used, used, nil
}

func (r *UserRepository) SetLimit(ctx context.Context, id string, limit int64) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE users
        SET storage_limit = $1,
            updated_at = CURRENT_TIMESTAMP
        WHERE id = $2 AND storage_used <= $1`,
		limit, id)
	if err != nil {
		return fmt.Errorf("failed to update quota limit: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows > 0 {
		return nil
	}

	exists, err := r.exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return domain.Invalidf("limit %d is below current usage", limit)
}

func (r *UserRepository) SetRole(ctx context.Context, id string, role domain.Role) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE users
        SET role = $1,
            updated_at = CURRENT_TIMESTAMP
        WHERE id = $2`,
		role, id)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	return requireAffected(res, "user "+id)
}

// Delete удаляет запись пользователя. Папки, файлы и ссылки к этому моменту
// должны быть удалены, иначе сработают внешние ключи.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return requireAffected(res, "user "+id)
}

func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	err := sqlx.SelectContext(ctx, r.db, &users,
		`SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (r *UserRepository) exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowxContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}
