package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"kurodrive/internal/domain"
	"kurodrive/internal/logging"
	"kurodrive/internal/repository"
)

const maxTxAttempts = 3

// Store: хранилище метаданных в PostgreSQL.
type Store struct {
	db     *sqlx.DB
	logger logging.Logger
}

var _ repository.Store = (*Store)(nil)

func NewStore(db *sqlx.DB, logger logging.Logger) *Store {
	return &Store{db: db, logger: logger.With("component", "postgres")}
}

// WithTx выполняет fn в транзакции READ COMMITTED. При ошибке сериализации
// или взаимной блокировке транзакция повторяется.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.withTx(ctx, fn)
		if err == nil || !retryable(err) || ctx.Err() != nil {
			return err
		}
		s.logger.Warn(ctx, "retrying transaction", "attempt", attempt, "error", err)
	}
	return err
}

func (s *Store) withTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", cerr)
		}
	}()

	return fn(ctx, txScope{q: tx})
}

func (s *Store) SearchFiles(ctx context.Context, ownerID, query string, limit int) (repository.FileCursor, error) {
	rows, err := s.db.QueryxContext(ctx, `
        SELECT `+fileColumns+`
        FROM files
        WHERE owner_id = $1 AND name ILIKE $2 ESCAPE '\'
        ORDER BY name, id
        LIMIT $3`,
		ownerID, containsPattern(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search files: %w", err)
	}
	return &fileCursor{rows: rows}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type txScope struct {
	q sqlx.ExtContext
}

func (t txScope) Users() repository.UserRepository           { return NewUserRepository(t.q) }
func (t txScope) Folders() repository.FolderRepository       { return NewFolderRepository(t.q) }
func (t txScope) Files() repository.FileRepository           { return NewFileRepository(t.q) }
func (t txScope) ShareLinks() repository.ShareLinkRepository { return NewShareLinkRepository(t.q) }
func (t txScope) Activity() repository.ActivityRepository    { return NewActivityRepository(t.q) }

func (t txScope) Stats(ctx context.Context) (*domain.StorageStats, error) {
	var stats domain.StorageStats
	err := sqlx.GetContext(ctx, t.q, &stats, `
        SELECT
            (SELECT count(*) FROM users)                         AS total_users,
            (SELECT count(*) FROM folders)                       AS total_folders,
            (SELECT count(*) FROM files)                         AS total_files,
            (SELECT COALESCE(SUM(storage_used), 0) FROM users)   AS total_storage_used`)
	if err != nil {
		return nil, fmt.Errorf("failed to collect stats: %w", err)
	}
	return &stats, nil
}

type fileCursor struct {
	rows *sqlx.Rows
	cur  domain.File
	err  error
}

func (c *fileCursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	c.cur = domain.File{}
	if err := c.rows.StructScan(&c.cur); err != nil {
		c.err = fmt.Errorf("failed to scan file: %w", err)
		return false
	}
	return true
}

func (c *fileCursor) File() domain.File { return c.cur }

func (c *fileCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *fileCursor) Close() error { return c.rows.Close() }
