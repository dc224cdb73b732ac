// Package repository описывает хранилище метаданных: пользователей, папки,
// файлы, публичные ссылки и журнал активности. Реализации лежат в
// подпакетах postgres и badgerstore.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"kurodrive/internal/domain"
)

// Store выполняет работу в транзакции. fn может быть вызвана повторно
// при конфликте сериализации, поэтому она не должна накапливать состояние
// между вызовами.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// SearchFiles открывает ленивый курсор по файлам владельца, имя которых
	// содержит query без учёта регистра. Не более limit строк.
	SearchFiles(ctx context.Context, ownerID, query string, limit int) (FileCursor, error)
	Close() error
}

type Tx interface {
	Users() UserRepository
	Folders() FolderRepository
	Files() FileRepository
	ShareLinks() ShareLinkRepository
	Activity() ActivityRepository
	Stats(ctx context.Context) (*domain.StorageStats, error)
}

// FileCursor читает результаты поиска по одной строке, как sql.Rows.
type FileCursor interface {
	Next() bool
	File() domain.File
	Err() error
	Close() error
}

type UserRepository interface {
	Get(ctx context.Context, id string) (*domain.User, error)
	// Ensure создаёт пользователя, если его нет, и возвращает актуальную запись.
	Ensure(ctx context.Context, u *domain.User) (*domain.User, error)
	// Reserve атомарно увеличивает storage_used на n, если результат не превысит
	// storage_limit. Иначе состояние не меняется и возвращается ErrQuotaExceeded.
	Reserve(ctx context.Context, id string, n int64) (used int64, err error)
	// Release уменьшает storage_used на n с насыщением в нуле и возвращает
	// фактически освобождённый объём.
	Release(ctx context.Context, id string, n int64) (released, used int64, err error)
	SetLimit(ctx context.Context, id string, limit int64) error
	SetRole(ctx context.Context, id string, role domain.Role) error
	// Delete удаляет только запись пользователя, его данные удаляются раньше.
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]domain.User, error)
}

type FolderRepository interface {
	Get(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Folder, error)
	// Lock читает папку и блокирует её до конца транзакции.
	Lock(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Folder, error)
	FindByName(ctx context.Context, ownerID string, parentID *uuid.UUID, name string) (*domain.Folder, error)
	List(ctx context.Context, ownerID string, parentID *uuid.UUID) ([]domain.Folder, error)
	// LockChildren возвращает и блокирует непосредственных потомков папки.
	LockChildren(ctx context.Context, ownerID string, parentID uuid.UUID) ([]domain.Folder, error)
	Create(ctx context.Context, f *domain.Folder) error
	// Update сохраняет имя, родителя и updated_at.
	Update(ctx context.Context, f *domain.Folder) error
	AdjustStats(ctx context.Context, id uuid.UUID, files, bytes int64) error
	DeleteMany(ctx context.Context, ownerID string, ids []uuid.UUID) (int64, error)
}

type FileRepository interface {
	Get(ctx context.Context, ownerID string, id uuid.UUID) (*domain.File, error)
	Lock(ctx context.Context, ownerID string, id uuid.UUID) (*domain.File, error)
	List(ctx context.Context, ownerID string, folderID *uuid.UUID) ([]domain.File, error)
	LockByFolder(ctx context.Context, ownerID string, folderID uuid.UUID) ([]domain.File, error)
	Create(ctx context.Context, f *domain.File) error
	// Update сохраняет имя, вид содержимого, папку и updated_at.
	Update(ctx context.Context, f *domain.File) error
	DeleteMany(ctx context.Context, ownerID string, ids []uuid.UUID) (int64, error)
}

type ShareLinkRepository interface {
	Create(ctx context.Context, l *domain.ShareLink) error
	Get(ctx context.Context, ownerID string, id uuid.UUID) (*domain.ShareLink, error)
	GetByToken(ctx context.Context, token string) (*domain.ShareLink, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.ShareLink, error)
	// IncrementAccess увеличивает счётчик на единицу и возвращает новое значение.
	IncrementAccess(ctx context.Context, id uuid.UUID) (int64, error)
	Delete(ctx context.Context, ownerID string, id uuid.UUID) error
	DeleteByFiles(ctx context.Context, fileIDs []uuid.UUID) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type ActivityRepository interface {
	Append(ctx context.Context, e *domain.ActivityLogEntry) error
	// List возвращает последние записи, новые первыми. Пустой actorID означает всех акторов.
	List(ctx context.Context, actorID string, limit int) ([]domain.ActivityLogEntry, error)
}
