package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"kurodrive/internal/activity"
	"kurodrive/internal/blob"
	"kurodrive/internal/domain"
	"kurodrive/internal/logging"
	"kurodrive/internal/repository"
)

// DefaultSearchLimit ограничивает выдачу поиска, если конфигурация не задаёт иное.
const DefaultSearchLimit = 100

// ErrCursorConsumed возвращается при повторном обходе результатов поиска.
var ErrCursorConsumed = errors.New("search results already consumed")

// FileService представляет сервис для работы с файлами
type FileService struct {
	store    repository.Store
	blobs    blob.Store
	quota    *StorageQuotaService
	cleaner  *BlobCleaner
	activity activity.Recorder
	logger   logging.Logger

	searchLimit int
	now         func() time.Time
}

func NewFileService(
	store repository.Store,
	blobs blob.Store,
	quota *StorageQuotaService,
	cleaner *BlobCleaner,
	recorder activity.Recorder,
	searchLimit int,
	logger logging.Logger,
) *FileService {
	if searchLimit <= 0 {
		searchLimit = DefaultSearchLimit
	}
	return &FileService{
		store:       store,
		blobs:       blobs,
		quota:       quota,
		cleaner:     cleaner,
		activity:    recorder,
		logger:      logger.With("component", "files"),
		searchLimit: searchLimit,
		now:         time.Now,
	}
}

type UploadInput struct {
	Name     string
	Size     int64
	FolderID *uuid.UUID
	Data     []byte
	SourceIP string
}

// UploadFile загружает файл: резервирует место, пишет блоб и только потом
// создаёт запись. Любой сбой после резервирования возвращает место обратно.
func (s *FileService) UploadFile(ctx context.Context, p domain.Principal, in UploadInput) (*domain.File, error) {
	name, err := domain.NormalizeName(in.Name)
	if err != nil {
		return nil, err
	}
	if in.Size < 0 {
		return nil, domain.Invalidf("size must not be negative")
	}
	if int64(len(in.Data)) != in.Size {
		return nil, domain.Invalidf("declared size %d does not match %d bytes of content", in.Size, len(in.Data))
	}

	if in.FolderID != nil {
		if err := s.checkFolder(ctx, p.UserID, *in.FolderID); err != nil {
			return nil, err
		}
	}

	if err := s.quota.Reserve(ctx, p.UserID, in.Size); err != nil {
		return nil, err
	}

	handle, err := s.blobs.Put(ctx, in.Data)
	if err != nil {
		s.undoReserve(ctx, p.UserID, in.Size)
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreFailure, err)
	}

	now := s.now().UTC()
	file := &domain.File{
		ID:          uuid.New(),
		Name:        name,
		Size:        in.Size,
		ContentKind: domain.ContentKindOf(name),
		MIMEType:    mimetype.Detect(in.Data).String(),
		FolderID:    in.FolderID,
		OwnerID:     p.UserID,
		BlobHandle:  handle,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		// Папка могла исчезнуть, пока писался блоб. Блокировка строки папки
		// упорядочивает загрузку с каскадным удалением.
		if file.FolderID != nil {
			if _, err := tx.Folders().Lock(ctx, p.UserID, *file.FolderID); err != nil {
				return parentErr(err)
			}
			if err := tx.Folders().AdjustStats(ctx, *file.FolderID, 1, file.Size); err != nil {
				return err
			}
		}
		return tx.Files().Create(ctx, file)
	})
	if err != nil {
		_ = s.cleaner.Delete(ctx, handle)
		s.undoReserve(ctx, p.UserID, in.Size)
		return nil, err
	}

	s.logger.Info(ctx, "file uploaded",
		"file_id", file.ID, "owner_id", p.UserID, "size", humanize.IBytes(uint64(file.Size)))
	s.record(ctx, p, domain.ActionUpload, file.Name, in.SourceIP)
	return file, nil
}

func (s *FileService) undoReserve(ctx context.Context, userID string, n int64) {
	if err := s.quota.Release(context.WithoutCancel(ctx), userID, n); err != nil {
		s.logger.Error(ctx, "failed to return reserved space", "user_id", userID, "bytes", n, "error", err)
	}
}

func (s *FileService) checkFolder(ctx context.Context, ownerID string, folderID uuid.UUID) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.Folders().Get(ctx, ownerID, folderID)
		return parentErr(err)
	})
}

// parentErr сужает NotFound папки-получателя до ErrParentNotFound.
func parentErr(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrParentNotFound
	}
	return err
}

// DeleteFile удаляет запись, её публичные ссылки и освобождает место в одной
// транзакции. Блоб удаляется после коммита.
func (s *FileService) DeleteFile(ctx context.Context, p domain.Principal, fileID uuid.UUID, sourceIP string) error {
	var (
		file *domain.File
		rel  release
	)
	err := s.quota.withLedger(ctx, p.UserID, func(ctx context.Context, tx repository.Tx) error {
		var err error
		if file, err = tx.Files().Lock(ctx, p.UserID, fileID); err != nil {
			return err
		}
		if _, err := tx.ShareLinks().DeleteByFiles(ctx, []uuid.UUID{file.ID}); err != nil {
			return err
		}
		if _, err := tx.Files().DeleteMany(ctx, p.UserID, []uuid.UUID{file.ID}); err != nil {
			return err
		}
		if file.FolderID != nil {
			if err := tx.Folders().AdjustStats(ctx, *file.FolderID, -1, -file.Size); err != nil {
				return err
			}
		}
		rel, err = s.quota.releaseTx(ctx, tx, p.UserID, file.Size)
		return err
	})
	if err != nil {
		return err
	}
	s.quota.report(ctx, rel)

	s.record(ctx, p, domain.ActionDelete, file.Name, sourceIP)
	return s.cleaner.Delete(ctx, file.BlobHandle)
}

// MoveFile переносит файл в другую папку владельца. nil: верхний уровень.
func (s *FileService) MoveFile(ctx context.Context, p domain.Principal, fileID uuid.UUID, folderID *uuid.UUID, sourceIP string) (*domain.File, error) {
	var file *domain.File
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		if file, err = tx.Files().Lock(ctx, p.UserID, fileID); err != nil {
			return err
		}
		if domain.SameParent(file.FolderID, folderID) {
			return nil
		}
		if folderID != nil {
			if _, err := tx.Folders().Lock(ctx, p.UserID, *folderID); err != nil {
				return parentErr(err)
			}
			if err := tx.Folders().AdjustStats(ctx, *folderID, 1, file.Size); err != nil {
				return err
			}
		}
		if file.FolderID != nil {
			if err := tx.Folders().AdjustStats(ctx, *file.FolderID, -1, -file.Size); err != nil {
				return err
			}
		}
		file.FolderID = folderID
		file.UpdatedAt = s.now().UTC()
		return tx.Files().Update(ctx, file)
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, p, domain.ActionMove, file.Name, sourceIP)
	return file, nil
}

func (s *FileService) RenameFile(ctx context.Context, p domain.Principal, fileID uuid.UUID, newName, sourceIP string) (*domain.File, error) {
	name, err := domain.NormalizeName(newName)
	if err != nil {
		return nil, err
	}
	var file *domain.File
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		if file, err = tx.Files().Lock(ctx, p.UserID, fileID); err != nil {
			return err
		}
		file.Name = name
		file.ContentKind = domain.ContentKindOf(name)
		file.UpdatedAt = s.now().UTC()
		return tx.Files().Update(ctx, file)
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, p, domain.ActionRename, file.Name, sourceIP)
	return file, nil
}

func (s *FileService) GetFileInfo(ctx context.Context, ownerID string, fileID uuid.UUID) (*domain.File, error) {
	var file *domain.File
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		file, err = tx.Files().Get(ctx, ownerID, fileID)
		return err
	})
	return file, err
}

// GetFilesByFolder возвращает файлы папки. folderID == nil: верхний уровень.
func (s *FileService) GetFilesByFolder(ctx context.Context, ownerID string, folderID *uuid.UUID) ([]domain.File, error) {
	var files []domain.File
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if folderID != nil {
			if _, err := tx.Folders().Get(ctx, ownerID, *folderID); err != nil {
				return err
			}
		}
		var err error
		files, err = tx.Files().List(ctx, ownerID, folderID)
		return err
	})
	return files, err
}

// DownloadFile возвращает запись и содержимое файла владельца.
func (s *FileService) DownloadFile(ctx context.Context, p domain.Principal, fileID uuid.UUID, sourceIP string) (*domain.File, []byte, error) {
	file, err := s.GetFileInfo(ctx, p.UserID, fileID)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.blobs.Get(ctx, file.BlobHandle)
	if err != nil {
		return nil, nil, blobReadError(file, err)
	}
	s.record(ctx, p, domain.ActionDownload, file.Name, sourceIP)
	return file, data, nil
}

// PreviewFile отдаёт содержимое для просмотра в браузере. Событие в журнал
// не пишется.
func (s *FileService) PreviewFile(ctx context.Context, p domain.Principal, fileID uuid.UUID) (*domain.File, []byte, error) {
	file, err := s.GetFileInfo(ctx, p.UserID, fileID)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.blobs.Get(ctx, file.BlobHandle)
	if err != nil {
		return nil, nil, blobReadError(file, err)
	}
	return file, data, nil
}

// blobReadError: пропавший блоб означает пропавший файл, остальное сбой хранилища.
func blobReadError(file *domain.File, err error) error {
	if errors.Is(err, blob.ErrBlobNotFound) {
		return fmt.Errorf("%w: blob of file %s is missing", domain.ErrFileNotFound, file.ID)
	}
	return fmt.Errorf("%w: read blob of file %s: %v", domain.ErrStoreFailure, file.ID, err)
}

// SearchFiles ищет файлы владельца по подстроке имени без учёта регистра.
// Строки читаются из хранилища по мере обхода; повторный обход
// возвращает ErrCursorConsumed.
func (s *FileService) SearchFiles(ctx context.Context, ownerID, query string) iter.Seq2[domain.File, error] {
	query = strings.TrimSpace(query)
	var consumed atomic.Bool

	return func(yield func(domain.File, error) bool) {
		if consumed.Swap(true) {
			yield(domain.File{}, ErrCursorConsumed)
			return
		}
		if query == "" {
			yield(domain.File{}, domain.Invalidf("search query is required"))
			return
		}

		cur, err := s.store.SearchFiles(ctx, ownerID, query, s.searchLimit)
		if err != nil {
			yield(domain.File{}, err)
			return
		}
		defer cur.Close()

		for cur.Next() {
			if !yield(cur.File(), nil) {
				return
			}
		}
		if err := cur.Err(); err != nil {
			yield(domain.File{}, err)
		}
	}
}

func (s *FileService) record(ctx context.Context, p domain.Principal, action domain.Action, name, ip string) {
	s.activity.Record(ctx, activity.Event{
		ActorID:      p.UserID,
		ActorName:    p.Name,
		Action:       action,
		ResourceKind: domain.ResourceFile,
		ResourceName: name,
		SourceIP:     ip,
	})
}
