package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"kurodrive/internal/activity"
	"kurodrive/internal/domain"
	"kurodrive/internal/logging"
	"kurodrive/internal/repository"
)

type FolderService struct {
	store    repository.Store
	cascade  *cascade
	activity activity.Recorder
	logger   logging.Logger
	now      func() time.Time
}

func NewFolderService(
	store repository.Store,
	quota *StorageQuotaService,
	cleaner *BlobCleaner,
	recorder activity.Recorder,
	logger logging.Logger,
) *FolderService {
	return &FolderService{
		store:    store,
		cascade:  &cascade{store: store, quota: quota, cleaner: cleaner, batch: DefaultCascadeBatch},
		activity: recorder,
		logger:   logger.With("component", "folders"),
		now:      time.Now,
	}
}

// SetCascadeBatch меняет число записей, удаляемых за один проход каскада.
func (s *FolderService) SetCascadeBatch(n int) {
	if n > 0 {
		s.cascade.batch = n
	}
}

func (s *FolderService) CreateFolder(ctx context.Context, p domain.Principal, name string, parentID *uuid.UUID, sourceIP string) (*domain.Folder, error) {
	name, err := domain.NormalizeName(name)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	folder := &domain.Folder{
		ID:        uuid.New(),
		Name:      name,
		ParentID:  parentID,
		OwnerID:   p.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if parentID != nil {
			if _, err := tx.Folders().Lock(ctx, p.UserID, *parentID); err != nil {
				return parentErr(err)
			}
		}
		if err := s.checkNameFree(ctx, tx, p.UserID, parentID, name, uuid.Nil); err != nil {
			return err
		}
		return tx.Folders().Create(ctx, folder)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, p, domain.ActionCreate, folder.Name, sourceIP)
	return folder, nil
}

// checkNameFree проверяет, что среди соседей нет другой папки с таким именем.
// Уникальный индекс в хранилище остаётся окончательной проверкой.
func (s *FolderService) checkNameFree(ctx context.Context, tx repository.Tx, ownerID string, parentID *uuid.UUID, name string, self uuid.UUID) error {
	other, err := tx.Folders().FindByName(ctx, ownerID, parentID, name)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil
	case err != nil:
		return err
	case other.ID == self:
		return nil
	}
	return fmt.Errorf("folder %q: %w", name, domain.ErrDuplicateName)
}

// RenameFolder переименовывает папку. Имя должно быть свободно среди
// соседей, как и при создании.
func (s *FolderService) RenameFolder(ctx context.Context, p domain.Principal, folderID uuid.UUID, newName, sourceIP string) (*domain.Folder, error) {
	name, err := domain.NormalizeName(newName)
	if err != nil {
		return nil, err
	}

	var folder *domain.Folder
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		if folder, err = tx.Folders().Lock(ctx, p.UserID, folderID); err != nil {
			return err
		}
		if folder.Name == name {
			return nil
		}
		if err := s.checkNameFree(ctx, tx, p.UserID, folder.ParentID, name, folder.ID); err != nil {
			return err
		}
		folder.Name = name
		folder.UpdatedAt = s.now().UTC()
		return tx.Folders().Update(ctx, folder)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, p, domain.ActionRename, folder.Name, sourceIP)
	return folder, nil
}

// MoveFolder переносит папку под нового родителя. Перенос в саму себя или
// в своего потомка создал бы цикл и отклоняется.
func (s *FolderService) MoveFolder(ctx context.Context, p domain.Principal, folderID uuid.UUID, parentID *uuid.UUID, sourceIP string) (*domain.Folder, error) {
	var folder *domain.Folder
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		if folder, err = tx.Folders().Lock(ctx, p.UserID, folderID); err != nil {
			return err
		}
		if domain.SameParent(folder.ParentID, parentID) {
			return nil
		}
		if parentID != nil {
			if err := s.checkNotDescendant(ctx, tx, p.UserID, folder.ID, *parentID); err != nil {
				return err
			}
		}
		if err := s.checkNameFree(ctx, tx, p.UserID, parentID, folder.Name, folder.ID); err != nil {
			return err
		}
		folder.ParentID = parentID
		folder.UpdatedAt = s.now().UTC()
		return tx.Folders().Update(ctx, folder)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, p, domain.ActionMove, folder.Name, sourceIP)
	return folder, nil
}

// checkNotDescendant поднимается от target к корню и проверяет, что folderID
// не встречается на пути. Цепочка блокируется, чтобы параллельный перенос
// не замкнул цикл.
func (s *FolderService) checkNotDescendant(ctx context.Context, tx repository.Tx, ownerID string, folderID, target uuid.UUID) error {
	seen := make(map[uuid.UUID]struct{})
	for cur := &target; cur != nil; {
		if *cur == folderID {
			return domain.Invalidf("cannot move folder into itself or its subfolder")
		}
		if _, ok := seen[*cur]; ok {
			return fmt.Errorf("folder hierarchy of %s contains a cycle", ownerID)
		}
		seen[*cur] = struct{}{}

		f, err := tx.Folders().Lock(ctx, ownerID, *cur)
		if err != nil {
			return parentErr(err)
		}
		cur = f.ParentID
	}
	return nil
}

// DeleteFolder удаляет папку со всем поддеревом, без рекурсии. Крупные
// деревья удаляются несколькими проходами ограниченного размера. Блобы
// удаляются после коммитов.
func (s *FolderService) DeleteFolder(ctx context.Context, p domain.Principal, folderID uuid.UUID, sourceIP string) (*DeleteReport, error) {
	var root *domain.Folder
	scope := func(ctx context.Context, tx repository.Tx) ([]uuid.UUID, []domain.File, error) {
		f, err := tx.Folders().Lock(ctx, p.UserID, folderID)
		if err != nil {
			return nil, nil, err
		}
		root = f
		return []uuid.UUID{f.ID}, nil, nil
	}

	report, err := s.cascade.run(ctx, p.UserID, scope, nil)
	if report == nil {
		return nil, err
	}

	s.logger.Info(ctx, "folder deleted",
		"folder_id", folderID,
		"folders", report.FoldersDeleted,
		"files", report.FilesDeleted,
		"released", humanize.IBytes(uint64(report.BytesReleased)))
	if root != nil {
		s.record(ctx, p, domain.ActionDelete, root.Name, sourceIP)
	}
	return report, err
}

func (s *FolderService) GetFolder(ctx context.Context, ownerID string, folderID uuid.UUID) (*domain.Folder, error) {
	var folder *domain.Folder
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		folder, err = tx.Folders().Get(ctx, ownerID, folderID)
		return err
	})
	return folder, err
}

// GetFolderContent возвращает подпапки и файлы. parentID == nil: верхний уровень.
func (s *FolderService) GetFolderContent(ctx context.Context, ownerID string, parentID *uuid.UUID) (*domain.FolderContent, error) {
	content := &domain.FolderContent{}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		content.Folder = nil
		if parentID != nil {
			if content.Folder, err = tx.Folders().Get(ctx, ownerID, *parentID); err != nil {
				return err
			}
		}
		if content.Folders, err = tx.Folders().List(ctx, ownerID, parentID); err != nil {
			return err
		}
		content.Files, err = tx.Files().List(ctx, ownerID, parentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return content, nil
}

func (s *FolderService) record(ctx context.Context, p domain.Principal, action domain.Action, name, ip string) {
	s.activity.Record(ctx, activity.Event{
		ActorID:      p.UserID,
		ActorName:    p.Name,
		Action:       action,
		ResourceKind: domain.ResourceFolder,
		ResourceName: name,
		SourceIP:     ip,
	})
}
