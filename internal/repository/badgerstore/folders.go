package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"kurodrive/internal/domain"
)

type folderRepo struct {
	txn *badger.Txn
}

// Get читает папку владельца. Чтение попадает в набор конфликтов
// транзакции, поэтому Lock совпадает с Get.
func (r *folderRepo) Get(_ context.Context, ownerID string, id uuid.UUID) (*domain.Folder, error) {
	f, err := r.load(id)
	if err != nil {
		return nil, err
	}
	if f.OwnerID != ownerID {
		return nil, fmt.Errorf("folder %s: %w", id, domain.ErrNotFound)
	}
	return f, nil
}

func (r *folderRepo) Lock(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Folder, error) {
	return r.Get(ctx, ownerID, id)
}

func (r *folderRepo) load(id uuid.UUID) (*domain.Folder, error) {
	var f domain.Folder
	if err := getJSON(r.txn, keyFolder(id), &f); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("folder %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return &f, nil
}

func (r *folderRepo) FindByName(ctx context.Context, ownerID string, parentID *uuid.UUID, name string) (*domain.Folder, error) {
	item, err := r.txn.Get(keyFolderName(ownerID, parentID, name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("folder %q: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up folder name: %w", err)
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read folder name index: %w", err)
	}
	id, err := uuid.FromBytes(val)
	if err != nil {
		return nil, fmt.Errorf("corrupt folder name index: %w", err)
	}
	return r.Get(ctx, ownerID, id)
}

func (r *folderRepo) List(ctx context.Context, ownerID string, parentID *uuid.UUID) ([]domain.Folder, error) {
	folders, err := r.children(ctx, ownerID, parentID)
	if err != nil {
		return nil, err
	}
	sort.Slice(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })
	return folders, nil
}

func (r *folderRepo) LockChildren(ctx context.Context, ownerID string, parentID uuid.UUID) ([]domain.Folder, error) {
	return r.children(ctx, ownerID, &parentID)
}

func (r *folderRepo) children(ctx context.Context, ownerID string, parentID *uuid.UUID) ([]domain.Folder, error) {
	ids, err := scanIDs(r.txn, keyFolderChildPrefix(ownerID, parentID))
	if err != nil {
		return nil, err
	}
	folders := make([]domain.Folder, 0, len(ids))
	for _, id := range ids {
		f, err := r.Get(ctx, ownerID, id)
		if err != nil {
			return nil, err
		}
		folders = append(folders, *f)
	}
	return folders, nil
}

func (r *folderRepo) Create(_ context.Context, f *domain.Folder) error {
	if err := r.checkPlacement(f, nil); err != nil {
		return err
	}
	return r.put(f)
}

func (r *folderRepo) Update(_ context.Context, f *domain.Folder) error {
	old, err := r.load(f.ID)
	if err != nil {
		return err
	}
	if old.OwnerID != f.OwnerID {
		return fmt.Errorf("folder %s: %w", f.ID, domain.ErrNotFound)
	}
	if err := r.checkPlacement(f, old); err != nil {
		return err
	}
	if err := deleteKeys(r.txn,
		keyFolderName(old.OwnerID, old.ParentID, old.Name),
		keyFolderChild(old.OwnerID, old.ParentID, old.ID),
	); err != nil {
		return err
	}
	old.Name, old.ParentID, old.UpdatedAt = f.Name, f.ParentID, f.UpdatedAt
	return r.put(old)
}

// checkPlacement проверяет родителя и уникальность имени среди соседей.
// Родитель перезаписывается без изменений: так параллельное удаление
// родителя гарантированно конфликтует с этой транзакцией.
func (r *folderRepo) checkPlacement(f *domain.Folder, old *domain.Folder) error {
	if f.ParentID != nil {
		if *f.ParentID == f.ID {
			return domain.Invalidf("folder cannot be its own parent")
		}
		parent, err := r.load(*f.ParentID)
		if errors.Is(err, domain.ErrNotFound) || (err == nil && parent.OwnerID != f.OwnerID) {
			return domain.ErrParentNotFound
		}
		if err != nil {
			return err
		}
		if err := setJSON(r.txn, keyFolder(parent.ID), parent); err != nil {
			return err
		}
	}

	if old != nil && old.Name == f.Name && domain.SameParent(old.ParentID, f.ParentID) {
		return nil
	}
	taken, err := exists(r.txn, keyFolderName(f.OwnerID, f.ParentID, f.Name))
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("folder %q: %w", f.Name, domain.ErrDuplicateName)
	}
	return nil
}

func (r *folderRepo) put(f *domain.Folder) error {
	if err := setJSON(r.txn, keyFolder(f.ID), f); err != nil {
		return err
	}
	if err := r.txn.Set(keyFolderName(f.OwnerID, f.ParentID, f.Name), f.ID[:]); err != nil {
		return fmt.Errorf("failed to index folder name: %w", err)
	}
	return r.txn.Set(keyFolderChild(f.OwnerID, f.ParentID, f.ID), nil)
}

func (r *folderRepo) AdjustStats(_ context.Context, id uuid.UUID, files, bytes int64) error {
	f, err := r.load(id)
	if err != nil {
		return err
	}
	f.FileCount = max(0, f.FileCount+files)
	f.SizeBytes = max(0, f.SizeBytes+bytes)
	f.UpdatedAt = time.Now().UTC()
	return setJSON(r.txn, keyFolder(id), f)
}

func (r *folderRepo) DeleteMany(ctx context.Context, ownerID string, ids []uuid.UUID) (int64, error) {
	var n int64
	for _, id := range ids {
		f, err := r.Get(ctx, ownerID, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}
		if err := deleteKeys(r.txn,
			keyFolder(f.ID),
			keyFolderName(f.OwnerID, f.ParentID, f.Name),
			keyFolderChild(f.OwnerID, f.ParentID, f.ID),
		); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
