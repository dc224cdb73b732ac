package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"kurodrive/internal/domain"
)

type fileRepo struct {
	txn *badger.Txn
}

func (r *fileRepo) Get(_ context.Context, ownerID string, id uuid.UUID) (*domain.File, error) {
	f, err := loadFile(r.txn, id)
	if err == nil && f.OwnerID != ownerID {
		err = domain.ErrNotFound
	}
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("file %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (r *fileRepo) Lock(ctx context.Context, ownerID string, id uuid.UUID) (*domain.File, error) {
	return r.Get(ctx, ownerID, id)
}

func (r *fileRepo) List(ctx context.Context, ownerID string, folderID *uuid.UUID) ([]domain.File, error) {
	files, err := r.inFolder(ctx, ownerID, folderID)
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].Name != files[j].Name {
			return files[i].Name < files[j].Name
		}
		return files[i].ID.String() < files[j].ID.String()
	})
	return files, nil
}

func (r *fileRepo) LockByFolder(ctx context.Context, ownerID string, folderID uuid.UUID) ([]domain.File, error) {
	return r.inFolder(ctx, ownerID, &folderID)
}

func (r *fileRepo) inFolder(ctx context.Context, ownerID string, folderID *uuid.UUID) ([]domain.File, error) {
	ids, err := scanIDs(r.txn, keyFileInFolderPrefix(ownerID, folderID))
	if err != nil {
		return nil, err
	}
	files := make([]domain.File, 0, len(ids))
	for _, id := range ids {
		f, err := r.Get(ctx, ownerID, id)
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}
	return files, nil
}

func (r *fileRepo) Create(_ context.Context, f *domain.File) error {
	if err := r.checkFolder(f); err != nil {
		return err
	}
	return r.put(f)
}

func (r *fileRepo) Update(ctx context.Context, f *domain.File) error {
	old, err := r.Get(ctx, f.OwnerID, f.ID)
	if err != nil {
		return err
	}
	if !domain.SameParent(old.FolderID, f.FolderID) {
		if err := r.checkFolder(f); err != nil {
			return err
		}
	}
	if err := r.unindex(old); err != nil {
		return err
	}
	old.Name, old.ContentKind, old.FolderID, old.UpdatedAt = f.Name, f.ContentKind, f.FolderID, f.UpdatedAt
	return r.put(old)
}

func (r *fileRepo) checkFolder(f *domain.File) error {
	if f.FolderID == nil {
		return nil
	}
	var folder domain.Folder
	err := getJSON(r.txn, keyFolder(*f.FolderID), &folder)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && folder.OwnerID != f.OwnerID) {
		return domain.ErrParentNotFound
	}
	return err
}

func (r *fileRepo) put(f *domain.File) error {
	if err := setJSON(r.txn, keyFile(f.ID), newFileRecord(f)); err != nil {
		return err
	}
	if err := r.txn.Set(keyFileInFolder(f.OwnerID, f.FolderID, f.ID), nil); err != nil {
		return fmt.Errorf("failed to index file: %w", err)
	}
	return r.txn.Set(keyFileName(f.OwnerID, f.Name, f.ID), nil)
}

func (r *fileRepo) unindex(f *domain.File) error {
	return deleteKeys(r.txn,
		keyFileInFolder(f.OwnerID, f.FolderID, f.ID),
		keyFileName(f.OwnerID, f.Name, f.ID),
	)
}

func (r *fileRepo) DeleteMany(ctx context.Context, ownerID string, ids []uuid.UUID) (int64, error) {
	var n int64
	for _, id := range ids {
		f, err := r.Get(ctx, ownerID, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}
		if err := r.unindex(f); err != nil {
			return n, err
		}
		if err := deleteKeys(r.txn, keyFile(id)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func loadFile(txn *badger.Txn, id uuid.UUID) (*domain.File, error) {
	var rec fileRecord
	if err := getJSON(txn, keyFile(id), &rec); err != nil {
		return nil, err
	}
	return rec.file(), nil
}
