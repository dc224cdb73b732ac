package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"kurodrive/internal/domain"
	"kurodrive/internal/repository"
)

// DefaultCascadeBatch ограничивает число записей, удаляемых за один проход.
const DefaultCascadeBatch = 1000

// DeleteReport описывает результат каскадного удаления.
type DeleteReport struct {
	FoldersDeleted int64 `json:"folders_deleted"`
	FilesDeleted   int64 `json:"files_deleted"`
	LinksDeleted   int64 `json:"links_deleted"`
	BytesReleased  int64 `json:"bytes_released"`
}

func (r *DeleteReport) add(o DeleteReport) {
	r.FoldersDeleted += o.FoldersDeleted
	r.FilesDeleted += o.FilesDeleted
	r.LinksDeleted += o.LinksDeleted
	r.BytesReleased += o.BytesReleased
}

// cascadeScope возвращает то, что нужно удалить: корневые папки поддеревьев
// и файлы вне этих поддеревьев.
type cascadeScope func(ctx context.Context, tx repository.Tx) (roots []uuid.UUID, loose []domain.File, err error)

// cascade удаляет поддеревья папок проходами. Каждый проход обходит дерево
// по явному списку в ширину и в одной транзакции удаляет не больше batch
// записей: сначала файлы с их ссылками, затем папки от самых глубоких.
// Место за файлы прохода освобождается в той же транзакции, поэтому каждый
// байт освобождается ровно один раз, даже если каскад прервётся.
type cascade struct {
	store   repository.Store
	quota   *StorageQuotaService
	cleaner *BlobCleaner
	batch   int
}

// run повторяет проходы, пока scope не опустеет. finish выполняется в
// транзакции последнего прохода. Блобы удаляются после коммитов.
func (c *cascade) run(ctx context.Context, ownerID string, scope cascadeScope, finish func(ctx context.Context, tx repository.Tx) error) (*DeleteReport, error) {
	var (
		report  DeleteReport
		handles []string
		runErr  error
	)
	for passes := 0; ; passes++ {
		var (
			pass  DeleteReport
			rel   release
			blobs []string
			done  bool
		)
		err := c.quota.withLedger(ctx, ownerID, func(ctx context.Context, tx repository.Tx) error {
			var err error
			pass, rel, blobs, done, err = c.pass(ctx, tx, ownerID, scope, finish)
			return err
		})
		if err != nil {
			// Корень удалил параллельный каскад после нашего первого прохода.
			if passes == 0 || !errors.Is(err, domain.ErrNotFound) {
				runErr = err
			}
			break
		}
		c.quota.report(ctx, rel)
		report.add(pass)
		handles = append(handles, blobs...)
		if done {
			break
		}
	}

	if runErr != nil && len(handles) == 0 {
		return nil, runErr
	}
	if err := c.cleaner.Delete(ctx, handles...); err != nil {
		runErr = errors.Join(runErr, err)
	}
	return &report, runErr
}

func (c *cascade) pass(
	ctx context.Context,
	tx repository.Tx,
	ownerID string,
	scope cascadeScope,
	finish func(ctx context.Context, tx repository.Tx) error,
) (report DeleteReport, rel release, blobs []string, done bool, err error) {
	roots, files, err := scope(ctx, tx)
	if err != nil {
		return report, rel, nil, false, err
	}

	visited := make(map[uuid.UUID]struct{})
	var folders []uuid.UUID
	queue := append([]uuid.UUID(nil), roots...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if _, ok := visited[cur]; ok {
			continue
		}
		visited[cur] = struct{}{}
		folders = append(folders, cur)

		inFolder, err := tx.Files().LockByFolder(ctx, ownerID, cur)
		if err != nil {
			return report, rel, nil, false, err
		}
		files = append(files, inFolder...)

		children, err := tx.Folders().LockChildren(ctx, ownerID, cur)
		if err != nil {
			return report, rel, nil, false, err
		}
		for _, ch := range children {
			queue = append(queue, ch.ID)
		}
	}

	budget := max(c.batch, 1)
	if len(files) > budget {
		files = files[:budget]
	} else {
		done = true
	}
	budget -= len(files)

	var dropFolders []uuid.UUID
	if done {
		if len(folders) <= budget {
			dropFolders = folders
		} else {
			// В обратном порядке обхода в ширину потомки идут раньше предков,
			// так что у каждой удаляемой папки дети удаляются вместе с ней.
			done = false
			for i := len(folders) - 1; i >= 0 && len(dropFolders) < budget; i-- {
				dropFolders = append(dropFolders, folders[i])
			}
		}
	}

	dropped := make(map[uuid.UUID]struct{}, len(dropFolders))
	for _, id := range dropFolders {
		dropped[id] = struct{}{}
	}
	type delta struct{ files, bytes int64 }
	deltas := make(map[uuid.UUID]delta)
	fileIDs := make([]uuid.UUID, 0, len(files))
	var bytes int64
	for _, f := range files {
		fileIDs = append(fileIDs, f.ID)
		blobs = append(blobs, f.BlobHandle)
		bytes += f.Size
		if f.FolderID == nil {
			continue
		}
		if _, ok := dropped[*f.FolderID]; !ok {
			d := deltas[*f.FolderID]
			deltas[*f.FolderID] = delta{files: d.files - 1, bytes: d.bytes - f.Size}
		}
	}

	if report.LinksDeleted, err = tx.ShareLinks().DeleteByFiles(ctx, fileIDs); err != nil {
		return report, rel, nil, false, err
	}
	if report.FilesDeleted, err = tx.Files().DeleteMany(ctx, ownerID, fileIDs); err != nil {
		return report, rel, nil, false, err
	}
	for id, d := range deltas {
		if err := tx.Folders().AdjustStats(ctx, id, d.files, d.bytes); err != nil {
			return report, rel, nil, false, err
		}
	}
	if report.FoldersDeleted, err = tx.Folders().DeleteMany(ctx, ownerID, dropFolders); err != nil {
		return report, rel, nil, false, err
	}
	if rel, err = c.quota.releaseTx(ctx, tx, ownerID, bytes); err != nil {
		return report, rel, nil, false, err
	}
	report.BytesReleased = rel.released
	if done && finish != nil {
		if err := finish(ctx, tx); err != nil {
			return report, rel, nil, false, err
		}
	}
	return report, rel, blobs, done, nil
}
