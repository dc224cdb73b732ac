package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"kurodrive/internal/blob"
	"kurodrive/internal/domain"
	"kurodrive/internal/logging"
	"kurodrive/internal/metrics"
)

// BlobPolicy определяет, что делать, если блоб не удалось удалить после
// того, как запись о файле уже удалена.
type BlobPolicy string

const (
	// BlobBestEffort логирует сбой и не возвращает ошибку. Блоб остаётся
	// сиротой, но недоступен: на него больше нет ссылок.
	BlobBestEffort BlobPolicy = "best_effort"
	// BlobStrict возвращает ErrStoreFailure вызывающему.
	BlobStrict BlobPolicy = "strict"

	defaultCleanupConcurrency = 8
)

type BlobCleaner struct {
	blobs       blob.Store
	policy      BlobPolicy
	concurrency int
	logger      logging.Logger
	metrics     metrics.Recorder
}

func NewBlobCleaner(blobs blob.Store, policy BlobPolicy, concurrency int, logger logging.Logger, m metrics.Recorder) *BlobCleaner {
	if policy == "" {
		policy = BlobBestEffort
	}
	if concurrency <= 0 {
		concurrency = defaultCleanupConcurrency
	}
	return &BlobCleaner{
		blobs:       blobs,
		policy:      policy,
		concurrency: concurrency,
		logger:      logger.With("component", "blob_cleaner"),
		metrics:     m,
	}
}

func (c *BlobCleaner) Policy() BlobPolicy { return c.policy }

// Delete удаляет блобы параллельно, не более concurrency одновременно.
// Отмена ctx не прерывает удаление: метаданные к этому моменту уже удалены.
func (c *BlobCleaner) Delete(ctx context.Context, handles ...string) error {
	ctx = context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for _, h := range handles {
		g.Go(func() error {
			err := c.blobs.Delete(ctx, h)
			if err == nil {
				return nil
			}
			c.metrics.BlobDeleteFailed()
			c.logger.Warn(ctx, "failed to delete blob", "handle", h, "policy", c.policy, "error", err)
			if c.policy == BlobStrict {
				return fmt.Errorf("%w: delete blob %s: %v", domain.ErrStoreFailure, h, err)
			}
			return nil
		})
	}
	return g.Wait()
}
