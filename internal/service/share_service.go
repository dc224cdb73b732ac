package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"kurodrive/internal/activity"
	"kurodrive/internal/blob"
	"kurodrive/internal/domain"
	"kurodrive/internal/logging"
	"kurodrive/internal/metrics"
	"kurodrive/internal/repository"
)

const tokenBytes = 32

type ShareService struct {
	store      repository.Store
	blobs      blob.Store
	activity   activity.Recorder
	metrics    metrics.Recorder
	logger     logging.Logger
	bcryptCost int
	now        func() time.Time
}

func NewShareService(
	store repository.Store,
	blobs blob.Store,
	recorder activity.Recorder,
	m metrics.Recorder,
	bcryptCost int,
	logger logging.Logger,
) *ShareService {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &ShareService{
		store:      store,
		blobs:      blobs,
		activity:   recorder,
		metrics:    m,
		logger:     logger.With("component", "shares"),
		bcryptCost: bcryptCost,
		now:        time.Now,
	}
}

type IssueInput struct {
	FileID uuid.UUID
	// Password == nil или пустая строка: ссылка без пароля.
	Password *string
	// TTLHours == nil означает бессрочную ссылку, 0 означает немедленное истечение.
	TTLHours *int
	SourceIP string
}

// maxTTLHours: больший срок не помещается в time.Duration.
const maxTTLHours = math.MaxInt64 / int64(time.Hour)

func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// CreateShare выпускает публичную ссылку на файл владельца.
func (s *ShareService) CreateShare(ctx context.Context, p domain.Principal, in IssueInput) (*domain.ShareLink, error) {
	if in.TTLHours != nil && *in.TTLHours < 0 {
		return nil, domain.Invalidf("ttl_hours must not be negative")
	}
	if in.TTLHours != nil && int64(*in.TTLHours) > maxTTLHours {
		return nil, domain.Invalidf("ttl_hours must not exceed %d", maxTTLHours)
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	now := s.now().UTC()
	link := &domain.ShareLink{
		ID:        uuid.New(),
		FileID:    in.FileID,
		OwnerID:   p.UserID,
		Token:     token,
		CreatedAt: now,
	}
	if in.TTLHours != nil {
		expires := now.Add(time.Duration(*in.TTLHours) * time.Hour)
		link.ExpiresAt = &expires
	}
	if in.Password != nil && *in.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*in.Password), s.bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		h := string(hash)
		link.PasswordHash = &h
	}

	var file *domain.File
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		if file, err = tx.Files().Get(ctx, p.UserID, in.FileID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrFileNotFound
			}
			return err
		}
		return tx.ShareLinks().Create(ctx, link)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, p.UserID, p.Name, domain.ActionShare, file.Name, in.SourceIP)
	return link, nil
}

// resolve находит ссылку и её файл. Срок действия проверяется в момент
// вызова, а не фоновой очисткой.
func (s *ShareService) resolve(ctx context.Context, token string) (*domain.ShareLink, *domain.File, error) {
	var (
		link *domain.ShareLink
		file *domain.File
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		if link, err = tx.ShareLinks().GetByToken(ctx, token); err != nil {
			return err
		}
		file, err = tx.Files().Get(ctx, link.OwnerID, link.FileID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if link.ExpiredAt(s.now()) {
		return nil, nil, domain.ErrExpired
	}
	return link, file, nil
}

// GetSharedResource возвращает сведения о ссылке для анонимного получателя.
func (s *ShareService) GetSharedResource(ctx context.Context, token string) (*domain.LinkInfo, error) {
	link, file, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	return &domain.LinkInfo{
		FileName:         file.Name,
		FileSize:         file.Size,
		ContentKind:      file.ContentKind,
		RequiresPassword: link.HasPassword(),
		ExpiresAt:        link.ExpiresAt,
	}, nil
}

// DownloadShared отдаёт файл по ссылке. Счётчик обращений увеличивается
// только после успешного чтения блоба.
func (s *ShareService) DownloadShared(ctx context.Context, token string, password *string, sourceIP string) (*domain.File, []byte, error) {
	file, data, err := s.downloadShared(ctx, token, password, sourceIP)
	s.metrics.ShareAccess(accessResult(err))
	return file, data, err
}

func (s *ShareService) downloadShared(ctx context.Context, token string, password *string, sourceIP string) (*domain.File, []byte, error) {
	link, file, err := s.resolve(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	if link.HasPassword() {
		if password == nil {
			return nil, nil, domain.ErrWrongPassword
		}
		if err := bcrypt.CompareHashAndPassword([]byte(*link.PasswordHash), []byte(*password)); err != nil {
			return nil, nil, domain.ErrWrongPassword
		}
	}

	data, err := s.blobs.Get(ctx, file.BlobHandle)
	if err != nil {
		return nil, nil, blobReadError(file, err)
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.ShareLinks().IncrementAccess(ctx, link.ID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.record(ctx, link.OwnerID, domain.AnonymousActor, domain.ActionSharedDownload, file.Name, sourceIP)
	return file, data, nil
}

func accessResult(err error) string {
	switch domain.KindOf(err) {
	case "":
		return metrics.ShareAccessOK
	case domain.KindNotFound:
		return metrics.ShareAccessNotFound
	case domain.KindExpired:
		return metrics.ShareAccessExpired
	case domain.KindWrongPassword:
		return metrics.ShareAccessWrongPassword
	}
	return metrics.ShareAccessFailed
}

// DeleteShare отзывает ссылку. Чужая ссылка неотличима от отсутствующей.
func (s *ShareService) DeleteShare(ctx context.Context, p domain.Principal, linkID uuid.UUID, sourceIP string) error {
	var name string
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		link, err := tx.ShareLinks().Get(ctx, p.UserID, linkID)
		if err != nil {
			return err
		}
		name = "Unknown"
		if file, err := tx.Files().Get(ctx, p.UserID, link.FileID); err == nil {
			name = file.Name
		}
		return tx.ShareLinks().Delete(ctx, p.UserID, linkID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, p.UserID, p.Name, domain.ActionUnshare, name, sourceIP)
	return nil
}

func (s *ShareService) GetUserShares(ctx context.Context, ownerID string) ([]domain.ShareLink, error) {
	var links []domain.ShareLink
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		links, err = tx.ShareLinks().ListByOwner(ctx, ownerID)
		return err
	})
	return links, err
}

// PurgeExpired удаляет истёкшие ссылки. Это только сборка мусора:
// доступ по истёкшей ссылке отклоняется и без неё.
func (s *ShareService) PurgeExpired(ctx context.Context) (int64, error) {
	var n int64
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		n, err = tx.ShareLinks().DeleteExpired(ctx, s.now().UTC())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired links: %w", err)
	}
	if n > 0 {
		s.logger.Info(ctx, "expired share links purged", "count", n)
	}
	return n, nil
}

func (s *ShareService) record(ctx context.Context, actorID, actorName string, action domain.Action, name, ip string) {
	s.activity.Record(ctx, activity.Event{
		ActorID:      actorID,
		ActorName:    actorName,
		Action:       action,
		ResourceKind: domain.ResourceFile,
		ResourceName: name,
		SourceIP:     ip,
	})
}
