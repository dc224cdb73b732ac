package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"

	"kurodrive/internal/domain"
	"kurodrive/internal/logging"
	"kurodrive/internal/metrics"
	"kurodrive/internal/repository"
)

// DefaultStorageLimit: квота нового пользователя, если конфигурация не задаёт иную.
const DefaultStorageLimit = 500 * 1024 * 1024

// StorageQuotaService: единственная точка изменения storage_used.
// Все резервирования и освобождения проходят через Reserve и Release
// или их варианты внутри уже открытой транзакции.
type StorageQuotaService struct {
	store        repository.Store
	locks        *userLocks
	defaultLimit int64
	logger       logging.Logger
	metrics      metrics.Recorder
}

func NewStorageQuotaService(
	store repository.Store,
	defaultLimit int64,
	logger logging.Logger,
	m metrics.Recorder,
) *StorageQuotaService {
	if defaultLimit <= 0 {
		defaultLimit = DefaultStorageLimit
	}
	return &StorageQuotaService{
		store:        store,
		locks:        newUserLocks(),
		defaultLimit: defaultLimit,
		logger:       logger.With("component", "quota"),
		metrics:      m,
	}
}

// release: результат освобождения места, который сообщается после коммита.
type release struct {
	userID    string
	requested int64
	released  int64
}

// withLedger открывает транзакцию, которая пишет запись пользователя.
// Такие транзакции одного пользователя выполняются по очереди и не
// конфликтуют друг с другом в оптимистичном хранилище.
func (s *StorageQuotaService) withLedger(ctx context.Context, userID string, fn func(ctx context.Context, tx repository.Tx) error) error {
	unlock, err := s.locks.lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()
	return s.store.WithTx(ctx, fn)
}

func (s *StorageQuotaService) Reserve(ctx context.Context, userID string, n int64) error {
	return s.withLedger(ctx, userID, func(ctx context.Context, tx repository.Tx) error {
		return s.reserveTx(ctx, tx, userID, n)
	})
}

func (s *StorageQuotaService) reserveTx(ctx context.Context, tx repository.Tx, userID string, n int64) error {
	if n < 0 {
		return domain.Invalidf("cannot reserve %d bytes", n)
	}
	if _, err := tx.Users().Reserve(ctx, userID, n); err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			s.metrics.QuotaRejected()
		}
		return err
	}
	return nil
}

// Release освобождает n байт. Освобождение больше занятого объёма
// не считается ошибкой: storage_used обнуляется, расхождение логируется.
func (s *StorageQuotaService) Release(ctx context.Context, userID string, n int64) error {
	var rel release
	err := s.withLedger(ctx, userID, func(ctx context.Context, tx repository.Tx) error {
		var err error
		rel, err = s.releaseTx(ctx, tx, userID, n)
		return err
	})
	if err != nil {
		return err
	}
	s.report(ctx, rel)
	return nil
}

func (s *StorageQuotaService) releaseTx(ctx context.Context, tx repository.Tx, userID string, n int64) (release, error) {
	if n < 0 {
		return release{}, domain.Invalidf("cannot release %d bytes", n)
	}
	released, _, err := tx.Users().Release(ctx, userID, n)
	if err != nil {
		return release{}, fmt.Errorf("failed to release space: %w", err)
	}
	return release{userID: userID, requested: n, released: released}, nil
}

func (s *StorageQuotaService) report(ctx context.Context, rel release) {
	if rel.released >= rel.requested {
		return
	}
	s.metrics.QuotaReleaseClamped()
	s.logger.Warn(ctx, "quota release clamped at zero",
		"user_id", rel.userID,
		"requested", humanize.IBytes(uint64(rel.requested)),
		"released", humanize.IBytes(uint64(rel.released)))
}

// EnsureAccount заводит учётную запись квоты при первом обращении пользователя.
func (s *StorageQuotaService) EnsureAccount(ctx context.Context, p domain.Principal) (*domain.User, error) {
	if p.UserID == "" {
		return nil, domain.Invalidf("user id is required")
	}
	var user *domain.User
	err := s.withLedger(ctx, p.UserID, func(ctx context.Context, tx repository.Tx) error {
		var err error
		user, err = tx.Users().Ensure(ctx, &domain.User{
			ID:           p.UserID,
			Name:         p.Name,
			Role:         p.Role,
			StorageLimit: s.defaultLimit,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure account: %w", err)
	}
	return user, nil
}

func (s *StorageQuotaService) GetQuotaInfo(ctx context.Context, userID string) (*domain.QuotaInfo, error) {
	var user *domain.User
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		user, err = tx.Users().Get(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get quota: %w", err)
	}
	return domain.NewQuotaInfo(user), nil
}

// SetLimit меняет квоту пользователя. Доступно только администратору.
func (s *StorageQuotaService) SetLimit(ctx context.Context, admin domain.Principal, userID string, limit int64) error {
	if !admin.IsAdmin() {
		return domain.ErrForbidden
	}
	if limit <= 0 {
		return domain.Invalidf("storage limit must be positive")
	}
	err := s.withLedger(ctx, userID, func(ctx context.Context, tx repository.Tx) error {
		return tx.Users().SetLimit(ctx, userID, limit)
	})
	if err != nil {
		return fmt.Errorf("failed to update quota limit: %w", err)
	}
	s.logger.Info(ctx, "quota limit updated",
		"user_id", userID, "limit", humanize.IBytes(uint64(limit)), "admin_id", admin.UserID)
	return nil
}

// SetRole меняет роль пользователя. Администратор не может понизить сам себя.
func (s *StorageQuotaService) SetRole(ctx context.Context, admin domain.Principal, userID string, role domain.Role) error {
	if !admin.IsAdmin() {
		return domain.ErrForbidden
	}
	if !role.Valid() {
		return domain.Invalidf("unknown role %q", role)
	}
	if userID == admin.UserID && role != domain.RoleAdmin {
		return domain.Invalidf("cannot revoke your own admin role")
	}
	err := s.withLedger(ctx, userID, func(ctx context.Context, tx repository.Tx) error {
		return tx.Users().SetRole(ctx, userID, role)
	})
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	s.logger.Info(ctx, "role updated", "user_id", userID, "role", role, "admin_id", admin.UserID)
	return nil
}

// userLocks выдаёт по одному семафору на пользователя. Запись удаляется,
// когда её никто не держит и не ждёт.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	sem  chan struct{}
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

func (l *userLocks) lock(ctx context.Context, userID string) (func(), error) {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{sem: make(chan struct{}, 1)}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	select {
	case ul.sem <- struct{}{}:
		return func() {
			<-ul.sem
			l.release(userID, ul)
		}, nil
	case <-ctx.Done():
		l.release(userID, ul)
		return nil, ctx.Err()
	}
}

func (l *userLocks) release(userID string, ul *userLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ul.refs--
	if ul.refs == 0 {
		delete(l.locks, userID)
	}
}
