package service

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"kurodrive/internal/activity"
	"kurodrive/internal/domain"
	"kurodrive/internal/logging"
	"kurodrive/internal/repository"
)

const (
	DefaultActivityLimit      = 50
	DefaultAdminActivityLimit = 100
	MaxActivityLimit          = 1000
	recentActivityLimit       = 10
)

// ActivityService читает журнал действий.
type ActivityService struct {
	store repository.Store
}

func NewActivityService(store repository.Store) *ActivityService {
	return &ActivityService{store: store}
}

// ListActivity возвращает последние записи пользователя, новые первыми.
func (s *ActivityService) ListActivity(ctx context.Context, userID string, limit int) ([]domain.ActivityLogEntry, error) {
	return s.list(ctx, userID, clampLimit(limit, DefaultActivityLimit))
}

// ListAllActivity: журнал всех пользователей, только для администратора.
func (s *ActivityService) ListAllActivity(ctx context.Context, admin domain.Principal, limit int) ([]domain.ActivityLogEntry, error) {
	if !admin.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	return s.list(ctx, "", clampLimit(limit, DefaultAdminActivityLimit))
}

func (s *ActivityService) list(ctx context.Context, actorID string, limit int) ([]domain.ActivityLogEntry, error) {
	var entries []domain.ActivityLogEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		entries, err = tx.Activity().List(ctx, actorID, limit)
		return err
	})
	return entries, err
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, MaxActivityLimit)
}

// AdminService собирает операции панели администратора.
type AdminService struct {
	store    repository.Store
	quota    *StorageQuotaService
	cascade  *cascade
	activity activity.Recorder
	logger   logging.Logger
}

// NewAdminService использует каскад папок для удаления пользователей,
// поэтому размер прохода у них общий.
func NewAdminService(
	store repository.Store,
	quota *StorageQuotaService,
	folders *FolderService,
	recorder activity.Recorder,
	logger logging.Logger,
) *AdminService {
	return &AdminService{
		store:    store,
		quota:    quota,
		cascade:  folders.cascade,
		activity: recorder,
		logger:   logger.With("component", "admin"),
	}
}

// UserUpdate задаёт изменяемые поля. nil означает «не менять».
type UserUpdate struct {
	Role         *domain.Role `json:"role"`
	StorageLimit *int64       `json:"storage_limit"`
}

type AdminStats struct {
	domain.StorageStats
	RecentActivity []domain.ActivityLogEntry `json:"recent_activity"`
}

func (s *AdminService) ListUsers(ctx context.Context, admin domain.Principal) ([]domain.User, error) {
	if !admin.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	var users []domain.User
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		users, err = tx.Users().List(ctx)
		return err
	})
	return users, err
}

// UpdateUserLimit меняет квоту пользователя и пишет это в журнал.
func (s *AdminService) UpdateUserLimit(ctx context.Context, admin domain.Principal, userID string, limit int64, sourceIP string) error {
	return s.UpdateUser(ctx, admin, userID, UserUpdate{StorageLimit: &limit}, sourceIP)
}

// UpdateUser меняет роль и квоту пользователя. Поля применяются по очереди:
// сначала квота, затем роль.
func (s *AdminService) UpdateUser(ctx context.Context, admin domain.Principal, userID string, upd UserUpdate, sourceIP string) error {
	if !admin.IsAdmin() {
		return domain.ErrForbidden
	}
	if upd.Role == nil && upd.StorageLimit == nil {
		return domain.Invalidf("nothing to update")
	}
	// Проверки до записи, чтобы не применить квоту без роли.
	if upd.StorageLimit != nil && *upd.StorageLimit <= 0 {
		return domain.Invalidf("storage limit must be positive")
	}
	if upd.Role != nil && (!upd.Role.Valid() || (userID == admin.UserID && *upd.Role != domain.RoleAdmin)) {
		return domain.Invalidf("role %q cannot be assigned to user %s", *upd.Role, userID)
	}
	if upd.StorageLimit != nil {
		if err := s.quota.SetLimit(ctx, admin, userID, *upd.StorageLimit); err != nil {
			return err
		}
	}
	if upd.Role != nil {
		if err := s.quota.SetRole(ctx, admin, userID, *upd.Role); err != nil {
			return err
		}
	}
	s.record(ctx, admin, domain.ActionUpdate, userID, sourceIP)
	return nil
}

// DeleteUser удаляет пользователя вместе со всеми папками, файлами,
// ссылками и блобами. Журнал действий сохраняется. Удалить самого себя нельзя.
func (s *AdminService) DeleteUser(ctx context.Context, admin domain.Principal, userID, sourceIP string) (*DeleteReport, error) {
	if !admin.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if userID == admin.UserID {
		return nil, domain.Invalidf("cannot delete yourself")
	}

	scope := func(ctx context.Context, tx repository.Tx) ([]uuid.UUID, []domain.File, error) {
		if _, err := tx.Users().Get(ctx, userID); err != nil {
			return nil, nil, err
		}
		folders, err := tx.Folders().List(ctx, userID, nil)
		if err != nil {
			return nil, nil, err
		}
		files, err := tx.Files().List(ctx, userID, nil)
		if err != nil {
			return nil, nil, err
		}
		roots := make([]uuid.UUID, 0, len(folders))
		for _, f := range folders {
			roots = append(roots, f.ID)
		}
		return roots, files, nil
	}
	finish := func(ctx context.Context, tx repository.Tx) error {
		return tx.Users().Delete(ctx, userID)
	}

	report, err := s.cascade.run(ctx, userID, scope, finish)
	if report == nil {
		return nil, fmt.Errorf("failed to delete user %s: %w", userID, err)
	}

	s.logger.Info(ctx, "user deleted",
		"user_id", userID,
		"folders", report.FoldersDeleted,
		"files", report.FilesDeleted,
		"released", humanize.IBytes(uint64(report.BytesReleased)),
		"admin_id", admin.UserID)
	s.record(ctx, admin, domain.ActionDelete, userID, sourceIP)
	return report, err
}

func (s *AdminService) record(ctx context.Context, admin domain.Principal, action domain.Action, userID, ip string) {
	s.activity.Record(ctx, activity.Event{
		ActorID:      admin.UserID,
		ActorName:    admin.Name,
		Action:       action,
		ResourceKind: domain.ResourceUser,
		ResourceName: userID,
		SourceIP:     ip,
	})
}

func (s *AdminService) Stats(ctx context.Context, admin domain.Principal) (*AdminStats, error) {
	if !admin.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	out := &AdminStats{}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		stats, err := tx.Stats(ctx)
		if err != nil {
			return err
		}
		out.StorageStats = *stats
		out.RecentActivity, err = tx.Activity().List(ctx, "", recentActivityLimit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
