package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"kurodrive/internal/domain"
)

type userRepo struct {
	txn *badger.Txn
}

func (r *userRepo) Get(_ context.Context, id string) (*domain.User, error) {
	var u domain.User
	if err := getJSON(r.txn, keyUser(id), &u); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) Ensure(ctx context.Context, u *domain.User) (*domain.User, error) {
	cur, err := r.Get(ctx, u.ID)
	switch {
	case err == nil:
		if cur.Name == u.Name {
			return cur, nil
		}
		cur.Name = u.Name
		cur.UpdatedAt = time.Now().UTC()
		return cur, setJSON(r.txn, keyUser(cur.ID), cur)
	case errors.Is(err, domain.ErrNotFound):
		now := time.Now().UTC()
		created := &domain.User{
			ID:           u.ID,
			Name:         u.Name,
			Role:         u.Role,
			StorageLimit: u.StorageLimit,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return created, setJSON(r.txn, keyUser(created.ID), created)
	default:
		return nil, err
	}
}

func (r *userRepo) Reserve(ctx context.Context, id string, n int64) (int64, error) {
	u, err := r.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if u.StorageUsed+n > u.StorageLimit {
		return 0, fmt.Errorf("reserve %d bytes for %s: %w", n, id, domain.ErrQuotaExceeded)
	}
	u.StorageUsed += n
	u.UpdatedAt = time.Now().UTC()
	if err := setJSON(r.txn, keyUser(id), u); err != nil {
		return 0, err
	}
	return u.StorageUsed, nil
}

func (r *userRepo) Release(ctx context.Context, id string, n int64) (int64, int64, error) {
	u, err := r.Get(ctx, id)
	if err != nil {
		return 0, 0, err
	}
	prev := u.StorageUsed
	u.StorageUsed = max(0, prev-n)
	u.UpdatedAt = time.Now().UTC()
	if err := setJSON(r.txn, keyUser(id), u); err != nil {
		return 0, 0, err
	}
	return prev - u.StorageUsed, u.StorageUsed, nil
}

func (r *userRepo) SetLimit(ctx context.Context, id string, limit int64) error {
	u, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if u.StorageUsed > limit {
		return domain.Invalidf("limit %d is below current usage", limit)
	}
	u.StorageLimit = limit
	u.UpdatedAt = time.Now().UTC()
	return setJSON(r.txn, keyUser(id), u)
}

func (r *userRepo) SetRole(ctx context.Context, id string, role domain.Role) error {
	u, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	u.Role = role
	u.UpdatedAt = time.Now().UTC()
	return setJSON(r.txn, keyUser(id), u)
}

func (r *userRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return deleteKeys(r.txn, keyUser(id))
}

func (r *userRepo) List(_ context.Context) ([]domain.User, error) {
	keys := scanKeys(r.txn, []byte(prefixUser))
	users := make([]domain.User, 0, len(keys))
	for _, k := range keys {
		var u domain.User
		if err := getJSON(r.txn, k, &u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}
