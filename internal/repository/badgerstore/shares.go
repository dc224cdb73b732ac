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

type linkRepo struct {
	txn *badger.Txn
}

func (r *linkRepo) Create(_ context.Context, l *domain.ShareLink) error {
	ok, err := exists(r.txn, keyFile(l.FileID))
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrFileNotFound
	}
	taken, err := exists(r.txn, keyLinkToken(l.Token))
	if err != nil {
		return err
	}
	if taken {
		return errors.New("share token collision")
	}

	if err := setJSON(r.txn, keyLink(l.ID), newLinkRecord(l)); err != nil {
		return err
	}
	for _, k := range [][]byte{
		keyLinkFile(l.FileID, l.ID),
		keyLinkOwner(l.OwnerID, l.ID),
	} {
		if err := r.txn.Set(k, nil); err != nil {
			return fmt.Errorf("failed to index share link: %w", err)
		}
	}
	return r.txn.Set(keyLinkToken(l.Token), l.ID[:])
}

func (r *linkRepo) Get(_ context.Context, ownerID string, id uuid.UUID) (*domain.ShareLink, error) {
	l, err := r.load(id)
	if err != nil {
		return nil, err
	}
	if l.OwnerID != ownerID {
		return nil, fmt.Errorf("share link %s: %w", id, domain.ErrNotFound)
	}
	return l, nil
}

func (r *linkRepo) load(id uuid.UUID) (*domain.ShareLink, error) {
	var rec linkRecord
	if err := getJSON(r.txn, keyLink(id), &rec); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("share link %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return rec.link(), nil
}

func (r *linkRepo) GetByToken(_ context.Context, token string) (*domain.ShareLink, error) {
	item, err := r.txn.Get(keyLinkToken(token))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("share link: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read token index: %w", err)
	}
	id, err := uuid.FromBytes(val)
	if err != nil {
		return nil, fmt.Errorf("corrupt token index: %w", err)
	}
	return r.load(id)
}

func (r *linkRepo) ListByOwner(_ context.Context, ownerID string) ([]domain.ShareLink, error) {
	ids, err := scanIDs(r.txn, keyLinkOwnerPrefix(ownerID))
	if err != nil {
		return nil, err
	}
	links := make([]domain.ShareLink, 0, len(ids))
	for _, id := range ids {
		l, err := r.load(id)
		if err != nil {
			return nil, err
		}
		links = append(links, *l)
	}
	sort.Slice(links, func(i, j int) bool {
		if !links[i].CreatedAt.Equal(links[j].CreatedAt) {
			return links[i].CreatedAt.After(links[j].CreatedAt)
		}
		return links[i].ID.String() < links[j].ID.String()
	})
	return links, nil
}

func (r *linkRepo) IncrementAccess(_ context.Context, id uuid.UUID) (int64, error) {
	l, err := r.load(id)
	if err != nil {
		return 0, err
	}
	l.AccessCount++
	if err := setJSON(r.txn, keyLink(id), newLinkRecord(l)); err != nil {
		return 0, err
	}
	return l.AccessCount, nil
}

func (r *linkRepo) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	l, err := r.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	return r.remove(l)
}

func (r *linkRepo) remove(l *domain.ShareLink) error {
	return deleteKeys(r.txn,
		keyLink(l.ID),
		keyLinkToken(l.Token),
		keyLinkFile(l.FileID, l.ID),
		keyLinkOwner(l.OwnerID, l.ID),
	)
}

func (r *linkRepo) DeleteByFiles(_ context.Context, fileIDs []uuid.UUID) (int64, error) {
	var n int64
	for _, fileID := range fileIDs {
		ids, err := scanIDs(r.txn, keyLinkFilePrefix(fileID))
		if err != nil {
			return n, err
		}
		for _, id := range ids {
			l, err := r.load(id)
			if err != nil {
				return n, err
			}
			if err := r.remove(l); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func (r *linkRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var expired []*domain.ShareLink
	for _, k := range scanKeys(r.txn, []byte(prefixLink)) {
		var rec linkRecord
		if err := getJSON(r.txn, k, &rec); err != nil {
			return 0, err
		}
		if l := rec.link(); l.ExpiredAt(now) {
			expired = append(expired, l)
		}
	}
	for _, l := range expired {
		if err := r.remove(l); err != nil {
			return 0, err
		}
	}
	return int64(len(expired)), nil
}
