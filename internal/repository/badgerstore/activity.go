package badgerstore

import (
	"context"
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"kurodrive/internal/domain"
)

type activityRepo struct {
	txn *badger.Txn
}

// Append пишет запись дважды: в общий журнал и в журнал актора.
func (r *activityRepo) Append(_ context.Context, e *domain.ActivityLogEntry) error {
	if err := setJSON(r.txn, keyActivity(e.CreatedAt, e.ID), e); err != nil {
		return err
	}
	return setJSON(r.txn, keyActorLog(e.ActorID, e.CreatedAt, e.ID), e)
}

func (r *activityRepo) List(_ context.Context, actorID string, limit int) ([]domain.ActivityLogEntry, error) {
	prefix := []byte(prefixActivity)
	if actorID != "" {
		prefix = keyActorLogPrefix(actorID)
	}

	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.Prefix = prefix
	it := r.txn.NewIterator(opts)
	defer it.Close()

	entries := []domain.ActivityLogEntry{}
	seek := append(append([]byte{}, prefix...), 0xFF)
	for it.Seek(seek); it.Valid() && len(entries) < limit; it.Next() {
		var e domain.ActivityLogEntry
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to decode activity entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
