// Package badgerstore хранит метаданные во встраиваемой базе BadgerDB.
// Подходит для одиночного узла и для тестов (режим in-memory).
package badgerstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"kurodrive/internal/domain"
	"kurodrive/internal/logging"
	"kurodrive/internal/repository"
)

const (
	// DefaultSearchScanLimit ограничивает число просмотренных записей индекса
	// имён за один поиск.
	DefaultSearchScanLimit = 100_000

	minRetryDelay = time.Millisecond
	maxRetryDelay = 50 * time.Millisecond
)

type Store struct {
	db        *badger.DB
	logger    logging.Logger
	scanLimit int
}

var _ repository.Store = (*Store)(nil)

type Option func(*settings)

type settings struct {
	opts      badger.Options
	scanLimit int
}

// WithMemTableSize задаёт размер memtable. От него badger считает предельный
// размер одной транзакции.
func WithMemTableSize(n int64) Option {
	return func(s *settings) {
		s.opts = s.opts.WithMemTableSize(n)
		if maxBatch := n * 15 / 100; s.opts.ValueThreshold > maxBatch/2 {
			s.opts = s.opts.WithValueThreshold(maxBatch / 2)
		}
	}
}

func WithSearchScanLimit(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.scanLimit = n
		}
	}
}

// Open открывает базу в каталоге path.
func Open(path string, logger logging.Logger, opts ...Option) (*Store, error) {
	return open(badger.DefaultOptions(path).WithLogger(nil), logger, opts)
}

// OpenInMemory открывает базу без диска.
func OpenInMemory(logger logging.Logger, opts ...Option) (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil), logger, opts)
}

func open(base badger.Options, logger logging.Logger, opts []Option) (*Store, error) {
	st := settings{opts: base, scanLimit: DefaultSearchScanLimit}
	for _, o := range opts {
		o(&st)
	}
	db, err := badger.Open(st.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &Store{
		db:        db,
		logger:    logger.With("component", "badger"),
		scanLimit: st.scanLimit,
	}, nil
}

// WithTx выполняет fn в оптимистичной транзакции. Если параллельная
// транзакция изменила прочитанные ключи, badger вернёт ErrConflict при
// коммите и fn будет вызвана заново после паузы. Повторы идут, пока не
// отменён ctx: среди конфликтующих транзакций одна всегда проходит.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	delay := minRetryDelay
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			return fn(ctx, txScope{txn: txn})
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		if attempt%32 == 0 {
			s.logger.Warn(ctx, "transaction keeps conflicting", "attempts", attempt)
		}

		t := time.NewTimer(delay/2 + rand.N(delay/2+1))
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("transaction conflict: %w", ctx.Err())
		case <-t.C:
		}
		delay = min(delay*2, maxRetryDelay)
	}
}

func (s *Store) SearchFiles(ctx context.Context, ownerID, query string, limit int) (repository.FileCursor, error) {
	txn := s.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = keyFileNamePrefix(ownerID)
	it := txn.NewIterator(opts)
	it.Rewind()

	fold := cases.Fold()
	return &fileCursor{
		ctx:       ctx,
		logger:    s.logger,
		txn:       txn,
		it:        it,
		prefixLen: len(opts.Prefix),
		fold:      fold,
		query:     fold.String(query),
		limit:     limit,
		scanLimit: s.scanLimit,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type txScope struct {
	txn *badger.Txn
}

func (t txScope) Users() repository.UserRepository           { return &userRepo{txn: t.txn} }
func (t txScope) Folders() repository.FolderRepository       { return &folderRepo{txn: t.txn} }
func (t txScope) Files() repository.FileRepository           { return &fileRepo{txn: t.txn} }
func (t txScope) ShareLinks() repository.ShareLinkRepository { return &linkRepo{txn: t.txn} }
func (t txScope) Activity() repository.ActivityRepository    { return &activityRepo{txn: t.txn} }

func (t txScope) Stats(ctx context.Context) (*domain.StorageStats, error) {
	var stats domain.StorageStats
	var err error
	if stats.TotalFolders, err = countKeys(t.txn, prefixFolder); err != nil {
		return nil, err
	}
	if stats.TotalFiles, err = countKeys(t.txn, prefixFile); err != nil {
		return nil, err
	}
	users, err := (&userRepo{txn: t.txn}).List(ctx)
	if err != nil {
		return nil, err
	}
	stats.TotalUsers = int64(len(users))
	for _, u := range users {
		stats.TotalStorageUsed += u.StorageUsed
	}
	return &stats, nil
}

// fileCursor читает индекс имён в порядке ключей и сравнивает имя из ключа
// с подстрокой. Запись файла читается только для совпадений.
type fileCursor struct {
	ctx       context.Context
	logger    logging.Logger
	txn       *badger.Txn
	it        *badger.Iterator
	prefixLen int
	fold      cases.Caser
	query     string
	limit     int
	scanLimit int

	seen    int
	scanned int
	cur     domain.File
	err     error
	closed  bool
}

func (c *fileCursor) Next() bool {
	if c.err != nil || c.closed || c.seen >= c.limit {
		return false
	}
	for ; c.it.Valid(); c.it.Next() {
		if err := c.ctx.Err(); err != nil {
			c.err = err
			return false
		}
		if c.scanned >= c.scanLimit {
			c.logger.Warn(c.ctx, "search stopped at scan limit", "scanned", c.scanned, "matched", c.seen)
			return false
		}
		c.scanned++

		key := c.it.Item().Key()
		i := bytes.LastIndexByte(key, sep[0])
		if i < c.prefixLen {
			c.err = fmt.Errorf("corrupt name index key %q", key)
			return false
		}
		if !strings.Contains(c.fold.String(string(key[c.prefixLen:i])), c.query) {
			continue
		}
		id, err := uuid.ParseBytes(key[i+1:])
		if err != nil {
			c.err = fmt.Errorf("corrupt name index: %w", err)
			return false
		}
		f, err := loadFile(c.txn, id)
		if err != nil {
			c.err = err
			return false
		}
		c.it.Next()
		c.cur = *f
		c.seen++
		return true
	}
	return false
}

func (c *fileCursor) File() domain.File { return c.cur }

func (c *fileCursor) Err() error { return c.err }

func (c *fileCursor) Close() error {
	if !c.closed {
		c.closed = true
		c.it.Close()
		c.txn.Discard()
	}
	return nil
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read %q: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}
	return txn.Set(key, data)
}

func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return true, nil
}

// scanKeys собирает ключи с префиксом и закрывает итератор до возврата:
// в пишущей транзакции badger допускает только один открытый итератор.
func scanKeys(txn *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

func scanIDs(txn *badger.Txn, prefix []byte) ([]uuid.UUID, error) {
	keys := scanKeys(txn, prefix)
	ids := make([]uuid.UUID, 0, len(keys))
	for _, k := range keys {
		id, err := lastID(k)
		if err != nil {
			return nil, fmt.Errorf("corrupt index key %q: %w", k, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func countKeys(txn *badger.Txn, prefix string) (int64, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	var n int64
	for it.Rewind(); it.Valid(); it.Next() {
		n++
	}
	return n, nil
}

func deleteKeys(txn *badger.Txn, keys ...[]byte) error {
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return fmt.Errorf("failed to delete %q: %w", k, err)
		}
	}
	return nil
}
