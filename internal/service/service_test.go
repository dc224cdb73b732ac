package service

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"kurodrive/internal/activity"
	"kurodrive/internal/blob"
	"kurodrive/internal/blob/localfs"
	"kurodrive/internal/domain"
	"kurodrive/internal/logging"
	"kurodrive/internal/metrics"
	"kurodrive/internal/repository/badgerstore"
)

var (
	alice = domain.Principal{UserID: "alice", Name: "Alice", Role: domain.RoleUser}
	bob   = domain.Principal{UserID: "bob", Name: "Bob", Role: domain.RoleUser}
	root  = domain.Principal{UserID: "root", Name: "Root", Role: domain.RoleAdmin}
)

type recorderSpy struct {
	mu     sync.Mutex
	events []activity.Event
}

func (r *recorderSpy) Record(_ context.Context, e activity.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorderSpy) last() activity.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type metricsSpy struct {
	metrics.Recorder
	rejected     atomic.Int64
	clamped      atomic.Int64
	blobFailures atomic.Int64

	mu     sync.Mutex
	access map[string]int
}

func newMetricsSpy() *metricsSpy {
	return &metricsSpy{Recorder: metrics.NewNoop(), access: map[string]int{}}
}

func (m *metricsSpy) QuotaRejected()       { m.rejected.Add(1) }
func (m *metricsSpy) QuotaReleaseClamped() { m.clamped.Add(1) }
func (m *metricsSpy) BlobDeleteFailed()    { m.blobFailures.Add(1) }

func (m *metricsSpy) ShareAccess(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access[result]++
}

// hookedBlobs позволяет внедрять сбои и действия в операции хранилища блобов.
type hookedBlobs struct {
	blob.Store
	beforePut func()
	putErr    error
	deleteErr error
	getErr    error
}

func (h *hookedBlobs) Put(ctx context.Context, data []byte) (string, error) {
	if h.beforePut != nil {
		h.beforePut()
	}
	if h.putErr != nil {
		return "", h.putErr
	}
	return h.Store.Put(ctx, data)
}

func (h *hookedBlobs) Get(ctx context.Context, handle string) ([]byte, error) {
	if h.getErr != nil {
		return nil, h.getErr
	}
	return h.Store.Get(ctx, handle)
}

func (h *hookedBlobs) Delete(ctx context.Context, handle string) error {
	if h.deleteErr != nil {
		return h.deleteErr
	}
	return h.Store.Delete(ctx, handle)
}

type envOptions struct {
	limit        int64
	policy       BlobPolicy
	searchLimit  int
	cascadeBatch int
	storeOpts    []badgerstore.Option
}

type env struct {
	t       *testing.T
	fs      afero.Fs
	blobs   *hookedBlobs
	events  *recorderSpy
	metrics *metricsSpy

	store    *badgerstore.Store
	quota    *StorageQuotaService
	files    *FileService
	folders  *FolderService
	shares   *ShareService
	activity *ActivityService
	admin    *AdminService
}

func newEnv(t *testing.T, opts ...func(*envOptions)) *env {
	t.Helper()
	o := envOptions{limit: 1000, policy: BlobBestEffort}
	for _, opt := range opts {
		opt(&o)
	}

	logger := logging.NewNop()
	store, err := badgerstore.OpenInMemory(logger, o.storeOpts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	fsys := afero.NewMemMapFs()
	local, err := localfs.New(fsys, "/blobs")
	require.NoError(t, err)

	e := &env{
		t:       t,
		fs:      fsys,
		blobs:   &hookedBlobs{Store: local},
		events:  &recorderSpy{},
		metrics: newMetricsSpy(),
		store:   store,
	}
	e.quota = NewStorageQuotaService(store, o.limit, logger, e.metrics)
	cleaner := NewBlobCleaner(e.blobs, o.policy, 4, logger, e.metrics)
	e.files = NewFileService(store, e.blobs, e.quota, cleaner, e.events, o.searchLimit, logger)
	e.folders = NewFolderService(store, e.quota, cleaner, e.events, logger)
	e.shares = NewShareService(store, e.blobs, e.events, e.metrics, bcrypt.MinCost, logger)
	e.activity = NewActivityService(store)
	e.folders.SetCascadeBatch(o.cascadeBatch)
	e.admin = NewAdminService(store, e.quota, e.folders, e.events, logger)

	for _, p := range []domain.Principal{alice, bob, root} {
		_, err := e.quota.EnsureAccount(context.Background(), p)
		require.NoError(t, err)
	}
	return e
}

func (e *env) upload(p domain.Principal, name string, size int, folderID *uuid.UUID) *domain.File {
	e.t.Helper()
	f, err := e.files.UploadFile(context.Background(), p, UploadInput{
		Name:     name,
		Size:     int64(size),
		FolderID: folderID,
		Data:     []byte(strings.Repeat("x", size)),
	})
	require.NoError(e.t, err)
	return f
}

func (e *env) mkdir(p domain.Principal, name string, parentID *uuid.UUID) *domain.Folder {
	e.t.Helper()
	f, err := e.folders.CreateFolder(context.Background(), p, name, parentID, "")
	require.NoError(e.t, err)
	return f
}

func (e *env) used(userID string) int64 {
	e.t.Helper()
	info, err := e.quota.GetQuotaInfo(context.Background(), userID)
	require.NoError(e.t, err)
	return info.UsedSpace
}

// liveBytes обходит дерево владельца и суммирует размеры живых файлов.
func (e *env) liveBytes(userID string) int64 {
	e.t.Helper()
	var total int64
	worklist := []*uuid.UUID{nil}
	for len(worklist) > 0 {
		cur := worklist[0]
		worklist = worklist[1:]
		content, err := e.folders.GetFolderContent(context.Background(), userID, cur)
		require.NoError(e.t, err)
		for _, f := range content.Files {
			total += f.Size
		}
		for _, sub := range content.Folders {
			worklist = append(worklist, &sub.ID)
		}
	}
	return total
}

func (e *env) requireLedgerConsistent(userID string) {
	e.t.Helper()
	require.Equal(e.t, e.liveBytes(userID), e.used(userID), "storage_used must equal the sum of live file sizes")
}

func (e *env) blobCount() int {
	e.t.Helper()
	n := 0
	err := afero.Walk(e.fs, "/blobs", func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(e.t, err)
	return n
}

func ptr[T any](v T) *T { return &v }

var errInjected = errors.New("injected failure")

func withLimit(n int64) func(*envOptions) { return func(o *envOptions) { o.limit = n } }

func withPolicy(p BlobPolicy) func(*envOptions) { return func(o *envOptions) { o.policy = p } }

func withSearchLimit(n int) func(*envOptions) { return func(o *envOptions) { o.searchLimit = n } }

func withCascadeBatch(n int) func(*envOptions) { return func(o *envOptions) { o.cascadeBatch = n } }

func withStoreOptions(opts ...badgerstore.Option) func(*envOptions) {
	return func(o *envOptions) { o.storeOpts = append(o.storeOpts, opts...) }
}

func (e *env) setClock(now time.Time) {
	e.shares.now = func() time.Time { return now }
}
