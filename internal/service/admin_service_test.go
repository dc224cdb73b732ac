package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kurodrive/internal/activity"
	"kurodrive/internal/domain"
	"kurodrive/internal/logging"
)

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 50, clampLimit(0, 50))
	assert.Equal(t, 50, clampLimit(-3, 50))
	assert.Equal(t, 7, clampLimit(7, 50))
	assert.Equal(t, MaxActivityLimit, clampLimit(5000, 50))
}

func TestAdmin_RequiresAdmin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.admin.ListUsers(ctx, alice)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = e.admin.Stats(ctx, alice)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = e.activity.ListAllActivity(ctx, alice, 10)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.ErrorIs(t, e.admin.UpdateUserLimit(ctx, alice, "bob", 1, ""), domain.ErrForbidden)
}

func TestAdmin_UsersAndStats(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	folder := e.mkdir(alice, "f", nil)
	e.upload(alice, "a", 10, &folder.ID)
	e.upload(bob, "b", 5, nil)

	users, err := e.admin.ListUsers(ctx, root)
	require.NoError(t, err)
	assert.Len(t, users, 3)

	stats, err := e.admin.Stats(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalUsers)
	assert.Equal(t, int64(1), stats.TotalFolders)
	assert.Equal(t, int64(2), stats.TotalFiles)
	assert.Equal(t, int64(15), stats.TotalStorageUsed)
}

// Журнал пишется через настоящий асинхронный рекордер в то же хранилище.
func TestActivity_ThroughStore(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	rec := activity.NewAsyncRecorder(activity.NewStoreSink(e.store), 16, logging.NewNop(), e.metrics)
	e.files = NewFileService(e.store, e.blobs, e.quota, NewBlobCleaner(e.blobs, BlobBestEffort, 1, logging.NewNop(), e.metrics), rec, 0, logging.NewNop())

	f := e.upload(alice, "one.txt", 1, nil)
	_, err := e.files.RenameFile(ctx, alice, f.ID, "two.txt", "192.0.2.10")
	require.NoError(t, err)
	e.upload(bob, "bob.txt", 1, nil)
	require.NoError(t, rec.Close(ctx))

	entries, err := e.activity.ListActivity(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.ActionRename, entries[0].Action)
	assert.Equal(t, "two.txt", entries[0].ResourceName)
	assert.Equal(t, "192.0.2.10", entries[0].SourceIP)
	assert.Equal(t, domain.ActionUpload, entries[1].Action)
	assert.Equal(t, "unknown", entries[1].SourceIP)

	all, err := e.activity.ListAllActivity(ctx, root, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := e.activity.ListActivity(ctx, "alice", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	stats, err := e.admin.Stats(ctx, root)
	require.NoError(t, err)
	assert.Len(t, stats.RecentActivity, 3)
}

func TestAdmin_UpdateUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.upload(alice, "a", 100, nil)

	promote := ptr(domain.RoleAdmin)
	assert.ErrorIs(t, e.admin.UpdateUser(ctx, bob, "alice", UserUpdate{Role: promote}, ""), domain.ErrForbidden)
	assert.ErrorIs(t, e.admin.UpdateUser(ctx, root, "alice", UserUpdate{}, ""), domain.ErrInvalidArgument)
	assert.ErrorIs(t, e.admin.UpdateUser(ctx, root, "alice", UserUpdate{Role: ptr(domain.Role("owner"))}, ""), domain.ErrInvalidArgument)
	assert.ErrorIs(t, e.admin.UpdateUser(ctx, root, "root", UserUpdate{Role: ptr(domain.RoleUser)}, ""), domain.ErrInvalidArgument)
	assert.ErrorIs(t, e.admin.UpdateUser(ctx, root, "ghost", UserUpdate{Role: promote}, ""), domain.ErrNotFound)

	// Неверная роль не даёт применить и квоту.
	err := e.admin.UpdateUser(ctx, root, "alice", UserUpdate{Role: ptr(domain.Role("owner")), StorageLimit: ptr(int64(5000))}, "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	info, err := e.quota.GetQuotaInfo(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), info.TotalSpace)

	require.NoError(t, e.admin.UpdateUser(ctx, root, "alice", UserUpdate{Role: promote, StorageLimit: ptr(int64(5000))}, "10.0.0.1"))
	last := e.events.last()
	assert.Equal(t, domain.ActionUpdate, last.Action)
	assert.Equal(t, "alice", last.ResourceName)

	// Роль из токена не перетирает сохранённую.
	u, err := e.quota.EnsureAccount(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, u.Role)
	assert.Equal(t, int64(5000), u.StorageLimit)
	assert.Equal(t, int64(100), u.StorageUsed)

	require.NoError(t, e.admin.UpdateUser(ctx, root, "alice", UserUpdate{Role: ptr(domain.RoleUser)}, ""))
	u, err = e.quota.EnsureAccount(ctx, domain.Principal{UserID: "alice", Name: "Alice", Role: domain.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, u.Role)
}

func TestAdmin_DeleteUser(t *testing.T) {
	e := newEnv(t, withCascadeBatch(3))
	ctx := context.Background()

	docs := e.mkdir(alice, "docs", nil)
	sub := e.mkdir(alice, "sub", &docs.ID)
	e.mkdir(alice, "empty", nil)
	var total int64
	for i := range 4 {
		total += e.upload(alice, "top.txt", i+1, nil).Size
		total += e.upload(alice, "doc.txt", 10, &docs.ID).Size
		total += e.upload(alice, "sub.txt", 20, &sub.ID).Size
	}
	shared := e.upload(alice, "shared.txt", 5, &sub.ID)
	total += shared.Size
	link, err := e.shares.CreateShare(ctx, alice, IssueInput{FileID: shared.ID})
	require.NoError(t, err)

	bobFolder := e.mkdir(bob, "docs", nil)
	bobFile := e.upload(bob, "b.txt", 7, &bobFolder.ID)
	bobLink, err := e.shares.CreateShare(ctx, bob, IssueInput{FileID: bobFile.ID})
	require.NoError(t, err)

	_, err = e.admin.DeleteUser(ctx, alice, "bob", "")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = e.admin.DeleteUser(ctx, root, "root", "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = e.admin.DeleteUser(ctx, root, "ghost", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	report, err := e.admin.DeleteUser(ctx, root, "alice", "10.0.0.2")
	require.NoError(t, err)
	assert.Equal(t, DeleteReport{FoldersDeleted: 3, FilesDeleted: 13, LinksDeleted: 1, BytesReleased: total}, *report)

	last := e.events.last()
	assert.Equal(t, domain.ActionDelete, last.Action)
	assert.Equal(t, domain.ResourceUser, last.ResourceKind)
	assert.Equal(t, "alice", last.ResourceName)

	_, err = e.quota.GetQuotaInfo(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = e.shares.GetSharedResource(ctx, link.Token)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = e.admin.DeleteUser(ctx, root, "alice", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Данные других пользователей не тронуты.
	assert.Equal(t, 1, e.blobCount())
	assert.Equal(t, int64(7), e.used("bob"))
	_, err = e.shares.GetSharedResource(ctx, bobLink.Token)
	require.NoError(t, err)
	e.requireLedgerConsistent("bob")

	stats, err := e.admin.Stats(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalUsers)
	assert.Equal(t, int64(1), stats.TotalFolders)
	assert.Equal(t, int64(1), stats.TotalFiles)

	// Повторный вход создаёт пустую учётную запись.
	u, err := e.quota.EnsureAccount(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(0), u.StorageUsed)
	content, err := e.folders.GetFolderContent(ctx, "alice", nil)
	require.NoError(t, err)
	assert.Empty(t, content.Folders)
	assert.Empty(t, content.Files)
}
