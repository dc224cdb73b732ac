package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kurodrive/internal/domain"
)

func TestQuota_UploadBoundary(t *testing.T) {
	e := newEnv(t, withLimit(1000))
	ctx := context.Background()

	e.upload(alice, "a.bin", 600, nil)

	_, err := e.files.UploadFile(ctx, alice, UploadInput{Name: "b.bin", Size: 401, Data: make([]byte, 401)})
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.Equal(t, int64(600), e.used("alice"))
	assert.Equal(t, int64(1), e.metrics.rejected.Load())
	assert.Equal(t, 1, e.blobCount())

	e.upload(alice, "c.bin", 400, nil)
	assert.Equal(t, int64(1000), e.used("alice"))
	e.requireLedgerConsistent("alice")
}

func TestQuota_ReleaseClampsAtZero(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.quota.Reserve(ctx, "alice", 30))
	require.NoError(t, e.quota.Release(ctx, "alice", 50))

	assert.Equal(t, int64(0), e.used("alice"))
	assert.Equal(t, int64(1), e.metrics.clamped.Load())

	assert.ErrorIs(t, e.quota.Reserve(ctx, "alice", -1), domain.ErrInvalidArgument)
	assert.ErrorIs(t, e.quota.Reserve(ctx, "nobody", 1), domain.ErrNotFound)
}

func TestQuota_UsersDoNotShareLedgers(t *testing.T) {
	e := newEnv(t, withLimit(100))
	e.upload(alice, "a", 100, nil)
	e.upload(bob, "b", 100, nil)
	assert.Equal(t, int64(100), e.used("alice"))
	assert.Equal(t, int64(100), e.used("bob"))
}

func TestQuota_EnsureAccountKeepsUsage(t *testing.T) {
	e := newEnv(t)
	e.upload(alice, "a", 10, nil)

	renamed := alice
	renamed.Name = "Alice Liddell"
	u, err := e.quota.EnsureAccount(context.Background(), renamed)
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", u.Name)
	assert.Equal(t, int64(10), u.StorageUsed)
	assert.Equal(t, int64(1000), u.StorageLimit)

	_, err = e.quota.EnsureAccount(context.Background(), domain.Principal{})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestQuota_SetLimit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.upload(alice, "a", 500, nil)

	assert.ErrorIs(t, e.quota.SetLimit(ctx, bob, "alice", 2000), domain.ErrForbidden)
	assert.ErrorIs(t, e.quota.SetLimit(ctx, root, "alice", 0), domain.ErrInvalidArgument)
	assert.ErrorIs(t, e.quota.SetLimit(ctx, root, "alice", 499), domain.ErrInvalidArgument)
	assert.ErrorIs(t, e.quota.SetLimit(ctx, root, "ghost", 10), domain.ErrNotFound)

	require.NoError(t, e.admin.UpdateUserLimit(ctx, root, "alice", 2000, "10.0.0.9"))
	info, err := e.quota.GetQuotaInfo(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), info.TotalSpace)
	assert.Equal(t, int64(1500), info.AvailableSpace)
	assert.InDelta(t, 25.0, info.UsagePercent, 0.001)

	last := e.events.last()
	assert.Equal(t, domain.ActionUpdate, last.Action)
	assert.Equal(t, domain.ResourceUser, last.ResourceKind)
}

func TestQuota_ConcurrentReservesOnOneUser(t *testing.T) {
	e := newEnv(t, withLimit(1<<40))
	ctx := context.Background()
	const n = 200

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = e.quota.Reserve(ctx, "alice", 1)
		}()
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "reserve %d", i)
	}
	assert.Equal(t, int64(n), e.used("alice"))

	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = e.quota.Release(ctx, "alice", 1)
		}()
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "release %d", i)
	}
	assert.Equal(t, int64(0), e.used("alice"))
	assert.Equal(t, int64(0), e.metrics.clamped.Load())
}

func TestUserLocks(t *testing.T) {
	l := newUserLocks()
	ctx := context.Background()

	unlock, err := l.lock(ctx, "alice")
	require.NoError(t, err)

	// Другой пользователь не ждёт.
	unlockBob, err := l.lock(ctx, "bob")
	require.NoError(t, err)
	unlockBob()

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = l.lock(waitCtx, "alice")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	acquired := make(chan struct{})
	go func() {
		u, err := l.lock(ctx, "alice")
		if err == nil {
			u()
		}
		close(acquired)
	}()
	select {
	case <-acquired:
		t.Fatal("lock acquired while held")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	<-acquired

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.locks)
}
