package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kurodrive/internal/domain"
)

func TestUploadFile_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   UploadInput
		want error
	}{
		{"size mismatch", UploadInput{Name: "a", Size: 3, Data: []byte("ab")}, domain.ErrInvalidArgument},
		{"negative size", UploadInput{Name: "a", Size: -1}, domain.ErrInvalidArgument},
		{"empty name", UploadInput{Name: "  ", Size: 1, Data: []byte("a")}, domain.ErrInvalidArgument},
		{"path in name", UploadInput{Name: "a/b", Size: 1, Data: []byte("a")}, domain.ErrInvalidArgument},
		{"missing folder", UploadInput{Name: "a", Size: 1, Data: []byte("a"), FolderID: ptr(uuid.New())}, domain.ErrParentNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.files.UploadFile(ctx, alice, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	bobs := e.mkdir(bob, "private", nil)
	_, err := e.files.UploadFile(ctx, alice, UploadInput{Name: "a", Size: 1, Data: []byte("a"), FolderID: &bobs.ID})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Equal(t, int64(0), e.used("alice"))
	assert.Equal(t, 0, e.blobCount())
}

func TestUploadFile_DetectsTypes(t *testing.T) {
	e := newEnv(t)
	data := []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n")
	f, err := e.files.UploadFile(context.Background(), alice, UploadInput{
		Name: "Report.PDF", Size: int64(len(data)), Data: data, SourceIP: "192.0.2.1",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ContentKindDocument, f.ContentKind)
	assert.Equal(t, "application/pdf", f.MIMEType)
	assert.Equal(t, "alice", f.OwnerID)

	last := e.events.last()
	assert.Equal(t, domain.ActionUpload, last.Action)
	assert.Equal(t, "Report.PDF", last.ResourceName)
	assert.Equal(t, "192.0.2.1", last.SourceIP)
}

func TestUploadFile_BlobFailureReleasesReservation(t *testing.T) {
	e := newEnv(t)
	e.blobs.putErr = errInjected

	_, err := e.files.UploadFile(context.Background(), alice, UploadInput{Name: "a", Size: 5, Data: []byte("hello")})
	assert.ErrorIs(t, err, domain.ErrStoreFailure)
	assert.Equal(t, int64(0), e.used("alice"))
}

func TestUploadFile_FolderRemovedDuringBlobWrite(t *testing.T) {
	e := newEnv(t)
	folder := e.mkdir(alice, "tmp", nil)

	e.blobs.beforePut = func() {
		e.blobs.beforePut = nil
		_, err := e.folders.DeleteFolder(context.Background(), alice, folder.ID, "")
		require.NoError(t, err)
	}

	_, err := e.files.UploadFile(context.Background(), alice, UploadInput{
		Name: "late.txt", Size: 4, Data: []byte("late"), FolderID: &folder.ID,
	})
	assert.ErrorIs(t, err, domain.ErrParentNotFound)
	assert.Equal(t, int64(0), e.used("alice"))
	assert.Equal(t, 0, e.blobCount())
}

func TestUploadFile_ConcurrentUploadsRespectQuota(t *testing.T) {
	e := newEnv(t, withLimit(1000))
	e.upload(alice, "base", 400, nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.files.UploadFile(context.Background(), alice, UploadInput{
				Name: "part", Size: 400, Data: make([]byte, 400),
			})
		}(i)
	}
	wg.Wait()

	var ok, exceeded int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrQuotaExceeded):
			exceeded++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, exceeded)
	assert.Equal(t, int64(800), e.used("alice"))
	assert.Equal(t, 2, e.blobCount())
	e.requireLedgerConsistent("alice")
}

func TestDeleteFile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	folder := e.mkdir(alice, "docs", nil)
	f := e.upload(alice, "a.txt", 100, &folder.ID)

	assert.ErrorIs(t, e.files.DeleteFile(ctx, bob, f.ID, ""), domain.ErrNotFound)

	require.NoError(t, e.files.DeleteFile(ctx, alice, f.ID, ""))
	assert.Equal(t, int64(0), e.used("alice"))
	assert.Equal(t, 0, e.blobCount())

	got, err := e.folders.GetFolder(ctx, "alice", folder.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.FileCount)
	assert.Equal(t, int64(0), got.SizeBytes)

	assert.ErrorIs(t, e.files.DeleteFile(ctx, alice, f.ID, ""), domain.ErrNotFound)
	assert.Equal(t, int64(0), e.used("alice"))
}

func TestDeleteFile_BlobPolicy(t *testing.T) {
	t.Run("best effort", func(t *testing.T) {
		e := newEnv(t, withPolicy(BlobBestEffort))
		f := e.upload(alice, "a", 10, nil)
		e.blobs.deleteErr = errInjected

		require.NoError(t, e.files.DeleteFile(context.Background(), alice, f.ID, ""))
		assert.Equal(t, int64(1), e.metrics.blobFailures.Load())
		assert.Equal(t, int64(0), e.used("alice"))
	})

	t.Run("strict", func(t *testing.T) {
		e := newEnv(t, withPolicy(BlobStrict))
		f := e.upload(alice, "a", 10, nil)
		e.blobs.deleteErr = errInjected

		err := e.files.DeleteFile(context.Background(), alice, f.ID, "")
		assert.ErrorIs(t, err, domain.ErrStoreFailure)
		// Запись удалена и место освобождено независимо от политики.
		assert.Equal(t, int64(0), e.used("alice"))
		_, err = e.files.GetFileInfo(context.Background(), "alice", f.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestMoveFile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.mkdir(alice, "a", nil)
	b := e.mkdir(alice, "b", nil)
	f := e.upload(alice, "x", 30, &a.ID)

	moved, err := e.files.MoveFile(ctx, alice, f.ID, &b.ID, "")
	require.NoError(t, err)
	assert.Equal(t, b.ID, *moved.FolderID)

	ga, _ := e.folders.GetFolder(ctx, "alice", a.ID)
	gb, _ := e.folders.GetFolder(ctx, "alice", b.ID)
	assert.Equal(t, int64(0), ga.FileCount)
	assert.Equal(t, int64(1), gb.FileCount)
	assert.Equal(t, int64(30), gb.SizeBytes)

	moved, err = e.files.MoveFile(ctx, alice, f.ID, nil, "")
	require.NoError(t, err)
	assert.Nil(t, moved.FolderID)

	_, err = e.files.MoveFile(ctx, alice, f.ID, ptr(uuid.New()), "")
	assert.ErrorIs(t, err, domain.ErrParentNotFound)

	bobs := e.mkdir(bob, "b", nil)
	_, err = e.files.MoveFile(ctx, alice, f.ID, &bobs.ID, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = e.files.MoveFile(ctx, bob, f.ID, &bobs.ID, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Equal(t, int64(30), e.used("alice"))
	e.requireLedgerConsistent("alice")
}

func TestRenameAndDownload(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	f := e.upload(alice, "notes.txt", 5, nil)

	renamed, err := e.files.RenameFile(ctx, alice, f.ID, " song.mp3 ", "")
	require.NoError(t, err)
	assert.Equal(t, "song.mp3", renamed.Name)
	assert.Equal(t, domain.ContentKindAudio, renamed.ContentKind)

	_, err = e.files.RenameFile(ctx, alice, f.ID, "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	got, data, err := e.files.DownloadFile(ctx, alice, f.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "song.mp3", got.Name)
	assert.Equal(t, []byte("xxxxx"), data)
	assert.Equal(t, domain.ActionDownload, e.events.last().Action)

	_, _, err = e.files.DownloadFile(ctx, bob, f.ID, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Просмотр не пишет событие в журнал.
	recorded := len(e.events.events)
	got, data, err = e.files.PreviewFile(ctx, alice, f.ID)
	require.NoError(t, err)
	assert.Equal(t, f.ID, got.ID)
	assert.Equal(t, []byte("xxxxx"), data)
	assert.Len(t, e.events.events, recorded)
	_, _, err = e.files.PreviewFile(ctx, bob, f.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	e.blobs.getErr = errInjected
	_, _, err = e.files.DownloadFile(ctx, alice, f.ID, "")
	assert.ErrorIs(t, err, domain.ErrStoreFailure)
	_, _, err = e.files.PreviewFile(ctx, alice, f.ID)
	assert.ErrorIs(t, err, domain.ErrStoreFailure)
}

func TestSearchFiles(t *testing.T) {
	e := newEnv(t, withSearchLimit(2))
	ctx := context.Background()
	docs := e.mkdir(alice, "docs", nil)
	e.upload(alice, "Quarterly REPORT.pdf", 1, nil)
	e.upload(alice, "report-draft.txt", 1, &docs.ID)
	e.upload(alice, "50%_off.txt", 1, nil)
	e.upload(bob, "report.pdf", 1, nil)

	var names []string
	for f, err := range e.files.SearchFiles(ctx, "alice", "report") {
		require.NoError(t, err)
		assert.Equal(t, "alice", f.OwnerID)
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"Quarterly REPORT.pdf", "report-draft.txt"}, names)

	var literal []string
	for f, err := range e.files.SearchFiles(ctx, "alice", "%_") {
		require.NoError(t, err)
		literal = append(literal, f.Name)
	}
	assert.Equal(t, []string{"50%_off.txt"}, literal)

	e.upload(alice, "report-final.txt", 1, nil)
	count := 0
	for _, err := range e.files.SearchFiles(ctx, "alice", "REPORT") {
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 2, count, "results are capped by the search limit")
}

func TestSearchFiles_IsLazyAndSingleUse(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.upload(alice, "a1", 1, nil)

	seq := e.files.SearchFiles(ctx, "alice", "a")
	// Файл, добавленный до первого обхода, виден: запрос выполняется лениво.
	e.upload(alice, "a2", 1, nil)

	n := 0
	for _, err := range seq {
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 2, n)

	var second []error
	for _, err := range seq {
		second = append(second, err)
	}
	require.Len(t, second, 1)
	assert.ErrorIs(t, second[0], ErrCursorConsumed)

	for _, err := range e.files.SearchFiles(ctx, "alice", "   ") {
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	}
}
