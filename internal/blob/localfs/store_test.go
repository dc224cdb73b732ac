package localfs

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kurodrive/internal/blob"
)

func TestStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()
	s, err := New(fsys, "/blobs")
	require.NoError(t, err)

	h1, err := s.Put(ctx, []byte("hello"))
	require.NoError(t, err)
	h2, err := s.Put(ctx, []byte("hello"))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	data, err := s.Get(ctx, h1)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	ok, err := afero.Exists(fsys, "/blobs/"+h1[:2]+"/"+h1)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, h1))
	require.NoError(t, s.Delete(ctx, h1))

	_, err = s.Get(ctx, h1)
	assert.ErrorIs(t, err, blob.ErrBlobNotFound)
}

func TestStore_RejectsForeignHandles(t *testing.T) {
	s, err := New(afero.NewMemMapFs(), "/blobs")
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "../../etc/passwd")
	assert.ErrorIs(t, err, blob.ErrBlobNotFound)
	assert.NoError(t, s.Delete(context.Background(), "../x"))
}

func TestStore_PutHonoursCancellation(t *testing.T) {
	fsys := afero.NewMemMapFs()
	s, err := New(fsys, "/blobs")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Put(ctx, []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)

	entries, err := afero.ReadDir(fsys, "/blobs")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
