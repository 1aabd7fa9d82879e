package storage

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStorage(t.TempDir())

	err := store.Write(ctx, "db.events/data/file-1.parquet", strings.NewReader("hello"))
	require.NoError(t, err)

	r, err := store.Read(ctx, "db.events/data/file-1.parquet")
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestLocalStorageReadMissing(t *testing.T) {
	store := NewLocalStorage(t.TempDir())
	_, err := store.Read(context.Background(), "nope.json")
	require.Error(t, err)
}

func TestLocalStorageList(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStorage(t.TempDir())

	for _, p := range []string{
		"db.events/manifest/manifest-1.json",
		"db.events/manifest/manifest-2.json",
		"db.events/data/file-1.parquet",
	} {
		require.NoError(t, store.Write(ctx, p, strings.NewReader("x")))
	}

	files, err := store.List(ctx, "db.events/manifest/")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{
		"db.events/manifest/manifest-1.json",
		"db.events/manifest/manifest-2.json",
	}, files)
}

func TestLocalStorageURI(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStorage(root)

	uri := store.URI("db.events/data/file-1.parquet")
	require.True(t, filepath.IsAbs(uri))
	require.Contains(t, uri, "file-1.parquet")
}

func TestBufferTracksSize(t *testing.T) {
	buf := NewBuffer()
	_, err := buf.Write([]byte("abcde"))
	require.NoError(t, err)
	require.Equal(t, int64(5), buf.Size())

	data, err := io.ReadAll(buf.Reader())
	require.NoError(t, err)
	require.Equal(t, "abcde", string(data))

	buf.Reset()
	require.Zero(t, buf.Size())
}
