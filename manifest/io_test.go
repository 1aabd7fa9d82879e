package manifest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"paimon-mirror/storage"
)

func addEntry(file string, bucket, level int32, minPart, maxPart string) ManifestEntry {
	return ManifestEntry{
		Kind:   KindAdd,
		Bucket: bucket,
		File: DataFileMeta{
			FileName:     file,
			FileSize:     100,
			RowCount:     10,
			Level:        level,
			MinPartition: []byte(minPart),
			MaxPartition: []byte(maxPart),
		},
	}
}

func deleteEntry(file string) ManifestEntry {
	return ManifestEntry{
		Kind: KindDelete,
		File: DataFileMeta{FileName: file},
	}
}

func TestWriteDerivesMeta(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStorage(t.TempDir())

	entries := []ManifestEntry{
		addEntry("data-a.parquet", 3, 0, "2024-01", "2024-02"),
		addEntry("data-b.parquet", 1, 2, "2024-03", "2024-05"),
		deleteEntry("data-old.parquet"),
	}

	meta, err := Write(ctx, store, "db.events/manifest", entries, 7)
	require.NoError(t, err)

	require.Equal(t, int32(CurrentVersion), meta.Version)
	require.Contains(t, meta.FileName, "db.events/manifest/manifest-")
	require.Greater(t, meta.FileSize, int64(0))
	require.Equal(t, int64(2), meta.NumAddedFiles)
	require.Equal(t, int64(1), meta.NumDeletedFiles)
	require.Equal(t, int64(7), meta.SchemaID)

	require.Equal(t, []byte("2024-01"), meta.PartitionStats.MinValues)
	require.Equal(t, []byte("2024-05"), meta.PartitionStats.MaxValues)
	require.Equal(t, []int64{1}, meta.PartitionStats.NullCounts) // the delete entry has no partition range

	require.Equal(t, int32(0), *meta.MinBucket)
	require.Equal(t, int32(3), *meta.MaxBucket)
	require.Equal(t, int32(0), *meta.MinLevel)
	require.Equal(t, int32(2), *meta.MaxLevel)

	got, err := Read(ctx, store, meta.FileName)
	require.NoError(t, err)
	require.Equal(t, entries, got)
}

func TestWriteEmptyManifest(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStorage(t.TempDir())

	meta, err := Write(ctx, store, "db.empty/manifest", nil, 0)
	require.NoError(t, err)
	require.Zero(t, meta.NumAddedFiles)
	require.Zero(t, meta.NumDeletedFiles)
	require.Nil(t, meta.MinBucket)
	require.Nil(t, meta.MaxBucket)
	require.Nil(t, meta.MinLevel)
	require.Nil(t, meta.MaxLevel)
}

func TestManifestListRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStorage(t.TempDir())

	metas := []ManifestFileMeta{
		NewManifestFileMeta("manifest-1", 10, 1, 0, testStats(), 1),
		NewManifestFileMeta("manifest-2", 20, 2, 1, BinaryTableStats{}, 2).
			WithMinBucket(int32p(0)).
			WithMaxBucket(int32p(3)),
	}

	name, err := WriteList(ctx, store, "db.events/manifest", metas)
	require.NoError(t, err)
	require.Contains(t, name, "manifest-list-")

	got, err := ReadList(ctx, store, name)
	require.NoError(t, err)
	require.Len(t, got, len(metas))
	for i := range metas {
		require.True(t, got[i].Equal(metas[i]), "index %d: got %s, want %s", i, got[i], metas[i])
	}
}

func TestCompactListMergesSmallManifests(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStorage(t.TempDir())
	dir := "db.events/manifest"

	m1, err := Write(ctx, store, dir, []ManifestEntry{
		addEntry("data-a.parquet", 0, 0, "2024-01", "2024-01"),
		addEntry("data-b.parquet", 1, 0, "2024-02", "2024-02"),
	}, 1)
	require.NoError(t, err)

	m2, err := Write(ctx, store, dir, []ManifestEntry{
		deleteEntry("data-a.parquet"),
		addEntry("data-c.parquet", 2, 1, "2024-03", "2024-03"),
		deleteEntry("data-external.parquet"),
	}, 2)
	require.NoError(t, err)

	big := NewManifestFileMeta("manifest-big", 1<<30, 100, 0, testStats(), 1)

	got, err := CompactList(ctx, store, dir, []ManifestFileMeta{big, m1, m2}, 1<<20)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, got[0].Equal(big))

	merged := got[1]
	require.Equal(t, int64(2), merged.NumAddedFiles)
	require.Equal(t, int64(1), merged.NumDeletedFiles)
	require.Equal(t, int64(2), merged.SchemaID)

	entries, err := Read(ctx, store, merged.FileName)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "data-b.parquet", entries[0].File.FileName)
	require.Equal(t, KindAdd, entries[0].Kind)
	require.Equal(t, "data-c.parquet", entries[1].File.FileName)
	require.Equal(t, KindAdd, entries[1].Kind)
	require.Equal(t, "data-external.parquet", entries[2].File.FileName)
	require.Equal(t, KindDelete, entries[2].Kind)
}

func TestCompactListLeavesSingletonAlone(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStorage(t.TempDir())

	metas := []ManifestFileMeta{NewManifestFileMeta("manifest-1", 10, 1, 0, testStats(), 1)}
	got, err := CompactList(ctx, store, "db.events/manifest", metas, 1<<20)
	require.NoError(t, err)
	require.Equal(t, metas, got)
}
