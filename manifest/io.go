package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/google/uuid"

	"paimon-mirror/storage"
)

// Write persists entries as one manifest file under dir and returns
// the metadata record describing it. Counts, partition stats and
// bucket/level bounds are derived from the entries; an empty entry set
// produces a valid empty manifest.
func Write(ctx context.Context, store storage.Storage, dir string, entries []ManifestEntry, schemaID int64) (ManifestFileMeta, error) {
	name := path.Join(dir, fmt.Sprintf("manifest-%s.json", uuid.New().String()))

	buf := storage.NewBuffer()
	if err := json.NewEncoder(buf).Encode(entries); err != nil {
		return ManifestFileMeta{}, fmt.Errorf("encoding manifest entries: %w", err)
	}
	if err := store.Write(ctx, name, buf.Reader()); err != nil {
		return ManifestFileMeta{}, fmt.Errorf("writing manifest file: %w", err)
	}

	var added, deleted int64
	var stats StatsCollector
	var minBucket, maxBucket, minLevel, maxLevel *int32
	for _, e := range entries {
		switch e.Kind {
		case KindDelete:
			deleted++
		default:
			added++
		}
		stats.AddRange(e.File.MinPartition, e.File.MaxPartition)
		minBucket = lowerBound(minBucket, e.Bucket)
		maxBucket = upperBound(maxBucket, e.Bucket)
		minLevel = lowerBound(minLevel, e.File.Level)
		maxLevel = upperBound(maxLevel, e.File.Level)
	}

	meta := NewManifestFileMeta(name, buf.Size(), added, deleted, stats.Collect(), schemaID)
	return meta.
		WithMinBucket(minBucket).
		WithMaxBucket(maxBucket).
		WithMinLevel(minLevel).
		WithMaxLevel(maxLevel), nil
}

// Read loads the entries of one manifest file.
func Read(ctx context.Context, store storage.Storage, name string) ([]ManifestEntry, error) {
	r, err := store.Read(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("reading manifest file: %w", err)
	}
	defer r.Close()

	var entries []ManifestEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding manifest entries: %w", err)
	}
	return entries, nil
}

// WriteList persists a manifest list under dir and returns its path.
func WriteList(ctx context.Context, store storage.Storage, dir string, metas []ManifestFileMeta) (string, error) {
	name := path.Join(dir, fmt.Sprintf("manifest-list-%s.json", uuid.New().String()))

	buf := storage.NewBuffer()
	if err := json.NewEncoder(buf).Encode(metas); err != nil {
		return "", fmt.Errorf("encoding manifest list: %w", err)
	}
	if err := store.Write(ctx, name, buf.Reader()); err != nil {
		return "", fmt.Errorf("writing manifest list: %w", err)
	}
	return name, nil
}

// ReadList loads a manifest list.
func ReadList(ctx context.Context, store storage.Storage, name string) ([]ManifestFileMeta, error) {
	r, err := store.Read(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("reading manifest list: %w", err)
	}
	defer r.Close()

	var metas []ManifestFileMeta
	if err := json.NewDecoder(r).Decode(&metas); err != nil {
		return nil, fmt.Errorf("decoding manifest list: %w", err)
	}
	return metas, nil
}

func lowerBound(cur *int32, v int32) *int32 {
	if cur == nil || v < *cur {
		return &v
	}
	return cur
}

func upperBound(cur *int32, v int32) *int32 {
	if cur == nil || v > *cur {
		return &v
	}
	return cur
}
