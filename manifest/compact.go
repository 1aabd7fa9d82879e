package manifest

import (
	"context"
	"fmt"

	"paimon-mirror/storage"
)

// CompactList merges manifest files smaller than threshold bytes into
// a single new manifest and returns the rewritten meta slice. Larger
// manifests pass through untouched, in order. During the merge an
// addition cancelled by a later deletion of the same file drops out
// entirely; deletions of files added outside the merged set are kept
// so downstream readers still see them.
func CompactList(ctx context.Context, store storage.Storage, dir string, metas []ManifestFileMeta, threshold int64) ([]ManifestFileMeta, error) {
	var kept []ManifestFileMeta
	var small []ManifestFileMeta
	for _, m := range metas {
		if m.FileSize < threshold {
			small = append(small, m)
		} else {
			kept = append(kept, m)
		}
	}
	if len(small) < 2 {
		return metas, nil
	}

	var merged []ManifestEntry
	addIndex := make(map[string]int) // file name -> position in merged
	for _, m := range small {
		entries, err := Read(ctx, store, m.FileName)
		if err != nil {
			return nil, fmt.Errorf("compacting %s: %w", m.FileName, err)
		}
		for _, e := range entries {
			switch e.Kind {
			case KindDelete:
				if i, ok := addIndex[e.File.FileName]; ok {
					merged[i].Kind = kindCancelled
					delete(addIndex, e.File.FileName)
					continue
				}
				merged = append(merged, e)
			default:
				addIndex[e.File.FileName] = len(merged)
				merged = append(merged, e)
			}
		}
	}

	live := merged[:0]
	for _, e := range merged {
		if e.Kind != kindCancelled {
			live = append(live, e)
		}
	}

	meta, err := Write(ctx, store, dir, live, small[len(small)-1].SchemaID)
	if err != nil {
		return nil, fmt.Errorf("writing compacted manifest: %w", err)
	}
	return append(kept, meta), nil
}

// kindCancelled marks merged entries scheduled for removal; it never
// reaches a serialized manifest.
const kindCancelled FileKind = -1
