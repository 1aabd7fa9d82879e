package manifest

import "bytes"

// Filter returns the metas whose partition-stats range may contain a
// key in [lo, hi]. A nil bound is unbounded on that side. Metas with
// unknown stats are always kept; pruning must never drop a manifest it
// cannot prove irrelevant.
func Filter(metas []ManifestFileMeta, lo, hi []byte) []ManifestFileMeta {
	var out []ManifestFileMeta
	for _, m := range metas {
		if Overlaps(m.PartitionStats, lo, hi) {
			out = append(out, m)
		}
	}
	return out
}

// Overlaps reports whether the stats range intersects [lo, hi] under
// lexicographic byte order.
func Overlaps(s BinaryTableStats, lo, hi []byte) bool {
	if len(s.MinValues) == 0 || len(s.MaxValues) == 0 {
		return true
	}
	if hi != nil && bytes.Compare(s.MinValues, hi) > 0 {
		return false
	}
	if lo != nil && bytes.Compare(s.MaxValues, lo) < 0 {
		return false
	}
	return true
}
