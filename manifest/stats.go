package manifest

import (
	"bytes"
	"fmt"
	"slices"
)

// BinaryTableStats holds the minimum and maximum partition keys seen
// across the data files of one manifest, in the binary partition-key
// encoding, plus the count of rows with an empty partition key. Query
// planning compares these bounds against predicate ranges to skip
// whole manifests.
type BinaryTableStats struct {
	MinValues  []byte  `json:"_MIN_VALUES"`
	MaxValues  []byte  `json:"_MAX_VALUES"`
	NullCounts []int64 `json:"_NULL_COUNTS"`
}

// Equal reports field-wise equality.
func (s BinaryTableStats) Equal(o BinaryTableStats) bool {
	return bytes.Equal(s.MinValues, o.MinValues) &&
		bytes.Equal(s.MaxValues, o.MaxValues) &&
		slices.Equal(s.NullCounts, o.NullCounts)
}

// Clone returns a deep copy.
func (s BinaryTableStats) Clone() BinaryTableStats {
	return BinaryTableStats{
		MinValues:  bytes.Clone(s.MinValues),
		MaxValues:  bytes.Clone(s.MaxValues),
		NullCounts: slices.Clone(s.NullCounts),
	}
}

// String is the debug rendering used inside ManifestFileMeta.String.
func (s BinaryTableStats) String() string {
	return fmt.Sprintf("stats[min=%x, max=%x, nulls=%v]", s.MinValues, s.MaxValues, s.NullCounts)
}

// StatsCollector accumulates partition-key ranges while a manifest is
// being written. The zero value is ready to use.
type StatsCollector struct {
	min, max []byte
	nulls    int64
	seen     bool
}

// Add folds a single partition key into the collector. An empty key
// counts as null.
func (c *StatsCollector) Add(key []byte) {
	c.AddRange(key, key)
}

// AddRange folds a [min, max] partition range into the collector, as
// reported by a data file's own statistics.
func (c *StatsCollector) AddRange(min, max []byte) {
	if len(min) == 0 && len(max) == 0 {
		c.nulls++
		return
	}
	if !c.seen {
		c.min = bytes.Clone(min)
		c.max = bytes.Clone(max)
		c.seen = true
		return
	}
	if bytes.Compare(min, c.min) < 0 {
		c.min = bytes.Clone(min)
	}
	if bytes.Compare(max, c.max) > 0 {
		c.max = bytes.Clone(max)
	}
}

// Collect returns the accumulated statistics.
func (c *StatsCollector) Collect() BinaryTableStats {
	return BinaryTableStats{
		MinValues:  bytes.Clone(c.min),
		MaxValues:  bytes.Clone(c.max),
		NullCounts: []int64{c.nulls},
	}
}
