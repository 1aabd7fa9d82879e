package manifest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatsEqualAndClone(t *testing.T) {
	a := testStats()
	b := testStats()
	require.True(t, a.Equal(b))

	c := a.Clone()
	c.MaxValues[0] = 'z'
	require.False(t, c.Equal(a))
	require.True(t, a.Equal(b))
}

func TestStatsCollector(t *testing.T) {
	var c StatsCollector
	c.Add([]byte("2024-03"))
	c.Add([]byte("2024-01"))
	c.Add(nil)
	c.AddRange([]byte("2024-02"), []byte("2024-06"))

	got := c.Collect()
	require.Equal(t, []byte("2024-01"), got.MinValues)
	require.Equal(t, []byte("2024-06"), got.MaxValues)
	require.Equal(t, []int64{1}, got.NullCounts)
}

func TestStatsCollectorEmpty(t *testing.T) {
	var c StatsCollector
	got := c.Collect()
	require.Empty(t, got.MinValues)
	require.Empty(t, got.MaxValues)
	require.Equal(t, []int64{0}, got.NullCounts)
}

func TestOverlaps(t *testing.T) {
	stats := testStats() // [2024-01, 2024-06]

	tests := []struct {
		name   string
		lo, hi []byte
		want   bool
	}{
		{"inside", []byte("2024-02"), []byte("2024-03"), true},
		{"covers", []byte("2023-01"), []byte("2025-01"), true},
		{"touches min", []byte("2023-01"), []byte("2024-01"), true},
		{"touches max", []byte("2024-06"), []byte("2024-12"), true},
		{"below", []byte("2023-01"), []byte("2023-12"), false},
		{"above", []byte("2024-07"), []byte("2024-12"), false},
		{"unbounded low", nil, []byte("2024-01"), true},
		{"unbounded high", []byte("2024-06"), nil, true},
		{"unbounded both", nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Overlaps(stats, tt.lo, tt.hi))
		})
	}

	// Unknown stats can never be pruned.
	require.True(t, Overlaps(BinaryTableStats{}, []byte("a"), []byte("b")))
}

func TestFilter(t *testing.T) {
	inRange := NewManifestFileMeta("m1", 1, 1, 0, testStats(), 0)
	below := NewManifestFileMeta("m2", 1, 1, 0, BinaryTableStats{
		MinValues: []byte("2022-01"), MaxValues: []byte("2022-12"), NullCounts: []int64{0},
	}, 0)
	unknown := NewManifestFileMeta("m3", 1, 1, 0, BinaryTableStats{}, 0)

	got := Filter([]ManifestFileMeta{inRange, below, unknown}, []byte("2024-01"), []byte("2024-12"))
	require.Len(t, got, 2)
	require.Equal(t, "m1", got[0].FileName)
	require.Equal(t, "m3", got[1].FileName)
}
