package manifest

import "fmt"

// CurrentVersion is stamped on newly written manifest file metadata.
// Records decoded from older manifest lists keep whatever version they
// carried; no migration happens at this layer.
const CurrentVersion = 2

// ManifestFileMeta describes one manifest file referenced by a
// manifest list. A manifest file enumerates data-file additions and
// deletions produced by one commit; the metadata carries enough
// summary information (counts, partition stats, bucket/level bounds)
// for readers to skip the manifest entirely during planning.
type ManifestFileMeta struct {
	Version         int32            `json:"_VERSION"`
	FileName        string           `json:"_FILE_NAME"`
	FileSize        int64            `json:"_FILE_SIZE"`
	NumAddedFiles   int64            `json:"_NUM_ADDED_FILES"`
	NumDeletedFiles int64            `json:"_NUM_DELETED_FILES"`
	PartitionStats  BinaryTableStats `json:"_PARTITION_STATS"`
	SchemaID        int64            `json:"_SCHEMA_ID"`

	// Bucket and level bounds of the files enumerated by the manifest.
	// nil means unknown; zero is a valid bound, so no sentinel value is
	// used. Absent bounds are omitted from the serialized form, and an
	// explicit null on input decodes back to absent.
	MinBucket *int32 `json:"_MIN_BUCKET,omitempty"`
	MaxBucket *int32 `json:"_MAX_BUCKET,omitempty"`
	MinLevel  *int32 `json:"_MIN_LEVEL,omitempty"`
	MaxLevel  *int32 `json:"_MAX_LEVEL,omitempty"`
}

// NewManifestFileMeta builds a metadata record at the current format
// version. The bucket and level bounds start out absent; producers
// that learn them later attach them with the With* methods.
func NewManifestFileMeta(fileName string, fileSize, numAddedFiles, numDeletedFiles int64, partitionStats BinaryTableStats, schemaID int64) ManifestFileMeta {
	return ManifestFileMeta{
		Version:         CurrentVersion,
		FileName:        fileName,
		FileSize:        fileSize,
		NumAddedFiles:   numAddedFiles,
		NumDeletedFiles: numDeletedFiles,
		PartitionStats:  partitionStats,
		SchemaID:        schemaID,
	}
}

// WithMinBucket returns a copy of the record with the minimum bucket
// bound replaced. Passing nil clears the bound.
func (m ManifestFileMeta) WithMinBucket(v *int32) ManifestFileMeta {
	m.MinBucket = v
	return m
}

// WithMaxBucket returns a copy of the record with the maximum bucket
// bound replaced.
func (m ManifestFileMeta) WithMaxBucket(v *int32) ManifestFileMeta {
	m.MaxBucket = v
	return m
}

// WithMinLevel returns a copy of the record with the minimum level
// bound replaced.
func (m ManifestFileMeta) WithMinLevel(v *int32) ManifestFileMeta {
	m.MinLevel = v
	return m
}

// WithMaxLevel returns a copy of the record with the maximum level
// bound replaced.
func (m ManifestFileMeta) WithMaxLevel(v *int32) ManifestFileMeta {
	m.MaxLevel = v
	return m
}

// Equal reports field-wise equality across all eleven fields. Optional
// bounds compare by presence and value, not by pointer identity.
func (m ManifestFileMeta) Equal(o ManifestFileMeta) bool {
	return m.Version == o.Version &&
		m.FileName == o.FileName &&
		m.FileSize == o.FileSize &&
		m.NumAddedFiles == o.NumAddedFiles &&
		m.NumDeletedFiles == o.NumDeletedFiles &&
		m.PartitionStats.Equal(o.PartitionStats) &&
		m.SchemaID == o.SchemaID &&
		int32PtrEqual(m.MinBucket, o.MinBucket) &&
		int32PtrEqual(m.MaxBucket, o.MaxBucket) &&
		int32PtrEqual(m.MinLevel, o.MinLevel) &&
		int32PtrEqual(m.MaxLevel, o.MaxLevel)
}

// Clone returns a deep copy sharing no memory with the receiver.
func (m ManifestFileMeta) Clone() ManifestFileMeta {
	c := m
	c.PartitionStats = m.PartitionStats.Clone()
	c.MinBucket = cloneInt32Ptr(m.MinBucket)
	c.MaxBucket = cloneInt32Ptr(m.MaxBucket)
	c.MinLevel = cloneInt32Ptr(m.MinLevel)
	c.MaxLevel = cloneInt32Ptr(m.MaxLevel)
	return c
}

// String renders the record for commit-log lines. The bucket and level
// bounds are not part of the rendering; programs read them through the
// fields, not through this form.
func (m ManifestFileMeta) String() string {
	return fmt.Sprintf("{%s, %d, %d, %d, %s, %d}",
		m.FileName, m.FileSize, m.NumAddedFiles, m.NumDeletedFiles, m.PartitionStats, m.SchemaID)
}

func int32PtrEqual(a, b *int32) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func cloneInt32Ptr(p *int32) *int32 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
