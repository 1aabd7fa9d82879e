package manifest

// FileKind says whether a manifest entry adds or deletes a data file.
type FileKind int8

const (
	KindAdd FileKind = iota
	KindDelete
)

// ManifestEntry is one data-file addition or deletion recorded inside
// a manifest file.
type ManifestEntry struct {
	Kind   FileKind     `json:"_KIND"`
	Bucket int32        `json:"_BUCKET"`
	File   DataFileMeta `json:"_FILE"`
}

// DataFileMeta describes the data file an entry refers to. The
// partition bounds are in the binary partition-key encoding; an empty
// bound means the file's partition keys are unknown or null.
type DataFileMeta struct {
	FileName     string `json:"_FILE_NAME"`
	FileSize     int64  `json:"_FILE_SIZE"`
	RowCount     int64  `json:"_ROW_COUNT"`
	Level        int32  `json:"_LEVEL"`
	MinPartition []byte `json:"_MIN_PARTITION"`
	MaxPartition []byte `json:"_MAX_PARTITION"`
	CreationTime int64  `json:"_CREATION_TIME"` // epoch millis
}
