package table

// Field is one column of a table schema.
type Field struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// Schema is a versioned column set. Data written under a schema id is
// read with the rules of that schema.
type Schema struct {
	SchemaID int64   `json:"schema-id"`
	Fields   []Field `json:"fields"`
}

// Snapshot is one committed state of a table. ManifestList points at
// the manifest list enumerating every manifest file live at this
// snapshot.
type Snapshot struct {
	SnapshotID       int64             `json:"snapshot-id"`
	ParentSnapshotID int64             `json:"parent-snapshot-id"`
	SequenceNumber   int64             `json:"sequence-number"`
	SchemaID         int64             `json:"schema-id"`
	TimestampMs      int64             `json:"timestamp-ms"`
	ManifestList     string            `json:"manifest-list"`
	Summary          map[string]string `json:"summary"`
}

// TableMetadata is the root metadata document of one mirrored table.
type TableMetadata struct {
	FormatVersion   int               `json:"format-version"`
	TableUUID       string            `json:"table-uuid"`
	Location        string            `json:"location"`
	LastUpdated     int64             `json:"last-updated-ms"`
	LastColumnID    int               `json:"last-column-id"`
	SchemaID        int64             `json:"schema-id"`
	Schemas         []Schema          `json:"schemas"`
	CurrentSchema   Schema            `json:"current-schema"`
	PartitionColumn string            `json:"partition-column,omitempty"`
	BucketCount     int32             `json:"bucket-count"`
	Properties      map[string]string `json:"properties"`
	CurrentSnapshot *Snapshot         `json:"current-snapshot"`
	Snapshots       []*Snapshot       `json:"snapshots"`
}

func schemasEqual(a, b Schema) bool {
	if len(a.Fields) != len(b.Fields) {
		return false
	}
	for i := range a.Fields {
		if a.Fields[i] != b.Fields[i] {
			return false
		}
	}
	return true
}
