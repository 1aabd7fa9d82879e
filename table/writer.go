package table

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/parquet-go/parquet-go"

	"paimon-mirror/manifest"
	"paimon-mirror/schema"
	"paimon-mirror/storage"
)

// Manifest lists longer than this get compacted on commit; manifests
// below smallManifestBytes are merge candidates.
const (
	compactListThreshold = 8
	smallManifestBytes   = 8 << 20
)

// Writer turns replicated row images into table commits. Each commit
// writes parquet data files, a manifest file enumerating them, a
// manifest list, and a new snapshot in the table's metadata document.
type Writer struct {
	store         storage.Storage
	schemaManager *schema.Manager
	bucketCount   int32
	partitionCols map[string]string // "schema.table" -> partition column
	writers       map[uint32]*tableWriter
	mu            sync.Mutex
}

type tableWriter struct {
	schema        Schema
	parquetSchema *parquet.Schema
	writer        *parquet.GenericWriter[map[string]interface{}]
	buf           *storage.Buffer
	dataPath      string
	location      string
	records       int64
	partitionCol  string
	parts         manifest.StatsCollector
	metadata      *TableMetadata
	mu            sync.Mutex
}

// NewWriter builds a table writer on top of a warehouse backend. Table
// locations are relative to the backend's root, one directory per
// "schema.table".
func NewWriter(store storage.Storage, schemaManager *schema.Manager, bucketCount int32, partitionCols map[string]string) *Writer {
	if bucketCount <= 0 {
		bucketCount = 4
	}
	return &Writer{
		store:         store,
		schemaManager: schemaManager,
		bucketCount:   bucketCount,
		partitionCols: partitionCols,
		writers:       make(map[uint32]*tableWriter),
	}
}

func (w *Writer) WriteInsert(msg *pglogrepl.InsertMessageV2, rel *pglogrepl.RelationMessageV2) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tw, err := w.getTableWriter(msg.RelationID)
	if err != nil {
		return err
	}
	return tw.writeRow(msg.Tuple, rel)
}

func (w *Writer) WriteUpdate(msg *pglogrepl.UpdateMessageV2, rel *pglogrepl.RelationMessageV2) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tw, err := w.getTableWriter(msg.RelationID)
	if err != nil {
		return err
	}
	return tw.writeRow(msg.NewTuple, rel)
}

func (w *Writer) WriteDelete(msg *pglogrepl.DeleteMessageV2, rel *pglogrepl.RelationMessageV2) error {
	// Row deletes do not retire data files; file deletions enter the
	// manifest stream through list compaction. The mirror keeps the
	// deleted row's last image.
	return nil
}

// Commit flushes every open table writer and publishes one snapshot
// per table touched since the previous commit.
func (w *Writer) Commit(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, tw := range w.writers {
		if err := tw.commit(ctx, w.store); err != nil {
			return err
		}
	}
	w.writers = make(map[uint32]*tableWriter)
	return nil
}

func (w *Writer) getTableWriter(relationID uint32) (*tableWriter, error) {
	if tw, exists := w.writers[relationID]; exists {
		return tw, nil
	}
	tw, err := w.createWriter(relationID)
	if err != nil {
		return nil, err
	}
	w.writers[relationID] = tw
	return tw, nil
}

func (w *Writer) createWriter(relationID uint32) (*tableWriter, error) {
	pgSchema, err := w.schemaManager.GetSchema(relationID)
	if err != nil {
		return nil, fmt.Errorf("getting schema: %w", err)
	}

	tableSchema := Schema{
		Fields: make([]Field, 0, len(pgSchema.Columns)),
	}
	for i, col := range pgSchema.Columns {
		tableSchema.Fields = append(tableSchema.Fields, Field{
			ID:       i + 1,
			Name:     col.Name,
			Required: !col.Nullable,
			Type:     fieldType(col.TypeOID),
		})
	}

	parquetSchema, err := createParquetSchema(tableSchema)
	if err != nil {
		return nil, fmt.Errorf("creating parquet schema: %w", err)
	}

	tableKey := fmt.Sprintf("%s.%s", pgSchema.Schema, pgSchema.Name)
	location := tableKey

	metadata, err := w.getOrCreateMetadata(location, tableKey, tableSchema)
	if err != nil {
		return nil, fmt.Errorf("initializing metadata: %w", err)
	}

	dataPath := path.Join(location, "data", fmt.Sprintf("%s.parquet", uuid.New().String()))
	buf := storage.NewBuffer()

	return &tableWriter{
		schema:        metadata.CurrentSchema,
		parquetSchema: parquetSchema,
		writer:        parquet.NewGenericWriter[map[string]interface{}](buf, parquetSchema),
		buf:           buf,
		dataPath:      dataPath,
		location:      location,
		partitionCol:  metadata.PartitionColumn,
		metadata:      metadata,
	}, nil
}

func (w *Writer) getOrCreateMetadata(location, tableKey string, tableSchema Schema) (*TableMetadata, error) {
	metadataPath := path.Join(location, "metadata.json")

	r, err := w.store.Read(context.Background(), metadataPath)
	if err != nil {
		// A missing document means a fresh table; genuine backend
		// failures resurface on the first write.
		metadata := &TableMetadata{
			FormatVersion:   manifest.CurrentVersion,
			TableUUID:       uuid.New().String(),
			Location:        location,
			LastUpdated:     time.Now().UnixMilli(),
			LastColumnID:    len(tableSchema.Fields),
			SchemaID:        tableSchema.SchemaID,
			Schemas:         []Schema{tableSchema},
			CurrentSchema:   tableSchema,
			PartitionColumn: w.partitionCols[tableKey],
			BucketCount:     w.bucketCount,
			Properties:      map[string]string{},
			Snapshots:       []*Snapshot{},
		}
		if err := w.writeMetadata(context.Background(), metadata); err != nil {
			return nil, fmt.Errorf("writing metadata: %w", err)
		}
		return metadata, nil
	}
	defer r.Close()

	var metadata TableMetadata
	if err := json.NewDecoder(r).Decode(&metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}

	// Relation changed shape since the last commit: register the new
	// schema under the next id so old data files keep their rules.
	tableSchema.SchemaID = metadata.SchemaID
	if !schemasEqual(metadata.CurrentSchema, tableSchema) {
		tableSchema.SchemaID = metadata.SchemaID + 1
		metadata.SchemaID = tableSchema.SchemaID
		metadata.Schemas = append(metadata.Schemas, tableSchema)
		metadata.CurrentSchema = tableSchema
		if n := len(tableSchema.Fields); n > metadata.LastColumnID {
			metadata.LastColumnID = n
		}
	}
	return &metadata, nil
}

func (w *Writer) writeMetadata(ctx context.Context, metadata *TableMetadata) error {
	buf := storage.NewBuffer()
	encoder := json.NewEncoder(buf)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(metadata); err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	if err := w.store.Write(ctx, path.Join(metadata.Location, "metadata.json"), buf.Reader()); err != nil {
		return fmt.Errorf("storing metadata: %w", err)
	}
	return nil
}

func (tw *tableWriter) writeRow(tuple *pglogrepl.TupleData, rel *pglogrepl.RelationMessageV2) error {
	record, err := mapTupleToRecord(tuple, rel)
	if err != nil {
		return fmt.Errorf("mapping tuple to record: %w", err)
	}
	if _, err := tw.writer.Write([]map[string]interface{}{record}); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	tw.records++

	if tw.partitionCol != "" {
		tw.parts.Add(partitionKey(record[tw.partitionCol]))
	}
	return nil
}

// partitionKey renders a column value into the binary partition-key
// encoding. Text rendering keeps lexicographic order for strings and
// for fixed-width formatted values; nil maps to the null key.
func partitionKey(val interface{}) []byte {
	if val == nil {
		return nil
	}
	return []byte(fmt.Sprintf("%v", val))
}

func bucketFor(partition []byte, count int32) int32 {
	if count <= 0 {
		return 0
	}
	h := fnv.New32a()
	h.Write(partition)
	return int32(h.Sum32() % uint32(count))
}

func (tw *tableWriter) commit(ctx context.Context, store storage.Storage) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Close(); err != nil {
		return fmt.Errorf("closing parquet writer: %w", err)
	}
	if tw.records == 0 {
		return nil
	}
	if err := store.Write(ctx, tw.dataPath, tw.buf.Reader()); err != nil {
		return fmt.Errorf("storing data file: %w", err)
	}

	stats := tw.parts.Collect()
	now := time.Now().UnixMilli()
	entry := manifest.ManifestEntry{
		Kind:   manifest.KindAdd,
		Bucket: bucketFor(stats.MinValues, tw.metadata.BucketCount),
		File: manifest.DataFileMeta{
			FileName:     tw.dataPath,
			FileSize:     tw.buf.Size(),
			RowCount:     tw.records,
			Level:        0,
			MinPartition: stats.MinValues,
			MaxPartition: stats.MaxValues,
			CreationTime: now,
		},
	}

	manifestDir := path.Join(tw.location, "manifest")
	meta, err := manifest.Write(ctx, store, manifestDir, []manifest.ManifestEntry{entry}, tw.metadata.SchemaID)
	if err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	log.Printf("committed manifest %s", meta)

	var metas []manifest.ManifestFileMeta
	parent := int64(0)
	sequence := int64(1)
	if cur := tw.metadata.CurrentSnapshot; cur != nil {
		metas, err = manifest.ReadList(ctx, store, cur.ManifestList)
		if err != nil {
			return fmt.Errorf("reading manifest list: %w", err)
		}
		parent = cur.SnapshotID
		sequence = cur.SequenceNumber + 1
	}
	metas = append(metas, meta)

	if len(metas) > compactListThreshold {
		metas, err = manifest.CompactList(ctx, store, manifestDir, metas, smallManifestBytes)
		if err != nil {
			return fmt.Errorf("compacting manifest list: %w", err)
		}
	}

	listPath, err := manifest.WriteList(ctx, store, manifestDir, metas)
	if err != nil {
		return fmt.Errorf("writing manifest list: %w", err)
	}

	tw.metadata.CurrentSnapshot = &Snapshot{
		SnapshotID:       now,
		ParentSnapshotID: parent,
		SequenceNumber:   sequence,
		SchemaID:         tw.metadata.SchemaID,
		TimestampMs:      now,
		ManifestList:     listPath,
		Summary: map[string]string{
			"added-data-files": "1",
			"added-records":    fmt.Sprintf("%d", tw.records),
			"total-manifests":  fmt.Sprintf("%d", len(metas)),
		},
	}
	tw.metadata.Snapshots = append(tw.metadata.Snapshots, tw.metadata.CurrentSnapshot)
	tw.metadata.LastUpdated = now

	buf := storage.NewBuffer()
	encoder := json.NewEncoder(buf)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(tw.metadata); err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	if err := store.Write(ctx, path.Join(tw.location, "metadata.json"), buf.Reader()); err != nil {
		return fmt.Errorf("storing metadata: %w", err)
	}
	return nil
}

func mapTupleToRecord(tuple *pglogrepl.TupleData, rel *pglogrepl.RelationMessageV2) (map[string]interface{}, error) {
	typeMap := pgtype.NewMap()
	record := make(map[string]interface{})

	for idx, col := range tuple.Columns {
		colName := rel.Columns[idx].Name
		dataType := rel.Columns[idx].DataType

		switch col.DataType {
		case 'n': // null
			record[colName] = nil
		case 't': // text
			val, err := decodeColumnData(typeMap, col.Data, dataType, pgtype.TextFormatCode)
			if err != nil {
				return nil, fmt.Errorf("decoding column data for %s: %w", colName, err)
			}
			record[colName] = val
		case 'b': // binary
			record[colName] = col.Data
		case 'u': // unchanged TOAST data
			record[colName] = nil
		default:
			return nil, fmt.Errorf("unknown column data type: %v", col.DataType)
		}
	}
	return record, nil
}

func decodeColumnData(typeMap *pgtype.Map, data []byte, dataTypeOID uint32, formatCode int16) (interface{}, error) {
	dataType, ok := typeMap.TypeForOID(dataTypeOID)
	if !ok {
		return string(data), nil
	}
	value, err := dataType.Codec.DecodeValue(typeMap, dataTypeOID, formatCode, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode value for OID %d: %w", dataTypeOID, err)
	}
	return value, nil
}

func fieldType(pgTypeOID uint32) string {
	switch pgTypeOID {
	case pgtype.Int2OID, pgtype.Int4OID:
		return "int"
	case pgtype.Int8OID:
		return "long"
	case pgtype.TextOID, pgtype.VarcharOID, pgtype.BPCharOID:
		return "string"
	case pgtype.Float8OID:
		return "double"
	case pgtype.Float4OID:
		return "float"
	case pgtype.BoolOID:
		return "boolean"
	case pgtype.DateOID:
		return "date"
	case pgtype.TimestampOID, pgtype.TimestamptzOID:
		return "timestamp"
	case pgtype.NumericOID:
		return "double" // decimals simplified to double
	case pgtype.ByteaOID:
		return "binary"
	default:
		return "string"
	}
}

func createParquetSchema(tableSchema Schema) (*parquet.Schema, error) {
	root := make(parquet.Group)

	for _, field := range tableSchema.Fields {
		var node parquet.Node

		switch field.Type {
		case "int":
			node = parquet.Leaf(parquet.Int32Type)
		case "long":
			node = parquet.Leaf(parquet.Int64Type)
		case "string":
			node = parquet.Leaf(parquet.ByteArrayType)
		case "double":
			node = parquet.Leaf(parquet.DoubleType)
		case "float":
			node = parquet.Leaf(parquet.FloatType)
		case "boolean":
			node = parquet.Leaf(parquet.BooleanType)
		case "date":
			node = parquet.Date()
		case "timestamp":
			node = parquet.Timestamp(parquet.Millisecond)
		case "binary":
			node = parquet.Leaf(parquet.ByteArrayType)
		default:
			return nil, fmt.Errorf("unsupported type: %s", field.Type)
		}

		if !field.Required {
			node = parquet.Optional(node)
		}
		root[field.Name] = node
	}

	return parquet.NewSchema("table", root), nil
}
