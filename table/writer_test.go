package table

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func testSchema() Schema {
	return Schema{
		SchemaID: 0,
		Fields: []Field{
			{ID: 1, Name: "id", Type: "long", Required: true},
			{ID: 2, Name: "region", Type: "string", Required: false},
		},
	}
}

func TestBucketForIsStableAndBounded(t *testing.T) {
	const buckets = 4
	a := bucketFor([]byte("2024-01"), buckets)
	require.Equal(t, a, bucketFor([]byte("2024-01"), buckets))
	require.GreaterOrEqual(t, a, int32(0))
	require.Less(t, a, int32(buckets))

	require.Equal(t, int32(0), bucketFor([]byte("anything"), 0))
}

func TestPartitionKey(t *testing.T) {
	require.Nil(t, partitionKey(nil))
	require.Equal(t, []byte("2024-01"), partitionKey("2024-01"))
	require.Equal(t, []byte("42"), partitionKey(int64(42)))
}

func TestSchemasEqual(t *testing.T) {
	a := testSchema()
	b := testSchema()
	require.True(t, schemasEqual(a, b))

	b.Fields = append(b.Fields, Field{ID: 3, Name: "added", Type: "int"})
	require.False(t, schemasEqual(a, b))

	c := testSchema()
	c.Fields[1].Type = "int"
	require.False(t, schemasEqual(a, c))
}

func TestCreateParquetSchema(t *testing.T) {
	ps, err := createParquetSchema(testSchema())
	require.NoError(t, err)
	require.NotNil(t, ps)

	_, err = createParquetSchema(Schema{Fields: []Field{{Name: "bad", Type: "geometry"}}})
	require.Error(t, err)
}

func TestTableMetadataRoundTrip(t *testing.T) {
	md := TableMetadata{
		FormatVersion:   2,
		TableUUID:       "8b0f1c9e-0000-0000-0000-000000000000",
		Location:        "db.events",
		LastColumnID:    2,
		SchemaID:        0,
		Schemas:         []Schema{testSchema()},
		CurrentSchema:   testSchema(),
		PartitionColumn: "region",
		BucketCount:     4,
		Properties:      map[string]string{},
		CurrentSnapshot: &Snapshot{
			SnapshotID:     1,
			SequenceNumber: 1,
			ManifestList:   "db.events/manifest/manifest-list-1.json",
			Summary:        map[string]string{"added-records": "10"},
		},
	}
	md.Snapshots = []*Snapshot{md.CurrentSnapshot}

	data, err := json.Marshal(md)
	require.NoError(t, err)

	var got TableMetadata
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, md, got)
}
