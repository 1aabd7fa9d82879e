package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
postgres:
  host: localhost
  port: 5432
  user: mirror
  password: secret
  database: app
  slot: paimon_mirror
  publication: mirror_pub

tables:
  - schema: public
    name: events
    partition_column: event_date
  - schema: public
    name: users

warehouse:
  path: /var/lib/paimon-mirror
  buckets: 8

proxy:
  port: 15432
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "localhost", cfg.Postgres.Host)
	require.Equal(t, 5432, cfg.Postgres.Port)
	require.Equal(t, "paimon_mirror", cfg.Postgres.Slot)
	require.Len(t, cfg.Tables, 2)
	require.Equal(t, "event_date", cfg.Tables[0].PartitionColumn)
	require.Equal(t, "/var/lib/paimon-mirror", cfg.Warehouse.Path)
	require.Equal(t, int32(8), cfg.Warehouse.Buckets)
	require.Equal(t, 15432, cfg.Proxy.Port)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestPartitionColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	cols := cfg.PartitionColumns()
	require.Equal(t, map[string]string{"public.events": "event_date"}, cols)
}
