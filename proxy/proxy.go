package proxy

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"path"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgproto3"
	_ "github.com/marcboeker/go-duckdb"

	"paimon-mirror/config"
	"paimon-mirror/manifest"
	"paimon-mirror/storage"
	"paimon-mirror/table"
)

// refreshInterval bounds how stale the proxy's view of the mirrored
// snapshots may get.
const refreshInterval = 30 * time.Second

// DuckDBProxy speaks the Postgres wire protocol and executes queries
// in an embedded DuckDB over the mirrored parquet files. Each table is
// exposed as a view over the data files live at the current snapshot,
// resolved through the manifest list.
type DuckDBProxy struct {
	config   *config.Config
	store    storage.Storage
	db       *sql.DB
	listener net.Listener
}

func NewDuckDBProxy(cfg *config.Config, store storage.Storage) (*DuckDBProxy, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("opening duckdb: %w", err)
	}
	if err := loadExtensions(db); err != nil {
		return nil, fmt.Errorf("loading extensions: %w", err)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Proxy.Port))
	if err != nil {
		return nil, fmt.Errorf("creating listener: %w", err)
	}

	return &DuckDBProxy{
		config:   cfg,
		store:    store,
		db:       db,
		listener: listener,
	}, nil
}

func loadExtensions(db *sql.DB) error {
	extensions := []string{"parquet", "httpfs"}
	for _, ext := range extensions {
		if _, err := db.Exec(fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			return fmt.Errorf("loading extension %s: %w", ext, err)
		}
	}
	return nil
}

func (p *DuckDBProxy) Start(ctx context.Context) error {
	if err := p.refreshViews(ctx); err != nil {
		log.Printf("initial view refresh: %v", err)
	}
	go p.refreshLoop(ctx)

	for {
		conn, err := p.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				continue
			}
		}
		go p.handleConnection(ctx, conn)
	}
}

func (p *DuckDBProxy) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.refreshViews(ctx); err != nil {
				log.Printf("refreshing views: %v", err)
			}
		}
	}
}

// refreshViews points one DuckDB view per mirrored table at the data
// files live in the table's current snapshot.
func (p *DuckDBProxy) refreshViews(ctx context.Context) error {
	for _, t := range p.config.Tables {
		files, err := p.liveDataFiles(ctx, t)
		if err != nil {
			return fmt.Errorf("resolving files for %s.%s: %w", t.Schema, t.Name, err)
		}
		if len(files) == 0 {
			continue
		}

		quoted := make([]string, len(files))
		for i, f := range files {
			quoted[i] = fmt.Sprintf("'%s'", p.store.URI(f))
		}
		view := fmt.Sprintf(
			`CREATE OR REPLACE VIEW "%s_%s" AS SELECT * FROM read_parquet([%s])`,
			t.Schema, t.Name, strings.Join(quoted, ", "),
		)
		if _, err := p.db.ExecContext(ctx, view); err != nil {
			return fmt.Errorf("creating view for %s.%s: %w", t.Schema, t.Name, err)
		}
	}
	return nil
}

// liveDataFiles walks metadata -> current snapshot -> manifest list ->
// manifest entries and returns the files still live. Deletions cancel
// earlier additions of the same file.
func (p *DuckDBProxy) liveDataFiles(ctx context.Context, t config.Table) ([]string, error) {
	location := fmt.Sprintf("%s.%s", t.Schema, t.Name)

	r, err := p.store.Read(ctx, path.Join(location, "metadata.json"))
	if err != nil {
		// Not mirrored yet.
		return nil, nil
	}
	defer r.Close()

	var metadata table.TableMetadata
	if err := json.NewDecoder(r).Decode(&metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	if metadata.CurrentSnapshot == nil {
		return nil, nil
	}

	metas, err := manifest.ReadList(ctx, p.store, metadata.CurrentSnapshot.ManifestList)
	if err != nil {
		return nil, fmt.Errorf("reading manifest list: %w", err)
	}

	live := make(map[string]bool)
	var order []string
	for _, m := range manifest.Filter(metas, nil, nil) {
		entries, err := manifest.Read(ctx, p.store, m.FileName)
		if err != nil {
			return nil, fmt.Errorf("reading manifest %s: %w", m.FileName, err)
		}
		for _, e := range entries {
			switch e.Kind {
			case manifest.KindDelete:
				delete(live, e.File.FileName)
			default:
				if !live[e.File.FileName] {
					live[e.File.FileName] = true
					order = append(order, e.File.FileName)
				}
			}
		}
	}

	var files []string
	for _, f := range order {
		if live[f] {
			files = append(files, f)
			live[f] = false
		}
	}
	return files, nil
}

func (p *DuckDBProxy) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	backend := pgproto3.NewBackend(conn, conn)

	_, err := backend.ReceiveStartupMessage()
	if err != nil {
		return
	}

	backend.Send(&pgproto3.AuthenticationOk{})
	backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
	if err := backend.Flush(); err != nil {
		return
	}

	for {
		msg, err := backend.Receive()
		if err != nil {
			return
		}

		switch msg := msg.(type) {
		case *pgproto3.Query:
			if err := p.handleQuery(ctx, backend, msg.String); err != nil {
				p.sendError(backend, err)
				continue
			}

		case *pgproto3.Terminate:
			return
		}
	}
}

func (p *DuckDBProxy) handleQuery(ctx context.Context, backend *pgproto3.Backend, query string) error {
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return err
	}
	if err := p.sendRowDescription(backend, columnTypes); err != nil {
		return err
	}

	values := make([]interface{}, len(columnTypes))
	scanArgs := make([]interface{}, len(columnTypes))
	for i := range values {
		scanArgs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return err
		}

		dataRow := &pgproto3.DataRow{
			Values: make([][]byte, len(columnTypes)),
		}
		for i, val := range values {
			if val == nil {
				dataRow.Values[i] = nil
				continue
			}
			dataRow.Values[i] = []byte(fmt.Sprintf("%v", val))
		}
		backend.Send(dataRow)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	backend.Send(&pgproto3.CommandComplete{CommandTag: []byte("SELECT")})
	backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
	return backend.Flush()
}

func (p *DuckDBProxy) sendRowDescription(backend *pgproto3.Backend, columns []*sql.ColumnType) error {
	fields := make([]pgproto3.FieldDescription, len(columns))
	for i, col := range columns {
		dataTypeOID := uint32(25) // TEXT
		if databaseTypeName := col.DatabaseTypeName(); databaseTypeName != "" {
			dataTypeOID = mapDataTypeToOID(databaseTypeName)
		}

		fields[i] = pgproto3.FieldDescription{
			Name:                 []byte(col.Name()),
			TableOID:             0,
			TableAttributeNumber: 0,
			DataTypeOID:          dataTypeOID,
			DataTypeSize:         -1,
			TypeModifier:         -1,
			Format:               0,
		}
	}

	backend.Send(&pgproto3.RowDescription{Fields: fields})
	return backend.Flush()
}

func (p *DuckDBProxy) sendError(backend *pgproto3.Backend, err error) {
	backend.Send(&pgproto3.ErrorResponse{
		Severity: "ERROR",
		Code:     "XX000",
		Message:  err.Error(),
	})
	backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
	_ = backend.Flush()
}

func mapDataTypeToOID(databaseTypeName string) uint32 {
	switch databaseTypeName {
	case "BOOL":
		return 16
	case "INT8", "BIGINT":
		return 20
	case "INT4", "INTEGER":
		return 23
	case "FLOAT4", "REAL":
		return 700
	case "FLOAT8", "DOUBLE":
		return 701
	case "VARCHAR", "TEXT":
		return 25
	case "DATE":
		return 1082
	case "TIMESTAMP":
		return 1114
	default:
		return 25
	}
}
