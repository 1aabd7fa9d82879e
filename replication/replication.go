package replication

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"

	"paimon-mirror/config"
	"paimon-mirror/schema"
	"paimon-mirror/storage"
	"paimon-mirror/table"
)

// Replicator consumes the Postgres logical replication stream and
// feeds row images to the table writer; each upstream commit becomes
// one table snapshot.
type Replicator struct {
	config          *config.Config
	dbConn          *pgx.Conn
	replicationConn *pgconn.PgConn
	writer          *table.Writer
	schemaManager   *schema.Manager
}

func NewReplicator(cfg *config.Config, store storage.Storage) (*Replicator, error) {
	// Regular connection for catalog queries.
	dbConn, err := pgx.Connect(context.Background(), fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.Database,
	))
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	schemaManager := schema.NewManager(dbConn)
	for _, t := range cfg.Tables {
		if err := schemaManager.InitializeSchema(context.Background(), t.Schema, t.Name); err != nil {
			return nil, fmt.Errorf("initializing schema for %s.%s: %w", t.Schema, t.Name, err)
		}
	}

	// Separate connection in replication mode for the WAL stream.
	replicationConn, err := pgconn.Connect(context.Background(), fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?replication=database",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.Database,
	))
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres for replication: %w", err)
	}

	writer := table.NewWriter(store, schemaManager, cfg.Warehouse.Buckets, cfg.PartitionColumns())

	return &Replicator{
		config:          cfg,
		dbConn:          dbConn,
		replicationConn: replicationConn,
		writer:          writer,
		schemaManager:   schemaManager,
	}, nil
}

func (r *Replicator) Start(ctx context.Context) error {
	defer r.dbConn.Close(context.Background())
	defer r.replicationConn.Close(context.Background())

	if err := r.createReplicationSlot(ctx); err != nil {
		return fmt.Errorf("creating replication slot: %w", err)
	}
	return r.startReplication(ctx)
}

func (r *Replicator) createReplicationSlot(ctx context.Context) error {
	_, err := pglogrepl.CreateReplicationSlot(ctx, r.replicationConn, r.config.Postgres.Slot, "pgoutput", pglogrepl.CreateReplicationSlotOptions{
		Temporary: true,
		Mode:      pglogrepl.LogicalReplication,
	})
	if err != nil {
		var pgerr *pgconn.PgError
		if errors.As(err, &pgerr) && pgerr.Code == "42710" {
			// Duplicate object, slot already exists.
			return nil
		}
		return fmt.Errorf("error creating replication slot: %w", err)
	}
	return nil
}

func (r *Replicator) startReplication(ctx context.Context) error {
	var startLSN pglogrepl.LSN

	err := pglogrepl.StartReplication(ctx, r.replicationConn, r.config.Postgres.Slot, startLSN, pglogrepl.StartReplicationOptions{
		PluginArgs: []string{
			"proto_version '2'",
			"messages 'true'",
			"streaming 'true'",
			fmt.Sprintf("publication_names '%s'", r.config.Postgres.Publication),
		},
	})
	if err != nil {
		return fmt.Errorf("starting replication: %w", err)
	}
	return r.handleReplication(ctx)
}

func (r *Replicator) handleReplication(ctx context.Context) error {
	clientXLogPos := pglogrepl.LSN(0)
	standbyMessageTimeout := time.Second * 10
	nextStandbyMessageDeadline := time.Now().Add(standbyMessageTimeout)
	relations := make(map[uint32]*pglogrepl.RelationMessageV2)
	inStream := false

	for {
		if time.Now().After(nextStandbyMessageDeadline) {
			err := pglogrepl.SendStandbyStatusUpdate(ctx, r.replicationConn, pglogrepl.StandbyStatusUpdate{
				WALWritePosition: clientXLogPos,
			})
			if err != nil {
				return fmt.Errorf("SendStandbyStatusUpdate failed: %w", err)
			}
			nextStandbyMessageDeadline = time.Now().Add(standbyMessageTimeout)
		}

		rawMsg, err := r.replicationConn.ReceiveMessage(ctx)
		if err != nil {
			if pgconn.Timeout(err) {
				continue
			}
			return fmt.Errorf("ReceiveMessage failed: %w", err)
		}

		if errMsg, ok := rawMsg.(*pgproto3.ErrorResponse); ok {
			return fmt.Errorf("received Postgres WAL error: %+v", errMsg)
		}

		msg, ok := rawMsg.(*pgproto3.CopyData)
		if !ok {
			continue
		}
		if len(msg.Data) == 0 {
			return fmt.Errorf("empty CopyData message received")
		}

		switch msg.Data[0] {
		case pglogrepl.PrimaryKeepaliveMessageByteID: // 'k'
			pkm, err := pglogrepl.ParsePrimaryKeepaliveMessage(msg.Data[1:])
			if err != nil {
				return fmt.Errorf("ParsePrimaryKeepaliveMessage failed: %w", err)
			}
			if pkm.ServerWALEnd > clientXLogPos {
				clientXLogPos = pkm.ServerWALEnd
			}
			if pkm.ReplyRequested {
				nextStandbyMessageDeadline = time.Time{}
			}

		case pglogrepl.XLogDataByteID: // 'w'
			xld, err := pglogrepl.ParseXLogData(msg.Data[1:])
			if err != nil {
				return fmt.Errorf("ParseXLogData failed: %w", err)
			}
			if xld.WALStart > clientXLogPos {
				clientXLogPos = xld.WALStart
			}

			logicalMsg, err := pglogrepl.ParseV2(xld.WALData, inStream)
			if err != nil {
				return fmt.Errorf("parsing logical replication message: %w", err)
			}
			if err := r.handleMessage(ctx, logicalMsg, relations, &inStream); err != nil {
				return err
			}

		default:
			return fmt.Errorf("unknown replication message type: %c", msg.Data[0])
		}
	}
}

func (r *Replicator) handleMessage(ctx context.Context, logicalMsg pglogrepl.Message, relations map[uint32]*pglogrepl.RelationMessageV2, inStream *bool) error {
	switch m := logicalMsg.(type) {
	case *pglogrepl.RelationMessageV2:
		relations[m.RelationID] = m
		if err := r.schemaManager.HandleRelationMessage(m); err != nil {
			return fmt.Errorf("handling relation message: %w", err)
		}

	case *pglogrepl.BeginMessage:
		// Rows accumulate in the table writer until the commit.

	case *pglogrepl.CommitMessage:
		if err := r.writer.Commit(ctx); err != nil {
			return fmt.Errorf("committing: %w", err)
		}

	case *pglogrepl.InsertMessageV2:
		rel, ok := relations[m.RelationID]
		if !ok {
			return fmt.Errorf("unknown relation ID %d", m.RelationID)
		}
		if err := r.writer.WriteInsert(m, rel); err != nil {
			return fmt.Errorf("writing insert: %w", err)
		}

	case *pglogrepl.UpdateMessageV2:
		rel, ok := relations[m.RelationID]
		if !ok {
			return fmt.Errorf("unknown relation ID %d", m.RelationID)
		}
		if err := r.writer.WriteUpdate(m, rel); err != nil {
			return fmt.Errorf("writing update: %w", err)
		}

	case *pglogrepl.DeleteMessageV2:
		rel, ok := relations[m.RelationID]
		if !ok {
			return fmt.Errorf("unknown relation ID %d", m.RelationID)
		}
		if err := r.writer.WriteDelete(m, rel); err != nil {
			return fmt.Errorf("writing delete: %w", err)
		}

	case *pglogrepl.LogicalDecodingMessageV2:
		// Application-level messages are not mirrored.

	case *pglogrepl.StreamStartMessageV2:
		*inStream = true
	case *pglogrepl.StreamStopMessageV2:
		*inStream = false
	case *pglogrepl.StreamCommitMessageV2:
		if err := r.writer.Commit(ctx); err != nil {
			return fmt.Errorf("committing stream: %w", err)
		}
	case *pglogrepl.StreamAbortMessageV2:
		log.Printf("stream abort for xid %d", m.Xid)

	default:
		log.Printf("unhandled message type in pgoutput stream: %T", logicalMsg)
	}
	return nil
}
