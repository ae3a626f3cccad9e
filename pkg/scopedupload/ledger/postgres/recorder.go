package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/scoped-upload/pkg/scopedupload"
	"github.com/tendant/scoped-upload/pkg/scopedupload/ledger"
)

// Schema creates the ledger table.
const Schema = `
CREATE TABLE IF NOT EXISTS upload_ledger (
	id            UUID PRIMARY KEY,
	batch_id      UUID NOT NULL,
	item_index    INTEGER NOT NULL,
	file_name     TEXT NOT NULL,
	status        TEXT NOT NULL,
	retrieval_url TEXT NOT NULL DEFAULT '',
	error_kind    TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS upload_ledger_batch_idx ON upload_ledger (batch_id, item_index);
`

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Recorder implements ledger.Recorder using PostgreSQL
type Recorder struct {
	db DBTX
}

// New creates a new PostgreSQL recorder
func New(db DBTX) *Recorder {
	return &Recorder{db: db}
}

// NewWithPool creates a new PostgreSQL recorder with connection pool
func NewWithPool(pool *pgxpool.Pool) *Recorder {
	return &Recorder{db: pool}
}

// EnsureSchema creates the ledger table when it does not exist.
func (r *Recorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return handlePostgresError("ensure schema", err)
	}
	return nil
}

func (r *Recorder) Record(ctx context.Context, entry *ledger.Entry) error {
	query := `
		INSERT INTO upload_ledger (
			id, batch_id, item_index, file_name, status,
			retrieval_url, error_kind, error_message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		entry.ID, entry.BatchID, entry.Index, entry.FileName, string(entry.Status),
		entry.RetrievalURL, entry.ErrorKind, entry.ErrorMessage, entry.CreatedAt,
	)
	if err != nil {
		return handlePostgresError("record entry", err)
	}
	return nil
}

func (r *Recorder) ListBatch(ctx context.Context, batchID uuid.UUID) ([]*ledger.Entry, error) {
	query := `
		SELECT id, batch_id, item_index, file_name, status,
		       retrieval_url, error_kind, error_message, created_at
		FROM upload_ledger
		WHERE batch_id = $1
		ORDER BY item_index, created_at`

	rows, err := r.db.Query(ctx, query, batchID)
	if err != nil {
		return nil, handlePostgresError("list batch", err)
	}
	defer rows.Close()

	var entries []*ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		var status string
		if err := rows.Scan(
			&e.ID, &e.BatchID, &e.Index, &e.FileName, &status,
			&e.RetrievalURL, &e.ErrorKind, &e.ErrorMessage, &e.CreatedAt,
		); err != nil {
			return nil, handlePostgresError("scan entry", err)
		}
		e.Status = scopedupload.ItemStatus(status)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("list batch", err)
	}

	if len(entries) == 0 {
		return nil, ledger.ErrBatchNotFound
	}
	return entries, nil
}

// Error handling helper
func handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("ledger entry already exists")
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - run EnsureSchema first")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.ErrBatchNotFound
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}
