package cockroach

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"callfeed-backend/internal/domain"
	"callfeed-backend/internal/service/history"
)

// CallRecordRepository is the transactional store of call records.
// Range reads run inside a scoped read transaction so a failed scan
// aborts the whole page; there is never a partial result.
type CallRecordRepository struct {
	pool *pgxpool.Pool
}

// NewCallRecordRepository creates a new call record repository
func NewCallRecordRepository(pool *pgxpool.Pool) *CallRecordRepository {
	return &CallRecordRepository{pool: pool}
}

const callRecordColumns = `call_id, conversation_id, direction, medium, category, status, started_at_ms`

// Create inserts a new call record
func (r *CallRecordRepository) Create(ctx context.Context, rec *domain.CallRecord) error {
	query := `
		INSERT INTO call_records (
			call_id, conversation_id, direction, medium, category, status, started_at_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		int64(rec.CallID),
		rec.ConversationID,
		rec.Direction,
		rec.Medium,
		rec.Category,
		rec.Status,
		rec.StartedAtMS,
	)

	if err != nil {
		return fmt.Errorf("failed to create call record: %w", err)
	}

	return nil
}

// UpdateStatus updates the status of a call record
func (r *CallRecordRepository) UpdateStatus(ctx context.Context, key domain.CallRecordKey, status domain.CallStatus) error {
	query := `
		UPDATE call_records
		SET status = $3
		WHERE call_id = $1 AND conversation_id = $2
	`

	tag, err := r.pool.Exec(ctx, query, int64(key.CallID), key.ConversationID, status)
	if err != nil {
		return fmt.Errorf("failed to update call record status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return history.ErrRecordNotFound
	}

	return nil
}

// GetByKey retrieves a call record by its composite key. Records marked
// deleted are still returned; callers inspect the status. Absent keys
// yield history.ErrRecordNotFound.
func (r *CallRecordRepository) GetByKey(ctx context.Context, key domain.CallRecordKey) (*domain.CallRecord, error) {
	query := `
		SELECT ` + callRecordColumns + `
		FROM call_records
		WHERE call_id = $1 AND conversation_id = $2
	`

	rec, err := scanCallRecord(r.pool.QueryRow(ctx, query, int64(key.CallID), key.ConversationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, history.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get call record: %w", err)
	}

	return rec, nil
}

// LoadOlder returns up to limit records strictly before the watermark,
// newest first. A nil watermark means "most recent page".
func (r *CallRecordRepository) LoadOlder(ctx context.Context, q history.Query, before *int64, limit int) ([]domain.CallRecord, error) {
	query := `
		SELECT ` + callRecordColumns + `
		FROM call_records
		WHERE status != 'deleted'
	`
	args := []any{}

	if before != nil {
		args = append(args, *before)
		query += fmt.Sprintf(" AND started_at_ms < $%d", len(args))
	}
	query, args = appendQueryFilter(query, args, q)
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY started_at_ms DESC LIMIT $%d", len(args))

	return r.loadPage(ctx, query, args)
}

// LoadNewer returns up to limit records strictly after the watermark.
// Rows come back oldest first; the loader re-orders them.
func (r *CallRecordRepository) LoadNewer(ctx context.Context, q history.Query, after int64, limit int) ([]domain.CallRecord, error) {
	query := `
		SELECT ` + callRecordColumns + `
		FROM call_records
		WHERE status != 'deleted' AND started_at_ms > $1
	`
	args := []any{after}

	query, args = appendQueryFilter(query, args, q)
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY started_at_ms ASC LIMIT $%d", len(args))

	return r.loadPage(ctx, query, args)
}

// loadPage runs a range query inside a read-only transaction. The
// deferred rollback releases the transaction on every exit path.
func (r *CallRecordRepository) loadPage(ctx context.Context, query string, args []any) ([]domain.CallRecord, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query call records: %w", err)
	}
	defer rows.Close()

	var records []domain.CallRecord
	for rows.Next() {
		rec, err := scanCallRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read call records: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit read transaction: %w", err)
	}

	return records, nil
}

// appendQueryFilter adds the missed-only and conversation-set predicates
func appendQueryFilter(query string, args []any, q history.Query) (string, []any) {
	if q.MissedOnly {
		query += ` AND direction = 'incoming' AND status IN ('missed', 'declined')`
	}
	if q.ConversationIDs != nil {
		args = append(args, q.ConversationIDs)
		query += fmt.Sprintf(" AND conversation_id = ANY($%d)", len(args))
	}
	return query, args
}

func scanCallRecord(row pgx.Row) (*domain.CallRecord, error) {
	rec := &domain.CallRecord{}
	var callID int64
	err := row.Scan(
		&callID,
		&rec.ConversationID,
		&rec.Direction,
		&rec.Medium,
		&rec.Category,
		&rec.Status,
		&rec.StartedAtMS,
	)
	if err != nil {
		return nil, err
	}
	rec.CallID = uint64(callID)
	return rec, nil
}
