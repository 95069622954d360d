package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertQuerySQL = `INSERT INTO query_log (
        user_email,
        query_text,
        intent,
        result_type,
        dates,
        metrics,
        item_count,
        error,
        duration_ms
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    RETURNING id, created_at;`

	listRecentQueriesSQL = `SELECT
        id,
        user_email,
        query_text,
        intent,
        result_type,
        dates,
        metrics,
        item_count,
        error,
        duration_ms,
        created_at
    FROM query_log
    ORDER BY created_at DESC, id DESC
    LIMIT $1;`

	deleteQueriesBeforeSQL = `DELETE FROM query_log WHERE created_at < $1;`

	insertRefreshSQL = `INSERT INTO dataset_refresh (
        sheet_name,
        status,
        row_count,
        duration_ms,
        error
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    RETURNING id, created_at;`

	listRecentRefreshesSQL = `SELECT
        id,
        sheet_name,
        status,
        row_count,
        duration_ms,
        error,
        created_at
    FROM dataset_refresh
    ORDER BY created_at DESC, id DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// QueryLogStore persists the query audit trail.
type QueryLogStore interface {
	InsertQuery(ctx context.Context, entry QueryLogEntry) (QueryLogEntry, error)
	ListRecentQueries(ctx context.Context, limit int) ([]QueryLogEntry, error)
	DeleteQueriesBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// RefreshLogStore persists sheet fetch attempts.
type RefreshLogStore interface {
	InsertRefresh(ctx context.Context, rec RefreshRecord) (RefreshRecord, error)
	ListRecentRefreshes(ctx context.Context, limit int) ([]RefreshRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to the query and refresh logs.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertQuery appends an audit entry and returns it with id and timestamp.
func (s *Store) InsertQuery(ctx context.Context, entry QueryLogEntry) (QueryLogEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return QueryLogEntry{}, err
	}

	dates := entry.Dates
	if dates == nil {
		dates = []string{}
	}
	metrics := entry.Metrics
	if metrics == nil {
		metrics = []string{}
	}

	var errMsg interface{}
	if entry.Error != nil {
		errMsg = *entry.Error
	}

	row := pool.QueryRow(ctx, insertQuerySQL,
		entry.UserEmail,
		entry.Text,
		entry.Intent,
		entry.ResultType,
		dates,
		metrics,
		entry.ItemCount,
		errMsg,
		entry.DurationMS,
	)
	if scanErr := row.Scan(&entry.ID, &entry.CreatedAt); scanErr != nil {
		return QueryLogEntry{}, fmt.Errorf("insert query log: %w", scanErr)
	}
	entry.Dates, entry.Metrics = dates, metrics
	return entry, nil
}

// ListRecentQueries lists the newest audit entries first.
func (s *Store) ListRecentQueries(ctx context.Context, limit int) ([]QueryLogEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentQueriesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent queries: %w", queryErr)
	}
	defer rows.Close()

	entries := make([]QueryLogEntry, 0, limit)
	for rows.Next() {
		entry, err := scanQueryLogEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

// DeleteQueriesBefore removes audit entries older than the cutoff.
func (s *Store) DeleteQueriesBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteQueriesBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete queries before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// InsertRefresh records a sheet fetch attempt.
func (s *Store) InsertRefresh(ctx context.Context, rec RefreshRecord) (RefreshRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return RefreshRecord{}, err
	}

	var errMsg interface{}
	if rec.Error != nil {
		errMsg = *rec.Error
	}

	row := pool.QueryRow(ctx, insertRefreshSQL,
		rec.SheetName,
		rec.Status,
		rec.RowCount,
		rec.DurationMS,
		errMsg,
	)
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return RefreshRecord{}, fmt.Errorf("insert refresh: %w", scanErr)
	}
	return rec, nil
}

// ListRecentRefreshes lists the newest refresh attempts first.
func (s *Store) ListRecentRefreshes(ctx context.Context, limit int) ([]RefreshRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRefreshesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent refreshes: %w", queryErr)
	}
	defer rows.Close()

	records := make([]RefreshRecord, 0, limit)
	for rows.Next() {
		var (
			rec    RefreshRecord
			errMsg sql.NullString
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.SheetName,
			&rec.Status,
			&rec.RowCount,
			&rec.DurationMS,
			&errMsg,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		if errMsg.Valid {
			msg := errMsg.String
			rec.Error = &msg
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func scanQueryLogEntry(rows pgx.Rows) (QueryLogEntry, error) {
	var (
		entry  QueryLogEntry
		errMsg sql.NullString
	)

	if err := rows.Scan(
		&entry.ID,
		&entry.UserEmail,
		&entry.Text,
		&entry.Intent,
		&entry.ResultType,
		&entry.Dates,
		&entry.Metrics,
		&entry.ItemCount,
		&errMsg,
		&entry.DurationMS,
		&entry.CreatedAt,
	); err != nil {
		return QueryLogEntry{}, err
	}

	if errMsg.Valid {
		msg := errMsg.String
		entry.Error = &msg
	}
	return entry, nil
}
