// Package audit keeps an append-only record of every routed request in a
// SQLite log. Appends are buffered through a single writer goroutine so the
// response path never blocks on the audit write and per-process append order
// is preserved; write failures are logged, never surfaced to the request.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/froth-ops/froth/pkg/models"
)

// Log writes and queries audit entries.
type Log struct {
	db            *sql.DB
	retentionDays int

	entries chan models.AuditEntry
	pending sync.WaitGroup
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// Config controls the audit log.
type Config struct {
	RetentionDays int
	Buffer        int
}

const createAuditTable = `
CREATE TABLE IF NOT EXISTS audit_log (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	source TEXT NOT NULL,
	tokens_in INTEGER NOT NULL,
	tokens_out INTEGER NOT NULL,
	tokens_charged INTEGER NOT NULL,
	cost_usd REAL NOT NULL,
	similarity_score REAL NOT NULL DEFAULT 0,
	latency_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_log(user_id);
CREATE INDEX IF NOT EXISTS idx_audit_source ON audit_log(source);
CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at);
`

// New opens the audit database, creates the schema, and starts the writer
// and retention goroutines.
func New(dbPath string, cfg Config) (*Log, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	if _, err := db.Exec(createAuditTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 256
	}

	l := &Log{
		db:            db,
		retentionDays: cfg.RetentionDays,
		entries:       make(chan models.AuditEntry, buffer),
		done:          make(chan struct{}),
	}

	l.wg.Add(2)
	go l.writeLoop()
	go l.retentionLoop()

	return l, nil
}

// Append enqueues an entry for the writer goroutine. It never blocks: if the
// buffer is full the entry is dropped and the drop is logged.
func (l *Log) Append(entry models.AuditEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	l.pending.Add(1)
	select {
	case l.entries <- entry:
	default:
		l.pending.Done()
		l.dropped.Add(1)
		log.Error().
			Str("request_id", entry.RequestID).
			Str("user_id", entry.UserID).
			Msg("audit buffer full, entry dropped")
	}
}

// Flush blocks until every enqueued entry has been written.
func (l *Log) Flush() {
	l.pending.Wait()
}

// Dropped returns the number of entries discarded because the buffer was full.
func (l *Log) Dropped() int64 {
	return l.dropped.Load()
}

func (l *Log) writeLoop() {
	defer l.wg.Done()
	for {
		select {
		case entry := <-l.entries:
			l.write(entry)
		case <-l.done:
			// Drain anything still buffered before exiting.
			for {
				select {
				case entry := <-l.entries:
					l.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (l *Log) write(entry models.AuditEntry) {
	defer l.pending.Done()
	_, err := l.db.Exec(
		`INSERT INTO audit_log
		 (request_id, user_id, source, tokens_in, tokens_out, tokens_charged, cost_usd, similarity_score, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID, entry.UserID, string(entry.Source),
		entry.TokensIn, entry.TokensOut, entry.TokensCharged,
		entry.CostUSD, entry.SimilarityScore, entry.LatencyMs, entry.CreatedAt,
	)
	if err != nil {
		log.Error().Err(err).Str("request_id", entry.RequestID).Msg("audit write failed")
	}
}

// Recent returns the last n entries in append order, newest last.
func (l *Log) Recent(ctx context.Context, n int) ([]models.AuditEntry, error) {
	if n <= 0 {
		n = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT seq, request_id, user_id, source, tokens_in, tokens_out, tokens_charged, cost_usd, similarity_score, latency_ms, created_at
		 FROM audit_log ORDER BY seq DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("recent audit: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	// Reverse from newest-first to newest-last.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Query returns audit entries matching the given options, newest first.
func (l *Log) Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error) {
	q := `SELECT seq, request_id, user_id, source, tokens_in, tokens_out, tokens_charged, cost_usd, similarity_score, latency_ms, created_at
		FROM audit_log WHERE 1=1`
	var args []any

	if opts.RequestID != "" {
		q += " AND request_id = ?"
		args = append(args, opts.RequestID)
	}
	if opts.UserID != "" {
		q += " AND user_id = ?"
		args = append(args, opts.UserID)
	}
	if opts.Source != "" {
		q += " AND source = ?"
		args = append(args, string(opts.Source))
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since)
	}

	q += " ORDER BY seq DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var source string
		if err := rows.Scan(
			&e.Seq, &e.RequestID, &e.UserID, &source,
			&e.TokensIn, &e.TokensOut, &e.TokensCharged,
			&e.CostUSD, &e.SimilarityScore, &e.LatencyMs, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		e.Source = models.Source(source)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns aggregate counts, charged tokens, and cost grouped by source
// and day.
func (l *Log) Stats(ctx context.Context) ([]models.AuditStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT source, date(created_at) as day, count(*), COALESCE(SUM(tokens_charged), 0), COALESCE(SUM(cost_usd), 0)
		 FROM audit_log GROUP BY source, day ORDER BY day DESC, source`)
	if err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}
	defer rows.Close()

	var stats []models.AuditStat
	for rows.Next() {
		var s models.AuditStat
		var source string
		var day sql.NullString
		if err := rows.Scan(&source, &day, &s.Count, &s.TokensCharged, &s.CostUSD); err != nil {
			return nil, fmt.Errorf("scan audit stat: %w", err)
		}
		s.Source = models.Source(source)
		s.Day = day.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes entries older than the configured retention period.
func (l *Log) Cleanup(ctx context.Context) (int64, error) {
	if l.retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -l.retentionDays)
	res, err := l.db.ExecContext(ctx, `DELETE FROM audit_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	return res.RowsAffected()
}

func (l *Log) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			_, _ = l.Cleanup(context.Background())
		}
	}
}

// Close flushes buffered entries, stops the background goroutines, and
// closes the database.
func (l *Log) Close() error {
	l.Flush()
	close(l.done)
	l.wg.Wait()
	return l.db.Close()
}
