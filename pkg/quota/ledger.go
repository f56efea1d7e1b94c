// Package quota tracks per-user token consumption against daily and monthly
// ceilings, backed by SQLite. All counter mutation goes through the Ledger;
// the check-then-charge sequence for a user is serialized by a sharded
// per-user lock so concurrent requests cannot jointly exceed a ceiling.
package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/froth-ops/froth/pkg/models"
)

// Denial reasons returned by CheckAndReserve.
var (
	ErrDailyLimit   = errors.New("daily token limit exceeded")
	ErrMonthlyLimit = errors.New("monthly token limit exceeded")
)

const lockShards = 64

// LimitsFunc resolves the effective daily and monthly ceilings for a user.
type LimitsFunc func(userID string) (daily, monthly int64)

// Ledger is the per-user token quota store.
type Ledger struct {
	db     *sql.DB
	limits LimitsFunc
	locks  [lockShards]sync.Mutex
	now    func() time.Time
}

// Reservation is a quota hold taken before a paid call. It must be settled
// exactly once, with Charge on success or Release on failure.
type Reservation struct {
	UserID string
	Tokens int64
}

const createQuotaTable = `
CREATE TABLE IF NOT EXISTS quota_records (
	user_id TEXT PRIMARY KEY,
	day TEXT NOT NULL,
	daily_used INTEGER NOT NULL DEFAULT 0,
	month TEXT NOT NULL,
	monthly_used INTEGER NOT NULL DEFAULT 0
);
`

// New opens the quota database and creates the schema.
func New(dbPath string, limits LimitsFunc) (*Ledger, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open quota db: %w", err)
	}

	if _, err := db.Exec(createQuotaTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate quota db: %w", err)
	}

	return &Ledger{db: db, limits: limits, now: time.Now}, nil
}

func (l *Ledger) lock(userID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &l.locks[h.Sum32()%lockShards]
}

func dayKey(t time.Time) string   { return t.UTC().Format("2006-01-02") }
func monthKey(t time.Time) string { return t.UTC().Format("2006-01") }

// record is the stored counter state for one user, already rolled over to
// the current period. Callers must hold the user's lock.
type record struct {
	day         string
	dailyUsed   int64
	month       string
	monthlyUsed int64
}

func (l *Ledger) load(ctx context.Context, userID string) (record, error) {
	now := l.now()
	r := record{day: dayKey(now), month: monthKey(now)}

	var day, month string
	var daily, monthly int64
	err := l.db.QueryRowContext(ctx,
		`SELECT day, daily_used, month, monthly_used FROM quota_records WHERE user_id = ?`,
		userID,
	).Scan(&day, &daily, &month, &monthly)
	if errors.Is(err, sql.ErrNoRows) {
		return r, nil
	}
	if err != nil {
		return record{}, fmt.Errorf("load quota record: %w", err)
	}

	// Lazy rollover: a stale period resets its counter.
	if day == r.day {
		r.dailyUsed = daily
	}
	if month == r.month {
		r.monthlyUsed = monthly
	}
	return r, nil
}

func (l *Ledger) store(ctx context.Context, userID string, r record) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO quota_records (user_id, day, daily_used, month, monthly_used)
		 VALUES (?, ?, ?, ?, ?)`,
		userID, r.day, r.dailyUsed, r.month, r.monthlyUsed,
	)
	if err != nil {
		return fmt.Errorf("store quota record: %w", err)
	}
	return nil
}

// CheckAndReserve reserves estimated tokens against the user's ceilings.
// It returns ErrDailyLimit or ErrMonthlyLimit when the projected usage would
// exceed a ceiling, without mutating any counter. On success the estimate is
// added to both counters so a concurrent request sees the projected usage.
func (l *Ledger) CheckAndReserve(ctx context.Context, userID string, estimated int64) (Reservation, error) {
	mu := l.lock(userID)
	mu.Lock()
	defer mu.Unlock()

	r, err := l.load(ctx, userID)
	if err != nil {
		return Reservation{}, err
	}

	daily, monthly := l.limits(userID)
	if r.dailyUsed+estimated > daily {
		return Reservation{}, ErrDailyLimit
	}
	if r.monthlyUsed+estimated > monthly {
		return Reservation{}, ErrMonthlyLimit
	}

	r.dailyUsed += estimated
	r.monthlyUsed += estimated
	if err := l.store(ctx, userID, r); err != nil {
		return Reservation{}, err
	}
	return Reservation{UserID: userID, Tokens: estimated}, nil
}

// Charge settles a reservation with the actual token usage, adjusting the
// counters by the difference between actual and reserved. Counters never go
// negative.
func (l *Ledger) Charge(ctx context.Context, res Reservation, actual int64) error {
	return l.adjust(ctx, res.UserID, actual-res.Tokens)
}

// Release rolls back an unused reservation, e.g. after a provider failure
// where token usage is unknown and nothing may be charged.
func (l *Ledger) Release(ctx context.Context, res Reservation) error {
	return l.adjust(ctx, res.UserID, -res.Tokens)
}

func (l *Ledger) adjust(ctx context.Context, userID string, delta int64) error {
	mu := l.lock(userID)
	mu.Lock()
	defer mu.Unlock()

	r, err := l.load(ctx, userID)
	if err != nil {
		return err
	}
	r.dailyUsed = max(r.dailyUsed+delta, 0)
	r.monthlyUsed = max(r.monthlyUsed+delta, 0)
	return l.store(ctx, userID, r)
}

// Stats returns the user's consumption against their ceilings for the
// current periods.
func (l *Ledger) Stats(ctx context.Context, userID string) (models.QuotaSnapshot, error) {
	mu := l.lock(userID)
	mu.Lock()
	defer mu.Unlock()

	r, err := l.load(ctx, userID)
	if err != nil {
		return models.QuotaSnapshot{}, err
	}

	daily, monthly := l.limits(userID)
	return models.QuotaSnapshot{
		UserID:           userID,
		Day:              r.day,
		DailyUsed:        r.dailyUsed,
		DailyLimit:       daily,
		DailyRemaining:   max(daily-r.dailyUsed, 0),
		Month:            r.month,
		MonthlyUsed:      r.monthlyUsed,
		MonthlyLimit:     monthly,
		MonthlyRemaining: max(monthly-r.monthlyUsed, 0),
	}, nil
}

// Users returns all user IDs with a stored quota record.
func (l *Ledger) Users(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT user_id FROM quota_records ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list quota users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan quota user: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// Close releases the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}
