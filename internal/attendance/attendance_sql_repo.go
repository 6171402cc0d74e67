package attendance

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tn-work/internal/shared/clock"

	"github.com/google/uuid"
)

// dialect covers the differences between the plain SQL backends.
type dialect struct {
	name       string
	numbered   bool
	epochTimes bool
	schema     string
}

var (
	postgresDialect = dialect{
		name:     "postgres",
		numbered: true,
		schema: `
CREATE TABLE IF NOT EXISTS employees (
	id UUID PRIMARY KEY,
	full_name TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS attendance_sessions (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL,
	check_in TIMESTAMPTZ NOT NULL,
	check_out TIMESTAMPTZ,
	close_source VARCHAR(20),
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attendance_sessions_user_check_in ON attendance_sessions(user_id, check_in);
CREATE INDEX IF NOT EXISTS idx_attendance_sessions_check_in ON attendance_sessions(check_in);
CREATE UNIQUE INDEX IF NOT EXISTS uq_attendance_sessions_open ON attendance_sessions(user_id) WHERE check_out IS NULL;
`,
	}

	// sqlite keeps instants as unix milliseconds so range filters compare integers.
	sqliteDialect = dialect{
		name:       "sqlite",
		epochTimes: true,
		schema: `
PRAGMA busy_timeout = 5000;
CREATE TABLE IF NOT EXISTS employees (
	id TEXT PRIMARY KEY,
	full_name TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS attendance_sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	check_in INTEGER NOT NULL,
	check_out INTEGER,
	close_source TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attendance_sessions_user_check_in ON attendance_sessions(user_id, check_in);
CREATE INDEX IF NOT EXISTS idx_attendance_sessions_check_in ON attendance_sessions(check_in);
CREATE UNIQUE INDEX IF NOT EXISTS uq_attendance_sessions_open ON attendance_sessions(user_id) WHERE check_out IS NULL;
`,
	}
)

func dialectFor(driverName string) (dialect, error) {
	switch driverName {
	case "postgres", "pq":
		return postgresDialect, nil
	case "sqlite":
		return sqliteDialect, nil
	default:
		return dialect{}, fmt.Errorf("attendance: unsupported sql driver %q", driverName)
	}
}

// rebind rewrites ? placeholders to $n for numbered dialects.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d dialect) timeArg(t time.Time) any {
	if d.epochTimes {
		return t.UnixMilli()
	}
	return t
}

type sqlRepository struct {
	db      *sql.DB
	tx      *sql.Tx
	dialect dialect
}

// NewSQLRepository builds the store on a database/sql pool opened with the
// lib/pq ("pq") or modernc ("sqlite") driver and creates the schema.
func NewSQLRepository(ctx context.Context, db *sql.DB, driverName string) (Repository, error) {
	d, err := dialectFor(driverName)
	if err != nil {
		return nil, err
	}
	r := &sqlRepository{db: db, dialect: d}
	if _, err := db.ExecContext(ctx, d.schema); err != nil {
		return nil, fmt.Errorf("initialize attendance schema: %w", err)
	}
	return r, nil
}

func (r *sqlRepository) WithTx(tx *sql.Tx) Repository {
	return &sqlRepository{db: r.db, tx: tx, dialect: r.dialect}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *sqlRepository) conn() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

const selectSessions = `
SELECT s.id, s.user_id, s.check_in, s.check_out, COALESCE(s.close_source, ''), e.full_name
FROM attendance_sessions s
LEFT JOIN employees e ON e.id = s.user_id
`

func (r *sqlRepository) Create(ctx context.Context, s *Session) error {
	now := s.CheckIn
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = s.CreatedAt

	var checkOut any
	if s.CheckOut != nil {
		checkOut = r.dialect.timeArg(*s.CheckOut)
	}

	query := r.dialect.rebind(`
INSERT INTO attendance_sessions (id, user_id, check_in, check_out, close_source, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.conn().ExecContext(ctx, query,
		s.ID.String(),
		s.UserID.String(),
		r.dialect.timeArg(s.CheckIn),
		checkOut,
		nullString(s.CloseSource),
		r.dialect.timeArg(s.CreatedAt),
		r.dialect.timeArg(s.UpdatedAt),
	)
	return err
}

func (r *sqlRepository) FindOpen(ctx context.Context, userID string) (*Session, error) {
	return r.findOpen(ctx, userID, "ASC")
}

func (r *sqlRepository) FindOpenLatest(ctx context.Context, userID string) (*Session, error) {
	return r.findOpen(ctx, userID, "DESC")
}

func (r *sqlRepository) findOpen(ctx context.Context, userID, direction string) (*Session, error) {
	query := r.dialect.rebind(selectSessions + `
WHERE s.user_id = ? AND s.check_out IS NULL
ORDER BY s.check_in ` + direction + `
LIMIT 1`)
	rows, err := r.query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *sqlRepository) Close(ctx context.Context, id uuid.UUID, checkOut time.Time, source string) (bool, error) {
	query := r.dialect.rebind(`
UPDATE attendance_sessions
SET check_out = ?, close_source = ?, updated_at = ?
WHERE id = ? AND check_out IS NULL`)
	res, err := r.conn().ExecContext(ctx, query,
		r.dialect.timeArg(checkOut),
		source,
		r.dialect.timeArg(checkOut),
		id.String(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *sqlRepository) ListIntersecting(ctx context.Context, userID string, w clock.Window) ([]Session, error) {
	query := selectSessions + `WHERE s.check_in >= ? AND s.check_in < ?`
	args := []any{r.dialect.timeArg(w.Start), r.dialect.timeArg(w.End)}
	if userID != "" {
		query += ` AND s.user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY s.check_in DESC`
	return r.query(ctx, r.dialect.rebind(query), args...)
}

func (r *sqlRepository) ListByUser(ctx context.Context, userID string) ([]Session, error) {
	query := r.dialect.rebind(selectSessions + `WHERE s.user_id = ? ORDER BY s.check_in DESC`)
	return r.query(ctx, query, userID)
}

func (r *sqlRepository) ListOpenBefore(ctx context.Context, cutoff time.Time) ([]Session, error) {
	query := r.dialect.rebind(selectSessions + `WHERE s.check_out IS NULL AND s.check_in < ? ORDER BY s.check_in ASC`)
	return r.query(ctx, query, r.dialect.timeArg(cutoff))
}

func (r *sqlRepository) query(ctx context.Context, query string, args ...any) ([]Session, error) {
	rows, err := r.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			s        Session
			checkIn  dbTime
			checkOut dbTime
			name     sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.UserID, &checkIn, &checkOut, &s.CloseSource, &name); err != nil {
			return nil, fmt.Errorf("scan attendance session: %w", err)
		}
		s.CheckIn = checkIn.Time
		if checkOut.Valid {
			t := checkOut.Time
			s.CheckOut = &t
		}
		if name.Valid {
			s.Employee = &EmployeeRef{ID: s.UserID, FullName: name.String}
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// dbTime scans both TIMESTAMPTZ values and unix millisecond integers.
type dbTime struct {
	Time  time.Time
	Valid bool
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
	case time.Time:
		t.Time, t.Valid = v, true
	case int64:
		t.Time, t.Valid = time.UnixMilli(v), true
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
	return nil
}

func (t *dbTime) parse(s string) error {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		t.Time, t.Valid = time.UnixMilli(ms), true
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("parse time %q: %w", s, err)
	}
	t.Time, t.Valid = parsed, true
	return nil
}

func nullString(s string) driver.Value {
	if s == "" {
		return nil
	}
	return s
}
