/*
Package sqlite provides a SQLite-backed implementation of enrollment.Store.

PURPOSE:
  Durable storage for class sessions, bookings, credit accounts and the
  append-only credit ledger. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

CONDITIONAL WRITES:
  Every mutable row has a revision column. Commit turns each write into

    INSERT ...                                  (expected revision 0)
    UPDATE ... SET revision = revision + 1
           WHERE <key> AND revision = ?         (expected revision n)

  inside one SQL transaction. A unique-key violation on insert, or an
  update touching zero rows, means another writer committed first: the
  SQL transaction is rolled back and enrollment.ErrConcurrentModification
  is returned.

KEY TABLES:
  class_sessions:  capacity and enrollment count (CHECK enrolled <= capacity)
  bookings:        (class_id, user_id) primary key, waitlist position
  credit_accounts: balance (CHECK balance >= 0)
  credit_entries:  immutable credit history

CONCURRENCY:
  Reads run without locks. Commits are serialized by a mutex because SQLite
  allows a single writer; the database is opened with _txlock=immediate and
  a busy timeout so a second process waits instead of failing.

MIGRATION:
  Schema is applied on New() with golang-migrate from the embedded
  migrations/ directory.

USAGE:
  store, err := sqlite.New("./data/booking.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  coordinator := enrollment.NewCoordinator(store)

SEE ALSO:
  - enrollment/store.go: Interface definitions
  - enrollment/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/class-booking/enrollment"
)

// timeLayout is fixed-width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements enrollment.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

var (
	_ enrollment.Store = (*Store)(nil)
	_ enrollment.Admin = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// POINT READS (enrollment.Reader)
// =============================================================================

func (s *Store) GetClass(ctx context.Context, id enrollment.ClassID) (enrollment.ClassSession, error) {
	var (
		c         enrollment.ClassSession
		startTime string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, capacity, enrolled, start_time, status, revision FROM class_sessions WHERE id = ?",
		id,
	).Scan(&c.ID, &c.Capacity, &c.Enrolled, &startTime, &c.Status, &c.Revision)
	if errors.Is(err, sql.ErrNoRows) {
		return enrollment.ClassSession{}, enrollment.ErrNotFound
	}
	if err != nil {
		return enrollment.ClassSession{}, fmt.Errorf("failed to get class: %w", err)
	}
	c.StartTime = parseTime(startTime)
	return c, nil
}

const bookingColumns = `class_id, user_id, status, waitlist_position, created_at, cancelled_at, revision`

func (s *Store) GetBooking(ctx context.Context, classID enrollment.ClassID, userID enrollment.UserID) (enrollment.Booking, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE class_id = ? AND user_id = ?",
		classID, userID,
	)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return enrollment.Booking{}, enrollment.ErrNotFound
	}
	if err != nil {
		return enrollment.Booking{}, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

func (s *Store) GetCredit(ctx context.Context, userID enrollment.UserID) (enrollment.CreditAccount, error) {
	var a enrollment.CreditAccount
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id, balance, revision FROM credit_accounts WHERE user_id = ?",
		userID,
	).Scan(&a.UserID, &a.Balance, &a.Revision)
	if errors.Is(err, sql.ErrNoRows) {
		return enrollment.CreditAccount{}, enrollment.ErrNotFound
	}
	if err != nil {
		return enrollment.CreditAccount{}, fmt.Errorf("failed to get credit account: %w", err)
	}
	return a, nil
}

func (s *Store) Waitlist(ctx context.Context, classID enrollment.ClassID) ([]enrollment.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE class_id = ? AND status = 'waitlisted'
		ORDER BY waitlist_position ASC
	`
	return s.queryBookings(ctx, query, classID)
}

// =============================================================================
// CONDITIONAL COMMIT
// =============================================================================

// Commit applies the write set in one SQL transaction.
func (s *Store) Commit(ctx context.Context, ws enrollment.WriteSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	now := formatTime(time.Now())

	for _, c := range ws.Classes {
		if err := writeClass(ctx, sqlTx, c, now); err != nil {
			return err
		}
	}
	for _, b := range ws.Bookings {
		if err := writeBooking(ctx, sqlTx, b); err != nil {
			return err
		}
	}
	for _, a := range ws.Credits {
		if err := writeCredit(ctx, sqlTx, a, now); err != nil {
			return err
		}
	}
	for _, e := range ws.Entries {
		if err := appendEntry(ctx, sqlTx, e); err != nil {
			return err
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func writeClass(ctx context.Context, db execer, c enrollment.ClassSession, now string) error {
	if c.Revision == 0 {
		_, err := db.ExecContext(ctx, `
			INSERT INTO class_sessions (id, capacity, enrolled, start_time, status, revision, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 1, ?, ?)
		`, c.ID, c.Capacity, c.Enrolled, formatTime(c.StartTime), c.Status, now, now)
		return conflictOr(err, "insert class")
	}

	res, err := db.ExecContext(ctx, `
		UPDATE class_sessions
		SET capacity = ?, enrolled = ?, start_time = ?, status = ?, revision = revision + 1, updated_at = ?
		WHERE id = ? AND revision = ?
	`, c.Capacity, c.Enrolled, formatTime(c.StartTime), c.Status, now, c.ID, c.Revision)
	return expectOneRow(res, err, "update class")
}

func writeBooking(ctx context.Context, db execer, b enrollment.Booking) error {
	var position sql.NullInt64
	if b.WaitlistPosition != nil {
		position = sql.NullInt64{Int64: int64(*b.WaitlistPosition), Valid: true}
	}
	var cancelledAt sql.NullString
	if b.CancelledAt != nil {
		cancelledAt = sql.NullString{String: formatTime(*b.CancelledAt), Valid: true}
	}

	if b.Revision == 0 {
		_, err := db.ExecContext(ctx, `
			INSERT INTO bookings (class_id, user_id, status, waitlist_position, created_at, cancelled_at, revision)
			VALUES (?, ?, ?, ?, ?, ?, 1)
		`, b.ClassID, b.UserID, b.Status, position, formatTime(b.CreatedAt), cancelledAt)
		return conflictOr(err, "insert booking")
	}

	res, err := db.ExecContext(ctx, `
		UPDATE bookings
		SET status = ?, waitlist_position = ?, created_at = ?, cancelled_at = ?, revision = revision + 1
		WHERE class_id = ? AND user_id = ? AND revision = ?
	`, b.Status, position, formatTime(b.CreatedAt), cancelledAt, b.ClassID, b.UserID, b.Revision)
	return expectOneRow(res, err, "update booking")
}

func writeCredit(ctx context.Context, db execer, a enrollment.CreditAccount, now string) error {
	if a.Revision == 0 {
		_, err := db.ExecContext(ctx, `
			INSERT INTO credit_accounts (user_id, balance, revision, updated_at)
			VALUES (?, ?, 1, ?)
		`, a.UserID, a.Balance, now)
		return conflictOr(err, "insert credit account")
	}

	res, err := db.ExecContext(ctx, `
		UPDATE credit_accounts
		SET balance = ?, revision = revision + 1, updated_at = ?
		WHERE user_id = ? AND revision = ?
	`, a.Balance, now, a.UserID, a.Revision)
	return expectOneRow(res, err, "update credit account")
}

func appendEntry(ctx context.Context, db execer, e enrollment.CreditEntry) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO credit_entries (id, user_id, class_id, delta, kind, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.UserID, nullString(string(e.ClassID)), e.Delta, e.Kind, nullString(e.Reason), formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append credit entry: %w", err)
	}
	return nil
}

func conflictOr(err error, op string) error {
	if err == nil {
		return nil
	}
	if isUniqueConstraintError(err) {
		return enrollment.ErrConcurrentModification
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func expectOneRow(res sql.Result, err error, op string) error {
	if err != nil {
		return conflictOr(err, op)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n == 0 {
		return enrollment.ErrConcurrentModification
	}
	return nil
}

// =============================================================================
// PROJECTIONS
// =============================================================================

func (s *Store) BookingsByUser(ctx context.Context, userID enrollment.UserID, statuses ...enrollment.BookingStatus) ([]enrollment.Booking, error) {
	query := "SELECT " + bookingColumns + " FROM bookings WHERE user_id = ?"
	args := []any{userID}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, st)
		}
		query += " AND status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY created_at ASC, class_id ASC"
	return s.queryBookings(ctx, query, args...)
}

func (s *Store) BookingsByClass(ctx context.Context, classID enrollment.ClassID) ([]enrollment.Booking, error) {
	query := "SELECT " + bookingColumns + " FROM bookings WHERE class_id = ? ORDER BY created_at ASC, user_id ASC"
	return s.queryBookings(ctx, query, classID)
}

func (s *Store) CreditEntries(ctx context.Context, userID enrollment.UserID) ([]enrollment.CreditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, class_id, delta, kind, reason, created_at
		FROM credit_entries
		WHERE user_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query credit entries: %w", err)
	}
	defer rows.Close()

	var entries []enrollment.CreditEntry
	for rows.Next() {
		var (
			e         enrollment.CreditEntry
			classID   sql.NullString
			reason    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &classID, &e.Delta, &e.Kind, &reason, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan credit entry: %w", err)
		}
		e.ClassID = enrollment.ClassID(classID.String)
		e.Reason = reason.String
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) queryBookings(ctx context.Context, query string, args ...any) ([]enrollment.Booking, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []enrollment.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBooking(row scanner) (enrollment.Booking, error) {
	var (
		b           enrollment.Booking
		position    sql.NullInt64
		createdAt   string
		cancelledAt sql.NullString
	)
	if err := row.Scan(&b.ClassID, &b.UserID, &b.Status, &position, &createdAt, &cancelledAt, &b.Revision); err != nil {
		return enrollment.Booking{}, err
	}
	if position.Valid {
		p := int(position.Int64)
		b.WaitlistPosition = &p
	}
	b.CreatedAt = parseTime(createdAt)
	if cancelledAt.Valid {
		t := parseTime(cancelledAt.String)
		b.CancelledAt = &t
	}
	return b, nil
}

// =============================================================================
// ADMIN
// =============================================================================

// ClassIDs lists every class, ascending.
func (s *Store) ClassIDs(ctx context.Context) ([]enrollment.ClassID, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM class_sessions ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}
	defer rows.Close()

	var ids []enrollment.ClassID
	for rows.Next() {
		var id enrollment.ClassID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan class id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AccountIDs lists every member with a credit account, ascending.
func (s *Store) AccountIDs(ctx context.Context) ([]enrollment.UserID, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT user_id FROM credit_accounts ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var ids []enrollment.UserID
	for rows.Next() {
		var id enrollment.UserID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Reset deletes all data. Used by tests and the demo scenario loader.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"credit_entries", "credit_accounts", "bookings", "class_sessions"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY constraint failed"))
}
