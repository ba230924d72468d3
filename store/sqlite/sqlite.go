/*
Package sqlite provides a SQLite-backed implementation of engine.TxStore.

PURPOSE:
  Production persistence for bookings, advance requests, allotments, and
  the read-only member view. The same patterns apply to PostgreSQL; only
  dialect details differ.

CONCURRENCY:
  The database is opened with _txlock=immediate, so every WithTx starts a
  write transaction that serializes against other writers. The booking
  engine's capacity check-and-insert runs entirely inside one such
  transaction; two concurrent submits cannot both observe a free seat.
  SQLITE_BUSY on that path is mapped to ErrConcurrentCapacityConflict so
  the engine can retry as a waitlist join.

INVARIANT ENFORCEMENT:
  A partial unique index backs the one-consuming-booking-per-(member, date)
  rule at the storage layer, independent of the engine's own check. The
  unprocessed-advance-request uniqueness gets the same treatment.

WAL MODE:
  Opened with WAL so readers never block on the single writer.

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil { ... }
  defer store.Close()
  eng := engine.NewEngine(store)

SEE ALSO:
  - engine/store.go: interface contracts
  - engine/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-scheduler/engine"
)

// Store implements engine.TxStore on SQLite.
type Store struct {
	db *sql.DB
	q  querier
}

// querier abstracts *sql.DB and *sql.Tx so every query method works both
// standalone and inside WithTx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens (or creates) the database at path. Use ":memory:" for tests.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps _txlock=immediate semantics simple and avoids
	// spurious SQLITE_BUSY between this process's own connections.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, q: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		calendar_id TEXT NOT NULL,
		date TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		status TEXT NOT NULL,
		waitlist_position INTEGER,
		paid_in_lieu BOOLEAN NOT NULL DEFAULT FALSE,
		requested_at TEXT NOT NULL,
		responded_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_bookings_calendar_date
		ON bookings(calendar_id, date);
	CREATE INDEX IF NOT EXISTS idx_bookings_member_date
		ON bookings(member_id, date);

	-- One consuming booking per (member, date): enforced here as well as in
	-- the engine, so a race can never slip a duplicate past the check.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_one_consuming
		ON bookings(member_id, date)
		WHERE status IN ('pending','approved','waitlisted','cancellation_pending')
		  AND paid_in_lieu = 0;

	CREATE TABLE IF NOT EXISTS advance_requests (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		calendar_id TEXT NOT NULL,
		date TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		processed BOOLEAN NOT NULL DEFAULT FALSE,
		requested_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_advance_member_date
		ON advance_requests(member_id, date);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_advance_one_unprocessed
		ON advance_requests(member_id, date, leave_type)
		WHERE processed = 0;

	-- Exactly one of date/year per record; date-scoped overrides win.
	CREATE TABLE IF NOT EXISTS allotments (
		id TEXT PRIMARY KEY,
		calendar_id TEXT NOT NULL,
		date TEXT,
		year INTEGER,
		max_allotment INTEGER NOT NULL,
		CHECK ((date IS NULL) <> (year IS NULL))
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_allotments_date
		ON allotments(calendar_id, date) WHERE date IS NOT NULL;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_allotments_year
		ON allotments(calendar_id, year) WHERE year IS NOT NULL;

	-- Members are owned by an external system; this is the scheduler's
	-- read model of them.
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		calendar_id TEXT NOT NULL,
		name TEXT NOT NULL,
		pld_entitlement TEXT NOT NULL DEFAULT '0',
		sdv_entitlement TEXT NOT NULL DEFAULT '0',
		rollover TEXT NOT NULL DEFAULT '0'
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// WithTx runs fn inside one immediate (write) transaction.
func (s *Store) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	view := &Store{db: s.db, q: tx}
	if err := fn(view); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
}

// mapError translates driver errors into the engine's taxonomy.
func mapError(err error) error {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		if serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked {
			return fmt.Errorf("%w: %v", engine.ErrConcurrentCapacityConflict, err)
		}
	}
	return err
}

const timeFormat = time.RFC3339Nano

// =============================================================================
// BOOKINGS
// =============================================================================

func (s *Store) InsertBooking(ctx context.Context, b *engine.Booking) error {
	var respondedAt *string
	if b.RespondedAt != nil {
		v := b.RespondedAt.UTC().Format(timeFormat)
		respondedAt = &v
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO bookings
			(id, member_id, calendar_id, date, leave_type, status,
			 waitlist_position, paid_in_lieu, requested_at, responded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(b.ID), string(b.MemberID), string(b.CalendarID), b.Date.String(),
		string(b.LeaveType), string(b.Status), b.WaitlistPosition, b.PaidInLieu,
		b.RequestedAt.UTC().Format(timeFormat), respondedAt,
	)
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return &engine.DuplicateBookingError{MemberID: b.MemberID, Date: b.Date}
		}
		return mapError(err)
	}
	return nil
}

func (s *Store) GetBooking(ctx context.Context, id engine.BookingID) (*engine.Booking, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, member_id, calendar_id, date, leave_type, status,
		       waitlist_position, paid_in_lieu, requested_at, responded_at
		FROM bookings WHERE id = ?`, string(id))
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", id, engine.ErrNotFound)
	}
	return b, err
}

func (s *Store) UpdateBooking(ctx context.Context, b *engine.Booking) error {
	var respondedAt *string
	if b.RespondedAt != nil {
		v := b.RespondedAt.UTC().Format(timeFormat)
		respondedAt = &v
	}
	res, err := s.q.ExecContext(ctx, `
		UPDATE bookings
		SET status = ?, waitlist_position = ?, paid_in_lieu = ?, responded_at = ?
		WHERE id = ?`,
		string(b.Status), b.WaitlistPosition, b.PaidInLieu, respondedAt, string(b.ID),
	)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("booking %s: %w", b.ID, engine.ErrNotFound)
	}
	return nil
}

func (s *Store) BookingsForDate(ctx context.Context, cal engine.CalendarID, date engine.Day) ([]*engine.Booking, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, member_id, calendar_id, date, leave_type, status,
		       waitlist_position, paid_in_lieu, requested_at, responded_at
		FROM bookings
		WHERE calendar_id = ? AND date = ?
		ORDER BY waitlist_position IS NOT NULL, waitlist_position, requested_at`,
		string(cal), date.String())
	if err != nil {
		return nil, mapError(err)
	}
	return collectBookings(rows)
}

func (s *Store) BookingsForMember(ctx context.Context, member engine.MemberID, from, to engine.Day) ([]*engine.Booking, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, member_id, calendar_id, date, leave_type, status,
		       waitlist_position, paid_in_lieu, requested_at, responded_at
		FROM bookings
		WHERE member_id = ? AND date >= ? AND date <= ?
		ORDER BY date`,
		string(member), from.String(), to.String())
	if err != nil {
		return nil, mapError(err)
	}
	return collectBookings(rows)
}

func (s *Store) ConsumingBookingForDate(ctx context.Context, member engine.MemberID, date engine.Day) (*engine.Booking, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, member_id, calendar_id, date, leave_type, status,
		       waitlist_position, paid_in_lieu, requested_at, responded_at
		FROM bookings
		WHERE member_id = ? AND date = ?
		  AND status IN ('pending','approved','waitlisted','cancellation_pending')
		  AND paid_in_lieu = 0`,
		string(member), date.String())
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (s *Store) MaxWaitlistPosition(ctx context.Context, cal engine.CalendarID, date engine.Day) (int, error) {
	var max sql.NullInt64
	err := s.q.QueryRowContext(ctx, `
		SELECT MAX(waitlist_position) FROM bookings
		WHERE calendar_id = ? AND date = ?`,
		string(cal), date.String()).Scan(&max)
	if err != nil {
		return 0, mapError(err)
	}
	return int(max.Int64), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*engine.Booking, error) {
	var (
		b                     engine.Booking
		id, member, cal, date string
		leaveType, status     string
		pos                   sql.NullInt64
		requestedAt           string
		respondedAt           sql.NullString
	)
	err := row.Scan(&id, &member, &cal, &date, &leaveType, &status,
		&pos, &b.PaidInLieu, &requestedAt, &respondedAt)
	if err != nil {
		return nil, err
	}

	b.ID = engine.BookingID(id)
	b.MemberID = engine.MemberID(member)
	b.CalendarID = engine.CalendarID(cal)
	b.LeaveType = engine.LeaveType(leaveType)
	b.Status = engine.Status(status)

	if b.Date, err = engine.ParseDay(date); err != nil {
		return nil, err
	}
	if pos.Valid {
		p := int(pos.Int64)
		b.WaitlistPosition = &p
	}
	if b.RequestedAt, err = time.Parse(timeFormat, requestedAt); err != nil {
		return nil, err
	}
	if respondedAt.Valid {
		t, err := time.Parse(timeFormat, respondedAt.String)
		if err != nil {
			return nil, err
		}
		b.RespondedAt = &t
	}
	return &b, nil
}

func collectBookings(rows *sql.Rows) ([]*engine.Booking, error) {
	defer rows.Close()
	var result []*engine.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

// =============================================================================
// ADVANCE REQUESTS
// =============================================================================

func (s *Store) InsertAdvanceRequest(ctx context.Context, ar *engine.AdvanceRequest) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO advance_requests
			(id, member_id, calendar_id, date, leave_type, processed, requested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(ar.ID), string(ar.MemberID), string(ar.CalendarID), ar.Date.String(),
		string(ar.LeaveType), ar.Processed, ar.RequestedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("advance request for %s on %s: %w",
				ar.MemberID, ar.Date, engine.ErrDuplicateAdvanceRequest)
		}
		return mapError(err)
	}
	return nil
}

func (s *Store) GetAdvanceRequest(ctx context.Context, id engine.AdvanceRequestID) (*engine.AdvanceRequest, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, member_id, calendar_id, date, leave_type, processed, requested_at
		FROM advance_requests WHERE id = ?`, string(id))
	ar, err := scanAdvance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("advance request %s: %w", id, engine.ErrNotFound)
	}
	return ar, err
}

func (s *Store) DeleteAdvanceRequest(ctx context.Context, id engine.AdvanceRequestID) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM advance_requests WHERE id = ?`, string(id))
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("advance request %s: %w", id, engine.ErrNotFound)
	}
	return nil
}

func (s *Store) MarkAdvanceProcessed(ctx context.Context, id engine.AdvanceRequestID) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE advance_requests SET processed = 1 WHERE id = ?`, string(id))
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("advance request %s: %w", id, engine.ErrNotFound)
	}
	return nil
}

func (s *Store) UnprocessedAdvanceRequest(ctx context.Context, member engine.MemberID, date engine.Day, lt engine.LeaveType) (*engine.AdvanceRequest, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, member_id, calendar_id, date, leave_type, processed, requested_at
		FROM advance_requests
		WHERE member_id = ? AND date = ? AND leave_type = ? AND processed = 0`,
		string(member), date.String(), string(lt))
	ar, err := scanAdvance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return ar, err
}

func (s *Store) AdvanceRequestsForMember(ctx context.Context, member engine.MemberID, from, to engine.Day) ([]*engine.AdvanceRequest, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, member_id, calendar_id, date, leave_type, processed, requested_at
		FROM advance_requests
		WHERE member_id = ? AND date >= ? AND date <= ?
		ORDER BY date`,
		string(member), from.String(), to.String())
	if err != nil {
		return nil, mapError(err)
	}
	return collectAdvances(rows)
}

func (s *Store) UnprocessedAdvanceRequestsThrough(ctx context.Context, date engine.Day) ([]*engine.AdvanceRequest, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, member_id, calendar_id, date, leave_type, processed, requested_at
		FROM advance_requests
		WHERE processed = 0 AND date <= ?
		ORDER BY requested_at`, date.String())
	if err != nil {
		return nil, mapError(err)
	}
	return collectAdvances(rows)
}

func scanAdvance(row rowScanner) (*engine.AdvanceRequest, error) {
	var (
		ar                    engine.AdvanceRequest
		id, member, cal, date string
		leaveType             string
		requestedAt           string
	)
	err := row.Scan(&id, &member, &cal, &date, &leaveType, &ar.Processed, &requestedAt)
	if err != nil {
		return nil, err
	}
	ar.ID = engine.AdvanceRequestID(id)
	ar.MemberID = engine.MemberID(member)
	ar.CalendarID = engine.CalendarID(cal)
	ar.LeaveType = engine.LeaveType(leaveType)
	if ar.Date, err = engine.ParseDay(date); err != nil {
		return nil, err
	}
	if ar.RequestedAt, err = time.Parse(timeFormat, requestedAt); err != nil {
		return nil, err
	}
	return &ar, nil
}

func collectAdvances(rows *sql.Rows) ([]*engine.AdvanceRequest, error) {
	defer rows.Close()
	var result []*engine.AdvanceRequest
	for rows.Next() {
		ar, err := scanAdvance(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ar)
	}
	return result, rows.Err()
}

// =============================================================================
// ALLOTMENTS
// =============================================================================

func (s *Store) UpsertDateAllotment(ctx context.Context, cal engine.CalendarID, date engine.Day, max int) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO allotments (id, calendar_id, date, max_allotment)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (calendar_id, date) WHERE date IS NOT NULL
		DO UPDATE SET max_allotment = excluded.max_allotment`,
		uuid.NewString(), string(cal), date.String(), max)
	return mapError(err)
}

func (s *Store) RemoveDateAllotment(ctx context.Context, cal engine.CalendarID, date engine.Day) error {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM allotments WHERE calendar_id = ? AND date = ?`,
		string(cal), date.String())
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("date allotment %s/%s: %w", cal, date, engine.ErrNotFound)
	}
	return nil
}

func (s *Store) UpsertYearAllotment(ctx context.Context, cal engine.CalendarID, year, max int) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO allotments (id, calendar_id, year, max_allotment)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (calendar_id, year) WHERE year IS NOT NULL
		DO UPDATE SET max_allotment = excluded.max_allotment`,
		uuid.NewString(), string(cal), year, max)
	return mapError(err)
}

func (s *Store) DateAllotment(ctx context.Context, cal engine.CalendarID, date engine.Day) (*engine.Allotment, error) {
	var (
		id  string
		max int
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, max_allotment FROM allotments
		WHERE calendar_id = ? AND date = ?`,
		string(cal), date.String()).Scan(&id, &max)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err)
	}
	d := date
	return &engine.Allotment{ID: id, CalendarID: cal, Date: &d, MaxAllotment: max}, nil
}

func (s *Store) YearAllotment(ctx context.Context, cal engine.CalendarID, year int) (*engine.Allotment, error) {
	var (
		id  string
		max int
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, max_allotment FROM allotments
		WHERE calendar_id = ? AND year = ?`,
		string(cal), year).Scan(&id, &max)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err)
	}
	y := year
	return &engine.Allotment{ID: id, CalendarID: cal, Year: &y, MaxAllotment: max}, nil
}

// =============================================================================
// MEMBERS
// =============================================================================

func (s *Store) GetMember(ctx context.Context, id engine.MemberID) (*engine.Member, error) {
	var (
		memberID, cal, name string
		pld, sdv, rollover  string
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, calendar_id, name, pld_entitlement, sdv_entitlement, rollover
		FROM members WHERE id = ?`, string(id)).
		Scan(&memberID, &cal, &name, &pld, &sdv, &rollover)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("member %s: %w", id, engine.ErrNotFound)
	}
	if err != nil {
		return nil, mapError(err)
	}

	m := &engine.Member{
		ID:           engine.MemberID(memberID),
		CalendarID:   engine.CalendarID(cal),
		Name:         name,
		Entitlements: make(map[engine.LeaveType]decimal.Decimal),
	}
	if m.Entitlements[engine.LeavePLD], err = decimal.NewFromString(pld); err != nil {
		return nil, fmt.Errorf("member %s pld entitlement: %w", id, err)
	}
	if m.Entitlements[engine.LeaveSDV], err = decimal.NewFromString(sdv); err != nil {
		return nil, fmt.Errorf("member %s sdv entitlement: %w", id, err)
	}
	if m.Rollover, err = decimal.NewFromString(rollover); err != nil {
		return nil, fmt.Errorf("member %s rollover: %w", id, err)
	}
	return m, nil
}

// UpsertMember writes the scheduler's read model of a member. Called by the
// sync path fed from the owning system, never by the engine.
func (s *Store) UpsertMember(ctx context.Context, m *engine.Member) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO members (id, calendar_id, name, pld_entitlement, sdv_entitlement, rollover)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			calendar_id = excluded.calendar_id,
			name = excluded.name,
			pld_entitlement = excluded.pld_entitlement,
			sdv_entitlement = excluded.sdv_entitlement,
			rollover = excluded.rollover`,
		string(m.ID), string(m.CalendarID), m.Name,
		m.Entitlements[engine.LeavePLD].String(),
		m.Entitlements[engine.LeaveSDV].String(),
		m.Rollover.String())
	return mapError(err)
}

var _ engine.TxStore = (*Store)(nil)
