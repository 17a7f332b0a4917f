// Package slotstore persists Slots, Bookings, and Interviews in
// Postgres with strict capacity accounting. The schema lives in
// versioned golang-migrate migrations since capacity is a real
// invariant later schema changes must preserve.
package slotstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/interviewrt/core/internal/clockid"
	"github.com/interviewrt/core/internal/token"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the Postgres-backed slot/booking/interview store.
type Store struct {
	pool  *pgxpool.Pool
	clock clockid.Clock
	zone  *time.Location
}

func New(ctx context.Context, databaseURL string, clock clockid.Clock, zone *time.Location) (*Store, error) {
	if err := applyMigrations(databaseURL); err != nil {
		return nil, fmt.Errorf("slotstore: migrate: %w", err)
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("slotstore: connect: %w", err)
	}
	return &Store{pool: pool, clock: clock, zone: zone}, nil
}

func applyMigrations(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Pool exposes the underlying connection pool so the other
// Postgres-backed stores share one set of connections.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// CreateSlot inserts a new slot after checking for an overlap within
// the same (company, ai_type) per the Open Question resolution in
// DESIGN.md. Only overlapping slots with remaining capacity conflict;
// a Full or Canceled slot no longer blocks a new window. The overlap
// check and insert run inside one transaction that holds an advisory
// lock on (company, ai_type), so two concurrent creates for the same
// window cannot both succeed.
func (s *Store) CreateSlot(ctx context.Context, slot Slot) (string, error) {
	slot.ID = clockid.NewID()
	if slot.Status == "" {
		slot.Status = SlotAvailable
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, slot.Company+"/"+slot.AIType); err != nil {
		return "", fmt.Errorf("slotstore: overlap lock: %w", err)
	}

	rows, err := tx.Query(ctx,
		`SELECT start_time, end_time FROM slots
		 WHERE company=$1 AND ai_type=$2 AND slot_date=$3
		   AND status <> 'Canceled' AND booked_count < capacity
		 FOR UPDATE`,
		slot.Company, slot.AIType, slot.Date)
	if err != nil {
		return "", fmt.Errorf("slotstore: overlap query: %w", err)
	}
	newStart, newEnd := boundaryUTC(slot.Date, slot.Start, s.zone), boundaryUTC(slot.Date, slot.End, s.zone)
	for rows.Next() {
		var st, et time.Time
		if err := rows.Scan(&st, &et); err != nil {
			rows.Close()
			return "", err
		}
		existingStart := boundaryUTC(slot.Date, st, s.zone)
		existingEnd := boundaryUTC(slot.Date, et, s.zone)
		if overlaps(newStart, newEnd, existingStart, existingEnd) {
			rows.Close()
			return "", ErrOverlapsExisting
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO slots (id, company, job, slot_date, start_time, end_time, capacity, booked_count, status, ai_type, difficulty, language)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,0,$8,$9,$10,$11)`,
		slot.ID, slot.Company, slot.Job, slot.Date, slot.Start, slot.End, slot.Capacity, slot.Status, slot.AIType, slot.Difficulty, slot.Language)
	if err != nil {
		return "", fmt.Errorf("slotstore: insert slot: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return slot.ID, nil
}

// CreateRecurring generates one slot per matching weekday within the
// pattern's horizon, skipping any day that would overlap an existing
// slot.
func (s *Store) CreateRecurring(ctx context.Context, p RecurringPattern) ([]string, error) {
	weekdays := make(map[time.Weekday]bool, len(p.Weekdays))
	for _, w := range p.Weekdays {
		weekdays[w] = true
	}

	var ids []string
	for day := 0; day < p.Horizon*7; day++ {
		date := p.FirstDate.AddDate(0, 0, day)
		if !weekdays[date.Weekday()] {
			continue
		}
		id, err := s.CreateSlot(ctx, Slot{
			Company:    p.Company,
			Job:        p.Job,
			Date:       date,
			Start:      p.Start,
			End:        p.End,
			Capacity:   p.Capacity,
			Status:     SlotAvailable,
			AIType:     p.AIType,
			Difficulty: p.Difficulty,
			Language:   p.Language,
		})
		if errors.Is(err, ErrOverlapsExisting) {
			continue
		}
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Book atomically reserves a unit of capacity. The UPDATE's WHERE
// clause is the compare-and-set: booked_count < capacity is the
// precondition and its own commit is the increment, so concurrent
// callers racing for the last slot(s) cannot both succeed.
func (s *Store) Book(ctx context.Context, slotID, interviewID, notes string) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	var status SlotStatus
	var capacity, booked int
	err = tx.QueryRow(ctx, `SELECT status, capacity, booked_count FROM slots WHERE id=$1 FOR UPDATE`, slotID).
		Scan(&status, &capacity, &booked)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrSlotNotFound
	}
	if err != nil {
		return "", err
	}
	if status == SlotCanceled {
		return "", ErrSlotCanceled
	}
	if booked >= capacity {
		return "", ErrSlotFull
	}

	newBooked := booked + 1
	newStatus := SlotAvailable
	if newBooked >= capacity {
		newStatus = SlotFullStat
	}
	tag, err := tx.Exec(ctx,
		`UPDATE slots SET booked_count = booked_count + 1, status = $2
		 WHERE id = $1 AND booked_count < capacity`,
		slotID, newStatus)
	if err != nil {
		return "", err
	}
	if tag.RowsAffected() == 0 {
		return "", ErrSlotFull
	}

	bookingID := clockid.NewID()
	now := s.clock.Now()
	_, err = tx.Exec(ctx,
		`INSERT INTO bookings (id, slot_id, interview_id, booking_notes, status, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		bookingID, slotID, interviewID, notes, BookingConfirmed, now)
	if err != nil {
		return "", err
	}

	var date, start, end time.Time
	if err := tx.QueryRow(ctx, `SELECT slot_date, start_time, end_time FROM slots WHERE id=$1`, slotID).Scan(&date, &start, &end); err != nil {
		return "", err
	}
	startUTC, endUTC := boundaryUTC(date, start, s.zone), boundaryUTC(date, end, s.zone)
	_, err = tx.Exec(ctx,
		`UPDATE interviews SET scheduled_start_utc=$2, scheduled_end_utc=$3 WHERE id=$1`,
		interviewID, startUTC, endUTC)
	if err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return bookingID, nil
}

// Release cancels a booking and decrements its slot's booked_count
// exactly once, always, per the Open Question resolution recorded in
// DESIGN.md: cancellation releases capacity unconditionally.
func (s *Store) Release(ctx context.Context, bookingID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var slotID string
	var status BookingStatus
	err = tx.QueryRow(ctx, `SELECT slot_id, status FROM bookings WHERE id=$1 FOR UPDATE`, bookingID).Scan(&slotID, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrBookingNotFound
	}
	if err != nil {
		return err
	}
	if status == BookingCanceledS {
		return nil // already released, decrement exactly once
	}

	if _, err := tx.Exec(ctx, `UPDATE bookings SET status=$2 WHERE id=$1`, bookingID, BookingCanceledS); err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`UPDATE slots SET booked_count = booked_count - 1,
		   status = CASE WHEN status = 'Full' THEN 'Available' ELSE status END
		 WHERE id = $1`, slotID)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SearchAvailable lists slots for a company/ai_type within a date
// range, ordered by (date asc, start asc).
func (s *Store) SearchAvailable(ctx context.Context, company, aiType string, from, to time.Time) ([]Slot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, company, job, slot_date, start_time, end_time, capacity, booked_count, status, ai_type, difficulty, language
		 FROM slots
		 WHERE company=$1 AND ai_type=$2 AND slot_date BETWEEN $3 AND $4 AND status <> 'Canceled'
		 ORDER BY slot_date ASC, start_time ASC`,
		company, aiType, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Slot
	for rows.Next() {
		var slot Slot
		if err := rows.Scan(&slot.ID, &slot.Company, &slot.Job, &slot.Date, &slot.Start, &slot.End,
			&slot.Capacity, &slot.BookedCount, &slot.Status, &slot.AIType, &slot.Difficulty, &slot.Language); err != nil {
			return nil, err
		}
		out = append(out, slot)
	}
	return out, rows.Err()
}

// CreateInterview inserts a new Interview row ahead of booking.
func (s *Store) CreateInterview(ctx context.Context, candidateID, jobID string) (string, error) {
	id := clockid.NewID()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO interviews (id, candidate_id, job_id, status) VALUES ($1,$2,$3,'Scheduled')`,
		id, candidateID, jobID)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetInterview satisfies token.InterviewStore.
func (s *Store) GetInterview(ctx context.Context, id string) (token.Interview, error) {
	var row token.Interview
	var scheduledStart, scheduledEnd *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT id, scheduled_start_utc, scheduled_end_utc, status, session_id FROM interviews WHERE id=$1`, id).
		Scan(&row.ID, &scheduledStart, &scheduledEnd, &row.Status, &row.SessionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return token.Interview{}, ErrInterviewNotFound
	}
	if err != nil {
		return token.Interview{}, err
	}
	if scheduledStart != nil {
		row.ScheduledStartUTC = *scheduledStart
	}
	if scheduledEnd != nil {
		row.ScheduledEndUTC = *scheduledEnd
	}
	return row, nil
}

// AttachSession satisfies token.InterviewStore: idempotently binds a
// session id to an interview on first redemption.
func (s *Store) AttachSession(ctx context.Context, interviewID, sessionID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE interviews SET session_id=$2, status='Live' WHERE id=$1 AND session_id=''`,
		interviewID, sessionID)
	return err
}

// CompleteInterview records the natural terminal after a session
// finalizes, so replaying the access token is rejected instead of
// restarting the interview.
func (s *Store) CompleteInterview(ctx context.Context, id string) error {
	return s.setInterviewTerminal(ctx, id, "Completed")
}

// AbandonInterview records the hard-cancellation terminal for an
// interview whose access window closed before a natural finish.
func (s *Store) AbandonInterview(ctx context.Context, id string) error {
	return s.setInterviewTerminal(ctx, id, "Abandoned")
}

// setInterviewTerminal moves an interview into a terminal status
// exactly once; a second call against an already-terminal row is a
// no-op so finalize and expiry can race safely.
func (s *Store) setInterviewTerminal(ctx context.Context, id, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE interviews SET status=$2
		 WHERE id=$1 AND status NOT IN ('Completed','Abandoned','Expired','Canceled')`,
		id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var one int
		err := s.pool.QueryRow(ctx, `SELECT 1 FROM interviews WHERE id=$1`, id).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInterviewNotFound
		}
		return err
	}
	return nil
}
