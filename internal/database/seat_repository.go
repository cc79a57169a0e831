package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/setrag/rail-booking-backend/internal/models"
)

const seatColumns = `id, trip_id, seat_no, class, status, hold_expires_at, hold_token, created_at, updated_at`

// claimableSeat matches a seat that is free or whose hold has lapsed as of $now.
// Used both to pick the candidate and to re-check it after the row lock.
const claimableSeat = `(status = 'AVAILABLE' OR (status = 'HELD' AND (hold_expires_at IS NULL OR hold_expires_at < $5)))`

// SeatRepository handles seat inventory persistence
type SeatRepository struct {
	db *sqlx.DB
}

// NewSeatRepository creates a new SeatRepository
func NewSeatRepository(db *sqlx.DB) *SeatRepository {
	return &SeatRepository{db: db}
}

// ============================================================================
// QUERIES
// ============================================================================

// ListByTrip returns the trip's seats in id order
func (r *SeatRepository) ListByTrip(ctx context.Context, tripID int64) ([]models.Seat, error) {
	seats := []models.Seat{}
	query := `SELECT ` + seatColumns + ` FROM seats WHERE trip_id = $1 ORDER BY id`
	if err := r.db.SelectContext(ctx, &seats, query, tripID); err != nil {
		return nil, fmt.Errorf("failed to list seats: %w", err)
	}
	return seats, nil
}

// GetByTripAndSeatNo returns a seat, or nil if it does not exist
func (r *SeatRepository) GetByTripAndSeatNo(ctx context.Context, tripID int64, seatNo string) (*models.Seat, error) {
	var seat models.Seat
	query := `SELECT ` + seatColumns + ` FROM seats WHERE trip_id = $1 AND seat_no = $2`
	err := r.db.GetContext(ctx, &seat, query, tripID, seatNo)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get seat: %w", err)
	}
	return &seat, nil
}

// Availability counts seats per class. Lapsed holds count as available.
func (r *SeatRepository) Availability(ctx context.Context, tripID int64, now time.Time) ([]models.SeatAvailability, error) {
	rows := []models.SeatAvailability{}
	query := `
		SELECT class,
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'AVAILABLE' OR (status = 'HELD' AND (hold_expires_at IS NULL OR hold_expires_at < $2))) AS available,
			COUNT(*) FILTER (WHERE status = 'HELD' AND hold_expires_at >= $2) AS held,
			COUNT(*) FILTER (WHERE status = 'SOLD') AS sold
		FROM seats
		WHERE trip_id = $1
		GROUP BY class
		ORDER BY class`
	if err := r.db.SelectContext(ctx, &rows, query, tripID, now); err != nil {
		return nil, fmt.Errorf("failed to count seat availability: %w", err)
	}
	return rows, nil
}

// ============================================================================
// SEEDING
// ============================================================================

// SeedIfEmpty creates the given seats unless the trip already has some.
// The trip row is locked so concurrent seeders serialize. Returns the
// trip's seats and whether they were created by this call.
func (r *SeatRepository) SeedIfEmpty(ctx context.Context, tripID int64, seats []models.Seat) ([]models.Seat, bool, error) {
	created := false
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var lockedID int64
		err := tx.GetContext(ctx, &lockedID, `SELECT id FROM trips WHERE id = $1 FOR UPDATE`, tripID)
		if err == sql.ErrNoRows {
			return models.ErrTripNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock trip: %w", err)
		}

		var count int
		if err := tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM seats WHERE trip_id = $1`, tripID); err != nil {
			return fmt.Errorf("failed to count seats: %w", err)
		}
		if count > 0 || len(seats) == 0 {
			return nil
		}

		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO seats (trip_id, seat_no, class, status)
			VALUES (:trip_id, :seat_no, :class, :status)`, seats)
		if err != nil {
			return fmt.Errorf("failed to insert seats: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	all, err := r.ListByTrip(ctx, tripID)
	if err != nil {
		return nil, false, err
	}
	return all, created, nil
}

// ============================================================================
// STATE TRANSITIONS
// ============================================================================

// Allocate atomically claims the lowest-id claimable seat on the trip.
// Returns nil when nothing qualifies.
func (r *SeatRepository) Allocate(ctx context.Context, tripID int64, class *models.SeatClass, holdUntil, now time.Time) (*models.Seat, error) {
	return allocateSeat(ctx, r.db, tripID, class, holdUntil, now)
}

// Confirm marks a HELD or AVAILABLE seat as SOLD. Returns nil if no such seat
// was in a confirmable state.
func (r *SeatRepository) Confirm(ctx context.Context, tripID int64, seatNo string) (*models.Seat, error) {
	var seat models.Seat
	query := `
		UPDATE seats
		SET status = 'SOLD', hold_expires_at = NULL, hold_token = NULL, updated_at = NOW()
		WHERE trip_id = $1 AND seat_no = $2 AND status IN ('HELD', 'AVAILABLE')
		RETURNING ` + seatColumns
	err := r.db.GetContext(ctx, &seat, query, tripID, seatNo)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to confirm seat: %w", err)
	}
	return &seat, nil
}

// Release returns a non-SOLD seat to AVAILABLE. Returns nil if the seat is
// missing or SOLD.
func (r *SeatRepository) Release(ctx context.Context, tripID int64, seatNo string) (*models.Seat, error) {
	var seat models.Seat
	query := `
		UPDATE seats
		SET status = 'AVAILABLE', hold_expires_at = NULL, hold_token = NULL, updated_at = NOW()
		WHERE trip_id = $1 AND seat_no = $2 AND status <> 'SOLD'
		RETURNING ` + seatColumns
	err := r.db.GetContext(ctx, &seat, query, tripID, seatNo)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to release seat: %w", err)
	}
	return &seat, nil
}

// ReleaseLapsedHolds frees HELD seats whose hold expired before now and that
// no PENDING booking still claims. Returns the number of seats freed.
func (r *SeatRepository) ReleaseLapsedHolds(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE seats s
		SET status = 'AVAILABLE', hold_expires_at = NULL, hold_token = NULL, updated_at = NOW()
		WHERE s.status = 'HELD'
		  AND s.hold_expires_at < $1
		  AND NOT EXISTS (
			SELECT 1 FROM bookings b
			WHERE b.seat_id = s.id AND b.status = 'PENDING' AND b.hold_token = s.hold_token
		  )`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to release lapsed holds: %w", err)
	}
	return result.RowsAffected()
}

// ============================================================================
// SHARED STATEMENTS (usable inside a booking transaction)
// ============================================================================

// allocateSeat claims one seat in a single statement. The sub-select skips rows
// locked by concurrent claimants and the outer predicate re-checks the state
// after the lock, so two callers can never receive the same seat.
func allocateSeat(ctx context.Context, q sqlx.QueryerContext, tripID int64, class *models.SeatClass, holdUntil, now time.Time) (*models.Seat, error) {
	var classArg interface{}
	if class != nil {
		classArg = string(*class)
	}
	token := uuid.New()

	query := `
		UPDATE seats
		SET status = 'HELD', hold_expires_at = $3, hold_token = $4, updated_at = NOW()
		WHERE id = (
			SELECT id FROM seats
			WHERE trip_id = $1
			  AND ($2::text IS NULL OR class = $2::text)
			  AND ` + claimableSeat + `
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		AND ` + claimableSeat + `
		RETURNING ` + seatColumns

	var seat models.Seat
	err := sqlx.GetContext(ctx, q, &seat, query, tripID, classArg, holdUntil, token, now)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to allocate seat: %w", err)
	}
	return &seat, nil
}

// seatCounts summarizes a trip's seat map for a resize
type seatCounts struct {
	Total  int `db:"total"`
	Taken  int `db:"taken"`
	LastNo int `db:"last_no"`
}

// resizeSeats grows or shrinks the trip's seat map to count seats. New seats
// are numbered after the highest existing number. Shrinking removes only
// AVAILABLE seats, newest first, and fails if count is below the seats that
// are held or sold. The caller must hold the trip row lock.
func resizeSeats(ctx context.Context, tx *sqlx.Tx, tripID int64, count int) (*models.SeatResize, error) {
	var counts seatCounts
	err := tx.GetContext(ctx, &counts, `
		SELECT COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status <> 'AVAILABLE') AS taken,
			COALESCE(MAX(NULLIF(regexp_replace(seat_no, '[^0-9]', '', 'g'), '')::int), 0) AS last_no
		FROM seats
		WHERE trip_id = $1`, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to count seats: %w", err)
	}

	resize := &models.SeatResize{Before: counts.Total, After: counts.Total}
	switch {
	case count > counts.Total:
		added := models.LayoutSeats(tripID, counts.LastNo+1, count-counts.Total)
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO seats (trip_id, seat_no, class, status)
			VALUES (:trip_id, :seat_no, :class, :status)`, added)
		if err != nil {
			return nil, fmt.Errorf("failed to add seats: %w", err)
		}
		resize.Added = len(added)

	case count < counts.Total:
		if count < counts.Taken {
			return nil, models.ErrSeatCountTooLow
		}
		result, err := tx.ExecContext(ctx, `
			DELETE FROM seats
			WHERE id IN (
				SELECT id FROM seats
				WHERE trip_id = $1 AND status = 'AVAILABLE'
				ORDER BY id DESC
				LIMIT $2
				FOR UPDATE
			)`, tripID, counts.Total-count)
		if err != nil {
			return nil, fmt.Errorf("failed to remove seats: %w", err)
		}
		removed, _ := result.RowsAffected()
		resize.Removed = int(removed)
	}

	resize.After = counts.Total + resize.Added - resize.Removed
	return resize, nil
}

// bookingSeatClause targets the booking's seat by id, falling back to the
// denormalized trip and seat number for rows written before seat_id existed.
func bookingSeatClause(b *models.Booking) (string, []interface{}) {
	if b.SeatID != nil {
		return `id = $1`, []interface{}{*b.SeatID}
	}
	return `trip_id = $1 AND seat_no = $2`, []interface{}{b.TripID, b.SeatNo}
}

// sellBookingSeat marks the booking's seat SOLD. The seat must be AVAILABLE or
// still held under the booking's own hold token.
func sellBookingSeat(ctx context.Context, tx sqlx.ExecerContext, b *models.Booking) error {
	where, args := bookingSeatClause(b)
	tokenPos := len(args) + 1
	args = append(args, b.HoldToken)

	query := fmt.Sprintf(`
		UPDATE seats
		SET status = 'SOLD', hold_expires_at = NULL, hold_token = NULL, updated_at = NOW()
		WHERE %s AND (status = 'AVAILABLE' OR (status = 'HELD' AND hold_token IS NOT DISTINCT FROM $%d))`, where, tokenPos)

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to sell seat: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.ErrSeatNotConfirmable
	}
	return nil
}

// releaseBookingSeat frees the booking's seat if it is still held under the
// booking's hold token. A seat already re-claimed or sold is left alone.
func releaseBookingSeat(ctx context.Context, tx sqlx.ExecerContext, b *models.Booking) (bool, error) {
	where, args := bookingSeatClause(b)
	tokenPos := len(args) + 1
	args = append(args, b.HoldToken)

	query := fmt.Sprintf(`
		UPDATE seats
		SET status = 'AVAILABLE', hold_expires_at = NULL, hold_token = NULL, updated_at = NOW()
		WHERE %s AND status = 'HELD' AND hold_token IS NOT DISTINCT FROM $%d`, where, tokenPos)

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to release seat: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}
