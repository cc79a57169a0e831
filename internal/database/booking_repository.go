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

const bookingColumns = `id, pnr, trip_id, seat_id, seat_no, class, passenger_type, passenger_birth_date, passengers,
	base_price, discount_amount, commission, amount, currency, status, payment_status,
	idempotency_key, hold_token, bill_id, transaction_id, paid_at, payment_method,
	passenger_name, passenger_email, passenger_phone, user_id, created_at, updated_at`

// BookingRepository handles booking persistence. Operations that touch a
// booking and its seat run in one transaction.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// ============================================================================
// LOOKUPS
// ============================================================================

func (r *BookingRepository) getOne(ctx context.Context, where string, arg interface{}) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.GetContext(ctx, &booking, `SELECT `+bookingColumns+` FROM bookings WHERE `+where, arg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

// GetByID returns a booking, or nil if not found
func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*models.Booking, error) {
	return r.getOne(ctx, `id = $1`, id)
}

// GetByPNR returns a booking, or nil if not found
func (r *BookingRepository) GetByPNR(ctx context.Context, pnr string) (*models.Booking, error) {
	return r.getOne(ctx, `pnr = $1`, pnr)
}

// GetByIdempotencyKey returns a booking, or nil if not found
func (r *BookingRepository) GetByIdempotencyKey(ctx context.Context, key string) (*models.Booking, error) {
	return r.getOne(ctx, `idempotency_key = $1`, key)
}

// GetByBillID returns the most recent booking for a provider bill, or nil if not found
func (r *BookingRepository) GetByBillID(ctx context.Context, billID string) (*models.Booking, error) {
	return r.getOne(ctx, `bill_id = $1 ORDER BY id DESC LIMIT 1`, billID)
}

// ListForOwner returns bookings owned by the user or made under their email
func (r *BookingRepository) ListForOwner(ctx context.Context, userID *uuid.UUID, email string) ([]models.Booking, error) {
	bookings := []models.Booking{}
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE ($1::uuid IS NOT NULL AND user_id = $1::uuid)
		   OR ($2 <> '' AND lower(passenger_email) = lower($2))
		ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &bookings, query, userID, email); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// ============================================================================
// CREATION
// ============================================================================

// CreateWithSeatHold claims a seat and inserts the booking in one transaction.
// The booking's seat fields and hold token are filled from the claimed seat.
// A booking created as CONFIRMED sells the seat immediately.
//
// Returns models.ErrNoSeatsAvailable, models.ErrDuplicateIdempotencyKey or
// models.ErrDuplicatePNR; in every error case the seat claim is rolled back.
func (r *BookingRepository) CreateWithSeatHold(ctx context.Context, booking *models.Booking, hold models.SeatHoldRequest, now time.Time) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		holdUntil := now.Add(time.Duration(hold.HoldMinutes) * time.Minute)
		seat, err := allocateSeat(ctx, tx, hold.TripID, hold.Class, holdUntil, now)
		if err != nil {
			return err
		}
		if seat == nil {
			return models.ErrNoSeatsAvailable
		}

		booking.TripID = seat.TripID
		booking.SeatID = &seat.ID
		booking.SeatNo = seat.SeatNo
		booking.Class = seat.Class
		booking.HoldToken = seat.HoldToken

		if booking.Status == models.BookingStatusConfirmed {
			if err := sellBookingSeat(ctx, tx, booking); err != nil {
				return err
			}
		}

		if err := insertBooking(ctx, tx, booking); err != nil {
			return err
		}
		return nil
	})
}

func insertBooking(ctx context.Context, tx *sqlx.Tx, b *models.Booking) error {
	query := `
		INSERT INTO bookings (
			pnr, trip_id, seat_id, seat_no, class, passenger_type, passenger_birth_date, passengers,
			base_price, discount_amount, commission, amount, currency, status, payment_status,
			idempotency_key, hold_token, bill_id, transaction_id, paid_at, payment_method,
			passenger_name, passenger_email, passenger_phone, user_id
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21,
			$22, $23, $24, $25
		)
		RETURNING id, created_at, updated_at`

	err := tx.QueryRowxContext(ctx, query,
		b.PNR, b.TripID, b.SeatID, b.SeatNo, b.Class, b.PassengerType, b.PassengerBirthDate, b.Passengers,
		b.BasePrice, b.DiscountAmount, b.Commission, b.Amount, b.Currency, b.Status, b.PaymentStatus,
		b.IdempotencyKey, b.HoldToken, b.BillID, b.TransactionID, b.PaidAt, b.PaymentMethod,
		b.PassengerName, b.PassengerEmail, b.PassengerPhone, b.UserID,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			switch constraint {
			case "bookings_idempotency_key_key":
				return models.ErrDuplicateIdempotencyKey
			case "bookings_pnr_key":
				return models.ErrDuplicatePNR
			}
		}
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

// AttachBill records the provider bill on a PENDING booking
func (r *BookingRepository) AttachBill(ctx context.Context, id int64, billID string, method models.PaymentMethod) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET bill_id = $2, payment_method = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'`, id, billID, string(method))
	if err != nil {
		return fmt.Errorf("failed to attach bill: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.ErrBookingNotPending
	}
	return nil
}

// ============================================================================
// PAYMENT OUTCOMES (booking + seat in one transaction)
// ============================================================================

// lockBooking re-reads the booking under a row lock so concurrent callbacks
// for the same bill serialize on it.
func lockBooking(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Booking, error) {
	var booking models.Booking
	err := tx.GetContext(ctx, &booking, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
	if err == sql.ErrNoRows {
		return nil, models.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}
	return &booking, nil
}

// MarkPaid moves a PENDING booking to CONFIRMED/paid and sells its seat.
// Returns models.ErrAlreadyConfirmed for a booking that is already confirmed.
func (r *BookingRepository) MarkPaid(ctx context.Context, id int64, transactionID string, method *models.PaymentMethod, paidAt time.Time) (*models.Booking, error) {
	var updated *models.Booking
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		current, err := lockBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		switch current.Status {
		case models.BookingStatusConfirmed:
			updated = current
			return models.ErrAlreadyConfirmed
		case models.BookingStatusCancelled:
			updated = current
			return models.ErrBookingNotPending
		}

		var txnArg, methodArg interface{}
		if transactionID != "" {
			txnArg = transactionID
		}
		if method != nil {
			methodArg = string(*method)
		}

		var b models.Booking
		err = tx.GetContext(ctx, &b, `
			UPDATE bookings
			SET status = 'CONFIRMED', payment_status = 'paid', paid_at = $2,
				transaction_id = COALESCE($3, transaction_id),
				payment_method = COALESCE($4, payment_method),
				updated_at = NOW()
			WHERE id = $1
			RETURNING `+bookingColumns, id, paidAt, txnArg, methodArg)
		if err != nil {
			return fmt.Errorf("failed to confirm booking: %w", err)
		}

		if err := sellBookingSeat(ctx, tx, &b); err != nil {
			return err
		}
		updated = &b
		return nil
	})
	return updated, err
}

// MarkFailed moves a PENDING booking to CANCELLED with the given payment
// status and releases its seat hold. Returns models.ErrBookingNotPending if
// the booking already left PENDING.
func (r *BookingRepository) MarkFailed(ctx context.Context, id int64, paymentStatus models.PaymentStatus) (*models.Booking, error) {
	var updated *models.Booking
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		current, err := lockBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status != models.BookingStatusPending {
			updated = current
			return models.ErrBookingNotPending
		}

		var b models.Booking
		err = tx.GetContext(ctx, &b, `
			UPDATE bookings
			SET status = 'CANCELLED', payment_status = $2, updated_at = NOW()
			WHERE id = $1
			RETURNING `+bookingColumns, id, string(paymentStatus))
		if err != nil {
			return fmt.Errorf("failed to cancel booking: %w", err)
		}

		if _, err := releaseBookingSeat(ctx, tx, &b); err != nil {
			return err
		}
		updated = &b
		return nil
	})
	return updated, err
}

// DeleteAndReleaseSeat removes a non-confirmed booking and frees its seat hold
func (r *BookingRepository) DeleteAndReleaseSeat(ctx context.Context, id int64) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		current, err := lockBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status == models.BookingStatusConfirmed {
			return models.ErrBookingConfirmed
		}

		if current.Status == models.BookingStatusPending {
			if _, err := releaseBookingSeat(ctx, tx, current); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete booking: %w", err)
		}
		return nil
	})
}

// ExpireStalePending cancels PENDING bookings created before cutoff with
// payment status "expired" and releases their seats. Rows locked by a
// concurrent callback are skipped and picked up on the next run.
func (r *BookingRepository) ExpireStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	expired := []models.Booking{}
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		stale := []models.Booking{}
		err := tx.SelectContext(ctx, &stale, `
			SELECT `+bookingColumns+` FROM bookings
			WHERE status = 'PENDING' AND created_at < $1
			ORDER BY id
			LIMIT $2
			FOR UPDATE SKIP LOCKED`, cutoff, limit)
		if err != nil {
			return fmt.Errorf("failed to select stale bookings: %w", err)
		}

		for i := range stale {
			b := &stale[i]
			_, err := tx.ExecContext(ctx, `
				UPDATE bookings
				SET status = 'CANCELLED', payment_status = 'expired', updated_at = NOW()
				WHERE id = $1`, b.ID)
			if err != nil {
				return fmt.Errorf("failed to expire booking %d: %w", b.ID, err)
			}
			if _, err := releaseBookingSeat(ctx, tx, b); err != nil {
				return err
			}
			b.Status = models.BookingStatusCancelled
			b.PaymentStatus = models.PaymentStatusExpired
			expired = append(expired, *b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}
