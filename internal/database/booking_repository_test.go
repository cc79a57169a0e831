package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/setrag/rail-booking-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bookingRowColumns = []string{
	"id", "pnr", "trip_id", "seat_id", "seat_no", "class", "passenger_type", "passenger_birth_date", "passengers",
	"base_price", "discount_amount", "commission", "amount", "currency", "status", "payment_status",
	"idempotency_key", "hold_token", "bill_id", "transaction_id", "paid_at", "payment_method",
	"passenger_name", "passenger_email", "passenger_phone", "user_id", "created_at", "updated_at",
}

type bookingRowSpec struct {
	id            int64
	status        string
	paymentStatus string
	token         *uuid.UUID
	billID        interface{}
}

func bookingRows(specs ...bookingRowSpec) *sqlmock.Rows {
	now := time.Now()
	rows := sqlmock.NewRows(bookingRowColumns)
	for _, s := range specs {
		var token interface{}
		if s.token != nil {
			token = s.token.String()
		}
		rows.AddRow(
			s.id, "0LZ3K9X2AB7QH4M2N8P5R1T6W9", 3, 42, "12A", "second_class", "adult", nil, 1,
			15000.0, 0.0, 750.0, 15750.0, "XAF", s.status, s.paymentStatus,
			nil, token, s.billID, nil, nil, "airtel",
			"Jean Mba", "jean@example.ga", "241077000000", nil, now, now,
		)
	}
	return rows
}

func newPendingBooking() *models.Booking {
	key := "key-123"
	return &models.Booking{
		PNR:            "0LZ3K9X2AB7QH4M2N8P5R1T6W9",
		Passengers:     1,
		BasePrice:      15000,
		Commission:     750,
		Amount:         15750,
		Currency:       "XAF",
		PassengerType:  models.PassengerTypeAdult,
		Status:         models.BookingStatusPending,
		PaymentStatus:  models.PaymentStatusPending,
		IdempotencyKey: &key,
		PassengerName:  "Jean Mba",
		PassengerEmail: "jean@example.ga",
	}
}

func TestBookingRepositoryCreateWithSeatHold(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	hold := models.SeatHoldRequest{TripID: 3, HoldMinutes: 20}

	t.Run("Claims seat and inserts booking", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)
		token := uuid.New()
		booking := newPendingBooking()

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE seats SET status = 'HELD'`).
			WithArgs(int64(3), nil, now.Add(20*time.Minute), sqlmock.AnyArg(), now).
			WillReturnRows(heldSeatRow(42, 3, "12A", models.SeatClassSecond, token, now.Add(20*time.Minute)))
		mock.ExpectQuery(`INSERT INTO bookings`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(9, now, now))
		mock.ExpectCommit()

		err := repo.CreateWithSeatHold(ctx, booking, hold, now)
		require.NoError(t, err)
		assert.Equal(t, int64(9), booking.ID)
		require.NotNil(t, booking.SeatID)
		assert.Equal(t, int64(42), *booking.SeatID)
		assert.Equal(t, "12A", booking.SeatNo)
		require.NotNil(t, booking.HoldToken)
		assert.Equal(t, token, *booking.HoldToken)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("No seat left", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE seats`).WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		err := repo.CreateWithSeatHold(ctx, newPendingBooking(), hold, now)
		assert.ErrorIs(t, err, models.ErrNoSeatsAvailable)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Idempotency race loser rolls back its seat", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE seats`).
			WillReturnRows(heldSeatRow(43, 3, "13A", models.SeatClassSecond, uuid.New(), now.Add(20*time.Minute)))
		mock.ExpectQuery(`INSERT INTO bookings`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "bookings_idempotency_key_key"})
		mock.ExpectRollback()

		err := repo.CreateWithSeatHold(ctx, newPendingBooking(), hold, now)
		assert.ErrorIs(t, err, models.ErrDuplicateIdempotencyKey)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("PNR collision", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE seats`).
			WillReturnRows(heldSeatRow(43, 3, "13A", models.SeatClassSecond, uuid.New(), now.Add(20*time.Minute)))
		mock.ExpectQuery(`INSERT INTO bookings`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "bookings_pnr_key"})
		mock.ExpectRollback()

		err := repo.CreateWithSeatHold(ctx, newPendingBooking(), hold, now)
		assert.ErrorIs(t, err, models.ErrDuplicatePNR)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Direct sale sells the seat in the same transaction", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)
		booking := newPendingBooking()
		booking.Status = models.BookingStatusConfirmed
		booking.PaymentStatus = models.PaymentStatusPaid

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE seats SET status = 'HELD'`).
			WillReturnRows(heldSeatRow(44, 3, "14A", models.SeatClassSecond, uuid.New(), now.Add(20*time.Minute)))
		mock.ExpectExec(`UPDATE seats SET status = 'SOLD'`).
			WithArgs(int64(44), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`INSERT INTO bookings`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(10, now, now))
		mock.ExpectCommit()

		require.NoError(t, repo.CreateWithSeatHold(ctx, booking, hold, now))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingRepositoryMarkPaid(t *testing.T) {
	ctx := context.Background()
	paidAt := time.Now()
	method := models.PaymentMethodAirtel
	token := uuid.New()

	t.Run("Confirms pending booking and sells seat", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT .* FROM bookings WHERE id = \$1 FOR UPDATE`).
			WithArgs(int64(9)).
			WillReturnRows(bookingRows(bookingRowSpec{id: 9, status: "PENDING", paymentStatus: "pending", token: &token, billID: "5550001"}))
		mock.ExpectQuery(`UPDATE bookings SET status = 'CONFIRMED'`).
			WithArgs(int64(9), paidAt, "TXN-1", "airtel").
			WillReturnRows(bookingRows(bookingRowSpec{id: 9, status: "CONFIRMED", paymentStatus: "paid", token: &token, billID: "5550001"}))
		mock.ExpectExec(`UPDATE seats SET status = 'SOLD'`).
			WithArgs(int64(42), token).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		booking, err := repo.MarkPaid(ctx, 9, "TXN-1", &method, paidAt)
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusConfirmed, booking.Status)
		assert.Equal(t, models.PaymentStatusPaid, booking.PaymentStatus)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Already confirmed is reported without writing", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).
			WithArgs(int64(9)).
			WillReturnRows(bookingRows(bookingRowSpec{id: 9, status: "CONFIRMED", paymentStatus: "paid"}))
		mock.ExpectRollback()

		booking, err := repo.MarkPaid(ctx, 9, "TXN-1", &method, paidAt)
		assert.ErrorIs(t, err, models.ErrAlreadyConfirmed)
		require.NotNil(t, booking)
		assert.Equal(t, models.BookingStatusConfirmed, booking.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Cancelled booking cannot be paid", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).
			WillReturnRows(bookingRows(bookingRowSpec{id: 9, status: "CANCELLED", paymentStatus: "expired"}))
		mock.ExpectRollback()

		_, err := repo.MarkPaid(ctx, 9, "TXN-1", &method, paidAt)
		assert.ErrorIs(t, err, models.ErrBookingNotPending)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Seat no longer confirmable rolls back the booking update", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).
			WillReturnRows(bookingRows(bookingRowSpec{id: 9, status: "PENDING", paymentStatus: "pending", token: &token}))
		mock.ExpectQuery(`UPDATE bookings`).
			WillReturnRows(bookingRows(bookingRowSpec{id: 9, status: "CONFIRMED", paymentStatus: "paid", token: &token}))
		mock.ExpectExec(`UPDATE seats SET status = 'SOLD'`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := repo.MarkPaid(ctx, 9, "TXN-1", &method, paidAt)
		assert.ErrorIs(t, err, models.ErrSeatNotConfirmable)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Missing booking", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := repo.MarkPaid(ctx, 9, "", nil, paidAt)
		assert.ErrorIs(t, err, models.ErrBookingNotFound)
	})
}

func TestBookingRepositoryMarkFailed(t *testing.T) {
	ctx := context.Background()
	token := uuid.New()

	t.Run("Cancels and releases own hold", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).
			WithArgs(int64(9)).
			WillReturnRows(bookingRows(bookingRowSpec{id: 9, status: "PENDING", paymentStatus: "pending", token: &token}))
		mock.ExpectQuery(`UPDATE bookings SET status = 'CANCELLED'`).
			WithArgs(int64(9), "failed").
			WillReturnRows(bookingRows(bookingRowSpec{id: 9, status: "CANCELLED", paymentStatus: "failed", token: &token}))
		mock.ExpectExec(`UPDATE seats SET status = 'AVAILABLE'.*status = 'HELD' AND hold_token IS NOT DISTINCT FROM`).
			WithArgs(int64(42), token).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		booking, err := repo.MarkFailed(ctx, 9, models.PaymentStatusFailed)
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusCancelled, booking.Status)
		assert.Equal(t, models.PaymentStatusFailed, booking.PaymentStatus)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Re-claimed seat is left alone", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).
			WillReturnRows(bookingRows(bookingRowSpec{id: 9, status: "PENDING", paymentStatus: "pending", token: &token}))
		mock.ExpectQuery(`UPDATE bookings`).
			WillReturnRows(bookingRows(bookingRowSpec{id: 9, status: "CANCELLED", paymentStatus: "cancelled", token: &token}))
		mock.ExpectExec(`UPDATE seats`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		_, err := repo.MarkFailed(ctx, 9, models.PaymentStatusCancelled)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Confirmed booking is not cancelled", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).
			WillReturnRows(bookingRows(bookingRowSpec{id: 9, status: "CONFIRMED", paymentStatus: "paid"}))
		mock.ExpectRollback()

		_, err := repo.MarkFailed(ctx, 9, models.PaymentStatusFailed)
		assert.ErrorIs(t, err, models.ErrBookingNotPending)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingRepositoryDeleteAndReleaseSeat(t *testing.T) {
	ctx := context.Background()
	token := uuid.New()

	t.Run("Pending booking releases seat and is removed", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).
			WithArgs(int64(9)).
			WillReturnRows(bookingRows(bookingRowSpec{id: 9, status: "PENDING", paymentStatus: "pending", token: &token}))
		mock.ExpectExec(`UPDATE seats SET status = 'AVAILABLE'`).
			WithArgs(int64(42), token).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`DELETE FROM bookings WHERE id = \$1`).
			WithArgs(int64(9)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.DeleteAndReleaseSeat(ctx, 9))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Cancelled booking is removed without touching seats", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).
			WillReturnRows(bookingRows(bookingRowSpec{id: 9, status: "CANCELLED", paymentStatus: "failed"}))
		mock.ExpectExec(`DELETE FROM bookings`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.DeleteAndReleaseSeat(ctx, 9))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Confirmed booking is refused", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).
			WillReturnRows(bookingRows(bookingRowSpec{id: 9, status: "CONFIRMED", paymentStatus: "paid"}))
		mock.ExpectRollback()

		err := repo.DeleteAndReleaseSeat(ctx, 9)
		assert.ErrorIs(t, err, models.ErrBookingConfirmed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingRepositoryLookups(t *testing.T) {
	ctx := context.Background()

	t.Run("GetByPNR found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectQuery(`SELECT .* FROM bookings WHERE pnr = \$1`).
			WithArgs("0LZ3K9X2AB7QH4M2N8P5R1T6W9").
			WillReturnRows(bookingRows(bookingRowSpec{id: 9, status: "PENDING", paymentStatus: "pending", billID: "5550001"}))

		booking, err := repo.GetByPNR(ctx, "0LZ3K9X2AB7QH4M2N8P5R1T6W9")
		require.NoError(t, err)
		require.NotNil(t, booking)
		require.NotNil(t, booking.BillID)
		assert.Equal(t, "5550001", *booking.BillID)
		assert.Equal(t, 15750.0, booking.Amount)
	})

	t.Run("GetByIdempotencyKey missing", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectQuery(`WHERE idempotency_key = \$1`).
			WithArgs("nope").
			WillReturnError(sql.ErrNoRows)

		booking, err := repo.GetByIdempotencyKey(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, booking)
	})

	t.Run("AttachBill on non-pending booking", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectExec(`UPDATE bookings SET bill_id = \$2`).
			WithArgs(int64(9), "5550001", "card").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.AttachBill(ctx, 9, "5550001", models.PaymentMethodCard)
		assert.ErrorIs(t, err, models.ErrBookingNotPending)
	})
}

func TestBookingRepositoryExpireStalePending(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)
	cutoff := time.Now().Add(-time.Hour)
	token := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`WHERE status = 'PENDING' AND created_at < \$1.*FOR UPDATE SKIP LOCKED`).
		WithArgs(cutoff, 100).
		WillReturnRows(bookingRows(
			bookingRowSpec{id: 9, status: "PENDING", paymentStatus: "pending", token: &token},
		))
	mock.ExpectExec(`UPDATE bookings SET status = 'CANCELLED', payment_status = 'expired'`).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE seats SET status = 'AVAILABLE'`).
		WithArgs(int64(42), token).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	expired, err := repo.ExpireStalePending(context.Background(), cutoff, 100)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, models.BookingStatusCancelled, expired[0].Status)
	assert.Equal(t, models.PaymentStatusExpired, expired[0].PaymentStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}
