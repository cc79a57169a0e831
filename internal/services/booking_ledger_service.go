package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/setrag/rail-booking-backend/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	pnrTimestampWidth = 10
	pnrRandomLength   = 16
	pnrAlphabet       = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxPNRAttempts    = 5
)

// BookingStore is the persistence the booking ledger needs
type BookingStore interface {
	GetByPNR(ctx context.Context, pnr string) (*models.Booking, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*models.Booking, error)
	GetByBillID(ctx context.Context, billID string) (*models.Booking, error)
	ListForOwner(ctx context.Context, userID *uuid.UUID, email string) ([]models.Booking, error)
	CreateWithSeatHold(ctx context.Context, booking *models.Booking, hold models.SeatHoldRequest, now time.Time) error
	AttachBill(ctx context.Context, id int64, billID string, method models.PaymentMethod) error
	MarkPaid(ctx context.Context, id int64, transactionID string, method *models.PaymentMethod, paidAt time.Time) (*models.Booking, error)
	MarkFailed(ctx context.Context, id int64, paymentStatus models.PaymentStatus) (*models.Booking, error)
	DeleteAndReleaseSeat(ctx context.Context, id int64) error
	ExpireStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error)
}

// BookingLedgerService records bookings and their payment outcomes. Every
// state change that touches a seat happens in the same transaction as the
// booking row.
type BookingLedgerService struct {
	store  BookingStore
	logger *logrus.Logger
	now    func() time.Time
}

// NewBookingLedgerService creates a new BookingLedgerService
func NewBookingLedgerService(store BookingStore, logger *logrus.Logger) *BookingLedgerService {
	return &BookingLedgerService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// GeneratePNR returns a 26-character booking reference: the base36 millisecond
// timestamp padded to 10 characters followed by 16 random characters.
func GeneratePNR(at time.Time) (string, error) {
	ts := strings.ToUpper(strconv.FormatInt(at.UnixMilli(), 36))
	if len(ts) < pnrTimestampWidth {
		ts = strings.Repeat("0", pnrTimestampWidth-len(ts)) + ts
	}

	suffix, err := randomAlphanumeric(pnrRandomLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate pnr: %w", err)
	}
	return ts + suffix, nil
}

// randomAlphanumeric returns n uppercase letters and digits from crypto/rand
func randomAlphanumeric(n int) (string, error) {
	buf := make([]byte, n)
	max := big.NewInt(int64(len(pnrAlphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = pnrAlphabet[idx.Int64()]
	}
	return string(buf), nil
}

// FindByIdempotencyKey returns the booking created with key, or nil
func (s *BookingLedgerService) FindByIdempotencyKey(ctx context.Context, key string) (*models.Booking, error) {
	if key == "" {
		return nil, nil
	}
	return s.store.GetByIdempotencyKey(ctx, key)
}

// FindByPNR returns the booking with the reference, or models.ErrBookingNotFound
func (s *BookingLedgerService) FindByPNR(ctx context.Context, pnr string) (*models.Booking, error) {
	booking, err := s.store.GetByPNR(ctx, strings.ToUpper(strings.TrimSpace(pnr)))
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, models.ErrBookingNotFound
	}
	return booking, nil
}

// FindByBillID returns the booking a provider bill was issued for, or models.ErrBookingNotFound
func (s *BookingLedgerService) FindByBillID(ctx context.Context, billID string) (*models.Booking, error) {
	booking, err := s.store.GetByBillID(ctx, billID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, models.ErrBookingNotFound
	}
	return booking, nil
}

// ListForOwner returns bookings made by the user or under their email
func (s *BookingLedgerService) ListForOwner(ctx context.Context, identity *models.Identity) ([]models.Booking, error) {
	if identity == nil {
		return []models.Booking{}, nil
	}
	var userID *uuid.UUID
	if identity.UserID != uuid.Nil {
		id := identity.UserID
		userID = &id
	}
	return s.store.ListForOwner(ctx, userID, identity.Email)
}

// Create assigns a PNR, claims a seat and inserts the booking atomically.
// A PNR collision is retried with a fresh reference. A concurrent request
// with the same idempotency key yields models.ErrDuplicateIdempotencyKey and
// leaves no seat claimed.
func (s *BookingLedgerService) Create(ctx context.Context, booking *models.Booking, hold models.SeatHoldRequest) error {
	if booking.Status == "" {
		booking.Status = models.BookingStatusPending
	}
	if booking.PaymentStatus == "" {
		booking.PaymentStatus = models.PaymentStatusPending
	}

	for attempt := 1; attempt <= maxPNRAttempts; attempt++ {
		now := s.now()
		pnr, err := GeneratePNR(now)
		if err != nil {
			return err
		}
		booking.PNR = pnr

		err = s.store.CreateWithSeatHold(ctx, booking, hold, now)
		if errors.Is(err, models.ErrDuplicatePNR) {
			s.logger.WithFields(logrus.Fields{
				"pnr":     pnr,
				"attempt": attempt,
			}).Warn("PNR collision, regenerating")
			continue
		}
		if err != nil {
			return err
		}

		s.logger.WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"pnr":        booking.PNR,
			"trip_id":    booking.TripID,
			"seat_no":    booking.SeatNo,
			"status":     booking.Status,
		}).Info("Booking created")
		return nil
	}
	return fmt.Errorf("failed to create booking: %w after %d attempts", models.ErrDuplicatePNR, maxPNRAttempts)
}

// AttachBill records the provider bill issued for a pending booking
func (s *BookingLedgerService) AttachBill(ctx context.Context, booking *models.Booking, billID string, method models.PaymentMethod) error {
	if err := s.store.AttachBill(ctx, booking.ID, billID, method); err != nil {
		return err
	}
	booking.BillID = &billID
	m := string(method)
	booking.PaymentMethod = &m
	return nil
}

// MarkPaid confirms a pending booking and sells its seat. For a booking that
// is already confirmed it returns the stored booking with models.ErrAlreadyConfirmed.
func (s *BookingLedgerService) MarkPaid(ctx context.Context, booking *models.Booking, transactionID string, method *models.PaymentMethod) (*models.Booking, error) {
	updated, err := s.store.MarkPaid(ctx, booking.ID, transactionID, method, s.now())
	if err != nil {
		return updated, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":     updated.ID,
		"pnr":            updated.PNR,
		"transaction_id": transactionID,
	}).Info("Booking confirmed")
	return updated, nil
}

// MarkFailed cancels a pending booking with the given payment status and
// frees its seat
func (s *BookingLedgerService) MarkFailed(ctx context.Context, booking *models.Booking, paymentStatus models.PaymentStatus) (*models.Booking, error) {
	updated, err := s.store.MarkFailed(ctx, booking.ID, paymentStatus)
	if err != nil {
		return updated, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":     updated.ID,
		"pnr":            updated.PNR,
		"payment_status": paymentStatus,
	}).Info("Booking cancelled")
	return updated, nil
}

// Delete removes a pending or cancelled booking and releases its hold.
// Confirmed bookings return models.ErrBookingConfirmed.
func (s *BookingLedgerService) Delete(ctx context.Context, booking *models.Booking) error {
	if booking.Status == models.BookingStatusConfirmed {
		return models.ErrBookingConfirmed
	}
	if err := s.store.DeleteAndReleaseSeat(ctx, booking.ID); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"pnr":        booking.PNR,
	}).Info("Booking deleted")
	return nil
}

// ExpireStale cancels pending bookings older than maxAge
func (s *BookingLedgerService) ExpireStale(ctx context.Context, maxAge time.Duration, limit int) ([]models.Booking, error) {
	return s.store.ExpireStalePending(ctx, s.now().Add(-maxAge), limit)
}
