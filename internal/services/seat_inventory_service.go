package services

import (
	"context"
	"fmt"
	"time"

	"github.com/setrag/rail-booking-backend/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	defaultSeatCount   = 100
	defaultHoldMinutes = 15
)

// SeatStore is the persistence the seat inventory needs
type SeatStore interface {
	ListByTrip(ctx context.Context, tripID int64) ([]models.Seat, error)
	GetByTripAndSeatNo(ctx context.Context, tripID int64, seatNo string) (*models.Seat, error)
	Availability(ctx context.Context, tripID int64, now time.Time) ([]models.SeatAvailability, error)
	SeedIfEmpty(ctx context.Context, tripID int64, seats []models.Seat) ([]models.Seat, bool, error)
	Allocate(ctx context.Context, tripID int64, class *models.SeatClass, holdUntil, now time.Time) (*models.Seat, error)
	Confirm(ctx context.Context, tripID int64, seatNo string) (*models.Seat, error)
	Release(ctx context.Context, tripID int64, seatNo string) (*models.Seat, error)
	ReleaseLapsedHolds(ctx context.Context, now time.Time) (int64, error)
}

// TripLookup resolves trips
type TripLookup interface {
	GetDetails(ctx context.Context, id int64) (*models.TripDetails, error)
	Exists(ctx context.Context, id int64) (bool, error)
}

// SeatInventoryService owns the seat state machine: AVAILABLE -> HELD -> SOLD.
// A HELD seat whose hold lapsed is treated as AVAILABLE without being rewritten.
type SeatInventoryService struct {
	seats  SeatStore
	trips  TripLookup
	logger *logrus.Logger
	now    func() time.Time
}

// NewSeatInventoryService creates a new SeatInventoryService
func NewSeatInventoryService(seats SeatStore, trips TripLookup, logger *logrus.Logger) *SeatInventoryService {
	return &SeatInventoryService{
		seats:  seats,
		trips:  trips,
		logger: logger,
		now:    time.Now,
	}
}

// BuildSeats lays out count seats: second class first, then first class, then VIP.
// Numbers run 1..count across classes with a class suffix (1A, 7B, 10V).
func BuildSeats(tripID int64, count int) []models.Seat {
	return models.LayoutSeats(tripID, 1, count)
}

// Seed creates the trip's seats unless it already has some, in which case
// the existing seats are returned unchanged.
func (s *SeatInventoryService) Seed(ctx context.Context, tripID int64, count int) ([]models.Seat, error) {
	if count <= 0 {
		count = defaultSeatCount
	}

	seats, created, err := s.seats.SeedIfEmpty(ctx, tripID, BuildSeats(tripID, count))
	if err != nil {
		return nil, err
	}

	if created {
		s.logger.WithFields(logrus.Fields{
			"trip_id": tripID,
			"count":   len(seats),
		}).Info("Seats seeded")
	}
	return seats, nil
}

// List returns the trip's seats ordered by id
func (s *SeatInventoryService) List(ctx context.Context, tripID int64) ([]models.Seat, error) {
	if err := s.requireTrip(ctx, tripID); err != nil {
		return nil, err
	}
	return s.seats.ListByTrip(ctx, tripID)
}

// Allocate places a hold on the lowest-numbered claimable seat, optionally
// restricted to a class.
func (s *SeatInventoryService) Allocate(ctx context.Context, tripID int64, class *models.SeatClass, holdMinutes int) (*models.Seat, error) {
	if holdMinutes <= 0 {
		holdMinutes = defaultHoldMinutes
	}
	now := s.now()

	seat, err := s.seats.Allocate(ctx, tripID, class, now.Add(time.Duration(holdMinutes)*time.Minute), now)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate seat: %w", err)
	}
	if seat == nil {
		if err := s.requireTrip(ctx, tripID); err != nil {
			return nil, err
		}
		return nil, models.ErrNoSeatsAvailable
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id":         tripID,
		"seat_no":         seat.SeatNo,
		"hold_expires_at": seat.HoldExpiresAt,
	}).Debug("Seat held")
	return seat, nil
}

// Confirm sells a HELD or AVAILABLE seat
func (s *SeatInventoryService) Confirm(ctx context.Context, tripID int64, seatNo string) (*models.Seat, error) {
	seat, err := s.seats.Confirm(ctx, tripID, seatNo)
	if err != nil {
		return nil, err
	}
	if seat != nil {
		return seat, nil
	}

	existing, err := s.seats.GetByTripAndSeatNo(ctx, tripID, seatNo)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, models.ErrSeatNotFound
	}
	return nil, models.ErrSeatNotConfirmable
}

// Release returns a held seat to AVAILABLE. Releasing an AVAILABLE seat is a
// no-op; a SOLD seat is never released.
func (s *SeatInventoryService) Release(ctx context.Context, tripID int64, seatNo string) (*models.Seat, error) {
	seat, err := s.seats.Release(ctx, tripID, seatNo)
	if err != nil {
		return nil, err
	}
	if seat != nil {
		return seat, nil
	}

	existing, err := s.seats.GetByTripAndSeatNo(ctx, tripID, seatNo)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, models.ErrSeatNotFound
	}
	return nil, models.ErrSeatNotReleasable
}

// Availability counts seats per class, reporting lapsed holds as available
func (s *SeatInventoryService) Availability(ctx context.Context, tripID int64) ([]models.SeatAvailability, error) {
	if err := s.requireTrip(ctx, tripID); err != nil {
		return nil, err
	}
	return s.seats.Availability(ctx, tripID, s.now())
}

// ReleaseLapsedHolds physically frees holds that lapsed and are not owned by a
// pending booking. Purely housekeeping: allocation already ignores lapsed holds.
func (s *SeatInventoryService) ReleaseLapsedHolds(ctx context.Context) (int64, error) {
	return s.seats.ReleaseLapsedHolds(ctx, s.now())
}

func (s *SeatInventoryService) requireTrip(ctx context.Context, tripID int64) error {
	exists, err := s.trips.Exists(ctx, tripID)
	if err != nil {
		return err
	}
	if !exists {
		return models.ErrTripNotFound
	}
	return nil
}
