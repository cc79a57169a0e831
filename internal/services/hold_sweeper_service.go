package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/setrag/rail-booking-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// HoldSweeperConfig holds configuration for the hold sweeper
type HoldSweeperConfig struct {
	Schedule      string        // cron expression, e.g. "@every 1m"
	PendingMaxAge time.Duration // pending bookings older than this are expired
	BatchSize     int
	RunTimeout    time.Duration
}

// DefaultHoldSweeperConfig returns default configuration
func DefaultHoldSweeperConfig() HoldSweeperConfig {
	return HoldSweeperConfig{
		Schedule:      "@every 1m",
		PendingMaxAge: 60 * time.Minute,
		BatchSize:     100,
		RunTimeout:    30 * time.Second,
	}
}

// SweepResult reports one sweep
type SweepResult struct {
	ExpiredBookings int
	ReleasedSeats   int64
}

// HoldSweeperService expires abandoned pending bookings and frees lapsed seat
// holds on a schedule. Allocation already treats lapsed holds as free, so the
// sweep only keeps the stored state tidy.
type HoldSweeperService struct {
	cron      *cron.Cron
	ledger    *BookingLedgerService
	inventory *SeatInventoryService
	events    EventPublisher
	config    HoldSweeperConfig
	logger    *logrus.Logger

	mu      sync.Mutex
	running bool
}

// NewHoldSweeperService creates a new HoldSweeperService
func NewHoldSweeperService(
	ledger *BookingLedgerService,
	inventory *SeatInventoryService,
	events EventPublisher,
	config HoldSweeperConfig,
	logger *logrus.Logger,
) *HoldSweeperService {
	defaults := DefaultHoldSweeperConfig()
	if config.Schedule == "" {
		config.Schedule = defaults.Schedule
	}
	if config.PendingMaxAge <= 0 {
		config.PendingMaxAge = defaults.PendingMaxAge
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = defaults.RunTimeout
	}

	return &HoldSweeperService{
		cron:      cron.New(),
		ledger:    ledger,
		inventory: inventory,
		events:    events,
		config:    config,
		logger:    logger,
	}
}

// Start schedules the sweep and starts the scheduler
func (s *HoldSweeperService) Start() error {
	_, err := s.cron.AddFunc(s.config.Schedule, s.sweepJob)
	if err != nil {
		return fmt.Errorf("failed to schedule hold sweep: %w", err)
	}
	s.cron.Start()

	s.logger.WithFields(logrus.Fields{
		"schedule":        s.config.Schedule,
		"pending_max_age": s.config.PendingMaxAge.String(),
	}).Info("Hold sweeper started")
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish
func (s *HoldSweeperService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Hold sweeper stopped")
}

func (s *HoldSweeperService) sweepJob() {
	// skip the tick if the previous sweep is still going
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("Previous hold sweep still running, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.RunTimeout)
	defer cancel()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.WithError(err).Error("Hold sweep failed")
	}
}

// RunOnce expires stale pending bookings, then frees any remaining lapsed holds
func (s *HoldSweeperService) RunOnce(ctx context.Context) (*SweepResult, error) {
	start := time.Now()
	result := &SweepResult{}

	expired, err := s.ledger.ExpireStale(ctx, s.config.PendingMaxAge, s.config.BatchSize)
	if err != nil {
		return result, fmt.Errorf("failed to expire stale bookings: %w", err)
	}
	result.ExpiredBookings = len(expired)

	for i := range expired {
		b := &expired[i]
		if err := s.events.PublishJSON(ctx, string(models.BookingEventCancelled), models.NewBookingEvent(models.BookingEventCancelled, b)); err != nil {
			s.logger.WithError(err).WithField("pnr", b.PNR).Warn("Failed to publish expiry event")
		}
	}

	released, err := s.inventory.ReleaseLapsedHolds(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to release lapsed holds: %w", err)
	}
	result.ReleasedSeats = released

	if result.ExpiredBookings > 0 || result.ReleasedSeats > 0 {
		s.logger.WithFields(logrus.Fields{
			"expired_bookings": result.ExpiredBookings,
			"released_seats":   result.ReleasedSeats,
			"duration":         time.Since(start).String(),
		}).Info("Hold sweep completed")
	}
	return result, nil
}
