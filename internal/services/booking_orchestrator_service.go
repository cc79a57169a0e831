package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/setrag/rail-booking-backend/internal/models"
	"github.com/setrag/rail-booking-backend/pkg/validator"
	"github.com/sirupsen/logrus"
)

const simulatedTxnLength = 12

// BookingOrchestratorConfig holds configuration for the orchestrator
type BookingOrchestratorConfig struct {
	HoldMinutes     int  // seat hold while the passenger pays (default 20)
	ForceSimulation bool // confirm bookings without calling the provider
}

// DefaultOrchestratorConfig returns default configuration
func DefaultOrchestratorConfig() BookingOrchestratorConfig {
	return BookingOrchestratorConfig{HoldMinutes: 20}
}

// PaymentGateway is the billing provider as the booking flow sees it
type PaymentGateway interface {
	IsConfigured() bool
	PaymentLink(billID string) string
	CreatePayment(ctx context.Context, req models.PaymentRequest) (*models.BillResult, error)
	GetStatus(ctx context.Context, billID string) (*models.BillStatus, error)
	ValidateCallback(payload map[string]interface{}) bool
	NormalizeCallback(payload map[string]interface{}) models.CallbackData
}

// EventPublisher publishes booking lifecycle events
type EventPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// PaymentAuditor records payment events
type PaymentAuditor interface {
	Record(ctx context.Context, audit *models.PaymentAudit, meta models.RequestMeta)
	IsDuplicateCallback(ctx context.Context, billID, status string) bool
}

// BookingOrchestratorService runs the booking flow: quote, seat hold and
// ledger entry, payment initiation, and payment confirmation via callback or poll.
type BookingOrchestratorService struct {
	trips    TripLookup
	pricing  *PricingService
	ledger   *BookingLedgerService
	payments PaymentGateway
	cache    IdempotencyCache
	events   EventPublisher
	audit    PaymentAuditor
	phones   *validator.PhoneValidator
	config   BookingOrchestratorConfig
	logger   *logrus.Logger
	now      func() time.Time
}

// NewBookingOrchestratorService creates a new orchestrator service
func NewBookingOrchestratorService(
	trips TripLookup,
	pricing *PricingService,
	ledger *BookingLedgerService,
	payments PaymentGateway,
	cache IdempotencyCache,
	events EventPublisher,
	audit PaymentAuditor,
	config BookingOrchestratorConfig,
	logger *logrus.Logger,
) *BookingOrchestratorService {
	if config.HoldMinutes <= 0 {
		config.HoldMinutes = DefaultOrchestratorConfig().HoldMinutes
	}
	if cache == nil {
		cache = NoopIdempotencyCache{}
	}
	return &BookingOrchestratorService{
		trips:    trips,
		pricing:  pricing,
		ledger:   ledger,
		payments: payments,
		cache:    cache,
		events:   events,
		audit:    audit,
		phones:   validator.NewPhoneValidator(),
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// ============================================================================
// QUOTE
// ============================================================================

// Quote prices a trip. Unknown classes and passenger types are priced
// neutrally rather than rejected.
func (s *BookingOrchestratorService) Quote(ctx context.Context, req models.QuoteRequest) (*models.PriceQuote, error) {
	req.Normalize()

	trip, err := s.trip(ctx, req.TripID)
	if err != nil {
		return nil, err
	}
	birthDate, err := models.ParseDate(req.PassengerBirthDate)
	if err != nil {
		return nil, &models.ValidationError{Field: "passenger_birth_date", Message: "passenger_birth_date must be YYYY-MM-DD"}
	}
	return s.pricing.Quote(trip, req.Class, req.PassengerType, birthDate, req.Passengers, s.now()), nil
}

// ============================================================================
// CREATE BOOKING
// ============================================================================

// CreateBooking validates the request, holds a seat, records a PENDING booking
// and starts the payment. Replaying an idempotency key returns the first
// result. A provider failure removes the booking and frees the seat.
func (s *BookingOrchestratorService) CreateBooking(
	ctx context.Context,
	identity *models.Identity,
	req *models.CreateBookingRequest,
	meta models.RequestMeta,
) (*models.BookingResult, error) {
	// 1. Validate request
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.validatePhone(req); err != nil {
		return nil, err
	}
	birthDate, _ := req.BirthDate()
	now := s.now()
	if req.Passengers == 1 && s.pricing.IsFreeChild(req.PassengerType, birthDate, now) {
		return nil, models.ErrUnaccompaniedChild
	}

	// 2. Check idempotency key if provided
	if req.IdempotencyKey != "" {
		if replay, err := s.replay(ctx, req.IdempotencyKey); err != nil || replay != nil {
			return replay, err
		}
	}

	// 3. Price the trip
	trip, err := s.trip(ctx, req.TripID)
	if err != nil {
		return nil, err
	}
	quote := s.pricing.Quote(trip, req.Class, req.PassengerType, birthDate, req.Passengers, now)

	// 4. Hold a seat and record the booking
	booking := s.newBooking(identity, req, birthDate)
	booking.ApplyQuote(quote)
	class := req.Class
	hold := models.SeatHoldRequest{TripID: trip.ID, Class: &class, HoldMinutes: s.config.HoldMinutes}

	if replay, err := s.createOrReplay(ctx, booking, hold, req.IdempotencyKey); err != nil || replay != nil {
		return replay, err
	}

	// 5. Take payment
	var result *models.BookingResult
	if s.simulatePayments() {
		result, err = s.simulatePayment(ctx, booking, meta)
	} else {
		result, err = s.initiatePayment(ctx, booking, trip, req, meta)
	}
	if err != nil {
		return nil, err
	}

	// 6. Remember the result for replays
	if req.IdempotencyKey != "" {
		if err := s.cache.Set(ctx, req.IdempotencyKey, result); err != nil {
			s.logger.WithError(err).WithField("pnr", result.PNR).Warn("Failed to cache booking result")
		}
	}
	return result, nil
}

// createOrReplay records the booking. When a concurrent request with the same
// key got there first, its result is returned instead. If that booking was
// rolled back before it could be read, the key is free again and the insert
// is tried once more.
func (s *BookingOrchestratorService) createOrReplay(ctx context.Context, booking *models.Booking, hold models.SeatHoldRequest, key string) (*models.BookingResult, error) {
	for attempt := 1; ; attempt++ {
		err := s.ledger.Create(ctx, booking, hold)
		if err == nil {
			return nil, nil
		}
		if !errors.Is(err, models.ErrDuplicateIdempotencyKey) || key == "" {
			return nil, err
		}

		replay, rerr := s.replay(ctx, key)
		if rerr != nil || replay != nil {
			return replay, rerr
		}
		if attempt == 2 {
			return nil, models.ErrDuplicateIdempotencyKey
		}
		s.logger.WithField("idempotency_key", key).Warn("Idempotency key released by a rolled back booking, retrying")
	}
}

func (s *BookingOrchestratorService) validatePhone(req *models.CreateBookingRequest) error {
	if req.PassengerPhone == "" {
		return nil
	}
	if req.PaymentMethod != models.PaymentMethodAirtel && req.PaymentMethod != models.PaymentMethodMoov {
		return nil
	}
	if _, err := s.phones.Validate(req.PassengerPhone); err != nil {
		return &models.ValidationError{Field: "passenger_phone", Message: err.Error()}
	}
	return nil
}

func (s *BookingOrchestratorService) newBooking(identity *models.Identity, req *models.CreateBookingRequest, birthDate *time.Time) *models.Booking {
	booking := &models.Booking{
		TripID:             req.TripID,
		PassengerBirthDate: birthDate,
		PassengerName:      req.PassengerName,
		PassengerEmail:     req.PassengerEmail,
		Status:             models.BookingStatusPending,
		PaymentStatus:      models.PaymentStatusPending,
	}
	if req.PassengerPhone != "" {
		phone := req.PassengerPhone
		booking.PassengerPhone = &phone
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		booking.IdempotencyKey = &key
	}
	if identity != nil && identity.UserID != uuid.Nil {
		userID := identity.UserID
		booking.UserID = &userID
	}
	return booking
}

// replay returns the stored result for an idempotency key, or nil
func (s *BookingOrchestratorService) replay(ctx context.Context, key string) (*models.BookingResult, error) {
	cached, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.WithError(err).Warn("Idempotency cache unavailable, falling back to ledger")
	}
	if cached != nil {
		cached.Replayed = true
		return cached, nil
	}

	existing, err := s.ledger.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existing == nil {
		return nil, nil
	}

	result := s.resultFor(existing)
	result.Replayed = true
	return result, nil
}

func (s *BookingOrchestratorService) resultFor(b *models.Booking) *models.BookingResult {
	result := models.NewBookingResult(b)
	if b.BillID != nil && b.Status == models.BookingStatusPending {
		result.PaymentLink = s.payments.PaymentLink(*b.BillID)
	}
	if b.PaymentMethod != nil && *b.PaymentMethod == string(models.PaymentMethodSimulation) {
		result.Simulated = true
	}
	return result
}

func (s *BookingOrchestratorService) simulatePayments() bool {
	return s.config.ForceSimulation || !s.payments.IsConfigured()
}

// simulatePayment confirms the booking immediately with a synthetic transaction
func (s *BookingOrchestratorService) simulatePayment(ctx context.Context, booking *models.Booking, meta models.RequestMeta) (*models.BookingResult, error) {
	suffix, err := randomAlphanumeric(simulatedTxnLength)
	if err != nil {
		s.compensate(ctx, booking, err, meta)
		return nil, fmt.Errorf("failed to generate transaction id: %w", err)
	}
	txnID := "SIM-" + suffix
	method := models.PaymentMethodSimulation

	confirmed, err := s.ledger.MarkPaid(ctx, booking, txnID, &method)
	if err != nil {
		s.compensate(ctx, booking, err, meta)
		return nil, err
	}

	entry := models.NewPaymentAudit(models.PaymentEventSimulated, models.PaymentSourceBackend).
		ForBooking(confirmed).
		SetTransactionID(txnID).
		SetPaymentStatus(string(confirmed.PaymentStatus))
	s.audit.Record(ctx, entry, meta)

	s.logger.WithFields(logrus.Fields{
		"booking_id":     confirmed.ID,
		"pnr":            confirmed.PNR,
		"transaction_id": txnID,
	}).Warn("Payment simulated: provider not configured or simulation forced")

	s.publish(ctx, models.BookingEventCreated, confirmed)
	s.publish(ctx, models.BookingEventConfirmed, confirmed)

	result := models.NewBookingResult(confirmed)
	result.Simulated = true
	return result, nil
}

// initiatePayment creates the provider bill and attaches it to the booking
func (s *BookingOrchestratorService) initiatePayment(
	ctx context.Context,
	booking *models.Booking,
	trip *models.TripDetails,
	req *models.CreateBookingRequest,
	meta models.RequestMeta,
) (*models.BookingResult, error) {
	start := s.now()
	paymentReq := models.PaymentRequest{
		Amount:      booking.Amount,
		PayerName:   booking.PassengerName,
		PayerEmail:  booking.PassengerEmail,
		PayerPhone:  req.PassengerPhone,
		Description: fmt.Sprintf("SETRAG %s - %s, siège %s", trip.OriginName, trip.DestinationName, booking.SeatNo),
		Reference:   booking.PNR,
		Metadata: map[string]interface{}{
			"booking_id": booking.ID,
			"pnr":        booking.PNR,
			"trip_id":    booking.TripID,
			"seat_no":    booking.SeatNo,
		},
	}

	initiated := models.NewPaymentAudit(models.PaymentEventInitiated, models.PaymentSourceBackend).ForBooking(booking)
	initiated.SetAmounts(booking.Amount, booking.Amount, booking.Currency)
	initiated.SetPayload(map[string]interface{}{
		"payment_method": string(req.PaymentMethod),
		"reference":      booking.PNR,
	})
	s.audit.Record(ctx, initiated, meta)

	bill, err := s.payments.CreatePayment(ctx, paymentReq)
	if err != nil {
		response := models.NewPaymentAudit(models.PaymentEventResponse, models.PaymentSourceAPI).
			ForBooking(booking).
			SetProcessingTime(start)
		if perr, ok := AsProviderError(err); ok {
			response.SetError(perr.Error(), string(perr.Kind)).SetHTTPStatus(perr.StatusCode)
			if perr.Body != "" {
				response.SetPayload(map[string]interface{}{"body": perr.Body})
			}
		} else {
			response.SetError(err.Error(), "")
		}
		s.audit.Record(ctx, response, meta)

		s.compensate(ctx, booking, err, meta)
		return nil, err
	}

	if err := s.ledger.AttachBill(ctx, booking, bill.BillID, req.PaymentMethod); err != nil {
		s.compensate(ctx, booking, err, meta)
		return nil, fmt.Errorf("failed to attach bill: %w", err)
	}

	response := models.NewPaymentAudit(models.PaymentEventResponse, models.PaymentSourceAPI).
		ForBooking(booking).
		SetBillID(bill.BillID).
		SetHTTPStatus(200).
		SetProcessingTime(start)
	s.audit.Record(ctx, response, meta)

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"pnr":        booking.PNR,
		"bill_id":    bill.BillID,
	}).Info("Payment initiated")

	s.publish(ctx, models.BookingEventCreated, booking)

	result := models.NewBookingResult(booking)
	result.BillID = bill.BillID
	result.PaymentLink = bill.PaymentLink
	return result, nil
}

// compensate removes a booking whose payment could not be started and frees
// its seat. It runs detached from the request context, which may be the
// reason the payment failed.
func (s *BookingOrchestratorService) compensate(ctx context.Context, booking *models.Booking, cause error, meta models.RequestMeta) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	fields := logrus.Fields{
		"booking_id": booking.ID,
		"pnr":        booking.PNR,
		"seat_no":    booking.SeatNo,
		"cause":      cause.Error(),
	}

	if err := s.ledger.Delete(cctx, booking); err != nil {
		fields["error"] = err.Error()
		s.logger.WithFields(fields).Error("rollback_failed")

		entry := models.NewPaymentAudit(models.PaymentEventCompensationFailed, models.PaymentSourceBackend).
			ForBooking(booking).
			SetError(err.Error(), "rollback_failed")
		entry.SetPayload(map[string]interface{}{"cause": cause.Error()})
		s.audit.Record(cctx, entry, meta)
		return
	}

	s.logger.WithFields(fields).Warn("Booking rolled back after payment failure")
	entry := models.NewPaymentAudit(models.PaymentEventCompensated, models.PaymentSourceBackend).
		ForBooking(booking).
		SetError(cause.Error(), "")
	s.audit.Record(cctx, entry, meta)
}

// ============================================================================
// PAYMENT CONFIRMATION
// ============================================================================

// HandleCallback applies a provider payment notification. Redelivered and
// late notifications are acknowledged without changing state.
func (s *BookingOrchestratorService) HandleCallback(ctx context.Context, payload map[string]interface{}, meta models.RequestMeta) (*models.CallbackResult, error) {
	start := s.now()

	if !s.payments.ValidateCallback(payload) {
		entry := models.NewPaymentAudit(models.PaymentEventCallbackRejected, models.PaymentSourceCallback).
			SetPayload(payload).
			SetError("missing bill id, status or amount", "invalid_callback")
		s.audit.Record(ctx, entry, meta)
		return nil, models.ErrInvalidCallback
	}

	data := s.payments.NormalizeCallback(payload)
	duplicate := s.audit.IsDuplicateCallback(ctx, data.BillID, data.RawStatus)

	eventType := models.PaymentEventCallbackReceived
	if duplicate {
		eventType = models.PaymentEventDuplicateCallback
	}
	received := models.NewPaymentAudit(eventType, models.PaymentSourceCallback).
		SetBillID(data.BillID).
		SetPaymentStatus(data.RawStatus).
		SetTransactionID(data.TransactionID).
		SetPayload(payload)
	if duplicate {
		received.MarkAsDuplicate()
	}

	booking, err := s.ledger.FindByBillID(ctx, data.BillID)
	if err != nil {
		received.SetError(err.Error(), "booking_not_found").SetProcessingTime(start)
		s.audit.Record(ctx, received, meta)
		return nil, err
	}

	received.ForBooking(booking)
	amountsMatch := received.SetAmounts(booking.Amount, data.Amount, booking.Currency)
	received.SetProcessingTime(start)
	s.audit.Record(ctx, received, meta)

	logger := s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"pnr":        booking.PNR,
		"bill_id":    data.BillID,
		"status":     data.Status,
		"duplicate":  duplicate,
	})

	if !amountsMatch {
		logger.WithFields(logrus.Fields{
			"expected": booking.Amount,
			"received": data.Amount,
		}).Warn("Callback amount differs from booking amount")
		mismatch := models.NewPaymentAudit(models.PaymentEventAmountMismatch, models.PaymentSourceCallback).
			ForBooking(booking).
			SetTransactionID(data.TransactionID)
		mismatch.SetAmounts(booking.Amount, data.Amount, booking.Currency)
		s.audit.Record(ctx, mismatch, meta)
	}

	if booking.Status == models.BookingStatusConfirmed && data.Status == models.MappedStatusCompleted {
		logger.Info("Payment already processed")
		return &models.CallbackResult{Outcome: models.CallbackAlreadyProcessed, PNR: booking.PNR, Status: booking.Status}, nil
	}

	outcome, updated, err := s.applyStatus(ctx, booking, data.Status, data.TransactionID, paymentMethodFor(data.PaymentSystem), models.PaymentSourceCallback, meta)
	if err != nil {
		logger.WithError(err).Error("Failed to apply payment callback")
		return nil, err
	}

	logger.WithField("outcome", outcome).Info("Payment callback processed")
	return &models.CallbackResult{Outcome: outcome, PNR: updated.PNR, Status: updated.Status}, nil
}

// CheckPaymentStatus reports a booking's payment state, asking the provider
// when the booking is still pending. Provider failures leave the booking
// pending so the caller keeps polling.
func (s *BookingOrchestratorService) CheckPaymentStatus(ctx context.Context, pnr string, meta models.RequestMeta) (*models.PaymentCheckResult, error) {
	booking, err := s.ledger.FindByPNR(ctx, pnr)
	if err != nil {
		return nil, err
	}

	if booking.Status != models.BookingStatusPending || booking.BillID == nil {
		return checkResult(booking, ""), nil
	}

	start := s.now()
	status, err := s.payments.GetStatus(ctx, *booking.BillID)
	entry := models.NewPaymentAudit(models.PaymentEventStatusCheckResponse, models.PaymentSourceAPI).
		ForBooking(booking)
	if err != nil {
		kind := "error"
		if perr, ok := AsProviderError(err); ok {
			kind = string(perr.Kind)
			entry.SetHTTPStatus(perr.StatusCode)
		}
		entry.SetError(err.Error(), kind).SetProcessingTime(start)
		s.audit.Record(ctx, entry, meta)

		s.logger.WithFields(logrus.Fields{
			"pnr":   booking.PNR,
			"kind":  kind,
			"error": err.Error(),
		}).Warn("Payment status check failed")
		return checkResult(booking, kind), nil
	}

	entry.SetPaymentStatus(status.RawStatus).
		SetTransactionID(status.TransactionID).
		SetHTTPStatus(200).
		SetProcessingTime(start)
	s.audit.Record(ctx, entry, meta)

	_, updated, err := s.applyStatus(ctx, booking, status.Status, status.TransactionID, nil, models.PaymentSourceAPI, meta)
	if errors.Is(err, models.ErrPaymentNotApplied) {
		// the provider callback or the next poll applies it
		s.logger.WithFields(logrus.Fields{
			"pnr":   booking.PNR,
			"error": err.Error(),
		}).Error("Payment status could not be applied")
		return checkResult(booking, ""), nil
	}
	if err != nil {
		return nil, err
	}
	return checkResult(updated, ""), nil
}

func checkResult(b *models.Booking, providerError string) *models.PaymentCheckResult {
	outcome := models.PaymentCheckStillPending
	switch b.Status {
	case models.BookingStatusConfirmed:
		outcome = models.PaymentCheckConfirmed
	case models.BookingStatusCancelled:
		outcome = models.PaymentCheckFailed
	}
	return &models.PaymentCheckResult{
		PNR:           b.PNR,
		Outcome:       outcome,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		ProviderError: providerError,
	}
}

// applyStatus moves the booking according to a provider status. The booking
// and seat change in one transaction; events go out after it commits.
func (s *BookingOrchestratorService) applyStatus(
	ctx context.Context,
	booking *models.Booking,
	status models.MappedStatus,
	txnID string,
	method *models.PaymentMethod,
	source models.PaymentEventSource,
	meta models.RequestMeta,
) (models.CallbackOutcome, *models.Booking, error) {
	switch {
	case status == models.MappedStatusCompleted:
		updated, err := s.ledger.MarkPaid(ctx, booking, txnID, method)
		switch {
		case errors.Is(err, models.ErrAlreadyConfirmed):
			return models.CallbackAlreadyProcessed, updated, nil
		case errors.Is(err, models.ErrBookingNotPending):
			// paid after the booking was cancelled or expired: needs a manual refund
			s.logger.WithFields(logrus.Fields{
				"pnr":            booking.PNR,
				"transaction_id": txnID,
			}).Error("Payment received for a cancelled booking")
			late := models.NewPaymentAudit(models.PaymentEventLatePayment, source).
				ForBooking(updated).
				SetTransactionID(txnID).
				SetPaymentStatus(string(status))
			s.audit.Record(ctx, late, meta)
			return models.CallbackIgnored, updated, nil
		case err != nil:
			failed := models.NewPaymentAudit(models.PaymentEventError, source).
				ForBooking(booking).
				SetTransactionID(txnID).
				SetError(err.Error(), "confirm_failed")
			s.audit.Record(ctx, failed, meta)
			return "", nil, fmt.Errorf("failed to confirm booking %s: %w: %v", booking.PNR, models.ErrPaymentNotApplied, err)
		}

		success := models.NewPaymentAudit(models.PaymentEventSuccess, source).
			ForBooking(updated).
			SetTransactionID(txnID).
			SetPaymentStatus(string(updated.PaymentStatus))
		s.audit.Record(ctx, success, meta)
		s.publish(ctx, models.BookingEventConfirmed, updated)
		return models.CallbackConfirmed, updated, nil

	case status.IsTerminalFailure():
		updated, err := s.ledger.MarkFailed(ctx, booking, status.PaymentStatus())
		switch {
		case errors.Is(err, models.ErrBookingNotPending):
			if updated != nil && updated.Status == models.BookingStatusCancelled {
				return models.CallbackAlreadyProcessed, updated, nil
			}
			return models.CallbackIgnored, updated, nil
		case err != nil:
			return "", nil, fmt.Errorf("failed to cancel booking %s: %w: %v", booking.PNR, models.ErrPaymentNotApplied, err)
		}

		failed := models.NewPaymentAudit(models.PaymentEventFailed, source).
			ForBooking(updated).
			SetPaymentStatus(string(status))
		s.audit.Record(ctx, failed, meta)
		s.publish(ctx, models.BookingEventCancelled, updated)
		return models.CallbackCancelled, updated, nil
	}

	// pending or unknown: acknowledged, nothing to change
	return models.CallbackIgnored, booking, nil
}

// paymentMethodFor maps the provider's payment system name onto our methods
func paymentMethodFor(system string) *models.PaymentMethod {
	system = strings.ToLower(system)
	var method models.PaymentMethod
	switch {
	case strings.Contains(system, "airtel"):
		method = models.PaymentMethodAirtel
	case strings.Contains(system, "moov"):
		method = models.PaymentMethodMoov
	case strings.Contains(system, "visa"), strings.Contains(system, "card"), strings.Contains(system, "master"):
		method = models.PaymentMethodCard
	default:
		return nil
	}
	return &method
}

// ============================================================================
// PASSENGER DASHBOARD
// ============================================================================

// GetBooking returns a booking the caller owns
func (s *BookingOrchestratorService) GetBooking(ctx context.Context, identity *models.Identity, pnr string) (*models.Booking, error) {
	booking, err := s.ledger.FindByPNR(ctx, pnr)
	if err != nil {
		return nil, err
	}
	if !booking.IsOwnedBy(identity) && !identity.HasRole("admin") {
		return nil, models.ErrNotOwner
	}
	return booking, nil
}

// ListMyBookings returns the caller's bookings, newest first
func (s *BookingOrchestratorService) ListMyBookings(ctx context.Context, identity *models.Identity) ([]models.Booking, error) {
	return s.ledger.ListForOwner(ctx, identity)
}

// CancelBooking deletes a pending or cancelled booking the caller owns and
// frees its seat. Confirmed bookings must go through support.
func (s *BookingOrchestratorService) CancelBooking(ctx context.Context, identity *models.Identity, pnr string) error {
	booking, err := s.GetBooking(ctx, identity, pnr)
	if err != nil {
		return err
	}
	if err := s.ledger.Delete(ctx, booking); err != nil {
		return err
	}
	if booking.IdempotencyKey != nil {
		if err := s.cache.Delete(ctx, *booking.IdempotencyKey); err != nil {
			s.logger.WithError(err).WithField("pnr", booking.PNR).Warn("Failed to evict cached booking result")
		}
	}
	if booking.Status == models.BookingStatusPending {
		booking.Status = models.BookingStatusCancelled
		booking.PaymentStatus = models.PaymentStatusCancelled
		s.publish(ctx, models.BookingEventCancelled, booking)
	}
	return nil
}

// TicketDetails returns a confirmed booking and its trip for e-ticket rendering
func (s *BookingOrchestratorService) TicketDetails(ctx context.Context, pnr string) (*models.Booking, *models.TripDetails, error) {
	booking, err := s.ledger.FindByPNR(ctx, pnr)
	if err != nil {
		return nil, nil, err
	}
	if booking.Status != models.BookingStatusConfirmed {
		return nil, nil, models.ErrTicketUnavailable
	}
	trip, err := s.trip(ctx, booking.TripID)
	if err != nil {
		return nil, nil, err
	}
	return booking, trip, nil
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *BookingOrchestratorService) trip(ctx context.Context, id int64) (*models.TripDetails, error) {
	trip, err := s.trips.GetDetails(ctx, id)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, models.ErrTripNotFound
	}
	return trip, nil
}

// publish sends a lifecycle event. Delivery failures are logged only: the
// ledger has already committed.
func (s *BookingOrchestratorService) publish(ctx context.Context, eventType models.BookingEventType, b *models.Booking) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.events.PublishJSON(pctx, string(eventType), models.NewBookingEvent(eventType, b)); err != nil {
		s.logger.WithFields(logrus.Fields{
			"event": eventType,
			"pnr":   b.PNR,
			"error": err.Error(),
		}).Warn("Failed to publish booking event")
	}
}
