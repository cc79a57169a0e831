package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/setrag/rail-booking-backend/internal/models"
	"github.com/setrag/rail-booking-backend/internal/ticket"
	"github.com/setrag/rail-booking-backend/pkg/mq"
	"github.com/sirupsen/logrus"
)

// RoutingKeys are the booking events the notifier subscribes to
var RoutingKeys = []string{
	string(models.BookingEventCreated),
	string(models.BookingEventConfirmed),
	string(models.BookingEventCancelled),
}

// BookingSource loads a booking by reference
type BookingSource interface {
	FindByPNR(ctx context.Context, pnr string) (*models.Booking, error)
}

// TripSource loads trip details
type TripSource interface {
	GetDetails(ctx context.Context, id int64) (*models.TripDetails, error)
}

// Notifier emails passengers about their booking lifecycle
type Notifier struct {
	mailer   *Mailer
	bookings BookingSource
	trips    TripSource
	logger   *logrus.Logger
}

// NewNotifier creates a new Notifier
func NewNotifier(mailer *Mailer, bookings BookingSource, trips TripSource, logger *logrus.Logger) *Notifier {
	return &Notifier{
		mailer:   mailer,
		bookings: bookings,
		trips:    trips,
		logger:   logger,
	}
}

type emailView struct {
	PassengerName string
	PNR           string
	SeatNo        string
	Amount        string
	PaymentStatus models.PaymentStatus
}

// Handle processes one booking event delivery
func (n *Notifier) Handle(ctx context.Context, routingKey string, body []byte) error {
	var event models.BookingEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("decode booking event: %w", mq.ErrMalformed)
	}
	if event.PNR == "" || event.PassengerEmail == "" {
		return fmt.Errorf("booking event without pnr or email: %w", mq.ErrMalformed)
	}

	logger := n.logger.WithFields(logrus.Fields{
		"event": event.Event,
		"pnr":   event.PNR,
	})

	view := emailView{
		PassengerName: event.PassengerName,
		PNR:           event.PNR,
		SeatNo:        event.SeatNo,
		Amount:        ticket.FormatXAF(event.Amount),
		PaymentStatus: event.PaymentStatus,
	}

	var err error
	switch event.Event {
	case models.BookingEventCreated:
		if event.Status != models.BookingStatusPending {
			// simulated payments confirm at once; the confirmation mail covers it
			return nil
		}
		err = n.mailer.Send(event.PassengerEmail, "Réservation SETRAG "+event.PNR, bookingCreatedTemplate, view)
	case models.BookingEventConfirmed:
		err = n.sendTicket(ctx, event, view)
	case models.BookingEventCancelled:
		err = n.mailer.Send(event.PassengerEmail, "Réservation SETRAG annulée "+event.PNR, bookingCancelledTemplate, view)
	default:
		logger.Warn("Ignoring unknown booking event")
		return nil
	}

	if err != nil {
		logger.WithError(err).Error("Failed to notify passenger")
		return err
	}
	logger.Info("Passenger notified")
	return nil
}

func (n *Notifier) sendTicket(ctx context.Context, event models.BookingEvent, view emailView) error {
	booking, err := n.bookings.FindByPNR(ctx, event.PNR)
	if errors.Is(err, models.ErrBookingNotFound) {
		return fmt.Errorf("booking %s no longer exists: %w", event.PNR, mq.ErrMalformed)
	}
	if err != nil {
		return err
	}

	trip, err := n.trips.GetDetails(ctx, booking.TripID)
	if err != nil {
		return err
	}
	if trip == nil {
		return fmt.Errorf("trip %d of booking %s not found: %w", booking.TripID, event.PNR, mq.ErrMalformed)
	}

	pdf, name, err := ticket.Render(booking, trip)
	if errors.Is(err, models.ErrTicketUnavailable) {
		return fmt.Errorf("booking %s is %s: %w", event.PNR, booking.Status, mq.ErrMalformed)
	}
	if err != nil {
		return err
	}

	return n.mailer.Send(event.PassengerEmail, "Votre billet SETRAG "+event.PNR, bookingConfirmedTemplate, view, Attachment{Name: name, Content: pdf})
}
