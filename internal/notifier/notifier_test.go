package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"testing"
	"time"

	"github.com/setrag/rail-booking-backend/internal/models"
	"github.com/setrag/rail-booking-backend/pkg/mq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "gopkg.in/gomail.v2"
)

type capturingSender struct {
	sent []*gomail.Message
	err  error
}

func (s *capturingSender) Send(msg *gomail.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

type stubBookings map[string]*models.Booking

func (s stubBookings) FindByPNR(ctx context.Context, pnr string) (*models.Booking, error) {
	if b, ok := s[pnr]; ok {
		return b, nil
	}
	return nil, models.ErrBookingNotFound
}

type stubTrips map[int64]*models.TripDetails

func (s stubTrips) GetDetails(ctx context.Context, id int64) (*models.TripDetails, error) {
	return s[id], nil
}

const testPNR = "0LZ3K9X2AB7QH4M2N8P5R1T6W9"

func newTestNotifier(sender *capturingSender, status models.BookingStatus) *Notifier {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	bookings := stubBookings{testPNR: {
		PNR:           testPNR,
		TripID:        1,
		SeatNo:        "1A",
		Class:         models.SeatClassSecond,
		Passengers:    1,
		Amount:        26250,
		Status:        status,
		PassengerName: "Jean Mba",
	}}
	trips := stubTrips{1: {
		Trip:            models.Trip{ID: 1, DepartureTime: time.Date(2026, 3, 20, 6, 0, 0, 0, time.UTC)},
		OriginName:      "Owendo",
		DestinationName: "Franceville",
	}}
	return NewNotifier(NewMailer("SETRAG <no-reply@setrag.ga>", sender), bookings, trips, logger)
}

// subject returns the decoded Subject header; gomail stores it RFC 2047 encoded
func subject(t *testing.T, msg *gomail.Message) string {
	t.Helper()
	values := msg.GetHeader("Subject")
	require.Len(t, values, 1)
	decoded, err := new(mime.WordDecoder).DecodeHeader(values[0])
	require.NoError(t, err)
	return decoded
}

func eventBody(t *testing.T, eventType models.BookingEventType, status models.BookingStatus) []byte {
	t.Helper()
	body, err := json.Marshal(models.BookingEvent{
		Event:          eventType,
		PNR:            testPNR,
		SeatNo:         "1A",
		Amount:         26250,
		Status:         status,
		PaymentStatus:  models.PaymentStatusPending,
		PassengerName:  "Jean Mba",
		PassengerEmail: "jean@example.ga",
	})
	require.NoError(t, err)
	return body
}

func rendered(t *testing.T, msg *gomail.Message) string {
	t.Helper()
	var buf bytes.Buffer
	_, err := msg.WriteTo(&buf)
	require.NoError(t, err)
	return buf.String()
}

func TestNotifierHandle(t *testing.T) {
	ctx := context.Background()

	t.Run("Created booking", func(t *testing.T) {
		sender := &capturingSender{}
		n := newTestNotifier(sender, models.BookingStatusPending)

		err := n.Handle(ctx, "booking.created", eventBody(t, models.BookingEventCreated, models.BookingStatusPending))
		require.NoError(t, err)
		require.Len(t, sender.sent, 1)
		assert.Equal(t, []string{"jean@example.ga"}, sender.sent[0].GetHeader("To"))
		assert.Contains(t, subject(t, sender.sent[0]), testPNR)
	})

	t.Run("Simulated booking only gets the confirmation", func(t *testing.T) {
		sender := &capturingSender{}
		n := newTestNotifier(sender, models.BookingStatusConfirmed)

		err := n.Handle(ctx, "booking.created", eventBody(t, models.BookingEventCreated, models.BookingStatusConfirmed))
		require.NoError(t, err)
		assert.Empty(t, sender.sent)
	})

	t.Run("Confirmed booking gets the ticket attached", func(t *testing.T) {
		sender := &capturingSender{}
		n := newTestNotifier(sender, models.BookingStatusConfirmed)

		err := n.Handle(ctx, "booking.confirmed", eventBody(t, models.BookingEventConfirmed, models.BookingStatusConfirmed))
		require.NoError(t, err)
		require.Len(t, sender.sent, 1)
		assert.Contains(t, rendered(t, sender.sent[0]), "SETRAG_"+testPNR+".pdf")
	})

	t.Run("Cancelled booking", func(t *testing.T) {
		sender := &capturingSender{}
		n := newTestNotifier(sender, models.BookingStatusCancelled)

		err := n.Handle(ctx, "booking.cancelled", eventBody(t, models.BookingEventCancelled, models.BookingStatusCancelled))
		require.NoError(t, err)
		require.Len(t, sender.sent, 1)
		assert.Contains(t, subject(t, sender.sent[0]), "annulée")
	})

	t.Run("Unknown event is skipped", func(t *testing.T) {
		sender := &capturingSender{}
		n := newTestNotifier(sender, models.BookingStatusPending)

		err := n.Handle(ctx, "booking.refunded", eventBody(t, "booking.refunded", models.BookingStatusPending))
		require.NoError(t, err)
		assert.Empty(t, sender.sent)
	})
}

func TestNotifierHandleFailures(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		status    models.BookingStatus
		body      []byte
		senderErr error
		malformed bool
	}{
		{"Not JSON", models.BookingStatusPending, []byte("{"), nil, true},
		{"No email", models.BookingStatusPending, []byte(`{"event":"booking.created","pnr":"X"}`), nil, true},
		{"Ticket for an unconfirmed booking", models.BookingStatusPending, nil, nil, true},
		{"SMTP outage is retried", models.BookingStatusConfirmed, nil, errors.New("dial tcp: connection refused"), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n := newTestNotifier(&capturingSender{err: tc.senderErr}, tc.status)
			body := tc.body
			if body == nil {
				body = eventBody(t, models.BookingEventConfirmed, models.BookingStatusConfirmed)
			}

			err := n.Handle(ctx, "booking.confirmed", body)
			require.Error(t, err)
			assert.Equal(t, tc.malformed, errors.Is(err, mq.ErrMalformed))
		})
	}
}
