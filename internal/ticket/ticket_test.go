package ticket

import (
	"bytes"
	"testing"
	"time"

	"github.com/setrag/rail-booking-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func confirmedBooking() (*models.Booking, *models.TripDetails) {
	txn := "AM-889"
	paidAt := time.Date(2026, 3, 15, 8, 30, 0, 0, time.UTC)
	b := &models.Booking{
		PNR:           "0LZ3K9X2AB7QH4M2N8P5R1T6W9",
		SeatNo:        "7B",
		Class:         models.SeatClassFirst,
		Passengers:    1,
		Amount:        39375,
		Status:        models.BookingStatusConfirmed,
		PaymentStatus: models.PaymentStatusPaid,
		PassengerName: "Jean Mba",
		TransactionID: &txn,
		PaidAt:        &paidAt,
	}
	trip := &models.TripDetails{
		Trip: models.Trip{
			DepartureTime: time.Date(2026, 3, 20, 6, 0, 0, 0, time.UTC),
			ArrivalTime:   time.Date(2026, 3, 20, 20, 0, 0, 0, time.UTC),
		},
		OriginName:      "Owendo",
		DestinationName: "Franceville",
	}
	return b, trip
}

func TestRender(t *testing.T) {
	t.Run("Confirmed booking", func(t *testing.T) {
		b, trip := confirmedBooking()

		pdf, name, err := Render(b, trip)
		require.NoError(t, err)
		assert.Equal(t, "SETRAG_0LZ3K9X2AB7QH4M2N8P5R1T6W9.pdf", name)
		assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))
	})

	t.Run("Pending booking has no ticket", func(t *testing.T) {
		b, trip := confirmedBooking()
		b.Status = models.BookingStatusPending

		_, _, err := Render(b, trip)
		assert.ErrorIs(t, err, models.ErrTicketUnavailable)
	})
}

func TestLines(t *testing.T) {
	b, trip := confirmedBooking()
	lines := Lines(b, trip)

	assert.Contains(t, lines, "Trajet        : Owendo -> Franceville")
	assert.Contains(t, lines, "Départ        : 20/03/2026 07:00")
	assert.Contains(t, lines, "Classe        : 1ère classe")
	assert.Contains(t, lines, "Siège         : 7B")
	assert.Contains(t, lines, "Montant payé  : 39 375 FCFA")
	assert.Contains(t, lines, "Transaction   : AM-889")

	b.TransactionID = nil
	b.PaidAt = nil
	assert.Len(t, Lines(b, trip), 8)
}

func TestFormatXAF(t *testing.T) {
	tests := map[float64]string{
		0:       "0 FCFA",
		500:     "500 FCFA",
		5250:    "5 250 FCFA",
		26250:   "26 250 FCFA",
		1050000: "1 050 000 FCFA",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatXAF(in))
	}
}
