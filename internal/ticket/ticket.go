package ticket

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"
	"github.com/setrag/rail-booking-backend/internal/models"
)

// libreville is West Africa Time; Gabon has no daylight saving
var libreville = time.FixedZone("WAT", 60*60)

// Render builds the PDF e-ticket of a confirmed booking and its file name
func Render(b *models.Booking, trip *models.TripDetails) ([]byte, string, error) {
	if b.Status != models.BookingStatusConfirmed {
		return nil, "", models.ErrTicketUnavailable
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("SETRAG E-Billet "+b.PNR, true)
	pdf.SetAuthor("SETRAG", true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, tr("SETRAG - BILLET ÉLECTRONIQUE"))
	pdf.Ln(12)

	pdf.SetFont("Courier", "B", 14)
	pdf.Cell(0, 8, "PNR "+b.PNR)
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	for _, line := range Lines(b, trip) {
		pdf.Cell(0, 7, tr(line))
		pdf.Ln(7)
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, tr("Billet valable pour le trajet et le siège indiqués. Présentez-le au contrôle avec une pièce d'identité."), "", "", false)

	if err := pdf.Error(); err != nil {
		return nil, "", fmt.Errorf("failed to render ticket: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", fmt.Errorf("failed to render ticket: %w", err)
	}
	return buf.Bytes(), fmt.Sprintf("SETRAG_%s.pdf", b.PNR), nil
}

// Lines returns the ticket body, one field per line
func Lines(b *models.Booking, trip *models.TripDetails) []string {
	lines := []string{
		fmt.Sprintf("Passager      : %s", safe(b.PassengerName, "-")),
		fmt.Sprintf("Trajet        : %s -> %s", safe(trip.OriginName, "-"), safe(trip.DestinationName, "-")),
		fmt.Sprintf("Départ        : %s", trip.DepartureTime.In(libreville).Format("02/01/2006 15:04")),
		fmt.Sprintf("Arrivée       : %s", trip.ArrivalTime.In(libreville).Format("02/01/2006 15:04")),
		fmt.Sprintf("Classe        : %s", b.Class.Label()),
		fmt.Sprintf("Siège         : %s", safe(b.SeatNo, "-")),
		fmt.Sprintf("Voyageurs     : %d", b.Passengers),
		fmt.Sprintf("Montant payé  : %s", FormatXAF(b.Amount)),
	}
	if b.TransactionID != nil {
		lines = append(lines, fmt.Sprintf("Transaction   : %s", *b.TransactionID))
	}
	if b.PaidAt != nil {
		lines = append(lines, fmt.Sprintf("Payé le       : %s", b.PaidAt.In(libreville).Format("02/01/2006 15:04")))
	}
	return lines
}

// FormatXAF formats an amount as "26 250 FCFA"
func FormatXAF(v float64) string {
	n := int64(v + 0.5)
	if n <= 0 {
		return "0 FCFA"
	}
	s := fmt.Sprintf("%d", n)
	var out []byte
	for i := 0; i < len(s); i++ {
		out = append(out, s[i])
		pos := len(s) - i - 1
		if pos > 0 && pos%3 == 0 {
			out = append(out, ' ')
		}
	}
	return string(out) + " FCFA"
}

func safe(v, fallback string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	return v
}
