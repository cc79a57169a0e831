package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/setrag/rail-booking-backend/internal/middleware"
	"github.com/setrag/rail-booking-backend/internal/models"
	"github.com/setrag/rail-booking-backend/internal/ticket"
	"github.com/sirupsen/logrus"
)

// IdempotencyKeyHeader may carry the idempotency key instead of the body
const IdempotencyKeyHeader = "Idempotency-Key"

// BookingFlow is the booking lifecycle behind the HTTP API
type BookingFlow interface {
	Quote(ctx context.Context, req models.QuoteRequest) (*models.PriceQuote, error)
	CreateBooking(ctx context.Context, identity *models.Identity, req *models.CreateBookingRequest, meta models.RequestMeta) (*models.BookingResult, error)
	HandleCallback(ctx context.Context, payload map[string]interface{}, meta models.RequestMeta) (*models.CallbackResult, error)
	CheckPaymentStatus(ctx context.Context, pnr string, meta models.RequestMeta) (*models.PaymentCheckResult, error)
	GetBooking(ctx context.Context, identity *models.Identity, pnr string) (*models.Booking, error)
	ListMyBookings(ctx context.Context, identity *models.Identity) ([]models.Booking, error)
	CancelBooking(ctx context.Context, identity *models.Identity, pnr string) error
	TicketDetails(ctx context.Context, pnr string) (*models.Booking, *models.TripDetails, error)
}

// BookingHandler handles quote, booking and ticket endpoints
type BookingHandler struct {
	bookings BookingFlow
	logger   *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(bookings BookingFlow, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{bookings: bookings, logger: logger}
}

// ============================================================================
// QUOTE - POST /api/v1/quote
// ============================================================================

// Quote prices a trip for a class and passenger profile
func (h *BookingHandler) Quote(c *gin.Context) {
	var req models.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	quote, err := h.bookings.Quote(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// ============================================================================
// CREATE BOOKING - POST /api/v1/bookings
// ============================================================================

// CreateBooking holds a seat and starts the payment. Guests may book; a
// signed-in caller's bookings are linked to their account. Replaying an
// idempotency key answers 200 with the original booking.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader(IdempotencyKeyHeader)
	}

	result, err := h.bookings.CreateBooking(c.Request.Context(), middleware.GetIdentity(c), &req, middleware.RequestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

// ============================================================================
// MY BOOKINGS
// ============================================================================

// ListMyBookings handles GET /api/v1/bookings
func (h *BookingHandler) ListMyBookings(c *gin.Context) {
	bookings, err := h.bookings.ListMyBookings(c.Request.Context(), middleware.GetIdentity(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "count": len(bookings)})
}

// GetBooking handles GET /api/v1/bookings/:pnr
func (h *BookingHandler) GetBooking(c *gin.Context) {
	booking, err := h.bookings.GetBooking(c.Request.Context(), middleware.GetIdentity(c), pnrParam(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// CancelBooking handles DELETE /api/v1/bookings/:pnr
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	pnr := pnrParam(c)
	if err := h.bookings.CancelBooking(c.Request.Context(), middleware.GetIdentity(c), pnr); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Booking deleted", "pnr": pnr})
}

// ============================================================================
// PAYMENT STATUS AND TICKET
// ============================================================================

// CheckPaymentStatus handles GET /api/v1/bookings/:pnr/status. A pending
// booking is reconciled against the provider before answering.
func (h *BookingHandler) CheckPaymentStatus(c *gin.Context) {
	result, err := h.bookings.CheckPaymentStatus(c.Request.Context(), pnrParam(c), middleware.RequestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Ticket handles GET /api/v1/bookings/:pnr/ticket and serves the PDF e-ticket
func (h *BookingHandler) Ticket(c *gin.Context) {
	booking, trip, err := h.bookings.TicketDetails(c.Request.Context(), pnrParam(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	pdf, name, err := ticket.Render(booking, trip)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func pnrParam(c *gin.Context) string {
	return strings.ToUpper(strings.TrimSpace(c.Param("pnr")))
}
