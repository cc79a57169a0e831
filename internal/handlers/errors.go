package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/setrag/rail-booking-backend/internal/middleware"
	"github.com/setrag/rail-booking-backend/internal/models"
	"github.com/setrag/rail-booking-backend/internal/services"
	"github.com/sirupsen/logrus"
)

type errorResponse struct {
	err    error
	status int
	code   string
}

var errorResponses = []errorResponse{
	{models.ErrPaymentNotApplied, http.StatusInternalServerError, "PAYMENT_NOT_APPLIED"},
	{models.ErrTripNotFound, http.StatusNotFound, "TRIP_NOT_FOUND"},
	{models.ErrStationNotFound, http.StatusNotFound, "STATION_NOT_FOUND"},
	{models.ErrSeatNotFound, http.StatusNotFound, "SEAT_NOT_FOUND"},
	{models.ErrBookingNotFound, http.StatusNotFound, "BOOKING_NOT_FOUND"},
	{models.ErrNotOwner, http.StatusForbidden, "FORBIDDEN"},
	{models.ErrNoSeatsAvailable, http.StatusConflict, "NO_SEATS_AVAILABLE"},
	{models.ErrSeatNotConfirmable, http.StatusConflict, "SEAT_NOT_CONFIRMABLE"},
	{models.ErrSeatNotReleasable, http.StatusConflict, "SEAT_NOT_RELEASABLE"},
	{models.ErrTripHasBookings, http.StatusConflict, "TRIP_HAS_BOOKINGS"},
	{models.ErrSeatCountTooLow, http.StatusConflict, "SEAT_COUNT_TOO_LOW"},
	{models.ErrBookingConfirmed, http.StatusConflict, "BOOKING_CONFIRMED"},
	{models.ErrAlreadyConfirmed, http.StatusConflict, "BOOKING_CONFIRMED"},
	{models.ErrBookingNotPending, http.StatusConflict, "BOOKING_NOT_PENDING"},
	{models.ErrDuplicateIdempotencyKey, http.StatusConflict, "DUPLICATE_IDEMPOTENCY_KEY"},
	{models.ErrTicketUnavailable, http.StatusConflict, "TICKET_UNAVAILABLE"},
	{models.ErrUnaccompaniedChild, http.StatusBadRequest, "UNACCOMPANIED_CHILD"},
	{models.ErrInvalidCallback, http.StatusBadRequest, "INVALID_CALLBACK"},
}

// respondError maps a service error onto the HTTP error body
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "VALIDATION_ERROR",
			"message": ve.Message,
			"field":   ve.Field,
		})
		return
	}

	for _, r := range errorResponses {
		if errors.Is(err, r.err) {
			c.JSON(r.status, gin.H{"error": r.code, "message": r.err.Error()})
			return
		}
	}

	if pe, ok := services.AsProviderError(err); ok {
		respondProviderError(c, logger, pe)
		return
	}

	logger.WithFields(logrus.Fields{
		"path":       c.FullPath(),
		"request_id": middleware.GetRequestID(c),
	}).WithError(err).Error("Request failed")
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "INTERNAL_ERROR",
		"message": "An unexpected error occurred",
	})
}

func respondProviderError(c *gin.Context, logger *logrus.Logger, pe *services.ProviderError) {
	logger.WithFields(logrus.Fields{
		"kind":        pe.Kind,
		"status_code": pe.StatusCode,
	}).WithError(pe).Warn("Payment provider error")

	switch pe.Kind {
	case services.ProviderNotConfigured, services.ProviderAuth:
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "PAYMENT_CONFIGURATION_ERROR",
			"message": pe.Message,
		})
	case services.ProviderTimeout, services.ProviderTransport, services.ProviderUnavailable:
		c.Header("Retry-After", "30")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":     "PAYMENT_PROVIDER_UNAVAILABLE",
			"message":   pe.Message,
			"retryable": true,
		})
	default:
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "PAYMENT_REJECTED",
			"message": pe.Message,
		})
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST", "message": message})
}
