package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/setrag/rail-booking-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// SeatInventory is the seat state machine exposed over HTTP
type SeatInventory interface {
	SeatSeeder
	List(ctx context.Context, tripID int64) ([]models.Seat, error)
	Availability(ctx context.Context, tripID int64) ([]models.SeatAvailability, error)
	Allocate(ctx context.Context, tripID int64, class *models.SeatClass, holdMinutes int) (*models.Seat, error)
	Confirm(ctx context.Context, tripID int64, seatNo string) (*models.Seat, error)
	Release(ctx context.Context, tripID int64, seatNo string) (*models.Seat, error)
}

// SeatHandler serves a trip's seats
type SeatHandler struct {
	inventory SeatInventory
	logger    *logrus.Logger
}

// NewSeatHandler creates a new SeatHandler
func NewSeatHandler(inventory SeatInventory, logger *logrus.Logger) *SeatHandler {
	return &SeatHandler{inventory: inventory, logger: logger}
}

// ListSeats handles GET /api/v1/trips/:id/seats
func (h *SeatHandler) ListSeats(c *gin.Context) {
	tripID, ok := tripIDParam(c)
	if !ok {
		return
	}
	seats, err := h.inventory.List(c.Request.Context(), tripID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trip_id": tripID, "seats": seats, "count": len(seats)})
}

// Availability handles GET /api/v1/trips/:id/availability
func (h *SeatHandler) Availability(c *gin.Context) {
	tripID, ok := tripIDParam(c)
	if !ok {
		return
	}
	counts, err := h.inventory.Availability(c.Request.Context(), tripID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	available := 0
	for _, a := range counts {
		available += a.Available
	}
	c.JSON(http.StatusOK, gin.H{"trip_id": tripID, "classes": counts, "available": available})
}

// Seed handles POST /api/v1/trips/:id/seats/seed
func (h *SeatHandler) Seed(c *gin.Context) {
	tripID, ok := tripIDParam(c)
	if !ok {
		return
	}

	var req models.SeedSeatsRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request: "+err.Error())
			return
		}
	}

	seats, err := h.inventory.Seed(c.Request.Context(), tripID, req.Count)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trip_id": tripID, "seats": seats, "count": len(seats)})
}

// Allocate handles POST /api/v1/trips/:id/seats/allocate
func (h *SeatHandler) Allocate(c *gin.Context) {
	tripID, ok := tripIDParam(c)
	if !ok {
		return
	}

	var req models.AllocateSeatRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	if req.Class != nil && !req.Class.IsValid() {
		respondError(c, h.logger, &models.ValidationError{Field: "class", Message: "class must be one of second_class, first_class, VIP"})
		return
	}

	seat, err := h.inventory.Allocate(c.Request.Context(), tripID, req.Class, req.HoldMinutes)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, seat)
}

// Confirm handles POST /api/v1/trips/:id/seats/:seatNo/confirm
func (h *SeatHandler) Confirm(c *gin.Context) {
	h.transition(c, h.inventory.Confirm)
}

// Release handles POST /api/v1/trips/:id/seats/:seatNo/release
func (h *SeatHandler) Release(c *gin.Context) {
	h.transition(c, h.inventory.Release)
}

func (h *SeatHandler) transition(c *gin.Context, apply func(context.Context, int64, string) (*models.Seat, error)) {
	tripID, ok := tripIDParam(c)
	if !ok {
		return
	}
	seatNo := strings.ToUpper(strings.TrimSpace(c.Param("seatNo")))
	if seatNo == "" {
		badRequest(c, "seat number is required")
		return
	}

	seat, err := apply(c.Request.Context(), tripID, seatNo)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, seat)
}
