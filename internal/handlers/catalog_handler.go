package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/setrag/rail-booking-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// StationLister lists the line's stations
type StationLister interface {
	List(ctx context.Context) ([]models.Station, error)
}

// TripCatalog reads and maintains scheduled trips
type TripCatalog interface {
	List(ctx context.Context, filter models.TripFilter) ([]models.TripDetails, error)
	GetDetails(ctx context.Context, id int64) (*models.TripDetails, error)
	Create(ctx context.Context, trip *models.Trip) error
	Update(ctx context.Context, trip *models.Trip, seatCount int) (*models.SeatResize, error)
	Delete(ctx context.Context, id int64) error
}

// SeatSeeder lays out a trip's seats
type SeatSeeder interface {
	Seed(ctx context.Context, tripID int64, count int) ([]models.Seat, error)
}

// CatalogHandler serves stations and trips
type CatalogHandler struct {
	stations         StationLister
	trips            TripCatalog
	seats            SeatSeeder
	defaultSeatCount int
	logger           *logrus.Logger
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(
	stations StationLister,
	trips TripCatalog,
	seats SeatSeeder,
	defaultSeatCount int,
	logger *logrus.Logger,
) *CatalogHandler {
	return &CatalogHandler{
		stations:         stations,
		trips:            trips,
		seats:            seats,
		defaultSeatCount: defaultSeatCount,
		logger:           logger,
	}
}

// ListStations handles GET /api/v1/stations
func (h *CatalogHandler) ListStations(c *gin.Context) {
	stations, err := h.stations.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stations": stations, "count": len(stations)})
}

// ListTrips handles GET /api/v1/trips?from=&to=&date=YYYY-MM-DD&limit=
func (h *CatalogHandler) ListTrips(c *gin.Context) {
	filter := models.TripFilter{From: time.Now()}

	var err error
	if filter.OriginStationID, err = optionalID(c.Query("from")); err != nil {
		badRequest(c, "from must be a station id")
		return
	}
	if filter.DestinationStationID, err = optionalID(c.Query("to")); err != nil {
		badRequest(c, "to must be a station id")
		return
	}
	if filter.Date, err = models.ParseDate(c.Query("date")); err != nil {
		badRequest(c, "date must be YYYY-MM-DD")
		return
	}
	if filter.Date != nil && filter.Date.After(filter.From) {
		filter.From = *filter.Date
	}
	if limit := c.Query("limit"); limit != "" {
		if filter.Limit, err = strconv.Atoi(limit); err != nil {
			badRequest(c, "limit must be a number")
			return
		}
	}

	trips, err := h.trips.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trips": trips, "count": len(trips)})
}

// GetTrip handles GET /api/v1/trips/:id
func (h *CatalogHandler) GetTrip(c *gin.Context) {
	id, ok := tripIDParam(c)
	if !ok {
		return
	}

	trip, err := h.trips.GetDetails(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if trip == nil {
		respondError(c, h.logger, models.ErrTripNotFound)
		return
	}
	c.JSON(http.StatusOK, trip)
}

// ============================================================================
// ADMIN
// ============================================================================

// CreateTrip handles POST /api/v1/admin/trips and seeds the new trip's seats
func (h *CatalogHandler) CreateTrip(c *gin.Context) {
	var req models.CreateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	trip := req.ToTrip()
	if err := h.trips.Create(ctx, trip); err != nil {
		respondError(c, h.logger, err)
		return
	}

	count := req.SeatCount
	if count == 0 {
		count = h.defaultSeatCount
	}
	seats, err := h.seats.Seed(ctx, trip.ID, count)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"trip_id":   trip.ID,
		"departure": trip.DepartureTime,
		"seats":     len(seats),
	}).Info("Trip created")

	c.JSON(http.StatusCreated, gin.H{"trip": trip, "seats": len(seats)})
}

// UpdateTrip handles PUT /api/v1/admin/trips/:id. The seat map is grown or
// shrunk to seat_count along with the trip.
func (h *CatalogHandler) UpdateTrip(c *gin.Context) {
	id, ok := tripIDParam(c)
	if !ok {
		return
	}

	var req models.UpdateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	trip := req.ToTrip(id)
	resize, err := h.trips.Update(c.Request.Context(), trip, req.SeatCount)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"trip_id":       id,
		"seats_before":  resize.Before,
		"seats_after":   resize.After,
		"seats_added":   resize.Added,
		"seats_removed": resize.Removed,
	}).Info("Trip updated")

	c.JSON(http.StatusOK, gin.H{"trip": trip, "seats": resize})
}

// DeleteTrip handles DELETE /api/v1/admin/trips/:id
func (h *CatalogHandler) DeleteTrip(c *gin.Context) {
	id, ok := tripIDParam(c)
	if !ok {
		return
	}
	if err := h.trips.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.WithField("trip_id", id).Info("Trip deleted")
	c.JSON(http.StatusOK, gin.H{"message": "Trip deleted"})
}

func tripIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid trip id")
		return 0, false
	}
	return id, true
}

func optionalID(raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
