package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/setrag/rail-booking-backend/internal/models"
)

const tripDetailsSelect = `
	SELECT t.id, t.origin_station_id, t.destination_station_id, t.departure_time, t.arrival_time,
		t.price_second_class, t.price_first_class, t.price_vip, t.created_at, t.updated_at,
		o.name AS origin_name, d.name AS destination_name
	FROM trips t
	JOIN stations o ON o.id = t.origin_station_id
	JOIN stations d ON d.id = t.destination_station_id`

// TripRepository handles trip persistence
type TripRepository struct {
	db *sqlx.DB
}

// NewTripRepository creates a new TripRepository
func NewTripRepository(db *sqlx.DB) *TripRepository {
	return &TripRepository{db: db}
}

// GetDetails returns a trip with its station names, or nil if not found
func (r *TripRepository) GetDetails(ctx context.Context, id int64) (*models.TripDetails, error) {
	var trip models.TripDetails
	err := r.db.GetContext(ctx, &trip, tripDetailsSelect+` WHERE t.id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	return &trip, nil
}

// Exists reports whether a trip exists
func (r *TripRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM trips WHERE id = $1)`, id); err != nil {
		return false, fmt.Errorf("failed to check trip: %w", err)
	}
	return exists, nil
}

// List returns upcoming trips matching the filter, ordered by departure
func (r *TripRepository) List(ctx context.Context, filter models.TripFilter) ([]models.TripDetails, error) {
	conditions := []string{"t.departure_time >= ?"}
	args := []interface{}{filter.From}

	if filter.OriginStationID != nil {
		conditions = append(conditions, "t.origin_station_id = ?")
		args = append(args, *filter.OriginStationID)
	}
	if filter.DestinationStationID != nil {
		conditions = append(conditions, "t.destination_station_id = ?")
		args = append(args, *filter.DestinationStationID)
	}
	if filter.Date != nil {
		day := time.Date(filter.Date.Year(), filter.Date.Month(), filter.Date.Day(), 0, 0, 0, 0, filter.Date.Location())
		conditions = append(conditions, "t.departure_time >= ? AND t.departure_time < ?")
		args = append(args, day, day.Add(24*time.Hour))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)

	query := r.db.Rebind(tripDetailsSelect + ` WHERE ` + strings.Join(conditions, " AND ") +
		` ORDER BY t.departure_time, t.id LIMIT ?`)

	trips := []models.TripDetails{}
	if err := r.db.SelectContext(ctx, &trips, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	return trips, nil
}

// Create inserts a trip
func (r *TripRepository) Create(ctx context.Context, trip *models.Trip) error {
	query := `
		INSERT INTO trips (origin_station_id, destination_station_id, departure_time, arrival_time,
			price_second_class, price_first_class, price_vip)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		trip.OriginStationID, trip.DestinationStationID, trip.DepartureTime, trip.ArrivalTime,
		trip.PriceSecondClass, trip.PriceFirstClass, trip.PriceVIP,
	).Scan(&trip.ID, &trip.CreatedAt, &trip.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return models.ErrStationNotFound
		}
		return fmt.Errorf("failed to create trip: %w", err)
	}
	return nil
}

// Update rewrites the trip's schedule and prices and resizes its seat map to
// seatCount in the same transaction
func (r *TripRepository) Update(ctx context.Context, trip *models.Trip, seatCount int) (*models.SeatResize, error) {
	var resize *models.SeatResize
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
			UPDATE trips
			SET origin_station_id = $2, destination_station_id = $3, departure_time = $4, arrival_time = $5,
				price_second_class = $6, price_first_class = $7, price_vip = $8, updated_at = NOW()
			WHERE id = $1
			RETURNING created_at, updated_at`

		err := tx.QueryRowxContext(ctx, query,
			trip.ID, trip.OriginStationID, trip.DestinationStationID, trip.DepartureTime, trip.ArrivalTime,
			trip.PriceSecondClass, trip.PriceFirstClass, trip.PriceVIP,
		).Scan(&trip.CreatedAt, &trip.UpdatedAt)
		if err == sql.ErrNoRows {
			return models.ErrTripNotFound
		}
		if err != nil {
			if isForeignKeyViolation(err) {
				return models.ErrStationNotFound
			}
			return fmt.Errorf("failed to update trip: %w", err)
		}

		resize, err = resizeSeats(ctx, tx, trip.ID, seatCount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resize, nil
}

// FindOrCreate inserts the trip unless one already departs on the same route
// at the same time. Returns true if a new row was created.
func (r *TripRepository) FindOrCreate(ctx context.Context, trip *models.Trip) (bool, error) {
	query := `
		INSERT INTO trips (origin_station_id, destination_station_id, departure_time, arrival_time)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT ON CONSTRAINT trips_route_departure_key DO NOTHING
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		trip.OriginStationID, trip.DestinationStationID, trip.DepartureTime, trip.ArrivalTime,
	).Scan(&trip.ID, &trip.CreatedAt, &trip.UpdatedAt)
	if err == nil {
		return true, nil
	}
	if err != sql.ErrNoRows {
		return false, fmt.Errorf("failed to create trip: %w", err)
	}

	err = r.db.QueryRowxContext(ctx, `
		SELECT id, created_at, updated_at FROM trips
		WHERE origin_station_id = $1 AND destination_station_id = $2 AND departure_time = $3`,
		trip.OriginStationID, trip.DestinationStationID, trip.DepartureTime,
	).Scan(&trip.ID, &trip.CreatedAt, &trip.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to load existing trip: %w", err)
	}
	return false, nil
}

// ListIDsWithoutSeats returns trips that have not been seeded yet
func (r *TripRepository) ListIDsWithoutSeats(ctx context.Context) ([]int64, error) {
	ids := []int64{}
	query := `
		SELECT t.id FROM trips t
		WHERE NOT EXISTS (SELECT 1 FROM seats s WHERE s.trip_id = t.id)
		ORDER BY t.id`
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("failed to list unseeded trips: %w", err)
	}
	return ids, nil
}

// Delete removes a trip and its seats. Trips referenced by any booking are kept.
func (r *TripRepository) Delete(ctx context.Context, id int64) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var hasBookings bool
		if err := tx.GetContext(ctx, &hasBookings, `SELECT EXISTS(SELECT 1 FROM bookings WHERE trip_id = $1)`, id); err != nil {
			return fmt.Errorf("failed to check trip bookings: %w", err)
		}
		if hasBookings {
			return models.ErrTripHasBookings
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM trips WHERE id = $1`, id)
		if err != nil {
			if isForeignKeyViolation(err) {
				return models.ErrTripHasBookings
			}
			return fmt.Errorf("failed to delete trip: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return models.ErrTripNotFound
		}
		return nil
	})
}
