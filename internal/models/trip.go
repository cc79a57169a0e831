package models

import (
	"errors"
	"fmt"
	"time"
)

// Trip is a scheduled departure between two stations
type Trip struct {
	ID                   int64     `json:"id" db:"id"`
	OriginStationID      int64     `json:"origin_station_id" db:"origin_station_id"`
	DestinationStationID int64     `json:"destination_station_id" db:"destination_station_id"`
	DepartureTime        time.Time `json:"departure_time" db:"departure_time"`
	ArrivalTime          time.Time `json:"arrival_time" db:"arrival_time"`
	PriceSecondClass     *float64  `json:"price_second_class,omitempty" db:"price_second_class"`
	PriceFirstClass      *float64  `json:"price_first_class,omitempty" db:"price_first_class"`
	PriceVIP             *float64  `json:"price_vip,omitempty" db:"price_vip"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time `json:"updated_at" db:"updated_at"`
}

// TripDetails is a trip joined with its station names
type TripDetails struct {
	Trip
	OriginName      string `json:"origin_name" db:"origin_name"`
	DestinationName string `json:"destination_name" db:"destination_name"`
}

// RouteKey returns "Origin-Destination", the key used by the fare tables
func (t *TripDetails) RouteKey() string {
	return t.OriginName + "-" + t.DestinationName
}

// PriceOverride returns the trip-specific price for a class, if one is set
func (t *Trip) PriceOverride(class SeatClass) (float64, bool) {
	var p *float64
	switch class {
	case SeatClassSecond:
		p = t.PriceSecondClass
	case SeatClassFirst:
		p = t.PriceFirstClass
	case SeatClassVIP:
		p = t.PriceVIP
	}
	if p == nil || *p <= 0 {
		return 0, false
	}
	return *p, true
}

// TripFilter narrows trip listings
type TripFilter struct {
	OriginStationID      *int64
	DestinationStationID *int64
	Date                 *time.Time
	From                 time.Time
	Limit                int
}

// CreateTripRequest is the admin payload for scheduling a trip
type CreateTripRequest struct {
	OriginStationID      int64     `json:"origin_station_id" binding:"required"`
	DestinationStationID int64     `json:"destination_station_id" binding:"required"`
	DepartureTime        time.Time `json:"departure_time" binding:"required"`
	ArrivalTime          time.Time `json:"arrival_time" binding:"required"`
	PriceSecondClass     *float64  `json:"price_second_class,omitempty"`
	PriceFirstClass      *float64  `json:"price_first_class,omitempty"`
	PriceVIP             *float64  `json:"price_vip,omitempty"`
	SeatCount            int       `json:"seat_count,omitempty"`
}

// Bounds an admin may set on a trip
const (
	MaxTripSeats = 500
	MinVIPPrice  = 45000.0
	MaxVIPPrice  = 100000.0
)

// Validate checks the trip invariants
func (r *CreateTripRequest) Validate() error {
	if err := validateSchedule(r.OriginStationID, r.DestinationStationID, r.DepartureTime, r.ArrivalTime); err != nil {
		return err
	}
	if r.SeatCount < 0 || r.SeatCount > MaxTripSeats {
		return fmt.Errorf("seat_count must be between 0 and %d", MaxTripSeats)
	}
	return validatePrices(r.PriceSecondClass, r.PriceFirstClass, r.PriceVIP)
}

// ToTrip converts the request into a Trip record
func (r *CreateTripRequest) ToTrip() *Trip {
	return &Trip{
		OriginStationID:      r.OriginStationID,
		DestinationStationID: r.DestinationStationID,
		DepartureTime:        r.DepartureTime,
		ArrivalTime:          r.ArrivalTime,
		PriceSecondClass:     r.PriceSecondClass,
		PriceFirstClass:      r.PriceFirstClass,
		PriceVIP:             r.PriceVIP,
	}
}

// UpdateTripRequest is the admin payload for rescheduling a trip and
// resizing its seat map
type UpdateTripRequest struct {
	OriginStationID      int64     `json:"origin_station_id" binding:"required"`
	DestinationStationID int64     `json:"destination_station_id" binding:"required"`
	DepartureTime        time.Time `json:"departure_time" binding:"required"`
	ArrivalTime          time.Time `json:"arrival_time" binding:"required"`
	PriceSecondClass     *float64  `json:"price_second_class,omitempty"`
	PriceFirstClass      *float64  `json:"price_first_class,omitempty"`
	PriceVIP             *float64  `json:"price_vip,omitempty"`
	SeatCount            int       `json:"seat_count" binding:"required"`
}

// Validate checks the trip invariants
func (r *UpdateTripRequest) Validate() error {
	if err := validateSchedule(r.OriginStationID, r.DestinationStationID, r.DepartureTime, r.ArrivalTime); err != nil {
		return err
	}
	if r.SeatCount < 1 || r.SeatCount > MaxTripSeats {
		return fmt.Errorf("seat_count must be between 1 and %d", MaxTripSeats)
	}
	return validatePrices(r.PriceSecondClass, r.PriceFirstClass, r.PriceVIP)
}

// ToTrip converts the request into the trip's new state. A zero price clears
// the override.
func (r *UpdateTripRequest) ToTrip(id int64) *Trip {
	return &Trip{
		ID:                   id,
		OriginStationID:      r.OriginStationID,
		DestinationStationID: r.DestinationStationID,
		DepartureTime:        r.DepartureTime,
		ArrivalTime:          r.ArrivalTime,
		PriceSecondClass:     nonZero(r.PriceSecondClass),
		PriceFirstClass:      nonZero(r.PriceFirstClass),
		PriceVIP:             nonZero(r.PriceVIP),
	}
}

func validateSchedule(origin, destination int64, departure, arrival time.Time) error {
	if origin == destination {
		return errors.New("origin and destination must differ")
	}
	if !arrival.After(departure) {
		return errors.New("arrival_time must be after departure_time")
	}
	return nil
}

func validatePrices(second, first, vip *float64) error {
	prices := []struct {
		name  string
		value *float64
	}{{"price_second_class", second}, {"price_first_class", first}, {"price_vip", vip}}
	for _, p := range prices {
		if p.value != nil && *p.value < 0 {
			return fmt.Errorf("%s cannot be negative", p.name)
		}
	}
	if vip != nil && *vip > 0 && (*vip < MinVIPPrice || *vip > MaxVIPPrice) {
		return fmt.Errorf("price_vip must be between %.0f and %.0f", MinVIPPrice, MaxVIPPrice)
	}
	return nil
}

func nonZero(p *float64) *float64 {
	if p == nil || *p == 0 {
		return nil
	}
	return p
}
