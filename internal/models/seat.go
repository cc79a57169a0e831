package models

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// SeatStatus represents the state of a seat on a trip
type SeatStatus string

const (
	SeatStatusAvailable SeatStatus = "AVAILABLE"
	SeatStatusHeld      SeatStatus = "HELD"
	SeatStatusSold      SeatStatus = "SOLD"
)

// SeatClass represents the travel class of a seat
type SeatClass string

const (
	SeatClassSecond SeatClass = "second_class"
	SeatClassFirst  SeatClass = "first_class"
	SeatClassVIP    SeatClass = "VIP"
)

// IsValid reports whether the class is one of the known classes
func (c SeatClass) IsValid() bool {
	switch c {
	case SeatClassSecond, SeatClassFirst, SeatClassVIP:
		return true
	}
	return false
}

// Suffix returns the seat-number suffix used for the class
func (c SeatClass) Suffix() string {
	switch c {
	case SeatClassFirst:
		return "B"
	case SeatClassVIP:
		return "V"
	default:
		return "A"
	}
}

// Label returns a human-readable class name
func (c SeatClass) Label() string {
	switch c {
	case SeatClassVIP:
		return "VIP"
	case SeatClassFirst:
		return "1ère classe"
	case SeatClassSecond:
		return "2ème classe"
	default:
		return string(c)
	}
}

// Seat is a single seat on a trip
type Seat struct {
	ID            int64      `json:"id" db:"id"`
	TripID        int64      `json:"trip_id" db:"trip_id"`
	SeatNo        string     `json:"seat_no" db:"seat_no"`
	Class         SeatClass  `json:"class" db:"class"`
	Status        SeatStatus `json:"status" db:"status"`
	HoldExpiresAt *time.Time `json:"hold_expires_at,omitempty" db:"hold_expires_at"`
	HoldToken     *uuid.UUID `json:"-" db:"hold_token"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// IsAllocatable reports whether the seat can be claimed at the given instant.
// A HELD seat whose hold has lapsed counts as available.
func (s *Seat) IsAllocatable(now time.Time) bool {
	switch s.Status {
	case SeatStatusAvailable:
		return true
	case SeatStatusHeld:
		return s.HoldExpiresAt == nil || s.HoldExpiresAt.Before(now)
	}
	return false
}

// SeatHoldRequest describes a seat claim
type SeatHoldRequest struct {
	TripID      int64
	Class       *SeatClass
	HoldMinutes int
}

// SeatAvailability counts seats per class for a trip.
// Lapsed holds are counted as available.
type SeatAvailability struct {
	Class     SeatClass `json:"class" db:"class"`
	Total     int       `json:"total" db:"total"`
	Available int       `json:"available" db:"available"`
	Held      int       `json:"held" db:"held"`
	Sold      int       `json:"sold" db:"sold"`
}

// SeatDistribution returns how many seats of each class a trip of the given size gets:
// 60% second class, 30% first class and the remainder VIP.
func SeatDistribution(count int) (second, first, vip int) {
	second = count * 60 / 100
	first = count * 30 / 100
	vip = count - second - first
	return second, first, vip
}

// LayoutSeats lays out count AVAILABLE seats numbered from firstNo upward:
// second class first, then first class, then VIP, each with its class suffix.
func LayoutSeats(tripID int64, firstNo, count int) []Seat {
	second, first, vip := SeatDistribution(count)
	seats := make([]Seat, 0, count)

	n := firstNo
	add := func(class SeatClass, qty int) {
		for i := 0; i < qty; i++ {
			seats = append(seats, Seat{
				TripID: tripID,
				SeatNo: strconv.Itoa(n) + class.Suffix(),
				Class:  class,
				Status: SeatStatusAvailable,
			})
			n++
		}
	}
	add(SeatClassSecond, second)
	add(SeatClassFirst, first)
	add(SeatClassVIP, vip)
	return seats
}

// SeatResize reports how an admin resize changed a trip's seat map
type SeatResize struct {
	Before  int `json:"before"`
	After   int `json:"after"`
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// AllocateSeatRequest is the HTTP payload for a manual seat hold
type AllocateSeatRequest struct {
	Class       *SeatClass `json:"class,omitempty"`
	HoldMinutes int        `json:"hold_minutes,omitempty"`
}

// SeedSeatsRequest is the HTTP payload for seeding a trip's seats
type SeedSeatsRequest struct {
	Count int `json:"count,omitempty"`
}
