package models

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BookingStatus represents the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// PaymentStatus represents the payment state recorded on a booking
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusExpired   PaymentStatus = "expired"
)

// PassengerType drives the discount applied to a fare
type PassengerType string

const (
	PassengerTypeAdult   PassengerType = "adult"
	PassengerTypeStudent PassengerType = "student"
	PassengerTypeSenior  PassengerType = "senior"
	PassengerTypeChild   PassengerType = "child"
)

// IsValid reports whether the passenger type is one of the known types
func (p PassengerType) IsValid() bool {
	switch p {
	case PassengerTypeAdult, PassengerTypeStudent, PassengerTypeSenior, PassengerTypeChild:
		return true
	}
	return false
}

// PaymentMethod is how the passenger pays
type PaymentMethod string

const (
	PaymentMethodCard       PaymentMethod = "card"
	PaymentMethodAirtel     PaymentMethod = "airtel"
	PaymentMethodMoov       PaymentMethod = "moov"
	PaymentMethodSimulation PaymentMethod = "simulation"
)

// IsValid reports whether the method can be requested by a caller
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodAirtel, PaymentMethodMoov:
		return true
	}
	return false
}

// Booking is a passenger's reservation of one seat on a trip.
// SeatNo duplicates the seat's number for compatibility with historical records;
// SeatID is the authoritative reference.
type Booking struct {
	ID                 int64         `json:"id" db:"id"`
	PNR                string        `json:"pnr" db:"pnr"`
	TripID             int64         `json:"trip_id" db:"trip_id"`
	SeatID             *int64        `json:"seat_id,omitempty" db:"seat_id"`
	SeatNo             string        `json:"seat_no" db:"seat_no"`
	Class              SeatClass     `json:"class" db:"class"`
	PassengerType      PassengerType `json:"passenger_type" db:"passenger_type"`
	PassengerBirthDate *time.Time    `json:"passenger_birth_date,omitempty" db:"passenger_birth_date"`
	Passengers         int           `json:"passengers" db:"passengers"`
	BasePrice          float64       `json:"base_price" db:"base_price"`
	DiscountAmount     float64       `json:"discount_amount" db:"discount_amount"`
	Commission         float64       `json:"commission" db:"commission"`
	Amount             float64       `json:"amount" db:"amount"`
	Currency           string        `json:"currency" db:"currency"`
	Status             BookingStatus `json:"status" db:"status"`
	PaymentStatus      PaymentStatus `json:"payment_status" db:"payment_status"`
	IdempotencyKey     *string       `json:"idempotency_key,omitempty" db:"idempotency_key"`
	HoldToken          *uuid.UUID    `json:"-" db:"hold_token"`
	BillID             *string       `json:"bill_id,omitempty" db:"bill_id"`
	TransactionID      *string       `json:"transaction_id,omitempty" db:"transaction_id"`
	PaidAt             *time.Time    `json:"paid_at,omitempty" db:"paid_at"`
	PaymentMethod      *string       `json:"payment_method,omitempty" db:"payment_method"`
	PassengerName      string        `json:"passenger_name" db:"passenger_name"`
	PassengerEmail     string        `json:"passenger_email" db:"passenger_email"`
	PassengerPhone     *string       `json:"passenger_phone,omitempty" db:"passenger_phone"`
	UserID             *uuid.UUID    `json:"user_id,omitempty" db:"user_id"`
	CreatedAt          time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at" db:"updated_at"`
}

// IsDeletable reports whether the owner may remove the booking.
// Confirmed bookings must go through support.
func (b *Booking) IsDeletable() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusCancelled
}

// IsOwnedBy reports whether the identity may see or modify the booking.
// Guest bookings are matched on the passenger email.
func (b *Booking) IsOwnedBy(identity *Identity) bool {
	if identity == nil {
		return false
	}
	if b.UserID != nil && identity.UserID != uuid.Nil && *b.UserID == identity.UserID {
		return true
	}
	if identity.Email != "" && strings.EqualFold(b.PassengerEmail, identity.Email) {
		return true
	}
	return false
}

// ApplyQuote copies a price breakdown onto the booking
func (b *Booking) ApplyQuote(q *PriceQuote) {
	b.BasePrice = q.BasePrice
	b.DiscountAmount = q.DiscountAmount
	b.Commission = q.Commission
	b.Amount = q.TotalPrice
	b.Currency = q.Currency
	b.Class = q.Class
	b.PassengerType = q.PassengerType
	b.Passengers = q.Passengers
}

// Identity is the caller on whose behalf an operation runs.
// A nil *Identity is a guest.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Roles  []string
}

// HasRole reports whether the identity carries the role
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// CreateBookingRequest is the payload for creating a booking
type CreateBookingRequest struct {
	TripID             int64         `json:"trip_id" binding:"required"`
	Class              SeatClass     `json:"class" binding:"required"`
	PassengerType      PassengerType `json:"passenger_type"`
	PassengerBirthDate string        `json:"passenger_birth_date,omitempty"`
	Passengers         int           `json:"passengers"`
	PassengerName      string        `json:"passenger_name" binding:"required"`
	PassengerEmail     string        `json:"passenger_email" binding:"required"`
	PassengerPhone     string        `json:"passenger_phone,omitempty"`
	PaymentMethod      PaymentMethod `json:"payment_method" binding:"required"`
	IdempotencyKey     string        `json:"idempotency_key,omitempty"`
}

// Normalize applies request defaults
func (r *CreateBookingRequest) Normalize() {
	if r.PassengerType == "" {
		r.PassengerType = PassengerTypeAdult
	}
	if r.Passengers < 1 {
		r.Passengers = 1
	}
	r.PassengerName = strings.TrimSpace(r.PassengerName)
	r.PassengerEmail = strings.TrimSpace(r.PassengerEmail)
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
}

// Validate validates the create booking request
func (r *CreateBookingRequest) Validate() error {
	if r.TripID <= 0 {
		return &ValidationError{Field: "trip_id", Message: "trip_id is required"}
	}
	if !r.Class.IsValid() {
		return &ValidationError{Field: "class", Message: "class must be one of second_class, first_class, VIP"}
	}
	if !r.PassengerType.IsValid() {
		return &ValidationError{Field: "passenger_type", Message: "passenger_type must be one of adult, student, senior, child"}
	}
	if r.Passengers > 10 {
		return &ValidationError{Field: "passengers", Message: "passengers must be between 1 and 10"}
	}
	if r.PassengerName == "" || len(r.PassengerName) > 255 {
		return &ValidationError{Field: "passenger_name", Message: "passenger_name is required"}
	}
	if _, err := mail.ParseAddress(r.PassengerEmail); err != nil {
		return &ValidationError{Field: "passenger_email", Message: "passenger_email must be a valid email address"}
	}
	if !r.PaymentMethod.IsValid() {
		return &ValidationError{Field: "payment_method", Message: "payment_method must be one of card, airtel, moov"}
	}
	if len(r.IdempotencyKey) > 64 {
		return &ValidationError{Field: "idempotency_key", Message: "idempotency_key must be at most 64 characters"}
	}
	if _, err := r.BirthDate(); err != nil {
		return &ValidationError{Field: "passenger_birth_date", Message: "passenger_birth_date must be YYYY-MM-DD"}
	}
	if r.PassengerType == PassengerTypeChild && r.PassengerBirthDate == "" {
		return &ValidationError{Field: "passenger_birth_date", Message: "passenger_birth_date is required for children"}
	}
	return nil
}

// BirthDate parses the optional birth date
func (r *CreateBookingRequest) BirthDate() (*time.Time, error) {
	return ParseDate(r.PassengerBirthDate)
}

// ParseDate parses an optional YYYY-MM-DD date; the empty string yields nil
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, errors.New("invalid date")
	}
	return &d, nil
}

// BookingResult is what a caller gets back from booking creation
type BookingResult struct {
	PNR           string        `json:"pnr"`
	Amount        float64       `json:"amount"`
	Currency      string        `json:"currency"`
	Status        BookingStatus `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	SeatNo        string        `json:"seat_no,omitempty"`
	PaymentLink   string        `json:"payment_link,omitempty"`
	BillID        string        `json:"bill_id,omitempty"`
	Simulated     bool          `json:"simulated,omitempty"`
	Replayed      bool          `json:"replayed,omitempty"`
}

// NewBookingResult builds a result from a persisted booking
func NewBookingResult(b *Booking) *BookingResult {
	res := &BookingResult{
		PNR:           b.PNR,
		Amount:        b.Amount,
		Currency:      b.Currency,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		SeatNo:        b.SeatNo,
	}
	if b.BillID != nil {
		res.BillID = *b.BillID
	}
	return res
}

// PaymentCheckOutcome is the result of polling a booking's payment
type PaymentCheckOutcome string

const (
	PaymentCheckConfirmed    PaymentCheckOutcome = "confirmed"
	PaymentCheckFailed       PaymentCheckOutcome = "failed"
	PaymentCheckStillPending PaymentCheckOutcome = "still_pending"
)

// PaymentCheckResult reports a booking's payment state after a poll
type PaymentCheckResult struct {
	PNR           string              `json:"pnr"`
	Outcome       PaymentCheckOutcome `json:"outcome"`
	Status        BookingStatus       `json:"status"`
	PaymentStatus PaymentStatus       `json:"payment_status"`
	ProviderError string              `json:"provider_error,omitempty"`
}

// BookingEventType names a booking lifecycle event published to the broker
type BookingEventType string

const (
	BookingEventCreated   BookingEventType = "booking.created"
	BookingEventConfirmed BookingEventType = "booking.confirmed"
	BookingEventCancelled BookingEventType = "booking.cancelled"
)

// BookingEvent is the message body published for booking lifecycle events
type BookingEvent struct {
	Event          BookingEventType `json:"event"`
	Version        int              `json:"version"`
	OccurredAt     time.Time        `json:"occurred_at"`
	PNR            string           `json:"pnr"`
	TripID         int64            `json:"trip_id"`
	SeatNo         string           `json:"seat_no"`
	Class          SeatClass        `json:"class"`
	Amount         float64          `json:"amount"`
	Currency       string           `json:"currency"`
	Status         BookingStatus    `json:"status"`
	PaymentStatus  PaymentStatus    `json:"payment_status"`
	PassengerName  string           `json:"passenger_name"`
	PassengerEmail string           `json:"passenger_email"`
}

// NewBookingEvent builds an event payload from a booking
func NewBookingEvent(eventType BookingEventType, b *Booking) BookingEvent {
	return BookingEvent{
		Event:          eventType,
		Version:        1,
		OccurredAt:     time.Now().UTC(),
		PNR:            b.PNR,
		TripID:         b.TripID,
		SeatNo:         b.SeatNo,
		Class:          b.Class,
		Amount:         b.Amount,
		Currency:       b.Currency,
		Status:         b.Status,
		PaymentStatus:  b.PaymentStatus,
		PassengerName:  b.PassengerName,
		PassengerEmail: b.PassengerEmail,
	}
}
