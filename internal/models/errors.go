package models

import (
	"errors"
	"fmt"
)

var (
	// Seat inventory
	ErrNoSeatsAvailable   = errors.New("no seats available")
	ErrSeatNotFound       = errors.New("seat not found")
	ErrSeatNotConfirmable = errors.New("seat is not in a confirmable state")
	ErrSeatNotReleasable  = errors.New("seat is sold and cannot be released")

	// Catalog
	ErrTripNotFound    = errors.New("trip not found")
	ErrTripHasBookings = errors.New("trip has bookings and cannot be deleted")
	ErrStationNotFound = errors.New("station not found")
	ErrSeatCountTooLow = errors.New("seat count is below the seats already held or sold")

	// Booking ledger
	ErrBookingNotFound         = errors.New("booking not found")
	ErrBookingConfirmed        = errors.New("confirmed bookings cannot be deleted, please contact support")
	ErrBookingNotPending       = errors.New("booking is not pending")
	ErrAlreadyConfirmed        = errors.New("booking already confirmed")
	ErrDuplicateIdempotencyKey = errors.New("a booking with this idempotency key already exists")
	ErrDuplicatePNR            = errors.New("pnr already in use")
	ErrNotOwner                = errors.New("booking does not belong to the caller")
	ErrUnaccompaniedChild      = errors.New("a child under 5 must travel with an accompanying adult")
	ErrTicketUnavailable       = errors.New("ticket is only available for confirmed bookings")

	// Payments
	ErrInvalidCallback   = errors.New("invalid payment callback")
	ErrPaymentNotApplied = errors.New("payment status could not be applied")
)

// ValidationError reports a rejected input field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsValidationError reports whether err is or wraps a *ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
