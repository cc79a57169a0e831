package models

// PriceQuote is a fare breakdown. BasePrice, DiscountAmount and Commission
// are already multiplied by the number of passengers.
type PriceQuote struct {
	BasePrice      float64       `json:"base_price"`
	DiscountAmount float64       `json:"discount_amount"`
	Commission     float64       `json:"commission"`
	TotalPrice     float64       `json:"total_price"`
	Currency       string        `json:"currency"`
	Class          SeatClass     `json:"class"`
	PassengerType  PassengerType `json:"passenger_type"`
	Passengers     int           `json:"passengers"`
}

// QuoteRequest is the payload for a price quote
type QuoteRequest struct {
	TripID             int64         `json:"trip_id" binding:"required"`
	Class              SeatClass     `json:"class"`
	PassengerType      PassengerType `json:"passenger_type"`
	PassengerBirthDate string        `json:"passenger_birth_date,omitempty"`
	Passengers         int           `json:"passengers"`
}

// Normalize applies request defaults
func (r *QuoteRequest) Normalize() {
	if r.Class == "" {
		r.Class = SeatClassSecond
	}
	if r.PassengerType == "" {
		r.PassengerType = PassengerTypeAdult
	}
	if r.Passengers < 1 {
		r.Passengers = 1
	}
}
