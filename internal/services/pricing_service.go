package services

import (
	"math"
	"time"

	"github.com/setrag/rail-booking-backend/internal/models"
)

const (
	defaultFare     = 10000.0
	defaultVIPFare  = 50000.0
	minVIPFare      = models.MinVIPPrice
	maxVIPFare      = models.MaxVIPPrice
	commissionRate  = 0.05
	freeChildMaxAge = 5
	defaultCurrency = "XAF"
)

// routeFares are second-class fares keyed by "Origin-Destination"
var routeFares = map[string]float64{
	"Libreville-Franceville": 25000,
	"Franceville-Libreville": 25000,
	"Owendo-Franceville":     25000,
	"Franceville-Owendo":     25000,
	"Libreville-Moanda":      15000,
	"Moanda-Libreville":      15000,
	"Owendo-Moanda":          15000,
	"Moanda-Owendo":          15000,
	"Libreville-Owendo":      5000,
	"Owendo-Libreville":      5000,
}

// vipFares are fixed VIP fares keyed by "Origin-Destination"
var vipFares = map[string]float64{
	"Libreville-Franceville": 75000,
	"Franceville-Libreville": 75000,
	"Libreville-Moanda":      60000,
	"Moanda-Libreville":      60000,
	"Libreville-Owendo":      50000,
	"Owendo-Libreville":      50000,
}

var classMultipliers = map[models.SeatClass]float64{
	models.SeatClassSecond: 1.0,
	models.SeatClassFirst:  1.5,
}

var discountRates = map[models.PassengerType]float64{
	models.PassengerTypeAdult:   0,
	models.PassengerTypeStudent: 0.10,
	models.PassengerTypeSenior:  0.30,
}

// PricingService computes fares. It holds no state and is safe for concurrent use.
type PricingService struct {
	currency string
}

// NewPricingService creates a pricing service quoting in the given currency
func NewPricingService(currency string) *PricingService {
	if currency == "" {
		currency = defaultCurrency
	}
	return &PricingService{currency: currency}
}

// Quote prices a trip for a class and passenger type. at is the date used to
// compute the passenger's age. Unknown classes and passenger types price
// neutrally (multiplier 1, no discount).
func (s *PricingService) Quote(trip *models.TripDetails, class models.SeatClass, passengerType models.PassengerType, birthDate *time.Time, passengers int, at time.Time) *models.PriceQuote {
	if passengers < 1 {
		passengers = 1
	}

	base := s.BasePrice(trip, class)
	commission := base * commissionRate
	discount := s.Discount(base, passengerType, birthDate, at)
	n := float64(passengers)

	return &models.PriceQuote{
		BasePrice:      roundMoney(base * n),
		DiscountAmount: roundMoney(discount * n),
		Commission:     roundMoney(commission * n),
		TotalPrice:     roundMoney((base - discount + commission) * n),
		Currency:       s.currency,
		Class:          class,
		PassengerType:  passengerType,
		Passengers:     passengers,
	}
}

// BasePrice resolves the per-passenger fare before discount and commission
func (s *PricingService) BasePrice(trip *models.TripDetails, class models.SeatClass) float64 {
	if trip != nil {
		if override, ok := trip.PriceOverride(class); ok {
			if class == models.SeatClassVIP {
				return clampVIP(override)
			}
			return override
		}
	}

	if trip == nil || trip.OriginName == "" || trip.DestinationName == "" {
		return defaultFare
	}
	route := trip.RouteKey()

	if class == models.SeatClassVIP {
		fare, ok := vipFares[route]
		if !ok {
			fare = defaultVIPFare
		}
		return clampVIP(fare)
	}

	fare, ok := routeFares[route]
	if !ok {
		fare = defaultFare
	}
	multiplier, ok := classMultipliers[class]
	if !ok {
		multiplier = 1.0
	}
	return fare * multiplier
}

// Discount returns the per-passenger reduction. Children are free only when
// under five at the reference date; older children pay the adult fare.
func (s *PricingService) Discount(base float64, passengerType models.PassengerType, birthDate *time.Time, at time.Time) float64 {
	if passengerType == models.PassengerTypeChild {
		if birthDate != nil && AgeAt(*birthDate, at) < freeChildMaxAge {
			return base
		}
		return 0
	}
	return base * discountRates[passengerType]
}

// IsFreeChild reports whether the passenger travels free as a child under five
func (s *PricingService) IsFreeChild(passengerType models.PassengerType, birthDate *time.Time, at time.Time) bool {
	return passengerType == models.PassengerTypeChild && birthDate != nil && AgeAt(*birthDate, at) < freeChildMaxAge
}

// ValidateEnums rejects unknown classes and passenger types
func (s *PricingService) ValidateEnums(class models.SeatClass, passengerType models.PassengerType) error {
	if !class.IsValid() {
		return &models.ValidationError{Field: "class", Message: "class must be one of second_class, first_class, VIP"}
	}
	if !passengerType.IsValid() {
		return &models.ValidationError{Field: "passenger_type", Message: "passenger_type must be one of adult, student, senior, child"}
	}
	return nil
}

// AgeAt returns completed years between birth and at
func AgeAt(birth, at time.Time) int {
	years := at.Year() - birth.Year()
	if at.Month() < birth.Month() || (at.Month() == birth.Month() && at.Day() < birth.Day()) {
		years--
	}
	return years
}

func clampVIP(fare float64) float64 {
	return math.Max(minVIPFare, math.Min(maxVIPFare, fare))
}

// roundMoney rounds to the cent so float noise never reaches the ledger
func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
