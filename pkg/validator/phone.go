package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// GabonCountryCode is the international dialling prefix for Gabon
const GabonCountryCode = "241"

// DefaultMSISDN is sent to the billing provider when the payer left no phone number
const DefaultMSISDN = "241076000000"

var (
	// ErrInvalidLength indicates the local form is not 9 digits
	ErrInvalidLength = errors.New("phone number must be 9 digits including the leading 0")

	// ErrInvalidPrefix indicates the number doesn't start with a Gabonese mobile prefix
	ErrInvalidPrefix = errors.New("phone number must start with 062, 065, 066, 074, 076 or 077")

	// ErrInvalidFormat indicates phone number contains invalid characters
	ErrInvalidFormat = errors.New("phone number can only contain digits")

	// ErrEmptyPhone indicates phone number is empty
	ErrEmptyPhone = errors.New("phone number cannot be empty")
)

// validPrefixes contains the Gabonese mobile operator prefixes (local form)
var validPrefixes = map[string]string{
	"062": "Moov",
	"065": "Moov",
	"066": "Moov",
	"074": "Airtel",
	"076": "Airtel",
	"077": "Airtel",
}

var nonDigits = regexp.MustCompile(`\D`)

// phoneRegex matches digits only
var phoneRegex = regexp.MustCompile(`^\d+$`)

// PhoneValidator handles phone number validation
type PhoneValidator struct{}

// NewPhoneValidator creates a new phone validator instance
func NewPhoneValidator() *PhoneValidator {
	return &PhoneValidator{}
}

// NormalizeMSISDN converts a free-form phone number to the 241-prefixed form
// the billing provider expects. Non-digits are dropped, a leading 0 is
// replaced by 241 and a missing 241 prefix is added. An empty input yields "".
func NormalizeMSISDN(phone string) string {
	digits := nonDigits.ReplaceAllString(phone, "")
	if digits == "" {
		return ""
	}
	if strings.HasPrefix(digits, "0") {
		digits = GabonCountryCode + digits[1:]
	}
	if !strings.HasPrefix(digits, GabonCountryCode) {
		digits = GabonCountryCode + digits
	}
	return digits
}

// NormalizeMSISDNOrDefault is NormalizeMSISDN with DefaultMSISDN for empty input
func NormalizeMSISDNOrDefault(phone string) string {
	if msisdn := NormalizeMSISDN(phone); msisdn != "" {
		return msisdn
	}
	return DefaultMSISDN
}

// Validate validates a Gabonese mobile number.
// Accepts 077123456, 077 12 34 56, +241 77 12 34 56 or 24177123456.
// Returns the number in local form (leading 0) and an error if invalid.
func (v *PhoneValidator) Validate(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", ErrEmptyPhone
	}

	sanitized := v.Sanitize(phone)
	if !phoneRegex.MatchString(sanitized) {
		return "", ErrInvalidFormat
	}
	if len(sanitized) != 9 {
		return "", ErrInvalidLength
	}
	if !v.IsValidPrefix(sanitized) {
		return "", ErrInvalidPrefix
	}
	return sanitized, nil
}

// Sanitize removes separators and the country code, returning the local form
func (v *PhoneValidator) Sanitize(phone string) string {
	phone = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "+", "", ".", "").Replace(phone)

	if strings.HasPrefix(phone, GabonCountryCode) && len(phone) > 9 {
		phone = phone[len(GabonCountryCode):]
		if !strings.HasPrefix(phone, "0") {
			phone = "0" + phone
		}
	}
	return phone
}

// IsValidPrefix checks if a local-form number has a Gabonese mobile prefix
func (v *PhoneValidator) IsValidPrefix(phone string) bool {
	if len(phone) < 3 {
		return false
	}
	_, ok := validPrefixes[phone[:3]]
	return ok
}

// Format formats a phone number for display: +241 XX XX XX XX
func (v *PhoneValidator) Format(phone string) (string, error) {
	sanitized, err := v.Validate(phone)
	if err != nil {
		return "", err
	}

	local := sanitized[1:]
	var groups []string
	for len(local) > 2 {
		groups = append(groups, local[:2])
		local = local[2:]
	}
	groups = append(groups, local)
	return fmt.Sprintf("+%s %s", GabonCountryCode, strings.Join(groups, " ")), nil
}

// GetOperator returns the mobile money operator for the number
func (v *PhoneValidator) GetOperator(phone string) (string, error) {
	sanitized, err := v.Validate(phone)
	if err != nil {
		return "", err
	}
	return validPrefixes[sanitized[:3]], nil
}

// IsValid is a convenience method that returns true if phone is valid
func (v *PhoneValidator) IsValid(phone string) bool {
	_, err := v.Validate(phone)
	return err == nil
}
