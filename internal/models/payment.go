package models

// MappedStatus is the internal vocabulary provider payment states are normalized into
type MappedStatus string

const (
	MappedStatusCompleted MappedStatus = "completed"
	MappedStatusPending   MappedStatus = "pending"
	MappedStatusFailed    MappedStatus = "failed"
	MappedStatusCancelled MappedStatus = "cancelled"
	MappedStatusExpired   MappedStatus = "expired"
	MappedStatusUnknown   MappedStatus = "unknown"
)

// IsTerminalFailure reports whether the status cancels the booking
func (s MappedStatus) IsTerminalFailure() bool {
	return s == MappedStatusFailed || s == MappedStatusCancelled || s == MappedStatusExpired
}

// PaymentStatus returns the booking payment status recorded for a terminal failure
func (s MappedStatus) PaymentStatus() PaymentStatus {
	switch s {
	case MappedStatusCompleted:
		return PaymentStatusPaid
	case MappedStatusCancelled:
		return PaymentStatusCancelled
	case MappedStatusExpired:
		return PaymentStatusExpired
	case MappedStatusFailed:
		return PaymentStatusFailed
	default:
		return PaymentStatusPending
	}
}

// PaymentRequest is what the booking flow asks the billing provider to collect
type PaymentRequest struct {
	Amount      float64
	PayerName   string
	PayerEmail  string
	PayerPhone  string
	Description string
	Reference   string
	Metadata    map[string]interface{}
}

// BillResult is a created provider bill
type BillResult struct {
	BillID      string `json:"bill_id"`
	PaymentLink string `json:"payment_link"`
}

// BillStatus is the provider's view of a bill
type BillStatus struct {
	BillID        string       `json:"bill_id"`
	RawStatus     string       `json:"raw_status"`
	Status        MappedStatus `json:"status"`
	Amount        float64      `json:"amount"`
	TransactionID string       `json:"transaction_id,omitempty"`
}

// PayerInfo is the payer detail echoed back in a callback
type PayerInfo struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// CallbackData is a normalized provider callback
type CallbackData struct {
	BillID        string       `json:"bill_id"`
	TransactionID string       `json:"transaction_id,omitempty"`
	RawStatus     string       `json:"raw_status"`
	Status        MappedStatus `json:"status"`
	Amount        float64      `json:"amount"`
	Reference     string       `json:"reference,omitempty"`
	PaymentSystem string       `json:"payment_system,omitempty"`
	Payer         PayerInfo    `json:"payer"`
}

// CallbackOutcome describes what a callback did
type CallbackOutcome string

const (
	CallbackConfirmed        CallbackOutcome = "confirmed"
	CallbackCancelled        CallbackOutcome = "cancelled"
	CallbackAlreadyProcessed CallbackOutcome = "already_processed"
	CallbackIgnored          CallbackOutcome = "ignored"
)

// CallbackResult is returned to the provider-facing handler
type CallbackResult struct {
	Outcome CallbackOutcome `json:"outcome"`
	PNR     string          `json:"pnr"`
	Status  BookingStatus   `json:"status"`
}

// RequestMeta carries transport details recorded on audit entries
type RequestMeta struct {
	IPAddress     string
	UserAgent     string
	CorrelationID string
}
