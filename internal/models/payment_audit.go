package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// PaymentEventType represents the type of payment event
type PaymentEventType string

const (
	PaymentEventInitiated           PaymentEventType = "payment_initiated"
	PaymentEventResponse            PaymentEventType = "payment_response"
	PaymentEventSimulated           PaymentEventType = "payment_simulated"
	PaymentEventCallbackReceived    PaymentEventType = "callback_received"
	PaymentEventCallbackRejected    PaymentEventType = "callback_rejected"
	PaymentEventDuplicateCallback   PaymentEventType = "duplicate_callback"
	PaymentEventStatusCheckResponse PaymentEventType = "status_check_response"
	PaymentEventSuccess             PaymentEventType = "payment_success"
	PaymentEventFailed              PaymentEventType = "payment_failed"
	PaymentEventCompensated         PaymentEventType = "booking_compensated"
	PaymentEventCompensationFailed  PaymentEventType = "compensation_failed"
	PaymentEventAmountMismatch      PaymentEventType = "amount_mismatch"
	PaymentEventLatePayment         PaymentEventType = "late_payment"
	PaymentEventError               PaymentEventType = "error"
)

// PaymentEventSource identifies where the event originated
type PaymentEventSource string

const (
	PaymentSourceBackend  PaymentEventSource = "backend"
	PaymentSourceCallback PaymentEventSource = "ebilling_callback"
	PaymentSourceAPI      PaymentEventSource = "ebilling_api"
	PaymentSourceUser     PaymentEventSource = "user"
	PaymentSourceSystem   PaymentEventSource = "system"
)

// PaymentAudit is an append-only record of a payment event
type PaymentAudit struct {
	ID        uuid.UUID `json:"id" db:"id"`
	BookingID *int64    `json:"booking_id,omitempty" db:"booking_id"`
	PNR       *string   `json:"pnr,omitempty" db:"pnr"`
	BillID    *string   `json:"bill_id,omitempty" db:"bill_id"`

	EventType   PaymentEventType   `json:"event_type" db:"event_type"`
	EventSource PaymentEventSource `json:"event_source" db:"event_source"`

	ExpectedAmount *float64 `json:"expected_amount,omitempty" db:"expected_amount"`
	ReceivedAmount *float64 `json:"received_amount,omitempty" db:"received_amount"`
	Currency       *string  `json:"currency,omitempty" db:"currency"`
	AmountsMatch   *bool    `json:"amounts_match,omitempty" db:"amounts_match"`

	PaymentStatus *string `json:"payment_status,omitempty" db:"payment_status"`
	TransactionID *string `json:"transaction_id,omitempty" db:"transaction_id"`

	Payload        JSONB `json:"payload,omitempty" db:"payload"`
	HTTPStatusCode *int  `json:"http_status_code,omitempty" db:"http_status_code"`

	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`
	ErrorCode    *string `json:"error_code,omitempty" db:"error_code"`

	ProcessingTimeMs *int `json:"processing_time_ms,omitempty" db:"processing_time_ms"`
	IsDuplicate      bool `json:"is_duplicate" db:"is_duplicate"`

	IPAddress     *string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent     *string `json:"user_agent,omitempty" db:"user_agent"`
	DeviceInfo    JSONB   `json:"device_info,omitempty" db:"device_info"`
	CorrelationID *string `json:"correlation_id,omitempty" db:"correlation_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewPaymentAudit creates a new payment audit entry with required fields
func NewPaymentAudit(eventType PaymentEventType, source PaymentEventSource) *PaymentAudit {
	return &PaymentAudit{
		ID:          uuid.New(),
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
	}
}

// ForBooking links the entry to a booking
func (pa *PaymentAudit) ForBooking(b *Booking) *PaymentAudit {
	if b == nil {
		return pa
	}
	id := b.ID
	pnr := b.PNR
	pa.BookingID = &id
	pa.PNR = &pnr
	if b.BillID != nil {
		bill := *b.BillID
		pa.BillID = &bill
	}
	return pa
}

// SetBillID sets the provider bill id
func (pa *PaymentAudit) SetBillID(billID string) *PaymentAudit {
	if billID != "" {
		pa.BillID = &billID
	}
	return pa
}

// SetAmounts records both amounts and returns whether they agree to the cent
func (pa *PaymentAudit) SetAmounts(expected, received float64, currency string) bool {
	pa.ExpectedAmount = &expected
	pa.ReceivedAmount = &received
	pa.Currency = &currency

	match := math.Abs(expected-received) < 0.01
	pa.AmountsMatch = &match
	return match
}

// SetPaymentStatus sets the provider-reported status
func (pa *PaymentAudit) SetPaymentStatus(status string) *PaymentAudit {
	if status != "" {
		pa.PaymentStatus = &status
	}
	return pa
}

// SetTransactionID sets the provider transaction reference
func (pa *PaymentAudit) SetTransactionID(txnID string) *PaymentAudit {
	if txnID != "" {
		pa.TransactionID = &txnID
	}
	return pa
}

// SetError sets error information
func (pa *PaymentAudit) SetError(message, code string) *PaymentAudit {
	pa.ErrorMessage = &message
	if code != "" {
		pa.ErrorCode = &code
	}
	return pa
}

// SetHTTPStatus sets the provider HTTP status code
func (pa *PaymentAudit) SetHTTPStatus(statusCode int) *PaymentAudit {
	if statusCode > 0 {
		pa.HTTPStatusCode = &statusCode
	}
	return pa
}

// SetPayload stores the raw payload
func (pa *PaymentAudit) SetPayload(payload map[string]interface{}) *PaymentAudit {
	pa.Payload = JSONB(payload)
	return pa
}

// SetRequestMeta records the client address and agent
func (pa *PaymentAudit) SetRequestMeta(meta RequestMeta, device map[string]interface{}) *PaymentAudit {
	if meta.IPAddress != "" {
		pa.IPAddress = &meta.IPAddress
	}
	if meta.UserAgent != "" {
		pa.UserAgent = &meta.UserAgent
	}
	if meta.CorrelationID != "" {
		pa.CorrelationID = &meta.CorrelationID
	}
	if device != nil {
		pa.DeviceInfo = JSONB(device)
	}
	return pa
}

// SetProcessingTime records the elapsed time since start
func (pa *PaymentAudit) SetProcessingTime(start time.Time) *PaymentAudit {
	ms := int(time.Since(start).Milliseconds())
	pa.ProcessingTimeMs = &ms
	return pa
}

// MarkAsDuplicate marks this event as a duplicate delivery
func (pa *PaymentAudit) MarkAsDuplicate() *PaymentAudit {
	pa.IsDuplicate = true
	return pa
}
