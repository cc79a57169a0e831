package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/setrag/rail-booking-backend/internal/models"
	"github.com/sirupsen/logrus"
)

const paymentAuditColumns = `id, booking_id, pnr, bill_id, event_type, event_source,
	expected_amount, received_amount, currency, amounts_match, payment_status, transaction_id,
	payload, http_status_code, error_message, error_code, processing_time_ms, is_duplicate,
	ip_address, user_agent, device_info, correlation_id, created_at`

// PaymentAuditRepository handles payment audit operations
type PaymentAuditRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPaymentAuditRepository creates a new payment audit repository
func NewPaymentAuditRepository(db *sqlx.DB, logger *logrus.Logger) *PaymentAuditRepository {
	return &PaymentAuditRepository{
		db:     db,
		logger: logger,
	}
}

// Log appends a payment audit entry
func (r *PaymentAuditRepository) Log(ctx context.Context, audit *models.PaymentAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}
	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO payment_audits (` + paymentAuditColumns + `)
		VALUES (
			:id, :booking_id, :pnr, :bill_id, :event_type, :event_source,
			:expected_amount, :received_amount, :currency, :amounts_match, :payment_status, :transaction_id,
			:payload, :http_status_code, :error_message, :error_code, :processing_time_ms, :is_duplicate,
			:ip_address, :user_agent, :device_info, :correlation_id, :created_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, audit); err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": audit.EventType,
			"bill_id":    audit.BillID,
		}).Error("CRITICAL: Failed to log payment audit")
		return fmt.Errorf("failed to log payment audit: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"audit_id":   audit.ID,
		"event_type": audit.EventType,
	}).Debug("Payment audit logged")

	return nil
}

// ListByBooking returns a booking's audit trail, oldest first
func (r *PaymentAuditRepository) ListByBooking(ctx context.Context, bookingID int64) ([]models.PaymentAudit, error) {
	audits := []models.PaymentAudit{}
	query := `SELECT ` + paymentAuditColumns + ` FROM payment_audits WHERE booking_id = $1 ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &audits, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to get audits by booking: %w", err)
	}
	return audits, nil
}

// CountCallbacks returns how many callbacks were already recorded for a bill
// with the given provider status, used to flag duplicate deliveries.
func (r *PaymentAuditRepository) CountCallbacks(ctx context.Context, billID, status string) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM payment_audits
		WHERE bill_id = $1 AND event_type = $2 AND payment_status = $3 AND is_duplicate = FALSE`
	err := r.db.GetContext(ctx, &count, query, billID, models.PaymentEventCallbackReceived, status)
	if err != nil {
		return 0, fmt.Errorf("failed to count callbacks: %w", err)
	}
	return count, nil
}

// ListAmountMismatches returns recent audits where the paid amount differed
// from the booking amount
func (r *PaymentAuditRepository) ListAmountMismatches(ctx context.Context, limit int) ([]models.PaymentAudit, error) {
	audits := []models.PaymentAudit{}
	query := `
		SELECT ` + paymentAuditColumns + ` FROM payment_audits
		WHERE amounts_match = FALSE
		ORDER BY created_at DESC
		LIMIT $1`
	if err := r.db.SelectContext(ctx, &audits, query, limit); err != nil {
		return nil, fmt.Errorf("failed to get amount mismatches: %w", err)
	}
	return audits, nil
}
