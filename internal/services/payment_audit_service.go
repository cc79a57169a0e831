package services

import (
	"context"
	"time"

	"github.com/setrag/rail-booking-backend/internal/models"
	"github.com/setrag/rail-booking-backend/internal/utils"
	"github.com/sirupsen/logrus"
)

// PaymentAuditStore persists payment audit entries
type PaymentAuditStore interface {
	Log(ctx context.Context, audit *models.PaymentAudit) error
	CountCallbacks(ctx context.Context, billID, status string) (int, error)
}

// PaymentAuditService records every payment event. Audit failures are logged
// and never fail the payment flow.
type PaymentAuditService struct {
	store  PaymentAuditStore
	logger *logrus.Logger
}

// NewPaymentAuditService creates a new PaymentAuditService
func NewPaymentAuditService(store PaymentAuditStore, logger *logrus.Logger) *PaymentAuditService {
	return &PaymentAuditService{store: store, logger: logger}
}

// Record stores the entry, attaching request metadata and the parsed user agent
func (s *PaymentAuditService) Record(ctx context.Context, audit *models.PaymentAudit, meta models.RequestMeta) {
	var device map[string]interface{}
	if meta.UserAgent != "" {
		device = utils.ParseUserAgent(meta.UserAgent).DeviceMap()
	}
	audit.SetRequestMeta(meta, device)

	// the request may already be cancelled; the audit row must still land
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.store.Log(ctx, audit); err != nil {
		s.logger.WithFields(logrus.Fields{
			"event_type": audit.EventType,
			"booking_id": audit.BookingID,
			"error":      err.Error(),
		}).Error("Failed to write payment audit")
	}
}

// IsDuplicateCallback reports whether a callback with this bill and status
// was already recorded
func (s *PaymentAuditService) IsDuplicateCallback(ctx context.Context, billID, status string) bool {
	count, err := s.store.CountCallbacks(ctx, billID, status)
	if err != nil {
		s.logger.WithError(err).WithField("bill_id", billID).Warn("Failed to count prior callbacks")
		return false
	}
	return count > 0
}
