package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/setrag/rail-booking-backend/internal/middleware"
	"github.com/setrag/rail-booking-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// PaymentHandler receives payment provider notifications
type PaymentHandler struct {
	bookings BookingFlow
	logger   *logrus.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(bookings BookingFlow, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{bookings: bookings, logger: logger}
}

// EbillingCallback handles POST /api/v1/payments/ebilling/callback.
// eBilling posts either JSON or a form; both are read into one payload.
// Any non-2xx answer makes the provider retry the notification.
func (h *PaymentHandler) EbillingCallback(c *gin.Context) {
	payload, err := callbackPayload(c)
	if err != nil {
		h.logger.WithError(err).WithField("ip", middleware.RequestMeta(c).IPAddress).Warn("Unreadable payment callback")
		respondError(c, h.logger, models.ErrInvalidCallback)
		return
	}

	result, err := h.bookings.HandleCallback(c.Request.Context(), payload, middleware.RequestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func callbackPayload(c *gin.Context) (map[string]interface{}, error) {
	payload := map[string]interface{}{}
	if strings.HasPrefix(c.ContentType(), "application/json") {
		if err := c.ShouldBindJSON(&payload); err != nil {
			return nil, err
		}
		return payload, nil
	}

	if err := c.Request.ParseForm(); err != nil {
		return nil, err
	}
	for key, values := range c.Request.PostForm {
		if len(values) > 0 {
			payload[key] = values[0]
		}
	}
	return payload, nil
}
