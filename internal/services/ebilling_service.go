package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/setrag/rail-booking-backend/internal/config"
	"github.com/setrag/rail-booking-backend/internal/models"
	"github.com/setrag/rail-booking-backend/pkg/validator"
	"github.com/sirupsen/logrus"
)

// ProviderErrorKind classifies billing provider failures
type ProviderErrorKind string

const (
	ProviderNotConfigured ProviderErrorKind = "not_configured"
	ProviderAuth          ProviderErrorKind = "auth"
	ProviderEndpoint      ProviderErrorKind = "endpoint"
	ProviderRejected      ProviderErrorKind = "rejected"
	ProviderUnavailable   ProviderErrorKind = "unavailable"
	ProviderTimeout       ProviderErrorKind = "timeout"
	ProviderTransport     ProviderErrorKind = "transport"
	ProviderBadResponse   ProviderErrorKind = "bad_response"
)

var providerMessages = map[ProviderErrorKind]string{
	ProviderNotConfigured: "Online payment is not configured. Please contact support.",
	ProviderAuth:          "The payment provider refused our credentials. Please contact support.",
	ProviderEndpoint:      "The payment provider endpoint could not be found. Please contact support.",
	ProviderRejected:      "The payment provider rejected the request.",
	ProviderUnavailable:   "The payment provider is temporarily unavailable. Please try again later.",
	ProviderTimeout:       "The payment provider did not answer in time. Please try again.",
	ProviderTransport:     "Could not reach the payment provider. Please try again.",
	ProviderBadResponse:   "The payment provider returned an unexpected response.",
}

// ProviderError is a classified billing provider failure. Message is safe to
// show to users; Body holds the raw provider response for audit records only.
type ProviderError struct {
	Kind       ProviderErrorKind
	StatusCode int
	Message    string
	Body       string
	Err        error
}

func newProviderError(kind ProviderErrorKind, status int, body string, err error) *ProviderError {
	return &ProviderError{
		Kind:       kind,
		StatusCode: status,
		Message:    providerMessages[kind],
		Body:       body,
		Err:        err,
	}
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ebilling %s: %v", e.Kind, e.Err)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("ebilling %s: http %d", e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("ebilling %s", e.Kind)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same request may succeed if sent again
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case ProviderTimeout, ProviderTransport, ProviderUnavailable:
		return true
	}
	return false
}

// AsProviderError extracts a *ProviderError from err
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// EbillingService handles payment gateway integration with eBilling (billing-easy.net)
type EbillingService struct {
	config *config.EbillingConfig
	logger *logrus.Logger
	client *http.Client
}

// ebillingCreateRequest is the e_bills creation payload
type ebillingCreateRequest struct {
	PayerName         string  `json:"payer_name"`
	PayerEmail        string  `json:"payer_email"`
	PayerMSISDN       string  `json:"payer_msisdn"`
	Amount            float64 `json:"amount"`
	ShortDescription  string  `json:"short_description"`
	ExternalReference string  `json:"external_reference"`
	ExpiryPeriod      int     `json:"expiry_period"`
	CallbackURL       string  `json:"callback_url,omitempty"`
	RedirectURL       string  `json:"redirect_url,omitempty"`
	Metadata          string  `json:"metadata,omitempty"`
}

// NewEbillingService creates a new eBilling payment service
func NewEbillingService(cfg *config.EbillingConfig, logger *logrus.Logger) *EbillingService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if !cfg.HasCredentials() {
		logger.WithFields(logrus.Fields{
			"username_set":   cfg.Username != "",
			"shared_key_set": cfg.SharedKey != "",
		}).Warn("eBilling credentials not configured, bookings will use simulated payments")
	}
	return &EbillingService{
		config: cfg,
		logger: logger,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// IsConfigured returns true if merchant credentials are present
func (s *EbillingService) IsConfigured() bool {
	return s.config.HasCredentials()
}

// PaymentLink returns the hosted payment page for a bill
func (s *EbillingService) PaymentLink(billID string) string {
	return fmt.Sprintf("%s/pay/%s", s.config.BaseURL, billID)
}

// CreatePayment creates an e-bill and returns its id and payment link
func (s *EbillingService) CreatePayment(ctx context.Context, req models.PaymentRequest) (*models.BillResult, error) {
	if !s.IsConfigured() {
		return nil, newProviderError(ProviderNotConfigured, 0, "", nil)
	}

	description := req.Description
	if description == "" {
		description = "Réservation billet SETRAG"
	}

	payload := ebillingCreateRequest{
		PayerName:         req.PayerName,
		PayerEmail:        req.PayerEmail,
		PayerMSISDN:       validator.NormalizeMSISDNOrDefault(req.PayerPhone),
		Amount:            req.Amount,
		ShortDescription:  description,
		ExternalReference: req.Reference,
		ExpiryPeriod:      s.config.ExpiryPeriod,
		CallbackURL:       s.config.CallbackURL,
		RedirectURL:       s.config.RedirectURLSuccess,
	}
	if len(req.Metadata) > 0 {
		meta, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		payload.Metadata = string(meta)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := s.config.BaseURL + "/api/v1/merchant/e_bills"
	s.logger.WithFields(logrus.Fields{
		"reference": req.Reference,
		"amount":    req.Amount,
		"endpoint":  endpoint,
	}).Info("Creating eBilling payment")

	status, respBody, err := s.do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		s.logger.WithError(err).WithField("reference", req.Reference).Error("Failed to call eBilling endpoint")
		return nil, err
	}
	if perr := classifyStatus(status, respBody); perr != nil {
		s.logger.WithFields(logrus.Fields{
			"reference":   req.Reference,
			"status_code": status,
			"kind":        perr.Kind,
		}).Error("eBilling rejected payment creation")
		return nil, perr
	}

	var parsed struct {
		EBill struct {
			BillID json.RawMessage `json:"bill_id"`
		} `json:"e_bill"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, newProviderError(ProviderBadResponse, status, string(respBody), fmt.Errorf("failed to parse response: %w", err))
	}
	billID := rawScalar(parsed.EBill.BillID)
	if billID == "" {
		return nil, newProviderError(ProviderBadResponse, status, string(respBody), errors.New("bill_id missing from response"))
	}

	s.logger.WithFields(logrus.Fields{
		"bill_id":   billID,
		"reference": req.Reference,
	}).Info("eBilling payment created")

	return &models.BillResult{
		BillID:      billID,
		PaymentLink: s.PaymentLink(billID),
	}, nil
}

// GetStatus queries a bill, trying the status endpoint before the bill resource
func (s *EbillingService) GetStatus(ctx context.Context, billID string) (*models.BillStatus, error) {
	if !s.IsConfigured() {
		return nil, newProviderError(ProviderNotConfigured, 0, "", nil)
	}

	base := fmt.Sprintf("%s/api/v1/merchant/e_bills/%s", s.config.BaseURL, billID)
	endpoints := []string{base + "/status", base}

	var lastErr error
	for _, endpoint := range endpoints {
		status, respBody, err := s.do(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		if perr := classifyStatus(status, respBody); perr != nil {
			lastErr = perr
			continue
		}

		var data map[string]interface{}
		if err := json.Unmarshal(respBody, &data); err != nil {
			lastErr = newProviderError(ProviderBadResponse, status, string(respBody), fmt.Errorf("failed to parse response: %w", err))
			continue
		}
		fields := data
		if bill, ok := data["e_bill"].(map[string]interface{}); ok {
			fields = bill
		}

		raw := firstString(fields, "status")
		if raw == "" {
			raw = firstString(data, "status")
		}
		amount, _ := parseAmount(fields["amount"])

		result := &models.BillStatus{
			BillID:        billID,
			RawStatus:     raw,
			Status:        MapProviderStatus(raw),
			Amount:        amount,
			TransactionID: firstString(fields, "transaction_id"),
		}
		s.logger.WithFields(logrus.Fields{
			"bill_id": billID,
			"status":  result.Status,
		}).Debug("eBilling status retrieved")
		return result, nil
	}
	return nil, lastErr
}

// ValidateCallback checks a callback carries a bill id, a state and an amount
func (s *EbillingService) ValidateCallback(payload map[string]interface{}) bool {
	if firstString(payload, "billingid", "bill_id") == "" {
		s.logger.WithField("payload", payload).Warn("eBilling callback without bill id")
		return false
	}
	_, hasState := payload["state"]
	_, hasStatus := payload["status"]
	if !hasState && !hasStatus {
		s.logger.WithField("payload", payload).Warn("eBilling callback without state")
		return false
	}
	if amount, ok := parseAmount(payload["amount"]); !ok || amount == 0 {
		s.logger.WithField("payload", payload).Warn("eBilling callback without amount")
		return false
	}
	return true
}

// NormalizeCallback maps provider field names and statuses onto CallbackData
func (s *EbillingService) NormalizeCallback(payload map[string]interface{}) models.CallbackData {
	raw := firstString(payload, "state", "status")
	amount, _ := parseAmount(payload["amount"])
	return models.CallbackData{
		BillID:        firstString(payload, "billingid", "bill_id"),
		TransactionID: firstString(payload, "transactionid", "transaction_id"),
		RawStatus:     raw,
		Status:        MapProviderStatus(raw),
		Amount:        amount,
		Reference:     firstString(payload, "reference"),
		PaymentSystem: firstString(payload, "paymentsystem", "payment_system"),
		Payer: models.PayerInfo{
			Name:  firstString(payload, "payername", "payer_name"),
			Email: firstString(payload, "payeremail", "payer_email"),
			Phone: firstString(payload, "payermsisdn", "payer_phone"),
		},
	}
}

// MapProviderStatus maps an eBilling state onto the internal vocabulary
func MapProviderStatus(raw string) models.MappedStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "paid", "processed":
		return models.MappedStatusCompleted
	case "pending":
		return models.MappedStatusPending
	case "failed":
		return models.MappedStatusFailed
	case "cancelled":
		return models.MappedStatusCancelled
	case "expired":
		return models.MappedStatusExpired
	default:
		return models.MappedStatusUnknown
	}
}

// do sends an authenticated request and returns the status and body.
// Only transport failures are returned as errors.
func (s *EbillingService) do(ctx context.Context, method, endpoint string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, newProviderError(ProviderTransport, 0, "", err)
	}
	req.SetBasicAuth(s.config.Username, s.config.SharedKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return 0, nil, newProviderError(ProviderTimeout, 0, "", err)
		}
		return 0, nil, newProviderError(ProviderTransport, 0, "", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return 0, nil, newProviderError(ProviderTimeout, resp.StatusCode, "", err)
		}
		return 0, nil, newProviderError(ProviderTransport, resp.StatusCode, "", err)
	}
	return resp.StatusCode, respBody, nil
}

// classifyStatus maps a non-2xx response onto a ProviderError
func classifyStatus(status int, body []byte) *ProviderError {
	if status >= 200 && status < 300 {
		return nil
	}
	raw := string(body)
	switch {
	case status == http.StatusUnauthorized:
		return newProviderError(ProviderAuth, status, raw, nil)
	case status == http.StatusNotFound:
		return newProviderError(ProviderEndpoint, status, raw, nil)
	case status >= 500:
		return newProviderError(ProviderUnavailable, status, raw, nil)
	default:
		return newProviderError(ProviderRejected, status, raw, nil)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// firstString returns the first non-empty value among keys, rendered as a string
func firstString(payload map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		v, ok := payload[key]
		if !ok || v == nil {
			continue
		}
		var s string
		switch val := v.(type) {
		case string:
			s = val
		case float64:
			s = strconv.FormatFloat(val, 'f', -1, 64)
		case json.Number:
			s = val.String()
		case []string:
			if len(val) > 0 {
				s = val[0]
			}
		default:
			s = fmt.Sprint(val)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// parseAmount reads a JSON or form amount. ok is false when absent or unparsable.
func parseAmount(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	case []string:
		if len(val) > 0 {
			return parseAmount(val[0])
		}
	}
	return 0, false
}

// rawScalar renders a JSON string or number without quotes
func rawScalar(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}
