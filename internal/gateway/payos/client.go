package payos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"printpay/internal/config"

	"github.com/sirupsen/logrus"
)

var (
	// ErrGateway wraps transport failures and non-success gateway responses.
	// The caller has made no local mutation yet, so these are retryable.
	ErrGateway = errors.New("payment gateway error")

	// ErrSignatureInvalid means a webhook payload failed verification. The
	// payload must not be processed.
	ErrSignatureInvalid = errors.New("webhook signature invalid")
)

// Client talks to the PayOS merchant API.
type Client struct {
	cfg        *config.PayOSConfig
	httpClient *http.Client
}

func NewClient(cfg *config.PayOSConfig) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreatePaymentLink registers a payment request with the gateway and returns
// the checkout link data. The request is signed with the merchant checksum
// key; req.Signature is set by this method.
func (c *Client) CreatePaymentLink(ctx context.Context, req *CreatePaymentRequest) (*PaymentLinkData, error) {
	req.Signature = signCreatePayment(req, c.cfg.ChecksumKey)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/v2/payment-requests", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-client-id", c.cfg.ClientID)
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrGateway, err)
	}

	if resp.StatusCode != http.StatusOK {
		logrus.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"order_code":  req.OrderCode,
		}).Error("gateway returned non-OK status")
		return nil, fmt.Errorf("%w: status %d", ErrGateway, resp.StatusCode)
	}

	var parsed createPaymentResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrGateway, err)
	}

	if parsed.Code != "00" {
		return nil, fmt.Errorf("%w: code=%s desc=%s", ErrGateway, parsed.Code, parsed.Desc)
	}

	return &parsed.Data, nil
}

// VerifyWebhook checks the payload signature and, only then, parses the
// settlement data. Any malformed payload, missing signature or mismatch
// yields ErrSignatureInvalid: verification fails closed.
func (c *Client) VerifyWebhook(payload []byte) (*WebhookPayload, *WebhookData, error) {
	var envelope WebhookPayload
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, nil, ErrSignatureInvalid
	}

	if len(envelope.Data) == 0 {
		return nil, nil, ErrSignatureInvalid
	}

	if !verifySignature(envelope.Data, envelope.Signature, c.cfg.ChecksumKey) {
		return nil, nil, ErrSignatureInvalid
	}

	var data WebhookData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, nil, ErrSignatureInvalid
	}

	return &envelope, &data, nil
}
