package payos

import "encoding/json"

// CreatePaymentRequest is the body for POST /v2/payment-requests. Signature
// covers amount, cancelUrl, description, orderCode and returnUrl.
type CreatePaymentRequest struct {
	OrderCode   int64  `json:"orderCode"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	ReturnURL   string `json:"returnUrl"`
	CancelURL   string `json:"cancelUrl"`
	Signature   string `json:"signature"`
}

type createPaymentResponse struct {
	Code string          `json:"code"`
	Desc string          `json:"desc"`
	Data PaymentLinkData `json:"data"`
}

// PaymentLinkData is what the gateway returns for a created payment request:
// the hosted checkout URL, a VietQR payload and the receiving bank account
// display fields.
type PaymentLinkData struct {
	Bin           string `json:"bin"`
	AccountNumber string `json:"accountNumber"`
	AccountName   string `json:"accountName"`
	Amount        int64  `json:"amount"`
	Description   string `json:"description"`
	OrderCode     int64  `json:"orderCode"`
	Currency      string `json:"currency"`
	PaymentLinkID string `json:"paymentLinkId"`
	Status        string `json:"status"`
	CheckoutURL   string `json:"checkoutUrl"`
	QRCode        string `json:"qrCode"`
}

// WebhookPayload is the webhook envelope. Data stays raw until the signature
// over it has been verified.
type WebhookPayload struct {
	Code      string          `json:"code"`
	Desc      string          `json:"desc"`
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
}

// WebhookData is the settlement detail inside a verified webhook. Code "00"
// means the payment settled.
type WebhookData struct {
	OrderCode           int64  `json:"orderCode"`
	Amount              int64  `json:"amount"`
	Description         string `json:"description"`
	AccountNumber       string `json:"accountNumber"`
	Reference           string `json:"reference"`
	TransactionDateTime string `json:"transactionDateTime"`
	Currency            string `json:"currency"`
	PaymentLinkID       string `json:"paymentLinkId"`
	Code                string `json:"code"`
	Desc                string `json:"desc"`
}

// Settled reports whether the webhook confirms a successful payment.
func (d *WebhookData) Settled() bool {
	return d.Code == "00"
}
