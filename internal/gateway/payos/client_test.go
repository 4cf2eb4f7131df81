package payos

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"printpay/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(baseURL string) *Client {
	return NewClient(&config.PayOSConfig{
		BaseURL:     baseURL,
		ClientID:    "client-id",
		APIKey:      "api-key",
		ChecksumKey: testChecksumKey,
	})
}

func TestCreatePaymentLink(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/payment-requests", r.URL.Path)
		assert.Equal(t, "client-id", r.Header.Get("x-client-id"))
		assert.Equal(t, "api-key", r.Header.Get("x-api-key"))

		var req CreatePaymentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(123), req.OrderCode)
		assert.Equal(t, signCreatePayment(&CreatePaymentRequest{
			OrderCode:   req.OrderCode,
			Amount:      req.Amount,
			Description: req.Description,
			ReturnURL:   req.ReturnURL,
			CancelURL:   req.CancelURL,
		}, testChecksumKey), req.Signature)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": "00",
			"desc": "success",
			"data": PaymentLinkData{
				Bin:           "970422",
				AccountNumber: "0123456789",
				AccountName:   "PRINT SHOP",
				Amount:        req.Amount,
				OrderCode:     req.OrderCode,
				Currency:      "VND",
				PaymentLinkID: "plink-1",
				Status:        "PENDING",
				CheckoutURL:   "https://pay.example.com/web/plink-1",
				QRCode:        "00020101021238...",
			},
		})
	}))
	defer server.Close()

	client := testClient(server.URL)

	data, err := client.CreatePaymentLink(context.Background(), &CreatePaymentRequest{
		OrderCode:   123,
		Amount:      20000,
		Description: "wallet topup",
		ReturnURL:   "https://shop.example.com/ok",
		CancelURL:   "https://shop.example.com/cancel",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://pay.example.com/web/plink-1", data.CheckoutURL)
	assert.Equal(t, "plink-1", data.PaymentLinkID)
	assert.Equal(t, int64(123), data.OrderCode)
	assert.Equal(t, "970422", data.Bin)
}

func TestCreatePaymentLinkGatewayRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"231","desc":"duplicate order code"}`)
	}))
	defer server.Close()

	_, err := testClient(server.URL).CreatePaymentLink(context.Background(), &CreatePaymentRequest{OrderCode: 1, Amount: 100})
	assert.ErrorIs(t, err, ErrGateway)
}

func TestCreatePaymentLinkServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := testClient(server.URL).CreatePaymentLink(context.Background(), &CreatePaymentRequest{OrderCode: 1, Amount: 100})
	assert.ErrorIs(t, err, ErrGateway)
}

func webhookBody(t *testing.T, data map[string]interface{}, key string) []byte {
	t.Helper()
	rawData, err := json.Marshal(data)
	require.NoError(t, err)
	signature, err := signRawData(rawData, key)
	require.NoError(t, err)

	body, err := json.Marshal(map[string]interface{}{
		"code":      "00",
		"desc":      "success",
		"success":   true,
		"data":      json.RawMessage(rawData),
		"signature": signature,
	})
	require.NoError(t, err)
	return body
}

func TestVerifyWebhook(t *testing.T) {
	client := testClient("http://unused")

	body := webhookBody(t, map[string]interface{}{
		"orderCode":     float64(555),
		"amount":        float64(20000),
		"code":          "00",
		"desc":          "success",
		"paymentLinkId": "plink-9",
	}, testChecksumKey)

	envelope, data, err := client.VerifyWebhook(body)
	require.NoError(t, err)
	assert.True(t, envelope.Success)
	assert.Equal(t, int64(555), data.OrderCode)
	assert.Equal(t, int64(20000), data.Amount)
	assert.True(t, data.Settled())
}

func TestVerifyWebhookFailsClosed(t *testing.T) {
	client := testClient("http://unused")

	// signed with the wrong key
	body := webhookBody(t, map[string]interface{}{"orderCode": float64(1)}, "wrong-key")
	_, _, err := client.VerifyWebhook(body)
	assert.ErrorIs(t, err, ErrSignatureInvalid)

	// missing signature
	_, _, err = client.VerifyWebhook([]byte(`{"code":"00","success":true,"data":{"orderCode":1}}`))
	assert.ErrorIs(t, err, ErrSignatureInvalid)

	// missing data
	_, _, err = client.VerifyWebhook([]byte(`{"code":"00","success":true,"signature":"abc"}`))
	assert.ErrorIs(t, err, ErrSignatureInvalid)

	// not json at all
	_, _, err = client.VerifyWebhook([]byte(`<xml/>`))
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}
