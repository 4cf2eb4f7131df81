package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"printpay/internal/config"
	"printpay/internal/gateway/payos"
	"printpay/internal/model"
	"printpay/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopSettlementLocks struct{}

func (noopSettlementLocks) Acquire(context.Context, int64) (func(context.Context), error) {
	return func(context.Context) {}, nil
}

func gatewayStub(t *testing.T, code string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req payos.CreatePaymentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": code,
			"desc": "stub",
			"data": payos.PaymentLinkData{
				Bin:           "970422",
				AccountNumber: "0123456789",
				AccountName:   "PRINT SHOP",
				Amount:        req.Amount,
				OrderCode:     req.OrderCode,
				Currency:      "VND",
				PaymentLinkID: "plink-stub",
				Status:        "PENDING",
				CheckoutURL:   "https://pay.example.com/web/plink-stub",
				QRCode:        "qr-data",
			},
		})
	}))
}

func newPaymentService(t *testing.T, gatewayURL string) (*PaymentService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newTestDB(t)
	cfg := testConfig()
	cfg.PayOS = config.PayOSConfig{
		BaseURL:     gatewayURL,
		ClientID:    "client-id",
		APIKey:      "api-key",
		ChecksumKey: "checksum",
		ReturnURL:   "https://shop.example.com/ok",
		CancelURL:   "https://shop.example.com/cancel",
	}
	walletService := NewWalletService(db, cfg)
	svc := NewPaymentService(db, nil, cfg, payos.NewClient(&cfg.PayOS), walletService)
	svc.locks = noopSettlementLocks{}
	return svc, mock
}

// signedWebhook builds a webhook body whose signature over the data object
// verifies against the test checksum key.
func signedWebhook(t *testing.T, orderCode, amount int64, code string, success bool) []byte {
	t.Helper()

	signString := fmt.Sprintf("amount=%d&code=%s&desc=stub&orderCode=%d&paymentLinkId=plink-9",
		amount, code, orderCode)
	mac := hmac.New(sha256.New, []byte("checksum"))
	mac.Write([]byte(signString))
	signature := hex.EncodeToString(mac.Sum(nil))

	data := fmt.Sprintf(`{"orderCode":%d,"amount":%d,"code":%q,"desc":"stub","paymentLinkId":"plink-9"}`,
		orderCode, amount, code)
	return []byte(fmt.Sprintf(`{"code":%q,"desc":"stub","success":%t,"data":%s,"signature":%q}`,
		code, success, data, signature))
}

func orderPaymentColumns() []string {
	return []string{"id", "order_id", "pay_os_order_code", "amount", "status"}
}

func TestCreateTopUpPayment(t *testing.T) {
	server := gatewayStub(t, "00")
	defer server.Close()

	svc, mock := newPaymentService(t, server.URL)

	// wallet lookup for the pending top-up, then the ledger insert
	mock.ExpectQuery("SELECT (.+) FROM `wallet` WHERE user_id").
		WillReturnRows(sqlmock.NewRows(walletColumns()).
			AddRow(1, 7, "5000", "VND", true, 0))
	mock.ExpectExec("INSERT INTO `wallet_transaction`").
		WillReturnResult(sqlmock.NewResult(31, 1))

	checkout, err := svc.CreateTopUpPayment(context.Background(), 7, decimal.NewFromInt(20000), "wallet topup", "", "")
	require.NoError(t, err)

	assert.Equal(t, "https://pay.example.com/web/plink-stub", checkout.CheckoutURL)
	assert.Equal(t, "qr-data", checkout.QRCode)
	assert.Equal(t, "plink-stub", checkout.PaymentLinkID)
	assert.Equal(t, "0123456789", checkout.AccountNumber)
	assert.True(t, checkout.Amount.Equal(decimal.NewFromInt(20000)))
	assert.Greater(t, checkout.OrderCode, int64(0))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTopUpPaymentGatewayDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	svc, mock := newPaymentService(t, server.URL)

	// pending top-up gets created, then failed after the gateway error
	mock.ExpectQuery("SELECT (.+) FROM `wallet` WHERE user_id").
		WillReturnRows(sqlmock.NewRows(walletColumns()).
			AddRow(1, 7, "5000", "VND", true, 0))
	mock.ExpectExec("INSERT INTO `wallet_transaction`").
		WillReturnResult(sqlmock.NewResult(31, 1))
	mock.ExpectExec("UPDATE `wallet_transaction` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := svc.CreateTopUpPayment(context.Background(), 7, decimal.NewFromInt(20000), "wallet topup", "", "")
	assert.ErrorIs(t, err, payos.ErrGateway)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderPayment(t *testing.T) {
	server := gatewayStub(t, "00")
	defer server.Close()

	svc, mock := newPaymentService(t, server.URL)

	mock.ExpectExec("INSERT INTO `order_payment`").
		WillReturnResult(sqlmock.NewResult(41, 1))
	mock.ExpectExec("UPDATE `order_payment` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	checkout, err := svc.CreateOrderPayment(context.Background(), 99, decimal.NewFromInt(135000), "order #99", "", "")
	require.NoError(t, err)

	assert.Equal(t, "https://pay.example.com/web/plink-stub", checkout.CheckoutURL)
	assert.True(t, checkout.Amount.Equal(decimal.NewFromInt(135000)))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderPaymentInvalidAmount(t *testing.T) {
	svc, mock := newPaymentService(t, "http://unused")

	_, err := svc.CreateOrderPayment(context.Background(), 99, decimal.Zero, "order #99", "", "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	// PayOS amounts are whole VND; a fractional amount would be truncated
	// by the gateway while the ledger kept the full value
	_, err = svc.CreateOrderPayment(context.Background(), 99, decimal.RequireFromString("135000.50"), "order #99", "", "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTopUpPaymentFractionalAmount(t *testing.T) {
	svc, mock := newPaymentService(t, "http://unused")

	// rejected before any pending record exists, so nothing can settle for
	// more than the gateway would collect
	_, err := svc.CreateTopUpPayment(context.Background(), 7, decimal.RequireFromString("100.50"), "wallet topup", "", "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleWebhookSettlesTopUp(t *testing.T) {
	svc, mock := newPaymentService(t, "http://unused")

	orderCode := int64(900123)

	mock.ExpectQuery("SELECT (.+) FROM `wallet_transaction` WHERE pay_os_order_code").
		WillReturnRows(sqlmock.NewRows(transactionColumns()).
			AddRow(10, "WTX1", 1, 7, model.TransactionTypeTopUp, "20000", "0", "0", int(model.TransactionStatusPending), orderCode))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM `wallet` WHERE user_id = (.+)FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(walletColumns()).
			AddRow(1, 7, "5000", "VND", true, 2))
	mock.ExpectExec("UPDATE `wallet_transaction` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE `wallet` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `outbox_message`").
		WillReturnResult(sqlmock.NewResult(22, 1))
	mock.ExpectCommit()

	err := svc.HandleWebhook(context.Background(), signedWebhook(t, orderCode, 20000, "00", true))
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleWebhookFailsTopUp(t *testing.T) {
	svc, mock := newPaymentService(t, "http://unused")

	orderCode := int64(900123)

	mock.ExpectQuery("SELECT (.+) FROM `wallet_transaction` WHERE pay_os_order_code").
		WillReturnRows(sqlmock.NewRows(transactionColumns()).
			AddRow(10, "WTX1", 1, 7, model.TransactionTypeTopUp, "20000", "0", "0", int(model.TransactionStatusPending), orderCode))
	mock.ExpectExec("UPDATE `wallet_transaction` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.HandleWebhook(context.Background(), signedWebhook(t, orderCode, 20000, "07", false))
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleWebhookTopUpAmountMismatch(t *testing.T) {
	svc, mock := newPaymentService(t, "http://unused")

	orderCode := int64(900123)

	// pending top-up of 20000, gateway claims it collected 19000: the
	// wallet must not be credited
	mock.ExpectQuery("SELECT (.+) FROM `wallet_transaction` WHERE pay_os_order_code").
		WillReturnRows(sqlmock.NewRows(transactionColumns()).
			AddRow(10, "WTX1", 1, 7, model.TransactionTypeTopUp, "20000", "0", "0", int(model.TransactionStatusPending), orderCode))

	err := svc.HandleWebhook(context.Background(), signedWebhook(t, orderCode, 19000, "00", true))
	assert.ErrorIs(t, err, ErrAmountMismatch)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleWebhookSettlesOrderPayment(t *testing.T) {
	svc, mock := newPaymentService(t, "http://unused")

	orderCode := int64(900200)

	// no ledger row for the order code, so the order-payment branch runs
	mock.ExpectQuery("SELECT (.+) FROM `wallet_transaction` WHERE pay_os_order_code").
		WillReturnRows(sqlmock.NewRows(transactionColumns()))
	mock.ExpectQuery("SELECT (.+) FROM `order_payment` WHERE pay_os_order_code").
		WillReturnRows(sqlmock.NewRows(orderPaymentColumns()).
			AddRow(41, 99, orderCode, "135000", int(model.TransactionStatusPending)))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `order_payment` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `outbox_message`").
		WillReturnResult(sqlmock.NewResult(23, 1))
	mock.ExpectCommit()

	err := svc.HandleWebhook(context.Background(), signedWebhook(t, orderCode, 135000, "00", true))
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleWebhookFailsOrderPayment(t *testing.T) {
	svc, mock := newPaymentService(t, "http://unused")

	orderCode := int64(900200)

	mock.ExpectQuery("SELECT (.+) FROM `wallet_transaction` WHERE pay_os_order_code").
		WillReturnRows(sqlmock.NewRows(transactionColumns()))
	mock.ExpectQuery("SELECT (.+) FROM `order_payment` WHERE pay_os_order_code").
		WillReturnRows(sqlmock.NewRows(orderPaymentColumns()).
			AddRow(41, 99, orderCode, "135000", int(model.TransactionStatusPending)))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `order_payment` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `outbox_message`").
		WillReturnResult(sqlmock.NewResult(23, 1))
	mock.ExpectCommit()

	err := svc.HandleWebhook(context.Background(), signedWebhook(t, orderCode, 135000, "07", false))
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleWebhookSettledOrderPaymentIsIdempotent(t *testing.T) {
	svc, mock := newPaymentService(t, "http://unused")

	orderCode := int64(900200)

	// already completed: re-delivery acknowledges without touching the row
	mock.ExpectQuery("SELECT (.+) FROM `wallet_transaction` WHERE pay_os_order_code").
		WillReturnRows(sqlmock.NewRows(transactionColumns()))
	mock.ExpectQuery("SELECT (.+) FROM `order_payment` WHERE pay_os_order_code").
		WillReturnRows(sqlmock.NewRows(orderPaymentColumns()).
			AddRow(41, 99, orderCode, "135000", int(model.TransactionStatusCompleted)))

	err := svc.HandleWebhook(context.Background(), signedWebhook(t, orderCode, 135000, "00", true))
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleWebhookUnknownOrderCode(t *testing.T) {
	svc, mock := newPaymentService(t, "http://unused")

	mock.ExpectQuery("SELECT (.+) FROM `wallet_transaction` WHERE pay_os_order_code").
		WillReturnRows(sqlmock.NewRows(transactionColumns()))
	mock.ExpectQuery("SELECT (.+) FROM `order_payment` WHERE pay_os_order_code").
		WillReturnRows(sqlmock.NewRows(orderPaymentColumns()))

	err := svc.HandleWebhook(context.Background(), signedWebhook(t, 424242, 1000, "00", true))
	assert.ErrorIs(t, err, repository.ErrTransactionNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleWebhookBadSignature(t *testing.T) {
	svc, mock := newPaymentService(t, "http://unused")

	body := signedWebhook(t, 900123, 20000, "00", true)
	tampered := []byte(strings.Replace(string(body), `"amount":20000`, `"amount":99999`, 1))

	err := svc.HandleWebhook(context.Background(), tampered)
	assert.ErrorIs(t, err, payos.ErrSignatureInvalid)

	assert.NoError(t, mock.ExpectationsWereMet())
}
