package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"printpay/internal/config"
	"printpay/internal/gateway/payos"
	"printpay/internal/infrastructure/lock"
	"printpay/internal/model"
	"printpay/internal/repository"
	"printpay/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrAmountMismatch means a verified webhook reported a different amount
// than the pending payment it settles. The settlement is not applied.
var ErrAmountMismatch = errors.New("webhook amount does not match the pending payment")

// settlementLocks serializes webhook processing per gateway order code.
type settlementLocks interface {
	Acquire(ctx context.Context, orderCode int64) (release func(context.Context), err error)
}

type redisSettlementLocks struct {
	client *redis.Client
}

func (l redisSettlementLocks) Acquire(ctx context.Context, orderCode int64) (func(context.Context), error) {
	settlementLock := lock.NewSettlementLock(l.client, orderCode, uuid.NewString())
	if err := settlementLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, err
	}
	return func(ctx context.Context) { settlementLock.Unlock(ctx) }, nil
}

// PaymentService fronts the PayOS gateway: it creates checkout links for
// wallet top-ups and direct order payments, and consumes the settlement
// webhooks for both.
type PaymentService struct {
	db               *gorm.DB
	redisClient      *redis.Client
	cfg              *config.Config
	gateway          *payos.Client
	walletService    *WalletService
	transactionRepo  *repository.TransactionRepository
	orderPaymentRepo *repository.OrderPaymentRepository
	locks            settlementLocks
}

func NewPaymentService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, gateway *payos.Client, walletService *WalletService) *PaymentService {
	return &PaymentService{
		db:               db,
		redisClient:      redisClient,
		cfg:              cfg,
		gateway:          gateway,
		walletService:    walletService,
		transactionRepo:  repository.NewTransactionRepository(db),
		orderPaymentRepo: repository.NewOrderPaymentRepository(db),
		locks:            redisSettlementLocks{client: redisClient},
	}
}

// CheckoutResponse carries everything the storefront needs to render a
// payment: hosted checkout link, VietQR string and bank transfer details.
type CheckoutResponse struct {
	CheckoutURL   string          `json:"checkout_url"`
	OrderCode     int64           `json:"order_code"`
	QRCode        string          `json:"qr_code"`
	AccountNumber string          `json:"account_number"`
	AccountName   string          `json:"account_name"`
	Bin           string          `json:"bin"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	PaymentLinkID string          `json:"payment_link_id"`
}

// CreateTopUpPayment registers a pending top-up and asks the gateway for a
// checkout link. If the gateway call fails, the pending transaction is
// marked failed; nothing was credited, so no wallet state is corrupted.
//
// PayOS amounts are whole VND. A fractional amount is rejected rather than
// truncated, otherwise the ledger row and the gateway request would disagree.
func (s *PaymentService) CreateTopUpPayment(ctx context.Context, userID int64, amount decimal.Decimal, description, returnURL, cancelURL string) (*CheckoutResponse, error) {
	if amount.LessThanOrEqual(decimal.Zero) || !amount.IsInteger() {
		return nil, ErrInvalidAmount
	}

	orderCode := idgen.GenerateOrderCode()

	trans, err := s.walletService.CreateTopUpTransaction(ctx, userID, amount, orderCode, description)
	if err != nil {
		return nil, err
	}

	linkData, err := s.createLink(ctx, orderCode, amount, description, returnURL, cancelURL)
	if err != nil {
		if failErr := s.walletService.FailTopUpTransaction(ctx, trans, "gateway request failed"); failErr != nil {
			logrus.WithError(failErr).WithField("payos_order_code", orderCode).
				Warn("could not fail top-up after gateway error")
		}
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"transaction_no":   trans.TransactionNo,
		"user_id":          userID,
		"payos_order_code": orderCode,
		"amount":           amount.String(),
	}).Info("top-up payment link created")

	return checkoutResponse(linkData, amount, description), nil
}

// CreateOrderPayment is the direct-checkout path for an order paid through
// the gateway instead of from wallet balance.
func (s *PaymentService) CreateOrderPayment(ctx context.Context, orderID int64, amount decimal.Decimal, description, returnURL, cancelURL string) (*CheckoutResponse, error) {
	if amount.LessThanOrEqual(decimal.Zero) || !amount.IsInteger() {
		return nil, ErrInvalidAmount
	}

	orderCode := idgen.GenerateOrderCode()
	expiredAt := time.Now().Add(time.Duration(s.cfg.Business.PaymentTimeoutMinutes) * time.Minute)

	payment := &model.OrderPayment{
		OrderID:        orderID,
		PayOSOrderCode: orderCode,
		Amount:         amount,
		Description:    description,
		Status:         model.TransactionStatusPending,
		ExpiredAt:      expiredAt,
	}
	if err := s.orderPaymentRepo.Create(ctx, nil, payment); err != nil {
		return nil, fmt.Errorf("failed to create order payment: %w", err)
	}

	linkData, err := s.createLink(ctx, orderCode, amount, description, returnURL, cancelURL)
	if err != nil {
		if failErr := s.orderPaymentRepo.MarkTerminal(ctx, nil, orderCode, model.TransactionStatusFailed, "gateway request failed"); failErr != nil {
			logrus.WithError(failErr).WithField("payos_order_code", orderCode).
				Warn("could not fail order payment after gateway error")
		}
		return nil, err
	}

	err = s.db.WithContext(ctx).
		Model(&model.OrderPayment{}).
		Where("pay_os_order_code = ?", orderCode).
		Updates(map[string]interface{}{
			"checkout_url":    linkData.CheckoutURL,
			"payment_link_id": linkData.PaymentLinkID,
		}).Error
	if err != nil {
		logrus.WithError(err).WithField("payos_order_code", orderCode).
			Warn("could not store checkout link on order payment")
	}

	logrus.WithFields(logrus.Fields{
		"order_id":         orderID,
		"payos_order_code": orderCode,
		"amount":           amount.String(),
	}).Info("order payment link created")

	return checkoutResponse(linkData, amount, description), nil
}

func (s *PaymentService) createLink(ctx context.Context, orderCode int64, amount decimal.Decimal, description, returnURL, cancelURL string) (*payos.PaymentLinkData, error) {
	if returnURL == "" {
		returnURL = s.cfg.PayOS.ReturnURL
	}
	if cancelURL == "" {
		cancelURL = s.cfg.PayOS.CancelURL
	}

	return s.gateway.CreatePaymentLink(ctx, &payos.CreatePaymentRequest{
		OrderCode:   orderCode,
		Amount:      amount.IntPart(),
		Description: description,
		ReturnURL:   returnURL,
		CancelURL:   cancelURL,
	})
}

func checkoutResponse(data *payos.PaymentLinkData, amount decimal.Decimal, description string) *CheckoutResponse {
	return &CheckoutResponse{
		CheckoutURL:   data.CheckoutURL,
		OrderCode:     data.OrderCode,
		QRCode:        data.QRCode,
		AccountNumber: data.AccountNumber,
		AccountName:   data.AccountName,
		Bin:           data.Bin,
		Amount:        amount,
		Description:   description,
		PaymentLinkID: data.PaymentLinkID,
	}
}

// HandleWebhook verifies a gateway callback and applies the settlement. No
// payload field is interpreted before the signature verifies. Re-delivery of
// an already-applied webhook is a no-op: settlement is a compare-and-swap on
// the pending status.
func (s *PaymentService) HandleWebhook(ctx context.Context, rawPayload []byte) error {
	envelope, data, err := s.gateway.VerifyWebhook(rawPayload)
	if err != nil {
		return err
	}

	release, err := s.locks.Acquire(ctx, data.OrderCode)
	if err != nil {
		return fmt.Errorf("settlement busy for order code %d: %w", data.OrderCode, err)
	}
	defer release(ctx)

	settled := envelope.Success && data.Settled()

	// a gateway order code belongs to either a wallet top-up or a direct
	// order payment; try the ledger first
	if trans, err := s.transactionRepo.GetByOrderCode(ctx, data.OrderCode); err == nil {
		if settled {
			if !decimal.NewFromInt(data.Amount).Equal(trans.Amount) {
				return fmt.Errorf("%w: gateway collected %d for top-up of %s", ErrAmountMismatch, data.Amount, trans.Amount)
			}
			return s.walletService.CompleteTopUpTransaction(ctx, trans, data.PaymentLinkID)
		}
		return s.walletService.FailTopUpTransaction(ctx, trans, data.Desc)
	} else if !errors.Is(err, repository.ErrTransactionNotFound) {
		return err
	}

	if settled {
		return s.completeOrderPayment(ctx, data)
	}
	return s.failOrderPayment(ctx, data.OrderCode, data.Desc)
}

func (s *PaymentService) completeOrderPayment(ctx context.Context, data *payos.WebhookData) error {
	payment, err := s.orderPaymentRepo.GetByOrderCode(ctx, data.OrderCode)
	if err != nil {
		if errors.Is(err, repository.ErrOrderPaymentNotFound) {
			return repository.ErrTransactionNotFound
		}
		return err
	}

	if !decimal.NewFromInt(data.Amount).Equal(payment.Amount) {
		return fmt.Errorf("%w: gateway collected %d for order payment of %s", ErrAmountMismatch, data.Amount, payment.Amount)
	}

	if payment.Status.IsTerminal() {
		if payment.Status == model.TransactionStatusCompleted {
			return nil
		}
		return repository.ErrInvalidState
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.orderPaymentRepo.Settle(ctx, tx, data.OrderCode, data.PaymentLinkID); err != nil {
			return err
		}
		return s.writeOrderEvent(ctx, tx, "order.payment.completed", payment, data.Reference)
	})

	if errors.Is(err, repository.ErrInvalidState) {
		current, readErr := s.orderPaymentRepo.GetByOrderCode(ctx, data.OrderCode)
		if readErr == nil && current.Status == model.TransactionStatusCompleted {
			return nil
		}
		return repository.ErrInvalidState
	}
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"order_id":         payment.OrderID,
		"payos_order_code": data.OrderCode,
		"amount":           payment.Amount.String(),
	}).Info("order payment settled")

	return nil
}

func (s *PaymentService) failOrderPayment(ctx context.Context, orderCode int64, reason string) error {
	payment, err := s.orderPaymentRepo.GetByOrderCode(ctx, orderCode)
	if err != nil {
		if errors.Is(err, repository.ErrOrderPaymentNotFound) {
			return repository.ErrTransactionNotFound
		}
		return err
	}

	if payment.Status.IsTerminal() {
		return nil
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.orderPaymentRepo.MarkTerminal(ctx, tx, orderCode, model.TransactionStatusFailed, reason); err != nil {
			return err
		}
		return s.writeOrderEvent(ctx, tx, "order.payment.failed", payment, reason)
	})

	if errors.Is(err, repository.ErrInvalidState) {
		return nil
	}
	return err
}

func (s *PaymentService) writeOrderEvent(ctx context.Context, tx *gorm.DB, event string, payment *model.OrderPayment, detail string) error {
	return s.walletService.writeEvent(ctx, tx, event, fmt.Sprintf("%d", payment.PayOSOrderCode), map[string]interface{}{
		"order_id":         payment.OrderID,
		"payos_order_code": payment.PayOSOrderCode,
		"amount":           payment.Amount.String(),
		"detail":           detail,
		"occurred_at":      time.Now().Format(time.RFC3339),
	})
}

// GetOrderPayment returns the latest gateway payment for an order.
func (s *PaymentService) GetOrderPayment(ctx context.Context, orderID int64) (*model.OrderPayment, error) {
	return s.orderPaymentRepo.GetByOrderID(ctx, orderID)
}
