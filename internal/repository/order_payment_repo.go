package repository

import (
	"context"
	"errors"
	"time"

	"printpay/internal/model"

	"gorm.io/gorm"
)

var ErrOrderPaymentNotFound = errors.New("order payment not found")

type OrderPaymentRepository struct {
	db *gorm.DB
}

func NewOrderPaymentRepository(db *gorm.DB) *OrderPaymentRepository {
	return &OrderPaymentRepository{db: db}
}

func (r *OrderPaymentRepository) Create(ctx context.Context, tx *gorm.DB, payment *model.OrderPayment) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(payment).Error
}

func (r *OrderPaymentRepository) GetByOrderCode(ctx context.Context, orderCode int64) (*model.OrderPayment, error) {
	var payment model.OrderPayment
	err := r.db.WithContext(ctx).Where("pay_os_order_code = ?", orderCode).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (r *OrderPaymentRepository) GetByOrderID(ctx context.Context, orderID int64) (*model.OrderPayment, error) {
	var payment model.OrderPayment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

// Settle marks a pending payment Completed. Compare-and-swap on status, same
// idempotency guard as the wallet ledger.
func (r *OrderPaymentRepository) Settle(ctx context.Context, tx *gorm.DB, orderCode int64, paymentLinkID string) error {
	if tx == nil {
		tx = r.db
	}

	now := time.Now()
	result := tx.WithContext(ctx).
		Model(&model.OrderPayment{}).
		Where("pay_os_order_code = ? AND status = ?", orderCode, model.TransactionStatusPending).
		Updates(map[string]interface{}{
			"status":          model.TransactionStatusCompleted,
			"payment_link_id": paymentLinkID,
			"paid_at":         &now,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInvalidState
	}
	return nil
}

// MarkTerminal moves a pending payment to Failed or Cancelled.
func (r *OrderPaymentRepository) MarkTerminal(ctx context.Context, tx *gorm.DB, orderCode int64, target model.TransactionStatus, reason string) error {
	if !model.CanTransitionTo(model.TransactionStatusPending, target) {
		return ErrInvalidState
	}

	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.OrderPayment{}).
		Where("pay_os_order_code = ? AND status = ?", orderCode, model.TransactionStatusPending).
		Updates(map[string]interface{}{
			"status":         target,
			"failure_reason": reason,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInvalidState
	}
	return nil
}

func (r *OrderPaymentRepository) GetExpiredPending(ctx context.Context, limit int) ([]*model.OrderPayment, error) {
	var payments []*model.OrderPayment
	err := r.db.WithContext(ctx).
		Where("status = ? AND expired_at < ?", model.TransactionStatusPending, time.Now()).
		Limit(limit).
		Find(&payments).Error
	return payments, err
}
