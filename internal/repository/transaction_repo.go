package repository

import (
	"context"
	"errors"
	"time"

	"printpay/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrTransactionNotFound = errors.New("wallet transaction not found")
	ErrInvalidState        = errors.New("transaction is not in a transitionable state")
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.WalletTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

func (r *TransactionRepository) GetByTransactionNo(ctx context.Context, transactionNo string) (*model.WalletTransaction, error) {
	var trans model.WalletTransaction
	err := r.db.WithContext(ctx).Where("transaction_no = ?", transactionNo).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

func (r *TransactionRepository) GetByOrderCode(ctx context.Context, orderCode int64) (*model.WalletTransaction, error) {
	var trans model.WalletTransaction
	err := r.db.WithContext(ctx).Where("pay_os_order_code = ?", orderCode).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

// GetRefundForPayment returns an existing refund row referencing the given
// payment, or nil if the payment has not been refunded.
func (r *TransactionRepository) GetRefundForPayment(ctx context.Context, transactionNo string) (*model.WalletTransaction, error) {
	var trans model.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("related_transaction_no = ? AND type = ?", transactionNo, model.TransactionTypeRefund).
		First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

// Complete settles a pending transaction. The WHERE status = pending clause
// is the idempotency guard: a transaction already in a terminal state matches
// zero rows and the ledger entry stays untouched.
func (r *TransactionRepository) Complete(ctx context.Context, tx *gorm.DB, transactionNo string, balanceBefore, balanceAfter decimal.Decimal, gatewayTransactionID string) error {
	if tx == nil {
		tx = r.db
	}

	now := time.Now()
	result := tx.WithContext(ctx).
		Model(&model.WalletTransaction{}).
		Where("transaction_no = ? AND status = ?", transactionNo, model.TransactionStatusPending).
		Updates(map[string]interface{}{
			"status":                model.TransactionStatusCompleted,
			"balance_before":        balanceBefore,
			"balance_after":         balanceAfter,
			"pay_os_transaction_id": gatewayTransactionID,
			"completed_at":          &now,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInvalidState
	}
	return nil
}

// MarkTerminal moves a pending transaction to Failed or Cancelled. No
// balance fields change; the transaction never had a balance effect.
func (r *TransactionRepository) MarkTerminal(ctx context.Context, tx *gorm.DB, transactionNo string, target model.TransactionStatus, reason string) error {
	if !model.CanTransitionTo(model.TransactionStatusPending, target) {
		return ErrInvalidState
	}

	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.WalletTransaction{}).
		Where("transaction_no = ? AND status = ?", transactionNo, model.TransactionStatusPending).
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

// ListByUserID pages through a user's ledger, newest first. Pages are
// 1-indexed.
func (r *TransactionRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.WalletTransaction, int64, error) {
	var transactions []*model.WalletTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.WalletTransaction{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}

// GetExpiredPending returns pending top-ups whose expiry passed; the expiry
// job cancels them.
func (r *TransactionRepository) GetExpiredPending(ctx context.Context, limit int) ([]*model.WalletTransaction, error) {
	var transactions []*model.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND expired_at IS NOT NULL AND expired_at < ?", model.TransactionStatusPending, time.Now()).
		Limit(limit).
		Find(&transactions).Error
	return transactions, err
}
