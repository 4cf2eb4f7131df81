package repository

import (
	"context"
	"errors"
	"time"

	"printpay/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrInsufficientFunds = errors.New("insufficient wallet balance")
	ErrOptimisticLock    = errors.New("wallet was modified concurrently, retry")
)

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) GetByUserID(ctx context.Context, userID int64) (*model.Wallet, error) {
	var wallet model.Wallet
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// GetByUserIDForUpdate reads the wallet row under FOR UPDATE inside tx.
func (r *WalletRepository) GetByUserIDForUpdate(ctx context.Context, tx *gorm.DB, userID int64) (*model.Wallet, error) {
	var wallet model.Wallet
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// GetOrCreate returns the user's wallet, creating it lazily on first access.
// The unique index on user_id plus ON CONFLICT DO NOTHING makes concurrent
// first accesses converge on a single row instead of erroring.
func (r *WalletRepository) GetOrCreate(ctx context.Context, userID int64, currency string) (*model.Wallet, error) {
	wallet, err := r.GetByUserID(ctx, userID)
	if err == nil {
		return wallet, nil
	}

	if !errors.Is(err, ErrWalletNotFound) {
		return nil, err
	}

	newWallet := &model.Wallet{
		UserID:   userID,
		Balance:  decimal.Zero,
		Currency: currency,
		IsActive: true,
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(newWallet).Error

	if err != nil {
		return nil, err
	}

	return r.GetByUserID(ctx, userID)
}

// Debit decrements the balance with a guarded update: the row must still
// have enough balance and the version read earlier. Zero rows affected means
// either insufficient funds or a concurrent writer; the re-read tells which.
func (r *WalletRepository) Debit(ctx context.Context, tx *gorm.DB, userID int64, amount decimal.Decimal, version int) error {
	now := time.Now()
	result := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("user_id = ? AND balance >= ? AND version = ?", userID, amount, version).
		Updates(map[string]interface{}{
			"balance":             gorm.Expr("balance - ?", amount),
			"version":             gorm.Expr("version + 1"),
			"last_transaction_at": &now,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		var wallet model.Wallet
		if err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrWalletNotFound
			}
			return err
		}
		if wallet.Balance.LessThan(amount) {
			return ErrInsufficientFunds
		}
		return ErrOptimisticLock
	}

	return nil
}

// Credit increments the balance unconditionally (credits cannot underflow).
func (r *WalletRepository) Credit(ctx context.Context, tx *gorm.DB, userID int64, amount decimal.Decimal) error {
	now := time.Now()
	result := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"balance":             gorm.Expr("balance + ?", amount),
			"version":             gorm.Expr("version + 1"),
			"last_transaction_at": &now,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrWalletNotFound
	}

	return nil
}
