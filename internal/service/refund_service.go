package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"printpay/internal/config"
	"printpay/internal/infrastructure/lock"
	"printpay/internal/model"
	"printpay/internal/repository"
	"printpay/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var ErrNotRefundable = errors.New("transaction is not a completed wallet payment")

// RefundService returns a completed wallet payment to the wallet. Full
// amount only, once per payment; the refund ledger row references the
// original payment so the pair stays auditable.
type RefundService struct {
	db              *gorm.DB
	redisClient     *redis.Client
	cfg             *config.Config
	walletRepo      *repository.WalletRepository
	transactionRepo *repository.TransactionRepository
	walletService   *WalletService
}

func NewRefundService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, walletService *WalletService) *RefundService {
	return &RefundService{
		db:              db,
		redisClient:     redisClient,
		cfg:             cfg,
		walletRepo:      repository.NewWalletRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		walletService:   walletService,
	}
}

type RefundResponse struct {
	RefundNo      string                   `json:"refund_no"`
	TransactionNo string                   `json:"transaction_no"`
	Amount        string                   `json:"amount"`
	Status        string                   `json:"status"`
	Transaction   *model.WalletTransaction `json:"transaction,omitempty"`
}

// Refund reverses the wallet payment identified by transactionNo. A repeat
// call for an already refunded payment returns the existing refund rather
// than crediting twice.
func (s *RefundService) Refund(ctx context.Context, transactionNo, reason string) (*RefundResponse, error) {
	payment, err := s.transactionRepo.GetByTransactionNo(ctx, transactionNo)
	if err != nil {
		return nil, err
	}

	if payment.Type != model.TransactionTypePayment || payment.Status != model.TransactionStatusCompleted {
		return nil, ErrNotRefundable
	}

	if existing, err := s.transactionRepo.GetRefundForPayment(ctx, transactionNo); err != nil {
		return nil, fmt.Errorf("failed to check for existing refund: %w", err)
	} else if existing != nil {
		return refundResponse(existing), nil
	}

	refundLock := lock.NewDistributedLock(
		s.redisClient,
		fmt.Sprintf("refund:lock:transaction:%s", transactionNo),
		uuid.NewString(),
		30*time.Second,
	)
	if err := refundLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("refund busy for %s: %w", transactionNo, err)
	}
	defer refundLock.Unlock(ctx)

	// second look under the lock
	if existing, err := s.transactionRepo.GetRefundForPayment(ctx, transactionNo); err != nil {
		return nil, fmt.Errorf("failed to check for existing refund: %w", err)
	} else if existing != nil {
		return refundResponse(existing), nil
	}

	var refund *model.WalletTransaction

	err = s.db.Transaction(func(tx *gorm.DB) error {
		wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, tx, payment.UserID)
		if err != nil {
			return err
		}

		now := time.Now()
		refund = &model.WalletTransaction{
			TransactionNo:        idgen.GenerateRefundNo(),
			WalletID:             wallet.ID,
			UserID:               payment.UserID,
			OrderID:              payment.OrderID,
			Type:                 model.TransactionTypeRefund,
			Amount:               payment.Amount,
			BalanceBefore:        wallet.Balance,
			BalanceAfter:         wallet.Balance.Add(payment.Amount),
			Description:          reason,
			RelatedTransactionNo: payment.TransactionNo,
			Status:               model.TransactionStatusCompleted,
			CompletedAt:          &now,
		}
		if err := s.transactionRepo.Create(ctx, tx, refund); err != nil {
			return fmt.Errorf("failed to write refund ledger entry: %w", err)
		}

		if err := s.walletRepo.Credit(ctx, tx, payment.UserID, payment.Amount); err != nil {
			return fmt.Errorf("failed to credit wallet: %w", err)
		}

		return s.walletService.writeEvent(ctx, tx, "wallet.refund.completed", refund.TransactionNo, map[string]interface{}{
			"refund_no":      refund.TransactionNo,
			"transaction_no": payment.TransactionNo,
			"user_id":        payment.UserID,
			"amount":         payment.Amount.String(),
			"balance_after":  refund.BalanceAfter.String(),
			"reason":         reason,
			"refunded_at":    now.Format(time.RFC3339),
		})
	})

	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"refund_no":      refund.TransactionNo,
		"transaction_no": payment.TransactionNo,
		"user_id":        payment.UserID,
		"amount":         payment.Amount.String(),
	}).Info("wallet payment refunded")

	return refundResponse(refund), nil
}

func refundResponse(refund *model.WalletTransaction) *RefundResponse {
	return &RefundResponse{
		RefundNo:      refund.TransactionNo,
		TransactionNo: refund.RelatedTransactionNo,
		Amount:        refund.Amount.String(),
		Status:        refund.Status.String(),
		Transaction:   refund,
	}
}
