package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"printpay/internal/config"
	"printpay/internal/model"
	"printpay/internal/repository"
	"printpay/pkg/idgen"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrInvalidAmount  = errors.New("amount must be greater than zero")
	ErrWalletInactive = errors.New("wallet is not active")
)

// WalletService owns every wallet balance mutation. Each mutation runs as
// one DB transaction covering the balance read, the ledger insert and the
// guarded balance write, so the ledger and the balance can never diverge.
type WalletService struct {
	db              *gorm.DB
	cfg             *config.Config
	walletRepo      *repository.WalletRepository
	transactionRepo *repository.TransactionRepository
	outboxRepo      *repository.OutboxRepository
}

func NewWalletService(db *gorm.DB, cfg *config.Config) *WalletService {
	return &WalletService{
		db:              db,
		cfg:             cfg,
		walletRepo:      repository.NewWalletRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

// GetOrCreateWallet returns the user's wallet, creating an empty active one
// on first access. Safe under concurrent first calls for the same user.
func (s *WalletService) GetOrCreateWallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	return s.walletRepo.GetOrCreate(ctx, userID, s.cfg.Business.Currency)
}

func (s *WalletService) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	wallet, err := s.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return wallet.Balance, nil
}

func (s *WalletService) HasSufficientBalance(ctx context.Context, userID int64, amount decimal.Decimal) (bool, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return false, ErrInvalidAmount
	}
	balance, err := s.GetBalance(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance.GreaterThanOrEqual(amount), nil
}

type PayFromWalletRequest struct {
	UserID      int64
	OrderID     int64
	Amount      decimal.Decimal
	Description string
}

// PayFromWallet debits the wallet for an order. Completes synchronously:
// there is no gateway round-trip, so the ledger row is born Completed.
// Insufficient balance fails before any write.
func (s *WalletService) PayFromWallet(ctx context.Context, req *PayFromWalletRequest) (*model.WalletTransaction, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	wallet, err := s.GetOrCreateWallet(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if !wallet.IsActive {
		return nil, ErrWalletInactive
	}
	if wallet.Balance.LessThan(req.Amount) {
		return nil, repository.ErrInsufficientFunds
	}

	var trans *model.WalletTransaction

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// re-read under FOR UPDATE; the unlocked check above was only a
		// fast path to fail without opening a write transaction
		locked, err := s.walletRepo.GetByUserIDForUpdate(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if locked.Balance.LessThan(req.Amount) {
			return repository.ErrInsufficientFunds
		}

		now := time.Now()
		orderID := req.OrderID
		trans = &model.WalletTransaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			WalletID:      locked.ID,
			UserID:        req.UserID,
			OrderID:       &orderID,
			Type:          model.TransactionTypePayment,
			Amount:        req.Amount,
			BalanceBefore: locked.Balance,
			BalanceAfter:  locked.Balance.Sub(req.Amount),
			Description:   req.Description,
			Status:        model.TransactionStatusCompleted,
			CompletedAt:   &now,
		}
		if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
			return fmt.Errorf("failed to write ledger entry: %w", err)
		}

		if err := s.walletRepo.Debit(ctx, tx, req.UserID, req.Amount, locked.Version); err != nil {
			return fmt.Errorf("failed to debit wallet: %w", err)
		}

		return s.writeEvent(ctx, tx, "wallet.payment.completed", trans.TransactionNo, map[string]interface{}{
			"transaction_no": trans.TransactionNo,
			"user_id":        req.UserID,
			"order_id":       req.OrderID,
			"amount":         req.Amount.String(),
			"balance_after":  trans.BalanceAfter.String(),
			"completed_at":   now.Format(time.RFC3339),
		})
	})

	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"transaction_no": trans.TransactionNo,
		"user_id":        req.UserID,
		"order_id":       req.OrderID,
		"amount":         req.Amount.String(),
	}).Info("wallet payment completed")

	return trans, nil
}

// CreateTopUpTransaction records a pending top-up tagged with the gateway
// order code. No balance effect until the webhook settles it.
func (s *WalletService) CreateTopUpTransaction(ctx context.Context, userID int64, amount decimal.Decimal, orderCode int64, description string) (*model.WalletTransaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	wallet, err := s.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !wallet.IsActive {
		return nil, ErrWalletInactive
	}

	expiredAt := time.Now().Add(time.Duration(s.cfg.Business.PaymentTimeoutMinutes) * time.Minute)
	trans := &model.WalletTransaction{
		TransactionNo:  idgen.GenerateTransactionNo(),
		WalletID:       wallet.ID,
		UserID:         userID,
		Type:           model.TransactionTypeTopUp,
		Amount:         amount,
		BalanceBefore:  wallet.Balance,
		BalanceAfter:   wallet.Balance,
		Description:    description,
		PayOSOrderCode: &orderCode,
		Status:         model.TransactionStatusPending,
		ExpiredAt:      &expiredAt,
	}

	if err := s.transactionRepo.Create(ctx, nil, trans); err != nil {
		return nil, fmt.Errorf("failed to create top-up transaction: %w", err)
	}

	return trans, nil
}

// CompleteTopUpTransaction settles a pending top-up: credits the wallet and
// finalizes the ledger row in one transaction. The caller passes the row it
// already resolved from the gateway order code. A duplicate delivery for an
// already completed top-up is a no-op success; the credit is applied exactly
// once.
func (s *WalletService) CompleteTopUpTransaction(ctx context.Context, trans *model.WalletTransaction, gatewayTransactionID string) error {
	if trans.Status.IsTerminal() {
		if trans.Status == model.TransactionStatusCompleted {
			return nil // duplicate webhook delivery
		}
		return repository.ErrInvalidState
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, tx, trans.UserID)
		if err != nil {
			return err
		}

		balanceBefore := wallet.Balance
		balanceAfter := balanceBefore.Add(trans.Amount)

		if err := s.transactionRepo.Complete(ctx, tx, trans.TransactionNo, balanceBefore, balanceAfter, gatewayTransactionID); err != nil {
			return err
		}

		if err := s.walletRepo.Credit(ctx, tx, trans.UserID, trans.Amount); err != nil {
			return fmt.Errorf("failed to credit wallet: %w", err)
		}

		return s.writeEvent(ctx, tx, "wallet.topup.completed", trans.TransactionNo, map[string]interface{}{
			"transaction_no":   trans.TransactionNo,
			"user_id":          trans.UserID,
			"amount":           trans.Amount.String(),
			"balance_after":    balanceAfter.String(),
			"payos_order_code": trans.PayOSOrderCode,
			"completed_at":     time.Now().Format(time.RFC3339),
		})
	})

	if errors.Is(err, repository.ErrInvalidState) {
		// lost the race against another delivery; re-read to decide
		current, readErr := s.transactionRepo.GetByTransactionNo(ctx, trans.TransactionNo)
		if readErr == nil && current.Status == model.TransactionStatusCompleted {
			return nil
		}
		return repository.ErrInvalidState
	}
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"transaction_no": trans.TransactionNo,
		"user_id":        trans.UserID,
		"amount":         trans.Amount.String(),
	}).Info("top-up completed")

	return nil
}

// FailTopUpTransaction marks the pending top-up failed. No balance change.
// Already-terminal transactions are left untouched.
func (s *WalletService) FailTopUpTransaction(ctx context.Context, trans *model.WalletTransaction, reason string) error {
	if trans.Status.IsTerminal() {
		return nil
	}

	err := s.transactionRepo.MarkTerminal(ctx, nil, trans.TransactionNo, model.TransactionStatusFailed, reason)
	if errors.Is(err, repository.ErrInvalidState) {
		return nil // settled or cancelled concurrently; terminal either way
	}
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"transaction_no": trans.TransactionNo,
		"reason":         reason,
	}).Info("top-up failed")

	return nil
}

// GetTransactionHistory pages through the user's ledger, newest first.
// Pages are 1-indexed.
func (s *WalletService) GetTransactionHistory(ctx context.Context, userID int64, page, pageSize int) ([]*model.WalletTransaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return s.transactionRepo.ListByUserID(ctx, userID, page, pageSize)
}

// writeEvent stages a wallet event in the outbox inside the caller's DB
// transaction.
func (s *WalletService) writeEvent(ctx context.Context, tx *gorm.DB, event, key string, payload map[string]interface{}) error {
	payload["event"] = event
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	msg := &model.OutboxMessage{
		MessageKey: key,
		Topic:      s.cfg.Kafka.Topic.WalletEvents,
		Payload:    string(body),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("failed to stage outbox event: %w", err)
	}
	return nil
}
