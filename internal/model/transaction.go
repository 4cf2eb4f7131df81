package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransactionTypeTopUp   = "topup"   // gateway deposit into the wallet
	TransactionTypePayment = "payment" // order paid from wallet balance
	TransactionTypeRefund  = "refund"  // wallet payment returned to the wallet
)

// TransactionStatus is the lifecycle of a wallet transaction. Completed,
// Failed and Cancelled are terminal: once reached, the row is immutable.
type TransactionStatus int

const (
	TransactionStatusPending   TransactionStatus = 1
	TransactionStatusCompleted TransactionStatus = 2
	TransactionStatusFailed    TransactionStatus = 3
	TransactionStatusCancelled TransactionStatus = 4
)

var transactionStatusNames = map[TransactionStatus]string{
	TransactionStatusPending:   "pending",
	TransactionStatusCompleted: "completed",
	TransactionStatusFailed:    "failed",
	TransactionStatusCancelled: "cancelled",
}

func (s TransactionStatus) String() string {
	if name, ok := transactionStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsTerminal reports whether the status absorbs all further transitions.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed || s == TransactionStatusCancelled
}

var validStatusTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPending: {TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusCancelled},
}

func CanTransitionTo(current, target TransactionStatus) bool {
	allowed, exists := validStatusTransitions[current]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// WalletTransaction is the append-only wallet ledger. Rows record the balance
// before and after every completed mutation so the wallet balance can be
// reconciled against the ledger at any time:
//
//	balance == sum(completed topup/refund amounts) - sum(completed payment amounts)
//
// Top-up rows start Pending with no balance effect and are settled by the
// PayOS webhook; wallet payments complete synchronously. Refund rows carry
// the transaction number of the payment they reverse.
type WalletTransaction struct {
	ID                   int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo        string            `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	WalletID             int64             `gorm:"index;not null" json:"wallet_id"`
	UserID               int64             `gorm:"index;not null" json:"user_id"`
	OrderID              *int64            `gorm:"index" json:"order_id,omitempty"`
	Type                 string            `gorm:"type:varchar(20);not null" json:"type"`
	Amount               decimal.Decimal   `gorm:"type:decimal(19,2);not null" json:"amount"`
	BalanceBefore        decimal.Decimal   `gorm:"type:decimal(19,2);not null" json:"balance_before"`
	BalanceAfter         decimal.Decimal   `gorm:"type:decimal(19,2);not null" json:"balance_after"`
	Description          string            `gorm:"type:varchar(256)" json:"description"`
	PayOSOrderCode       *int64            `gorm:"uniqueIndex" json:"payos_order_code,omitempty"`
	PayOSTransactionID   string            `gorm:"type:varchar(64)" json:"payos_transaction_id,omitempty"`
	RelatedTransactionNo string            `gorm:"type:varchar(64)" json:"related_transaction_no,omitempty"`
	Status               TransactionStatus `gorm:"index;not null" json:"status"`
	CompletedAt          *time.Time        `json:"completed_at,omitempty"`
	FailureReason        string            `gorm:"type:varchar(256)" json:"failure_reason,omitempty"`
	ExpiredAt            *time.Time        `json:"expired_at,omitempty"`
	CreatedAt            time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transaction"
}
