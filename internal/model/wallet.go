package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is the per-user stored-value balance. One row per user, created
// lazily on first access.
//
// The balance is never written directly by handlers or services: every
// mutation happens inside the same DB transaction that appends the matching
// WalletTransaction row, guarded by the optimistic-lock version column.
type Wallet struct {
	ID                int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID            int64           `gorm:"uniqueIndex;not null" json:"user_id"`
	Balance           decimal.Decimal `gorm:"type:decimal(19,2);not null;default:0" json:"balance"`
	Currency          string          `gorm:"type:varchar(3);not null;default:VND" json:"currency"`
	IsActive          bool            `gorm:"not null;default:true" json:"is_active"`
	Version           int             `gorm:"not null;default:0" json:"-"`
	LastTransactionAt *time.Time      `json:"last_transaction_at"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string {
	return "wallet"
}
