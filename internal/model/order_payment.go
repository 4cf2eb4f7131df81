package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderPayment tracks a checkout-link payment for a storefront order paid
// directly through PayOS, with no wallet involvement. The order subsystem
// owns the order itself; this row only correlates the gateway order code
// with the order and records settlement.
//
// It shares the transaction status enum: Pending until the webhook settles
// it, then Completed/Failed, or Cancelled by the expiry job.
type OrderPayment struct {
	ID             int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID        int64             `gorm:"index;not null" json:"order_id"`
	PayOSOrderCode int64             `gorm:"uniqueIndex;not null" json:"payos_order_code"`
	Amount         decimal.Decimal   `gorm:"type:decimal(19,2);not null" json:"amount"`
	Description    string            `gorm:"type:varchar(256)" json:"description"`
	Status         TransactionStatus `gorm:"index;not null" json:"status"`
	PaymentLinkID  string            `gorm:"type:varchar(64)" json:"payment_link_id,omitempty"`
	CheckoutURL    string            `gorm:"type:varchar(512)" json:"checkout_url,omitempty"`
	FailureReason  string            `gorm:"type:varchar(256)" json:"failure_reason,omitempty"`
	ExpiredAt      time.Time         `gorm:"not null" json:"expired_at"`
	PaidAt         *time.Time        `json:"paid_at,omitempty"`
	CreatedAt      time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OrderPayment) TableName() string {
	return "order_payment"
}
