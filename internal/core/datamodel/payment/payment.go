package payment

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	StatusPending    = "pending"
	StatusAuthorized = "authorized"
	StatusPaid       = "paid"
	StatusRefunded   = "refunded"
	StatusVoid       = "void"
)

// Payment is the persisted payment row. ExternalID is written once on insert;
// status updates only touch Status, Metadata and UpdatedAt.
type Payment struct {
	ID         int64           `gorm:"primaryKey"`
	BookingID  int64           `gorm:"column:booking_id;not null;index"`
	Provider   string          `gorm:"column:provider;not null"`
	Strategy   string          `gorm:"column:strategy;not null"`
	Amount     decimal.Decimal `gorm:"column:amount;type:decimal(12,2);not null"`
	Currency   string          `gorm:"column:currency;size:3;not null"`
	Status     string          `gorm:"column:status;not null;default:'pending';index"`
	ExternalID string          `gorm:"column:external_id;uniqueIndex:idx_payments_external_id,where:external_id <> ''"`
	Metadata   datatypes.JSON  `gorm:"column:metadata"`
	CreatedAt  time.Time       `gorm:"column:created_at"`
	UpdatedAt  time.Time       `gorm:"column:updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

// IsTerminal reports whether no further lifecycle operation may move the payment.
func (p *Payment) IsTerminal() bool {
	return p.Status == StatusRefunded || p.Status == StatusVoid
}
