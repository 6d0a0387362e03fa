package models

import (
	"time"

	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/shopspring/decimal"
)

// LoyaltyAccountModel is the persistence model for a loyalty account.
// Version backs the optimistic conditional write.
type LoyaltyAccountModel struct {
	CustomerID    string          `gorm:"type:varchar(255);primaryKey"`
	CurrentPoints decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0"`
	Version       int             `gorm:"not null;default:1"`
	CreatedAt     time.Time       `gorm:"not null"`
	UpdatedAt     time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (LoyaltyAccountModel) TableName() string {
	return "loyalty"
}

// LoyaltyTransactionModel is one row of an account's history.
// (customer_id, order_number) is unique; it is the idempotency key.
type LoyaltyTransactionModel struct {
	ID          int64           `gorm:"primaryKey;autoIncrement"`
	CustomerID  string          `gorm:"type:varchar(255);not null;uniqueIndex:uq_loyalty_transaction_order,priority:1"`
	DateEpoch   int64           `gorm:"column:date_epoch;not null"` // epoch millis, UTC
	OrderNumber string          `gorm:"type:varchar(255);not null;uniqueIndex:uq_loyalty_transaction_order,priority:2"`
	Change      decimal.Decimal `gorm:"type:decimal(20,4);not null"`
}

// TableName returns the table name for GORM
func (LoyaltyTransactionModel) TableName() string {
	return "loyalty_transaction"
}

// ToDomain converts the row to a domain transaction
func (m *LoyaltyTransactionModel) ToDomain() loyalty.Transaction {
	return loyalty.Transaction{
		Date:        time.UnixMilli(m.DateEpoch).UTC(),
		OrderNumber: m.OrderNumber,
		Change:      m.Change,
	}
}

// LoyaltyTransactionModelFromDomain converts a domain transaction to a row
func LoyaltyTransactionModelFromDomain(customerID string, t *loyalty.Transaction) *LoyaltyTransactionModel {
	return &LoyaltyTransactionModel{
		CustomerID:  customerID,
		DateEpoch:   t.Date.UnixMilli(),
		OrderNumber: t.OrderNumber,
		Change:      t.Change,
	}
}

// ToDomain rebuilds the aggregate from the account row and its ordered history
func (m *LoyaltyAccountModel) ToDomain(history []LoyaltyTransactionModel) (*loyalty.Account, error) {
	txs := make([]loyalty.Transaction, len(history))
	for i := range history {
		txs[i] = history[i].ToDomain()
	}
	account, err := loyalty.RestoreAccountFromDecimal(m.CustomerID, m.CurrentPoints, txs)
	if err != nil {
		return nil, err
	}
	return account.WithVersion(m.Version), nil
}
