package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/shopspring/decimal"
)

// accountSnapshot is the cached representation of an account: the account
// projection plus the ledger version it was read at. Points are JSON numbers
// carrying the exact decimal digits.
type accountSnapshot struct {
	CustomerID    string                `json:"customer_id"`
	CurrentPoints json.Number           `json:"current_points"`
	Transactions  []transactionSnapshot `json:"transactions"`
	Version       int                   `json:"version"`
}

type transactionSnapshot struct {
	Date        time.Time   `json:"date"`
	OrderNumber string      `json:"order_number"`
	Change      json.Number `json:"change"`
}

func points(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func parsePoints(field string, n json.Number) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid account snapshot: %s: %w", field, err)
	}
	return d, nil
}

func encodeAccount(account *loyalty.Account) ([]byte, error) {
	txs := account.Transactions()
	snap := accountSnapshot{
		CustomerID:    account.CustomerID(),
		CurrentPoints: points(account.Balance()),
		Version:       account.Version(),
		Transactions:  make([]transactionSnapshot, 0, len(txs)),
	}
	for _, tx := range txs {
		snap.Transactions = append(snap.Transactions, transactionSnapshot{
			Date:        tx.Date.UTC(),
			OrderNumber: tx.OrderNumber,
			Change:      points(tx.Change),
		})
	}
	return json.Marshal(snap)
}

func decodeAccount(data []byte) (*loyalty.Account, error) {
	var snap accountSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("invalid account snapshot: %w", err)
	}

	balance, err := parsePoints("current_points", snap.CurrentPoints)
	if err != nil {
		return nil, err
	}
	txs := make([]loyalty.Transaction, 0, len(snap.Transactions))
	for _, tx := range snap.Transactions {
		change, err := parsePoints("change", tx.Change)
		if err != nil {
			return nil, err
		}
		txs = append(txs, loyalty.Transaction{
			Date:        tx.Date.UTC(),
			OrderNumber: tx.OrderNumber,
			Change:      change,
		})
	}

	account, err := loyalty.RestoreAccountFromDecimal(snap.CustomerID, balance, txs)
	if err != nil {
		return nil, fmt.Errorf("invalid account snapshot: %w", err)
	}
	return account.WithVersion(snap.Version), nil
}
