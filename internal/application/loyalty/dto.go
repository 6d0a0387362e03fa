package loyalty

import (
	"time"

	"github.com/loyalty/backend/internal/domain/loyalty"
)

// AccountResponse is the public projection of a loyalty account.
// The same shape is used for HTTP responses and cache payloads.
type AccountResponse struct {
	CustomerID    string                `json:"customer_id"`
	CurrentPoints float64               `json:"current_points"`
	Transactions  []TransactionResponse `json:"transactions"`
}

// TransactionResponse is one entry of the account history
type TransactionResponse struct {
	Date        time.Time `json:"date"`
	OrderNumber string    `json:"order_number"`
	Change      float64   `json:"change"`
}

// SpendPointsCommand requests a debit of points for an order
type SpendPointsCommand struct {
	CustomerID  string
	OrderNumber string
	Spend       float64
}

// ToAccountResponse converts the aggregate to its projection
func ToAccountResponse(account *loyalty.Account) *AccountResponse {
	txs := account.Transactions()
	resp := &AccountResponse{
		CustomerID:    account.CustomerID(),
		CurrentPoints: account.CurrentPoints(),
		Transactions:  make([]TransactionResponse, 0, len(txs)),
	}
	for _, tx := range txs {
		resp.Transactions = append(resp.Transactions, TransactionResponse{
			Date:        tx.Date.UTC(),
			OrderNumber: tx.OrderNumber,
			Change:      tx.Change.InexactFloat64(),
		})
	}
	return resp
}
