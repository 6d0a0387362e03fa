package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	loyaltyapp "github.com/loyalty/backend/internal/application/loyalty"
	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/loyalty/backend/internal/interfaces/http/dto"
	"github.com/loyalty/backend/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// memoryLedger is an in-memory LedgerRepository with the same version check
// as the database implementation
type memoryLedger struct {
	mu       sync.Mutex
	accounts map[string]*loyalty.Account
	err      error
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{accounts: make(map[string]*loyalty.Account)}
}

func copyAccount(a *loyalty.Account, version int) *loyalty.Account {
	restored, _ := loyalty.RestoreAccountFromDecimal(a.CustomerID(), a.Balance(), a.Transactions())
	return restored.WithVersion(version)
}

func (l *memoryLedger) NewAccount(_ context.Context, customerID string) (*loyalty.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if stored, ok := l.accounts[customerID]; ok {
		return copyAccount(stored, stored.Version()), nil
	}
	account, err := loyalty.NewAccount(customerID)
	if err != nil {
		return nil, err
	}
	l.accounts[customerID] = account.WithVersion(1)
	return copyAccount(account, 1), nil
}

func (l *memoryLedger) Retrieve(_ context.Context, customerID string) (*loyalty.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	stored, ok := l.accounts[customerID]
	if !ok {
		return nil, loyalty.ErrAccountNotFound
	}
	return copyAccount(stored, stored.Version()), nil
}

func (l *memoryLedger) AddTransaction(_ context.Context, account *loyalty.Account, _ *loyalty.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored, ok := l.accounts[account.CustomerID()]
	if !ok {
		return loyalty.ErrAccountNotFound
	}
	if stored.Version() != account.Version() {
		return loyalty.ErrConcurrencyConflict
	}
	l.accounts[account.CustomerID()] = copyAccount(account, account.Version()+1)
	account.IncrementVersion()
	return nil
}

// seed stores an account that earned points for one order
func (l *memoryLedger) seed(t *testing.T, customerID, orderNumber string, orderValue float64) {
	t.Helper()
	account, err := loyalty.NewAccount(customerID)
	require.NoError(t, err)
	_, err = account.Earn(orderNumber, orderValue)
	require.NoError(t, err)
	l.accounts[customerID] = account.WithVersion(1)
}

func newLoyaltyRouter(t *testing.T, ledger loyalty.LedgerRepository) *gin.Engine {
	t.Helper()
	log := zaptest.NewLogger(t)
	accounts := loyaltyapp.NewAccountService(ledger, nil, log)
	h := NewLoyaltyHandler(accounts, loyaltyapp.NewSpendPointsService(accounts, log))

	middleware.SetupValidator()
	router := gin.New()
	router.Use(middleware.RequestID())
	api := router.Group("/api/v1/loyalty/:customer_id")
	api.GET("", h.GetAccount)
	api.POST("/spend", h.SpendPoints)
	return router
}

func request(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeAccount(t *testing.T, w *httptest.ResponseRecorder) loyaltyapp.AccountResponse {
	t.Helper()
	var resp loyaltyapp.AccountResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *dto.ErrorInfo {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	return resp.Error
}

func TestLoyaltyHandler_GetAccount(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.seed(t, "james", "ORD123", 100)
	router := newLoyaltyRouter(t, ledger)

	w := request(router, http.MethodGet, "/api/v1/loyalty/james", "")
	require.Equal(t, http.StatusOK, w.Code)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.NotContains(t, raw, "success", "the projection is returned without an envelope")

	account := decodeAccount(t, w)
	assert.Equal(t, "james", account.CustomerID)
	assert.Equal(t, 50.0, account.CurrentPoints)
	require.Len(t, account.Transactions, 1)
	assert.Equal(t, "ORD123", account.Transactions[0].OrderNumber)
	assert.Equal(t, 50.0, account.Transactions[0].Change)
}

func TestLoyaltyHandler_GetAccount_NotFound(t *testing.T) {
	router := newLoyaltyRouter(t, newMemoryLedger())

	w := request(router, http.MethodGet, "/api/v1/loyalty/nobody", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	errInfo := decodeError(t, w)
	assert.Equal(t, dto.ErrCodeNotFound, errInfo.Code)
	assert.Equal(t, w.Header().Get(middleware.RequestIDHeader), errInfo.RequestID)
}

func TestLoyaltyHandler_GetAccount_LedgerFailure(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.err = loyalty.ErrDatabaseError.WithCause(errors.New("connection refused"))
	router := newLoyaltyRouter(t, ledger)

	w := request(router, http.MethodGet, "/api/v1/loyalty/james", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	errInfo := decodeError(t, w)
	assert.Equal(t, dto.ErrCodeInternal, errInfo.Code)
	assert.NotContains(t, errInfo.Message, "connection refused")
}

func TestLoyaltyHandler_SpendPoints(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.seed(t, "james", "ORD123", 100)
	router := newLoyaltyRouter(t, ledger)

	w := request(router, http.MethodPost, "/api/v1/loyalty/james/spend",
		`{"customerId":"james","orderNumber":"ORD999","spend":5}`)

	require.Equal(t, http.StatusOK, w.Code)
	account := decodeAccount(t, w)
	assert.Equal(t, 45.0, account.CurrentPoints)
	require.Len(t, account.Transactions, 2)
	assert.Equal(t, "ORD999", account.Transactions[1].OrderNumber)
	assert.Equal(t, -5.0, account.Transactions[1].Change)

	// the write is visible to the next query
	after := decodeAccount(t, request(router, http.MethodGet, "/api/v1/loyalty/james", ""))
	assert.Equal(t, 45.0, after.CurrentPoints)
}

func TestLoyaltyHandler_SpendPoints_CustomerIDOptional(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.seed(t, "james", "ORD123", 100)
	router := newLoyaltyRouter(t, ledger)

	w := request(router, http.MethodPost, "/api/v1/loyalty/james/spend", `{"orderNumber":"ORD1","spend":1.5}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 48.5, decodeAccount(t, w).CurrentPoints)
}

func TestLoyaltyHandler_SpendPoints_Errors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"not enough points", "/api/v1/loyalty/james/spend", `{"orderNumber":"ORD2","spend":500}`, http.StatusUnprocessableEntity, dto.ErrCodeInsufficientPoints},
		{"duplicate order", "/api/v1/loyalty/james/spend", `{"orderNumber":"ORD123","spend":1}`, http.StatusInternalServerError, dto.ErrCodeInternal},
		{"unknown account", "/api/v1/loyalty/anna/spend", `{"orderNumber":"ORD2","spend":1}`, http.StatusNotFound, dto.ErrCodeNotFound},
		{"customer mismatch", "/api/v1/loyalty/james/spend", `{"customerId":"anna","orderNumber":"ORD2","spend":1}`, http.StatusBadRequest, dto.ErrCodeInvalidInput},
		{"malformed body", "/api/v1/loyalty/james/spend", `{"orderNumber":`, http.StatusBadRequest, dto.ErrCodeInvalidJSON},
		{"wrong type", "/api/v1/loyalty/james/spend", `{"orderNumber":"ORD2","spend":"five"}`, http.StatusBadRequest, dto.ErrCodeInvalidJSON},
		{"missing order number", "/api/v1/loyalty/james/spend", `{"spend":1}`, http.StatusBadRequest, dto.ErrCodeValidation},
		{"non-positive spend", "/api/v1/loyalty/james/spend", `{"orderNumber":"ORD2","spend":0}`, http.StatusBadRequest, dto.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := newMemoryLedger()
			ledger.seed(t, "james", "ORD123", 100)
			router := newLoyaltyRouter(t, ledger)

			w := request(router, http.MethodPost, tt.path, tt.body)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Code)

			// rejected requests leave the ledger untouched
			stored, err := ledger.Retrieve(context.Background(), "james")
			require.NoError(t, err)
			assert.Equal(t, 50.0, stored.CurrentPoints())
			assert.Len(t, stored.Transactions(), 1)
		})
	}
}

func TestLoyaltyHandler_SpendPoints_ReplayedOrderIsServerError(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.seed(t, "james", "ORD123", 100)
	router := newLoyaltyRouter(t, ledger)
	body := `{"customerId":"james","orderNumber":"ORD999","spend":5}`

	first := request(router, http.MethodPost, "/api/v1/loyalty/james/spend", body)
	require.Equal(t, http.StatusOK, first.Code)

	replay := request(router, http.MethodPost, "/api/v1/loyalty/james/spend", body)
	assert.Equal(t, http.StatusInternalServerError, replay.Code)
	errInfo := decodeError(t, replay)
	assert.Equal(t, dto.ErrCodeInternal, errInfo.Code)
	assert.Equal(t, loyalty.ErrTransactionExistsForOrder.Message, errInfo.Message)

	stored, err := ledger.Retrieve(context.Background(), "james")
	require.NoError(t, err)
	assert.Equal(t, 45.0, stored.CurrentPoints())
	assert.Len(t, stored.Transactions(), 2)
}

func TestLoyaltyHandler_ConcurrentSpendsCannotOverdraw(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.seed(t, "james", "ORD123", 20) // 10 points
	router := newLoyaltyRouter(t, ledger)

	const spenders = 5
	codes := make([]int, spenders)
	var wg sync.WaitGroup
	for i := 0; i < spenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := `{"orderNumber":"SPEND` + string(rune('A'+i)) + `","spend":4}`
			codes[i] = request(router, http.MethodPost, "/api/v1/loyalty/james/spend", body).Code
		}(i)
	}
	wg.Wait()

	stored, err := ledger.Retrieve(context.Background(), "james")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stored.CurrentPoints(), 0.0)

	ok := 0
	for _, code := range codes {
		if code == http.StatusOK {
			ok++
		}
	}
	assert.LessOrEqual(t, ok, 2)
	assert.Len(t, stored.Transactions(), 1+ok)
}
