package loyalty

import (
	"context"
	"strings"

	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/loyalty/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// AccountService is the cache-aside read path for loyalty accounts.
// The ledger is authoritative; the cache is consulted first and refreshed
// on every ledger read and successful write.
type AccountService struct {
	ledger loyalty.LedgerRepository
	cache  loyalty.AccountCache
	logger *zap.Logger
}

// NewAccountService creates a new AccountService. A nil cache behaves as an
// always-miss cache.
func NewAccountService(
	ledger loyalty.LedgerRepository,
	cache loyalty.AccountCache,
	logger *zap.Logger,
) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{
		ledger: ledger,
		cache:  cache,
		logger: logger,
	}
}

// Ledger returns the durable store behind the service
func (s *AccountService) Ledger() loyalty.LedgerRepository {
	return s.ledger
}

// Retrieve returns the account for a customer, from the cache when possible.
// AccountNotFound from the ledger is propagated unchanged and never cached.
func (s *AccountService) Retrieve(ctx context.Context, customerID string) (*loyalty.Account, error) {
	ctx, span := telemetry.StartUseCaseSpan(ctx, "retrieve_account", telemetry.AttrCustomerID.String(customerID))
	defer span.End()

	if strings.TrimSpace(customerID) == "" {
		return nil, loyalty.ErrInvalidValues.WithMessage("Customer ID cannot be empty")
	}

	if s.cache != nil {
		account, err := s.cache.Get(ctx, customerID)
		if err != nil {
			s.logger.Warn("account cache read failed, falling back to ledger",
				zap.String("customer_id", customerID),
				zap.Error(err),
			)
		} else if account != nil {
			span.SetAttributes(telemetry.AttrAccountCached.Bool(true))
			return account, nil
		}
	}
	span.SetAttributes(telemetry.AttrAccountCached.Bool(false))

	account, err := s.ledger.Retrieve(ctx, customerID)
	if err != nil {
		if !isAccountNotFound(err) {
			telemetry.RecordError(span, err)
		}
		return nil, err
	}

	s.Store(ctx, account)
	return account, nil
}

// Store writes an account snapshot to the cache. Failures are logged only.
func (s *AccountService) Store(ctx context.Context, account *loyalty.Account) {
	if s.cache == nil || account == nil {
		return
	}
	if err := s.cache.Put(ctx, account); err != nil {
		s.logger.Warn("failed to write account to cache",
			zap.String("customer_id", account.CustomerID()),
			zap.Error(err),
		)
	}
}

// GetAccount returns the projection used by the query endpoint
func (s *AccountService) GetAccount(ctx context.Context, customerID string) (*AccountResponse, error) {
	account, err := s.Retrieve(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return ToAccountResponse(account), nil
}
