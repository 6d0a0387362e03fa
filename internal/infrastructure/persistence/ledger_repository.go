package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/loyalty/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLedgerRepository implements loyalty.LedgerRepository using GORM.
// The database must be opened with TranslateError so unique violations
// surface as gorm.ErrDuplicatedKey.
type GormLedgerRepository struct {
	db *gorm.DB
}

// NewGormLedgerRepository creates a new GormLedgerRepository
func NewGormLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

// NewAccount inserts an empty account unless one already exists and returns
// the stored account.
func (r *GormLedgerRepository) NewAccount(ctx context.Context, customerID string) (*loyalty.Account, error) {
	if _, err := loyalty.NewAccount(customerID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	model := &models.LoyaltyAccountModel{
		CustomerID: customerID,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model).Error; err != nil {
		return nil, loyalty.ErrDatabaseError.WithCause(err)
	}
	return r.Retrieve(ctx, customerID)
}

// Retrieve loads the account and its history ordered by date then insertion
func (r *GormLedgerRepository) Retrieve(ctx context.Context, customerID string) (*loyalty.Account, error) {
	var account models.LoyaltyAccountModel
	if err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, loyalty.ErrAccountNotFound
		}
		return nil, loyalty.ErrDatabaseError.WithCause(err)
	}

	var history []models.LoyaltyTransactionModel
	if err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("date_epoch ASC, id ASC").
		Find(&history).Error; err != nil {
		return nil, loyalty.ErrDatabaseError.WithCause(err)
	}

	domainAccount, err := account.ToDomain(history)
	if err != nil {
		return nil, loyalty.ErrDatabaseError.WithCause(err)
	}
	return domainAccount, nil
}

// AddTransaction appends the transaction and stores the account balance in
// one database transaction. The balance update only applies when the stored
// version still equals the version the account was read at.
func (r *GormLedgerRepository) AddTransaction(ctx context.Context, account *loyalty.Account, transaction *loyalty.Transaction) error {
	if account == nil || transaction == nil {
		return loyalty.ErrInvalidValues.WithMessage("Account and transaction are required")
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := models.LoyaltyTransactionModelFromDomain(account.CustomerID(), transaction)
		if err := tx.Create(row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return loyalty.ErrTransactionExistsForOrder
			}
			return loyalty.ErrDatabaseError.WithCause(err)
		}

		result := tx.Model(&models.LoyaltyAccountModel{}).
			Where("customer_id = ? AND version = ?", account.CustomerID(), account.Version()).
			Updates(map[string]any{
				"current_points": account.Balance(),
				"version":        gorm.Expr("version + 1"),
				"updated_at":     time.Now().UTC(),
			})
		if result.Error != nil {
			return loyalty.ErrDatabaseError.WithCause(result.Error)
		}
		if result.RowsAffected == 0 {
			return loyalty.ErrConcurrencyConflict
		}
		return nil
	})
	if err != nil {
		return err
	}

	account.IncrementVersion()
	return nil
}
