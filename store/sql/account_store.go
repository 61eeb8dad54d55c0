package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/protocolguide/go-billing/core"
)

type BillingAccountStore struct {
	db   *bun.DB
	repo repository.Repository[*billingAccountRecord]

	Now func() time.Time
}

func NewBillingAccountStore(db *bun.DB) (*BillingAccountStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*billingAccountRecord](db, billingAccountHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid billing account repository wiring: %w", err)
		}
	}
	return &BillingAccountStore{
		db:   db,
		repo: repo,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// Create inserts the implicit free-tier record minted at account creation.
func (s *BillingAccountStore) Create(ctx context.Context, accountID string) (core.BillingAccount, error) {
	if s == nil || s.db == nil {
		return core.BillingAccount{}, fmt.Errorf("sqlstore: billing account store is not configured")
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return core.BillingAccount{}, fmt.Errorf("sqlstore: account id is required")
	}

	now := s.now()
	record := &billingAccountRecord{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Status:    string(core.SubscriptionStatusNone),
		Tier:      string(core.TierFree),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return s.GetByAccountID(ctx, accountID)
		}
		return core.BillingAccount{}, err
	}
	return billingAccountToDomain(record), nil
}

func (s *BillingAccountStore) GetByAccountID(ctx context.Context, accountID string) (core.BillingAccount, error) {
	return s.getWhere(ctx, "?TableAlias.account_id = ?", strings.TrimSpace(accountID))
}

func (s *BillingAccountStore) GetByCustomerID(ctx context.Context, customerID string) (core.BillingAccount, error) {
	return s.getWhere(ctx, "?TableAlias.billing_customer_id = ?", strings.TrimSpace(customerID))
}

func (s *BillingAccountStore) getWhere(ctx context.Context, clause string, arg string) (core.BillingAccount, error) {
	if s == nil || s.db == nil {
		return core.BillingAccount{}, fmt.Errorf("sqlstore: billing account store is not configured")
	}
	if arg == "" {
		return core.BillingAccount{}, core.ErrAccountNotFound
	}
	record := &billingAccountRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where(clause, arg).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.BillingAccount{}, core.ErrAccountNotFound
		}
		return core.BillingAccount{}, err
	}
	return billingAccountToDomain(record), nil
}

func (s *BillingAccountStore) Update(
	ctx context.Context,
	accountID string,
	update core.BillingAccountUpdate,
) (core.BillingAccount, error) {
	if s == nil || s.db == nil {
		return core.BillingAccount{}, fmt.Errorf("sqlstore: billing account store is not configured")
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return core.BillingAccount{}, fmt.Errorf("sqlstore: account id is required")
	}

	query := s.db.NewUpdate().
		Model((*billingAccountRecord)(nil)).
		Set("updated_at = ?", s.now()).
		Where("account_id = ?", accountID)

	if update.BillingCustomerID != nil {
		query = query.Set("billing_customer_id = ?", strings.TrimSpace(*update.BillingCustomerID))
	}
	if update.BillingSubscriptionID != nil {
		query = query.Set("billing_subscription_id = ?", strings.TrimSpace(*update.BillingSubscriptionID))
	}
	if update.Status != nil {
		query = query.Set("status = ?", string(*update.Status))
	}
	if update.Tier != nil {
		query = query.Set("tier = ?", string(*update.Tier))
	}
	if update.CurrentPeriodEnd != nil {
		query = query.Set("current_period_end = ?", update.CurrentPeriodEnd.UTC())
	}
	if update.ClearBillingCustomer {
		query = query.Set("billing_customer_id = NULL")
	}
	if update.ClearSubscription {
		query = query.Set("billing_subscription_id = NULL")
	}
	if update.ClearCurrentPeriodEnd {
		query = query.Set("current_period_end = NULL")
	}

	result, err := query.Exec(ctx)
	if err != nil {
		return core.BillingAccount{}, err
	}
	if affected, affErr := result.RowsAffected(); affErr == nil && affected == 0 {
		return core.BillingAccount{}, core.ErrAccountNotFound
	}
	return s.GetByAccountID(ctx, accountID)
}

func (s *BillingAccountStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func billingAccountToDomain(record *billingAccountRecord) core.BillingAccount {
	account := core.BillingAccount{
		ID:        record.ID,
		AccountID: record.AccountID,
		Status:    core.SubscriptionStatus(record.Status),
		Tier:      core.Tier(record.Tier),
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
	if record.BillingCustomerID != nil {
		account.BillingCustomerID = strings.TrimSpace(*record.BillingCustomerID)
	}
	if record.BillingSubscriptionID != nil {
		account.BillingSubscriptionID = strings.TrimSpace(*record.BillingSubscriptionID)
	}
	if record.CurrentPeriodEnd != nil {
		value := record.CurrentPeriodEnd.UTC()
		account.CurrentPeriodEnd = &value
	}
	return account
}

var _ core.BillingAccountStore = (*BillingAccountStore)(nil)
