package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

// processedEventRecord is the idempotency ledger row. The unique index on
// event_id is the dedupe mechanism: concurrent claims for one id race on the
// insert and exactly one wins. Rows are append-only.
type processedEventRecord struct {
	bun.BaseModel `bun:"table:billing_processed_events,alias:bpe"`

	ID          string    `bun:"id,pk"`
	EventID     string    `bun:"event_id,notnull,unique"`
	EventType   string    `bun:"event_type,notnull"`
	ProcessedAt time.Time `bun:"processed_at,nullzero,notnull,default:current_timestamp"`
}

type billingAccountRecord struct {
	bun.BaseModel `bun:"table:billing_accounts,alias:bac"`

	ID                    string     `bun:"id,pk"`
	AccountID             string     `bun:"account_id,notnull,unique"`
	BillingCustomerID     *string    `bun:"billing_customer_id"`
	BillingSubscriptionID *string    `bun:"billing_subscription_id"`
	Status                string     `bun:"status,notnull"`
	Tier                  string     `bun:"tier,notnull"`
	CurrentPeriodEnd      *time.Time `bun:"current_period_end,nullzero"`
	CreatedAt             time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt             time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
