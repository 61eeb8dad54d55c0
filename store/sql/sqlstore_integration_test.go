package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/protocolguide/go-billing/core"
	billingmigrations "github.com/protocolguide/go-billing/migrations"
	sqlstore "github.com/protocolguide/go-billing/store/sql"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-billing-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{"billing_accounts", "billing_processed_events"} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestProcessedEventStore_ClaimDedupes(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.ProcessedEventStore()
	if store == nil {
		t.Fatalf("expected processed event store from factory")
	}

	claimed, err := store.Claim(ctx, "evt_1", "invoice.payment_succeeded")
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if !claimed {
		t.Fatalf("expected first claim to win")
	}

	claimed, err = store.Claim(ctx, "evt_1", "invoice.payment_succeeded")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed {
		t.Fatalf("expected duplicate claim to lose without error")
	}

	record, err := store.Get(ctx, "evt_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.EventID != "evt_1" || record.EventType != "invoice.payment_succeeded" {
		t.Fatalf("unexpected record %+v", record)
	}
	if record.ProcessedAt.IsZero() {
		t.Fatalf("expected processed_at to be stamped")
	}

	if _, err := store.Get(ctx, "evt_missing"); !errors.Is(err, core.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}

func TestProcessedEventStore_ConcurrentClaimsSingleWinner(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.ProcessedEventStore()

	const racers = 12
	results := make([]bool, racers)
	claimErrs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], claimErrs[i] = store.Claim(ctx, "evt_race", "checkout.session.completed")
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := 0; i < racers; i++ {
		if claimErrs[i] != nil {
			t.Fatalf("claim #%d: %v", i, claimErrs[i])
		}
		if results[i] {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winning claim, got %d", winners)
	}
}

func TestBillingAccountStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.AccountStore()
	if store == nil {
		t.Fatalf("expected account store from factory")
	}

	created, err := store.Create(ctx, "acct_1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Tier != core.TierFree || created.Status != core.SubscriptionStatusNone {
		t.Fatalf("expected free/none defaults, got %+v", created)
	}

	// Creating again is idempotent, not a constraint error.
	again, err := store.Create(ctx, "acct_1")
	if err != nil {
		t.Fatalf("repeat create: %v", err)
	}
	if again.ID != created.ID {
		t.Fatalf("expected repeat create to return the existing record")
	}

	customerID := "cus_1"
	subscriptionID := "sub_1"
	active := core.SubscriptionStatusActive
	pro := core.TierPro
	periodEnd := time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)
	updated, err := store.Update(ctx, "acct_1", core.BillingAccountUpdate{
		BillingCustomerID:     &customerID,
		BillingSubscriptionID: &subscriptionID,
		Status:                &active,
		Tier:                  &pro,
		CurrentPeriodEnd:      &periodEnd,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Tier != core.TierPro || updated.BillingCustomerID != "cus_1" {
		t.Fatalf("unexpected updated record %+v", updated)
	}
	if updated.CurrentPeriodEnd == nil || !updated.CurrentPeriodEnd.Equal(periodEnd) {
		t.Fatalf("expected period end persisted, got %v", updated.CurrentPeriodEnd)
	}

	byCustomer, err := store.GetByCustomerID(ctx, "cus_1")
	if err != nil {
		t.Fatalf("get by customer: %v", err)
	}
	if byCustomer.AccountID != "acct_1" {
		t.Fatalf("unexpected account %+v", byCustomer)
	}

	free := core.TierFree
	none := core.SubscriptionStatusNone
	cleared, err := store.Update(ctx, "acct_1", core.BillingAccountUpdate{
		Tier:                  &free,
		Status:                &none,
		ClearBillingCustomer:  true,
		ClearSubscription:     true,
		ClearCurrentPeriodEnd: true,
	})
	if err != nil {
		t.Fatalf("clearing update: %v", err)
	}
	if cleared.BillingCustomerID != "" || cleared.BillingSubscriptionID != "" || cleared.CurrentPeriodEnd != nil {
		t.Fatalf("expected billing fields cleared, got %+v", cleared)
	}

	if _, err := store.GetByCustomerID(ctx, "cus_1"); !errors.Is(err, core.ErrAccountNotFound) {
		t.Fatalf("expected cleared customer lookup to miss, got %v", err)
	}
	if _, err := store.GetByAccountID(ctx, "acct_missing"); !errors.Is(err, core.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if _, err := store.Update(ctx, "acct_missing", core.BillingAccountUpdate{Tier: &free}); !errors.Is(err, core.ErrAccountNotFound) {
		t.Fatalf("expected update of missing account to miss, got %v", err)
	}
}

func TestCachedBillingAccountStore_InvalidatesOnUpdate(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	base := factory.AccountStore()
	if _, err := base.Create(ctx, "acct_1"); err != nil {
		t.Fatalf("create: %v", err)
	}

	cached, err := sqlstore.NewCachedBillingAccountStore(base, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}

	first, err := cached.GetByAccountID(ctx, "acct_1")
	if err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if first.Tier != core.TierFree {
		t.Fatalf("unexpected tier %q", first.Tier)
	}

	pro := core.TierPro
	customerID := "cus_1"
	if _, err := cached.Update(ctx, "acct_1", core.BillingAccountUpdate{
		Tier:              &pro,
		BillingCustomerID: &customerID,
	}); err != nil {
		t.Fatalf("cached update: %v", err)
	}

	afterUpdate, err := cached.GetByAccountID(ctx, "acct_1")
	if err != nil {
		t.Fatalf("cached get after update: %v", err)
	}
	if afterUpdate.Tier != core.TierPro {
		t.Fatalf("expected invalidated cache to serve the update, got %q", afterUpdate.Tier)
	}

	byCustomer, err := cached.GetByCustomerID(ctx, "cus_1")
	if err != nil {
		t.Fatalf("cached get by customer: %v", err)
	}
	if byCustomer.AccountID != "acct_1" {
		t.Fatalf("unexpected account %+v", byCustomer)
	}
}

func newTestCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:billing-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = billingmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != billingmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, billingmigrations.WithDialects(billingmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
