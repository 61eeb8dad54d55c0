package sqlstore

import (
	"database/sql"
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	// Postgres driver for OpenPostgres; bun speaks database/sql underneath.
	_ "github.com/lib/pq"

	"github.com/protocolguide/go-billing/core"
)

type RepositoryFactory struct {
	db *bun.DB

	processedEventStore *ProcessedEventStore
	billingAccountStore *BillingAccountStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.processedEventStore != nil && f.billingAccountStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) ProcessedEventStore() core.ProcessedEventStore {
	if f == nil {
		return nil
	}
	return f.processedEventStore
}

func (f *RepositoryFactory) BillingAccountStore() core.BillingAccountStore {
	if f == nil {
		return nil
	}
	return f.billingAccountStore
}

// AccountStore exposes the concrete store for hosts that need Create.
func (f *RepositoryFactory) AccountStore() *BillingAccountStore {
	if f == nil {
		return nil
	}
	return f.billingAccountStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	processedEventStore, err := NewProcessedEventStore(f.db)
	if err != nil {
		return err
	}
	f.processedEventStore = processedEventStore

	billingAccountStore, err := NewBillingAccountStore(f.db)
	if err != nil {
		return err
	}
	f.billingAccountStore = billingAccountStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}

// OpenPostgres opens a Postgres-backed bun handle for production hosts.
// Tests use sqlite through go-persistence-bun instead.
func OpenPostgres(dsn string) (*bun.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlstore: postgres dsn is required")
	}
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open postgres: %w", err)
	}
	return bun.NewDB(sqlDB, pgdialect.New()), nil
}

var _ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
