package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/protocolguide/go-billing/core"
)

const billingAccountCacheKeyPrefix = "go-billing::billing_account::v1"

// CachedBillingAccountStore fronts the SQL store with a read-through cache.
// Subscription reads happen on every entitlement check while writes arrive
// only from webhook deliveries, so reads dominate by orders of magnitude.
// Updates invalidate both lookup keys before returning.
type CachedBillingAccountStore struct {
	base  core.BillingAccountStore
	cache repositorycache.CacheService
}

func NewCachedBillingAccountStore(
	base core.BillingAccountStore,
	cacheService repositorycache.CacheService,
) (*CachedBillingAccountStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base billing account store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: billing account cache service is required")
	}
	return &CachedBillingAccountStore{base: base, cache: cacheService}, nil
}

// BillingAccountCacheKey returns the deterministic cache key for one lookup
// dimension: go-billing::billing_account::v1::<dimension>::<value> with the
// value URL-path escaped.
func BillingAccountCacheKey(dimension string, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("sqlstore: cache key value is required")
	}
	return strings.Join([]string{
		billingAccountCacheKeyPrefix,
		dimension,
		url.PathEscape(value),
	}, "::"), nil
}

func (s *CachedBillingAccountStore) GetByAccountID(ctx context.Context, accountID string) (core.BillingAccount, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.BillingAccount{}, fmt.Errorf("sqlstore: cached billing account store is not configured")
	}
	cacheKey, err := BillingAccountCacheKey("account", accountID)
	if err != nil {
		return core.BillingAccount{}, core.ErrAccountNotFound
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.BillingAccount, error) {
		return s.base.GetByAccountID(ctx, accountID)
	})
}

func (s *CachedBillingAccountStore) GetByCustomerID(ctx context.Context, customerID string) (core.BillingAccount, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.BillingAccount{}, fmt.Errorf("sqlstore: cached billing account store is not configured")
	}
	cacheKey, err := BillingAccountCacheKey("customer", customerID)
	if err != nil {
		return core.BillingAccount{}, core.ErrAccountNotFound
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.BillingAccount, error) {
		return s.base.GetByCustomerID(ctx, customerID)
	})
}

func (s *CachedBillingAccountStore) Update(
	ctx context.Context,
	accountID string,
	update core.BillingAccountUpdate,
) (core.BillingAccount, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.BillingAccount{}, fmt.Errorf("sqlstore: cached billing account store is not configured")
	}
	// Snapshot the current customer binding so a customer-id change (or
	// clear) also invalidates the stale customer key.
	previousCustomerID := ""
	if existing, err := s.base.GetByAccountID(ctx, accountID); err == nil {
		previousCustomerID = existing.BillingCustomerID
	}

	account, err := s.base.Update(ctx, accountID, update)
	if err != nil {
		return core.BillingAccount{}, err
	}

	for _, key := range accountCacheKeys(account, previousCustomerID) {
		if deleteErr := s.cache.Delete(ctx, key); deleteErr != nil {
			return core.BillingAccount{}, deleteErr
		}
	}
	return account, nil
}

func accountCacheKeys(account core.BillingAccount, previousCustomerID string) []string {
	keys := []string{}
	if key, err := BillingAccountCacheKey("account", account.AccountID); err == nil {
		keys = append(keys, key)
	}
	customerIDs := map[string]struct{}{}
	for _, customerID := range []string{account.BillingCustomerID, previousCustomerID} {
		customerID = strings.TrimSpace(customerID)
		if customerID == "" {
			continue
		}
		if _, seen := customerIDs[customerID]; seen {
			continue
		}
		customerIDs[customerID] = struct{}{}
		if key, err := BillingAccountCacheKey("customer", customerID); err == nil {
			keys = append(keys, key)
		}
	}
	return keys
}

var _ core.BillingAccountStore = (*CachedBillingAccountStore)(nil)
