package engine

import (
	"context"
	"time"

	"github.com/hellomuba/YarnMarket-AI/pkg/cache"
	"github.com/hellomuba/YarnMarket-AI/pkg/models"
)

// MerchantProvider supplies merchant pricing rules. Implemented by the
// merchant settings collaborator; the engine only reads it.
type MerchantProvider interface {
	GetMerchant(ctx context.Context, merchantID string) (models.MerchantSettings, error)
}

// CustomerProvider supplies customer profiles for feature encoding.
type CustomerProvider interface {
	GetCustomer(ctx context.Context, phone string) (models.CustomerProfile, error)
}

const (
	providerCacheSize = 512
	providerCacheTTL  = 5 * time.Minute
)

// cachedMerchants wraps a MerchantProvider with a bounded TTL cache.
type cachedMerchants struct {
	provider MerchantProvider
	cache    *cache.Cache[models.MerchantSettings]
}

func newCachedMerchants(p MerchantProvider) *cachedMerchants {
	return &cachedMerchants{
		provider: p,
		cache:    cache.New[models.MerchantSettings](providerCacheSize, providerCacheTTL),
	}
}

func (c *cachedMerchants) GetMerchant(ctx context.Context, merchantID string) (models.MerchantSettings, error) {
	if m, ok := c.cache.Get(merchantID); ok {
		return m, nil
	}
	m, err := c.provider.GetMerchant(ctx, merchantID)
	if err != nil {
		return models.MerchantSettings{}, err
	}
	c.cache.Put(merchantID, m)
	return m, nil
}

// cachedCustomers wraps a CustomerProvider with a bounded TTL cache.
type cachedCustomers struct {
	provider CustomerProvider
	cache    *cache.Cache[models.CustomerProfile]
}

func newCachedCustomers(p CustomerProvider) *cachedCustomers {
	return &cachedCustomers{
		provider: p,
		cache:    cache.New[models.CustomerProfile](providerCacheSize, providerCacheTTL),
	}
}

func (c *cachedCustomers) GetCustomer(ctx context.Context, phone string) (models.CustomerProfile, error) {
	if p, ok := c.cache.Get(phone); ok {
		return p, nil
	}
	p, err := c.provider.GetCustomer(ctx, phone)
	if err != nil {
		return models.CustomerProfile{}, err
	}
	c.cache.Put(phone, p)
	return p, nil
}

// DefaultMerchantProvider returns permissive defaults for merchants the
// settings collaborator has no record of. Deployments wire the real
// collaborator instead.
type DefaultMerchantProvider struct {
	MaxDiscountPercentage float64
	MinDiscountPercentage float64
}

func (p DefaultMerchantProvider) GetMerchant(_ context.Context, merchantID string) (models.MerchantSettings, error) {
	return models.MerchantSettings{
		MerchantID:            merchantID,
		MinDiscountPercentage: p.MinDiscountPercentage,
		MaxDiscountPercentage: p.MaxDiscountPercentage,
		NegotiationEnabled:    true,
	}, nil
}

// DefaultCustomerProvider returns an empty profile per phone number.
type DefaultCustomerProvider struct{}

func (DefaultCustomerProvider) GetCustomer(_ context.Context, phone string) (models.CustomerProfile, error) {
	return models.CustomerProfile{PhoneNumber: phone}, nil
}
