package cache

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/Debojyoti-Gho/offline-billing-app/internal/domain"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const productsKey = "catalog:products"

func NewRedisCache(client *redis.Client, baseTTL time.Duration) *RedisCache {
	if baseTTL <= 0 {
		baseTTL = 15 * time.Minute
	}
	return &RedisCache{
		client:  client,
		baseTTL: baseTTL,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r RedisCache) GetProducts(ctx context.Context) ([]*domain.Product, error) {
	data, err := r.client.Get(ctx, productsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get failed")
	}

	var products []*domain.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, errors.Wrap(err, "unmarshal products failed")
	}
	return products, nil
}

func (r RedisCache) SetProducts(ctx context.Context, products []*domain.Product) error {
	data, err := json.Marshal(products)
	if err != nil {
		return errors.Wrap(err, "marshal products failed")
	}

	jitter := time.Duration(rand.Intn(5)) * time.Minute
	if err := r.client.Set(ctx, productsKey, data, r.baseTTL+jitter).Err(); err != nil {
		return errors.Wrap(err, "redis set failed")
	}
	return nil
}

func (r RedisCache) Invalidate(ctx context.Context) error {
	if err := r.client.Del(ctx, productsKey).Err(); err != nil {
		return errors.Wrap(err, "redis delete failed")
	}
	return nil
}
