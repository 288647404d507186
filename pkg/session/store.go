// Package session persists negotiation state per (customer, merchant) pair
// in Redis with a refresh-on-write TTL and at-most-one-active-session
// semantics.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/hellomuba/YarnMarket-AI/pkg/metrics"
	"github.com/hellomuba/YarnMarket-AI/pkg/models"
)

const (
	// keyPrefix prefixes every session key: negotiation:{phone}:{merchant}.
	keyPrefix = "negotiation:"

	// activeSessionsKey indexes live sessions by last write time (ms).
	activeSessionsKey = "negotiation:active_sessions"

	// DefaultTTL is the session lifetime, refreshed on every write.
	DefaultTTL = 24 * time.Hour

	// casRetries bounds optimistic-lock retries on concurrent writes.
	casRetries = 3
)

// Store is the Redis-backed session store. One live NegotiationState exists
// per (customer_phone, merchant_id) key; a new negotiation for the same pair
// overwrites the prior session regardless of product.
type Store struct {
	rdb     *redis.Client
	logger  *logrus.Logger
	metrics *metrics.Metrics
	ttl     time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration, logger *logrus.Logger, m *metrics.Metrics) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, logger: logger, metrics: m, ttl: ttl}
}

// Key returns the Redis key for a (customer, merchant) pair.
func Key(customerPhone, merchantID string) string {
	return keyPrefix + customerPhone + ":" + merchantID
}

// Get loads the active session, or nil when none exists.
func (s *Store) Get(ctx context.Context, customerPhone, merchantID string) (*models.NegotiationState, error) {
	start := time.Now()
	defer func() {
		s.metrics.RedisOperationDuration.WithLabelValues("session_get").Observe(time.Since(start).Seconds())
	}()

	data, err := s.rdb.Get(ctx, Key(customerPhone, merchantID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load negotiation session: %w", err)
	}

	var state models.NegotiationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("corrupt negotiation session: %w", err)
	}
	return &state, nil
}

// Put writes the session and refreshes its TTL.
func (s *Store) Put(ctx context.Context, customerPhone, merchantID string, state *models.NegotiationState) error {
	start := time.Now()
	defer func() {
		s.metrics.RedisOperationDuration.WithLabelValues("session_put").Observe(time.Since(start).Seconds())
	}()

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to serialize negotiation session: %w", err)
	}

	key := Key(customerPhone, merchantID)
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, key, data, s.ttl)
	pipe.ZAdd(ctx, activeSessionsKey, &redis.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: key,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store negotiation session: %w", err)
	}
	return nil
}

// Clear removes the session, ending the negotiation.
func (s *Store) Clear(ctx context.Context, customerPhone, merchantID string) error {
	start := time.Now()
	defer func() {
		s.metrics.RedisOperationDuration.WithLabelValues("session_clear").Observe(time.Since(start).Seconds())
	}()

	key := Key(customerPhone, merchantID)
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, key)
	pipe.ZRem(ctx, activeSessionsKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear negotiation session: %w", err)
	}
	return nil
}

// Update performs an atomic read-modify-write of the session under
// optimistic locking, so concurrent turns for the same key (duplicate
// webhook delivery) cannot lose updates. fn receives the current state (nil
// when none exists) and returns the state to write; returning nil deletes
// the session. The write refreshes the TTL. Retries a bounded number of
// times when the key changes underneath the transaction.
func (s *Store) Update(ctx context.Context, customerPhone, merchantID string, fn func(*models.NegotiationState) (*models.NegotiationState, error)) error {
	start := time.Now()
	defer func() {
		s.metrics.RedisOperationDuration.WithLabelValues("session_update").Observe(time.Since(start).Seconds())
	}()

	key := Key(customerPhone, merchantID)

	txn := func(tx *redis.Tx) error {
		var current *models.NegotiationState
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("failed to load negotiation session: %w", err)
		}
		if err == nil {
			current = &models.NegotiationState{}
			if err := json.Unmarshal(data, current); err != nil {
				return fmt.Errorf("corrupt negotiation session: %w", err)
			}
		}

		updated, err := fn(current)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if updated == nil {
				pipe.Del(ctx, key)
				pipe.ZRem(ctx, activeSessionsKey, key)
				return nil
			}
			out, err := json.Marshal(updated)
			if err != nil {
				return fmt.Errorf("failed to serialize negotiation session: %w", err)
			}
			pipe.Set(ctx, key, out, s.ttl)
			pipe.ZAdd(ctx, activeSessionsKey, &redis.Z{
				Score:  float64(time.Now().UnixMilli()),
				Member: key,
			})
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < casRetries; i++ {
		err = s.rdb.Watch(ctx, txn, key)
		if err != redis.TxFailedErr {
			return err
		}
		s.logger.WithField("key", key).Debug("Concurrent session write, retrying")
	}
	return fmt.Errorf("session update contended %d times: %w", casRetries, err)
}

// ActiveCount returns the number of live sessions in the index.
func (s *Store) ActiveCount(ctx context.Context) (int64, error) {
	count, err := s.rdb.ZCard(ctx, activeSessionsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return count, nil
}

// CleanupStale drops index entries whose sessions have expired. Session keys
// themselves expire via TTL; only the sorted-set index needs sweeping.
func (s *Store) CleanupStale(ctx context.Context) error {
	start := time.Now()
	defer func() {
		s.metrics.RedisOperationDuration.WithLabelValues("session_cleanup").Observe(time.Since(start).Seconds())
	}()

	cutoff := time.Now().Add(-s.ttl).UnixMilli()
	removed, err := s.rdb.ZRemRangeByScore(ctx, activeSessionsKey, "0", fmt.Sprintf("%d", cutoff)).Result()
	if err != nil {
		return fmt.Errorf("failed to cleanup stale session index: %w", err)
	}
	if removed > 0 {
		s.logger.WithField("removed_count", removed).Info("Cleaned up stale session index entries")
	}
	return nil
}
