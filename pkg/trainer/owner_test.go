package trainer

import (
	"context"
	"io"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hellomuba/YarnMarket-AI/pkg/config"
	"github.com/hellomuba/YarnMarket-AI/pkg/metrics"
	"github.com/hellomuba/YarnMarket-AI/pkg/models"
	"github.com/hellomuba/YarnMarket-AI/pkg/negotiation"
)

// Prometheus collectors register globally, so the package's tests share one
// bundle.
var testMetrics = metrics.NewMetrics()

func setupTestRedis(t *testing.T) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1, // Use test database
	})

	// Test connection
	ctx := context.Background()
	err := rdb.Ping(ctx).Err()
	require.NoError(t, err, "Redis should be available for testing")

	// Clean up test data
	rdb.FlushDB(ctx)

	return rdb
}

func testOwner(t *testing.T, rdb *redis.Client, instanceID string) (*Owner, *negotiation.Agent) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &config.Config{
		InstanceID:        instanceID,
		TrainerLeaseTTL:   2,
		SnapshotIntervalS: 300,
		Learning:          config.DefaultLearning(),
		Rewards:           config.DefaultRewards(),
	}
	agent := negotiation.NewAgent(cfg.Learning, cfg.Rewards, rand.New(rand.NewSource(1)), logger, testMetrics)
	return NewOwner(rdb, cfg, agent, logger, testMetrics), agent
}

func TestOwner_AcquireAndVerify(t *testing.T) {
	rdb := setupTestRedis(t)
	defer rdb.Close()

	owner, _ := testOwner(t, rdb, "engine-1")
	ctx := context.Background()

	assert.False(t, owner.IsOwner())

	owner.tryAcquire(ctx)
	assert.True(t, owner.IsOwner())

	current, err := rdb.Get(ctx, OwnerKey).Result()
	require.NoError(t, err)
	assert.Equal(t, "engine-1", current)

	// The lease carries the configured TTL.
	ttl, err := rdb.TTL(ctx, OwnerKey).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 2*time.Second)
}

func TestOwner_OnlyOneOwnerAtATime(t *testing.T) {
	rdb := setupTestRedis(t)
	defer rdb.Close()

	first, _ := testOwner(t, rdb, "engine-1")
	second, _ := testOwner(t, rdb, "engine-2")
	ctx := context.Background()

	first.tryAcquire(ctx)
	second.tryAcquire(ctx)

	assert.True(t, first.IsOwner())
	assert.False(t, second.IsOwner())
}

func TestOwner_TakeoverAfterResign(t *testing.T) {
	rdb := setupTestRedis(t)
	defer rdb.Close()

	first, _ := testOwner(t, rdb, "engine-1")
	second, _ := testOwner(t, rdb, "engine-2")
	ctx := context.Background()

	first.tryAcquire(ctx)
	require.True(t, first.IsOwner())

	first.resign(ctx)
	assert.False(t, first.IsOwner())

	second.tryAcquire(ctx)
	assert.True(t, second.IsOwner())
}

func TestOwner_ResignOnlyReleasesOwnLease(t *testing.T) {
	rdb := setupTestRedis(t)
	defer rdb.Close()

	first, _ := testOwner(t, rdb, "engine-1")
	second, _ := testOwner(t, rdb, "engine-2")
	ctx := context.Background()

	first.tryAcquire(ctx)
	second.resign(ctx) // not the owner; must not delete the lease

	assert.True(t, first.IsOwner())
}

func TestOwner_RenewExtendsLease(t *testing.T) {
	rdb := setupTestRedis(t)
	defer rdb.Close()

	owner, _ := testOwner(t, rdb, "engine-1")
	ctx := context.Background()

	owner.tryAcquire(ctx)

	time.Sleep(500 * time.Millisecond)
	owner.renew(ctx)

	ttl, err := rdb.TTL(ctx, OwnerKey).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 1500*time.Millisecond)
	assert.True(t, owner.IsOwner())
}

func TestOwner_ConcurrentOwnershipChecks(t *testing.T) {
	rdb := setupTestRedis(t)
	defer rdb.Close()

	owner, _ := testOwner(t, rdb, "engine-1")
	ctx := context.Background()

	// Election, renewal and handler-side ownership checks all touch the
	// local flag; run them together the way the loops and HTTP surface do.
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				owner.tryAcquire(ctx)
				owner.IsOwner()
				owner.renew(ctx)
			}
		}()
	}
	wg.Wait()

	assert.True(t, owner.IsOwner())
}

func TestOwner_StartGatesAgentTraining(t *testing.T) {
	rdb := setupTestRedis(t)
	defer rdb.Close()

	owner, agent := testOwner(t, rdb, "engine-1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	owner.Start(ctx)
	defer owner.Stop()

	// No lease yet: outcomes are recorded but training does not run.
	agent.RecordOutcome(saleLog(), models.OutcomeSale, 8500, 0.9)
	assert.Equal(t, 1.0, agent.Epsilon())
}

func TestOwner_SaveAndLoadModel(t *testing.T) {
	rdb := setupTestRedis(t)
	defer rdb.Close()

	owner, _ := testOwner(t, rdb, "engine-1")
	ctx := context.Background()

	require.NoError(t, owner.SaveModel(ctx))

	data, err := rdb.Get(ctx, ModelKey).Bytes()
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	restored, _ := testOwner(t, rdb, "engine-2")
	assert.NoError(t, restored.LoadModel(ctx))
}

func TestOwner_LoadModelMissingSnapshotStartsFresh(t *testing.T) {
	rdb := setupTestRedis(t)
	defer rdb.Close()

	owner, agent := testOwner(t, rdb, "engine-1")

	assert.NoError(t, owner.LoadModel(context.Background()))

	// Fresh model: the deterministic backend still serves turns.
	state := models.NewNegotiationState("prod_1", 10000)
	rules := models.MerchantSettings{MaxDiscountPercentage: 20, MinDiscountPercentage: 5}
	s := agent.GetStrategy(state, rules, models.CustomerProfile{})
	assert.Equal(t, "counter", s.Action)
}

func TestOwner_LoadModelCorruptSnapshotDemotesAgent(t *testing.T) {
	rdb := setupTestRedis(t)
	defer rdb.Close()

	owner, agent := testOwner(t, rdb, "engine-1")
	ctx := context.Background()

	require.NoError(t, rdb.Set(ctx, ModelKey, "not a snapshot", 0).Err())
	assert.NoError(t, owner.LoadModel(ctx))

	// Demoted: turns still get served, deterministically.
	state := models.NewNegotiationState("prod_1", 10000)
	rules := models.MerchantSettings{MaxDiscountPercentage: 20, MinDiscountPercentage: 5}
	s := agent.GetStrategy(state, rules, models.CustomerProfile{})
	assert.Equal(t, "counter", s.Action)
	assert.Equal(t, 8500.0, s.CounterOffer)
}

func saleLog() models.NegotiationLog {
	state := models.NewNegotiationState("prod_1", 10000)
	state.CustomerOffer = 8500
	rules := models.MerchantSettings{MaxDiscountPercentage: 20, MinDiscountPercentage: 5}

	return models.NegotiationLog{
		MerchantID:    "merchant_1",
		CustomerPhone: "+2348012345678",
		OriginalPrice: 10000,
		Turns: []models.NegotiationTurn{
			{
				State:     negotiation.Encode(state, rules, models.CustomerProfile{}),
				Action:    models.ActionAccept,
				CostPrice: rules.CostPrice(10000),
			},
		},
	}
}
