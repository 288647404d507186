// Package trainer elects a single training owner across engine instances.
// The value estimator's weights are shared state: every instance scores, but
// exactly one runs training steps and persists model snapshots. Ownership is
// a Redis lease with TTL, renewed and resigned with compare-and-set scripts.
package trainer

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/hellomuba/YarnMarket-AI/pkg/config"
	"github.com/hellomuba/YarnMarket-AI/pkg/metrics"
	"github.com/hellomuba/YarnMarket-AI/pkg/negotiation"
)

const (
	// OwnerKey holds the instance ID of the current training owner.
	OwnerKey = "negotiation:trainer_owner"

	// ModelKey holds the latest serialized model snapshot.
	ModelKey = "negotiation:model"

	electionInterval = 5 * time.Second
)

type Owner struct {
	rdb     *redis.Client
	config  *config.Config
	logger  *logrus.Logger
	metrics *metrics.Metrics
	agent   *negotiation.Agent

	mu      sync.Mutex // guards isOwner; read by handlers, written by both loops
	isOwner bool
	stopCh  chan struct{}
}

func NewOwner(rdb *redis.Client, cfg *config.Config, agent *negotiation.Agent, logger *logrus.Logger, m *metrics.Metrics) *Owner {
	return &Owner{
		rdb:     rdb,
		config:  cfg,
		logger:  logger,
		metrics: m,
		agent:   agent,
		stopCh:  make(chan struct{}),
	}
}

// Start begins contending for training ownership and, while owner, snapshots
// the model on the configured interval. It also gates the agent's training
// on ownership.
func (o *Owner) Start(ctx context.Context) {
	o.agent.SetTrainingGate(o.IsOwner)
	go o.electionLoop(ctx)
	go o.snapshotLoop(ctx)
}

// Stop resigns ownership and halts the loops.
func (o *Owner) Stop() {
	close(o.stopCh)
	if o.owned() {
		o.resign(context.Background())
	}
}

// IsOwner verifies ownership against Redis rather than trusting local state.
func (o *Owner) IsOwner() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	current, err := o.rdb.Get(ctx, OwnerKey).Result()

	o.mu.Lock()
	defer o.mu.Unlock()

	if err != nil {
		o.isOwner = false
		return false
	}

	actual := current == o.config.InstanceID
	if o.isOwner != actual {
		o.isOwner = actual
		if actual {
			o.logger.Info("Confirmed training ownership from Redis")
		} else {
			o.logger.Info("Training ownership lost")
		}
	}
	return o.isOwner
}

func (o *Owner) owned() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.isOwner
}

func (o *Owner) setOwned(v bool) {
	o.mu.Lock()
	o.isOwner = v
	o.mu.Unlock()
}

func (o *Owner) electionLoop(ctx context.Context) {
	ticker := time.NewTicker(electionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.tryAcquire(ctx)
		}
	}
}

func (o *Owner) tryAcquire(ctx context.Context) {
	result := o.rdb.SetArgs(ctx, OwnerKey, o.config.InstanceID, redis.SetArgs{
		Mode: "NX",
		TTL:  o.config.TrainerLeaseTTLDuration(),
	})

	if result.Err() != nil {
		o.logger.WithError(result.Err()).Error("Failed to contend for training ownership")
		return
	}

	if result.Val() == "OK" {
		o.mu.Lock()
		if !o.isOwner {
			o.logger.Info("Became training owner")
			o.metrics.TrainerOwnerChanges.Inc()
			o.isOwner = true
		}
		o.mu.Unlock()
		o.renew(ctx)
		return
	}

	if o.owned() {
		current, err := o.rdb.Get(ctx, OwnerKey).Result()
		if err != nil || current != o.config.InstanceID {
			o.logger.Info("Lost training ownership")
			o.setOwned(false)
		}
	}
}

func (o *Owner) renew(ctx context.Context) {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("EXPIRE", KEYS[1], ARGV[2])
		else
			return 0
		end
	`

	result := o.rdb.Eval(ctx, script, []string{OwnerKey}, o.config.InstanceID, o.config.TrainerLeaseTTL)
	if result.Err() != nil {
		o.logger.WithError(result.Err()).Error("Failed to renew training ownership")
		o.setOwned(false)
		return
	}
	if result.Val().(int64) == 0 {
		o.logger.Warn("Training ownership renewal failed")
		o.setOwned(false)
	}
}

func (o *Owner) resign(ctx context.Context) {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`

	if err := o.rdb.Eval(ctx, script, []string{OwnerKey}, o.config.InstanceID).Err(); err != nil {
		o.logger.WithError(err).Error("Failed to resign training ownership")
	} else {
		o.logger.Info("Resigned training ownership")
	}
	o.setOwned(false)
}

func (o *Owner) snapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(o.config.SnapshotInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
			if o.IsOwner() {
				if err := o.SaveModel(ctx); err != nil {
					o.logger.WithError(err).Error("Failed to snapshot model")
				}
			}
		}
	}
}

// SaveModel persists the current model weights to Redis.
func (o *Owner) SaveModel(ctx context.Context) error {
	data, err := o.agent.Snapshot()
	if err != nil {
		return err
	}
	if err := o.rdb.Set(ctx, ModelKey, data, 0).Err(); err != nil {
		return err
	}
	o.logger.WithField("bytes", len(data)).Debug("Saved model snapshot")
	return nil
}

// LoadModel restores weights from the latest snapshot. A missing snapshot
// means a fresh model and is not an error. A corrupt snapshot demotes the
// agent to the deterministic backend for this process lifetime.
func (o *Owner) LoadModel(ctx context.Context) error {
	data, err := o.rdb.Get(ctx, ModelKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			o.logger.Info("No model snapshot found, starting fresh")
			return nil
		}
		return err
	}

	if err := o.agent.Restore(data); err != nil {
		o.agent.Demote("corrupt model snapshot")
		return nil
	}

	o.logger.WithField("bytes", len(data)).Info("Loaded model snapshot")
	return nil
}
