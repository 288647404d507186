package negotiation

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hellomuba/YarnMarket-AI/pkg/config"
	"github.com/hellomuba/YarnMarket-AI/pkg/metrics"
	"github.com/hellomuba/YarnMarket-AI/pkg/models"
)

// analyticsCapacity bounds the in-memory outcome ring used for the merchant
// analytics summary.
const analyticsCapacity = 1000

// Agent is the hybrid negotiation policy. It scores actions with the learned
// value estimator overlaid with market heuristics, falls back to the
// deterministic rule table when no trained model is available (or the
// estimator has been demoted), and owns the experience buffer and training
// loop.
//
// Scoring takes a read lock on the model; training takes the write lock, so
// score and train never interleave on mutating weights.
type Agent struct {
	learning config.Learning
	rewards  config.Rewards
	logger   *logrus.Logger
	metrics  *metrics.Metrics

	mu      sync.RWMutex // guards net weights, epsilon, trained, demoted
	net     *QNetwork
	epsilon float64
	trained bool
	demoted bool

	rngMu sync.Mutex
	rng   RandomSource

	bufMu  sync.Mutex
	buffer *ReplayBuffer

	fallback FallbackPolicy

	// trainGate reports whether this instance may run training steps.
	// Multi-instance deployments wire the trainer-ownership lease here.
	trainGate func() bool

	demoteOnce sync.Once

	outMu    sync.Mutex
	outcomes []models.OutcomeRecord
	outHead  int
}

func NewAgent(learning config.Learning, rewards config.Rewards, rng RandomSource, logger *logrus.Logger, m *metrics.Metrics) *Agent {
	a := &Agent{
		learning:  learning,
		rewards:   rewards,
		logger:    logger,
		metrics:   m,
		net:       NewQNetwork(learning.HiddenSize, learning.LearningRate, learning.Gamma, learning.Tau, rng),
		epsilon:   learning.Epsilon,
		rng:       rng,
		buffer:    NewReplayBuffer(learning.BufferSize),
		trainGate: func() bool { return true },
	}
	m.ExplorationEpsilon.Set(a.epsilon)
	return a
}

// SetTrainingGate installs the predicate deciding whether this instance runs
// training steps.
func (a *Agent) SetTrainingGate(gate func() bool) {
	a.trainGate = gate
}

// GetStrategy decides one negotiation turn. It never fails: with no product
// or price it returns the "need more information" strategy, and with no
// usable model it decides via the deterministic backend.
func (a *Agent) GetStrategy(state *models.NegotiationState, rules models.MerchantSettings, customer models.CustomerProfile) models.Strategy {
	strategy, fallbackReason := a.DecideTurn(state, rules, customer)
	if fallbackReason != "" {
		a.metrics.FallbackActivations.WithLabelValues(fallbackReason).Inc()
	}
	a.metrics.StrategiesTotal.WithLabelValues(strategy.Action).Inc()
	return strategy
}

// DecideTurn is GetStrategy without the metric increments, for callers whose
// decision runs inside a retried transaction and must be counted exactly once
// after it commits. The second return is the fallback reason, empty when the
// learned backend decided.
func (a *Agent) DecideTurn(state *models.NegotiationState, rules models.MerchantSettings, customer models.CustomerProfile) (models.Strategy, string) {
	if state == nil || state.OriginalPrice <= 0 || state.ProductID == "" {
		return InsufficientInformationStrategy(), ""
	}

	a.mu.RLock()
	usable := a.trained && !a.demoted
	demoted := a.demoted
	a.mu.RUnlock()

	if !usable {
		reason := "untrained"
		if demoted {
			reason = "demoted"
		}
		return a.fallback.Decide(state, rules), reason
	}
	return a.decideLearned(state, rules, customer), ""
}

// DecideFallback decides a turn with the deterministic backend regardless of
// model state. The orchestrator uses it for turns running on an ephemeral
// session after a store outage, where the learned path's experience linkage
// would be inconsistent.
func (a *Agent) DecideFallback(state *models.NegotiationState, rules models.MerchantSettings, reason string) models.Strategy {
	a.metrics.FallbackActivations.WithLabelValues(reason).Inc()
	strategy := a.fallback.Decide(state, rules)
	a.metrics.StrategiesTotal.WithLabelValues(strategy.Action).Inc()
	return strategy
}

func (a *Agent) decideLearned(state *models.NegotiationState, rules models.MerchantSettings, customer models.CustomerProfile) models.Strategy {
	features := Encode(state, rules, customer)

	a.mu.RLock()
	scores := a.net.Score(features)
	epsilon := a.epsilon
	a.mu.RUnlock()

	scores = ApplyHeuristics(scores, state, rules)
	action := a.selectAction(scores, AcceptAllowed(state, rules), epsilon)

	return BuildStrategy(action, state, rules)
}

// selectAction is epsilon-greedy over the permitted actions. Accept is
// excluded from the candidate set entirely when the offer is below cost, so
// neither exploitation nor random exploration can choose it.
func (a *Agent) selectAction(scores [actionSize]float64, allowAccept bool, epsilon float64) models.ActionType {
	candidates := make([]models.ActionType, 0, actionSize)
	for i := 0; i < actionSize; i++ {
		act := models.ActionType(i)
		if act == models.ActionAccept && !allowAccept {
			continue
		}
		candidates = append(candidates, act)
	}

	a.rngMu.Lock()
	explore := a.rng.Float64() < epsilon
	var pick int
	if explore {
		pick = a.rng.Intn(len(candidates))
	}
	a.rngMu.Unlock()

	if explore {
		return candidates[pick]
	}

	best := candidates[0]
	for _, act := range candidates[1:] {
		if scores[act] > scores[best] {
			best = act
		}
	}
	return best
}

// Remember stores one experience in the replay buffer.
func (a *Agent) Remember(exp models.Experience) {
	a.bufMu.Lock()
	a.buffer.Push(exp)
	size := a.buffer.Len()
	a.bufMu.Unlock()
	a.metrics.ReplayBufferSize.Set(float64(size))
}

// BufferLen returns the current replay buffer occupancy.
func (a *Agent) BufferLen() int {
	a.bufMu.Lock()
	defer a.bufMu.Unlock()
	return a.buffer.Len()
}

// TrainStep runs one training step if the buffer holds at least a full
// batch. Epsilon decays geometrically toward its floor after each step.
// Returns the batch loss, or 0 when nothing was trained.
func (a *Agent) TrainStep() float64 {
	a.bufMu.Lock()
	if a.buffer.Len() < a.learning.BatchSize {
		a.bufMu.Unlock()
		return 0
	}
	a.rngMu.Lock()
	batch := a.buffer.Sample(a.learning.BatchSize, a.rng)
	a.rngMu.Unlock()
	a.bufMu.Unlock()

	a.mu.Lock()
	if a.demoted {
		a.mu.Unlock()
		return 0
	}
	loss := a.net.TrainStep(batch)
	if a.epsilon > a.learning.EpsilonMin {
		a.epsilon *= a.learning.EpsilonDecay
		if a.epsilon < a.learning.EpsilonMin {
			a.epsilon = a.learning.EpsilonMin
		}
	}
	a.trained = true
	epsilon := a.epsilon
	a.mu.Unlock()

	a.metrics.TrainingSteps.Inc()
	a.metrics.TrainingLoss.Set(loss)
	a.metrics.ExplorationEpsilon.Set(epsilon)

	a.logger.WithFields(logrus.Fields{
		"loss":    loss,
		"epsilon": epsilon,
	}).Debug("Completed training step")

	return loss
}

// RecordOutcome records a terminated negotiation. Successful sales with a
// satisfied customer are replayed into the experience buffer: the final turn
// carries the profit and satisfaction reward, intermediate turns carry zero
// reward and earn discounted credit through the next-state linkage. A
// training step runs once the buffer holds a full batch, on the instance
// that owns training.
func (a *Agent) RecordOutcome(log models.NegotiationLog, outcome string, finalPrice, satisfaction float64) {
	a.metrics.OutcomesRecorded.WithLabelValues(outcome).Inc()
	a.recordAnalytics(log, outcome, finalPrice, satisfaction)

	if outcome != models.OutcomeSale || satisfaction <= 0.5 || len(log.Turns) == 0 {
		return
	}

	for i, turn := range log.Turns {
		terminal := i == len(log.Turns)-1

		reward := 0.0
		if terminal && finalPrice > 0 {
			profitMargin := (finalPrice - turn.CostPrice) / finalPrice
			reward = profitMargin*a.rewards.ProfitScale + satisfaction*a.rewards.SatisfactionScale
		}

		next := turn.State
		if !terminal {
			next = log.Turns[i+1].State
		}

		a.Remember(models.Experience{
			State:     turn.State,
			Action:    turn.Action,
			Reward:    reward,
			NextState: next,
			Terminal:  terminal,
		})
	}

	if a.BufferLen() >= a.learning.BatchSize && a.trainGate() {
		a.TrainStep()
	}
}

func (a *Agent) recordAnalytics(log models.NegotiationLog, outcome string, finalPrice, satisfaction float64) {
	discount := 0.0
	if log.OriginalPrice > 0 {
		discount = (log.OriginalPrice - finalPrice) / log.OriginalPrice
	}
	rec := models.OutcomeRecord{
		MerchantID:           log.MerchantID,
		CustomerPhone:        log.CustomerPhone,
		Outcome:              outcome,
		Rounds:               len(log.Turns),
		FinalPrice:           finalPrice,
		OriginalPrice:        log.OriginalPrice,
		DiscountGiven:        discount,
		CustomerSatisfaction: satisfaction,
		Timestamp:            time.Now().UTC(),
	}

	a.outMu.Lock()
	if len(a.outcomes) < analyticsCapacity {
		a.outcomes = append(a.outcomes, rec)
	} else {
		a.outcomes[a.outHead] = rec
		a.outHead = (a.outHead + 1) % analyticsCapacity
	}
	a.outMu.Unlock()
}

// AnalyticsSummary aggregates recorded outcomes for one merchant (all
// merchants when merchantID is empty).
func (a *Agent) AnalyticsSummary(merchantID string) models.AnalyticsSummary {
	a.outMu.Lock()
	defer a.outMu.Unlock()

	summary := models.AnalyticsSummary{MerchantID: merchantID}
	var rounds, discount, satisfaction float64
	sales := 0
	for _, rec := range a.outcomes {
		if merchantID != "" && rec.MerchantID != merchantID {
			continue
		}
		summary.Total++
		rounds += float64(rec.Rounds)
		if rec.Outcome == models.OutcomeSale {
			sales++
			discount += rec.DiscountGiven
			satisfaction += rec.CustomerSatisfaction
		}
	}
	if summary.Total > 0 {
		summary.SuccessRate = float64(sales) / float64(summary.Total)
		summary.AvgRounds = rounds / float64(summary.Total)
	}
	if sales > 0 {
		summary.AvgDiscount = discount / float64(sales)
		summary.CustomerSatisfaction = satisfaction / float64(sales)
	}
	return summary
}

// GetInsights returns the dashboard summary for an in-progress negotiation.
func (a *Agent) GetInsights(state *models.NegotiationState, rules models.MerchantSettings) models.Insights {
	return BuildInsights(state, rules)
}

// Snapshot serializes the current model weights.
func (a *Agent) Snapshot() ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.net.Snapshot()
}

// Restore loads model weights from a snapshot and marks the model trained.
func (a *Agent) Restore(data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.net.Restore(data); err != nil {
		return err
	}
	a.trained = true
	return nil
}

// Demote permanently substitutes the deterministic backend for this process
// lifetime, logged once. Used when the estimator's weights are corrupt or
// missing in a way that cannot be recovered.
func (a *Agent) Demote(reason string) {
	a.mu.Lock()
	a.demoted = true
	a.mu.Unlock()
	a.demoteOnce.Do(func() {
		a.logger.WithField("reason", reason).Warn("Value estimator demoted; deterministic backend will serve all turns")
	})
}

// Epsilon returns the current exploration rate.
func (a *Agent) Epsilon() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.epsilon
}
