package negotiation

import (
	"github.com/hellomuba/YarnMarket-AI/pkg/config"
	"github.com/hellomuba/YarnMarket-AI/pkg/models"
)

// ActionOutcome describes what an action achieved on a simulated or replayed
// turn, for offline reward evaluation.
type ActionOutcome struct {
	Action        models.ActionType
	ProfitRatio   float64 // profit over final price, for accepts
	CounterRatio  float64 // counter discount relative to list price
	BundleSavings float64 // customer savings from the bundle, currency units
}

// ShapeReward scores one turn for offline pretraining or sanity-checking the
// estimator, independent of live outcome recording. The constants come from
// configuration; the defaults are the empirically tuned values.
func ShapeReward(cfg config.Rewards, out ActionOutcome, state *models.NegotiationState, features models.FeatureVector) float64 {
	reward := 0.0

	switch out.Action {
	case models.ActionAccept:
		reward = out.ProfitRatio * cfg.ProfitScale
		if state.CustomerSentiment > 0 {
			reward += cfg.RelationshipBonus
		}

	case models.ActionCounter:
		if out.CounterRatio >= 0.3 && out.CounterRatio <= 0.8 {
			reward = cfg.CounterReward
		} else {
			reward = cfg.CounterPenalty
		}

	case models.ActionBundle:
		reward = cfg.BundleReward
		if out.BundleSavings > 0 {
			reward += cfg.BundleSavingsBonus
		}

	case models.ActionReject:
		reward = cfg.RejectPenalty
		if features[models.FeatProfitMargin] < 0.05 {
			// Rejecting a below-floor offer is justified.
			reward = 0
		}

	case models.ActionStall:
		if state.RoundNumber < 3 {
			reward = cfg.StallReward
		} else {
			reward = cfg.StallPenalty
		}
	}

	// Bias toward fast resolution.
	reward -= features[models.FeatTimePressure] * cfg.TimePressureWeight
	reward -= float64(state.RoundNumber) * cfg.RoundPenalty

	return reward
}
