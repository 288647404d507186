package negotiation

import (
	"math"

	"github.com/hellomuba/YarnMarket-AI/pkg/models"
)

// Counter tiers for the deterministic backend, expressed as fractions of the
// list price keyed by how strong the customer's offer is.
const (
	excellentOfferRatio = 0.95 // accept outright at or above this
	strongOfferRatio    = 0.9
	goodOfferRatio      = 0.8
	moderateOfferRatio  = 0.65

	strongCounterRatio   = 0.92
	goodCounterBase      = 0.87
	goodCounterPerRound  = 0.02
	moderateCounterRatio = 0.82
	lowCounterRatio      = 0.85
)

// FallbackPolicy is the rule-table backend. It computes an action and a
// counter price directly from the customer's offer, the round number and the
// merchant's price floor, with no learned weights. It serves fresh processes
// with no trained model, turns where the session store is unreachable, and
// processes whose estimator has been demoted.
type FallbackPolicy struct{}

// Decide picks an action and builds the concrete strategy for it.
func (FallbackPolicy) Decide(state *models.NegotiationState, rules models.MerchantSettings) models.Strategy {
	action := fallbackAction(state, rules)
	if action != models.ActionCounter {
		return BuildStrategy(action, state, rules)
	}

	// The tiered counter table prices the counter itself rather than
	// delegating to the partway formula.
	counter := fallbackCounter(state, rules)
	strategy := BuildStrategy(models.ActionCounter, state, rules)
	strategy.CounterOffer = math.Max(counter, rules.MinAcceptable(state.OriginalPrice))
	return strategy
}

func fallbackAction(state *models.NegotiationState, rules models.MerchantSettings) models.ActionType {
	originalPrice := state.OriginalPrice
	offer := state.CustomerOffer

	if offer <= 0 {
		return models.ActionCounter
	}

	ratio := offer / originalPrice
	costPrice := rules.CostPrice(originalPrice)
	minAcceptable := rules.MinAcceptable(originalPrice)

	// Excellent offer that clears the floor: close the deal.
	if ratio >= excellentOfferRatio && offer >= minAcceptable {
		return models.ActionAccept
	}

	// Below cost with the negotiation dragging: walk away.
	if offer < costPrice && state.RoundNumber >= LateRoundThreshold {
		return models.ActionReject
	}

	// Higher-value items get one bundle pitch once talks are underway.
	if originalPrice > BundleValueThreshold && state.RoundNumber >= 2 && !state.BundleSuggested {
		return models.ActionBundle
	}

	return models.ActionCounter
}

// fallbackCounter prices a counter-offer from the tier the customer's offer
// falls into. Callers clamp the result to the merchant's floor.
func fallbackCounter(state *models.NegotiationState, rules models.MerchantSettings) float64 {
	originalPrice := state.OriginalPrice
	offer := state.CustomerOffer
	if offer <= 0 {
		return originalPrice * openingDiscountRatio
	}

	ratio := offer / originalPrice
	switch {
	case ratio >= strongOfferRatio:
		return originalPrice * strongCounterRatio
	case ratio >= goodOfferRatio:
		return originalPrice * (goodCounterBase - goodCounterPerRound*float64(state.RoundNumber))
	case ratio >= moderateOfferRatio:
		return originalPrice * moderateCounterRatio
	default:
		return originalPrice * lowCounterRatio
	}
}
