package negotiation

import "github.com/hellomuba/YarnMarket-AI/pkg/models"

// Heuristic adjustment magnitudes. Applied additively to the estimator's raw
// scores, in the order ApplyHeuristics lists them.
const (
	acceptableOfferBoost  = 2.0
	belowCostAcceptPen    = -5.0
	belowCostRejectBoost  = 1.0
	lateRoundAcceptBoost  = 1.0
	lateRoundStallPen     = -2.0
	bundleBoost           = 1.5
	frustratedAcceptBoost = 1.0
	frustratedCounterBst  = 0.5
	frustratedRejectPen   = -1.0

	// BundleValueThreshold is the list price above which bundling becomes a
	// candidate, in currency units.
	BundleValueThreshold = 5000.0

	// LateRoundThreshold is the round from which resolution is preferred.
	LateRoundThreshold = 4
)

// ApplyHeuristics overlays deterministic market rules onto the value
// estimator's raw scores. The adjustments are additive with fixed magnitudes
// and applied in a fixed order. Only the learned backend's scores pass
// through here; the deterministic backend encodes these rules directly.
func ApplyHeuristics(scores [actionSize]float64, state *models.NegotiationState, rules models.MerchantSettings) [actionSize]float64 {
	originalPrice := state.OriginalPrice
	offer := state.CustomerOffer
	costPrice := rules.CostPrice(originalPrice)
	minAcceptable := rules.MinAcceptable(originalPrice)

	// 1. Offer clears the profit floor: favor closing at it.
	if offer > 0 && offer >= minAcceptable {
		scores[models.ActionAccept] += acceptableOfferBoost
	}

	// 2. Offer below cost: never worth accepting.
	if offer > 0 && offer < costPrice {
		scores[models.ActionAccept] += belowCostAcceptPen
		scores[models.ActionReject] += belowCostRejectBoost
	}

	// 3. Long negotiations should resolve, not drag.
	if state.RoundNumber >= LateRoundThreshold {
		scores[models.ActionAccept] += lateRoundAcceptBoost
		scores[models.ActionStall] += lateRoundStallPen
	}

	// 4. Higher-value items are bundle candidates once talks are underway.
	if originalPrice > BundleValueThreshold && state.RoundNumber >= 2 {
		scores[models.ActionBundle] += bundleBoost
	}

	// 5. A frustrated customer needs accommodation.
	if state.CustomerSentiment < -0.5 {
		scores[models.ActionAccept] += frustratedAcceptBoost
		scores[models.ActionCounter] += frustratedCounterBst
		scores[models.ActionReject] += frustratedRejectPen
	}

	return scores
}

// AcceptAllowed reports whether accepting the customer's offer is
// permissible. Selling below cost is never permissible, on any code path,
// including random exploration.
func AcceptAllowed(state *models.NegotiationState, rules models.MerchantSettings) bool {
	offer := state.CustomerOffer
	return !(offer > 0 && offer < rules.CostPrice(state.OriginalPrice))
}
