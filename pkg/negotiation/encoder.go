// Package negotiation implements the price-negotiation decision engine:
// state encoding, the hybrid policy (trainable value estimator overlaid with
// market heuristics, plus a deterministic fallback backend), strategy
// building, the experience-replay buffer and reward shaping.
package negotiation

import (
	"math"
	"time"

	"github.com/hellomuba/YarnMarket-AI/pkg/models"
)

// timePressureWindow is the negotiation duration after which time pressure
// saturates at 1.0.
const timePressureWindow = 300 * time.Second

// Encode converts a negotiation state plus merchant rules and customer
// profile into the 7-dimensional feature vector the value estimator scores.
// It is a pure function and never fails: a missing customer offer encodes
// price_gap as 1.0 and profit_margin as 0, a missing purchase history
// encodes customer_history_score as 0.
func Encode(state *models.NegotiationState, rules models.MerchantSettings, customer models.CustomerProfile) models.FeatureVector {
	return EncodeAt(state, rules, customer, time.Now().UTC())
}

// EncodeAt is Encode with an explicit clock, for deterministic tests.
func EncodeAt(state *models.NegotiationState, rules models.MerchantSettings, customer models.CustomerProfile, now time.Time) models.FeatureVector {
	originalPrice := state.OriginalPrice
	offer := state.CustomerOffer

	priceGap := 1.0
	if offer > 0 && originalPrice > 0 {
		priceGap = (originalPrice - offer) / originalPrice
	}

	progress := float64(state.RoundNumber) / 10.0

	timePressure := math.Min(now.Sub(state.StartedAt).Seconds()/timePressureWindow.Seconds(), 1.0)
	if timePressure < 0 {
		timePressure = 0
	}

	profitMargin := 0.0
	if offer > 0 {
		profitMargin = (offer - rules.CostPrice(originalPrice)) / offer
	}

	history := math.Min(float64(customer.PurchaseCount)/10.0, 1.0)

	return models.FeatureVector{
		models.FeatPriceGap:        priceGap,
		models.FeatProgress:        progress,
		models.FeatSentiment:       state.CustomerSentiment,
		models.FeatTimePressure:    timePressure,
		models.FeatProfitMargin:    profitMargin,
		models.FeatCustomerHistory: history,
		models.FeatUrgency:         state.UrgencyLevel,
	}
}
