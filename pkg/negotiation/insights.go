package negotiation

import "github.com/hellomuba/YarnMarket-AI/pkg/models"

// Insights summarizes an in-progress negotiation for merchant dashboards.
// Heuristic and best-effort, never safety-critical, and idempotent: the same
// unmutated state always yields the same summary.
func BuildInsights(state *models.NegotiationState, rules models.MerchantSettings) models.Insights {
	insights := models.Insights{
		NegotiationStrength: "medium",
		CustomerType:        "bargain_hunter",
		RecommendedAction:   models.ActionCounter.String(),
		SuccessProbability:  0.7,
		RiskFactors:         []string{},
		Opportunities:       []string{},
	}

	offer := state.CustomerOffer
	originalPrice := state.OriginalPrice

	if state.CustomerSentiment < -0.3 {
		insights.RiskFactors = append(insights.RiskFactors, "Customer getting frustrated")
		insights.SuccessProbability -= 0.15
	}
	if state.RoundNumber > 3 {
		insights.RiskFactors = append(insights.RiskFactors, "Negotiation dragging on")
		insights.SuccessProbability -= 0.1
	}
	if offer > 0 && offer < rules.CostPrice(originalPrice) {
		insights.RiskFactors = append(insights.RiskFactors, "Offer below cost price")
		insights.RecommendedAction = models.ActionReject.String()
		insights.NegotiationStrength = "weak"
		insights.SuccessProbability -= 0.2
	}

	if offer > originalPrice*0.8 {
		insights.Opportunities = append(insights.Opportunities, "Customer willing to pay good price")
		insights.NegotiationStrength = "strong"
		insights.SuccessProbability += 0.15
	}
	if offer >= rules.MinAcceptable(originalPrice) {
		insights.RecommendedAction = models.ActionAccept.String()
	}
	if originalPrice > BundleValueThreshold && !state.BundleSuggested {
		insights.Opportunities = append(insights.Opportunities, "High-value item suits a bundle offer")
	}

	if state.CustomerSentiment > 0.3 {
		insights.CustomerType = "quality_seeker"
	}
	if state.UrgencyLevel > 0.6 {
		insights.CustomerType = "time_pressed"
	}

	if insights.SuccessProbability < 0 {
		insights.SuccessProbability = 0
	}
	if insights.SuccessProbability > 1 {
		insights.SuccessProbability = 1
	}

	return insights
}
