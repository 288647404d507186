package negotiation

import (
	"fmt"
	"math"

	"github.com/hellomuba/YarnMarket-AI/pkg/models"
)

// Strategy-building constants.
const (
	openingDiscountRatio = 0.85 // first counter when the customer hasn't offered
	meetPartwayRatio     = 0.6  // fraction of the gap conceded on a counter

	defaultBundleQuantity = 3
	bundleItemDiscount    = 0.9  // per-item price in a bundle
	bundleExtraDiscount   = 0.95 // additional discount on the bundle total

	stallUrgency = 0.3
)

// BuildStrategy converts a selected action into a concrete Strategy: the
// counter price, bundle terms and quick replies the response generator turns
// into customer-facing text. Every emitted counter offer is clamped upward
// to the merchant's minimum acceptable price; no strategy leaving here can
// price below it.
func BuildStrategy(action models.ActionType, state *models.NegotiationState, rules models.MerchantSettings) models.Strategy {
	originalPrice := state.OriginalPrice
	offer := state.CustomerOffer
	minAcceptable := rules.MinAcceptable(originalPrice)

	switch action {
	case models.ActionAccept:
		return models.Strategy{
			ActionType:   models.ActionAccept,
			Action:       models.ActionAccept.String(),
			CounterOffer: math.Max(offer, minAcceptable),
			Confidence:   0.9,
			SuggestedReplies: []models.QuickReply{
				{ID: "confirm", Title: "Confirm Order", Payload: "confirm_order"},
				{ID: "payment", Title: "Payment Options", Payload: "payment_options"},
			},
		}

	case models.ActionCounter:
		var counter float64
		if offer > 0 {
			// Meet the customer partway across the remaining gap.
			counter = offer + meetPartwayRatio*(originalPrice-offer)
		} else {
			counter = originalPrice * openingDiscountRatio
		}
		counter = math.Max(counter, rules.CostPrice(originalPrice))
		counter = math.Max(counter, minAcceptable)

		return models.Strategy{
			ActionType:   models.ActionCounter,
			Action:       models.ActionCounter.String(),
			CounterOffer: counter,
			Confidence:   0.8,
			SuggestedReplies: []models.QuickReply{
				{ID: "accept_counter", Title: "Accept", Payload: fmt.Sprintf("accept_%.0f", counter)},
				{ID: "negotiate_more", Title: "Still too high", Payload: "negotiate_more"},
			},
		}

	case models.ActionBundle:
		individual := originalPrice * bundleItemDiscount
		bundlePrice := individual * defaultBundleQuantity * bundleExtraDiscount
		bundlePrice = math.Max(bundlePrice, minAcceptable)

		return models.Strategy{
			ActionType:      models.ActionBundle,
			Action:          models.ActionBundle.String(),
			CounterOffer:    bundlePrice,
			BundleQuantity:  defaultBundleQuantity,
			BundlePrice:     bundlePrice,
			IndividualPrice: individual,
			Confidence:      0.85,
			SuggestedReplies: []models.QuickReply{
				{ID: "accept_bundle", Title: "Take Bundle", Payload: fmt.Sprintf("bundle_%d", defaultBundleQuantity)},
				{ID: "single_item", Title: "Just One", Payload: "single_item"},
			},
		}

	case models.ActionReject:
		return models.Strategy{
			ActionType: models.ActionReject,
			Action:     models.ActionReject.String(),
			Confidence: 0.7,
			SuggestedReplies: []models.QuickReply{
				{ID: "understand", Title: "I Understand", Payload: "understand"},
				{ID: "other_products", Title: "Show Other Items", Payload: "show_alternatives"},
			},
		}

	default: // stall
		return models.Strategy{
			ActionType:   models.ActionStall,
			Action:       models.ActionStall.String(),
			Confidence:   0.6,
			UrgencyLevel: stallUrgency,
			SuggestedReplies: []models.QuickReply{
				{ID: "think_about", Title: "Let me think", Payload: "thinking"},
				{ID: "final_offer", Title: "Final offer?", Payload: "final_offer"},
			},
		}
	}
}

// InsufficientInformationStrategy is returned when a negotiation cannot
// start because no product reference is known. It is a well-defined "need
// more information" reply, not an error.
func InsufficientInformationStrategy() models.Strategy {
	return models.Strategy{
		ActionType: models.ActionStall,
		Action:     models.ActionStall.String(),
		Confidence: 0.5,
		SuggestedReplies: []models.QuickReply{
			{ID: "pick_product", Title: "Choose a product", Payload: "show_products"},
		},
	}
}
