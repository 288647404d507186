package negotiation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hellomuba/YarnMarket-AI/pkg/models"
)

func TestFallback_OpeningCounter(t *testing.T) {
	state := models.NewNegotiationState("prod_1", 10000)

	s := FallbackPolicy{}.Decide(state, testRules())

	assert.Equal(t, models.ActionCounter, s.ActionType)
	assert.Equal(t, 8500.0, s.CounterOffer)
	assert.GreaterOrEqual(t, s.CounterOffer, 8400.0)
}

func TestFallback_AcceptsExcellentOffer(t *testing.T) {
	state := models.NewNegotiationState("prod_1", 10000)
	state.CustomerOffer = 9600
	state.RoundNumber = 2

	s := FallbackPolicy{}.Decide(state, testRules())

	assert.Equal(t, models.ActionAccept, s.ActionType)
	assert.Equal(t, 9600.0, s.CounterOffer)
}

func TestFallback_ExcellentRatioStillNeedsTheFloor(t *testing.T) {
	// 96% of list clears the ratio test but a tighter floor can still veto
	// the accept.
	rules := models.MerchantSettings{MaxDiscountPercentage: 2, MinDiscountPercentage: 1}
	state := models.NewNegotiationState("prod_1", 10000)
	state.CustomerOffer = 9600 // min acceptable is 9800 * 1.01

	s := FallbackPolicy{}.Decide(state, rules)
	assert.NotEqual(t, models.ActionAccept, s.ActionType)
}

func TestFallback_RejectsLowballAfterLateRound(t *testing.T) {
	state := models.NewNegotiationState("prod_1", 10000)
	state.CustomerOffer = 3000
	state.RoundNumber = 4

	s := FallbackPolicy{}.Decide(state, testRules())

	assert.Equal(t, models.ActionReject, s.ActionType)
}

func TestFallback_CountersLowballInEarlyRounds(t *testing.T) {
	state := models.NewNegotiationState("prod_1", 4000)
	state.CustomerOffer = 1400
	state.RoundNumber = 2

	s := FallbackPolicy{}.Decide(state, testRules())

	assert.Equal(t, models.ActionCounter, s.ActionType)
	assert.Equal(t, 3400.0, s.CounterOffer) // low tier
}

func TestFallback_SuggestsBundleForHighValueItems(t *testing.T) {
	state := models.NewNegotiationState("prod_1", 6000)
	state.CustomerOffer = 4900
	state.RoundNumber = 2

	s := FallbackPolicy{}.Decide(state, testRules())

	assert.Equal(t, models.ActionBundle, s.ActionType)
	assert.Equal(t, 3, s.BundleQuantity)
	assert.Less(t, s.BundlePrice, s.IndividualPrice*3)
}

func TestFallback_BundlePitchedOnlyOnce(t *testing.T) {
	state := models.NewNegotiationState("prod_1", 6000)
	state.CustomerOffer = 4900
	state.RoundNumber = 3
	state.BundleSuggested = true

	s := FallbackPolicy{}.Decide(state, testRules())

	assert.Equal(t, models.ActionCounter, s.ActionType)
}

func TestFallback_CounterTiers(t *testing.T) {
	cases := []struct {
		name    string
		offer   float64
		round   int
		counter float64
	}{
		{"strong offer", 9100, 2, 9200},   // 0.92 * list
		{"good offer round 2", 8100, 2, 8400}, // 0.87 - 0.02*2 = 0.83, clamped to 0.84
		{"moderate offer", 7000, 2, 8400}, // 0.82, clamped to 0.84
		{"low offer", 4000, 2, 8500},      // 0.85
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			state := models.NewNegotiationState("prod_1", 10000)
			state.CustomerOffer = tc.offer
			state.RoundNumber = tc.round
			state.BundleSuggested = true // keep the bundle branch out of the way

			s := FallbackPolicy{}.Decide(state, testRules())
			assert.Equal(t, models.ActionCounter, s.ActionType)
			assert.InDelta(t, tc.counter, s.CounterOffer, 0.001)
		})
	}
}

func TestFallback_GoodTierConcedesWithRounds(t *testing.T) {
	// A wide discount window so the floor never clamps the tier price.
	rules := models.MerchantSettings{MaxDiscountPercentage: 30, MinDiscountPercentage: 5}

	counterAt := func(round int) float64 {
		state := models.NewNegotiationState("prod_1", 100000)
		state.CustomerOffer = 81000
		state.RoundNumber = round
		state.BundleSuggested = true
		return FallbackPolicy{}.Decide(state, rules).CounterOffer
	}

	// 0.87 - 0.02*round of list.
	assert.InDelta(t, 85000.0, counterAt(1), 0.001)
	assert.InDelta(t, 83000.0, counterAt(2), 0.001)
	assert.Greater(t, counterAt(1), counterAt(2))
}

func TestFallback_CounterNeverBelowMinAcceptable(t *testing.T) {
	for offer := 100.0; offer < 10000; offer += 137 {
		for round := 1; round <= 3; round++ {
			state := models.NewNegotiationState("prod_1", 10000)
			state.CustomerOffer = offer
			state.RoundNumber = round
			state.BundleSuggested = true

			s := FallbackPolicy{}.Decide(state, testRules())
			if s.ActionType != models.ActionCounter {
				continue
			}
			assert.GreaterOrEqual(t, s.CounterOffer, 8400.0, "offer %.0f round %d", offer, round)
		}
	}
}
