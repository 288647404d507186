package negotiation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hellomuba/YarnMarket-AI/pkg/models"
)

func TestApplyHeuristics_AcceptableOfferBoostsAccept(t *testing.T) {
	state := models.NewNegotiationState("prod_1", 10000)
	state.CustomerOffer = 9600 // min acceptable is 8400

	var raw [actionSize]float64
	adjusted := ApplyHeuristics(raw, state, testRules())

	assert.Equal(t, 2.0, adjusted[models.ActionAccept])
}

func TestApplyHeuristics_BelowCostPenalizesAccept(t *testing.T) {
	state := models.NewNegotiationState("prod_1", 10000)
	state.CustomerOffer = 3000 // cost price is 8000

	var raw [actionSize]float64
	adjusted := ApplyHeuristics(raw, state, testRules())

	assert.Equal(t, -5.0, adjusted[models.ActionAccept])
	assert.Equal(t, 1.0, adjusted[models.ActionReject])
	assert.False(t, AcceptAllowed(state, testRules()))
}

func TestApplyHeuristics_LateRoundsPreferResolution(t *testing.T) {
	state := models.NewNegotiationState("prod_1", 4000)
	state.RoundNumber = 4

	var raw [actionSize]float64
	adjusted := ApplyHeuristics(raw, state, testRules())

	assert.Equal(t, 1.0, adjusted[models.ActionAccept])
	assert.Equal(t, -2.0, adjusted[models.ActionStall])
}

func TestApplyHeuristics_RoundBoostIsMonotone(t *testing.T) {
	// Raising the round number while holding everything else fixed never
	// decreases the boost toward accept.
	prev := -1.0
	for round := 1; round <= 8; round++ {
		state := models.NewNegotiationState("prod_1", 4000)
		state.RoundNumber = round

		var raw [actionSize]float64
		adjusted := ApplyHeuristics(raw, state, testRules())
		assert.GreaterOrEqual(t, adjusted[models.ActionAccept], prev)
		prev = adjusted[models.ActionAccept]
	}
}

func TestApplyHeuristics_BundleForHighValueItems(t *testing.T) {
	state := models.NewNegotiationState("prod_1", 6000)
	state.CustomerOffer = 4000
	state.RoundNumber = 2

	var raw [actionSize]float64
	adjusted := ApplyHeuristics(raw, state, testRules())
	assert.Equal(t, 1.5, adjusted[models.ActionBundle])

	// Round 1 or a cheap item gets no bundle boost.
	state.RoundNumber = 1
	adjusted = ApplyHeuristics(raw, state, testRules())
	assert.Equal(t, 0.0, adjusted[models.ActionBundle])

	cheap := models.NewNegotiationState("prod_2", 2000)
	cheap.RoundNumber = 3
	adjusted = ApplyHeuristics(raw, cheap, testRules())
	assert.Equal(t, 0.0, adjusted[models.ActionBundle])
}

func TestApplyHeuristics_FrustratedCustomer(t *testing.T) {
	state := models.NewNegotiationState("prod_1", 4000)
	state.CustomerSentiment = -0.8

	var raw [actionSize]float64
	adjusted := ApplyHeuristics(raw, state, testRules())

	assert.Equal(t, 1.0, adjusted[models.ActionAccept])
	assert.Equal(t, 0.5, adjusted[models.ActionCounter])
	assert.Equal(t, -1.0, adjusted[models.ActionReject])
}

func TestApplyHeuristics_AdjustmentsAreAdditive(t *testing.T) {
	state := models.NewNegotiationState("prod_1", 10000)
	state.CustomerOffer = 3000
	state.RoundNumber = 4

	raw := [actionSize]float64{1, 1, 1, 1, 1}
	adjusted := ApplyHeuristics(raw, state, testRules())

	// accept: 1 - 5 (below cost) + 1 (late round)
	assert.Equal(t, -3.0, adjusted[models.ActionAccept])
	// bundle: 1 + 1.5 (price > threshold, round >= 2)
	assert.Equal(t, 2.5, adjusted[models.ActionBundle])
	// stall: 1 - 2
	assert.Equal(t, -1.0, adjusted[models.ActionStall])
}

func TestAcceptAllowed(t *testing.T) {
	state := models.NewNegotiationState("prod_1", 10000)

	// No offer yet: nothing to forbid.
	assert.True(t, AcceptAllowed(state, testRules()))

	state.CustomerOffer = 8000 // exactly cost
	assert.True(t, AcceptAllowed(state, testRules()))

	state.CustomerOffer = 7999.99
	assert.False(t, AcceptAllowed(state, testRules()))
}
