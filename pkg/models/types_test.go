package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionType_String(t *testing.T) {
	assert.Equal(t, "accept", ActionAccept.String())
	assert.Equal(t, "counter", ActionCounter.String())
	assert.Equal(t, "bundle", ActionBundle.String())
	assert.Equal(t, "reject", ActionReject.String())
	assert.Equal(t, "stall", ActionStall.String())
	assert.Equal(t, "unknown", ActionType(99).String())
	assert.Equal(t, "unknown", ActionType(-1).String())
}

func TestNewNegotiationState(t *testing.T) {
	state := NewNegotiationState("prod_1", 10000)

	assert.Equal(t, "prod_1", state.ProductID)
	assert.Equal(t, 10000.0, state.OriginalPrice)
	assert.Equal(t, 1, state.RoundNumber)
	assert.Zero(t, state.CustomerOffer)
	assert.False(t, state.StartedAt.IsZero())
}

func TestNegotiationState_AddOfferKeepsOrder(t *testing.T) {
	state := NewNegotiationState("prod_1", 10000)
	state.AddOffer(8000, SenderCustomer, "")
	state.AddOffer(9000, SenderMerchant, "best I can do")
	state.AddOffer(8500, SenderCustomer, "")

	require.Len(t, state.OfferHistory, 3)
	assert.Equal(t, 8000.0, state.OfferHistory[0].Offer)
	assert.Equal(t, SenderMerchant, state.OfferHistory[1].Sender)
	assert.Equal(t, 8500.0, state.OfferHistory[2].Offer)
}

func TestMerchantSettings_PriceFloors(t *testing.T) {
	m := MerchantSettings{MaxDiscountPercentage: 20, MinDiscountPercentage: 5}

	assert.Equal(t, 8000.0, m.CostPrice(10000))
	assert.Equal(t, 8400.0, m.MinAcceptable(10000))
}

func TestMerchantSettings_MinMarginDefaultsWhenUnset(t *testing.T) {
	m := MerchantSettings{MaxDiscountPercentage: 10}

	// 5% margin over the 9000 cost price.
	assert.Equal(t, 9450.0, m.MinAcceptable(10000))
}

func TestStrategy_SerializesActionAsName(t *testing.T) {
	s := Strategy{
		ActionType:   ActionCounter,
		Action:       ActionCounter.String(),
		CounterOffer: 8500,
		Confidence:   0.8,
	}

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"action_type":"counter"`)
	assert.NotContains(t, string(data), `"ActionType"`)
}

func TestNegotiationState_JSONRoundTrip(t *testing.T) {
	state := NewNegotiationState("prod_1", 10000)
	state.CustomerOffer = 8500
	state.RoundNumber = 3
	state.BundleSuggested = true
	state.AddOffer(8500, SenderCustomer, "last price")

	data, err := json.Marshal(state)
	require.NoError(t, err)

	var loaded NegotiationState
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, state.ProductID, loaded.ProductID)
	assert.Equal(t, state.CustomerOffer, loaded.CustomerOffer)
	assert.True(t, loaded.BundleSuggested)
	require.Len(t, loaded.OfferHistory, 1)
	assert.Equal(t, "last price", loaded.OfferHistory[0].ResponseText)
}
