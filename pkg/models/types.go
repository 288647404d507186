package models

import "time"

// ActionType identifies one of the five negotiation actions the engine can
// take on a turn. The integer values double as the index into the value
// estimator's output vector, so the order is fixed.
type ActionType int

const (
	ActionAccept ActionType = iota
	ActionCounter
	ActionBundle
	ActionReject
	ActionStall

	ActionCount = 5
)

var actionNames = [ActionCount]string{"accept", "counter", "bundle", "reject", "stall"}

func (a ActionType) String() string {
	if a < 0 || int(a) >= ActionCount {
		return "unknown"
	}
	return actionNames[a]
}

// Offer senders.
const (
	SenderCustomer = "customer"
	SenderMerchant = "merchant"
)

// Offer is one entry in a negotiation's offer history.
type Offer struct {
	Offer        float64   `json:"offer"`
	Sender       string    `json:"sender"`
	ResponseText string    `json:"response_text,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NegotiationState is the persisted state of one in-progress negotiation for
// a (customer, merchant) pair. OriginalPrice is immutable once set and
// OfferHistory is append-only.
type NegotiationState struct {
	ProductID         string    `json:"product_id"`
	OriginalPrice     float64   `json:"original_price"`
	CustomerOffer     float64   `json:"customer_offer"` // 0 until the first offer
	CurrentCounter    float64   `json:"current_counter"`
	RoundNumber       int       `json:"round_number"`
	CustomerSentiment float64   `json:"customer_sentiment"` // -1 to 1
	UrgencyLevel      float64   `json:"urgency_level"`      // 0 to 1
	BundleSuggested   bool      `json:"bundle_suggested"`
	StallingCount     int       `json:"stalling_count"`
	OfferHistory      []Offer   `json:"offer_history"`
	StartedAt         time.Time `json:"started_at"`
}

// NewNegotiationState starts a negotiation at round 1 for a product.
func NewNegotiationState(productID string, originalPrice float64) *NegotiationState {
	return &NegotiationState{
		ProductID:     productID,
		OriginalPrice: originalPrice,
		RoundNumber:   1,
		StartedAt:     time.Now().UTC(),
	}
}

// AddOffer appends an offer to the negotiation history.
func (s *NegotiationState) AddOffer(offer float64, sender, responseText string) {
	s.OfferHistory = append(s.OfferHistory, Offer{
		Offer:        offer,
		Sender:       sender,
		ResponseText: responseText,
		Timestamp:    time.Now().UTC(),
	})
}

// QuickReply is a quick-reply button descriptor consumed by the
// response-generation collaborator.
type QuickReply struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

// Strategy is the engine's decision for one negotiation turn. It lives for
// the duration of the turn only and is never persisted.
type Strategy struct {
	ActionType       ActionType   `json:"-"`
	Action           string       `json:"action_type"`
	CounterOffer     float64      `json:"counter_offer,omitempty"`
	BundleQuantity   int          `json:"bundle_quantity,omitempty"`
	BundlePrice      float64      `json:"bundle_price,omitempty"`
	IndividualPrice  float64      `json:"individual_price,omitempty"`
	Confidence       float64      `json:"confidence"`
	UrgencyLevel     float64      `json:"urgency_level"`
	SuggestedReplies []QuickReply `json:"suggested_replies"`
}

// MerchantSettings is the subset of merchant configuration the decision core
// consumes, supplied by the merchant settings collaborator.
type MerchantSettings struct {
	MerchantID            string  `json:"merchant_id"`
	BusinessName          string  `json:"business_name,omitempty"`
	MinDiscountPercentage float64 `json:"min_discount_percentage"` // minimum profit margin over cost, percent
	MaxDiscountPercentage float64 `json:"max_discount_percentage"`
	NegotiationEnabled    bool    `json:"negotiation_enabled"`
	BulkDiscountThreshold int     `json:"bulk_discount_threshold"`
}

// CostPrice is the merchant's price floor for a list price.
func (m MerchantSettings) CostPrice(originalPrice float64) float64 {
	return originalPrice * (1 - m.MaxDiscountPercentage/100)
}

// MinAcceptable is the cost price plus the mandatory minimum profit margin.
// Merchants that leave the minimum margin unset get the 5% default.
func (m MerchantSettings) MinAcceptable(originalPrice float64) float64 {
	margin := m.MinDiscountPercentage
	if margin <= 0 {
		margin = 5.0
	}
	return m.CostPrice(originalPrice) * (1 + margin/100)
}

// CustomerProfile is the slice of customer data the encoder needs.
type CustomerProfile struct {
	PhoneNumber   string `json:"phone_number"`
	Name          string `json:"name,omitempty"`
	PurchaseCount int    `json:"purchase_count"`
}

// FeatureVector is the 7-dimensional numeric encoding of a negotiation turn.
type FeatureVector [7]float64

// Feature indices, in encoding order.
const (
	FeatPriceGap = iota
	FeatProgress
	FeatSentiment
	FeatTimePressure
	FeatProfitMargin
	FeatCustomerHistory
	FeatUrgency
)

// Experience is one recorded state transition used for training.
type Experience struct {
	State     FeatureVector `json:"state"`
	Action    ActionType    `json:"action"`
	Reward    float64       `json:"reward"`
	NextState FeatureVector `json:"next_state"`
	Terminal  bool          `json:"terminal"`
}

// Outcome labels for terminated negotiations.
const (
	OutcomeSale      = "sale"
	OutcomeRejected  = "rejected"
	OutcomeAbandoned = "abandoned"
)

// NegotiationTurn is one turn of a completed negotiation's log, replayed by
// the outcome recorder.
type NegotiationTurn struct {
	State     FeatureVector `json:"state"`
	Action    ActionType    `json:"action"`
	CostPrice float64       `json:"cost_price"`
}

// NegotiationLog is the turn-by-turn record of one finished negotiation.
type NegotiationLog struct {
	MerchantID    string            `json:"merchant_id"`
	CustomerPhone string            `json:"customer_phone"`
	OriginalPrice float64           `json:"original_price"`
	Turns         []NegotiationTurn `json:"turns"`
}

// Insights is the best-effort dashboard summary for an ongoing negotiation.
type Insights struct {
	NegotiationStrength string   `json:"negotiation_strength"`
	CustomerType        string   `json:"customer_type"`
	RecommendedAction   string   `json:"recommended_action"`
	SuccessProbability  float64  `json:"success_probability"`
	RiskFactors         []string `json:"risk_factors"`
	Opportunities       []string `json:"opportunities"`
}

// OutcomeRecord is one terminated negotiation kept for merchant analytics.
type OutcomeRecord struct {
	MerchantID           string    `json:"merchant_id"`
	CustomerPhone        string    `json:"customer_phone"`
	Outcome              string    `json:"outcome"`
	Rounds               int       `json:"rounds"`
	FinalPrice           float64   `json:"final_price"`
	OriginalPrice        float64   `json:"original_price"`
	DiscountGiven        float64   `json:"discount_given"`
	CustomerSatisfaction float64   `json:"customer_satisfaction"`
	Timestamp            time.Time `json:"timestamp"`
}

// AnalyticsSummary aggregates outcome records for one merchant.
type AnalyticsSummary struct {
	MerchantID           string  `json:"merchant_id"`
	Total                int     `json:"total"`
	SuccessRate          float64 `json:"success_rate"`
	AvgRounds            float64 `json:"avg_rounds"`
	AvgDiscount          float64 `json:"avg_discount"`
	CustomerSatisfaction float64 `json:"customer_satisfaction"`
}
