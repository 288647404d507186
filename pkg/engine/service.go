// Package engine orchestrates negotiation turns: it loads or creates the
// session, runs the decision core, persists the updated state and exposes
// the HTTP surface collaborators call.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hellomuba/YarnMarket-AI/pkg/cache"
	"github.com/hellomuba/YarnMarket-AI/pkg/config"
	"github.com/hellomuba/YarnMarket-AI/pkg/metrics"
	"github.com/hellomuba/YarnMarket-AI/pkg/models"
	"github.com/hellomuba/YarnMarket-AI/pkg/negotiation"
	"github.com/hellomuba/YarnMarket-AI/pkg/session"
	"github.com/hellomuba/YarnMarket-AI/pkg/trainer"
)

// errInsufficientInfo aborts a session write when a negotiation cannot start
// for lack of a product reference. Surfaced to the customer as a "need more
// information" strategy, not a fault.
var errInsufficientInfo = errors.New("insufficient negotiation information")

const (
	turnLogCacheSize = 4096
	cleanupInterval  = 1 * time.Hour
)

// TurnRequest is one customer message classified as negotiation intent.
type TurnRequest struct {
	ProductID     string  `json:"product_id,omitempty"`
	OriginalPrice float64 `json:"original_price,omitempty"`
	Offer         float64 `json:"offer,omitempty"`
	Sentiment     float64 `json:"sentiment,omitempty"`
	Urgency       float64 `json:"urgency,omitempty"`
	Text          string  `json:"text,omitempty"`
}

type Service struct {
	config    *config.Config
	logger    *logrus.Logger
	metrics   *metrics.Metrics
	agent     *negotiation.Agent
	store     *session.Store
	trainer   *trainer.Owner
	merchants *cachedMerchants
	customers *cachedCustomers

	// turnLogMu serializes turn-log access. The cache itself is safe for
	// concurrent use, but the cached logs are mutated in place and two turns
	// for the same key (duplicate webhook delivery) can hold the same
	// pointer.
	turnLogMu sync.Mutex
	turnLogs  *cache.Cache[*models.NegotiationLog]

	server *http.Server
}

func NewService(
	cfg *config.Config,
	agent *negotiation.Agent,
	store *session.Store,
	owner *trainer.Owner,
	merchants MerchantProvider,
	customers CustomerProvider,
	logger *logrus.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		config:    cfg,
		logger:    logger,
		metrics:   m,
		agent:     agent,
		store:     store,
		trainer:   owner,
		merchants: newCachedMerchants(merchants),
		customers: newCachedCustomers(customers),
		turnLogs:  cache.New[*models.NegotiationLog](turnLogCacheSize, session.DefaultTTL),
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("Starting negotiation engine")

	s.trainer.Start(ctx)

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	go s.cleanupRoutine(ctx)

	s.logger.WithField("instance_id", s.config.InstanceID).Info("Negotiation engine started")
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.logger.Info("Stopping negotiation engine")

	s.trainer.Stop()

	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.WithError(err).Error("Failed to shutdown HTTP server gracefully")
			return err
		}
	}

	s.logger.Info("Negotiation engine stopped")
	return nil
}

// ProcessTurn runs one negotiation turn. It always returns a usable
// Strategy: malformed input yields the "need more information" strategy and
// a session-store outage degrades to an ephemeral state decided by the
// deterministic backend.
func (s *Service) ProcessTurn(ctx context.Context, merchantID, customerPhone string, req TurnRequest) models.Strategy {
	start := time.Now()
	defer func() {
		s.metrics.TurnDuration.Observe(time.Since(start).Seconds())
	}()

	rules := s.merchantRules(ctx, merchantID)
	profile := s.customerProfile(ctx, customerPhone)

	var strategy models.Strategy
	var fallbackReason string
	var turn models.NegotiationTurn
	var fresh bool
	var originalPrice float64

	opCtx, cancel := context.WithTimeout(ctx, s.config.SessionOpTimeout())
	defer cancel()

	err := s.store.Update(opCtx, customerPhone, merchantID, func(current *models.NegotiationState) (*models.NegotiationState, error) {
		state := current
		fresh = false

		// A new product while a session is active overwrites it: one live
		// negotiation per (customer, merchant) pair.
		if state == nil || (req.ProductID != "" && state.ProductID != req.ProductID) {
			if req.ProductID == "" || req.OriginalPrice <= 0 {
				return nil, errInsufficientInfo
			}
			state = models.NewNegotiationState(req.ProductID, req.OriginalPrice)
			fresh = true
		}

		s.applyCustomerMessage(state, req)

		turn = models.NegotiationTurn{
			State:     negotiation.Encode(state, rules, profile),
			CostPrice: rules.CostPrice(state.OriginalPrice),
		}

		// The transaction can retry on contention; metrics for the decision
		// are counted once, after the write commits.
		strategy, fallbackReason = s.agent.DecideTurn(state, rules, profile)
		turn.Action = strategy.ActionType
		originalPrice = state.OriginalPrice

		s.applyStrategy(state, strategy)
		return state, nil
	})

	if err != nil {
		if errors.Is(err, errInsufficientInfo) {
			return negotiation.InsufficientInformationStrategy()
		}

		// Session store unavailable: decide this single turn on an ephemeral
		// state with the deterministic backend. Nothing is persisted and no
		// experience is recorded.
		s.logger.WithError(err).WithFields(logrus.Fields{
			"merchant_id":    merchantID,
			"customer_phone": customerPhone,
		}).Error("Session store unavailable, using ephemeral state")

		if req.ProductID == "" || req.OriginalPrice <= 0 {
			return negotiation.InsufficientInformationStrategy()
		}
		state := models.NewNegotiationState(req.ProductID, req.OriginalPrice)
		s.applyCustomerMessage(state, req)
		return s.agent.DecideFallback(state, rules, "store_unavailable")
	}

	if fallbackReason != "" {
		s.metrics.FallbackActivations.WithLabelValues(fallbackReason).Inc()
	}
	s.metrics.StrategiesTotal.WithLabelValues(strategy.Action).Inc()

	s.appendTurnLog(merchantID, customerPhone, originalPrice, turn, fresh)
	return strategy
}

// applyCustomerMessage folds the customer's message into the session: each
// customer offer advances the round and is appended to the history.
func (s *Service) applyCustomerMessage(state *models.NegotiationState, req TurnRequest) {
	if req.Offer > 0 {
		state.CustomerOffer = req.Offer
		state.RoundNumber++
		state.CustomerSentiment = req.Sentiment
		state.AddOffer(req.Offer, models.SenderCustomer, req.Text)
	}
	if req.Urgency > 0 {
		state.UrgencyLevel = req.Urgency
	}
}

// applyStrategy folds the engine's decision back into the session.
func (s *Service) applyStrategy(state *models.NegotiationState, strategy models.Strategy) {
	if strategy.CounterOffer > 0 {
		state.CurrentCounter = strategy.CounterOffer
		state.AddOffer(strategy.CounterOffer, models.SenderMerchant, "")
	}
	switch strategy.ActionType {
	case models.ActionBundle:
		state.BundleSuggested = true
	case models.ActionStall:
		state.StallingCount++
	}
}

func (s *Service) appendTurnLog(merchantID, customerPhone string, originalPrice float64, turn models.NegotiationTurn, fresh bool) {
	key := session.Key(customerPhone, merchantID)

	s.turnLogMu.Lock()
	defer s.turnLogMu.Unlock()

	log, ok := s.turnLogs.Get(key)
	if !ok || fresh {
		log = &models.NegotiationLog{
			MerchantID:    merchantID,
			CustomerPhone: customerPhone,
		}
	}
	log.OriginalPrice = originalPrice
	log.Turns = append(log.Turns, turn)
	s.turnLogs.Put(key, log)
}

// RecordOutcome records a terminal outcome for the pair's negotiation,
// clears the session and releases the turn log.
func (s *Service) RecordOutcome(ctx context.Context, merchantID, customerPhone, outcome string, finalPrice, satisfaction float64) {
	key := session.Key(customerPhone, merchantID)

	s.turnLogMu.Lock()
	log, ok := s.turnLogs.Get(key)
	if !ok {
		log = &models.NegotiationLog{
			MerchantID:    merchantID,
			CustomerPhone: customerPhone,
			OriginalPrice: finalPrice,
		}
	}
	replay := *log
	replay.Turns = append([]models.NegotiationTurn(nil), log.Turns...)
	s.turnLogs.Delete(key)
	s.turnLogMu.Unlock()

	s.agent.RecordOutcome(replay, outcome, finalPrice, satisfaction)

	opCtx, cancel := context.WithTimeout(ctx, s.config.SessionOpTimeout())
	defer cancel()
	if err := s.store.Clear(opCtx, customerPhone, merchantID); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"merchant_id":    merchantID,
			"customer_phone": customerPhone,
		}).Error("Failed to clear negotiation session")
	}
}

// Insights returns the dashboard summary for the pair's active negotiation,
// or nil when none exists.
func (s *Service) Insights(ctx context.Context, merchantID, customerPhone string) (*models.Insights, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.config.SessionOpTimeout())
	defer cancel()

	state, err := s.store.Get(opCtx, customerPhone, merchantID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, nil
	}

	insights := s.agent.GetInsights(state, s.merchantRules(ctx, merchantID))
	return &insights, nil
}

func (s *Service) merchantRules(ctx context.Context, merchantID string) models.MerchantSettings {
	rules, err := s.merchants.GetMerchant(ctx, merchantID)
	if err != nil {
		s.logger.WithError(err).WithField("merchant_id", merchantID).Warn("Merchant settings unavailable, using defaults")
		rules, _ = DefaultMerchantProvider{MaxDiscountPercentage: 20, MinDiscountPercentage: 5}.GetMerchant(ctx, merchantID)
	}
	return rules
}

func (s *Service) customerProfile(ctx context.Context, phone string) models.CustomerProfile {
	profile, err := s.customers.GetCustomer(ctx, phone)
	if err != nil {
		s.logger.WithError(err).WithField("customer_phone", phone).Warn("Customer profile unavailable, using empty profile")
		return models.CustomerProfile{PhoneNumber: phone}
	}
	return profile
}

func (s *Service) cleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.trainer.IsOwner() {
				if err := s.store.CleanupStale(ctx); err != nil {
					s.logger.WithError(err).Error("Failed to cleanup stale sessions")
				}
			}
		}
	}
}
