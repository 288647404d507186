package engine

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/hellomuba/YarnMarket-AI/pkg/models"
)

func (s *Service) routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/negotiations/{merchant_id}/{phone}/strategy", s.handleStrategy).Methods("POST")
	router.HandleFunc("/negotiations/{merchant_id}/{phone}/outcome", s.handleOutcome).Methods("POST")
	router.HandleFunc("/negotiations/{merchant_id}/{phone}/insights", s.handleInsights).Methods("GET")
	router.HandleFunc("/merchants/{merchant_id}/analytics", s.handleAnalytics).Methods("GET")
	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.HandleFunc("/status", s.handleStatus).Methods("GET")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	router.Use(loggingMiddleware(s.logger))
	return router
}

func (s *Service) startHTTPServer() error {
	s.server = &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.logger.WithField("port", s.config.Port).Info("Starting HTTP server")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	return nil
}

func (s *Service) handleStrategy(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	merchantID, phone := vars["merchant_id"], vars["phone"]
	if merchantID == "" || phone == "" {
		http.Error(w, "Missing merchant or customer identifier", http.StatusBadRequest)
		return
	}

	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	strategy := s.ProcessTurn(r.Context(), merchantID, phone, req)

	writeJSON(w, strategy)

	s.logger.WithFields(logrus.Fields{
		"merchant_id":    merchantID,
		"customer_phone": phone,
		"action":         strategy.Action,
		"counter_offer":  strategy.CounterOffer,
	}).Debug("Returned negotiation strategy")
}

func (s *Service) handleOutcome(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	merchantID, phone := vars["merchant_id"], vars["phone"]

	var req struct {
		Outcome              string  `json:"outcome"`
		FinalPrice           float64 `json:"final_price"`
		CustomerSatisfaction float64 `json:"customer_satisfaction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	switch req.Outcome {
	case models.OutcomeSale, models.OutcomeRejected, models.OutcomeAbandoned:
	default:
		http.Error(w, "Unknown outcome", http.StatusBadRequest)
		return
	}

	s.RecordOutcome(r.Context(), merchantID, phone, req.Outcome, req.FinalPrice, req.CustomerSatisfaction)

	writeJSON(w, map[string]interface{}{
		"success":        true,
		"merchant_id":    merchantID,
		"customer_phone": phone,
		"outcome":        req.Outcome,
	})
}

func (s *Service) handleInsights(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	merchantID, phone := vars["merchant_id"], vars["phone"]

	insights, err := s.Insights(r.Context(), merchantID, phone)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load negotiation for insights")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if insights == nil {
		http.Error(w, "No active negotiation", http.StatusNotFound)
		return
	}

	writeJSON(w, insights)
}

func (s *Service) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	merchantID := mux.Vars(r)["merchant_id"]
	writeJSON(w, s.agent.AnalyticsSummary(merchantID))
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.ActiveCount(r.Context())
	if err != nil {
		http.Error(w, "Health check failed", http.StatusServiceUnavailable)
		return
	}
	s.metrics.ActiveSessionsCount.Set(float64(count))

	writeJSON(w, map[string]interface{}{
		"status":          "healthy",
		"active_sessions": count,
		"timestamp":       time.Now(),
	})
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.ActiveCount(r.Context())
	if err != nil {
		http.Error(w, "Failed to get status", http.StatusInternalServerError)
		return
	}
	s.metrics.ActiveSessionsCount.Set(float64(count))

	writeJSON(w, map[string]interface{}{
		"instance_id":     s.config.InstanceID,
		"training_owner":  s.trainer.IsOwner(),
		"active_sessions": count,
		"buffer_size":     s.agent.BufferLen(),
		"epsilon":         s.agent.Epsilon(),
		"timestamp":       time.Now(),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func loggingMiddleware(logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
				"remote":   r.RemoteAddr,
			}).Debug("HTTP request processed")
		})
	}
}
