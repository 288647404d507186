package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	StrategiesTotal        *prometheus.CounterVec
	FallbackActivations    *prometheus.CounterVec
	ActiveSessionsCount    prometheus.Gauge
	TrainingSteps          prometheus.Counter
	TrainingLoss           prometheus.Gauge
	ReplayBufferSize       prometheus.Gauge
	ExplorationEpsilon     prometheus.Gauge
	OutcomesRecorded       *prometheus.CounterVec
	TurnDuration           prometheus.Histogram
	RedisOperationDuration *prometheus.HistogramVec
	TrainerOwnerChanges    prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		StrategiesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "negotiation_strategies_total",
			Help: "Total number of strategies returned, by action type",
		}, []string{"action"}),
		FallbackActivations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "negotiation_fallback_activations_total",
			Help: "Total number of turns decided by the deterministic backend",
		}, []string{"reason"}),
		ActiveSessionsCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "negotiation_active_sessions_count",
			Help: "Current number of live negotiation sessions",
		}),
		TrainingSteps: promauto.NewCounter(prometheus.CounterOpts{
			Name: "negotiation_training_steps_total",
			Help: "Total number of value-estimator training steps",
		}),
		TrainingLoss: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "negotiation_training_loss",
			Help: "Squared-error loss of the most recent training step",
		}),
		ReplayBufferSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "negotiation_replay_buffer_size",
			Help: "Current number of experiences in the replay buffer",
		}),
		ExplorationEpsilon: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "negotiation_exploration_epsilon",
			Help: "Current epsilon-greedy exploration rate",
		}),
		OutcomesRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "negotiation_outcomes_recorded_total",
			Help: "Total number of terminal outcomes recorded, by outcome",
		}, []string{"outcome"}),
		TurnDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "negotiation_turn_duration_seconds",
			Help:    "Time taken to decide one negotiation turn",
			Buckets: prometheus.DefBuckets,
		}),
		RedisOperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Time taken for Redis operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		TrainerOwnerChanges: promauto.NewCounter(prometheus.CounterOpts{
			Name: "negotiation_trainer_owner_changes_total",
			Help: "Total number of training-ownership changes",
		}),
	}
}
