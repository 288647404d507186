package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

type Config struct {
	RedisURL           string
	Port               string
	InstanceID         string
	LogLevel           string
	SessionTTLHours    int
	SessionOpTimeoutMS int64
	TrainerLeaseTTL    int // seconds
	SnapshotIntervalS  int
	TunablesFile       string

	Learning Learning
	Rewards  Rewards
}

// Learning holds the value-estimator hyperparameters.
type Learning struct {
	HiddenSize   int     `yaml:"hidden_size"`
	LearningRate float64 `yaml:"learning_rate"`
	Gamma        float64 `yaml:"gamma"`
	Tau          float64 `yaml:"tau"`
	Epsilon      float64 `yaml:"epsilon"`
	EpsilonMin   float64 `yaml:"epsilon_min"`
	EpsilonDecay float64 `yaml:"epsilon_decay"`
	BatchSize    int     `yaml:"batch_size"`
	BufferSize   int     `yaml:"buffer_size"`
}

// Rewards holds the empirical reward-shaping constants. They are tunable
// configuration, not fixed law; the defaults are the values the policy was
// originally tuned with.
type Rewards struct {
	ProfitScale        float64 `yaml:"profit_scale"`
	RelationshipBonus  float64 `yaml:"relationship_bonus"`
	SatisfactionScale  float64 `yaml:"satisfaction_scale"`
	CounterReward      float64 `yaml:"counter_reward"`
	CounterPenalty     float64 `yaml:"counter_penalty"`
	BundleReward       float64 `yaml:"bundle_reward"`
	BundleSavingsBonus float64 `yaml:"bundle_savings_bonus"`
	RejectPenalty      float64 `yaml:"reject_penalty"`
	StallReward        float64 `yaml:"stall_reward"`
	StallPenalty       float64 `yaml:"stall_penalty"`
	TimePressureWeight float64 `yaml:"time_pressure_weight"`
	RoundPenalty       float64 `yaml:"round_penalty"`
}

// tunables is the shape of the optional YAML overlay file.
type tunables struct {
	Learning *Learning `yaml:"learning"`
	Rewards  *Rewards  `yaml:"rewards"`
}

func Load() (*Config, error) {
	config := &Config{
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		Port:               getEnv("PORT", "8080"),
		InstanceID:         getEnv("INSTANCE_ID", generateInstanceID()),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		SessionTTLHours:    getEnvInt("SESSION_TTL_HOURS", 24),
		SessionOpTimeoutMS: getEnvInt64("SESSION_OP_TIMEOUT_MS", 300),
		TrainerLeaseTTL:    getEnvInt("TRAINER_LEASE_TTL", 10),
		SnapshotIntervalS:  getEnvInt("SNAPSHOT_INTERVAL_SECONDS", 300),
		TunablesFile:       getEnv("TUNABLES_FILE", ""),
		Learning:           DefaultLearning(),
		Rewards:            DefaultRewards(),
	}

	if config.TunablesFile != "" {
		if err := config.applyTunables(config.TunablesFile); err != nil {
			return nil, err
		}
	}

	return config, nil
}

func DefaultLearning() Learning {
	return Learning{
		HiddenSize:   64,
		LearningRate: 0.001,
		Gamma:        0.95,
		Tau:          0.005,
		Epsilon:      1.0,
		EpsilonMin:   0.01,
		EpsilonDecay: 0.995,
		BatchSize:    32,
		BufferSize:   10000,
	}
}

func DefaultRewards() Rewards {
	return Rewards{
		ProfitScale:        10.0,
		RelationshipBonus:  2.0,
		SatisfactionScale:  2.0,
		CounterReward:      1.0,
		CounterPenalty:     -0.5,
		BundleReward:       1.5,
		BundleSavingsBonus: 1.0,
		RejectPenalty:      -1.0,
		StallReward:        0.5,
		StallPenalty:       -1.0,
		TimePressureWeight: 0.5,
		RoundPenalty:       0.1,
	}
}

// applyTunables overlays learning and reward constants from a YAML file.
// Fields the file omits keep their current values.
func (c *Config) applyTunables(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading tunables %s: %w", path, err)
	}

	t := tunables{Learning: &c.Learning, Rewards: &c.Rewards}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("parsing tunables %s: %w", path, err)
	}
	return nil
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

func (c *Config) SessionOpTimeout() time.Duration {
	return time.Duration(c.SessionOpTimeoutMS) * time.Millisecond
}

func (c *Config) TrainerLeaseTTLDuration() time.Duration {
	return time.Duration(c.TrainerLeaseTTL) * time.Second
}

func (c *Config) SnapshotInterval() time.Duration {
	return time.Duration(c.SnapshotIntervalS) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func generateInstanceID() string {
	hostname, err := os.Hostname()
	if err != nil {
		return uuid.New().String()
	}
	return hostname + "-" + uuid.New().String()[:8]
}
