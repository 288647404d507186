package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hellomuba/YarnMarket-AI/pkg/config"
	"github.com/hellomuba/YarnMarket-AI/pkg/engine"
	"github.com/hellomuba/YarnMarket-AI/pkg/metrics"
	"github.com/hellomuba/YarnMarket-AI/pkg/negotiation"
	redisClient "github.com/hellomuba/YarnMarket-AI/pkg/redis"
	"github.com/hellomuba/YarnMarket-AI/pkg/session"
	"github.com/hellomuba/YarnMarket-AI/pkg/trainer"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	logger.WithField("instance_id", cfg.InstanceID).Info("Starting negotiation engine")

	m := metrics.NewMetrics()

	redis, err := redisClient.NewClient(cfg.RedisURL, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()
	rdb := redis.GetRedisClient()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	agent := negotiation.NewAgent(cfg.Learning, cfg.Rewards, rng, logger, m)

	store := session.NewStore(rdb, cfg.SessionTTL(), logger, m)
	owner := trainer.NewOwner(rdb, cfg, agent, logger, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := owner.LoadModel(ctx); err != nil {
		logger.WithError(err).Error("Failed to load model snapshot, starting fresh")
	}

	service := engine.NewService(
		cfg,
		agent,
		store,
		owner,
		engine.DefaultMerchantProvider{MaxDiscountPercentage: 20, MinDiscountPercentage: 5},
		engine.DefaultCustomerProvider{},
		logger,
		m,
	)

	if err := service.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start service")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if owner.IsOwner() {
		if err := owner.SaveModel(shutdownCtx); err != nil {
			logger.WithError(err).Error("Failed to save model snapshot on shutdown")
		}
	}

	if err := service.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Error during service shutdown")
	}

	logger.Info("Negotiation engine shutdown complete")
}
