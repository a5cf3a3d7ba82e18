package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"futures_orchestrator/internal/advisor"
	"futures_orchestrator/internal/alert"
	"futures_orchestrator/internal/broker"
	"futures_orchestrator/internal/calendar"
	"futures_orchestrator/internal/config"
	"futures_orchestrator/internal/orchestrator"
	"futures_orchestrator/internal/session"
	"futures_orchestrator/internal/snapshot"
	"futures_orchestrator/internal/store"
	"futures_orchestrator/internal/trading"
	"futures_orchestrator/pkg/concurrency"
	"futures_orchestrator/pkg/logging"
	"futures_orchestrator/pkg/telemetry"
)

var (
	configFile = flag.String("config", "configs/config.yaml", "Path to configuration file")
	runOnce    = flag.Bool("once", false, "Run a single decision cycle and exit")
)

func main() {
	flag.Parse()

	if envConfig := os.Getenv("CONFIG_FILE"); envConfig != "" {
		*configFile = envConfig
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		bootLogger, _ := logging.NewZapLogger("INFO")
		bootLogger.Fatal("Failed to load configuration", "error", err, "file", *configFile)
	}

	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		bootLogger, _ := logging.NewZapLogger("INFO")
		bootLogger.Fatal("Failed to initialize logger", "error", err)
	}
	defer logger.Sync()

	logger.Info("Starting futures orchestrator",
		"instruments", cfg.App.Instruments,
		"cycle_period", cfg.CyclePeriod().String(),
		"once", *runOnce)

	tel, err := telemetry.Setup("futures_orchestrator")
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Telemetry shutdown failed", "error", err)
		}
	}()

	if cfg.Telemetry.EnableMetrics {
		go func() {
			logger.Info("Serving metrics", "port", cfg.Telemetry.MetricsPort)
			if err := telemetry.ServeMetrics(cfg.Telemetry.MetricsPort); err != nil {
				logger.Error("Metrics server stopped", "error", err)
			}
		}()
	}

	metadataStore, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		logger.Fatal("Failed to open metadata store", "error", err, "path", cfg.Store.Path)
	}
	defer metadataStore.Close()

	gate, err := session.NewGate(cfg.Session)
	if err != nil {
		logger.Fatal("Failed to build session gate", "error", err)
	}

	snapshotPool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "SnapshotPool",
		MaxWorkers:  cfg.Concurrency.SnapshotPoolSize,
		MaxCapacity: cfg.Concurrency.SnapshotPoolBuffer,
	}, logger)
	defer snapshotPool.Stop()

	binance := broker.NewBinanceBroker(cfg.Broker, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	healthCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := binance.CheckHealth(healthCtx); err != nil {
		cancel()
		logger.Fatal("Broker health check failed", "error", err)
	}
	cancel()
	logger.Info("Broker reachable", "broker", binance.GetName())

	// ETH's hourly trend doubles as the market-leader bias when traded.
	leader := ""
	for _, inst := range cfg.App.Instruments {
		if inst == "ETHUSDT" {
			leader = inst
			break
		}
	}
	if leader == "" && len(cfg.App.Instruments) > 0 {
		leader = cfg.App.Instruments[0]
	}

	orch := orchestrator.New(cfg, orchestrator.Deps{
		Broker:   binance,
		Advisor:  advisor.NewClient(cfg.Advisor, logger),
		Calendar: calendar.NewClient(cfg.Calendar, logger),
		Store:    metadataStore,
		Gate:     gate,
		Builder:  snapshot.NewBuilder(binance, snapshotPool, cfg.App.Instruments, leader, logger),
		Engine: trading.NewEngine(trading.DecisionConfig{
			ConfidenceThreshold: cfg.Trading.ConfidenceThreshold,
			MinRiskReward:       cfg.Trading.MinRiskReward,
			RiskFraction:        cfg.Trading.RiskFraction,
			Leverage:            cfg.Trading.Leverage,
			MaxOpenPositions:    cfg.Trading.MaxOpenPositions,
			OrderExpiry:         cfg.OrderExpiry(),
			StopTolerancePct:    cfg.Trading.StopTolerancePct,
		}, logger),
		Executor: trading.NewExecutor(binance, metadataStore, logger),
		Alerts:   alert.NewManagerFromConfig(cfg.Alerts, logger),
		Logger:   logger,
	})

	if *runOnce {
		if err := orch.RunCycle(ctx); err != nil {
			logger.Error("Cycle failed", "error", err)
			os.Exit(1)
		}
		logger.Info("Single cycle complete")
		return
	}

	if err := orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Orchestrator stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}
